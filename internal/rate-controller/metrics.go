package ratecontroller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/TheCacophonyProject/tc2-rate-controller/ratecontrol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "tc2_rate_controller"

type metrics struct {
	sendInterval      prometheus.Gauge
	batteryMillivolts prometheus.Gauge
	batteryLevel      prometheus.Gauge
	dutyCycle         prometheus.Gauge
	dutyCycleSmooth   prometheus.Gauge
	dutyCycleReal     prometheus.Gauge
	params            *prometheus.GaugeVec
	mode              *prometheus.GaugeVec
	ticks             *prometheus.CounterVec
	faults            prometheus.Counter
	paramResets       prometheus.Counter
	controllerResets  prometheus.Counter
	sampleErrors      prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		sendInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "send_interval_ticks",
			Help:      "Ticks until the next transmission.",
		}),
		batteryMillivolts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "battery_millivolts",
			Help:      "Median battery estimate.",
		}),
		batteryLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "battery_level_per_mille",
			Help:      "Battery level on the 0-1000 scale.",
		}),
		dutyCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "duty_cycle_per_mille",
			Help:      "Clamped duty cycle of the last normal mode tick.",
		}),
		dutyCycleSmooth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "duty_cycle_smooth_per_mille",
			Help:      "Exponentially smoothed duty cycle.",
		}),
		dutyCycleReal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "duty_cycle_real",
			Help:      "Blended duty cycle on the 0-100 scale.",
		}),
		params: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "parameter",
			Help:      "Estimator parameter vector.",
		}, []string{"index"}),
		mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "mode",
			Help:      "1 for the active battery mode, 0 otherwise.",
		}, []string{"mode"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ticks_total",
			Help:      "Controller ticks by battery mode.",
		}, []string{"mode"}),
		faults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "faults_total",
			Help:      "Ticks that fell back to the safety interval.",
		}),
		paramResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "parameter_resets_total",
			Help:      "Parameter elements reset to their initial value.",
		}),
		controllerResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "controller_resets_total",
			Help:      "Controller state resets after a failed tick.",
		}),
		sampleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sample_errors_total",
			Help:      "Battery batches that could not be read.",
		}),
	}
	reg.MustRegister(
		m.sendInterval, m.batteryMillivolts, m.batteryLevel,
		m.dutyCycle, m.dutyCycleSmooth, m.dutyCycleReal,
		m.params, m.mode, m.ticks,
		m.faults, m.paramResets, m.controllerResets, m.sampleErrors,
	)
	return m
}

var modes = []ratecontrol.Mode{ratecontrol.ModeNormal, ratecontrol.ModeCritical, ratecontrol.ModeHigh}

func (m *metrics) observe(mv uint16, d ratecontrol.Decision) {
	m.batteryMillivolts.Set(float64(mv))
	m.batteryLevel.Set(float64(ratecontrol.Level(mv)))
	m.sendInterval.Set(float64(d.Interval))
	m.ticks.WithLabelValues(d.Mode.String()).Inc()
	for _, mode := range modes {
		active := 0.0
		if mode == d.Mode {
			active = 1
		}
		m.mode.WithLabelValues(mode.String()).Set(active)
	}

	r := d.Result
	if r == nil {
		return
	}
	m.dutyCycle.Set(float64(r.DC))
	m.dutyCycleSmooth.Set(float64(r.DCSmooth))
	m.dutyCycleReal.Set(float64(r.DCReal))
	for i, p := range r.Params {
		m.params.WithLabelValues(strconv.Itoa(i)).Set(float64(p))
	}
	m.paramResets.Add(float64(r.Resets.Count()))
	if r.Fault != nil {
		m.faults.Inc()
	}
}

// serveMetrics exposes the registry on addr until the listener fails.
func serveMetrics(addr string, gatherer prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	go func() {
		log.Info("Serving metrics on ", addr)
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server stopped: %v", err)
		}
	}()
}
