/*
tc2-rate-controller - Adaptive transmission rate controller
Copyright (C) 2024, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package ratecontroller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/TheCacophonyProject/tc2-rate-controller/battery"
	"github.com/TheCacophonyProject/tc2-rate-controller/internal/logging"
	"github.com/TheCacophonyProject/tc2-rate-controller/ratecontrol"
	arg "github.com/alexflint/go-arg"
	"github.com/prometheus/client_golang/prometheus"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var version = "No version provided"

var log = logging.NewLogger("info")

type Args struct {
	ConfigDir      string `arg:"-c,--config" help:"configuration folder"`
	StateFile      string `arg:"--state-file" help:"file the controller state is saved to, overrides the config"`
	MetricsAddress string `arg:"--metrics-address" help:"address to serve prometheus metrics on, overrides the config"`
	Reader         string `arg:"--reader" help:"battery ADC reader, 'dbus' or 'i2c', overrides the config"`
	NoDBus         bool   `arg:"--no-dbus" help:"don't export the D-Bus service"`
	Once           bool   `arg:"--once" help:"run a single tick and exit"`
	logging.LogArgs
}

func (Args) Version() string {
	return version
}

var defaultArgs = Args{
	ConfigDir: DefaultConfigDir,
}

func procArgs(input []string) (Args, error) {
	args := defaultArgs

	parser, err := arg.NewParser(arg.Config{}, &args)
	if err != nil {
		return Args{}, err
	}
	err = parser.Parse(input)
	if errors.Is(err, arg.ErrHelp) {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if errors.Is(err, arg.ErrVersion) {
		fmt.Println(version)
		os.Exit(0)
	}
	return args, err
}

func loadConfig(args Args) (*Config, error) {
	conf, err := ParseConfig(args.ConfigDir)
	if err != nil {
		return nil, err
	}
	if args.StateFile != "" {
		conf.StateFile = args.StateFile
	}
	if args.MetricsAddress != "" {
		conf.MetricsAddress = args.MetricsAddress
	}
	if args.Reader != "" {
		conf.Reader = args.Reader
	}
	return conf, conf.Validate()
}

func newReader(conf *Config) (battery.Reader, func() error, error) {
	if conf.Reader != ReaderI2C {
		r := battery.DBusReader{Address: byte(conf.I2CAddress), Register: conf.I2CRegister}
		if err := r.Check(); err != nil {
			return nil, nil, fmt.Errorf("no battery ADC at 0x%X: %w", conf.I2CAddress, err)
		}
		return r, func() error { return nil }, nil
	}
	if _, err := host.Init(); err != nil {
		return nil, nil, err
	}
	bus, err := i2creg.Open(conf.I2CBus)
	if err != nil {
		return nil, nil, err
	}
	return battery.NewBusReader(bus, conf.I2CAddress, conf.I2CRegister), bus.Close, nil
}

func Run(inputArgs []string, ver string) error {
	version = ver
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}

	log = logging.NewLogger(args.LogLevel)

	log.Info("Running version: ", version)

	conf, err := loadConfig(args)
	if err != nil {
		return err
	}
	log.Debugf("Config: %+v", *conf)

	reader, closeReader, err := newReader(conf)
	if err != nil {
		return err
	}
	defer closeReader()

	reg := prometheus.NewRegistry()
	r, err := newRunner(conf, battery.NewSampler(reader), newMetrics(reg))
	if err != nil {
		return err
	}
	r.restore()

	if conf.MetricsAddress != "" {
		serveMetrics(conf.MetricsAddress, reg)
	}

	if !args.NoDBus {
		log.Info("Starting D-Bus service.")
		conn, err := startService(r)
		if err != nil {
			return err
		}
		r.publish = signalPublisher(conn)
	}

	if args.Once {
		_, err := r.tick()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return r.run(ctx)
}

// rateController is the part of ratecontrol.Controller the runner drives.
type rateController interface {
	Decide(mv uint16) (ratecontrol.Decision, error)
	State() ratecontrol.State
	Reset()
	Restore(s ratecontrol.State) error
}

// runner feeds battery estimates into the controller on every tick and
// publishes the resulting send interval.
type runner struct {
	conf       *Config
	sampler    *battery.Sampler
	controller rateController
	metrics    *metrics
	publish    func(ratecontrol.Decision)

	mu      sync.Mutex
	decided bool
	last    ratecontrol.Decision

	// saveMu serializes state snapshots and state file writes.
	saveMu sync.Mutex
}

func newRunner(conf *Config, sampler *battery.Sampler, m *metrics) (*runner, error) {
	rc, err := conf.Controller()
	if err != nil {
		return nil, err
	}
	controller, err := ratecontrol.NewController(rc, ratecontrol.WithFaultHandler(func(f ratecontrol.Fault) {
		log.Warn(f.Error())
		reportFault(f)
	}))
	if err != nil {
		return nil, err
	}
	return &runner{
		conf:       conf,
		sampler:    sampler,
		controller: controller,
		metrics:    m,
		publish:    func(ratecontrol.Decision) {},
		last:       ratecontrol.Decision{Interval: ratecontrol.FallbackInterval},
	}, nil
}

// restore loads the saved controller state. A missing or invalid file keeps
// the configured initial state.
func (r *runner) restore() {
	saved, err := loadState(r.conf.StateFile)
	if err != nil {
		log.Errorf("Failed to load state: %v", err)
		return
	}
	if saved == nil {
		log.Info("No saved state, starting from the initial state.")
		return
	}
	if err := r.controller.Restore(saved.State); err != nil {
		log.Warnf("Ignoring saved state from %s: %v", saved.LastUpdated.Format(time.RFC3339), err)
		return
	}
	log.Infof("Restored state from %s, params: %s, dc smooth: %d",
		saved.LastUpdated.Format(time.RFC3339), saved.Params, saved.DCSmooth)
}

func (r *runner) run(ctx context.Context) error {
	ticker := time.NewTicker(r.conf.TickInterval)
	defer ticker.Stop()
	for {
		if _, err := r.tick(); err != nil {
			log.Error(err)
		}
		select {
		case <-ctx.Done():
			log.Info("Stopping rate controller.")
			return nil
		case <-ticker.C:
		}
	}
}

// tick runs the controller on a fresh battery estimate. A failed battery
// read keeps the previous interval. A failed controller step resets the
// controller and falls back to FallbackInterval.
func (r *runner) tick() (ratecontrol.Decision, error) {
	mv, batch, err := r.sampler.Estimate()
	if err != nil {
		r.metrics.sampleErrors.Inc()
		return ratecontrol.Decision{}, err
	}
	log.Debugf("Battery samples: %v, median: %dmV", batch, mv)

	d, err := r.controller.Decide(mv)
	if err != nil {
		if !errors.Is(err, ratecontrol.ErrDivisionByZero) {
			return d, err
		}
		log.Errorf("Resetting controller: %v", err)
		r.controller.Reset()
		r.metrics.controllerResets.Inc()
		reportReset(err)
		d.Interval = ratecontrol.FallbackInterval
	}

	if d.Result != nil && d.Result.Resets != 0 {
		log.Debugf("Reset %s to initial values", d.Result.Resets)
	}
	r.metrics.observe(mv, d)
	r.record(mv, d)

	if err := r.save(d); err != nil {
		log.Errorf("Failed to save state: %v", err)
	}
	return d, nil
}

func (r *runner) record(mv uint16, d ratecontrol.Decision) {
	r.mu.Lock()
	decided := r.decided
	prevMode := r.last.Mode
	changed := !r.decided || r.last.Mode != d.Mode || r.last.Interval != d.Interval
	r.decided = true
	r.last = ratecontrol.Decision{
		Mode:          d.Mode,
		Interval:      d.Interval,
		RadioOff:      d.RadioOff,
		RadioAlwaysOn: d.RadioAlwaysOn,
	}
	r.mu.Unlock()

	if decided && prevMode != d.Mode {
		log.Infof("Battery mode changed from %s to %s at %dmV", prevMode, d.Mode, mv)
		reportModeChange(prevMode, d.Mode, mv)
	}

	if d.Result != nil {
		log.WithField("dc", d.Result.DC).
			WithField("dcSmooth", d.Result.DCSmooth).
			WithField("dcReal", d.Result.DCReal).
			WithField("mode", d.Mode).
			Debugf("Battery %dmV, level %d", mv, d.Result.Level)
	}
	if !changed {
		return
	}
	log.Infof("Send interval: %d (%s)", d.Interval, d.Mode)
	r.publish(d)
}

// lastDecision returns the last published decision, without its Result.
func (r *runner) lastDecision() ratecontrol.Decision {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *runner) save(d ratecontrol.Decision) error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()
	return r.saveLocked(d)
}

func (r *runner) saveLocked(d ratecontrol.Decision) error {
	return saveState(r.conf.StateFile, persistentState{
		State:       r.controller.State(),
		Mode:        d.Mode.String(),
		Interval:    d.Interval,
		LastUpdated: time.Now(),
	})
}

func (r *runner) reset() error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()
	r.controller.Reset()
	return r.saveLocked(r.lastDecision())
}
