package ratecontrol

// ADC conversion. Raw counts are 12 bit against a 5 V reference.
const (
	AdcReferenceMillivolts = 5000
	AdcResolution          = 4096
	SamplesPerEstimate     = 11
	medianIndex            = SamplesPerEstimate / 2
)

// Battery level, per mille. 3400 mV is empty and 3600 mV is full.
const (
	EmptyMillivolts   = 3400
	FullMillivolts    = 3600
	millivoltsPerStep = 2
	levelPerStep      = 10
	LevelMax          = 1000
)

// Estimator and duty cycle fixed point constants.
const (
	// Scale is the fixed point factor p applied to the parameter vector.
	Scale = 1000
	// StepScaled is the gradient step 0.001 scaled by 10*p^3.
	StepScaled = 10_000_000
	// GainDivisor keeps gain*residual within range.
	GainDivisor = 10
	// TargetLevel is the battery level the controller tracks (65%).
	TargetLevel = 650
	// AlphaInv is the inverse of the smoothing factor, alpha = 0.1.
	AlphaInv = 10
	// DutyCycleMax is the upper clamp of the per mille duty cycle.
	DutyCycleMax = 1000
	// DutyCycleRealMax is the upper bound of the blended 0-100 signal.
	DutyCycleRealMax     = 100
	dutyCycleRealDivisor = 10
)

// Intervals, in clock ticks.
const (
	TicksPerSecond = 128
	// TicksPerDutyStep maps the 0-100 duty cycle scale onto ticks.
	TicksPerDutyStep = 8
	// MinInterval is the fastest allowed send rate (32 packets a second).
	MinInterval = 4
	// MaxInterval is the slowest send rate the normal path may produce.
	MaxInterval = 1600
	// FallbackInterval is used when the duty cycle leaves its envelope: one packet every 100 seconds.
	FallbackInterval = 100 * TicksPerSecond
)

// Battery modes used by the host.
const (
	DefaultLowBatteryMillivolts  = 3200
	DefaultHighBatteryMillivolts = 3600
	DefaultLowBatteryInterval    = 100 * TicksPerSecond
	DefaultHighBatteryInterval   = TicksPerSecond / 8
)

var (
	DefaultInitVector    = Vector{2000, -1000, 1000}
	DefaultFeatureVector = Vector{700, 200, -TargetLevel}
)

const DefaultDCSmooth = 300
