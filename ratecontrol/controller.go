package ratecontrol

import (
	"fmt"
	"sync"
)

// State is everything the controller carries from one tick to the next.
type State struct {
	Params   Vector `json:"params"`
	Features Vector `json:"features"`
	DCSmooth int32  `json:"dc_smooth"`
}

// Validate checks that a state, typically one restored from disk, can be
// ticked without dividing by zero. A DCSmooth outside [0, DutyCycleMax] is
// allowed and ends up on the fallback path.
func (s State) Validate() error {
	if s.Features.dot(s.Features) == 0 {
		return fmt.Errorf("feature vector %s: %w", s.Features, ErrDivisionByZero)
	}
	return nil
}

// Result is the outcome of a single tick.
type Result struct {
	// Interval is the number of ticks until the next transmission.
	Interval uint16
	Level    int16
	DC       int32
	DCSmooth int32
	DCReal   int32
	Params   Vector
	Resets   ResetMask
	// Fault is set when the duty cycle left its envelope and Interval is
	// FallbackInterval.
	Fault *Fault
}

// Step runs one tick of the controller as a pure function of the previous
// state and the battery estimate in millivolts. On error the returned state
// is the input state.
func Step(state State, init Vector, mv uint16) (Result, State, error) {
	level := Level(mv)
	params, resets, err := UpdateParameters(state.Params, state.Features, init, level)
	if err != nil {
		return Result{}, state, err
	}
	dc, err := ComputeDutyCycle(params, level, state.DCSmooth)
	if err != nil {
		return Result{}, state, err
	}

	result := Result{
		Level:    level,
		DC:       dc.DC,
		DCSmooth: dc.Smooth,
		DCReal:   dc.Real,
		Params:   params,
		Resets:   resets,
	}
	interval, ok := SendInterval(dc.Real)
	if !ok {
		result.Fault = &Fault{DC: dc.DC, DCSmooth: dc.Smooth, DCReal: dc.Real}
	}
	result.Interval = interval

	next := State{
		Params:   params,
		Features: dc.Features,
		DCSmooth: dc.Smooth,
	}
	return result, next, nil
}

// Config holds the initial state of a controller and the battery mode
// thresholds of the host.
type Config struct {
	Init       Vector
	Features   Vector
	DCSmooth   int32
	Thresholds Thresholds
}

func DefaultConfig() Config {
	return Config{
		Init:       DefaultInitVector,
		Features:   DefaultFeatureVector,
		DCSmooth:   DefaultDCSmooth,
		Thresholds: DefaultThresholds(),
	}
}

func (c Config) initialState() State {
	return State{
		Params:   c.Init,
		Features: c.Features,
		DCSmooth: c.DCSmooth,
	}
}

func (c Config) Validate() error {
	if err := c.initialState().Validate(); err != nil {
		return fmt.Errorf("invalid initial state: %w", err)
	}
	if c.Init[0] <= 0 || c.Init[1] >= 0 || c.Init[2] <= 0 {
		return fmt.Errorf("init vector %s must have signs [+ - +]", c.Init)
	}
	return c.Thresholds.Validate()
}

type Option func(*Controller)

// WithFaultHandler sets a function called after any tick that substituted
// FallbackInterval.
func WithFaultHandler(fn func(Fault)) Option {
	return func(c *Controller) {
		c.onFault = fn
	}
}

// Controller owns the controller state and serializes ticks on it.
type Controller struct {
	mu      sync.Mutex
	config  Config
	state   State
	onFault func(Fault)
}

func NewController(config Config, opts ...Option) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		config: config,
		state:  config.initialState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Tick runs one controller step for the battery estimate and commits the new
// state. The state is left untouched when an error is returned.
func (c *Controller) Tick(mv uint16) (Result, error) {
	c.mu.Lock()
	result, err := c.tick(mv)
	c.mu.Unlock()
	if err != nil {
		return Result{}, err
	}
	c.reportFault(result)
	return result, nil
}

func (c *Controller) tick(mv uint16) (Result, error) {
	result, next, err := Step(c.state, c.config.Init, mv)
	if err != nil {
		return Result{}, err
	}
	c.state = next
	return result, nil
}

func (c *Controller) reportFault(result Result) {
	if result.Fault != nil && c.onFault != nil {
		c.onFault(*result.Fault)
	}
}

// Decision is the send interval chosen for a battery estimate together with
// the battery mode that produced it.
type Decision struct {
	Mode     Mode
	Interval uint16
	// RadioOff asks the host to switch the radio off until the next tick.
	RadioOff bool
	// RadioAlwaysOn asks the host to keep the radio on permanently.
	RadioAlwaysOn bool
	// Result is only set in normal mode.
	Result *Result
}

// Decide selects the battery mode and only runs the controller in normal
// mode. Other modes return their fixed interval and leave the state alone.
func (c *Controller) Decide(mv uint16) (Decision, error) {
	t := c.config.Thresholds
	mode := SelectMode(mv, t)
	switch mode {
	case ModeCritical:
		return Decision{Mode: mode, Interval: t.LowInterval, RadioOff: true}, nil
	case ModeHigh:
		return Decision{Mode: mode, Interval: t.HighInterval, RadioAlwaysOn: true}, nil
	}
	result, err := c.Tick(mv)
	if err != nil {
		return Decision{Mode: mode}, err
	}
	return Decision{Mode: mode, Interval: result.Interval, Result: &result}, nil
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reset returns the controller to its configured initial state.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = c.config.initialState()
}

// Restore replaces the state, for example with one loaded from disk.
func (c *Controller) Restore(s State) error {
	if err := s.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
	return nil
}
