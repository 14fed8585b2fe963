package ratecontrol

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initialState() State {
	return DefaultConfig().initialState()
}

func TestStepEndToEnd(t *testing.T) {
	result, next, err := Step(initialState(), DefaultInitVector, 3600)
	require.NoError(t, err)

	assert.Equal(t, int16(1000), result.Level)
	assert.Equal(t, Vector{2031, -991, 971}, result.Params)
	assert.Equal(t, int32(756), result.DC)
	assert.Equal(t, int32(345), result.DCSmooth)
	assert.Equal(t, int32(55), result.DCReal)
	assert.Equal(t, uint16(360), result.Interval)
	assert.Nil(t, result.Fault)

	assert.Equal(t, State{
		Params:   Vector{2031, -991, 971},
		Features: Vector{1000, 756, -650},
		DCSmooth: 345,
	}, next)
}

func TestStepAtTargetIsReproducible(t *testing.T) {
	first, firstState, err := Step(initialState(), DefaultInitVector, 3530)
	require.NoError(t, err)
	assert.Equal(t, int16(TargetLevel), first.Level)
	assert.Equal(t, uint16(696), first.Interval)

	for range 10 {
		again, againState, err := Step(initialState(), DefaultInitVector, 3530)
		require.NoError(t, err)
		require.Equal(t, first, again)
		require.Equal(t, firstState, againState)
	}

	c1, err := NewController(DefaultConfig())
	require.NoError(t, err)
	c2, err := NewController(DefaultConfig())
	require.NoError(t, err)
	for range 20 {
		r1, err := c1.Tick(3530)
		require.NoError(t, err)
		r2, err := c2.Tick(3530)
		require.NoError(t, err)
		require.Equal(t, r1, r2)
	}
}

func TestStepLowerBoundary(t *testing.T) {
	state := initialState()
	state.DCSmooth = 0
	result, _, err := Step(state, DefaultInitVector, 3400)
	require.NoError(t, err)
	assert.Equal(t, int32(0), result.DC)
	assert.Equal(t, int32(0), result.DCReal)
	assert.Equal(t, uint16(MinInterval), result.Interval)
	assert.Nil(t, result.Fault)
}

func TestStepUpperBoundary(t *testing.T) {
	init := Vector{5000, -1000, 1000}
	state := State{Params: init, Features: DefaultFeatureVector, DCSmooth: 1000}
	result, _, err := Step(state, init, 3600)
	require.NoError(t, err)
	assert.Equal(t, Vector{4885, -1033, 1107}, result.Params)
	assert.Equal(t, int32(DutyCycleMax), result.DC)
	assert.Equal(t, int32(DutyCycleRealMax), result.DCReal)
	assert.Equal(t, uint16(MinInterval), result.Interval)
	assert.Nil(t, result.Fault)
}

func TestStepFaultUsesFallback(t *testing.T) {
	for _, dcSmooth := range []int32{5000, -5000} {
		state := initialState()
		state.DCSmooth = dcSmooth
		result, next, err := Step(state, DefaultInitVector, 3600)
		require.NoError(t, err)
		require.NotNil(t, result.Fault)
		assert.Equal(t, uint16(FallbackInterval), result.Interval)
		assert.Equal(t, result.DCReal, result.Fault.DCReal)
		assert.Equal(t, next.DCSmooth, result.Fault.DCSmooth)
	}

	state := initialState()
	state.DCSmooth = 5000
	result, _, err := Step(state, DefaultInitVector, 3600)
	require.NoError(t, err)
	assert.Equal(t, Fault{DC: 756, DCSmooth: 4576, DCReal: 266}, *result.Fault)
	assert.Contains(t, result.Fault.Error(), "266")
}

func TestStepDivisionByZero(t *testing.T) {
	init := Vector{2000, 0, 1000}
	state := State{Params: init, Features: DefaultFeatureVector, DCSmooth: 300}
	_, next, err := Step(state, init, 3600)
	assert.ErrorIs(t, err, ErrDivisionByZero)
	assert.Equal(t, state, next)

	state = State{Params: DefaultInitVector, Features: Vector{}, DCSmooth: 300}
	_, next, err = Step(state, DefaultInitVector, 3600)
	assert.ErrorIs(t, err, ErrDivisionByZero)
	assert.Equal(t, state, next)
}

func TestControllerTickCommitsState(t *testing.T) {
	c, err := NewController(DefaultConfig())
	require.NoError(t, err)

	result, err := c.Tick(3600)
	require.NoError(t, err)
	assert.Equal(t, uint16(360), result.Interval)
	assert.Equal(t, State{
		Params:   Vector{2031, -991, 971},
		Features: Vector{1000, 756, -650},
		DCSmooth: 345,
	}, c.State())

	c.Reset()
	assert.Equal(t, initialState(), c.State())
}

func TestControllerFaultHandler(t *testing.T) {
	faults := []Fault{}
	c, err := NewController(DefaultConfig(), WithFaultHandler(func(f Fault) {
		faults = append(faults, f)
	}))
	require.NoError(t, err)

	_, err = c.Tick(3600)
	require.NoError(t, err)
	assert.Empty(t, faults)

	state := initialState()
	state.DCSmooth = 5000
	require.NoError(t, c.Restore(state))
	result, err := c.Tick(3600)
	require.NoError(t, err)
	assert.Equal(t, uint16(FallbackInterval), result.Interval)
	require.Len(t, faults, 1)
	assert.Equal(t, *result.Fault, faults[0])
}

func TestControllerRestoreRejectsDegenerateState(t *testing.T) {
	c, err := NewController(DefaultConfig())
	require.NoError(t, err)
	err = c.Restore(State{Params: DefaultInitVector, Features: Vector{}, DCSmooth: 300})
	assert.ErrorIs(t, err, ErrDivisionByZero)
	assert.Equal(t, initialState(), c.State())
}

func TestControllerConcurrentTicks(t *testing.T) {
	const ticks = 50

	sequential, err := NewController(DefaultConfig())
	require.NoError(t, err)
	for range ticks {
		_, err := sequential.Tick(3550)
		require.NoError(t, err)
	}

	concurrent, err := NewController(DefaultConfig())
	require.NoError(t, err)
	wg := sync.WaitGroup{}
	for range ticks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := concurrent.Tick(3550)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, sequential.State(), concurrent.State())
}

func TestControllerDecide(t *testing.T) {
	c, err := NewController(DefaultConfig())
	require.NoError(t, err)

	decision, err := c.Decide(3100)
	require.NoError(t, err)
	assert.Equal(t, ModeCritical, decision.Mode)
	assert.Equal(t, uint16(DefaultLowBatteryInterval), decision.Interval)
	assert.True(t, decision.RadioOff)
	assert.Nil(t, decision.Result)
	assert.Equal(t, initialState(), c.State())

	decision, err = c.Decide(3700)
	require.NoError(t, err)
	assert.Equal(t, ModeHigh, decision.Mode)
	assert.Equal(t, uint16(DefaultHighBatteryInterval), decision.Interval)
	assert.True(t, decision.RadioAlwaysOn)
	assert.Equal(t, initialState(), c.State())

	decision, err = c.Decide(3600)
	require.NoError(t, err)
	assert.Equal(t, ModeNormal, decision.Mode)
	assert.Equal(t, uint16(360), decision.Interval)
	require.NotNil(t, decision.Result)
	assert.Equal(t, int32(55), decision.Result.DCReal)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	c := DefaultConfig()
	c.Features = Vector{}
	assert.ErrorIs(t, c.Validate(), ErrDivisionByZero)

	c = DefaultConfig()
	c.Init = Vector{2000, 0, 1000}
	assert.Error(t, c.Validate())

	c = DefaultConfig()
	c.Thresholds.LowMillivolts = 3700
	assert.Error(t, c.Validate())

	c = DefaultConfig()
	c.Thresholds.HighInterval = 0
	assert.Error(t, c.Validate())

	_, err := NewController(c)
	assert.Error(t, err)
}
