package ratecontrol

import "fmt"

// DutyCycle is the outcome of one duty cycle computation.
type DutyCycle struct {
	// DC is the clamped per mille duty cycle.
	DC int32
	// Smooth is the exponentially smoothed duty cycle to carry into the next tick.
	Smooth int32
	// Real blends DC and Smooth onto a 0-100 scale.
	Real int32
	// Features is the feature vector for the next parameter update.
	Features Vector
}

// ComputeDutyCycle derives the duty cycle from freshly updated parameters
// and the current battery level, then smooths it against the previous tick.
func ComputeDutyCycle(params Vector, level int16, dcSmooth int32) (DutyCycle, error) {
	if params[1] == 0 {
		return DutyCycle{}, fmt.Errorf("param[1] is zero in %s: %w", params, ErrDivisionByZero)
	}
	num := int64(TargetLevel)*Scale - int64(params[0])*int64(level) + int64(params[2])*TargetLevel
	dc := num / int64(params[1])
	if dc < 0 {
		dc = 0
	} else if dc > DutyCycleMax {
		dc = DutyCycleMax
	}

	smooth := int64(dcSmooth) + (dc-int64(dcSmooth))/AlphaInv
	blended := (dc/2 + smooth/2) / dutyCycleRealDivisor

	return DutyCycle{
		DC:       int32(dc),
		Smooth:   int32(smooth),
		Real:     int32(blended),
		Features: Vector{level, int16(dc), -TargetLevel},
	}, nil
}

// SendInterval maps the blended duty cycle onto a send interval in ticks.
// A duty cycle outside [0, 100] returns FallbackInterval and false.
func SendInterval(dcReal int32) (uint16, bool) {
	switch {
	case dcReal < 0 || dcReal > DutyCycleRealMax:
		return FallbackInterval, false
	case dcReal == 0:
		return MinInterval, true
	}
	interval := (DutyCycleRealMax - dcReal) * TicksPerDutyStep
	if interval < MinInterval {
		interval = MinInterval
	} else if interval > MaxInterval {
		interval = MaxInterval
	}
	return uint16(interval), true
}
