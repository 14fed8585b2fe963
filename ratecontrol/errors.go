package ratecontrol

import (
	"errors"
	"fmt"
)

var (
	// ErrDivisionByZero means the feature vector is degenerate or the second
	// parameter is zero. The tick is abandoned and the state left untouched.
	ErrDivisionByZero = errors.New("division by zero")
	ErrLengthMismatch = errors.New("vector lengths differ")
)

// Fault describes a duty cycle that left its operating envelope. It is absorbed
// by substituting FallbackInterval and is never returned as a tick error.
type Fault struct {
	DC       int32
	DCSmooth int32
	DCReal   int32
}

func (f Fault) Error() string {
	return fmt.Sprintf("invalid send interval, duty cycle %d out of range [0, %d] (dc: %d, dc smooth: %d)",
		f.DCReal, DutyCycleRealMax, f.DC, f.DCSmooth)
}
