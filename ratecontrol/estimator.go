package ratecontrol

import (
	"fmt"
	"math"
	"strings"
)

// ResetMask records which parameter elements were reset to their init value
// during an update. Bit i is set when element i was reset.
type ResetMask uint8

func (m ResetMask) Has(i int) bool {
	return m&(1<<i) != 0
}

func (m ResetMask) Count() int {
	n := 0
	for i := range len(Vector{}) {
		if m.Has(i) {
			n++
		}
	}
	return n
}

func (m ResetMask) String() string {
	if m == 0 {
		return "none"
	}
	parts := []string{}
	for i := range len(Vector{}) {
		if m.Has(i) {
			parts = append(parts, fmt.Sprintf("param[%d]", i))
		}
	}
	return strings.Join(parts, ", ")
}

// UpdateParameters runs one fixed point gradient step of the parameter vector
// towards values that better predict the battery level from the features.
//
// Element signs must alternate (+, -, +) after the update. An element that
// breaks the pattern, or no longer fits in 16 bits, is replaced by the
// matching element of init. The inputs are not modified.
func UpdateParameters(params, features, init Vector, level int16) (Vector, ResetMask, error) {
	denom := features.dot(features)
	if denom == 0 {
		return params, 0, fmt.Errorf("feature vector %s has zero magnitude: %w", features, ErrDivisionByZero)
	}
	gain := StepScaled / denom
	residual := int64(level) - features.dot(params)/Scale
	delta := gain * residual / GainDivisor

	var resets ResetMask
	updated := params
	sign := int64(1)
	for i := range updated {
		v := int64(params[i]) + int64(features[i])*delta/(GainDivisor*Scale)
		if v*sign <= 0 || v > math.MaxInt16 || v < math.MinInt16 {
			updated[i] = init[i]
			resets |= 1 << i
		} else {
			updated[i] = int16(v)
		}
		sign = -sign
	}
	return updated, resets, nil
}
