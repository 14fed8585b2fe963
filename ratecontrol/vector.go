package ratecontrol

import "fmt"

// Vector holds the three fixed point elements of the parameter, init and
// feature vectors.
type Vector [3]int16

// Dot returns the sum of the pairwise products of a and b, accumulated in 64 bits.
func Dot(a, b []int16) (int64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d and %d", ErrLengthMismatch, len(a), len(b))
	}
	var sum int64
	for i := range a {
		sum += int64(a[i]) * int64(b[i])
	}
	return sum, nil
}

func (v Vector) dot(o Vector) int64 {
	// Lengths always match for fixed size vectors.
	sum, _ := Dot(v[:], o[:])
	return sum
}

func (v Vector) String() string {
	return fmt.Sprintf("[%d %d %d]", v[0], v[1], v[2])
}
