package ratecontrol

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDot(t *testing.T) {
	sum, err := Dot([]int16{700, 200, -650}, []int16{2000, -1000, 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(550_000), sum)

	sum, err = Dot([]int16{700, 200, -650}, []int16{700, 200, -650})
	require.NoError(t, err)
	assert.Equal(t, int64(952_500), sum)

	sum, err = Dot(nil, nil)
	require.NoError(t, err)
	assert.Zero(t, sum)
}

func TestDotLengthMismatch(t *testing.T) {
	_, err := Dot([]int16{1, 2, 3}, []int16{1, 2})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestDotCommutativeAndLinear(t *testing.T) {
	vectors := [][]int16{
		{0, 0, 0},
		{1, 2, 3},
		{-5, 6, -7},
		{700, 200, -650},
		{2000, -1000, 1000},
		{1000, 1000, -650},
	}
	for _, a := range vectors {
		for _, b := range vectors {
			ab, err := Dot(a, b)
			require.NoError(t, err)
			ba, err := Dot(b, a)
			require.NoError(t, err)
			assert.Equal(t, ab, ba)

			for _, c := range vectors {
				bc := make([]int16, len(b))
				for i := range b {
					bc[i] = b[i] + c[i]
				}
				left, err := Dot(a, bc)
				require.NoError(t, err)
				ac, err := Dot(a, c)
				require.NoError(t, err)
				assert.Equal(t, ab+ac, left, "dot(%v, %v+%v)", a, b, c)
			}
		}
	}
}

func TestDotDoesNotOverflowAtExtremes(t *testing.T) {
	a := []int16{math.MinInt16, math.MinInt16, math.MinInt16}
	sum, err := Dot(a, a)
	require.NoError(t, err)
	assert.Equal(t, int64(3)*int64(math.MinInt16)*int64(math.MinInt16), sum)
}

func TestVectorString(t *testing.T) {
	assert.Equal(t, "[2000 -1000 1000]", DefaultInitVector.String())
}
