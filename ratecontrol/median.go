package ratecontrol

import (
	"math"
	"sort"
)

// RawSampleBatch is one tick's worth of raw ADC counts.
type RawSampleBatch [SamplesPerEstimate]uint16

// ToMillivolts converts a raw ADC count to millivolts, truncating. Counts far
// beyond the 12 bit range saturate instead of wrapping.
func ToMillivolts(raw uint16) uint16 {
	mv := uint32(raw) * AdcReferenceMillivolts / AdcResolution
	if mv > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(mv)
}

// MedianMillivolts returns the median of the batch after scaling each count
// to millivolts. A single outlier sample can not move the result.
func MedianMillivolts(batch RawSampleBatch) uint16 {
	var scaled [SamplesPerEstimate]uint16
	for i, raw := range batch {
		scaled[i] = ToMillivolts(raw)
	}
	s := scaled[:]
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	return s[medianIndex]
}

// Level maps a millivolt estimate onto the 0-1000 battery level used by the
// estimator. 3400 mV and below is 0, 3600 mV and above is 1000.
func Level(mv uint16) int16 {
	level := (int32(mv) - EmptyMillivolts) / millivoltsPerStep * levelPerStep
	if level > LevelMax {
		return LevelMax
	}
	if level < 0 {
		return 0
	}
	return int16(level)
}
