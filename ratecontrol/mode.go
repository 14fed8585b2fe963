package ratecontrol

import "fmt"

type Mode uint8

const (
	ModeNormal Mode = iota
	ModeCritical
	ModeHigh
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "Normal_op"
	case ModeCritical:
		return "Lo_bat"
	case ModeHigh:
		return "Hi_bat"
	default:
		return fmt.Sprintf("Unknown mode %d", uint8(m))
	}
}

// Thresholds selects the battery mode and the fixed intervals used outside
// normal mode.
type Thresholds struct {
	LowMillivolts  uint16 `mapstructure:"low-battery-mv"`
	HighMillivolts uint16 `mapstructure:"high-battery-mv"`
	LowInterval    uint16 `mapstructure:"low-battery-interval"`
	HighInterval   uint16 `mapstructure:"high-battery-interval"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		LowMillivolts:  DefaultLowBatteryMillivolts,
		HighMillivolts: DefaultHighBatteryMillivolts,
		LowInterval:    DefaultLowBatteryInterval,
		HighInterval:   DefaultHighBatteryInterval,
	}
}

func (t Thresholds) Validate() error {
	if t.LowMillivolts >= t.HighMillivolts {
		return fmt.Errorf("low battery threshold %dmV must be below high battery threshold %dmV", t.LowMillivolts, t.HighMillivolts)
	}
	if t.LowInterval == 0 || t.HighInterval == 0 {
		return fmt.Errorf("battery mode intervals must be non zero")
	}
	return nil
}

// SelectMode picks the battery mode for a millivolt estimate. The rate
// controller only runs in normal mode.
func SelectMode(mv uint16, t Thresholds) Mode {
	switch {
	case mv < t.LowMillivolts:
		return ModeCritical
	case mv > t.HighMillivolts:
		return ModeHigh
	default:
		return ModeNormal
	}
}
