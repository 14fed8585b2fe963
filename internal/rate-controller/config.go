package ratecontroller

import (
	"errors"
	"fmt"
	"time"

	"github.com/TheCacophonyProject/tc2-rate-controller/battery"
	"github.com/TheCacophonyProject/tc2-rate-controller/ratecontrol"
	"github.com/spf13/viper"
)

const (
	configKey        = "rate-controller"
	configName       = "config"
	configType       = "toml"
	DefaultConfigDir = "/etc/cacophony"

	ReaderDBus = "dbus"
	ReaderI2C  = "i2c"
)

type Config struct {
	TickInterval   time.Duration `mapstructure:"tick-interval"`
	StateFile      string        `mapstructure:"state-file"`
	MetricsAddress string        `mapstructure:"metrics-address"`
	Reader         string        `mapstructure:"reader"`
	I2CBus         string        `mapstructure:"i2c-bus"`
	I2CAddress     uint16        `mapstructure:"i2c-address"`
	I2CRegister    uint8         `mapstructure:"i2c-register"`
	InitVector     []int16       `mapstructure:"init-vector"`
	FeatureVector  []int16       `mapstructure:"feature-vector"`
	DCSmooth       int32         `mapstructure:"dc-smooth"`

	ratecontrol.Thresholds `mapstructure:",squash"`
}

func DefaultConfig() Config {
	return Config{
		TickInterval: 5 * time.Second,
		StateFile:    "/var/lib/tc2-rate-controller/state.json",
		Reader:       ReaderDBus,
		I2CAddress:   battery.DefaultADCAddress,
		I2CRegister:  battery.DefaultADCRegister,
		DCSmooth:     ratecontrol.DefaultDCSmooth,
		Thresholds:   ratecontrol.DefaultThresholds(),
	}
}

// ParseConfig reads the [rate-controller] section of config.toml in
// configDir. A missing file gives the defaults.
func ParseConfig(configDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(configDir)

	conf := DefaultConfig()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config from %s: %w", configDir, err)
		}
	}
	if err := v.UnmarshalKey(configKey, &conf); err != nil {
		return nil, fmt.Errorf("failed to parse %s config: %w", configKey, err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

func toVector(name string, values []int16, fallback ratecontrol.Vector) (ratecontrol.Vector, error) {
	if len(values) == 0 {
		return fallback, nil
	}
	v := ratecontrol.Vector{}
	if len(values) != len(v) {
		return v, fmt.Errorf("%s needs %d elements, got %d", name, len(v), len(values))
	}
	copy(v[:], values)
	return v, nil
}

// Controller returns the rate controller configuration.
func (c Config) Controller() (ratecontrol.Config, error) {
	init, err := toVector("init-vector", c.InitVector, ratecontrol.DefaultInitVector)
	if err != nil {
		return ratecontrol.Config{}, err
	}
	features, err := toVector("feature-vector", c.FeatureVector, ratecontrol.DefaultFeatureVector)
	if err != nil {
		return ratecontrol.Config{}, err
	}
	return ratecontrol.Config{
		Init:       init,
		Features:   features,
		DCSmooth:   c.DCSmooth,
		Thresholds: c.Thresholds,
	}, nil
}

func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick-interval must be positive, got %s", c.TickInterval)
	}
	if c.Reader != ReaderDBus && c.Reader != ReaderI2C {
		return fmt.Errorf("unknown reader '%s', expected '%s' or '%s'", c.Reader, ReaderDBus, ReaderI2C)
	}
	if c.Reader == ReaderDBus && c.I2CAddress > 0xFF {
		return fmt.Errorf("i2c-address 0x%X does not fit in a byte", c.I2CAddress)
	}
	rc, err := c.Controller()
	if err != nil {
		return err
	}
	return rc.Validate()
}
