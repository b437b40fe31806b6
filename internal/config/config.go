// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads the thermometer daemon configuration.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/GermanBionicSystems/thermometer/ds18b20"
)

// Bus kinds.
const (
	BusOneWire = "onewire" // any bus registered in onewirereg, e.g. the Linux w1 netlink bus
	BusDS248x  = "ds248x"  // a ds248x bus master on an I²C bus
)

// BusConfig selects the 1-wire bus master.
type BusConfig struct {
	Kind string `mapstructure:"kind"`
	// Name of the onewirereg bus, empty for the first one.
	Name string `mapstructure:"name"`
	// I2CBus is the i2creg bus name used when Kind is ds248x.
	I2CBus        string `mapstructure:"i2cBus"`
	I2CAddr       uint16 `mapstructure:"i2cAddr"`
	PassivePullup bool   `mapstructure:"passivePullup"`
	// StrongPullup sends each command sequence as a single bus transaction
	// so conversions can power parasitic devices. Only meaningful for
	// ds248x; onewire buses always work this way.
	StrongPullup bool `mapstructure:"strongPullup"`
}

// SensorsConfig describes the sensors to poll and how to set them up.
type SensorsConfig struct {
	// Addresses pins the sensors to poll. When empty they are searched for
	// once at startup.
	Addresses []string `mapstructure:"addresses"`
	// Configure writes AlarmHigh, AlarmLow and Resolution to every sensor
	// at startup.
	Configure  bool `mapstructure:"configure"`
	AlarmHigh  int  `mapstructure:"alarmHigh"`
	AlarmLow   int  `mapstructure:"alarmLow"`
	Resolution int  `mapstructure:"resolution"` // bits, 9..12
	// ResolutionAware waits only as long as the configured resolution
	// requires after starting a conversion.
	ResolutionAware bool `mapstructure:"resolutionAware"`
}

// PollConfig paces the polling loop.
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// LumberjackConfig is the rotated log file.
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig sets the log level and outputs.
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"` // json or console
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig exposes prometheus metrics over HTTP.
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Addr   string `mapstructure:"addr"`
	Path   string `mapstructure:"path"`
}

// Config is the top level configuration.
type Config struct {
	Bus     BusConfig     `mapstructure:"bus"`
	Sensors SensorsConfig `mapstructure:"sensors"`
	Poll    PollConfig    `mapstructure:"poll"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// Load reads the configuration from path and THERMO_ prefixed environment
// variables, THERMO_POLL_INTERVAL overriding poll.interval for example.
//
// If path is empty, THERMO_CONFIG is used, then thermometer.yaml in the
// current directory or ./configs. A missing file is not an error in that
// case, the defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("THERMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("thermometer")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bus.kind", BusOneWire)
	v.SetDefault("bus.name", "")
	v.SetDefault("bus.i2cBus", "")
	v.SetDefault("bus.i2cAddr", 0x18)
	v.SetDefault("bus.passivePullup", false)
	v.SetDefault("bus.strongPullup", true)

	v.SetDefault("sensors.configure", false)
	v.SetDefault("sensors.alarmHigh", 30)
	v.SetDefault("sensors.alarmLow", 10)
	v.SetDefault("sensors.resolution", 12)
	v.SetDefault("sensors.resolutionAware", false)

	v.SetDefault("poll.interval", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("metrics.enable", false)
	v.SetDefault("metrics.addr", ":9100")
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks the values that cannot be checked by the type system.
func (c *Config) Validate() error {
	switch c.Bus.Kind {
	case BusOneWire, BusDS248x:
	default:
		return fmt.Errorf("config: unknown bus kind %q", c.Bus.Kind)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("config: invalid poll interval %s", c.Poll.Interval)
	}
	if _, err := c.Sensors.ParseAddresses(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.Sensors.Scratchpad(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ParseAddresses returns the pinned sensor addresses.
func (s *SensorsConfig) ParseAddresses() ([]ds18b20.Address, error) {
	out := make([]ds18b20.Address, 0, len(s.Addresses))
	for _, str := range s.Addresses {
		a, err := ds18b20.ParseAddress(str)
		if err != nil {
			return nil, err
		}
		if err := a.Check(); err != nil {
			return nil, fmt.Errorf("address %s: %w", a, err)
		}
		if f := a.FamilyCode(); f != ds18b20.FamilyCode {
			return nil, fmt.Errorf("address %s is a %s", a, f)
		}
		out = append(out, a)
	}
	return out, nil
}

// Scratchpad returns the values to write to the sensors at startup.
func (s *SensorsConfig) Scratchpad() (ds18b20.Scratchpad, error) {
	r, err := ds18b20.ResolutionFromBits(s.Resolution)
	if err != nil {
		return ds18b20.Scratchpad{}, err
	}
	for _, v := range []int{s.AlarmHigh, s.AlarmLow} {
		if v < math.MinInt8 || v > math.MaxInt8 {
			return ds18b20.Scratchpad{}, fmt.Errorf("alarm threshold %d out of range", v)
		}
	}
	if s.AlarmLow > s.AlarmHigh {
		return ds18b20.Scratchpad{}, fmt.Errorf("alarm low %d above alarm high %d", s.AlarmLow, s.AlarmHigh)
	}
	return ds18b20.Scratchpad{
		AlarmHigh:     int8(s.AlarmHigh),
		AlarmLow:      int8(s.AlarmLow),
		Configuration: ds18b20.ConfigurationRegister{Resolution: r},
	}, nil
}
