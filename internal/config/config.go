// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides, e.g. SIGNALBOX_BUS_PORT
const EnvPrefix = "SIGNALBOX"

type Config struct {
	Bus     BusConfig     `mapstructure:"bus"`
	CMRI    CMRIConfig    `mapstructure:"cmri"`
	Store   StoreConfig   `mapstructure:"store"`
	Loop    LoopConfig    `mapstructure:"loop"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

type BusConfig struct {
	Port     string        `mapstructure:"port"`
	Baud     int           `mapstructure:"baud"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Simulate bool          `mapstructure:"simulate"`
}

type CMRIConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Port        string `mapstructure:"port"`
	Baud        int    `mapstructure:"baud"`
	URL         string `mapstructure:"url"`
	Username    string `mapstructure:"username"`
	NoSSLVerify bool   `mapstructure:"no_ssl_verify"`
	Address     uint8  `mapstructure:"address"`
	InputNodes  int    `mapstructure:"input_nodes"`
	OutputNodes int    `mapstructure:"output_nodes"`
}

type StoreConfig struct {
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"in_memory"`
}

type LoopConfig struct {
	Tick           time.Duration `mapstructure:"tick"`
	ScanInterval   time.Duration `mapstructure:"scan_interval"`
	RescanInterval time.Duration `mapstructure:"rescan_interval"`
	WarningDelay   time.Duration `mapstructure:"warning_delay"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// SetDefaults registers a default for every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("bus.port", "")
	v.SetDefault("bus.baud", 115200)
	v.SetDefault("bus.timeout", "50ms")
	v.SetDefault("bus.simulate", false)

	v.SetDefault("cmri.enabled", false)
	v.SetDefault("cmri.port", "")
	v.SetDefault("cmri.baud", 9600)
	v.SetDefault("cmri.url", "")
	v.SetDefault("cmri.username", "")
	v.SetDefault("cmri.no_ssl_verify", false)
	v.SetDefault("cmri.address", 0)
	v.SetDefault("cmri.input_nodes", 16)
	v.SetDefault("cmri.output_nodes", 32)

	v.SetDefault("store.path", "signalbox.db")
	v.SetDefault("store.in_memory", false)

	v.SetDefault("loop.tick", "1ms")
	v.SetDefault("loop.scan_interval", "20ms")
	v.SetDefault("loop.rescan_interval", "5s")
	v.SetDefault("loop.warning_delay", "500ms")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads configuration into v from path, or from signalbox.yaml in the
// working directory or ~/.config/signalbox when path is empty. A missing
// default file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("signalbox")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/signalbox")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the settings needed to run against a bus
func (c *Config) Validate() error {
	if c.Bus.Port == "" && !c.Bus.Simulate {
		return errors.New("bus.port is required unless bus.simulate is set")
	}
	if c.CMRI.Enabled && c.CMRI.Port == "" && c.CMRI.URL == "" {
		return errors.New("cmri.port or cmri.url is required when cmri is enabled")
	}
	if c.CMRI.InputNodes < 0 || c.CMRI.InputNodes > 16 {
		return fmt.Errorf("cmri.input_nodes %d out of range 0-16", c.CMRI.InputNodes)
	}
	if c.CMRI.OutputNodes < 0 || c.CMRI.OutputNodes > 32 {
		return fmt.Errorf("cmri.output_nodes %d out of range 0-32", c.CMRI.OutputNodes)
	}
	if c.Loop.Tick <= 0 {
		return errors.New("loop.tick must be positive")
	}
	return nil
}

// Logger builds the zap logger described by the log section
func (c *LogConfig) Logger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log.level %q: %w", c.Level, err)
	}
	zc.Level = level

	return zc.Build()
}

// Effective renders every setting v resolved, after defaults, file and
// environment are merged
func Effective(v *viper.Viper) ([]byte, error) {
	return yaml.Marshal(v.AllSettings())
}
