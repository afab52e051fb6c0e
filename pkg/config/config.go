// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

// Package config resolves the tool configuration from defaults, an
// optional lnmon.yaml in the working directory, LNMON_* environment
// variables and command line flags, in rising order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Defaults for the connection and reporting settings.
const (
	DefaultPort           = "/dev/ttyACM0"
	DefaultBaud           = 57600
	DefaultCaptureFile    = "lnmon.capture"
	DefaultReportInterval = 30 * time.Second
	DefaultListen         = ":8081"
	DefaultLogLevel       = "info"
)

// Config is the resolved tool configuration. Keys match the command line
// flag names.
type Config struct {
	Port           string        `mapstructure:"port"`
	Baud           int           `mapstructure:"baud"`
	Capture        bool          `mapstructure:"capture"`
	CaptureFile    string        `mapstructure:"capture-file"`
	Timestamp      bool          `mapstructure:"timestamp"`
	Replay         bool          `mapstructure:"replay"`
	Fast           bool          `mapstructure:"fast"`
	Dummy          bool          `mapstructure:"dummy"`
	ReportInterval time.Duration `mapstructure:"report-interval"`
	Listen         string        `mapstructure:"listen"`
	LogFile        string        `mapstructure:"log-file"`
	LogLevel       string        `mapstructure:"log-level"`
}

// Load resolves the configuration. flags may be nil when no command line
// is involved; a missing lnmon.yaml is not an error.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LNMON")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("lnmon")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", DefaultPort)
	v.SetDefault("baud", DefaultBaud)
	v.SetDefault("capture", false)
	v.SetDefault("capture-file", DefaultCaptureFile)
	v.SetDefault("timestamp", false)
	v.SetDefault("replay", false)
	v.SetDefault("fast", false)
	v.SetDefault("dummy", false)
	v.SetDefault("report-interval", DefaultReportInterval)
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("log-file", "")
	v.SetDefault("log-level", DefaultLogLevel)
}
