// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/blinklabs-io/gotransfer"
	"github.com/spf13/viper"
)

const envPrefix = "GOTRANSFER"

type Config struct {
	Listen   string         `mapstructure:"listen"`
	Address  string         `mapstructure:"address"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Transfer ProtocolConfig `mapstructure:"transfer"`
	Uri      ProtocolConfig `mapstructure:"uri"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

type ProtocolConfig struct {
	Version uint16 `mapstructure:"version"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("listen", "127.0.0.1:3030")
	v.SetDefault("address", "127.0.0.1:3030")
	v.SetDefault("timeout", 3*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.listen", "")
	v.SetDefault("transfer.version", gotransfer.DefaultTransferVersion)
	v.SetDefault("uri.version", gotransfer.DefaultUriVersion)
	// Environment variables use the GOTRANSFER_ prefix and underscores
	// Example: GOTRANSFER_LOG_LEVEL=debug
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig reads the config file, if any, and applies environment overrides
func loadConfig(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFoundErr viper.ConfigFileNotFoundError
			if errors.As(err, &notFoundErr) || os.IsNotExist(err) {
				return nil, fmt.Errorf("configuration file not found: %s", configPath)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("invalid timeout: %s", cfg.Timeout)
	}
	return &cfg, nil
}

// newLogger returns a text logger at the configured level
func newLogger(cfg *Config) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	return slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	), nil
}
