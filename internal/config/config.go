// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package config loads the ttictl configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values
const (
	EnvHost     = "TTI_HOST"
	EnvPort     = "TTI_PORT"
	EnvLogLevel = "TTI_LOG_LEVEL"
)

// Instrument models
const (
	ModelCPX = "cpx"
	ModelPL  = "pl"
)

// Duration is a time.Duration decoded from a string such as "5s"
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML accepts duration strings
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

type Config struct {
	Instrument InstrumentConfig `yaml:"instrument" toml:"instrument"`
	Log        LogConfig        `yaml:"log" toml:"log"`
	Monitor    MonitorConfig    `yaml:"monitor" toml:"monitor"`
	Redis      RedisConfig      `yaml:"redis" toml:"redis"`
}

type InstrumentConfig struct {
	Host           string   `yaml:"host" toml:"host"`
	Port           int      `yaml:"port" toml:"port"`
	Model          string   `yaml:"model" toml:"model"`
	Outputs        int      `yaml:"outputs" toml:"outputs"`
	ConnectTimeout Duration `yaml:"connect_timeout" toml:"connect_timeout"`
	ReadTimeout    Duration `yaml:"read_timeout" toml:"read_timeout"`
	// Serial device path, used instead of Host when set
	Serial string `yaml:"serial" toml:"serial"`
}

type LogConfig struct {
	Level    string `yaml:"level" toml:"level"`
	Format   string `yaml:"format" toml:"format"`
	Output   string `yaml:"output" toml:"output"`
	FilePath string `yaml:"file_path" toml:"file_path"`
	// Wire traffic is logged at debug level when true
	Wire bool `yaml:"wire" toml:"wire"`
}

type MonitorConfig struct {
	Listen   string   `yaml:"listen" toml:"listen"`
	Interval Duration `yaml:"interval" toml:"interval"`
}

// RedisConfig enables reading publication when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
	Channel  string `yaml:"channel" toml:"channel"`
	ListKey  string `yaml:"list_key" toml:"list_key"`
	MaxLen   int64  `yaml:"max_len" toml:"max_len"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Instrument: InstrumentConfig{
			Port:           9221,
			Model:          ModelCPX,
			Outputs:        1,
			ConnectTimeout: Duration{10 * time.Second},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Monitor: MonitorConfig{
			Listen:   ":9090",
			Interval: Duration{5 * time.Second},
		},
		Redis: RedisConfig{
			Channel: "tti_readings",
			ListKey: "tti_readings_history",
			MaxLen:  1000,
		},
	}
}

// Load reads path on top of the defaults, applies environment overrides
// and validates the result. An empty path loads no file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config load failed (%s): %w", path, err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvHost); ok && v != "" {
		c.Instrument.Host = v
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		c.Instrument.Port = port
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks value ranges. The instrument host is not required here
// since commands such as the simulator do not need one.
func (c *Config) Validate() error {
	in := c.Instrument
	if in.Port <= 0 || in.Port > 65535 {
		return fmt.Errorf("instrument: invalid port %d", in.Port)
	}
	switch in.Model {
	case ModelCPX, ModelPL:
	default:
		return fmt.Errorf("instrument: unknown model %q", in.Model)
	}
	if in.Outputs < 1 || in.Outputs > 3 {
		return fmt.Errorf("instrument: invalid number of outputs %d", in.Outputs)
	}
	if in.ConnectTimeout.Duration <= 0 {
		return fmt.Errorf("instrument: invalid connect timeout %s", in.ConnectTimeout.Duration)
	}
	if in.ReadTimeout.Duration < 0 {
		return fmt.Errorf("instrument: invalid read timeout %s", in.ReadTimeout.Duration)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log: unknown format %q", c.Log.Format)
	}
	if c.Log.Output == "file" && strings.TrimSpace(c.Log.FilePath) == "" {
		return fmt.Errorf("log: file_path required when output is file")
	}
	if c.Monitor.Interval.Duration <= 0 {
		return fmt.Errorf("monitor: invalid interval %s", c.Monitor.Interval.Duration)
	}
	if c.Redis.Addr != "" && strings.TrimSpace(c.Redis.Channel) == "" && strings.TrimSpace(c.Redis.ListKey) == "" {
		return fmt.Errorf("redis: channel or list_key required")
	}
	return nil
}
