// Package config provides configuration management for driftsync.
//
// The config file carries server and runner settings only. Controller
// credentials are never read from it: token and password material comes
// exclusively from environment variables at scan time.
//
// Config file locations (priority order):
//  1. $DRIFTSYNC_CONFIG
//  2. ./driftsync.yaml
//  3. ~/.config/driftsync/config.yaml
//  4. /etc/driftsync/config.yaml
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	Listen   string         `yaml:"listen"`
	Database DatabaseConfig `yaml:"database"`
	Runner   RunnerConfig   `yaml:"runner"`
	LogLevel string         `yaml:"log_level"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RunnerConfig holds scan job runner settings
type RunnerConfig struct {
	MaxRuntime    Duration `yaml:"max_runtime"`
	SweepInterval Duration `yaml:"sweep_interval"`
	TickInterval  Duration `yaml:"tick_interval"`
}

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, path, nil
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./driftsync.db"
	}
	if c.Runner.MaxRuntime == 0 {
		c.Runner.MaxRuntime = Duration(30 * time.Minute)
	}
	if c.Runner.SweepInterval == 0 {
		c.Runner.SweepInterval = Duration(5 * time.Minute)
	}
	if c.Runner.TickInterval == 0 {
		c.Runner.TickInterval = Duration(time.Minute)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
