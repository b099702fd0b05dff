// Package config loads collabd's settings from, in increasing priority,
// built-in defaults, an optional YAML file, and command-line flags. Each
// layer only overrides a field the layer above left at its zero value,
// the same three-tier merge shape used by cmd/collabd's flag parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every server tunable.
type Config struct {
	ListenAddress     string        `yaml:"listen_address"`
	HeartbitInterval  time.Duration `yaml:"heartbit_interval"`
	DocumentLimit     int           `yaml:"document_limit"`
	LogBytesThreshold int64         `yaml:"log_bytes_threshold"`
	LogOpsThreshold   int           `yaml:"log_ops_threshold"`
	RoomIdleTTL       time.Duration `yaml:"room_idle_ttl"`
	RoomMaxAge        time.Duration `yaml:"room_max_age"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	PersistDir        string        `yaml:"persist_dir"`
	Greeting          string        `yaml:"greeting"`
	LogLevel          string        `yaml:"log_level"`
	LogFile           string        `yaml:"log_file"`
	RateLimitPerSec   float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst    int           `yaml:"rate_limit_burst"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddress:     ":8080",
		HeartbitInterval:  5 * time.Second,
		DocumentLimit:     100_000,
		LogBytesThreshold: 256 * 1024,
		LogOpsThreshold:   10_000,
		RoomIdleTTL:       time.Hour,
		RoomMaxAge:        7 * 24 * time.Hour,
		SweepInterval:     5 * time.Minute,
		PersistDir:        "./data",
		LogLevel:          "info",
		RateLimitPerSec:   5,
		RateLimitBurst:    10,
	}
}

// LoadFile reads a YAML config file and overlays its non-zero fields onto
// base. A missing file is not an error; it simply leaves base unchanged.
func LoadFile(base Config, path string) (Config, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return base, fmt.Errorf("config: read %s: %w", path, err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return base, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return merge(base, file), nil
}

// merge returns a Config with every non-zero field of override replacing
// the corresponding field of base.
func merge(base, override Config) Config {
	out := base
	if override.ListenAddress != "" {
		out.ListenAddress = override.ListenAddress
	}
	if override.HeartbitInterval != 0 {
		out.HeartbitInterval = override.HeartbitInterval
	}
	if override.DocumentLimit != 0 {
		out.DocumentLimit = override.DocumentLimit
	}
	if override.LogBytesThreshold != 0 {
		out.LogBytesThreshold = override.LogBytesThreshold
	}
	if override.LogOpsThreshold != 0 {
		out.LogOpsThreshold = override.LogOpsThreshold
	}
	if override.RoomIdleTTL != 0 {
		out.RoomIdleTTL = override.RoomIdleTTL
	}
	if override.RoomMaxAge != 0 {
		out.RoomMaxAge = override.RoomMaxAge
	}
	if override.SweepInterval != 0 {
		out.SweepInterval = override.SweepInterval
	}
	if override.PersistDir != "" {
		out.PersistDir = override.PersistDir
	}
	if override.Greeting != "" {
		out.Greeting = override.Greeting
	}
	if override.LogLevel != "" {
		out.LogLevel = override.LogLevel
	}
	if override.LogFile != "" {
		out.LogFile = override.LogFile
	}
	if override.RateLimitPerSec != 0 {
		out.RateLimitPerSec = override.RateLimitPerSec
	}
	if override.RateLimitBurst != 0 {
		out.RateLimitBurst = override.RateLimitBurst
	}
	return out
}
