// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/dotandev/watpatch/internal/errors"
)

const envPrefix = "WATPATCH_"

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Config holds the ambient settings of watpatch. None of them change what a
// patch produces; the profile does that.
type Config struct {
	LogLevel string `toml:"log_level"`
	LogJSON  bool   `toml:"log_json"`
	// ProfilePath selects a TOML or YAML profile instead of the built-in one.
	ProfilePath string `toml:"profile"`
	// HistoryPath enables the run history database when non-empty.
	HistoryPath string `toml:"history_path"`

	TelemetryEnabled  bool   `toml:"telemetry"`
	TelemetryEndpoint string `toml:"otlp_endpoint"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:          "info",
		TelemetryEndpoint: "localhost:4318",
	}
}

// DefaultPaths lists config files in increasing precedence.
func DefaultPaths() []string {
	paths := []string{}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".watpatch.toml"))
	}
	return append(paths, ".watpatch.toml")
}

// Load reads .env, the default config files and WATPATCH_* variables.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFrom(DefaultPaths())
}

// LoadFrom applies defaults, then each existing file in paths, then the
// environment, and validates the result.
func LoadFrom(paths []string) (*Config, error) {
	cfg := DefaultConfig()
	for _, path := range paths {
		if err := cfg.loadTOML(path); err != nil {
			return nil, err
		}
	}
	cfg.loadEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadTOML(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if _, err := toml.DecodeFile(path, c); err != nil {
		return errors.WrapConfigError("failed to parse config file "+path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.ProfilePath = getEnv("PROFILE", c.ProfilePath)
	c.HistoryPath = getEnv("HISTORY_PATH", c.HistoryPath)
	c.TelemetryEndpoint = getEnv("OTLP_ENDPOINT", c.TelemetryEndpoint)
	c.LogJSON = getBool("LOG_JSON", c.LogJSON)
	c.TelemetryEnabled = getBool("TELEMETRY", c.TelemetryEnabled)
}

func (c *Config) Validate() error {
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return errors.WrapConfigError("log_level", fmt.Errorf("unknown level %q", c.LogLevel))
	}
	if c.TelemetryEnabled && c.TelemetryEndpoint == "" {
		return errors.WrapConfigError("otlp_endpoint", fmt.Errorf("required when telemetry is enabled"))
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{LogLevel: %s, Profile: %s, History: %s, Telemetry: %t}",
		c.LogLevel, c.ProfilePath, c.HistoryPath, c.TelemetryEnabled,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(envPrefix + key)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return defaultValue
}
