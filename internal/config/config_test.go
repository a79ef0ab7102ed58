// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotandev/watpatch/internal/errors"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"LOG_LEVEL", "LOG_JSON", "PROFILE", "HISTORY_PATH", "TELEMETRY", "OTLP_ENDPOINT"} {
		t.Setenv(envPrefix+k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.ProfilePath)
	assert.Empty(t, cfg.HistoryPath)
	assert.False(t, cfg.TelemetryEnabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFilesThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	home := filepath.Join(dir, "home.toml")
	local := filepath.Join(dir, "local.toml")
	require.NoError(t, os.WriteFile(home, []byte(`
log_level = "warn"
history_path = "/var/lib/watpatch/history.db"
profile = "home-profile.toml"
`), 0644))
	require.NoError(t, os.WriteFile(local, []byte(`
profile = "local-profile.yaml"
`), 0644))
	t.Setenv("WATPATCH_LOG_LEVEL", "debug")
	t.Setenv("WATPATCH_TELEMETRY", "true")

	cfg, err := LoadFrom([]string{home, local, filepath.Join(dir, "missing.toml")})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "local-profile.yaml", cfg.ProfilePath)
	assert.Equal(t, "/var/lib/watpatch/history.db", cfg.HistoryPath)
	assert.True(t, cfg.TelemetryEnabled)
	assert.Equal(t, "localhost:4318", cfg.TelemetryEndpoint)
}

func TestLoadFromRejectsBadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("log_level = "), 0644))

	_, err := LoadFrom([]string{path})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConfig)
	assert.Contains(t, err.Error(), path)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"upper case level", &Config{LogLevel: "DEBUG"}, false},
		{"unknown level", &Config{LogLevel: "chatty"}, true},
		{"telemetry without endpoint", &Config{LogLevel: "info", TelemetryEnabled: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetBool(t *testing.T) {
	t.Setenv("WATPATCH_LOG_JSON", "no")
	assert.False(t, getBool("LOG_JSON", true))
	t.Setenv("WATPATCH_LOG_JSON", "1")
	assert.True(t, getBool("LOG_JSON", false))
	t.Setenv("WATPATCH_LOG_JSON", "")
	assert.True(t, getBool("LOG_JSON", true))
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoryPath = "h.db"
	assert.Equal(t, "Config{LogLevel: info, Profile: , History: h.db, Telemetry: false}", cfg.String())
}
