// SPDX-FileCopyrightText: 2025 The Ryzen Power Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"strings"
	"testing"

	"github.com/alecthomas/kingpin/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 0.5, cfg.Sample.Duration)
	assert.Equal(t, "/sys", cfg.Host.SysFS)
	assert.Equal(t, "/proc", cfg.Host.ProcFS)
	assert.Equal(t, "/dev/cpu/%d/msr", cfg.Host.MSRPath)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("valid yaml overrides defaults", func(t *testing.T) {
		yamlData := `
log:
  level: debug
  format: json
sample:
  duration: 2.5
host:
  sysfs: /custom/sys
`
		cfg, err := Load(strings.NewReader(yamlData))
		require.NoError(t, err)

		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "json", cfg.Log.Format)
		assert.Equal(t, 2.5, cfg.Sample.Duration)
		assert.Equal(t, "/custom/sys", cfg.Host.SysFS)
		// untouched sections keep defaults
		assert.Equal(t, "/dev/cpu/%d/msr", cfg.Host.MSRPath)
	})

	t.Run("partial yaml keeps defaults", func(t *testing.T) {
		cfg, err := Load(strings.NewReader("log: {level: warn}"))
		require.NoError(t, err)
		assert.Equal(t, "warn", cfg.Log.Level)
		assert.Equal(t, 0.5, cfg.Sample.Duration)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := Load(strings.NewReader("log: ["))
		assert.Error(t, err)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		_, err := Load(strings.NewReader("sample: {duration: -1}"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duration must be positive")
	})
}

func TestFromFile(t *testing.T) {
	_, err := FromFile("/non/existent/path.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{{
		name:   "defaults are valid",
		mutate: func(c *Config) {},
	}, {
		name:    "bad log level",
		mutate:  func(c *Config) { c.Log.Level = "verbose" },
		wantErr: "invalid log level",
	}, {
		name:    "bad log format",
		mutate:  func(c *Config) { c.Log.Format = "xml" },
		wantErr: "invalid log format",
	}, {
		name:    "zero duration",
		mutate:  func(c *Config) { c.Sample.Duration = 0 },
		wantErr: "duration must be positive",
	}, {
		name:    "negative duration",
		mutate:  func(c *Config) { c.Sample.Duration = -0.5 },
		wantErr: "duration must be positive",
	}, {
		name:    "empty sysfs",
		mutate:  func(c *Config) { c.Host.SysFS = "" },
		wantErr: "sysfs path cannot be empty",
	}, {
		name:    "msr template without placeholder",
		mutate:  func(c *Config) { c.Host.MSRPath = "/dev/cpu/0/msr" },
		wantErr: "must contain %d",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRegisterFlags(t *testing.T) {
	t.Run("flags override config values", func(t *testing.T) {
		app := kingpin.New("test", "")
		updateConfig := RegisterFlags(app)

		_, err := app.Parse([]string{"--duration", "2", "--log.level", "warn"})
		require.NoError(t, err)

		cfg := DefaultConfig()
		cfg.Log.Level = "error" // pretend this came from a config file
		require.NoError(t, updateConfig(cfg))

		assert.Equal(t, 2.0, cfg.Sample.Duration)
		assert.Equal(t, "warn", cfg.Log.Level)
	})

	t.Run("unset flags keep config values", func(t *testing.T) {
		app := kingpin.New("test", "")
		updateConfig := RegisterFlags(app)

		_, err := app.Parse([]string{})
		require.NoError(t, err)

		cfg := DefaultConfig()
		cfg.Sample.Duration = 1.5
		require.NoError(t, updateConfig(cfg))

		assert.Equal(t, 1.5, cfg.Sample.Duration)
	})

	t.Run("debug forces debug level", func(t *testing.T) {
		app := kingpin.New("test", "")
		updateConfig := RegisterFlags(app)

		_, err := app.Parse([]string{"--debug", "--log.level", "warn"})
		require.NoError(t, err)

		cfg := DefaultConfig()
		require.NoError(t, updateConfig(cfg))

		assert.Equal(t, "debug", cfg.Log.Level)
	})

	t.Run("short duration flag", func(t *testing.T) {
		app := kingpin.New("test", "")
		updateConfig := RegisterFlags(app)

		_, err := app.Parse([]string{"-d", "0.25"})
		require.NoError(t, err)

		cfg := DefaultConfig()
		require.NoError(t, updateConfig(cfg))

		assert.Equal(t, 0.25, cfg.Sample.Duration)
	})

	t.Run("invalid flag values are rejected", func(t *testing.T) {
		app := kingpin.New("test", "")
		updateConfig := RegisterFlags(app)

		_, err := app.Parse([]string{"--duration=-1"})
		require.NoError(t, err)

		cfg := DefaultConfig()
		assert.Error(t, updateConfig(cfg))
	})
}

func TestString(t *testing.T) {
	cfg := DefaultConfig()
	s := cfg.String()
	assert.Contains(t, s, "level: info")
	assert.Contains(t, s, "duration: 0.5")
	assert.Contains(t, s, "msr: /dev/cpu/%d/msr")
}
