// SPDX-FileCopyrightText: 2025 The Ryzen Power Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type (
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}

	Sample struct {
		// Duration of the measurement window in seconds
		Duration float64 `yaml:"duration"`
	}

	Host struct {
		SysFS  string `yaml:"sysfs"`
		ProcFS string `yaml:"procfs"`

		// MSRPath is the MSR device path template; %d is the logical CPU id
		MSRPath string `yaml:"msr"`
	}

	Config struct {
		Log    Log    `yaml:"log"`
		Sample Sample `yaml:"sample"`
		Host   Host   `yaml:"host"`
	}
)

const (
	// Flags
	LogLevelFlag  = "log.level"
	LogFormatFlag = "log.format"
	DebugFlag     = "debug"
	DurationFlag  = "duration"
	SysFSFlag     = "host.sysfs"
	ProcFSFlag    = "host.procfs"
	MSRPathFlag   = "host.msr"
)

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	cfg := &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Sample: Sample{
			Duration: 0.5,
		},
		Host: Host{
			SysFS:   "/sys",
			ProcFS:  "/proc",
			MSRPath: "/dev/cpu/%d/msr",
		},
	}

	return cfg
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromFile loads configuration from a file
func FromFile(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Load(file)
}

type ConfigUpdaterFn func(*Config) error

// RegisterFlags registers command-line flags with kingpin app
// and returns ConfigUpdaterFn that updates the config from parsed flags
// as command line arguments override config file settings
func RegisterFlags(app *kingpin.Application) ConfigUpdaterFn {
	// track flags that were explicitly set
	flagsSet := map[string]bool{}

	app.PreAction(func(ctx *kingpin.ParseContext) error {
		// Clear the map in case this function is called multiple times
		flagsSet = map[string]bool{}

		for _, element := range ctx.Elements {
			if flag, ok := element.Clause.(*kingpin.FlagClause); ok && element.Value != nil {
				flagsSet[flag.Model().Name] = true
			}
		}
		return nil
	})

	// Logging
	logLevel := app.Flag(LogLevelFlag, "Logging level: debug, info, warn, error").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := app.Flag(LogFormatFlag, "Logging format: text or json").Default("text").Enum("text", "json")
	debug := app.Flag(DebugFlag, "Show debug messages; shorthand for --log.level=debug").Bool()

	// Sampling
	duration := app.Flag(DurationFlag, "Duration of the measurement window in seconds").Short('d').Default("0.5").Float64()

	// Host paths
	sysfs := app.Flag(SysFSFlag, "Path to the sysfs mount point").Default("/sys").String()
	procfs := app.Flag(ProcFSFlag, "Path to the procfs mount point").Default("/proc").String()
	msrPath := app.Flag(MSRPathFlag, "MSR device path template; %d is the logical CPU id").Default("/dev/cpu/%d/msr").String()

	return func(cfg *Config) error {
		// Logging settings
		if flagsSet[LogLevelFlag] {
			cfg.Log.Level = *logLevel
		}

		if flagsSet[LogFormatFlag] {
			cfg.Log.Format = *logFormat
		}

		// --debug wins over any configured level
		if flagsSet[DebugFlag] && *debug {
			cfg.Log.Level = "debug"
		}

		// Sampling settings
		if flagsSet[DurationFlag] {
			cfg.Sample.Duration = *duration
		}

		// Host settings
		if flagsSet[SysFSFlag] {
			cfg.Host.SysFS = *sysfs
		}

		if flagsSet[ProcFSFlag] {
			cfg.Host.ProcFS = *procfs
		}

		if flagsSet[MSRPathFlag] {
			cfg.Host.MSRPath = *msrPath
		}

		cfg.sanitize()
		return cfg.Validate()
	}
}

func (c *Config) sanitize() {
	c.Log.Level = strings.TrimSpace(c.Log.Level)
	c.Log.Format = strings.TrimSpace(c.Log.Format)
	c.Host.SysFS = strings.TrimSpace(c.Host.SysFS)
	c.Host.ProcFS = strings.TrimSpace(c.Host.ProcFS)
	c.Host.MSRPath = strings.TrimSpace(c.Host.MSRPath)
}

// Validate checks for configuration errors
func (c *Config) Validate() error {
	var errs []string
	{ // log level
		validLogLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}

		if _, valid := validLogLevels[c.Log.Level]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Log.Level))
		}
	}
	{ // log format
		validFormats := map[string]bool{
			"text": true,
			"json": true,
		}
		if _, valid := validFormats[c.Log.Format]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log format: %s", c.Log.Format))
		}
	}
	{ // sample duration; the Sampler does not validate this itself
		if c.Sample.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("sample duration must be positive, got: %v", c.Sample.Duration))
		}
	}
	{ // host paths
		if c.Host.SysFS == "" {
			errs = append(errs, "host sysfs path cannot be empty")
		}
		if c.Host.ProcFS == "" {
			errs = append(errs, "host procfs path cannot be empty")
		}
		if !strings.Contains(c.Host.MSRPath, "%d") {
			errs = append(errs, fmt.Sprintf("msr device path template must contain %%d, got: %s", c.Host.MSRPath))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}

	return nil
}

func (c *Config) String() string {
	bytes, err := yaml.Marshal(c)
	if err == nil {
		return string(bytes)
	}
	// NOTE: this code path should not happen but if yaml marshal fails
	// for some reason, manually build the string
	return c.manualString()
}

func (c *Config) manualString() string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("log.level: %s\n", c.Log.Level))
	sb.WriteString(fmt.Sprintf("log.format: %s\n", c.Log.Format))
	sb.WriteString(fmt.Sprintf("sample.duration: %v\n", c.Sample.Duration))
	sb.WriteString(fmt.Sprintf("host.sysfs: %s\n", c.Host.SysFS))
	sb.WriteString(fmt.Sprintf("host.procfs: %s\n", c.Host.ProcFS))
	sb.WriteString(fmt.Sprintf("host.msr: %s\n", c.Host.MSRPath))
	return sb.String()
}
