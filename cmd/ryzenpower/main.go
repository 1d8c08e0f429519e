// SPDX-FileCopyrightText: 2025 The Ryzen Power Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"

	"github.com/ryzen-power/ryzenpower/internal/config"
	"github.com/ryzen-power/ryzenpower/internal/device"
	"github.com/ryzen-power/ryzenpower/internal/exporter/stdout"
	"github.com/ryzen-power/ryzenpower/internal/logger"
	"github.com/ryzen-power/ryzenpower/internal/monitor"
	"github.com/ryzen-power/ryzenpower/internal/topology"
	"github.com/ryzen-power/ryzenpower/internal/version"
)

func main() {
	// parse args and config and exit with error if there is an error
	cfg, err := parseArgsAndConfig()
	if err != nil {
		os.Exit(1)
	}

	// log to stderr; stdout carries the result table
	logger := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	logVersionInfo(logger)
	logger.Debug("effective configuration", "config", cfg.String())

	if err := measureAndReport(logger, cfg); err != nil {
		logger.Error("measurement failed", "error", err)
		os.Exit(1)
	}
}

func measureAndReport(logger *slog.Logger, cfg *config.Config) error {
	topology.CheckVendor(cfg.Host.ProcFS, logger)

	topo, err := topology.Discover(cfg.Host.SysFS, logger)
	if err != nil {
		return err
	}

	reader := device.NewMSRReader(cfg.Host.MSRPath, logger)
	defer func() {
		if err := reader.Close(); err != nil {
			logger.Warn("failed to close MSR devices", "error", err)
		}
	}()

	// the energy unit is shared across the package; read it once and pass
	// it down
	unit, err := reader.EnergyUnit()
	if err != nil {
		return err
	}

	sampler := monitor.NewSampler(reader, topo, unit,
		monitor.WithLogger(logger),
		monitor.WithDuration(time.Duration(cfg.Sample.Duration*float64(time.Second))),
	)

	var snapshot *monitor.Snapshot
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var g run.Group
	g.Add(
		func() error {
			s, err := sampler.Measure()
			snapshot = s
			return err
		},
		func(err error) {
			cancel()
		},
	)
	g.Add(waitForInterrupt(ctx, logger, os.Interrupt))

	if err := g.Run(); err != nil {
		return err
	}

	if snapshot != nil {
		stdout.Render(os.Stdout, topo, snapshot)
	}
	return nil
}

func logVersionInfo(logger *slog.Logger) {
	v := version.Info()
	logger.Debug("ryzenpower version information",
		"version", v.Version,
		"buildTime", v.BuildTime,
		"gitCommit", v.GitCommit,
		"goVersion", v.GoVersion,
		"goOS", v.GoOS,
		"goArch", v.GoArch,
	)
}

func waitForInterrupt(ctx context.Context, logger *slog.Logger, signals ...os.Signal) (func() error, func(error)) {
	ctxInternal, cancel := context.WithCancel(ctx)
	return func() error {
			c := make(chan os.Signal, 1)
			signal.Notify(c, signals...)
			select {
			case sig := <-c:
				return fmt.Errorf("interrupted by %s, abandoning measurement", sig)
			case <-ctx.Done():
				return ctx.Err()
			case <-ctxInternal.Done():
				return ctxInternal.Err()
			}
		}, func(error) {
			cancel()
		}
}

func parseArgsAndConfig() (*config.Config, error) {
	const appName = "ryzenpower"
	app := kingpin.New(appName, "Measure power consumption of AMD Ryzen CPUs through MSR energy counters.")

	configFile := app.Flag("config.file", "Path to YAML configuration file").String()
	updateConfig := config.RegisterFlags(app)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger := logger.New("info", "text", os.Stderr)
	cfg := config.DefaultConfig()
	if *configFile != "" {
		loadedCfg, err := config.FromFile(*configFile)
		if err != nil {
			logger.Error("error loading config file", "path", *configFile, "error", err.Error())
			return nil, err
		}
		cfg = loadedCfg
	}

	// Apply command line flags (these override config file settings)
	if err := updateConfig(cfg); err != nil {
		logger.Error("error applying command line flags", "error", err.Error())
		return nil, err
	}

	return cfg, nil
}
