// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command kioskd runs the kiosk session and hardware-lifecycle controller.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/kiosk/internal/config"
	"github.com/ManuGH/kiosk/internal/daemon"
	"github.com/ManuGH/kiosk/internal/health"
	klog "github.com/ManuGH/kiosk/internal/log"
	"github.com/ManuGH/kiosk/internal/telemetry"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(runHealthcheckCLI(os.Args[2:]))
	}
	os.Exit(run())
}

func run() int {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	envFile := flag.String("env", "", "path to an env file loaded before ENV overrides")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		return 0
	}

	// Safe defaults until config is loaded
	klog.Configure(klog.Config{
		Level:   "info",
		Service: "kioskd",
		Version: version,
	})
	logger := klog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := strings.TrimSpace(*configPath)
	loader := config.NewLoader(path, strings.TrimSpace(*envFile), version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Error().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
		return 1
	}
	if err := config.Validate(cfg); err != nil {
		logger.Error().Err(err).Str("event", "config.invalid").Msg("invalid configuration")
		return 1
	}

	klog.Configure(klog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
	})
	logger = klog.WithComponent("main")

	source := "env+defaults"
	if path != "" {
		source = "file"
	}
	logger.Info().
		Str("event", "config.loaded").
		Str("source", source).
		Str("path", path).
		Msg("configuration loaded")

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Error().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("startup checks failed, verify configuration and permissions")
		return 1
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.FromAppConfig(cfg))
	if err != nil {
		logger.Error().Err(err).Str("event", "telemetry.init_failed").Msg("failed to initialise tracing")
		return 1
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Str("event", "telemetry.shutdown_failed").Msg("failed to flush traces")
		}
	}()

	holder := config.NewHolder(cfg, loader, path)
	app, err := daemon.Build(ctx, cfg, holder)
	if err != nil {
		logger.Error().Err(err).Str("event", "startup.wiring_failed").Msg("failed to start kiosk controller")
		return 1
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Msg("starting kioskd")

	if err := app.Run(ctx); err != nil {
		logger.Error().Err(err).Str("event", "shutdown.error").Msg("kioskd stopped with error")
		return 1
	}
	logger.Info().Str("event", "shutdown").Msg("kioskd stopped")
	return 0
}
