// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"

	"github.com/ManuGH/kiosk/internal/config"
	"github.com/ManuGH/kiosk/internal/log"
)

// PerformStartupChecks validates the environment before the controller starts.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	if err := checkWritableDir(cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}

	for name, raw := range map[string]string{"backend.apiURL": cfg.Backend.APIURL, "backend.wsURL": cfg.Backend.WSURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid %s %q", name, raw)
		}
	}

	if cfg.Trigger.Source == config.TriggerDistance {
		if _, err := exec.LookPath(cfg.Trigger.ReaderBinary); err != nil {
			return fmt.Errorf("distance reader binary not found (%s): %w", cfg.Trigger.ReaderBinary, err)
		}
		logger.Info().Str("reader", cfg.Trigger.ReaderBinary).Msg("distance reader available")
	}

	if cfg.Captures.Enabled {
		if err := os.MkdirAll(cfg.Captures.Dir, 0o750); err != nil {
			return fmt.Errorf("captures directory: %w", err)
		}
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}
