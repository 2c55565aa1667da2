// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"net/url"
)

// ValidationError reports a single invalid configuration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Validate checks cross-field invariants. All violations are joined.
func Validate(cfg AppConfig) error {
	var errs []error
	add := func(field, reason string) {
		errs = append(errs, ValidationError{Field: field, Reason: reason})
	}

	for field, raw := range map[string]string{
		"backend.apiURL": cfg.Backend.APIURL,
		"backend.wsURL":  cfg.Backend.WSURL,
	} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			add(field, "must be an absolute URL")
		}
	}

	switch cfg.Trigger.Source {
	case TriggerDistance, TriggerVision:
	default:
		add("trigger.source", fmt.Sprintf("unknown source %q (want %q or %q)", cfg.Trigger.Source, TriggerDistance, TriggerVision))
	}
	if cfg.Trigger.ThresholdMM <= 0 {
		add("trigger.thresholdMM", "must be positive")
	}
	if cfg.Trigger.PollHz <= 0 {
		add("trigger.pollHz", "must be positive")
	}
	if cfg.Trigger.Debounce < 0 {
		add("trigger.debounce", "must not be negative")
	}

	s := cfg.Session
	if s.CollectDuration <= 0 {
		add("session.collectDuration", "must be positive")
	}
	if s.MinPassingFrames <= 0 {
		add("session.minPassingFrames", "must be positive")
	}
	if s.FrameTimeout <= 0 {
		add("session.frameTimeout", "must be positive")
	}
	if s.PresenceGrace < 0 || s.ValidationGrace < 0 {
		add("session.grace", "grace windows must not be negative")
	}

	if cfg.Liveness.FailureThreshold <= 0 {
		add("liveness.failureThreshold", "must be positive")
	}
	if w := cfg.Liveness.StabilityWeight + cfg.Liveness.FocusWeight; w <= 0 || w > 1.0001 {
		add("liveness.weights", "stabilityWeight + focusWeight must be in (0, 1]")
	}
	if cfg.Liveness.FocusNorm <= 0 {
		add("liveness.focusNorm", "must be positive")
	}

	if cfg.Telemetry.Enabled {
		switch cfg.Telemetry.Exporter {
		case "grpc", "http":
		default:
			add("telemetry.exporter", fmt.Sprintf("unsupported exporter %q (want grpc or http)", cfg.Telemetry.Exporter))
		}
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			add("telemetry.samplingRate", "must be within [0, 1]")
		}
	}

	return errors.Join(errs...)
}
