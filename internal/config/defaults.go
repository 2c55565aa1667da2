// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// Defaults returns the baseline configuration used before file and ENV overrides.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:    "/var/lib/kiosk",
		LogLevel:   "info",
		LogService: "kioskd",
		Server: ServerConfig{
			ListenAddr:      ":5000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			DebugRateLimit:  60,
			DebugEnabled:    true,
		},
		Backend: BackendConfig{
			RequestTimeout: 15 * time.Second,
		},
		Redis: RedisConfig{
			Addr:           "127.0.0.1:6379",
			FrameChannel:   "kiosk:frames",
			ControlChannel: "kiosk:capture:control",
			ModeKey:        "kiosk:capture:mode",
		},
		Trigger: TriggerConfig{
			Source:        TriggerDistance,
			ThresholdMM:   500,
			Debounce:      1500 * time.Millisecond,
			PollHz:        10,
			BurstInterval: 2 * time.Second,
		},
		Session: SessionConfig{
			PresenceGrace:     3 * time.Second,
			ValidationGrace:   3 * time.Second,
			CollectDuration:   3500 * time.Millisecond,
			MinPassingFrames:  10,
			FrameTimeout:      time.Second,
			AckTimeout:        120 * time.Second,
			CompleteDisplay:   3 * time.Second,
			ErrorDisplay:      3 * time.Second,
			HeartbeatInterval: 30 * time.Second,
			MetricsInterval:   200 * time.Millisecond,
			WarmStandby:       true,
		},
		Liveness: LivenessConfig{
			FailureThreshold: 10,
			CallTimeout:      time.Second,
			Backoff:          50 * time.Millisecond,
			StabilityWeight:  0.7,
			FocusWeight:      0.3,
			FocusNorm:        800,
		},
		Captures: CapturesConfig{
			Enabled: true,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			Environment:  "production",
			SamplingRate: 1.0,
		},
	}
}
