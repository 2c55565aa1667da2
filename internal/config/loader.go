// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	envFile         string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader. envFile may be empty; a
// missing .env file is not an error.
func NewLoader(configPath, envFile, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		envFile:         envFile,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load loads configuration with precedence: ENV > .env > File > Defaults.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	cfg.Version = l.version

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	// godotenv never overrides variables already present in the process env.
	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load env file %s: %w", l.envFile, err)
		}
	}

	l.mergeEnvConfig(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.Captures.Dir == "" {
		cfg.Captures.Dir = filepath.Join(cfg.DataDir, "captures")
	}
	if cfg.Captures.HistoryDB == "" {
		cfg.Captures.HistoryDB = filepath.Join(cfg.DataDir, "sessions.db")
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	return nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.DataDir = l.envString("KIOSK_DATA", cfg.DataDir)
	cfg.LogLevel = l.envString("KIOSK_LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString("KIOSK_LOG_SERVICE", cfg.LogService)

	cfg.Server.ListenAddr = l.envString("KIOSK_LISTEN", cfg.Server.ListenAddr)
	cfg.Server.DebugEnabled = l.envBool("KIOSK_DEBUG_API", cfg.Server.DebugEnabled)
	cfg.Server.DebugRateLimit = l.envInt("KIOSK_DEBUG_RATE_LIMIT", cfg.Server.DebugRateLimit)

	cfg.Backend.APIURL = l.envString("KIOSK_BACKEND_API_URL", cfg.Backend.APIURL)
	cfg.Backend.WSURL = l.envString("KIOSK_BACKEND_WS_URL", cfg.Backend.WSURL)
	cfg.Backend.APIKey = l.envString("KIOSK_HARDWARE_API_KEY", cfg.Backend.APIKey)
	cfg.Backend.RequestTimeout = l.envDuration("KIOSK_BACKEND_TIMEOUT", cfg.Backend.RequestTimeout)

	cfg.Redis.Addr = l.envString("KIOSK_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = l.envString("KIOSK_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = l.envInt("KIOSK_REDIS_DB", cfg.Redis.DB)

	cfg.Trigger.Source = l.envString("KIOSK_TRIGGER_SOURCE", cfg.Trigger.Source)
	cfg.Trigger.ThresholdMM = l.envInt("KIOSK_TOF_THRESHOLD_MM", cfg.Trigger.ThresholdMM)
	cfg.Trigger.Debounce = l.envDuration("KIOSK_TOF_DEBOUNCE", cfg.Trigger.Debounce)
	cfg.Trigger.PollHz = l.envInt("KIOSK_TOF_POLL_HZ", cfg.Trigger.PollHz)
	cfg.Trigger.ReaderBinary = l.envString("KIOSK_TOF_READER_BINARY", cfg.Trigger.ReaderBinary)
	cfg.Trigger.BurstInterval = l.envDuration("KIOSK_IDLE_BURST_INTERVAL", cfg.Trigger.BurstInterval)

	cfg.Session.PresenceGrace = l.envDuration("KIOSK_PRESENCE_GRACE", cfg.Session.PresenceGrace)
	cfg.Session.ValidationGrace = l.envDuration("KIOSK_VALIDATION_GRACE", cfg.Session.ValidationGrace)
	cfg.Session.CollectDuration = l.envDuration("KIOSK_COLLECT_DURATION", cfg.Session.CollectDuration)
	cfg.Session.MinPassingFrames = l.envInt("KIOSK_MIN_PASSING_FRAMES", cfg.Session.MinPassingFrames)
	cfg.Session.AckTimeout = l.envDuration("KIOSK_ACK_TIMEOUT", cfg.Session.AckTimeout)
	cfg.Session.WarmStandby = l.envBool("KIOSK_WARM_STANDBY", cfg.Session.WarmStandby)

	cfg.Liveness.FailureThreshold = l.envInt("KIOSK_FAILURE_THRESHOLD", cfg.Liveness.FailureThreshold)
	cfg.Liveness.CallTimeout = l.envDuration("KIOSK_PERCEPTION_TIMEOUT", cfg.Liveness.CallTimeout)
	cfg.Liveness.StabilityWeight = l.envFloat("KIOSK_STABILITY_WEIGHT", cfg.Liveness.StabilityWeight)
	cfg.Liveness.FocusWeight = l.envFloat("KIOSK_FOCUS_WEIGHT", cfg.Liveness.FocusWeight)
	cfg.Liveness.PerceptionURL = l.envString("KIOSK_PERCEPTION_URL", cfg.Liveness.PerceptionURL)

	cfg.Captures.Enabled = l.envBool("KIOSK_CAPTURES_ENABLED", cfg.Captures.Enabled)
	cfg.Captures.Dir = l.envString("KIOSK_CAPTURES_DIR", cfg.Captures.Dir)

	cfg.Telemetry.Enabled = l.envBool("KIOSK_TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("KIOSK_TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("KIOSK_TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.Environment = l.envString("KIOSK_TELEMETRY_ENVIRONMENT", cfg.Telemetry.Environment)
	cfg.Telemetry.SamplingRate = l.envFloat("KIOSK_TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}
