// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// AppConfig is the fully resolved controller configuration.
type AppConfig struct {
	Version    string `yaml:"-"`
	DataDir    string `yaml:"dataDir"`
	LogLevel   string `yaml:"logLevel"`
	LogService string `yaml:"logService"`

	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Redis     RedisConfig     `yaml:"redis"`
	Trigger   TriggerConfig   `yaml:"trigger"`
	Session   SessionConfig   `yaml:"session"`
	Liveness  LivenessConfig  `yaml:"liveness"`
	Captures  CapturesConfig  `yaml:"captures"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds the local operator/UI HTTP server settings.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listenAddr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// DebugRateLimit is the per-IP request budget per minute for /debug routes.
	DebugRateLimit int  `yaml:"debugRateLimit"`
	DebugEnabled   bool `yaml:"debugEnabled"`
}

// BackendConfig addresses the pairing/upload bridge.
type BackendConfig struct {
	APIURL         string        `yaml:"apiURL"`
	WSURL          string        `yaml:"wsURL"`
	APIKey         string        `yaml:"apiKey"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// RedisConfig addresses the pub/sub channel shared with the capture process.
type RedisConfig struct {
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	FrameChannel   string `yaml:"frameChannel"`
	ControlChannel string `yaml:"controlChannel"`
	ModeKey        string `yaml:"modeKey"`
}

// Trigger source variants.
const (
	TriggerDistance = "distance"
	TriggerVision   = "vision"
)

// TriggerConfig selects and tunes the presence trigger.
type TriggerConfig struct {
	Source        string        `yaml:"source"`
	ThresholdMM   int           `yaml:"thresholdMM"`
	Debounce      time.Duration `yaml:"debounce"`
	PollHz        int           `yaml:"pollHz"`
	ReaderBinary  string        `yaml:"readerBinary"`
	ReaderArgs    []string      `yaml:"readerArgs"`
	BurstInterval time.Duration `yaml:"burstInterval"`
}

// SessionConfig holds the session timing contract. All fields may be
// hot-reloaded; a running session keeps the values it started with.
type SessionConfig struct {
	PresenceGrace     time.Duration `yaml:"presenceGrace"`
	ValidationGrace   time.Duration `yaml:"validationGrace"`
	CollectDuration   time.Duration `yaml:"collectDuration"`
	MinPassingFrames  int           `yaml:"minPassingFrames"`
	FrameTimeout      time.Duration `yaml:"frameTimeout"`
	AppReadyTimeout   time.Duration `yaml:"appReadyTimeout"`
	AckTimeout        time.Duration `yaml:"ackTimeout"`
	CompleteDisplay   time.Duration `yaml:"completeDisplay"`
	ErrorDisplay      time.Duration `yaml:"errorDisplay"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	MetricsInterval   time.Duration `yaml:"metricsInterval"`
	WarmStandby       bool          `yaml:"warmStandby"`
}

// LivenessConfig tunes the perception failure policy and frame scoring.
type LivenessConfig struct {
	FailureThreshold int           `yaml:"failureThreshold"`
	CallTimeout      time.Duration `yaml:"callTimeout"`
	Backoff          time.Duration `yaml:"backoff"`
	StabilityWeight  float64       `yaml:"stabilityWeight"`
	FocusWeight      float64       `yaml:"focusWeight"`
	FocusNorm        float64       `yaml:"focusNorm"`
	PerceptionURL    string        `yaml:"perceptionURL"`
}

// CapturesConfig controls best-frame persistence and session history.
type CapturesConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Dir       string `yaml:"dir"`
	HistoryDB string `yaml:"historyDB"`
}

// TelemetryConfig controls OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`
	// Exporter is "grpc" or "http".
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"samplingRate"`
}
