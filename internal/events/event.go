// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package events fans controller events out to UI consumers.
package events

import "time"

// Type is the event discriminator seen by the UI.
type Type string

const (
	TypeHeartbeat Type = "heartbeat"
	TypeState     Type = "state"
	TypeMetrics   Type = "metrics"
	TypeBackend   Type = "backend"
	TypeWatchdog  Type = "watchdog"
)

// Event is one message on the UI push channel.
type Event struct {
	Type  Type           `json:"type"`
	Phase string         `json:"phase,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
	Error string         `json:"error,omitempty"`
	At    time.Time      `json:"timestamp"`
}

// State builds a phase change event.
func State(phase string, data map[string]any, errMsg string) Event {
	return Event{Type: TypeState, Phase: phase, Data: data, Error: errMsg, At: time.Now()}
}

// Watchdog builds a watchdog action event.
func Watchdog(phase, action, status, reason string) Event {
	return Event{
		Type:  TypeWatchdog,
		Phase: phase,
		Data:  map[string]any{"action": action, "status": status, "reason": reason},
		At:    time.Now(),
	}
}

// Metrics builds a per-frame liveness metrics event.
func Metrics(phase string, data map[string]any) Event {
	return Event{Type: TypeMetrics, Phase: phase, Data: data, At: time.Now()}
}

// Backend builds an event relaying a pairing bridge message.
func Backend(phase string, data map[string]any) Event {
	return Event{Type: TypeBackend, Phase: phase, Data: data, At: time.Now()}
}
