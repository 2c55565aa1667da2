// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package trigger turns raw presence signals (ranging sensor readings or
// low-rate face checks) into debounced enter/leave edges.
package trigger

import (
	"context"
	"time"
)

// Source names reported on events.
const (
	SourceDistance = "distance"
	SourceVision   = "vision"
	SourceManual   = "manual"
)

// PresenceEvent is one presence edge.
type PresenceEvent struct {
	Present    bool      `json:"present"`
	Confidence float64   `json:"confidence,omitempty"`
	DistanceMM int       `json:"distance_mm,omitempty"`
	At         time.Time `json:"at"`
	Source     string    `json:"source"`
}

// Source produces presence edges. Poll returns ok=false when the reported
// state did not change.
type Source interface {
	Poll(ctx context.Context) (ev PresenceEvent, ok bool, err error)
}
