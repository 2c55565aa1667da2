// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/kiosk/internal/config"
	"github.com/ManuGH/kiosk/internal/log"
)

// Outcome values recorded for finished sessions.
const (
	OutcomeComplete  = "complete"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// FrameStats summarizes frame collection for one session.
type FrameStats struct {
	Seen      int     `json:"seen"`
	Faces     int     `json:"faces"`
	Passing   int     `json:"passing"`
	BestScore float64 `json:"best_score"`
}

// Snapshot is a point-in-time view of the controller for the operator surface.
type Snapshot struct {
	Phase           Phase      `json:"phase"`
	SessionID       string     `json:"session_id,omitempty"`
	Trigger         string     `json:"trigger,omitempty"`
	StartedAt       time.Time  `json:"started_at,omitzero"`
	EndedAt         time.Time  `json:"ended_at,omitzero"`
	CameraActivated bool       `json:"camera_activated"`
	PlatformID      string     `json:"platform_id,omitempty"`
	TokenExpiresAt  time.Time  `json:"token_expires_at,omitzero"`
	Outcome         string     `json:"outcome,omitempty"`
	Reason          Reason     `json:"reason,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	Frames          FrameStats `json:"frames"`
	InFlight        bool       `json:"in_flight"`
}

// Session is one kiosk visit.
type Session struct {
	ID        string
	Trigger   string
	StartedAt time.Time

	timings  config.SessionConfig
	ctx      context.Context
	cancelFn context.CancelCauseFunc
	appReady chan string

	// final is fired by the Run loop once the session goroutine is done.
	final     Event
	finalData map[string]any

	mu              sync.Mutex
	cameraActivated bool
	platformID      string
	tokenExpiresAt  time.Time
	lastError       string
	frames          FrameStats
	endedAt         time.Time
	outcome         string
	reason          Reason
}

func newSession(parent context.Context, trigger string, timings config.SessionConfig) *Session {
	id := uuid.NewString()
	ctx, cancel := context.WithCancelCause(log.ContextWithSessionID(parent, id))
	return &Session{
		ID:        id,
		Trigger:   trigger,
		StartedAt: time.Now(),
		timings:   timings,
		ctx:       ctx,
		cancelFn:  cancel,
		appReady:  make(chan string, 1),
	}
}

func (s *Session) cancel(cause error) { s.cancelFn(cause) }

func (s *Session) update(fn func(s *Session)) {
	s.mu.Lock()
	fn(s)
	s.mu.Unlock()
}

func (s *Session) setCamera(on bool) {
	s.update(func(s *Session) { s.cameraActivated = on })
}

// CameraActivated reports whether the session currently holds the camera.
func (s *Session) CameraActivated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cameraActivated
}

func (s *Session) snapshot(phase Phase) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Phase:           phase,
		SessionID:       s.ID,
		Trigger:         s.Trigger,
		StartedAt:       s.StartedAt,
		EndedAt:         s.endedAt,
		CameraActivated: s.cameraActivated,
		PlatformID:      s.platformID,
		TokenExpiresAt:  s.tokenExpiresAt,
		Outcome:         s.outcome,
		Reason:          s.reason,
		LastError:       s.lastError,
		Frames:          s.frames,
	}
}

// Snapshot returns the in-flight session, or the last finished one.
func (c *Controller) Snapshot() Snapshot {
	phase := c.machine.State()
	c.mu.Lock()
	cur, last := c.cur, c.last
	c.mu.Unlock()
	switch {
	case cur != nil:
		snap := cur.snapshot(phase)
		snap.InFlight = true
		return snap
	case last != nil:
		snap := *last
		snap.Phase = phase
		return snap
	}
	return Snapshot{Phase: phase}
}
