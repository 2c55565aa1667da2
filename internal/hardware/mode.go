// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hardware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/kiosk/internal/log"
	"github.com/ManuGH/kiosk/internal/metrics"
	"github.com/rs/zerolog"
)

// Mode is the operational capture mode of the pipeline.
type Mode string

const (
	ModeIdleDetection Mode = "idle_detection"
	ModeActive        Mode = "active"
	ModeValidation    Mode = "validation"
)

// ErrModeRequiresLease is returned when active or validation mode is requested
// while no lease holds the pipeline.
var ErrModeRequiresLease = errors.New("mode requires a held hardware lease")

// ErrUnknownMode is returned for modes outside the enum.
var ErrUnknownMode = errors.New("unknown capture mode")

// Workload names the inference work that runs per captured frame.
type Workload string

const (
	WorkloadPresence Workload = "presence"
	WorkloadLiveness Workload = "liveness"
)

// Profile is the capture cadence and inference workload for a mode.
type Profile struct {
	Mode       Mode          `json:"mode"`
	Continuous bool          `json:"continuous"`
	Interval   time.Duration `json:"interval"`
	Workload   Workload      `json:"workload"`
}

// IdleBurstInterval is the still cadence used in idle_detection.
const IdleBurstInterval = 2 * time.Second

// Profile returns the capture profile for m.
func (m Mode) Profile() Profile {
	switch m {
	case ModeActive:
		return Profile{Mode: m, Continuous: true, Workload: WorkloadPresence}
	case ModeValidation:
		return Profile{Mode: m, Continuous: true, Workload: WorkloadLiveness}
	default:
		return Profile{Mode: ModeIdleDetection, Interval: IdleBurstInterval, Workload: WorkloadPresence}
	}
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeIdleDetection, ModeActive, ModeValidation:
		return true
	}
	return false
}

func (m Mode) String() string { return string(m) }

// ModeApplier pushes a mode change to the capture process. It must return only
// once the change is in effect (or has failed).
type ModeApplier interface {
	ApplyMode(ctx context.Context, p Profile) error
}

// ModeSelector holds the current operational mode.
type ModeSelector struct {
	mu       sync.Mutex
	applier  ModeApplier
	current  Mode
	interval time.Duration
	hold     func() bool
	logger   zerolog.Logger
}

// NewModeSelector returns a selector in idle_detection. The initial mode is not
// pushed to the applier; call Set to do so.
func NewModeSelector(applier ModeApplier) *ModeSelector {
	return &ModeSelector{
		applier: applier,
		current: ModeIdleDetection,
		logger:  log.WithComponent("mode"),
	}
}

// Require installs a guard reporting whether a lease is held. With a guard
// installed, active and validation are rejected while it reports false.
func (s *ModeSelector) Require(hold func() bool) {
	s.mu.Lock()
	s.hold = hold
	s.mu.Unlock()
}

// SetIdleInterval overrides the idle_detection still cadence.
func (s *ModeSelector) SetIdleInterval(d time.Duration) {
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
}

// Set switches to mode synchronously and returns the previous mode. On
// failure the current mode is unchanged.
func (s *ModeSelector) Set(ctx context.Context, mode Mode) (Mode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current
	if !mode.Valid() {
		return prev, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if mode != ModeIdleDetection && s.hold != nil && !s.hold() {
		metrics.IncModeChange(string(mode), ErrModeRequiresLease)
		return prev, fmt.Errorf("set %s: %w", mode, ErrModeRequiresLease)
	}

	p := mode.Profile()
	if mode == ModeIdleDetection && s.interval > 0 {
		p.Interval = s.interval
	}
	if s.applier != nil {
		if err := s.applier.ApplyMode(ctx, p); err != nil {
			metrics.IncModeChange(string(mode), err)
			s.logger.Error().Err(err).
				Str(log.FieldMode, string(mode)).
				Str("previous", string(prev)).
				Msg("capture mode change failed")
			return prev, fmt.Errorf("apply mode %s: %w", mode, err)
		}
	}
	s.current = mode
	metrics.IncModeChange(string(mode), nil)
	if prev != mode {
		s.logger.Info().
			Str(log.FieldMode, string(mode)).
			Str("previous", string(prev)).
			Msg("capture mode changed")
	}
	return prev, nil
}

// Current returns the current mode.
func (s *ModeSelector) Current() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
