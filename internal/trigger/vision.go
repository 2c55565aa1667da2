// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package trigger

import (
	"context"
	"time"

	"github.com/ManuGH/kiosk/internal/frames"
	"github.com/ManuGH/kiosk/internal/hardware"
	"github.com/ManuGH/kiosk/internal/liveness"
)

// LatestFrame is the non-blocking frame accessor.
type LatestFrame interface {
	Latest() (frames.Frame, bool)
}

// ModeReader reports the current capture mode.
type ModeReader interface {
	Current() hardware.Mode
}

// VisionBurstSource takes one still per interval while the pipeline is in
// idle_detection and runs a face check on it. Only state changes are reported.
type VisionBurstSource struct {
	frames   LatestFrame
	detector liveness.Detector
	mode     ModeReader
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	lastBurst time.Time
	lastFrame uint32
	seen      bool
	present   bool
}

// NewVisionBurstSource builds a vision trigger.
func NewVisionBurstSource(f LatestFrame, d liveness.Detector, mode ModeReader, interval time.Duration) *VisionBurstSource {
	if interval <= 0 {
		interval = hardware.IdleBurstInterval
	}
	return &VisionBurstSource{
		frames:   f,
		detector: d,
		mode:     mode,
		interval: interval,
		timeout:  time.Second,
		now:      time.Now,
	}
}

// Poll implements Source.
func (s *VisionBurstSource) Poll(ctx context.Context) (PresenceEvent, bool, error) {
	if s.mode != nil && s.mode.Current() != hardware.ModeIdleDetection {
		return PresenceEvent{}, false, nil
	}
	now := s.now()
	if !s.lastBurst.IsZero() && now.Sub(s.lastBurst) < s.interval {
		return PresenceEvent{}, false, nil
	}

	f, ok := s.frames.Latest()
	if !ok || (s.seen && f.Number == s.lastFrame) {
		return PresenceEvent{}, false, nil
	}
	s.lastBurst = now
	s.lastFrame = f.Number
	s.seen = true

	dctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	present, conf, err := s.detector.DetectFace(dctx, f)
	if err != nil {
		return PresenceEvent{}, false, err
	}
	if present == s.present {
		return PresenceEvent{}, false, nil
	}
	s.present = present
	return PresenceEvent{
		Present:    present,
		Confidence: conf,
		At:         now,
		Source:     SourceVision,
	}, true, nil
}
