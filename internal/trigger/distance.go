// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package trigger

import (
	"context"
	"time"
)

// MaxValidDistanceMM is the sensor's usable range; larger values are noise.
const MaxValidDistanceMM = 8000

// Reading is one ranging sample.
type Reading struct {
	DistanceMM int       `json:"distance_mm"`
	At         time.Time `json:"-"`
}

// Valid reports whether the sample is inside the sensor's usable range.
func (r Reading) Valid() bool {
	return r.DistanceMM > 0 && r.DistanceMM <= MaxValidDistanceMM
}

// DistanceReader yields ranging samples. ok=false means no new sample yet.
type DistanceReader interface {
	ReadDistance(ctx context.Context) (r Reading, ok bool, err error)
}

// DistanceSource debounces a ranging sensor into presence edges. A candidate
// state must hold for the whole debounce window before it is reported.
type DistanceSource struct {
	reader    DistanceReader
	threshold int
	debounce  time.Duration
	now       func() time.Time

	reported       bool
	candidate      bool
	candidateSince time.Time
	pending        bool
	last           Reading
}

// NewDistanceSource reports presence while readings are below thresholdMM.
func NewDistanceSource(reader DistanceReader, thresholdMM int, debounce time.Duration) *DistanceSource {
	return &DistanceSource{
		reader:    reader,
		threshold: thresholdMM,
		debounce:  debounce,
		now:       time.Now,
	}
}

// Present returns the last reported state.
func (s *DistanceSource) Present() bool { return s.reported }

// Poll implements Source.
func (s *DistanceSource) Poll(ctx context.Context) (PresenceEvent, bool, error) {
	r, ok, err := s.reader.ReadDistance(ctx)
	if err != nil {
		return PresenceEvent{}, false, err
	}
	now := s.now()

	if ok && r.Valid() {
		s.last = r
		state := r.DistanceMM < s.threshold
		switch {
		case state == s.reported:
			s.pending = false
		case !s.pending || state != s.candidate:
			s.pending = true
			s.candidate = state
			s.candidateSince = now
		}
	}

	if !s.pending || now.Sub(s.candidateSince) < s.debounce {
		return PresenceEvent{}, false, nil
	}

	s.reported = s.candidate
	s.pending = false
	return PresenceEvent{
		Present:    s.reported,
		Confidence: 1,
		DistanceMM: s.last.DistanceMM,
		At:         now,
		Source:     SourceDistance,
	}, true, nil
}
