// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package liveness

import "math"

// Face is one detected face in frame coordinates.
type Face struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"w"`
	Height     int     `json:"h"`
	Confidence float64 `json:"confidence"`
}

// DetectionResult is the outcome of one successful perception call. A result
// with no faces is a clean "nothing detected", not a failure.
type DetectionResult struct {
	Faces        []Face  `json:"faces"`
	DepthOK      bool    `json:"depth_ok"`
	Score        float64 `json:"score"`
	Stability    float64 `json:"stability"`
	Focus        float64 `json:"focus"`
	InstantAlive bool    `json:"instant_alive"`
	StableAlive  bool    `json:"stable_alive"`
	ScreenOK     bool    `json:"screen_ok"`
	MovementOK   bool    `json:"movement_ok"`

	// Image is the JPEG the result was computed on.
	Image []byte `json:"-"`
}

// HasFace reports whether at least one face was found.
func (r *DetectionResult) HasFace() bool {
	return r != nil && len(r.Faces) > 0
}

// Passing reports whether the frame counts toward the passing-frame quota.
func (r *DetectionResult) Passing() bool {
	return r.HasFace() && r.DepthOK && (r.InstantAlive || r.StableAlive)
}

// Weights parameterize the composite score.
type Weights struct {
	Stability   float64
	Focus       float64
	FocusNorm   float64
	StableBonus float64
}

// DefaultWeights match the production tuning.
var DefaultWeights = Weights{Stability: 0.7, Focus: 0.3, FocusNorm: 800, StableBonus: 0.05}

// Composite ranks frames for best-frame selection. Perceivers that report
// neither stability nor focus are ranked by their raw score.
func (r *DetectionResult) Composite(w Weights) float64 {
	if r == nil {
		return 0
	}
	if r.Stability == 0 && r.Focus == 0 {
		return r.Score
	}
	norm := w.FocusNorm
	if norm <= 0 {
		norm = DefaultWeights.FocusNorm
	}
	c := r.Stability*w.Stability + math.Min(r.Focus/norm, 1)*w.Focus
	if r.StableAlive {
		c += w.StableBonus
	}
	return c
}
