// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package liveness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposite(t *testing.T) {
	tests := []struct {
		name string
		res  DetectionResult
		want float64
	}{
		{"weighted", DetectionResult{Stability: 0.5, Focus: 400}, 0.5*0.7 + 0.5*0.3},
		{"focus capped", DetectionResult{Stability: 1, Focus: 4000}, 1.0},
		{"stable bonus", DetectionResult{Stability: 1, Focus: 800, StableAlive: true}, 1.05},
		{"score fallback", DetectionResult{Score: 0.75}, 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.res.Composite(DefaultWeights), 1e-9)
		})
	}
}

func TestPassing(t *testing.T) {
	face := []Face{{Width: 10, Height: 10}}
	assert.False(t, (&DetectionResult{}).Passing())
	assert.False(t, (&DetectionResult{Faces: face, InstantAlive: true}).Passing(), "depth required")
	assert.False(t, (&DetectionResult{Faces: face, DepthOK: true}).Passing(), "liveness required")
	assert.True(t, (&DetectionResult{Faces: face, DepthOK: true, StableAlive: true}).Passing())

	var nilRes *DetectionResult
	assert.False(t, nilRes.HasFace())
	assert.Zero(t, nilRes.Composite(DefaultWeights))
}

func TestFailureCounter(t *testing.T) {
	c := NewFailureCounter(3)
	c.RecordFailure()
	c.RecordTimeout()
	assert.False(t, c.ShouldEscalate())
	c.RecordFailure()
	assert.Equal(t, 3, c.RecordFailure())
	assert.True(t, c.ShouldEscalate())

	c.Reset()
	assert.False(t, c.ShouldEscalate())
	assert.Equal(t, CounterSnapshot{Threshold: 3, Escalations: 1}, c.Snapshot())

	c.RecordTimeout()
	c.RecordSuccess()
	assert.Zero(t, c.Snapshot().ConsecutiveTimeouts)
}
