// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package liveness

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/kiosk/internal/frames"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type countingRestarter struct {
	mu      sync.Mutex
	reasons []string
}

func (r *countingRestarter) Restart(_ context.Context, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
	return nil
}

func (r *countingRestarter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reasons)
}

var errTransient = errors.New("resource busy")

func failing() Perceiver {
	return PerceiverFunc(func(context.Context, frames.Frame) (*DetectionResult, error) {
		return nil, errTransient
	})
}

func testFrame() frames.Frame {
	return frames.Frame{Width: 2, Height: 2, JPEG: []byte{0xff, 0xd8}}
}

func TestGate_FailureReturnsNilAndCounts(t *testing.T) {
	g := NewGate(failing(), nil, GateConfig{Threshold: 10})
	assert.Nil(t, g.Process(context.Background(), testFrame()))
	assert.Equal(t, 1, g.Counter().Snapshot().ConsecutiveFailures)
}

func TestGate_SuccessResetsCounters(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	p := PerceiverFunc(func(context.Context, frames.Frame) (*DetectionResult, error) {
		if fail.Load() {
			return nil, errTransient
		}
		return &DetectionResult{}, nil
	})
	g := NewGate(p, nil, GateConfig{Threshold: 10})

	for i := 0; i < 3; i++ {
		g.Process(context.Background(), testFrame())
	}
	require.Equal(t, 3, g.Counter().Snapshot().ConsecutiveFailures)

	fail.Store(false)
	res := g.Process(context.Background(), testFrame())
	require.NotNil(t, res, "nothing detected is still a success")
	assert.False(t, res.HasFace())
	assert.Equal(t, []byte{0xff, 0xd8}, res.Image)
	assert.Equal(t, 0, g.Counter().Snapshot().ConsecutiveFailures)
}

func TestGate_EscalatesExactlyOnceAtThreshold(t *testing.T) {
	r := &countingRestarter{}
	g := NewGate(failing(), r, GateConfig{Threshold: 10})

	for i := 0; i < 9; i++ {
		g.Process(context.Background(), testFrame())
	}
	assert.Equal(t, 0, r.count())

	g.Process(context.Background(), testFrame())
	assert.Equal(t, 1, r.count())
	snap := g.Counter().Snapshot()
	assert.Equal(t, 0, snap.ConsecutiveFailures)
	assert.Equal(t, 1, snap.Escalations)

	for i := 0; i < 9; i++ {
		g.Process(context.Background(), testFrame())
	}
	assert.Equal(t, 1, r.count())
}

func TestGate_TimeoutCountsSeparately(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	slow := PerceiverFunc(func(ctx context.Context, _ frames.Frame) (*DetectionResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	r := &countingRestarter{}
	g := NewGate(slow, r, GateConfig{Threshold: 2, Timeout: 10 * time.Millisecond})

	assert.Nil(t, g.Process(context.Background(), testFrame()))
	snap := g.Counter().Snapshot()
	assert.Equal(t, 1, snap.ConsecutiveTimeouts)
	assert.Equal(t, 0, snap.ConsecutiveFailures)

	g.Process(context.Background(), testFrame())
	require.Equal(t, 1, r.count())
	assert.Equal(t, escalationReasonStall, r.reasons[0])
}

func TestGate_RecoversPanics(t *testing.T) {
	p := PerceiverFunc(func(context.Context, frames.Frame) (*DetectionResult, error) {
		panic("native crash")
	})
	g := NewGate(p, nil, GateConfig{})
	assert.NotPanics(t, func() {
		assert.Nil(t, g.Process(context.Background(), testFrame()))
	})
	assert.Equal(t, 1, g.Counter().Snapshot().ConsecutiveFailures)
}

func TestGate_CallerCancellationIsNotAFailure(t *testing.T) {
	p := PerceiverFunc(func(ctx context.Context, _ frames.Frame) (*DetectionResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	g := NewGate(p, nil, GateConfig{Timeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Nil(t, g.Process(ctx, testFrame()))
	snap := g.Counter().Snapshot()
	assert.Zero(t, snap.ConsecutiveFailures)
	assert.Zero(t, snap.ConsecutiveTimeouts)
}

func TestGate_Defaults(t *testing.T) {
	g := NewGate(failing(), nil, GateConfig{})
	assert.Equal(t, 50*time.Millisecond, g.Backoff())
	assert.Equal(t, DefaultFailureThreshold, g.Counter().Snapshot().Threshold)
}
