// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/kiosk/internal/frames"
	"github.com/ManuGH/kiosk/internal/hardware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type edgeScript struct {
	mu    sync.Mutex
	edges []PresenceEvent
	err   error
}

func (s *edgeScript) Poll(context.Context) (PresenceEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		err := s.err
		s.err = nil
		return PresenceEvent{}, false, err
	}
	if len(s.edges) == 0 {
		return PresenceEvent{}, false, nil
	}
	ev := s.edges[0]
	s.edges = s.edges[1:]
	return ev, true, nil
}

type leaseRecorder struct {
	mu       sync.Mutex
	acquired int
	released int
}

func (l *leaseRecorder) Acquire(context.Context, string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquired++
	return nil
}

func (l *leaseRecorder) Release(context.Context, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released++
}

func TestRunner_DeliversEdgesInOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	src := &edgeScript{
		err: errors.New("i2c hiccup"),
		edges: []PresenceEvent{
			{Present: true, DistanceMM: 1},
			{Present: false, DistanceMM: 2},
			{Present: true, DistanceMM: 3},
		},
	}
	leases := &leaseRecorder{}
	r := NewRunner(src, 1000, WithLease(leases, hardware.SourceIdleWatch))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	var got []int
	for len(got) < 3 {
		select {
		case ev := <-r.Events():
			got = append(got, ev.DistanceMM)
		case <-time.After(2 * time.Second):
			t.Fatalf("edges missing, got %v", got)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, got)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, leases.acquired)
	assert.Equal(t, 1, leases.released)
}

func TestRunner_StopsWhenReaderCloses(t *testing.T) {
	src := &edgeScript{err: ErrReaderClosed}
	r := NewRunner(src, 1000)
	err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrReaderClosed)
}

func TestRunner_RestartsClosedReaderWithBackoff(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	first := &edgeScript{edges: []PresenceEvent{{Present: true, DistanceMM: 300, Source: SourceDistance}}}
	second := &edgeScript{edges: []PresenceEvent{{Present: true, DistanceMM: 310, Source: SourceDistance}}}

	var mu sync.Mutex
	attempts := 0
	restart := func(context.Context) (Source, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return nil, errors.New("reader binary busy")
		}
		return second, nil
	}
	r := NewRunner(first, 1000, WithRestart(restart))
	r.retryDelay = time.Millisecond
	r.maxDelay = 4 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	next := func() PresenceEvent {
		t.Helper()
		select {
		case ev := <-r.Events():
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("edge missing")
			return PresenceEvent{}
		}
	}

	assert.True(t, next().Present)
	first.mu.Lock()
	first.err = ErrReaderClosed
	first.mu.Unlock()

	gone := next()
	assert.False(t, gone.Present, "visitor is reported gone when the reader dies")
	assert.Equal(t, SourceDistance, gone.Source)

	back := next()
	assert.True(t, back.Present)
	assert.Equal(t, 310, back.DistanceMM)

	mu.Lock()
	assert.Equal(t, 2, attempts)
	mu.Unlock()

	cancel()
	require.NoError(t, <-done)
}

func TestRunner_RestartGivesUpOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	src := &edgeScript{err: ErrReaderClosed}
	restart := func(context.Context) (Source, error) { return nil, errors.New("no such binary") }
	r := NewRunner(src, 1000, WithRestart(restart))
	r.retryDelay = time.Millisecond
	r.maxDelay = 2 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, r.Run(ctx))
}

type stubDetector struct {
	mu      sync.Mutex
	present bool
	calls   int
}

func (d *stubDetector) set(p bool) {
	d.mu.Lock()
	d.present = p
	d.mu.Unlock()
}

func (d *stubDetector) DetectFace(context.Context, frames.Frame) (bool, float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.present, 0.9, nil
}

type stubFrames struct{ n uint32 }

func (f *stubFrames) Latest() (frames.Frame, bool) {
	f.n++
	return frames.Frame{Number: f.n, JPEG: []byte{1}}, true
}

type stubMode struct{ m hardware.Mode }

func (s *stubMode) Current() hardware.Mode { return s.m }

func TestVisionBurstSource_EdgesOnly(t *testing.T) {
	det := &stubDetector{}
	mode := &stubMode{m: hardware.ModeIdleDetection}
	clk := &fakeClock{t: time.Unix(0, 0)}
	s := NewVisionBurstSource(&stubFrames{}, det, mode, 2*time.Second)
	s.now = clk.now
	ctx := context.Background()

	_, ok, err := s.Poll(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "absent at start is not an edge")

	det.set(true)
	clk.advance(time.Second)
	_, ok, _ = s.Poll(ctx)
	assert.False(t, ok, "one still per interval")
	assert.Equal(t, 1, det.calls)

	clk.advance(time.Second)
	ev, ok, err := s.Poll(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, ev.Present)
	assert.Equal(t, SourceVision, ev.Source)

	clk.advance(2 * time.Second)
	_, ok, _ = s.Poll(ctx)
	assert.False(t, ok, "steady presence is not re-emitted")

	mode.m = hardware.ModeValidation
	det.set(false)
	clk.advance(2 * time.Second)
	_, ok, _ = s.Poll(ctx)
	assert.False(t, ok, "inactive outside idle_detection")
	assert.Equal(t, 3, det.calls)

	mode.m = hardware.ModeIdleDetection
	ev, ok, _ = s.Poll(ctx)
	require.True(t, ok)
	assert.False(t, ev.Present)
}
