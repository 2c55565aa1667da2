// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/kiosk/internal/log"
	"github.com/ManuGH/kiosk/internal/metrics"
	"github.com/rs/zerolog"
)

// DefaultQueueSize bounds each subscriber's backlog.
const DefaultQueueSize = 4

const dropLogEvery = 100

// Broadcaster delivers events to every subscriber without ever blocking the
// publisher. A slow subscriber loses its oldest queued events.
type Broadcaster struct {
	mu        sync.RWMutex
	subs      map[*Subscription]struct{}
	queueSize int
	lastState *Event
	dropped   atomic.Uint64
	logger    zerolog.Logger
}

// NewBroadcaster creates a broadcaster with per-subscriber queues of queueSize.
func NewBroadcaster(queueSize int) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Broadcaster{
		subs:      make(map[*Subscription]struct{}),
		queueSize: queueSize,
		logger:    log.WithComponent("events"),
	}
}

// Subscription is one consumer's queue.
type Subscription struct {
	b      *Broadcaster
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

// C yields queued events. It is closed by Close.
func (s *Subscription) C() <-chan Event { return s.ch }

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.b.mu.Lock()
	delete(s.b.subs, s)
	n := len(s.b.subs)
	s.b.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	metrics.EventSubscribers.Set(float64(n))
}

// Subscribe registers a consumer. The most recent state event, if any, is
// queued first so a late subscriber renders the current phase.
func (b *Broadcaster) Subscribe() *Subscription {
	s := &Subscription{b: b, ch: make(chan Event, b.queueSize)}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	if b.lastState != nil {
		s.ch <- *b.lastState
	}
	n := len(b.subs)
	b.mu.Unlock()

	metrics.EventSubscribers.Set(float64(n))
	return s
}

// Subscribers returns the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish queues ev for every subscriber.
func (b *Broadcaster) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	if ev.Type == TypeState {
		b.mu.Lock()
		cp := ev
		b.lastState = &cp
		b.mu.Unlock()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		s.offer(ev)
	}
}

func (s *Subscription) offer(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
		return
	default:
	}
	select {
	case old := <-s.ch:
		s.b.drop(old)
	default:
	}
	select {
	case s.ch <- ev:
	default:
		s.b.drop(ev)
	}
}

func (b *Broadcaster) drop(ev Event) {
	metrics.IncEventDrop(string(ev.Type))
	if n := b.dropped.Add(1); n%dropLogEvery == 1 {
		b.logger.Warn().
			Str("type", string(ev.Type)).
			Uint64("dropped", n).
			Msg("subscriber queue full, dropping oldest event")
	}
}

// Dropped returns the total number of dropped events.
func (b *Broadcaster) Dropped() uint64 { return b.dropped.Load() }

// RunHeartbeat publishes a heartbeat every interval until ctx is done.
// phase reports the current phase for the event.
func (b *Broadcaster) RunHeartbeat(ctx context.Context, interval time.Duration, phase func() string) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			ev := Event{Type: TypeHeartbeat, Data: map[string]any{}}
			if phase != nil {
				ev.Phase = phase()
			}
			b.Publish(ev)
		}
	}
}
