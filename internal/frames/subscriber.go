// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package frames

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/kiosk/internal/log"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrFrameTimeout is returned by Next when no frame arrives within the wait.
var ErrFrameTimeout = errors.New("frame wait timed out")

// ErrNotStreaming is returned by Next while the subscriber is stopped.
var ErrNotStreaming = errors.New("frame subscriber not streaming")

// Subscriber consumes frames from the capture process and keeps the most
// recent one. It implements hardware.Pipeline: the registry starts and stops
// it, nothing else should.
type Subscriber struct {
	client         *redis.Client
	channel        string
	controlChannel string
	timeout        time.Duration
	logger         zerolog.Logger

	mu      sync.Mutex
	ps      *redis.PubSub
	done    chan struct{}
	latest  Frame
	hasLast bool
	lastAt  time.Time
	notify  chan struct{}

	received  atomic.Uint64
	malformed atomic.Uint64
}

// NewSubscriber creates a stopped subscriber. timeout bounds Next.
func NewSubscriber(client *redis.Client, channel, controlChannel string, timeout time.Duration) *Subscriber {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Subscriber{
		client:         client,
		channel:        channel,
		controlChannel: controlChannel,
		timeout:        timeout,
		logger:         log.WithComponent("frames"),
		notify:         make(chan struct{}),
	}
}

// Start subscribes to the frame channel and asks the capture process to
// stream. It returns once the subscription is confirmed by the server.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ps != nil {
		return nil
	}

	ps := s.client.Subscribe(ctx, s.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	if err := publishControl(ctx, s.client, s.controlChannel, Control{Command: CommandStart}); err != nil {
		_ = ps.Close()
		return err
	}

	s.ps = ps
	s.done = make(chan struct{})
	s.hasLast = false
	go s.consume(ps.Channel(), s.done)

	s.logger.Info().Str("channel", s.channel).Msg("frame stream started")
	return nil
}

// Stop tells the capture process to stop streaming and unsubscribes.
func (s *Subscriber) Stop(ctx context.Context) error {
	s.mu.Lock()
	ps, done := s.ps, s.done
	s.ps, s.done = nil, nil
	s.mu.Unlock()
	if ps == nil {
		return nil
	}

	ctlErr := publishControl(ctx, s.client, s.controlChannel, Control{Command: CommandStop})
	closeErr := ps.Close()
	<-done

	s.logger.Info().
		Uint64("received", s.received.Load()).
		Uint64("malformed", s.malformed.Load()).
		Msg("frame stream stopped")
	return errors.Join(ctlErr, closeErr)
}

func (s *Subscriber) consume(ch <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for msg := range ch {
		f, err := Decode([]byte(msg.Payload))
		if err != nil {
			if s.malformed.Add(1)%100 == 1 {
				s.logger.Warn().Err(err).Msg("dropping malformed frame")
			}
			continue
		}
		s.received.Add(1)

		s.mu.Lock()
		s.latest = f
		s.hasLast = true
		s.lastAt = time.Now()
		close(s.notify)
		s.notify = make(chan struct{})
		s.mu.Unlock()
	}
}

// Streaming reports whether the subscriber is started.
func (s *Subscriber) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ps != nil
}

// Latest returns the most recent frame without blocking.
func (s *Subscriber) Latest() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.hasLast
}

// LastFrameAt returns the arrival time of the most recent frame.
func (s *Subscriber) LastFrameAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAt
}

// Next waits for the next frame to arrive after the call.
func (s *Subscriber) Next(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	if s.ps == nil {
		s.mu.Unlock()
		return Frame{}, ErrNotStreaming
	}
	ch := s.notify
	s.mu.Unlock()

	t := time.NewTimer(s.timeout)
	defer t.Stop()

	select {
	case <-ch:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.latest, nil
	case <-t.C:
		return Frame{}, ErrFrameTimeout
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}
