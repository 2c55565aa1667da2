// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package trigger

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/kiosk/internal/log"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Leaser is the hardware registry surface a runner needs to hold the camera.
type Leaser interface {
	Acquire(ctx context.Context, source string) error
	Release(ctx context.Context, source string)
}

// Runner polls a Source at a fixed rate and forwards edges, in order, to a
// single consumer.
type Runner struct {
	source  Source
	limiter *rate.Limiter
	out     chan PresenceEvent
	logger  zerolog.Logger

	leaser      Leaser
	leaseSource string
	retryDelay  time.Duration

	restart  Restarter
	maxDelay time.Duration
	present  bool
}

// Restarter reopens a source whose distance reader has ended.
type Restarter func(ctx context.Context) (Source, error)

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLease makes the runner hold a lease for its lifetime.
func WithLease(l Leaser, source string) RunnerOption {
	return func(r *Runner) {
		r.leaser = l
		r.leaseSource = source
	}
}

// WithRestart reopens the source through fn when its reader closes instead
// of ending the run. Attempts back off from the retry delay up to one minute.
func WithRestart(fn Restarter) RunnerOption {
	return func(r *Runner) { r.restart = fn }
}

// NewRunner polls src at hz (default 10).
func NewRunner(src Source, hz float64, opts ...RunnerOption) *Runner {
	if hz <= 0 {
		hz = 10
	}
	r := &Runner{
		source:     src,
		limiter:    rate.NewLimiter(rate.Limit(hz), 1),
		out:        make(chan PresenceEvent, 16),
		logger:     log.WithComponent("trigger"),
		retryDelay: 5 * time.Second,
		maxDelay:   time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Events is the edge stream. It is never closed.
func (r *Runner) Events() <-chan PresenceEvent { return r.out }

// Run polls until ctx is done. Poll errors are logged and polling continues.
// A closed distance reader is restarted when a Restarter is set and ends the
// run with its error otherwise.
func (r *Runner) Run(ctx context.Context) error {
	if r.leaser != nil {
		if err := r.acquire(ctx); err != nil {
			return nil
		}
		defer r.leaser.Release(context.WithoutCancel(ctx), r.leaseSource)
	}

	failures := 0
	for {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil
		}
		ev, ok, err := r.source.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrReaderClosed) {
				if r.restart == nil {
					return err
				}
				if !r.reopen(ctx, err) {
					return nil
				}
				failures = 0
				continue
			}
			failures++
			if failures == 1 || failures%100 == 0 {
				r.logger.Warn().Err(err).Int("consecutive", failures).Msg("presence poll failed")
			}
			continue
		}
		failures = 0
		if !ok {
			continue
		}

		r.logger.Info().
			Bool(log.FieldPresent, ev.Present).
			Int(log.FieldDistanceMM, ev.DistanceMM).
			Str(log.FieldSource, ev.Source).
			Msg("presence edge")

		if !r.send(ctx, ev) {
			return nil
		}
	}
}

func (r *Runner) send(ctx context.Context, ev PresenceEvent) bool {
	select {
	case r.out <- ev:
		r.present = ev.Present
		return true
	case <-ctx.Done():
		return false
	}
}

// reopen replaces a source whose reader ended. A visitor reported present is
// reported gone first, since the new source starts from absent.
func (r *Runner) reopen(ctx context.Context, cause error) bool {
	if r.present {
		if !r.send(ctx, PresenceEvent{Present: false, At: time.Now(), Source: SourceDistance}) {
			return false
		}
	}
	delay := r.retryDelay
	for attempt := 1; ; attempt++ {
		r.logger.Warn().Err(cause).Int("attempt", attempt).Dur("backoff", delay).Msg("distance reader closed, restarting")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return false
		}
		src, err := r.restart(ctx)
		if err == nil {
			r.source = src
			r.logger.Info().Int("attempt", attempt).Msg("distance reader restarted")
			return true
		}
		cause = err
		delay = min(delay*2, r.maxDelay)
	}
}

func (r *Runner) acquire(ctx context.Context) error {
	for {
		err := r.leaser.Acquire(ctx, r.leaseSource)
		if err == nil {
			return nil
		}
		r.logger.Error().Err(err).Str(log.FieldSource, r.leaseSource).Msg("idle watch could not power the camera, retrying")
		select {
		case <-time.After(r.retryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
