// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package liveness wraps the external perception call with failure
// containment, consecutive-failure counting and pipeline-restart escalation.
package liveness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/kiosk/internal/frames"
	"github.com/ManuGH/kiosk/internal/log"
	"github.com/ManuGH/kiosk/internal/metrics"
	"github.com/rs/zerolog"
)

// Perceiver runs face and liveness inference on one frame.
type Perceiver interface {
	Process(ctx context.Context, f frames.Frame) (*DetectionResult, error)
}

// Detector is the lightweight presence check used outside validation.
type Detector interface {
	DetectFace(ctx context.Context, f frames.Frame) (bool, float64, error)
}

// Restarter tears down and restarts the capture pipeline.
type Restarter interface {
	Restart(ctx context.Context, reason string) error
}

// PerceiverFunc adapts a function to Perceiver.
type PerceiverFunc func(ctx context.Context, f frames.Frame) (*DetectionResult, error)

func (fn PerceiverFunc) Process(ctx context.Context, f frames.Frame) (*DetectionResult, error) {
	return fn(ctx, f)
}

// GateConfig tunes a Gate.
type GateConfig struct {
	Threshold int
	Timeout   time.Duration
	Backoff   time.Duration
}

const (
	defaultCallTimeout    = time.Second
	defaultBackoff        = 50 * time.Millisecond
	restartTimeout        = 10 * time.Second
	escalationReasonFail  = "perception_failures"
	escalationReasonStall = "perception_timeouts"
)

var errPerceiverPanic = errors.New("perceiver panicked")

// Gate is the only path from the controller to the perception call.
type Gate struct {
	perceiver Perceiver
	restarter Restarter
	counter   *FailureCounter
	timeout   time.Duration
	backoff   time.Duration
	logger    zerolog.Logger
}

// NewGate wraps p. restarter may be nil, in which case escalation only resets
// the counter.
func NewGate(p Perceiver, restarter Restarter, cfg GateConfig) *Gate {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCallTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	return &Gate{
		perceiver: p,
		restarter: restarter,
		counter:   NewFailureCounter(cfg.Threshold),
		timeout:   cfg.Timeout,
		backoff:   cfg.Backoff,
		logger:    log.WithComponent("liveness"),
	}
}

// Backoff is the delay callers wait after a nil result.
func (g *Gate) Backoff() time.Duration { return g.backoff }

// Counter exposes the failure counter for diagnostics.
func (g *Gate) Counter() *FailureCounter { return g.counter }

type callResult struct {
	res *DetectionResult
	err error
}

// Process runs the perceiver on f. It returns nil when the call failed or
// timed out; a result with no faces means nothing was detected.
func (g *Gate) Process(ctx context.Context, f frames.Frame) *DetectionResult {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult{err: fmt.Errorf("%w: %v", errPerceiverPanic, r)}
			}
		}()
		res, err := g.perceiver.Process(callCtx, f)
		done <- callResult{res: res, err: err}
	}()

	var out callResult
	select {
	case out = <-done:
	case <-callCtx.Done():
		if ctx.Err() != nil {
			// Caller went away; not a pipeline fault.
			return nil
		}
		out = callResult{err: context.DeadlineExceeded}
	}
	metrics.LivenessCallDuration.Observe(time.Since(start).Seconds())

	switch {
	case out.err == nil:
		g.counter.RecordSuccess()
		if out.res == nil {
			out.res = &DetectionResult{}
		}
		if out.res.Image == nil {
			out.res.Image = f.JPEG
		}
		if out.res.HasFace() {
			metrics.LivenessCallsTotal.WithLabelValues("detection").Inc()
		} else {
			metrics.LivenessCallsTotal.WithLabelValues("empty").Inc()
		}
		return out.res

	case errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil:
		n := g.counter.RecordTimeout()
		metrics.LivenessCallsTotal.WithLabelValues("timeout").Inc()
		g.logger.Warn().
			Int("consecutive_timeouts", n).
			Dur("timeout", g.timeout).
			Msg("perception call timed out")

	default:
		if ctx.Err() != nil {
			return nil
		}
		n := g.counter.RecordFailure()
		metrics.LivenessCallsTotal.WithLabelValues("failure").Inc()
		g.logger.Warn().
			Err(out.err).
			Int("consecutive_failures", n).
			Msg("perception call failed")
	}

	g.maybeEscalate(ctx)
	return nil
}

func (g *Gate) maybeEscalate(ctx context.Context) {
	if !g.counter.ShouldEscalate() {
		return
	}
	snap := g.counter.Snapshot()
	reason := escalationReasonFail
	if snap.ConsecutiveTimeouts >= snap.Threshold {
		reason = escalationReasonStall
	}
	g.counter.Reset()
	metrics.LivenessEscalationsTotal.WithLabelValues(reason).Inc()

	g.logger.Error().
		Str(log.FieldReason, reason).
		Int("consecutive_failures", snap.ConsecutiveFailures).
		Int("consecutive_timeouts", snap.ConsecutiveTimeouts).
		Msg("perception failure threshold reached, restarting capture pipeline")

	if g.restarter == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restartTimeout)
	defer cancel()
	if err := g.restarter.Restart(rctx, reason); err != nil {
		g.logger.Error().Err(err).Msg("capture pipeline restart failed")
	}
}
