// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/kiosk/internal/events"
	"github.com/ManuGH/kiosk/internal/frames"
	"github.com/ManuGH/kiosk/internal/liveness"
)

// collect runs human_detect: a validation grace window waiting for the first
// face, then frame collection until the duration elapses or enough frames
// pass. It returns the best passing frame.
func (r *run) collect(ctx context.Context) (*candidate, error) {
	t := r.s.timings
	var best *candidate

	// The grace window ends at the first face and is not re-armed if the
	// face is lost; frames seen during grace count toward collection.
	graceEnd := time.Now().Add(t.ValidationGrace)
	found := false
	for !found && time.Now().Before(graceEnd) {
		res, f, err := r.sample(ctx, graceEnd)
		if err != nil {
			return nil, err
		}
		if res == nil {
			continue
		}
		best = r.account(res, f, best)
		found = res.HasFace()
	}
	if !found {
		r.logger.Warn().Dur("validation_grace", t.ValidationGrace).Msg("no face during validation grace, collecting anyway")
	}

	deadline := time.Now().Add(t.CollectDuration)
	for time.Now().Before(deadline) && r.passing() < t.MinPassingFrames {
		res, f, err := r.sample(ctx, deadline)
		if err != nil {
			return nil, err
		}
		if res == nil {
			continue
		}
		best = r.account(res, f, best)
	}

	stats := r.s.snapshot(PhaseHumanDetect).Frames
	switch {
	case stats.Faces == 0:
		return nil, fail(ReasonNoFaceDetected, nil)
	case best == nil:
		return nil, fail(ReasonNoFramesCaptured, nil)
	}
	r.logger.Info().
		Int("frames_seen", stats.Seen).
		Int("frames_passing", stats.Passing).
		Float64("best_score", best.score).
		Uint32("best_frame", best.frame.Number).
		Msg("frame collection finished")
	return best, nil
}

// sample waits for one frame no later than deadline and runs it through the
// gate. A nil result with a nil error means no usable detection; the caller
// re-checks its deadline and tries again.
func (r *run) sample(ctx context.Context, deadline time.Time) (*liveness.DetectionResult, frames.Frame, error) {
	wctx, cancel := context.WithDeadline(ctx, deadline)
	f, err := r.c.deps.Frames.Next(wctx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, f, context.Cause(ctx)
		}
		if errors.Is(err, context.DeadlineExceeded) && !time.Now().Before(deadline) {
			return nil, f, nil
		}
		r.logger.Debug().Err(err).Msg("frame wait failed")
		return nil, f, r.backoff(ctx)
	}

	res := r.c.deps.Gate.Process(ctx, f)
	if res == nil {
		if ctx.Err() != nil {
			return nil, f, context.Cause(ctx)
		}
		return nil, f, r.backoff(ctx)
	}
	return res, f, nil
}

func (r *run) backoff(ctx context.Context) error {
	d := r.c.deps.Gate.Backoff()
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

func (r *run) passing() int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.frames.Passing
}

// account updates frame stats, publishes throttled metrics and returns the
// new best passing candidate.
func (r *run) account(res *liveness.DetectionResult, f frames.Frame, best *candidate) *candidate {
	score := res.Composite(r.c.deps.Weights)
	passing := res.Passing()
	if passing && (best == nil || score > best.score) {
		best = &candidate{frame: f, res: res, score: score}
	}
	r.s.update(func(s *Session) {
		s.frames.Seen++
		if res.HasFace() {
			s.frames.Faces++
		}
		if passing {
			s.frames.Passing++
		}
		if best != nil {
			s.frames.BestScore = best.score
		}
	})

	if r.c.throttle.Allow() {
		r.c.publish(events.Metrics(string(r.c.machine.State()), map[string]any{
			"stability":     res.Stability,
			"focus":         res.Focus,
			"composite":     score,
			"instant_alive": res.InstantAlive,
			"stable_alive":  res.StableAlive,
			"faces":         len(res.Faces),
			"passing":       passing,
		}))
	}
	return best
}
