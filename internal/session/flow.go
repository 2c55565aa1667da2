// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/kiosk/internal/captures"
	"github.com/ManuGH/kiosk/internal/events"
	"github.com/ManuGH/kiosk/internal/frames"
	"github.com/ManuGH/kiosk/internal/hardware"
	"github.com/ManuGH/kiosk/internal/liveness"
	"github.com/ManuGH/kiosk/internal/log"
	"github.com/ManuGH/kiosk/internal/metrics"
	"github.com/ManuGH/kiosk/internal/pairing"
	"github.com/ManuGH/kiosk/internal/telemetry"
	"github.com/ManuGH/kiosk/internal/trigger"
)

// start registers a new session and moves to pairing_request. Called from
// the Run loop only.
func (c *Controller) start(ctx context.Context, ev trigger.PresenceEvent) {
	s := newSession(ctx, ev.Source, c.Timings())
	c.mu.Lock()
	c.cur = s
	c.mu.Unlock()
	c.throttle.Reset()

	if !c.fire(s.ctx, EventPresence, map[string]any{"session_id": s.ID, "trigger": ev.Source}, "") {
		s.cancel(fail(ReasonInternal, nil))
	}
	go c.runSession(s)
}

// fire applies ev and announces the new phase. A rejected transition is a
// programming error; it is logged and counted, never fatal.
func (c *Controller) fire(ctx context.Context, ev Event, data map[string]any, errMsg string) bool {
	logger := log.WithContext(ctx, c.logger)
	from, to, err := c.machine.Fire(ev)
	if err != nil {
		metrics.InvalidTransitionTotal.WithLabelValues(string(from), string(ev)).Inc()
		logger.Error().Err(err).Str(log.FieldPhase, string(from)).Str(log.FieldEvent, string(ev)).Msg("phase transition rejected")
		return false
	}
	logger.Info().
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(to)).
		Str(log.FieldEvent, string(ev)).
		Msg("phase changed")
	trace.SpanFromContext(ctx).AddEvent("phase", trace.WithAttributes(
		telemetry.TransitionAttributes(string(from), string(to))...,
	))
	c.publishState(to, data, errMsg)
	return true
}

func (c *Controller) publish(ev events.Event) {
	if c.deps.Events != nil {
		c.deps.Events.Publish(ev)
	}
}

type candidate struct {
	frame frames.Frame
	res   *liveness.DetectionResult
	score float64
}

// run carries the per-session resources that cleanup must undo.
type run struct {
	c      *Controller
	s      *Session
	logger zerolog.Logger
	bridge pairing.Bridge
	leased bool
	raised bool
}

// runSession drives one session to completion and always returns the
// controller to idle.
func (c *Controller) runSession(s *Session) {
	ctx, span := c.tracer.Start(s.ctx, "session.run", trace.WithAttributes(
		telemetry.SessionAttributes(s.ID, s.Trigger)...,
	))
	defer span.End()

	r := &run{c: c, s: s, logger: log.WithContext(ctx, c.logger)}
	r.logger.Info().Str(log.FieldSource, s.Trigger).Msg("session started")

	err := r.flow(ctx)
	r.cleanup(ctx)

	outcome, reason := OutcomeComplete, Reason("")
	if cancelled, ok := cancelReason(ctx); ok {
		outcome, reason = OutcomeCancelled, cancelled
		phase := c.machine.State()
		r.logger.Info().Str(log.FieldReason, string(reason)).Str(log.FieldPhase, string(phase)).Msg("session cancelled")
		r.forcedIdle(ctx, phase)
	} else if err != nil {
		outcome, reason = OutcomeError, ReasonOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(reason))
		s.update(func(s *Session) { s.lastError = err.Error() })
		r.logger.Error().Err(err).Str(log.FieldReason, string(reason)).Msg("session failed")
		c.fire(ctx, EventFail, map[string]any{"reason": string(reason)}, reason.Text())
		r.display(ctx, s.timings.ErrorDisplay)
	} else {
		r.display(ctx, s.timings.CompleteDisplay)
	}

	r.finish(ctx, outcome, reason)
	s.final = EventDisplayDone
	if phase := c.machine.State(); phase != PhaseComplete && phase != PhaseError {
		s.final = EventCancel
		s.finalData = map[string]any{"reason": string(reason)}
	}
	c.done <- s
}

// display holds a terminal screen. The outcome is already decided; a reset
// that cuts the screen short is still announced as a forced return to idle.
func (r *run) display(ctx context.Context, d time.Duration) {
	r.hold(ctx, d)
	if _, ok := cancelReason(ctx); ok {
		r.forcedIdle(ctx, r.c.machine.State())
	}
}

// forcedIdle publishes the watchdog notice for an operator reset.
func (r *run) forcedIdle(ctx context.Context, phase Phase) {
	var f *Failure
	if !errors.As(context.Cause(ctx), &f) || f.Reason != ReasonReset {
		return
	}
	note := string(f.Reason)
	if f.Err != nil {
		note = f.Err.Error()
	}
	r.logger.Warn().Str(log.FieldPhase, string(phase)).Msg("session forced to idle")
	r.c.publish(events.Watchdog(string(phase), "force_idle", "idle", note))
}

// cancelReason reports why ctx was cancelled, if it was. A parent
// cancellation without a recorded cause is a shutdown.
func cancelReason(ctx context.Context) (Reason, bool) {
	if ctx.Err() == nil {
		return "", false
	}
	var f *Failure
	if errors.As(context.Cause(ctx), &f) && f.Reason.cancels() {
		return f.Reason, true
	}
	return ReasonShutdown, true
}

func (r *run) finish(ctx context.Context, outcome string, reason Reason) {
	s := r.s
	ended := time.Now()
	s.update(func(s *Session) {
		s.endedAt = ended
		s.outcome = outcome
		s.reason = reason
	})
	snap := s.snapshot(r.c.machine.State())

	trace.SpanFromContext(ctx).SetAttributes(telemetry.OutcomeAttributes(
		outcome, string(reason), snap.Frames.Seen, snap.Frames.Passing, snap.Frames.BestScore)...)
	metrics.SessionOutcomesTotal.WithLabelValues(outcome, string(reason)).Inc()
	metrics.SessionDuration.WithLabelValues(outcome).Observe(ended.Sub(s.StartedAt).Seconds())

	if h := r.c.deps.History; h != nil {
		rec := captures.Record{
			SessionID:     s.ID,
			StartedAt:     s.StartedAt,
			EndedAt:       ended,
			FinalPhase:    string(r.finalPhase(outcome)),
			Outcome:       outcome,
			Reason:        string(reason),
			Trigger:       s.Trigger,
			CameraUsed:    snap.CameraActivated || snap.Frames.Seen > 0,
			BestScore:     snap.Frames.BestScore,
			FramesSeen:    snap.Frames.Seen,
			FramesPassing: snap.Frames.Passing,
		}
		if err := h.Record(context.WithoutCancel(ctx), rec); err != nil {
			r.logger.Warn().Err(err).Msg("session history not recorded")
		}
	}

	r.logger.Info().
		Str("outcome", outcome).
		Str(log.FieldReason, string(reason)).
		Dur("duration", ended.Sub(s.StartedAt)).
		Int("frames_seen", snap.Frames.Seen).
		Int("frames_passing", snap.Frames.Passing).
		Msg("session finished")
}

func (r *run) finalPhase(outcome string) Phase {
	switch outcome {
	case OutcomeComplete:
		return PhaseComplete
	case OutcomeError:
		return PhaseError
	}
	return PhaseIdle
}

// hold keeps the terminal screen up for d unless the session is cancelled.
func (r *run) hold(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// flow runs the phases from pairing_request through waiting_ack.
func (r *run) flow(ctx context.Context) error {
	c, s := r.c, r.s

	token, err := c.deps.Pairing.RequestToken(ctx)
	if err != nil {
		return fail(ReasonTokenRequestFailed, err)
	}
	s.update(func(s *Session) { s.tokenExpiresAt = token.ExpiresAt() })
	data := map[string]any{"token": token.Token, "qr": token.QR}
	if token.ExpiresIn > 0 {
		data["expires_in"] = token.ExpiresIn.Seconds()
		data["expires_at"] = token.ExpiresAt()
	}
	c.fire(ctx, EventTokenIssued, data, "")

	if s.timings.WarmStandby {
		if err := r.acquireCamera(ctx, hardware.ModeActive); err != nil {
			return err
		}
	}

	bridge, err := c.deps.Pairing.Open(ctx, token.Token)
	if err != nil {
		return fail(ReasonBridgeConnectFailed, err)
	}
	r.bridge = bridge

	platformID, err := r.awaitApp(ctx, token)
	if err != nil {
		return err
	}

	// human_detect is only announced once capture runs in validation mode.
	if r.leased {
		if _, err := c.deps.Modes.Set(ctx, hardware.ModeValidation); err != nil {
			return fail(ReasonModeChangeFailed, err)
		}
	} else if err := r.acquireCamera(ctx, hardware.ModeValidation); err != nil {
		return err
	}
	c.fire(ctx, EventAppReady, map[string]any{"platform_id": platformID}, "")

	best, err := r.collect(ctx)
	if err != nil {
		return err
	}
	c.fire(ctx, EventFramesCollected, map[string]any{
		"best_score": best.score,
		"frames":     s.snapshot(PhaseStabilizing).Frames,
	}, "")
	r.releaseCamera(ctx)
	r.saveBest(ctx, platformID, best)
	c.fire(ctx, EventBestSelected, map[string]any{"best_score": best.score}, "")

	if err := r.bridge.Upload(ctx, platformID, best.frame.JPEG); err != nil {
		return fail(ReasonUploadFailed, err)
	}
	c.fire(ctx, EventUploaded, map[string]any{"platform_id": platformID}, "")

	if err := r.awaitAck(ctx); err != nil {
		return err
	}
	c.fire(ctx, EventAcked, map[string]any{"platform_id": platformID}, "")
	return nil
}

func (r *run) acquireCamera(ctx context.Context, mode hardware.Mode) error {
	if err := r.c.deps.Leases.Acquire(ctx, hardware.SourceSession); err != nil {
		return fail(ReasonCameraStartFailed, err)
	}
	r.leased = true
	r.s.setCamera(true)
	trace.SpanFromContext(ctx).AddEvent("camera.acquired")

	// Mode is raised even if Set fails so cleanup pushes idle_detection back.
	r.raised = true
	if _, err := r.c.deps.Modes.Set(ctx, mode); err != nil {
		return fail(ReasonModeChangeFailed, err)
	}
	return nil
}

// releaseCamera drops capture back to idle_detection and releases the
// session lease. Safe to call more than once.
func (r *run) releaseCamera(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if r.raised {
		r.raised = false
		if _, err := r.c.deps.Modes.Set(ctx, hardware.ModeIdleDetection); err != nil {
			r.logger.Warn().Err(err).Msg("could not return capture to idle detection")
		}
	}
	if r.leased {
		r.leased = false
		r.c.deps.Leases.Release(ctx, hardware.SourceSession)
		r.s.setCamera(false)
		trace.SpanFromContext(ctx).AddEvent("camera.released")
	}
}

func (r *run) cleanup(ctx context.Context) {
	r.releaseCamera(ctx)
	if r.bridge != nil {
		if err := r.bridge.Close(); err != nil {
			r.logger.Debug().Err(err).Msg("bridge close")
		}
		r.bridge = nil
	}
}

// awaitApp waits in qr_display and waiting_activation until the app reports
// ready and returns its platform id.
func (r *run) awaitApp(ctx context.Context, token pairing.Token) (string, error) {
	timeout := r.s.timings.AppReadyTimeout
	if timeout <= 0 {
		timeout = token.AppReadyTimeout()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	msgs := r.bridge.Events()
	for {
		select {
		case <-ctx.Done():
			return "", context.Cause(ctx)

		case <-timer.C:
			return "", fail(ReasonAppTimeout, fmt.Errorf("app not ready after %s", timeout))

		case id := <-r.s.appReady:
			r.readyFrom(ctx, id)
			return id, nil

		case msg, ok := <-msgs:
			if !ok {
				return "", fail(ReasonBridgeConnectFailed, pairing.ErrBridgeClosed)
			}
			r.forward(msg)
			switch {
			case msg.Failed():
				return "", fail(ReasonBackendError, errors.New(msg.Text))
			case msg.Kind == pairing.KindAppReady:
				r.readyFrom(ctx, msg.PlatformID)
				return msg.PlatformID, nil
			case msg.Kind == pairing.KindJoined && msg.Role != "hardware",
				msg.Kind == pairing.KindFromApp:
				r.attach(ctx)
			}
		}
	}
}

func (r *run) attach(ctx context.Context) {
	if r.c.machine.State() == PhaseQRDisplay {
		r.c.fire(ctx, EventAppAttached, nil, "")
	}
}

func (r *run) readyFrom(ctx context.Context, platformID string) {
	r.attach(ctx)
	r.s.update(func(s *Session) { s.platformID = platformID })
}

// forward relays a bridge message to the UI.
func (r *run) forward(msg pairing.Message) {
	data := make(map[string]any, len(msg.Data)+5)
	for k, v := range msg.Data {
		data[k] = v
	}
	data["event"] = string(msg.Kind)
	if msg.Role != "" {
		data["role"] = msg.Role
	}
	if msg.PlatformID != "" {
		data["platform_id"] = msg.PlatformID
	}
	if msg.StatusCode != 0 {
		data["status_code"] = msg.StatusCode
		data["latency_ms"] = msg.LatencyMS
	}
	if msg.Text != "" {
		data["message"] = msg.Text
	}
	if msg.Code != "" {
		data["code"] = msg.Code
	}
	r.c.publish(events.Backend(string(r.c.machine.State()), data))
}

// awaitAck waits for the backend's verdict on the upload.
func (r *run) awaitAck(ctx context.Context) error {
	timeout := r.s.timings.AckTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	msgs := r.bridge.Events()
	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-timer.C:
			return fail(ReasonAckTimeout, fmt.Errorf("no backend response after %s", timeout))
		case msg, ok := <-msgs:
			if !ok {
				return fail(ReasonBackendError, pairing.ErrBridgeClosed)
			}
			r.forward(msg)
			if msg.Failed() {
				if msg.Kind == pairing.KindError {
					return fail(ReasonBackendError, errors.New(msg.Text))
				}
				return fail(ReasonBackendError, fmt.Errorf("backend status %d", msg.StatusCode))
			}
			if msg.Kind == pairing.KindBackendResponse {
				r.logger.Info().
					Int("status_code", msg.StatusCode).
					Float64("latency_ms", msg.LatencyMS).
					Msg("backend acknowledged upload")
				return nil
			}
		}
	}
}

func (r *run) saveBest(ctx context.Context, platformID string, best *candidate) {
	store := r.c.deps.Captures
	if store == nil {
		return
	}
	stats := r.s.snapshot(PhaseStabilizing).Frames
	meta := captures.Meta{
		SessionID:     r.s.ID,
		PlatformID:    platformID,
		CapturedAt:    best.frame.Time(),
		FrameNumber:   best.frame.Number,
		Width:         best.frame.Width,
		Height:        best.frame.Height,
		Composite:     best.score,
		Stability:     best.res.Stability,
		Focus:         best.res.Focus,
		InstantAlive:  best.res.InstantAlive,
		StableAlive:   best.res.StableAlive,
		DepthOK:       best.res.DepthOK,
		FramesSeen:    stats.Seen,
		FramesPassing: stats.Passing,
	}
	if _, err := store.SaveBest(context.WithoutCancel(ctx), best.frame.JPEG, meta); err != nil {
		r.logger.Warn().Err(err).Msg("best frame not saved")
	}
}
