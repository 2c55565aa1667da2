// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package session sequences a kiosk visit from presence trigger to upload
// acknowledgement. The Controller owns the single in-flight session, the
// presence-loss grace timer and every hardware lease taken for a session.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/kiosk/internal/captures"
	"github.com/ManuGH/kiosk/internal/config"
	"github.com/ManuGH/kiosk/internal/events"
	"github.com/ManuGH/kiosk/internal/fsm"
	"github.com/ManuGH/kiosk/internal/frames"
	"github.com/ManuGH/kiosk/internal/hardware"
	"github.com/ManuGH/kiosk/internal/liveness"
	"github.com/ManuGH/kiosk/internal/log"
	"github.com/ManuGH/kiosk/internal/metrics"
	"github.com/ManuGH/kiosk/internal/pairing"
	"github.com/ManuGH/kiosk/internal/telemetry"
	"github.com/ManuGH/kiosk/internal/trigger"
)

var (
	// ErrBusy is returned by Trigger while a session is in flight.
	ErrBusy = errors.New("session already in flight")
	// ErrNoSession is returned by commands that need an active session.
	ErrNoSession = errors.New("no active session")
	// ErrNotRunning is returned when the controller loop has exited.
	ErrNotRunning = errors.New("controller not running")
)

// Leases is the hardware registry surface the controller uses.
type Leases interface {
	Acquire(ctx context.Context, source string) error
	Release(ctx context.Context, source string)
	Count(source string) int
}

// Modes switches the capture mode.
type Modes interface {
	Set(ctx context.Context, mode hardware.Mode) (hardware.Mode, error)
	Current() hardware.Mode
}

// FrameSource yields fresh frames while the pipeline is held.
type FrameSource interface {
	Next(ctx context.Context) (frames.Frame, error)
}

// Gate is the liveness gate.
type Gate interface {
	Process(ctx context.Context, f frames.Frame) *liveness.DetectionResult
	Backoff() time.Duration
}

// Pairing is the pairing backend.
type Pairing interface {
	RequestToken(ctx context.Context) (pairing.Token, error)
	Open(ctx context.Context, token string) (pairing.Bridge, error)
}

// Publisher receives UI events.
type Publisher interface {
	Publish(ev events.Event)
}

// CaptureSink stores the best frame.
type CaptureSink interface {
	SaveBest(ctx context.Context, jpeg []byte, meta captures.Meta) (string, error)
}

// HistorySink records finished sessions.
type HistorySink interface {
	Record(ctx context.Context, r captures.Record) error
}

// Deps are the controller's collaborators. Captures and History are optional.
type Deps struct {
	Leases   Leases
	Modes    Modes
	Frames   FrameSource
	Gate     Gate
	Pairing  Pairing
	Events   Publisher
	Captures CaptureSink
	History  HistorySink
	Weights  liveness.Weights
	Timings  config.SessionConfig
}

type commandKind int

const (
	cmdTrigger commandKind = iota
	cmdPresence
	cmdAppReady
	cmdReset
)

type command struct {
	kind       commandKind
	presence   trigger.PresenceEvent
	platformID string
	reason     string
	reply      chan error
}

// Controller is the session state machine.
type Controller struct {
	deps     Deps
	machine  *fsm.Machine[Phase, Event]
	presence <-chan trigger.PresenceEvent
	cmds     chan command
	done     chan *Session
	running  chan struct{}
	tracer   trace.Tracer
	logger   zerolog.Logger
	throttle *events.Throttle

	mu      sync.Mutex
	timings config.SessionConfig
	cur     *Session
	last    *Snapshot

	// owned by the Run goroutine
	grace  *time.Timer
	graceC <-chan time.Time
}

// New builds a controller consuming presence edges from presence.
func New(deps Deps, presence <-chan trigger.PresenceEvent) *Controller {
	if deps.Weights == (liveness.Weights{}) {
		deps.Weights = liveness.DefaultWeights
	}
	c := &Controller{
		deps:     deps,
		machine:  newMachine(),
		presence: presence,
		cmds:     make(chan command),
		done:     make(chan *Session, 1),
		running:  make(chan struct{}),
		tracer:   telemetry.Tracer("github.com/ManuGH/kiosk/internal/session"),
		logger:   log.WithComponent("session"),
		throttle: events.NewThrottle(deps.Timings.MetricsInterval),
		timings:  deps.Timings,
	}
	c.machine.Observe(func(from, to Phase, ev Event) {
		metrics.SessionPhaseTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	})
	return c
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase { return c.machine.State() }

// ApplyTimings replaces the timing configuration. Sessions already in flight
// keep the values they started with.
func (c *Controller) ApplyTimings(t config.SessionConfig) {
	c.mu.Lock()
	c.timings = t
	c.mu.Unlock()
	c.logger.Info().
		Dur("presence_grace", t.PresenceGrace).
		Dur("validation_grace", t.ValidationGrace).
		Dur("collect_duration", t.CollectDuration).
		Int("min_passing_frames", t.MinPassingFrames).
		Msg("session timings updated")
}

// Timings returns the current timing configuration.
func (c *Controller) Timings() config.SessionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timings
}

// Run is the controller event loop. It returns when ctx is done, after the
// in-flight session (if any) has run its cleanup.
func (c *Controller) Run(ctx context.Context) error {
	close(c.running)
	c.publishState(PhaseIdle, nil, "")
	c.logger.Info().Msg("session controller started")

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			c.logger.Info().Msg("session controller stopped")
			return nil

		case ev, ok := <-c.presence:
			if !ok {
				c.presence = nil
				continue
			}
			c.onPresence(ctx, ev)

		case cmd := <-c.cmds:
			cmd.reply <- c.onCommand(ctx, cmd)

		case s := <-c.done:
			c.onSessionDone(s)

		case <-c.graceC:
			c.onGraceExpired()
		}
	}
}

func (c *Controller) onPresence(ctx context.Context, ev trigger.PresenceEvent) {
	phase := c.machine.State()
	logger := c.logger.With().
		Bool(log.FieldPresent, ev.Present).
		Str(log.FieldSource, ev.Source).
		Str(log.FieldPhase, string(phase)).
		Logger()

	if ev.Present {
		if c.graceC != nil {
			c.disarmGrace()
			metrics.RecordPresenceEdge(true, "grace_cleared")
			logger.Info().Msg("presence reconfirmed, grace countdown cancelled")
			return
		}
		if phase == PhaseIdle && c.current() == nil {
			metrics.RecordPresenceEdge(true, "session_start")
			c.start(ctx, ev)
			return
		}
		metrics.RecordPresenceEdge(true, "ignored")
		logger.Debug().Msg("presence edge ignored, session in flight")
		return
	}

	if c.current() != nil && phase.presenceGuarded() {
		if c.graceC == nil {
			c.armGrace(c.current().timings.PresenceGrace)
			metrics.RecordPresenceEdge(false, "grace_armed")
			logger.Info().Msg("presence lost, grace countdown started")
		}
		return
	}
	metrics.RecordPresenceEdge(false, "ignored")
}

func (c *Controller) armGrace(d time.Duration) {
	c.disarmGrace()
	c.grace = time.NewTimer(d)
	c.graceC = c.grace.C
}

func (c *Controller) disarmGrace() {
	if c.grace != nil {
		c.grace.Stop()
	}
	c.grace = nil
	c.graceC = nil
}

func (c *Controller) onGraceExpired() {
	c.grace, c.graceC = nil, nil
	s := c.current()
	if s == nil || !c.machine.State().presenceGuarded() {
		return
	}
	c.logger.Warn().
		Str(log.FieldSessionID, s.ID).
		Str(log.FieldPhase, string(c.machine.State())).
		Msg("presence grace window expired, cancelling session")
	s.cancel(fail(ReasonPresenceLost, nil))
}

func (c *Controller) onCommand(ctx context.Context, cmd command) error {
	switch cmd.kind {
	case cmdPresence:
		c.onPresence(ctx, cmd.presence)
		return nil

	case cmdTrigger:
		if c.current() != nil || c.machine.State() != PhaseIdle {
			return ErrBusy
		}
		metrics.RecordPresenceEdge(true, "session_start")
		c.start(ctx, trigger.PresenceEvent{Present: true, At: time.Now(), Source: trigger.SourceManual})
		return nil

	case cmdAppReady:
		s := c.current()
		if s == nil {
			return ErrNoSession
		}
		select {
		case s.appReady <- cmd.platformID:
		default:
		}
		return nil

	case cmdReset:
		s := c.current()
		phase := c.machine.State()
		if s == nil {
			c.publish(events.Watchdog(string(phase), "force_idle", "idle", cmd.reason))
			return nil
		}
		c.disarmGrace()
		c.logger.Warn().
			Str(log.FieldSessionID, s.ID).
			Str(log.FieldReason, cmd.reason).
			Str(log.FieldPhase, string(phase)).
			Msg("forcing session back to idle")
		s.cancel(fail(ReasonReset, errors.New(cmd.reason)))
		return nil
	}
	return nil
}

func (c *Controller) onSessionDone(s *Session) {
	c.disarmGrace()
	if s.final != "" {
		c.fire(s.ctx, s.final, s.finalData, "")
	}
	snap := s.snapshot(c.machine.State())
	c.mu.Lock()
	c.cur = nil
	c.last = &snap
	c.mu.Unlock()
}

func (c *Controller) shutdown() {
	c.disarmGrace()
	s := c.current()
	if s == nil {
		return
	}
	s.cancel(fail(ReasonShutdown, nil))
	c.onSessionDone(<-c.done)
}

func (c *Controller) current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *Controller) send(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case <-c.running:
	default:
		return ErrNotRunning
	}
	select {
	case c.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger starts a session as if a presence edge arrived while idle.
func (c *Controller) Trigger(ctx context.Context) error {
	return c.send(ctx, command{kind: cmdTrigger})
}

// InjectPresence delivers a presence edge through the command path. Used by
// the operator surface to simulate the sensor.
func (c *Controller) InjectPresence(ctx context.Context, ev trigger.PresenceEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if ev.Source == "" {
		ev.Source = trigger.SourceManual
	}
	return c.send(ctx, command{kind: cmdPresence, presence: ev})
}

// MarkAppReady simulates the app signalling readiness with platformID.
func (c *Controller) MarkAppReady(ctx context.Context, platformID string) error {
	return c.send(ctx, command{kind: cmdAppReady, platformID: platformID})
}

// Reset forces the in-flight session (if any) back to idle through the
// normal cleanup path.
func (c *Controller) Reset(ctx context.Context, reason string) error {
	if reason == "" {
		reason = "operator_reset"
	}
	return c.send(ctx, command{kind: cmdReset, reason: reason})
}

func (c *Controller) publishState(p Phase, data map[string]any, errMsg string) {
	c.publish(events.State(string(p), data, errMsg))
}
