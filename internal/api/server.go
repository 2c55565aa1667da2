// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api is the local operator surface: probes, metrics, the UI event
// websocket and debug routes that drive the session controller.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/kiosk/internal/api/middleware"
	"github.com/ManuGH/kiosk/internal/captures"
	"github.com/ManuGH/kiosk/internal/config"
	"github.com/ManuGH/kiosk/internal/hardware"
	"github.com/ManuGH/kiosk/internal/health"
	"github.com/ManuGH/kiosk/internal/liveness"
	"github.com/ManuGH/kiosk/internal/session"
	"github.com/ManuGH/kiosk/internal/trigger"
)

// Controller is the session controller surface used by the debug routes.
type Controller interface {
	Snapshot() session.Snapshot
	Trigger(ctx context.Context) error
	InjectPresence(ctx context.Context, ev trigger.PresenceEvent) error
	MarkAppReady(ctx context.Context, platformID string) error
	Reset(ctx context.Context, reason string) error
}

// LeaseView exposes the hardware registry.
type LeaseView interface {
	Snapshot() []hardware.Lease
	Aggregate() int
}

// ModeView exposes the capture mode.
type ModeView interface {
	Current() hardware.Mode
}

// FailureView exposes the liveness failure counter.
type FailureView interface {
	Snapshot() liveness.CounterSnapshot
}

// HistoryView lists finished sessions.
type HistoryView interface {
	Recent(ctx context.Context, n int) ([]captures.Record, error)
}

// Deps are the router's collaborators. Failures, History and UI are optional.
type Deps struct {
	Controller Controller
	Leases     LeaseView
	Modes      ModeView
	Failures   FailureView
	History    HistoryView
	Health     *health.Manager
	UI         http.Handler
}

type server struct {
	deps Deps
}

// NewRouter builds the HTTP handler.
func NewRouter(cfg config.ServerConfig, deps Deps) http.Handler {
	s := &server{deps: deps}
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics: true,
		EnableLogging: true,
		QuietPaths:    []string{"/healthz", "/readyz", "/metrics"},
	})

	r.Get("/healthz", deps.Health.ServeHealth)
	r.Get("/readyz", deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())
	if deps.UI != nil {
		r.Handle("/ws/ui", deps.UI)
	}

	if cfg.DebugEnabled {
		r.Route("/debug", func(r chi.Router) {
			r.Use(middleware.DebugRateLimit(cfg.DebugRateLimit))
			r.Get("/status", s.handleStatus)
			r.Get("/sessions", s.handleSessions)
			r.Post("/presence", s.handlePresence)
			r.Post("/trigger", s.handleTrigger)
			r.Post("/app-ready", s.handleAppReady)
			r.Post("/reset", s.handleReset)
		})
	}
	return r
}
