// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the kiosk controller components and owns their
// lifecycle.
package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/kiosk/internal/config"
	"github.com/ManuGH/kiosk/internal/events"
	"github.com/ManuGH/kiosk/internal/session"
)

// Runner is a long-lived background component stopped via ctx.
type Runner interface {
	Run(ctx context.Context) error
}

// App owns the long-lived runtime lifecycle (controller loop, trigger,
// heartbeat, config watcher) and delegates HTTP to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	holder       *config.Holder
	controller   *session.Controller
	trigger      Runner
	broadcaster  *events.Broadcaster
	heartbeat    time.Duration
	reloadSignal os.Signal
	closers      []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Run starts all owned subsystems and blocks until ctx is cancelled or a
// fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}
	if a.controller == nil {
		return ErrMissingController
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.controller.Run(ctx) })

	if a.trigger != nil {
		g.Go(func() error {
			err := a.trigger.Run(ctx)
			if err != nil {
				a.logger.Error().Err(err).Str("event", "trigger.stopped").Msg("presence trigger stopped")
			}
			return err
		})
	}

	if a.broadcaster != nil {
		g.Go(func() error {
			a.broadcaster.RunHeartbeat(ctx, a.heartbeat, func() string { return string(a.controller.Phase()) })
			return nil
		})
	}

	// Config watcher is best-effort: a broken watcher never stops the kiosk.
	if a.holder != nil {
		g.Go(func() error {
			if err := a.holder.Watch(ctx); err != nil {
				a.logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start config watcher")
			}
			return nil
		})
	}

	if a.holder != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hup := make(chan os.Signal, 1)
			signal.Notify(hup, a.reloadSignal)
			defer signal.Stop(hup)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hup:
					a.logger.Info().
						Str("event", "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")
					if err := a.holder.Reload(ctx); err != nil {
						a.logger.Warn().Err(err).Str("event", "config.reload_failed").Msg("config reload failed")
					}
				}
			}
		})
	}

	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	err := g.Wait()
	a.close()
	return err
}

// close releases resources in reverse order once every loop has stopped.
func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Warn().Err(err).Str("resource", c.name).Msg("close failed")
		}
	}
}

// NewApp assembles an App from already-built parts. Build is the usual
// entry point; NewApp exists for tests and alternative wiring.
func NewApp(logger zerolog.Logger, manager Manager, controller *session.Controller, opts ...AppOption) *App {
	a := &App{
		logger:       logger,
		manager:      manager,
		controller:   controller,
		reloadSignal: syscall.SIGHUP,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AppOption configures an App.
type AppOption func(*App)

// WithTrigger runs r for the App's lifetime.
func WithTrigger(r Runner) AppOption { return func(a *App) { a.trigger = r } }

// WithHeartbeat publishes heartbeats on b every interval.
func WithHeartbeat(b *events.Broadcaster, interval time.Duration) AppOption {
	return func(a *App) {
		a.broadcaster = b
		a.heartbeat = interval
	}
}

// WithCloser closes a resource after Run's loops have returned. Closers run
// in reverse registration order.
func WithCloser(name string, fn func() error) AppOption {
	return func(a *App) { a.closers = append(a.closers, namedCloser{name: name, close: fn}) }
}

// WithConfigHolder watches the config file and reloads on SIGHUP.
func WithConfigHolder(h *config.Holder) AppOption { return func(a *App) { a.holder = h } }
