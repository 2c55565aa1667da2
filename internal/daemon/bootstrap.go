// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ManuGH/kiosk/internal/api"
	"github.com/ManuGH/kiosk/internal/captures"
	"github.com/ManuGH/kiosk/internal/config"
	"github.com/ManuGH/kiosk/internal/events"
	"github.com/ManuGH/kiosk/internal/frames"
	"github.com/ManuGH/kiosk/internal/hardware"
	"github.com/ManuGH/kiosk/internal/health"
	"github.com/ManuGH/kiosk/internal/liveness"
	"github.com/ManuGH/kiosk/internal/log"
	"github.com/ManuGH/kiosk/internal/pairing"
	"github.com/ManuGH/kiosk/internal/session"
	"github.com/ManuGH/kiosk/internal/trigger"
)

// Build wires every component from cfg. On error, anything already opened is
// closed again before returning.
func Build(ctx context.Context, cfg config.AppConfig, holder *config.Holder) (*App, error) {
	logger := log.WithComponent("daemon")

	var cleanups []func()
	fail := func(err error) (*App, error) {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		return nil, err
	}

	rdb, err := frames.NewClient(ctx, cfg.Redis)
	if err != nil {
		return fail(fmt.Errorf("frame transport: %w", err))
	}
	cleanups = append(cleanups, func() { _ = rdb.Close() })

	sub := frames.NewSubscriber(rdb, cfg.Redis.FrameChannel, cfg.Redis.ControlChannel, cfg.Session.FrameTimeout)
	reg := hardware.NewRegistry(sub)

	modes := hardware.NewModeSelector(frames.NewModePublisher(rdb, cfg.Redis.ModeKey, cfg.Redis.ControlChannel))
	modes.Require(func() bool { return reg.Holds(hardware.SourceSession) })
	if cfg.Trigger.BurstInterval > 0 {
		modes.SetIdleInterval(cfg.Trigger.BurstInterval)
	}
	if _, err := modes.Set(ctx, hardware.ModeIdleDetection); err != nil {
		return fail(fmt.Errorf("initial capture mode: %w", err))
	}

	perceiver := liveness.NewHTTPPerceiver(cfg.Liveness.PerceptionURL, &http.Client{
		Timeout:   cfg.Liveness.CallTimeout * 2,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
	gate := liveness.NewGate(perceiver, reg, liveness.GateConfig{
		Threshold: cfg.Liveness.FailureThreshold,
		Timeout:   cfg.Liveness.CallTimeout,
		Backoff:   cfg.Liveness.Backoff,
	})
	weights := liveness.DefaultWeights
	if cfg.Liveness.StabilityWeight > 0 || cfg.Liveness.FocusWeight > 0 {
		weights.Stability = cfg.Liveness.StabilityWeight
		weights.Focus = cfg.Liveness.FocusWeight
	}
	if cfg.Liveness.FocusNorm > 0 {
		weights.FocusNorm = cfg.Liveness.FocusNorm
	}

	broadcaster := events.NewBroadcaster(events.DefaultQueueSize)

	deps := session.Deps{
		Leases:  reg,
		Modes:   modes,
		Frames:  sub,
		Gate:    gate,
		Pairing: pairing.NewClient(cfg.Backend),
		Events:  broadcaster,
		Weights: weights,
		Timings: cfg.Session,
	}

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewPingChecker("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}))
	hm.RegisterChecker(health.NewFrameChecker(reg.Active, sub.LastFrameAt, 2*cfg.Session.FrameTimeout))

	var history *captures.History
	if cfg.Captures.Enabled {
		store, err := captures.NewStore(cfg.Captures.Dir)
		if err != nil {
			return fail(fmt.Errorf("capture store: %w", err))
		}
		deps.Captures = store
		hm.RegisterChecker(health.NewDirChecker("captures", cfg.Captures.Dir))

		history, err = captures.OpenHistory(ctx, cfg.Captures.HistoryDB)
		if err != nil {
			return fail(fmt.Errorf("session history: %w", err))
		}
		cleanups = append(cleanups, func() { _ = history.Close() })
		deps.History = history
		hm.RegisterChecker(health.NewPingChecker("history", history.DB().PingContext))
	}

	runner, closeReader, err := buildTrigger(ctx, cfg.Trigger, reg, sub, modes, perceiver)
	if err != nil {
		return fail(err)
	}
	if closeReader != nil {
		cleanups = append(cleanups, func() { _ = closeReader() })
	}

	controller := session.New(deps, runner.Events())
	if holder != nil {
		holder.OnReload(func(next config.AppConfig) {
			controller.ApplyTimings(next.Session)
		})
	}

	apiDeps := api.Deps{
		Controller: controller,
		Leases:     reg,
		Modes:      modes,
		Failures:   gate.Counter(),
		Health:     hm,
		UI:         events.NewHandler(broadcaster, events.HandlerConfig{}),
	}
	if history != nil {
		apiDeps.History = history
	}
	handler := otelhttp.NewHandler(api.NewRouter(cfg.Server, apiDeps), "kiosk.api")

	mgr, err := NewManager(cfg.Server, Deps{
		Logger:     log.WithComponent("api"),
		APIHandler: handler,
	})
	if err != nil {
		return fail(err)
	}
	mgr.RegisterShutdownHook("ui_notify", func(context.Context) error {
		broadcaster.Publish(events.Watchdog(string(controller.Phase()), "shutdown", "stopping", "daemon shutdown"))
		return nil
	})

	closers := []AppOption{WithCloser("redis", rdb.Close)}
	closers = append(closers, WithCloser("frame_stream", func() error {
		return sub.Stop(context.Background())
	}))
	if history != nil {
		closers = append(closers, WithCloser("history", history.Close))
	}
	if closeReader != nil {
		closers = append(closers, WithCloser("distance_reader", closeReader))
	}

	logger.Info().
		Str("trigger", cfg.Trigger.Source).
		Bool("captures", cfg.Captures.Enabled).
		Bool("warm_standby", cfg.Session.WarmStandby).
		Str("listen", cfg.Server.ListenAddr).
		Msg("kiosk controller wired")

	opts := append([]AppOption{
		WithTrigger(runner),
		WithHeartbeat(broadcaster, cfg.Session.HeartbeatInterval),
		WithConfigHolder(holder),
	}, closers...)
	return NewApp(logger, mgr, controller, opts...), nil
}

func buildTrigger(ctx context.Context, cfg config.TriggerConfig, reg *hardware.Registry, sub *frames.Subscriber,
	modes *hardware.ModeSelector, detector liveness.Detector) (*trigger.Runner, func() error, error) {
	switch cfg.Source {
	case config.TriggerDistance:
		reader, err := trigger.StartProcessReader(ctx, cfg.ReaderBinary, cfg.ReaderArgs...)
		if err != nil {
			return nil, nil, fmt.Errorf("presence trigger: %w", err)
		}
		var mu sync.Mutex
		restart := func(rctx context.Context) (trigger.Source, error) {
			mu.Lock()
			defer mu.Unlock()
			_ = reader.Close()
			next, err := trigger.StartProcessReader(rctx, cfg.ReaderBinary, cfg.ReaderArgs...)
			if err != nil {
				return nil, err
			}
			reader = next
			return trigger.NewDistanceSource(next, cfg.ThresholdMM, cfg.Debounce), nil
		}
		closeReader := func() error {
			mu.Lock()
			defer mu.Unlock()
			return reader.Close()
		}
		src := trigger.NewDistanceSource(reader, cfg.ThresholdMM, cfg.Debounce)
		return trigger.NewRunner(src, float64(cfg.PollHz), trigger.WithRestart(restart)), closeReader, nil
	case config.TriggerVision:
		src := trigger.NewVisionBurstSource(sub, detector, modes, cfg.BurstInterval)
		return trigger.NewRunner(src, float64(cfg.PollHz), trigger.WithLease(reg, hardware.SourceIdleWatch)), nil, nil
	default:
		return nil, nil, fmt.Errorf("presence trigger: unknown source %q", cfg.Source)
	}
}
