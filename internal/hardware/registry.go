// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package hardware owns the shared capture pipeline: a reference-counted
// activation registry and the operational mode selector.
//
// The registry is the only component allowed to start or stop the physical
// pipeline. Callers hold leases by source name ("session", "idle_watch",
// "preview"); the pipeline is on iff the sum of all lease counts is > 0.
package hardware

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ManuGH/kiosk/internal/log"
	"github.com/ManuGH/kiosk/internal/metrics"
	"github.com/rs/zerolog"
)

// Well-known lease sources.
const (
	SourceSession   = "session"
	SourceIdleWatch = "idle_watch"
	SourcePreview   = "preview"
)

// ErrHardwareStart is returned (wrapped) when the pipeline fails to start on
// the first acquisition. The acquisition is rolled back.
var ErrHardwareStart = errors.New("hardware start failure")

// Pipeline is the physical capture pipeline.
type Pipeline interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Transition describes one observable lease change.
type Transition struct {
	Source    string
	Old       int
	New       int
	Aggregate int
}

// Registry is a reference-counted gate for the capture pipeline.
type Registry struct {
	mu        sync.Mutex
	pipeline  Pipeline
	counts    map[string]int
	aggregate int
	logger    zerolog.Logger
	observer  func(Transition)
}

// Option configures a Registry.
type Option func(*Registry)

// WithObserver registers fn to receive every lease transition. fn runs with
// the registry lock held and must not call back into the registry.
func WithObserver(fn func(Transition)) Option {
	return func(r *Registry) { r.observer = fn }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates a registry in the "off" state.
func NewRegistry(p Pipeline, opts ...Option) *Registry {
	r := &Registry{
		pipeline: p,
		counts:   make(map[string]int),
		logger:   log.WithComponent("hardware"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire increments the lease count for source. The 0→1 aggregate edge starts
// the pipeline; if that fails the increment is rolled back.
func (r *Registry) Acquire(ctx context.Context, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.counts[source]
	r.counts[source] = old + 1
	r.aggregate++

	if r.aggregate == 1 {
		err := r.pipeline.Start(ctx)
		metrics.IncPipelineOp("start", err)
		if err != nil {
			r.counts[source] = old
			if old == 0 {
				delete(r.counts, source)
			}
			r.aggregate--
			r.logger.Error().
				Err(err).
				Str(log.FieldEvent, "hardware.start_failed").
				Str(log.FieldSource, source).
				Msg("capture pipeline failed to start, lease rolled back")
			return fmt.Errorf("%w: %w", ErrHardwareStart, err)
		}
		metrics.RecordPipelineActive(true)
		r.logger.Info().Str(log.FieldSource, source).Msg("capture pipeline started")
	}

	r.emit(source, old, old+1)
	return nil
}

// Release decrements the lease count for source (floored at zero). The 1→0
// aggregate edge stops the pipeline. Release never fails; stop errors are logged.
func (r *Registry) Release(ctx context.Context, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.counts[source]
	if old == 0 {
		metrics.HardwareSpuriousReleaseTotal.WithLabelValues(source).Inc()
		r.logger.Warn().
			Str(log.FieldEvent, "hardware.spurious_release").
			Str(log.FieldSource, source).
			Int(log.FieldAggregate, r.aggregate).
			Msg("ignoring release for source with no outstanding lease")
		return
	}

	if old == 1 {
		delete(r.counts, source)
	} else {
		r.counts[source] = old - 1
	}
	r.aggregate--

	if r.aggregate == 0 {
		err := r.pipeline.Stop(ctx)
		metrics.IncPipelineOp("stop", err)
		metrics.RecordPipelineActive(false)
		if err != nil {
			r.logger.Warn().
				Err(err).
				Str(log.FieldEvent, "hardware.stop_failed").
				Str(log.FieldSource, source).
				Msg("capture pipeline stop reported an error")
		} else {
			r.logger.Info().Str(log.FieldSource, source).Msg("capture pipeline stopped")
		}
	}

	r.emit(source, old, old-1)
}

// Restart tears down and restarts the pipeline without changing any lease
// count. It is a no-op while no lease is held.
func (r *Registry) Restart(ctx context.Context, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.aggregate == 0 {
		r.logger.Debug().Str(log.FieldReason, reason).Msg("restart skipped, pipeline not held")
		return nil
	}

	r.logger.Warn().
		Str(log.FieldEvent, "hardware.restart").
		Str(log.FieldReason, reason).
		Int(log.FieldAggregate, r.aggregate).
		Msg("restarting capture pipeline")

	if err := r.pipeline.Stop(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("stop during restart reported an error")
	}
	err := r.pipeline.Start(ctx)
	metrics.IncPipelineOp("restart", err)
	if err != nil {
		// Leases stay held; the next restart or the final release will retry.
		metrics.RecordPipelineActive(false)
		return fmt.Errorf("%w: restart: %w", ErrHardwareStart, err)
	}
	metrics.RecordPipelineActive(true)
	return nil
}

// Count returns the outstanding acquisitions for source.
func (r *Registry) Count(source string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[source]
}

// Aggregate returns the sum of all counts.
func (r *Registry) Aggregate() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aggregate
}

// Active reports whether the pipeline is currently held on.
func (r *Registry) Active() bool {
	return r.Aggregate() > 0
}

// Holds reports whether source currently holds at least one lease.
func (r *Registry) Holds(source string) bool {
	return r.Count(source) > 0
}

// Lease is a diagnostic view of one source's count.
type Lease struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// Snapshot returns all non-zero leases sorted by source.
func (r *Registry) Snapshot() []Lease {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Lease, 0, len(r.counts))
	for s, c := range r.counts {
		out = append(out, Lease{Source: s, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

func (r *Registry) emit(source string, old, next int) {
	metrics.RecordLeaseCount(source, next)
	t := Transition{Source: source, Old: old, New: next, Aggregate: r.aggregate}
	r.logger.Info().
		Str(log.FieldEvent, "hardware.lease").
		Str(log.FieldSource, source).
		Int(log.FieldOldCount, old).
		Int(log.FieldNewCount, next).
		Int(log.FieldAggregate, r.aggregate).
		Msg("lease transition")
	if r.observer != nil {
		r.observer(t)
	}
}
