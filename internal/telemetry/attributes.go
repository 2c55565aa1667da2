// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys shared across the controller.
const (
	SessionIDKey      = "session.id"
	SessionTriggerKey = "session.trigger"
	SessionPhaseKey   = "session.phase"
	SessionOutcomeKey = "session.outcome"
	SessionReasonKey  = "session.reason"

	PhaseFromKey = "phase.from"
	PhaseToKey   = "phase.to"

	FramesSeenKey    = "frames.seen"
	FramesPassingKey = "frames.passing"
	BestScoreKey     = "frames.best_score"
)

// SessionAttributes identifies a session run.
func SessionAttributes(id, trigger string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SessionIDKey, id),
		attribute.String(SessionTriggerKey, trigger),
	}
}

// TransitionAttributes describes a phase change.
func TransitionAttributes(from, to string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PhaseFromKey, from),
		attribute.String(PhaseToKey, to),
	}
}

// OutcomeAttributes summarises how a session ended.
func OutcomeAttributes(outcome, reason string, seen, passing int, best float64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(SessionOutcomeKey, outcome),
		attribute.Int(FramesSeenKey, seen),
		attribute.Int(FramesPassingKey, passing),
		attribute.Float64(BestScoreKey, best),
	}
	if reason != "" {
		attrs = append(attrs, attribute.String(SessionReasonKey, reason))
	}
	return attrs
}
