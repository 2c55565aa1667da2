// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionPhaseTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_session_phase_transitions_total",
		Help: "Session phase transitions, by from and to phase.",
	}, []string{"from", "to"})

	SessionOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_session_outcomes_total",
		Help: "Finished sessions, by outcome (complete|error|cancelled) and reason.",
	}, []string{"outcome", "reason"})

	SessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kiosk_session_duration_seconds",
		Help:    "Wall time from trigger to return to idle.",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
	}, []string{"outcome"})

	PresenceEdgesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_presence_edges_total",
		Help: "Presence edges delivered to the controller, by edge (enter|leave) and disposition.",
	}, []string{"edge", "disposition"})

	InvalidTransitionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_session_invalid_transition_total",
		Help: "Rejected phase transitions (programming errors), by phase and event.",
	}, []string{"from", "event"})
)

// RecordPresenceEdge counts one presence edge and what the controller did with it.
func RecordPresenceEdge(present bool, disposition string) {
	edge := "leave"
	if present {
		edge = "enter"
	}
	PresenceEdgesTotal.WithLabelValues(edge, disposition).Inc()
}
