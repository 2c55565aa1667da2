// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LivenessCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_liveness_calls_total",
		Help: "Perception calls through the liveness gate, by outcome (detection|empty|failure|timeout).",
	}, []string{"outcome"})

	LivenessEscalationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_liveness_escalations_total",
		Help: "Pipeline restarts triggered by consecutive perception failures, by kind.",
	}, []string{"kind"})

	LivenessCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kiosk_liveness_call_seconds",
		Help:    "Latency of perception calls.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
	})
)
