// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_events_dropped_total",
		Help: "UI events dropped because a subscriber queue was full, by event type.",
	}, []string{"type"})

	EventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kiosk_events_subscribers",
		Help: "Currently connected UI event subscribers.",
	})
)

// IncEventDrop records a dropped event for the given type.
func IncEventDrop(eventType string) {
	if eventType == "" {
		eventType = "unknown"
	}
	EventDroppedTotal.WithLabelValues(eventType).Inc()
}
