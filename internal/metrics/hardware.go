// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides Prometheus metrics for the kiosk controller.
// Labels are bounded enums only (no session or token values).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HardwareLeaseCount tracks outstanding lease acquisitions per source.
	HardwareLeaseCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kiosk_hardware_lease_count",
		Help: "Outstanding capture pipeline lease acquisitions, by source.",
	}, []string{"source"})

	// HardwarePipelineActive is 1 while the capture pipeline is streaming.
	HardwarePipelineActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kiosk_hardware_pipeline_active",
		Help: "Whether the capture pipeline is currently powered (1) or stopped (0).",
	})

	HardwarePipelineOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_hardware_pipeline_ops_total",
		Help: "Capture pipeline lifecycle operations, by op (start|stop|restart) and result.",
	}, []string{"op", "result"})

	HardwareSpuriousReleaseTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_hardware_spurious_release_total",
		Help: "Lease releases received for a source with no outstanding acquisition.",
	}, []string{"source"})

	CaptureModeChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_capture_mode_changes_total",
		Help: "Operational capture mode changes, by target mode and result.",
	}, []string{"mode", "result"})
)

// RecordLeaseCount publishes the current count for a lease source.
func RecordLeaseCount(source string, count int) {
	HardwareLeaseCount.WithLabelValues(source).Set(float64(count))
}

// RecordPipelineActive publishes the pipeline power state.
func RecordPipelineActive(active bool) {
	if active {
		HardwarePipelineActive.Set(1)
		return
	}
	HardwarePipelineActive.Set(0)
}

// IncPipelineOp records a pipeline start/stop/restart outcome.
func IncPipelineOp(op string, err error) {
	HardwarePipelineOpsTotal.WithLabelValues(op, result(err)).Inc()
}

// IncModeChange records a capture mode transition outcome.
func IncModeChange(mode string, err error) {
	CaptureModeChangesTotal.WithLabelValues(mode, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
