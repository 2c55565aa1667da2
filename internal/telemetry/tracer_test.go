// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ManuGH/kiosk/internal/config"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false, ExporterType: "grpc"})
	require.NoError(t, err)
	assert.Nil(t, provider.tp)

	_, span := otel.Tracer("test").Start(context.Background(), "noop-check")
	assert.False(t, span.IsRecording())
	span.End()

	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_InvalidExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, ServiceName: "kioskd", ExporterType: "invalid"})
	require.Error(t, err)
	assert.Equal(t, "unsupported exporter type: invalid (supported: grpc, http)", err.Error())
}

func TestNewProvider_HTTPExporter(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "kioskd",
		ExporterType: "http",
		Endpoint:     "127.0.0.1:1",
		SamplingRate: 1.0,
	})
	require.NoError(t, err)
	require.NotNil(t, provider.tp)

	_, span := Tracer("test").Start(context.Background(), "recorded")
	assert.True(t, span.IsRecording())
	span.End()

	// Export to an unreachable collector fails; shutdown still returns.
	_ = provider.Shutdown(context.Background())
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOn")
	assert.Contains(t, sampler(0).Description(), "AlwaysOff")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}

func TestFromAppConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Version = "v1"
	cfg.Telemetry.Enabled = true
	got := FromAppConfig(cfg)
	assert.True(t, got.Enabled)
	assert.Equal(t, "kioskd", got.ServiceName)
	assert.Equal(t, "v1", got.ServiceVersion)
	assert.Equal(t, "grpc", got.ExporterType)
}

func TestOutcomeAttributes(t *testing.T) {
	attrs := OutcomeAttributes("error", "no_face_detected", 12, 0, 0)
	assert.Contains(t, attrs, attribute.String(SessionReasonKey, "no_face_detected"))
	assert.Len(t, OutcomeAttributes("complete", "", 30, 10, 0.9), 4)
}
