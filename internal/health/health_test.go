// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/kiosk/internal/config"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

func TestManager_Health(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
}

func TestManager_Ready(t *testing.T) {
	m := NewManager("v1.0.0")
	assert.True(t, m.Ready(context.Background()).Ready)

	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})
	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusDegraded, resp.Status)

	m.RegisterChecker(&mockChecker{name: "redis", status: StatusUnhealthy})
	resp = m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestManager_ServeReady(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(NewPingChecker("redis", func(context.Context) error { return errors.New("connection refused") }))

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Ready)
	assert.Equal(t, "connection refused", body.Checks["redis"].Error)

	rec = httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFrameChecker(t *testing.T) {
	active := false
	last := time.Time{}
	c := NewFrameChecker(func() bool { return active }, func() time.Time { return last }, time.Second)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	active = true
	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)

	last = now.Add(-200 * time.Millisecond)
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	last = now.Add(-3 * time.Second)
	res := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Contains(t, res.Message, "3s")
}

func TestDirChecker(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, StatusHealthy, NewDirChecker("captures", dir).Check(context.Background()).Status)
	assert.Equal(t, StatusHealthy, NewDirChecker("captures", "").Check(context.Background()).Status)

	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	assert.Equal(t, StatusUnhealthy, NewDirChecker("captures", file).Check(context.Background()).Status)
	assert.Equal(t, StatusUnhealthy, NewDirChecker("captures", filepath.Join(dir, "missing")).Check(context.Background()).Status)
}

func TestPerformStartupChecks(t *testing.T) {
	cfg := config.AppConfig{
		DataDir: filepath.Join(t.TempDir(), "data"),
		Backend: config.BackendConfig{APIURL: "https://pair.example.com/api", WSURL: "wss://pair.example.com/ws"},
		Trigger: config.TriggerConfig{Source: config.TriggerVision},
	}
	require.NoError(t, PerformStartupChecks(context.Background(), cfg))

	cfg.Backend.WSURL = "not a url"
	assert.Error(t, PerformStartupChecks(context.Background(), cfg))

	cfg.Backend.WSURL = "wss://pair.example.com/ws"
	cfg.Trigger = config.TriggerConfig{Source: config.TriggerDistance, ReaderBinary: "definitely-not-a-real-binary-xyz"}
	assert.Error(t, PerformStartupChecks(context.Background(), cfg))
}
