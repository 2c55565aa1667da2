// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/ManuGH/kiosk/internal/hardware"
	"github.com/ManuGH/kiosk/internal/liveness"
	"github.com/ManuGH/kiosk/internal/log"
	"github.com/ManuGH/kiosk/internal/session"
	"github.com/ManuGH/kiosk/internal/trigger"
)

const maxBodyBytes = 4 << 10

// StatusResponse is the /debug/status body.
type StatusResponse struct {
	Session   session.Snapshot          `json:"session"`
	Leases    []hardware.Lease          `json:"leases"`
	Aggregate int                       `json:"aggregate"`
	Mode      hardware.Mode             `json:"mode"`
	Liveness  *liveness.CounterSnapshot `json:"liveness,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// decodeBody decodes an optional JSON body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Session:   s.deps.Controller.Snapshot(),
		Leases:    s.deps.Leases.Snapshot(),
		Aggregate: s.deps.Leases.Aggregate(),
		Mode:      s.deps.Modes.Current(),
	}
	if resp.Leases == nil {
		resp.Leases = []hardware.Lease{}
	}
	if s.deps.Failures != nil {
		snap := s.deps.Failures.Snapshot()
		resp.Liveness = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusNotFound, errors.New("session history disabled"))
		return
	}
	n := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 500 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be 1..500"))
			return
		}
		n = parsed
	}
	recs, err := s.deps.History.Recent(r.Context(), n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": recs})
}

type presenceRequest struct {
	Present    *bool `json:"present"`
	DistanceMM int   `json:"distance_mm"`
}

func (s *server) handlePresence(w http.ResponseWriter, r *http.Request) {
	var req presenceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Present == nil {
		writeError(w, http.StatusBadRequest, errors.New("present is required"))
		return
	}
	ev := trigger.PresenceEvent{
		Present:    *req.Present,
		Confidence: 1,
		DistanceMM: req.DistanceMM,
		At:         time.Now(),
		Source:     trigger.SourceManual,
	}
	if err := s.deps.Controller.InjectPresence(r.Context(), ev); err != nil {
		s.commandFailed(w, r, "presence", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"present": ev.Present})
}

func (s *server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Controller.Trigger(r.Context()); err != nil {
		s.commandFailed(w, r, "trigger", err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.deps.Controller.Snapshot())
}

type appReadyRequest struct {
	PlatformID string `json:"platform_id"`
}

func (s *server) handleAppReady(w http.ResponseWriter, r *http.Request) {
	var req appReadyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.PlatformID == "" {
		req.PlatformID = "debug"
	}
	if err := s.deps.Controller.MarkAppReady(r.Context(), req.PlatformID); err != nil {
		s.commandFailed(w, r, "app_ready", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"platform_id": req.PlatformID})
}

type resetRequest struct {
	Reason string `json:"reason"`
}

func (s *server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Reason == "" {
		req.Reason = "operator_reset"
	}
	if err := s.deps.Controller.Reset(r.Context(), req.Reason); err != nil {
		s.commandFailed(w, r, "reset", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"reason": req.Reason})
}

func (s *server) commandFailed(w http.ResponseWriter, r *http.Request, cmd string, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrNoSession):
		code = http.StatusConflict
	case errors.Is(err, session.ErrNotRunning):
		code = http.StatusServiceUnavailable
	}
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Warn().
		Err(err).
		Str("command", cmd).
		Int("status", code).
		Msg("debug command rejected")
	writeError(w, code, err)
}
