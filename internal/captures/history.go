// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package captures

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ManuGH/kiosk/internal/persistence/sqlite"
)

// Record is one finished session.
type Record struct {
	SessionID     string    `json:"session_id"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
	FinalPhase    string    `json:"final_phase"`
	Outcome       string    `json:"outcome"`
	Reason        string    `json:"reason,omitempty"`
	Trigger       string    `json:"trigger"`
	CameraUsed    bool      `json:"camera_activated"`
	BestScore     float64   `json:"best_score"`
	FramesSeen    int       `json:"frames_seen"`
	FramesPassing int       `json:"frames_passing"`
}

// History stores session records in SQLite.
type History struct {
	db *sql.DB
}

// OpenHistory opens (and migrates) the history database at path.
func OpenHistory(ctx context.Context, path string) (*History, error) {
	db, err := sqlite.Open(ctx, path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	h := &History{db: db}
	if err := h.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate session history: %w", err)
	}
	return h, nil
}

func (h *History) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL,
		final_phase TEXT NOT NULL,
		outcome TEXT NOT NULL CHECK(outcome IN ('complete', 'error', 'cancelled')),
		reason TEXT NOT NULL DEFAULT '',
		trigger_source TEXT NOT NULL DEFAULT '',
		camera_activated INTEGER NOT NULL DEFAULT 0,
		best_score REAL NOT NULL DEFAULT 0,
		frames_seen INTEGER NOT NULL DEFAULT 0,
		frames_passing INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
	`
	_, err := h.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (h *History) Close() error { return h.db.Close() }

// DB exposes the handle for health checks.
func (h *History) DB() *sql.DB { return h.db }

// Record stores r, replacing any record with the same session id.
func (h *History) Record(ctx context.Context, r Record) error {
	query := `
	INSERT INTO sessions (id, started_at, ended_at, final_phase, outcome, reason, trigger_source,
		camera_activated, best_score, frames_seen, frames_passing)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		ended_at = excluded.ended_at,
		final_phase = excluded.final_phase,
		outcome = excluded.outcome,
		reason = excluded.reason,
		camera_activated = excluded.camera_activated,
		best_score = excluded.best_score,
		frames_seen = excluded.frames_seen,
		frames_passing = excluded.frames_passing
	`
	_, err := h.db.ExecContext(ctx, query,
		r.SessionID, r.StartedAt.UnixMilli(), r.EndedAt.UnixMilli(), r.FinalPhase, r.Outcome, r.Reason, r.Trigger,
		r.CameraUsed, r.BestScore, r.FramesSeen, r.FramesPassing)
	return err
}

// Recent returns up to n records, newest first.
func (h *History) Recent(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := h.db.QueryContext(ctx, `
	SELECT id, started_at, ended_at, final_phase, outcome, reason, trigger_source,
		camera_activated, best_score, frames_seen, frames_passing
	FROM sessions
	ORDER BY started_at DESC
	LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var r Record
		var started, ended int64
		if err := rows.Scan(&r.SessionID, &started, &ended, &r.FinalPhase, &r.Outcome, &r.Reason, &r.Trigger,
			&r.CameraUsed, &r.BestScore, &r.FramesSeen, &r.FramesPassing); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started)
		r.EndedAt = time.UnixMilli(ended)
		out = append(out, r)
	}
	return out, rows.Err()
}
