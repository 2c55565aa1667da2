// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package captures persists best-frame images and session history. Both are
// best effort: a failure here never fails a session.
package captures

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/renameio/v2"

	"github.com/ManuGH/kiosk/internal/log"
)

// Meta is the sidecar written next to a best frame.
type Meta struct {
	SessionID     string    `json:"session_id"`
	PlatformID    string    `json:"platform_id"`
	CapturedAt    time.Time `json:"captured_at"`
	FrameNumber   uint32    `json:"frame_number"`
	Width         uint32    `json:"width"`
	Height        uint32    `json:"height"`
	Composite     float64   `json:"composite"`
	Stability     float64   `json:"stability"`
	Focus         float64   `json:"focus"`
	InstantAlive  bool      `json:"instant_alive"`
	StableAlive   bool      `json:"stable_alive"`
	DepthOK       bool      `json:"depth_ok"`
	FramesSeen    int       `json:"frames_seen"`
	FramesPassing int       `json:"frames_passing"`
}

// Store writes capture files under a directory.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore creates dir if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create captures dir: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SaveBest writes <ts>_<platform>_BEST.jpg and its .json sidecar. Each file is
// replaced atomically. It returns the image path.
func (s *Store) SaveBest(ctx context.Context, jpeg []byte, meta Meta) (string, error) {
	platform := unsafeName.ReplaceAllString(meta.PlatformID, "")
	if platform == "" {
		platform = "unknown"
	}
	base := fmt.Sprintf("%s_%s_BEST", s.now().UTC().Format("20060102T150405"), platform)
	imgPath := filepath.Join(s.dir, base+".jpg")

	if err := renameio.WriteFile(imgPath, jpeg, 0o640); err != nil {
		return "", fmt.Errorf("write best frame: %w", err)
	}
	sidecar, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return imgPath, err
	}
	if err := renameio.WriteFile(filepath.Join(s.dir, base+".json"), sidecar, 0o640); err != nil {
		return imgPath, fmt.Errorf("write best frame metadata: %w", err)
	}

	logger := log.WithContext(ctx, log.WithComponent("captures"))
	logger.Info().
		Str("path", imgPath).
		Float64("composite", meta.Composite).
		Msg("best frame saved")
	return imgPath, nil
}
