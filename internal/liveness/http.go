// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package liveness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/kiosk/internal/frames"
	"github.com/goccy/go-json"
)

// HTTPPerceiver calls the perception sidecar over HTTP. It implements both
// Perceiver (POST /process) and Detector (POST /detect).
type HTTPPerceiver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPPerceiver targets baseURL. Per-call deadlines come from the context.
func NewHTTPPerceiver(baseURL string, client *http.Client) *HTTPPerceiver {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPPerceiver{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type detectResponse struct {
	Face       bool    `json:"face"`
	Confidence float64 `json:"confidence"`
}

// Process implements Perceiver.
func (p *HTTPPerceiver) Process(ctx context.Context, f frames.Frame) (*DetectionResult, error) {
	var res DetectionResult
	if err := p.post(ctx, "/process", f, &res); err != nil {
		return nil, err
	}
	res.Image = f.JPEG
	return &res, nil
}

// DetectFace implements Detector.
func (p *HTTPPerceiver) DetectFace(ctx context.Context, f frames.Frame) (bool, float64, error) {
	var res detectResponse
	if err := p.post(ctx, "/detect", f, &res); err != nil {
		return false, 0, err
	}
	return res.Face, res.Confidence, nil
}

func (p *HTTPPerceiver) post(ctx context.Context, path string, f frames.Frame, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(f.JPEG))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("X-Frame-Number", strconv.FormatUint(uint64(f.Number), 10))
	req.Header.Set("X-Frame-Timestamp", strconv.FormatUint(f.TimestampMS, 10))

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("perception %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("perception %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("perception %s: decode: %w", path, err)
	}
	return nil
}
