// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package frames

import (
	"context"
	"fmt"

	"github.com/ManuGH/kiosk/internal/hardware"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Control commands understood by the capture process.
const (
	CommandStart = "start"
	CommandStop  = "stop"
	CommandMode  = "mode"
)

// Control is a message on the capture control channel.
type Control struct {
	Command    string `json:"cmd"`
	Mode       string `json:"mode,omitempty"`
	Continuous bool   `json:"continuous,omitempty"`
	IntervalMS int64  `json:"interval_ms,omitempty"`
	Workload   string `json:"workload,omitempty"`
}

func publishControl(ctx context.Context, client *redis.Client, channel string, c Control) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s on %s: %w", c.Command, channel, err)
	}
	return nil
}

// ModePublisher pushes capture mode changes to the capture process. The
// current profile is also stored under a key so a restarted capture process
// can pick it up.
type ModePublisher struct {
	client  *redis.Client
	key     string
	channel string
}

// NewModePublisher returns a publisher writing key and announcing on channel.
func NewModePublisher(client *redis.Client, key, channel string) *ModePublisher {
	return &ModePublisher{client: client, key: key, channel: channel}
}

// ApplyMode implements hardware.ModeApplier.
func (p *ModePublisher) ApplyMode(ctx context.Context, prof hardware.Profile) error {
	c := Control{
		Command:    CommandMode,
		Mode:       string(prof.Mode),
		Continuous: prof.Continuous,
		IntervalMS: prof.Interval.Milliseconds(),
		Workload:   string(prof.Workload),
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := p.client.Set(ctx, p.key, payload, 0).Err(); err != nil {
		return fmt.Errorf("store capture mode: %w", err)
	}
	return publishControl(ctx, p.client, p.channel, c)
}

// StoredMode reads back the last applied mode.
func (p *ModePublisher) StoredMode(ctx context.Context) (hardware.Mode, error) {
	raw, err := p.client.Get(ctx, p.key).Bytes()
	if err == redis.Nil {
		return hardware.ModeIdleDetection, nil
	}
	if err != nil {
		return "", err
	}
	var c Control
	if err := json.Unmarshal(raw, &c); err != nil {
		return "", fmt.Errorf("decode stored mode: %w", err)
	}
	return hardware.Mode(c.Mode), nil
}
