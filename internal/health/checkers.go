// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// PingChecker reports unhealthy when ping fails. Used for redis and sqlite.
type PingChecker struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingChecker wraps a dependency ping.
func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if err := c.ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// FrameChecker watches the frame transport while the capture pipeline is
// held. With no lease it is healthy regardless of frame age.
type FrameChecker struct {
	active    func() bool
	lastFrame func() time.Time
	maxAge    time.Duration
	now       func() time.Time
}

// NewFrameChecker reports degraded when the pipeline is active and the last
// frame is older than maxAge.
func NewFrameChecker(active func() bool, lastFrame func() time.Time, maxAge time.Duration) *FrameChecker {
	return &FrameChecker{active: active, lastFrame: lastFrame, maxAge: maxAge, now: time.Now}
}

func (c *FrameChecker) Name() string { return "frames" }

func (c *FrameChecker) Check(context.Context) CheckResult {
	if !c.active() {
		return CheckResult{Status: StatusHealthy, Message: "pipeline idle"}
	}
	last := c.lastFrame()
	if last.IsZero() {
		return CheckResult{Status: StatusDegraded, Message: "no frame received yet"}
	}
	if age := c.now().Sub(last); age > c.maxAge {
		return CheckResult{Status: StatusDegraded, Message: fmt.Sprintf("last frame %s ago", age.Round(time.Millisecond))}
	}
	return CheckResult{Status: StatusHealthy, Message: "streaming"}
}

// DirChecker verifies that a directory exists and is writable.
type DirChecker struct {
	name string
	path string
}

func NewDirChecker(name, path string) *DirChecker {
	return &DirChecker{name: name, path: path}
}

func (c *DirChecker) Name() string { return c.name }

func (c *DirChecker) Check(context.Context) CheckResult {
	if c.path == "" {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	if err := checkWritableDir(c.path); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

func checkWritableDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	probe := filepath.Join(path, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(probe)
	return nil
}
