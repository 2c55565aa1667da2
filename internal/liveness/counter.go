// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package liveness

import "sync"

// DefaultFailureThreshold is the consecutive failure count that triggers a
// pipeline restart.
const DefaultFailureThreshold = 10

// FailureCounter tracks consecutive perception failures and timeouts.
type FailureCounter struct {
	mu          sync.Mutex
	threshold   int
	failures    int
	timeouts    int
	escalations int
}

// NewFailureCounter returns a counter escalating at threshold (default 10).
func NewFailureCounter(threshold int) *FailureCounter {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	return &FailureCounter{threshold: threshold}
}

// RecordSuccess clears both consecutive counts.
func (c *FailureCounter) RecordSuccess() {
	c.mu.Lock()
	c.failures, c.timeouts = 0, 0
	c.mu.Unlock()
}

// RecordFailure increments the failure count and returns it.
func (c *FailureCounter) RecordFailure() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	return c.failures
}

// RecordTimeout increments the timeout count and returns it.
func (c *FailureCounter) RecordTimeout() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeouts++
	return c.timeouts
}

// ShouldEscalate reports whether either count reached the threshold.
func (c *FailureCounter) ShouldEscalate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures >= c.threshold || c.timeouts >= c.threshold
}

// Reset clears the counts after an escalation.
func (c *FailureCounter) Reset() {
	c.mu.Lock()
	c.failures, c.timeouts = 0, 0
	c.escalations++
	c.mu.Unlock()
}

// CounterSnapshot is a point-in-time copy for diagnostics.
type CounterSnapshot struct {
	ConsecutiveFailures int `json:"consecutive_processing_failures"`
	ConsecutiveTimeouts int `json:"consecutive_timeouts"`
	Threshold           int `json:"threshold"`
	Escalations         int `json:"escalations"`
}

func (c *FailureCounter) Snapshot() CounterSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CounterSnapshot{
		ConsecutiveFailures: c.failures,
		ConsecutiveTimeouts: c.timeouts,
		Threshold:           c.threshold,
		Escalations:         c.escalations,
	}
}
