// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hardware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingApplier struct {
	applied []Profile
	err     error
}

func (a *recordingApplier) ApplyMode(_ context.Context, p Profile) error {
	if a.err != nil {
		return a.err
	}
	a.applied = append(a.applied, p)
	return nil
}

func TestModeProfiles(t *testing.T) {
	idle := ModeIdleDetection.Profile()
	assert.False(t, idle.Continuous)
	assert.Equal(t, IdleBurstInterval, idle.Interval)
	assert.Equal(t, WorkloadPresence, idle.Workload)

	assert.Equal(t, WorkloadPresence, ModeActive.Profile().Workload)
	assert.True(t, ModeActive.Profile().Continuous)
	assert.Equal(t, WorkloadLiveness, ModeValidation.Profile().Workload)
}

func TestModeSelector_SetReturnsPrevious(t *testing.T) {
	ctx := context.Background()
	a := &recordingApplier{}
	s := NewModeSelector(a)
	assert.Equal(t, ModeIdleDetection, s.Current())

	prev, err := s.Set(ctx, ModeActive)
	require.NoError(t, err)
	assert.Equal(t, ModeIdleDetection, prev)

	prev, err = s.Set(ctx, ModeValidation)
	require.NoError(t, err)
	assert.Equal(t, ModeActive, prev)
	assert.Equal(t, ModeValidation, s.Current())
	require.Len(t, a.applied, 2)
	assert.Equal(t, ModeValidation, a.applied[1].Mode)
}

func TestModeSelector_ApplierFailureKeepsMode(t *testing.T) {
	a := &recordingApplier{err: errors.New("capture process unreachable")}
	s := NewModeSelector(a)

	_, err := s.Set(context.Background(), ModeActive)
	require.Error(t, err)
	assert.Equal(t, ModeIdleDetection, s.Current())
}

func TestModeSelector_LeaseGuard(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(&fakePipeline{})
	s := NewModeSelector(&recordingApplier{})
	s.Require(r.Active)

	_, err := s.Set(ctx, ModeValidation)
	assert.ErrorIs(t, err, ErrModeRequiresLease)
	assert.Equal(t, ModeIdleDetection, s.Current())

	require.NoError(t, r.Acquire(ctx, SourceSession))
	_, err = s.Set(ctx, ModeValidation)
	require.NoError(t, err)

	r.Release(ctx, SourceSession)
	_, err = s.Set(ctx, ModeIdleDetection)
	require.NoError(t, err, "idle_detection never needs a lease")
}

func TestModeSelector_IdleIntervalOverride(t *testing.T) {
	a := &recordingApplier{}
	s := NewModeSelector(a)
	s.SetIdleInterval(5 * time.Second)

	_, err := s.Set(context.Background(), ModeIdleDetection)
	require.NoError(t, err)
	require.Len(t, a.applied, 1)
	assert.Equal(t, 5*time.Second, a.applied[0].Interval)
}

func TestModeSelector_RejectsUnknownMode(t *testing.T) {
	s := NewModeSelector(nil)
	_, err := s.Set(context.Background(), Mode("turbo"))
	assert.ErrorIs(t, err, ErrUnknownMode)
}
