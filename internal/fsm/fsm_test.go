// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type state string
type event string

func newTestMachine(t *testing.T) *Machine[state, event] {
	t.Helper()
	m, err := New[state, event]("off", []Transition[state, event]{
		{From: "off", Event: "power", To: "on"},
		{From: "on", Event: "power", To: "off"},
		{Event: "reset", To: "off"},
	})
	require.NoError(t, err)
	return m
}

func TestFireFollowsTable(t *testing.T) {
	m := newTestMachine(t)

	from, to, err := m.Fire("power")
	require.NoError(t, err)
	require.Equal(t, state("off"), from)
	require.Equal(t, state("on"), to)
	require.Equal(t, state("on"), m.State())
}

func TestFireRejectsUnknownEdge(t *testing.T) {
	m := newTestMachine(t)

	_, _, err := m.Fire("explode")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, state("off"), m.State())
}

func TestWildcardAppliesFromAnyState(t *testing.T) {
	m := newTestMachine(t)
	_, _, err := m.Fire("power")
	require.NoError(t, err)

	to, ok := m.Peek("reset")
	require.True(t, ok)
	require.Equal(t, state("off"), to)

	_, _, err = m.Fire("reset")
	require.NoError(t, err)
	require.Equal(t, state("off"), m.State())
}

func TestDuplicateTransitionRejected(t *testing.T) {
	_, err := New[state, event]("off", []Transition[state, event]{
		{From: "off", Event: "power", To: "on"},
		{From: "off", Event: "power", To: "off"},
	})
	require.Error(t, err)
}

func TestObserverSeesEveryTransition(t *testing.T) {
	m := newTestMachine(t)
	var seen []string
	m.Observe(func(from, to state, ev event) {
		seen = append(seen, string(from)+">"+string(to))
	})

	_, _, _ = m.Fire("power")
	_, _, _ = m.Fire("nope")
	_, _, _ = m.Fire("power")
	require.Equal(t, []string{"off>on", "on>off"}, seen)
}
