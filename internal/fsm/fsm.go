// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsm is a small, strict finite-state machine keyed by (state, event).
package fsm

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidTransition is returned when no edge exists for (state, event).
var ErrInvalidTransition = errors.New("invalid transition")

// Transition describes a single edge in the FSM. An empty From matches any
// state that has no explicit edge for Event.
type Transition[S ~string, E ~string] struct {
	From  S
	Event E
	To    S
}

// Machine is a small, test-friendly FSM runner.
// It is intentionally strict: unknown transitions are errors.
type Machine[S ~string, E ~string] struct {
	mu       sync.Mutex
	state    S
	index    map[string]S
	wildcard map[E]S
	observer func(from, to S, event E)
}

// New builds a machine from its transition table. Duplicate edges are rejected.
func New[S ~string, E ~string](initial S, transitions []Transition[S, E]) (*Machine[S, E], error) {
	idx := make(map[string]S, len(transitions))
	wild := make(map[E]S)
	for _, t := range transitions {
		if t.From == "" {
			if _, exists := wild[t.Event]; exists {
				return nil, fmt.Errorf("duplicate wildcard transition: * -> %s", t.Event)
			}
			wild[t.Event] = t.To
			continue
		}
		k := key(t.From, t.Event)
		if _, exists := idx[k]; exists {
			return nil, fmt.Errorf("duplicate transition: %s -> %s", t.From, t.Event)
		}
		idx[k] = t.To
	}
	return &Machine[S, E]{state: initial, index: idx, wildcard: wild}, nil
}

// Observe registers fn to be called (under the machine lock) after each
// successful transition.
func (m *Machine[S, E]) Observe(fn func(from, to S, event E)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = fn
}

// State returns the current state.
func (m *Machine[S, E]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Peek reports where event would lead from the current state without firing it.
func (m *Machine[S, E]) Peek(event E) (S, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(m.state, event)
}

// Fire attempts to apply an event atomically.
func (m *Machine[S, E]) Fire(event E) (from S, to S, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from = m.state
	to, ok := m.lookup(from, event)
	if !ok {
		return from, from, fmt.Errorf("%w: state=%s event=%s", ErrInvalidTransition, from, event)
	}
	m.state = to
	if m.observer != nil {
		m.observer(from, to, event)
	}
	return from, to, nil
}

func (m *Machine[S, E]) lookup(from S, event E) (S, bool) {
	if to, ok := m.index[key(from, event)]; ok {
		return to, true
	}
	to, ok := m.wildcard[event]
	return to, ok
}

func key[S ~string, E ~string](from S, event E) string {
	return string(from) + "|" + string(event)
}
