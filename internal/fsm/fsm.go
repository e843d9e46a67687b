// Package fsm provides a table-driven finite state machine keyed by
// (state name, event name). Events with no entry for the current state are
// ignored.
package fsm

import (
	"sync"
)

// State is a named member of a closed enumeration.
type State interface {
	comparable
	String() string
}

// Event is anything with a name that can drive a transition.
type Event interface {
	Name() string
}

// Handler computes the next state for an event. Returning ok=false leaves
// the current state unchanged. Handlers run with the machine locked and
// must not call back into it.
type Handler[S State, E Event] func(event E) (next S, ok bool)

// To returns a Handler that unconditionally moves to next.
func To[S State, E Event](next S) Handler[S, E] {
	return func(E) (S, bool) { return next, true }
}

type transitionKey struct {
	state string
	event string
}

// Machine is safe for concurrent use.
type Machine[S State, E Event] struct {
	mtx         sync.Mutex
	current     S
	transitions map[transitionKey]Handler[S, E]
}

func New[S State, E Event](initial S) *Machine[S, E] {
	return &Machine[S, E]{
		current:     initial,
		transitions: make(map[transitionKey]Handler[S, E]),
	}
}

// AddTransition registers the handler for event while in state from. A
// later registration for the same pair replaces the earlier one.
func (m *Machine[S, E]) AddTransition(from S, event string, handler Handler[S, E]) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.transitions[transitionKey{state: from.String(), event: event}] = handler
}

// ProcessEvent feeds event to the machine and returns the resulting state
// and whether a handler accepted the transition. Unmatched events are a
// no-op.
func (m *Machine[S, E]) ProcessEvent(event E) (S, bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	handler, ok := m.transitions[transitionKey{state: m.current.String(), event: event.Name()}]
	if !ok {
		return m.current, false
	}

	next, ok := handler(event)
	if !ok {
		return m.current, false
	}

	m.current = next
	return m.current, true
}

// Current returns the current state.
func (m *Machine[S, E]) Current() S {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return m.current
}

// NumTransitions returns the number of registered (state, event) pairs.
func (m *Machine[S, E]) NumTransitions() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return len(m.transitions)
}
