// Package status tracks the lifecycle of an open store: migrations run
// before anything else, bulk imports run before or in place of the live
// phase, and periodic timers only fire while live.
package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/cipherlog/internal/bus"
)

// State represents a store lifecycle state.
type State string

const (
	Opening   State = "OPENING"
	Migrating State = "MIGRATING"
	Ready     State = "READY"
	Importing State = "IMPORTING"
	Live      State = "LIVE"
	Failed    State = "FAILED"
	Closed    State = "CLOSED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Opening:   {Migrating, Failed},
	Migrating: {Ready, Failed},
	Ready:     {Importing, Live, Closed, Failed},
	Importing: {Ready, Live, Failed},
	Live:      {Importing, Closed, Failed},
	Failed:    {Closed},
}

// Machine tracks and enforces lifecycle transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     bus.Publisher
}

// NewMachine creates a new state machine starting in Opening state.
// b may be nil.
func NewMachine(b bus.Publisher) *Machine {
	return &Machine{
		current: Opening,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsLive reports whether timers may run.
func (m *Machine) IsLive() bool {
	return m.Current() == Live
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(to)
}

func (m *Machine) transitionLocked(to State) error {
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:    bus.LifecycleChanged,
			Payload: Change{From: from, To: to},
		})
	}
	return nil
}

// BeginImport moves to Importing and returns a function that restores the
// state the store was in before, Ready or Live.
func (m *Machine) BeginImport() (func() error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	resume := m.current
	if err := m.transitionLocked(Importing); err != nil {
		return nil, err
	}
	return func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.current != Importing {
			return nil
		}
		return m.transitionLocked(resume)
	}, nil
}

// Change is the payload for lifecycle events.
type Change struct {
	From State
	To   State
}
