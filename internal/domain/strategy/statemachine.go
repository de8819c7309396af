package strategy

import "fmt"

// State is a position lifecycle state.
type State string

// Transition is one allowed edge of a lifecycle.
type Transition struct {
	From        State
	To          State
	Condition   string
	Description string
}

// Machine validates lifecycle moves against a transition table and keeps
// per-state entry counters, optionally capped.
type Machine struct {
	table    []Transition
	initial  State
	current  State
	previous State
	counts   map[State]int
	limits   map[State]int
}

// NewMachine starts a machine in the initial state.
func NewMachine(initial State, table []Transition) *Machine {
	return &Machine{
		table:    table,
		initial:  initial,
		current:  initial,
		previous: initial,
		counts:   make(map[State]int),
		limits:   make(map[State]int),
	}
}

// Current returns the current state.
func (m *Machine) Current() State { return m.current }

// Is reports whether the machine is in s.
func (m *Machine) Is(s State) bool { return m.current == s }

// SetLimit caps how many times a state may be entered before Reset.
func (m *Machine) SetLimit(s State, n int) { m.limits[s] = n }

// Count returns how many times s was entered since the last Reset.
func (m *Machine) Count(s State) int { return m.counts[s] }

// Can checks a transition without performing it.
func (m *Machine) Can(to State, condition string) error {
	found := false
	for _, t := range m.table {
		if t.From == m.current && t.To == to && t.Condition == condition {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid transition from %s (entered from %s) to %s with condition '%s'",
			m.current, m.previous, to, condition)
	}
	if limit, ok := m.limits[to]; ok && limit > 0 && m.counts[to] >= limit {
		return fmt.Errorf("state %s entered %d times, limit %d", to, m.counts[to], limit)
	}
	return nil
}

// Transition moves to a new state.
func (m *Machine) Transition(to State, condition string) error {
	if err := m.Can(to, condition); err != nil {
		return err
	}
	m.previous = m.current
	m.current = to
	m.counts[to]++
	return nil
}

// Reset returns to the initial state and clears counters. Limits are kept.
func (m *Machine) Reset() {
	m.previous = m.current
	m.current = m.initial
	m.counts = make(map[State]int)
}
