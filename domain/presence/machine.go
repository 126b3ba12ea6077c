package presence

import "log/slog"

// State is the debounced marker signal.
type State int

const (
	StateIdle State = iota
	StatePresent
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePresent:
		return "present"
	default:
		return "unknown"
	}
}

// DefaultMissTolerance is the number of consecutive misses absorbed as noise.
const DefaultMissTolerance = 5

// Listener is called on each state change.
type Listener func(prev, next State)

// Machine turns the raw per-tick found signal into a two-state debounced
// signal and reports the rising edge. It is owned by a single goroutine.
type Machine struct {
	state      State
	missStreak uint32
	logger     *slog.Logger
	listeners  []Listener
}

// NewMachine returns a machine in StateIdle.
func NewMachine(logger *slog.Logger) *Machine {
	return &Machine{state: StateIdle, logger: logger}
}

// AddListener registers l for transitions.
func (m *Machine) AddListener(l Listener) {
	if l != nil {
		m.listeners = append(m.listeners, l)
	}
}

func (m *Machine) State() State       { return m.state }
func (m *Machine) MissStreak() uint32 { return m.missStreak }

// Feed applies one observation and reports whether it was a rising edge.
// A present marker goes idle once the miss streak exceeds tolerance.
func (m *Machine) Feed(found bool, tolerance uint32) (fired bool) {
	switch m.state {
	case StateIdle:
		if found {
			m.missStreak = 0
			m.transition(StatePresent)
			return true
		}
	case StatePresent:
		if found {
			m.missStreak = 0
			return false
		}
		m.missStreak++
		if m.missStreak > tolerance {
			m.missStreak = 0
			m.transition(StateIdle)
		}
	}
	return false
}

// Reset forces StateIdle without firing.
func (m *Machine) Reset() {
	m.missStreak = 0
	m.transition(StateIdle)
}

func (m *Machine) transition(next State) {
	prev := m.state
	if prev == next {
		return
	}
	m.state = next
	if m.logger != nil {
		m.logger.Debug("presence transition", "from", prev.String(), "to", next.String())
	}
	for _, l := range m.listeners {
		l(prev, next)
	}
}
