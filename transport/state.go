package transport

import "sync/atomic"

// State is the transport's lifecycle state. The zero value is
// Disconnected, so a freshly constructed stateMachine starts there without
// an explicit initializer.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// stateMachine is the single source of truth for transport lifecycle,
// driven entirely by atomic compare-and-set — no coarse lock guards the
// public API, per the concurrency contract.
type stateMachine struct {
	v atomic.Int32
}

// Load returns the current state.
func (m *stateMachine) Load() State {
	return State(m.v.Load())
}

// CAS transitions from `from` to `to`, reporting whether it took effect.
func (m *stateMachine) CAS(from, to State) bool {
	return m.v.CompareAndSwap(int32(from), int32(to))
}

// Store forces the state unconditionally. Used only for the D<-C1 rollback
// on a failed start_session, and by CAS-loops that have already decided a
// transition is legal.
func (m *stateMachine) Store(s State) {
	m.v.Store(int32(s))
}
