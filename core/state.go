package core

import "sync/atomic"

// WorkerState is the lifecycle state of a SequentialWorker.
//
// States only move forward: Created -> Starting -> Ready -> Stopping -> Stopped.
// Any state may be skipped (a worker stopped before Start goes Created -> Stopping -> Stopped),
// but none is ever re-entered.
type WorkerState int32

const (
	StateCreated WorkerState = iota
	StateStarting
	StateReady
	StateStopping
	StateStopped
)

func (s WorkerState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// stateMachine holds a WorkerState and enforces monotonic transitions.
type stateMachine struct {
	v atomic.Int32
}

func (m *stateMachine) Load() WorkerState {
	return WorkerState(m.v.Load())
}

// transition moves from exactly `from` to `to`.
func (m *stateMachine) transition(from, to WorkerState) bool {
	if to <= from {
		return false
	}
	return m.v.CompareAndSwap(int32(from), int32(to))
}

// advance moves to `to` if the current state is earlier.
// It returns the state observed before the move and whether a move happened.
func (m *stateMachine) advance(to WorkerState) (WorkerState, bool) {
	for {
		cur := m.v.Load()
		if WorkerState(cur) >= to {
			return WorkerState(cur), false
		}
		if m.v.CompareAndSwap(cur, int32(to)) {
			return WorkerState(cur), true
		}
	}
}
