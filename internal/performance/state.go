package performance

import (
	"fmt"
	"sync/atomic"
)

// RunState is the lifecycle of a Scheduler run.
type RunState int32

const (
	StateNotStarted RunState = iota
	StateRunning
	StateDraining
	StateCompleted
)

func (s RunState) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// runStateMachine enforces strictly monotonic, non-skipping transitions.
type runStateMachine struct {
	v atomic.Int32
}

func (m *runStateMachine) load() RunState {
	return RunState(m.v.Load())
}

// advance moves to next, which must directly follow the current state.
// Any other transition is a programming error.
func (m *runStateMachine) advance(next RunState) {
	if next <= StateNotStarted || next > StateCompleted {
		panic(fmt.Sprintf("invalid run state transition to %s", next))
	}
	if !m.v.CompareAndSwap(int32(next-1), int32(next)) {
		panic(fmt.Sprintf("invalid run state transition %s -> %s", m.load(), next))
	}
}
