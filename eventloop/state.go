// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"sync/atomic"
)

// LoopState represents the current state of the event loop.
//
// State Machine:
//
//	StateAwake → StateRunning              [Run()]
//	StateRunning → StateSleeping           [wait via CAS]
//	StateSleeping → StateRunning           [wake via CAS]
//	StateRunning|StateSleeping → StateTerminating [Shutdown(), Close(), ctx]
//	StateAwake → StateTerminated           [Shutdown() before Run()]
//	StateTerminating → StateTerminated     [shutdown complete]
//
// Use TryTransition (CAS) for the temporary states (Running, Sleeping), and
// Store only for StateTerminated.
type LoopState uint64

const (
	// StateAwake indicates the loop has been created but not started.
	StateAwake LoopState = iota
	// StateRunning indicates the loop is actively processing tasks.
	StateRunning
	// StateSleeping indicates the loop is blocked, waiting for work or timers.
	StateSleeping
	// StateTerminating indicates shutdown has been requested but not completed.
	StateTerminating
	// StateTerminated indicates the loop has stopped, and is fully shut down.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free state machine with cache-line padding.
type fastState struct { // betteralign:ignore
	_ [64]byte      //nolint:unused
	v atomic.Uint64 // LoopState
	_ [56]byte      //nolint:unused
}

func (s *fastState) Load() LoopState {
	return LoopState(s.v.Load())
}

func (s *fastState) Store(state LoopState) {
	s.v.Store(uint64(state))
}

func (s *fastState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// terminating moves any non-terminal state to StateTerminating, returning the
// state it moved from, or false if already terminating or terminated.
func (s *fastState) terminating() (LoopState, bool) {
	for {
		current := s.Load()
		if current == StateTerminating || current == StateTerminated {
			return current, false
		}
		if s.TryTransition(current, StateTerminating) {
			return current, true
		}
	}
}
