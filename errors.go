// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package syncbridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joeycumines/go-syncbridge/eventloop"
)

// Standard errors.
var (
	// ErrLoopCreation matches every [LoopCreationError].
	ErrLoopCreation = errors.New("syncbridge: loop creation failed")

	// ErrTimeout matches every [TimeoutError].
	ErrTimeout = errors.New("syncbridge: timed out waiting for operation")

	// ErrCoroutineCancelled is returned to every waiter of an operation that
	// was forcibly cancelled, e.g. via [Bridge.Interrupt].
	ErrCoroutineCancelled = eventloop.ErrCoroutineCancelled

	// ErrReentrantCall is returned when a blocking call is made from a loop
	// goroutine, or from within an operation, which would deadlock.
	ErrReentrantCall = errors.New("syncbridge: blocking call from within a loop")

	// ErrInvalidTimeout is returned for negative timeouts.
	ErrInvalidTimeout = errors.New("syncbridge: timeout must not be negative")
)

// LoopCreationError indicates the loop for an owner failed to start.
type LoopCreationError struct {
	Cause error
	Owner uint64
}

func (e *LoopCreationError) Error() string {
	return fmt.Sprintf("syncbridge: loop creation failed for owner %d: %v", e.Owner, e.Cause)
}

func (e *LoopCreationError) Unwrap() error { return e.Cause }

func (e *LoopCreationError) Is(target error) bool { return target == ErrLoopCreation }

// TimeoutError indicates a wait exceeded its timeout. For [RunSync], only the
// wait ended: the operation continues, and remains tracked.
type TimeoutError struct {
	Timeout time.Duration
	TaskID  uint64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("syncbridge: task %d timed out after %s", e.TaskID, e.Timeout)
}

// Is matches [ErrTimeout], and [context.DeadlineExceeded].
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout || target == context.DeadlineExceeded
}
