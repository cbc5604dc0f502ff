// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrLoopAlreadyRunning is returned when Run() is called on a loop that is already running.
	ErrLoopAlreadyRunning = errors.New("eventloop: loop is already running")

	// ErrLoopTerminated is returned when operations are attempted on a terminated loop.
	ErrLoopTerminated = errors.New("eventloop: loop has been terminated")

	// ErrReentrantRun is returned when Run() is called from within the loop itself.
	ErrReentrantRun = errors.New("eventloop: cannot call Run() from within the loop")

	// ErrCoroutineCancelled is the cause used when a coroutine is forcibly
	// cancelled, e.g. via [Coroutine.Cancel] or loop shutdown. Yield points
	// return an error matching it, and so does [Coroutine.Err], if the
	// coroutine failed after cancellation was requested.
	ErrCoroutineCancelled = errors.New("eventloop: coroutine cancelled")

	// ErrCoroutineStarted is returned by [Coroutine.Start] if called more than once.
	ErrCoroutineStarted = errors.New("eventloop: coroutine already started")

	// ErrGoexit is used to fail a coroutine whose goroutine exited via runtime.Goexit().
	ErrGoexit = errors.New("eventloop: coroutine exited via runtime.Goexit")

	// ErrWakeStrategyUnsupported indicates the requested [WakeStrategy] is
	// not available on this platform.
	ErrWakeStrategyUnsupported = errors.New("eventloop: wake strategy unsupported on this platform")

	// ErrTimerNotFound is returned by [Loop.CancelTimer] if the timer already
	// fired, or was cancelled.
	ErrTimerNotFound = errors.New("eventloop: timer not found")

	// ErrUnknownWakeStrategy indicates an invalid [WakeStrategy] value.
	ErrUnknownWakeStrategy = errors.New("eventloop: unknown wake strategy")
)

// PanicError wraps a value recovered from a panicking coroutine or awaited
// function.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("eventloop: coroutine panicked: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// cancelledError marks a coroutine failure that happened after cancellation
// was requested, while keeping the error the coroutine actually returned.
type cancelledError struct {
	Cause error
}

func (e *cancelledError) Error() string {
	if e.Cause == nil || e.Cause == ErrCoroutineCancelled {
		return ErrCoroutineCancelled.Error()
	}
	return ErrCoroutineCancelled.Error() + ": " + e.Cause.Error()
}

func (e *cancelledError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrCoroutineCancelled}
	}
	return []error{ErrCoroutineCancelled, e.Cause}
}
