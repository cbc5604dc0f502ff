// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"context"
	"runtime"
	"time"
)

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// FromContext returns the coroutine that ctx belongs to, or nil.
func FromContext(ctx context.Context) *Coroutine {
	if ctx == nil {
		return nil
	}
	co, _ := ctx.Value(coroutineKey{}).(*Coroutine)
	return co
}

// InCoroutine reports whether the caller is running as the coroutine that
// ctx belongs to, i.e. on the coroutine goroutine.
func InCoroutine(ctx context.Context) bool {
	return current(ctx) != nil
}

// current returns the coroutine for ctx, only if called from its goroutine.
func current(ctx context.Context) *Coroutine {
	co := FromContext(ctx)
	if co == nil || co.gid.Load() != GoroutineID() {
		return nil
	}
	return co
}

// Yield hands the loop back, letting other tasks and coroutines run, and
// returns once the coroutine is next scheduled. It returns the cause, if ctx
// is done.
//
// Outside a coroutine it only calls runtime.Gosched.
func Yield(ctx context.Context) error {
	co := current(ctx)
	if co == nil || co.offLoop {
		runtime.Gosched()
	} else {
		co.park(ctx, closedChan)
	}
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}

// Sleep suspends for at least d, using a loop timer, or a plain timer
// outside a coroutine. It returns early with the cause, if ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return Yield(ctx)
	}

	co := current(ctx)
	ready := make(chan struct{})
	fire := func() { close(ready) }

	if co != nil && !co.offLoop {
		if id, err := co.loop.ScheduleTimer(d, fire); err == nil {
			defer func() { _ = co.loop.CancelTimer(id) }()
			return wait(ctx, co, ready)
		}
	}

	t := time.AfterFunc(d, fire)
	defer t.Stop()
	return wait(ctx, co, ready)
}

// Await runs fn on a new goroutine, suspending the calling coroutine until it
// returns, or ctx is done. A panic or runtime.Goexit within fn is returned as
// an error.
//
// If ctx is done first, Await returns the cause immediately, and fn, which
// shares ctx, is left to finish in the background.
func Await[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		result T
		err    error
	)
	ready := make(chan struct{})
	go func() {
		defer close(ready)
		var completed bool
		defer func() {
			if !completed {
				if r := recover(); r != nil {
					err = PanicError{Value: r}
				} else {
					err = ErrGoexit
				}
			}
		}()
		result, err = fn(ctx)
		completed = true
	}()

	if werr := wait(ctx, current(ctx), ready); werr != nil {
		var zero T
		return zero, werr
	}
	return result, err
}

// wait blocks until ready is closed or ctx is done, parking co if non-nil.
func wait(ctx context.Context, co *Coroutine, ready <-chan struct{}) error {
	for {
		select {
		case <-ready:
			return nil
		default:
		}
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		if co == nil || co.offLoop {
			select {
			case <-ready:
				return nil
			case <-ctx.Done():
				return context.Cause(ctx)
			}
		}
		co.park(ctx, ready)
	}
}
