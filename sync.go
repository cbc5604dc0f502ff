// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package syncbridge

import (
	"context"
	"time"

	"github.com/joeycumines/go-syncbridge/eventloop"
)

// Operation is an asynchronous operation, run as a coroutine on a loop. It
// must only suspend via the yield points of package eventloop, e.g.
// [eventloop.Sleep] and [eventloop.Await], and should return promptly once
// ctx is done.
type Operation[T any] func(ctx context.Context) (T, error)

// RunSync runs op on the caller's loop, blocking until it settles, or the
// wait times out.
//
// A timeout of 0 waits indefinitely, positive values bound the wait, and
// negative values return [ErrInvalidTimeout]. A timeout, like ctx being done,
// ends only the wait: a [*TimeoutError] (or ctx.Err()) is returned, while op
// continues, tracked, until it settles, its outcome then discarded. The
// context passed to op keeps the values of ctx, but not its cancellation.
//
// If op is cancelled, e.g. via [Bridge.Interrupt], the error matches
// [ErrCoroutineCancelled]. Otherwise errors returned by op are returned
// unchanged, and panics as [eventloop.PanicError].
//
// Calls from a loop goroutine, including from within another operation,
// return [ErrReentrantCall]. A nil b uses [Default].
func RunSync[T any](ctx context.Context, b *Bridge, op Operation[T], timeout time.Duration) (T, error) {
	return runSync(ctx, b, op, op, timeout)
}

// runSync implements [RunSync], identifying the task by ident, which is the
// function reported by diagnostics, and used to rate limit warnings.
func runSync[T any](ctx context.Context, b *Bridge, op Operation[T], ident any, timeout time.Duration) (T, error) {
	var zero T

	if timeout < 0 {
		return zero, ErrInvalidTimeout
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if b == nil {
		b = Default()
	}
	if eventloop.CurrentLoop() != nil {
		return zero, ErrReentrantCall
	}

	loop, err := b.Loop()
	if err != nil {
		return zero, err
	}

	var (
		sig    = newCompletionSignal[T]()
		result T
	)
	co := loop.NewCoroutine(context.WithoutCancel(ctx), func(ctx context.Context) (err error) {
		result, err = op(ctx)
		return
	})
	task := newTrackedTask(co, ident)
	id := b.tasks.Track(task)
	co.OnDone(func(co *eventloop.Coroutine) {
		b.tasks.Untrack(id)
		sig.settle(result, co.Err())
	})

	if err := co.Start(); err != nil {
		return zero, err
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-sig.done:
		return sig.result()
	case <-timer:
	case <-ctx.Done():
	}

	// prefer a result that raced the end of the wait
	select {
	case <-sig.done:
		return sig.result()
	default:
	}

	co.OnDone(func(co *eventloop.Coroutine) {
		b.logger.Debug().
			Uint64(`task`, id).
			Bool(`failed`, co.Err() != nil).
			Log(`syncbridge: discarded outcome of abandoned operation`)
	})

	if ctx.Err() != nil {
		return zero, ctx.Err()
	}

	b.warnTimeout(task, timeout)
	return zero, &TimeoutError{Timeout: timeout, TaskID: id}
}

// Wrap adapts fn into a blocking function, each call running fn via
// [RunSync], with the given timeout. Tasks are reported as fn.
func Wrap[A, T any](b *Bridge, fn func(ctx context.Context, arg A) (T, error), timeout time.Duration) func(ctx context.Context, arg A) (T, error) {
	return func(ctx context.Context, arg A) (T, error) {
		return runSync(ctx, b, func(ctx context.Context) (T, error) {
			return fn(ctx, arg)
		}, fn, timeout)
	}
}
