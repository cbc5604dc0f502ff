// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// CoroutineState is the lifecycle state of a [Coroutine].
type CoroutineState int32

const (
	// CoroutinePending indicates the coroutine has not yet run.
	CoroutinePending CoroutineState = iota
	// CoroutineRunning indicates the coroutine currently holds the loop.
	CoroutineRunning
	// CoroutineSuspended indicates the coroutine is parked at a yield point.
	CoroutineSuspended
	// CoroutineCompleted indicates the function returned a nil error.
	CoroutineCompleted
	// CoroutineFailed indicates the function returned an error, panicked, or
	// called runtime.Goexit.
	CoroutineFailed
	// CoroutineCancelled indicates the function returned an error after
	// cancellation was requested.
	CoroutineCancelled
)

// String returns a human-readable representation of the state.
func (s CoroutineState) String() string {
	switch s {
	case CoroutinePending:
		return "pending"
	case CoroutineRunning:
		return "running"
	case CoroutineSuspended:
		return "suspended"
	case CoroutineCompleted:
		return "completed"
	case CoroutineFailed:
		return "failed"
	case CoroutineCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Done reports whether the state is terminal.
func (s CoroutineState) Done() bool {
	return s >= CoroutineCompleted
}

// Coroutine is a function scheduled on a [Loop]. It runs on its own
// goroutine, but only ever while holding the loop, handing it back at each
// yield point ([Yield], [Sleep], [Await]). At most one coroutine per loop
// executes at any instant, and loop tasks never run concurrently with one.
//
// If the loop terminates while a coroutine is still live, it is released to
// continue without the loop, its context already cancelled.
type Coroutine struct {
	loop   *Loop
	ctx    context.Context
	cancel context.CancelCauseFunc
	fn     func(ctx context.Context) error

	resume chan struct{} // loop -> coroutine, hands over the loop
	parked chan struct{} // coroutine -> loop, hands it back
	done   chan struct{}

	// result is written by the coroutine goroutine, before handing back
	result error
	// err is the final outcome, visible once done is closed
	err error

	mu        sync.Mutex
	callbacks []func(*Coroutine)

	settleOnce sync.Once

	id              uint64
	gid             atomic.Uint64
	state           atomic.Int32
	started         atomic.Bool
	cancelRequested atomic.Bool

	// accessed only by the coroutine goroutine
	offLoop bool
	exited  bool
}

type coroutineKey struct{}

// NewCoroutine prepares fn to run on the loop, without starting it. The
// context passed to fn is derived from ctx, and is cancelled by
// [Coroutine.Cancel].
func (l *Loop) NewCoroutine(ctx context.Context, fn func(ctx context.Context) error) *Coroutine {
	if ctx == nil {
		ctx = context.Background()
	}
	co := &Coroutine{
		loop:   l,
		fn:     fn,
		resume: make(chan struct{}),
		parked: make(chan struct{}),
		done:   make(chan struct{}),
		id:     l.nextCoroutineID.Add(1),
	}
	co.ctx, co.cancel = context.WithCancelCause(context.WithValue(ctx, coroutineKey{}, co))
	return co
}

// Go creates and starts a coroutine, see [Loop.NewCoroutine].
func (l *Loop) Go(ctx context.Context, fn func(ctx context.Context) error) (*Coroutine, error) {
	co := l.NewCoroutine(ctx, fn)
	if err := co.Start(); err != nil {
		return nil, err
	}
	return co, nil
}

// Start schedules the coroutine's first step. It may be called at most once.
//
// If the loop has terminated, the coroutine settles as failed, with
// ErrLoopTerminated, which is also returned.
func (co *Coroutine) Start() error {
	if !co.started.CompareAndSwap(false, true) {
		return ErrCoroutineStarted
	}

	if cause := co.loop.addLive(co); cause != nil {
		co.cancelNow(cause)
	}

	if err := co.loop.SubmitInternal(co.step); err != nil {
		co.settle(err)
		return err
	}

	go co.main()

	return nil
}

// ID returns the coroutine's identifier, unique within its loop.
func (co *Coroutine) ID() uint64 { return co.id }

// Loop returns the loop the coroutine runs on.
func (co *Coroutine) Loop() *Loop { return co.loop }

// Context returns the coroutine's context, as passed to its function.
func (co *Coroutine) Context() context.Context { return co.ctx }

// State returns the coroutine's current state.
func (co *Coroutine) State() CoroutineState {
	return CoroutineState(co.state.Load())
}

// Done returns a channel that is closed once the coroutine has settled.
func (co *Coroutine) Done() <-chan struct{} { return co.done }

// Err returns the coroutine's outcome, or nil if it has not settled, or
// completed successfully.
func (co *Coroutine) Err() error {
	select {
	case <-co.done:
		return co.err
	default:
		return nil
	}
}

// CancelRequested reports whether [Coroutine.Cancel] was called, or the loop
// cancelled the coroutine during shutdown.
func (co *Coroutine) CancelRequested() bool {
	return co.cancelRequested.Load()
}

// Cancel requests cancellation. The request is delivered on the loop, by
// cancelling the coroutine's context with [ErrCoroutineCancelled] as the
// cause. It returns false if the coroutine had already settled.
//
// A coroutine that has not yet run is settled without running.
func (co *Coroutine) Cancel() bool {
	select {
	case <-co.done:
		return false
	default:
	}
	co.cancelRequested.Store(true)
	if err := co.loop.SubmitInternal(func() { co.cancel(ErrCoroutineCancelled) }); err != nil {
		co.cancel(ErrCoroutineCancelled)
	}
	return true
}

func (co *Coroutine) cancelNow(cause error) {
	co.cancelRequested.Store(true)
	co.cancel(cause)
}

// OnDone registers fn to be called once the coroutine settles. Callbacks
// normally run on the loop, in registration order. If the coroutine has
// already settled, fn is called immediately.
func (co *Coroutine) OnDone(fn func(*Coroutine)) {
	co.mu.Lock()
	select {
	case <-co.done:
		co.mu.Unlock()
		fn(co)
		return
	default:
	}
	co.callbacks = append(co.callbacks, fn)
	co.mu.Unlock()
}

// main is the coroutine goroutine.
func (co *Coroutine) main() {
	co.gid.Store(GoroutineID())

	select {
	case <-co.resume:
	case <-co.loop.terminated:
		co.offLoop = true
		co.exit(ErrLoopTerminated)
		return
	}
	co.acquired()

	var (
		err       error
		completed bool
	)
	defer func() {
		if !completed {
			if r := recover(); r != nil {
				err = PanicError{Value: r}
			} else {
				err = ErrGoexit
			}
		}
		co.exit(err)
	}()

	if co.cancelRequested.Load() && co.ctx.Err() != nil {
		err = context.Cause(co.ctx)
	} else {
		err = co.fn(co.ctx)
	}
	completed = true
}

// exit hands the loop back for the final time.
func (co *Coroutine) exit(err error) {
	co.result = err
	co.exited = true
	if co.offLoop {
		co.settle(err)
		return
	}
	co.released()
	co.parked <- struct{}{}
}

// step runs on the loop, handing it to the coroutine until it parks or exits.
func (co *Coroutine) step() {
	select {
	case <-co.loop.terminated:
		return
	default:
	}
	co.resume <- struct{}{}
	<-co.parked
	if co.exited {
		co.settle(co.result)
	}
}

// park hands the loop back, until ready is closed or ctx is done, or the
// loop terminates. Must be called from the coroutine goroutine while it
// holds the loop.
func (co *Coroutine) park(ctx context.Context, ready <-chan struct{}) {
	stop := make(chan struct{})
	select {
	case <-ready:
		// queued now, so yielding coroutines resume in order
		_ = co.loop.SubmitInternal(co.step)
	default:
		go func() {
			select {
			case <-ready:
			case <-ctx.Done():
			case <-stop:
				return
			}
			// fails only once terminated, which also releases the coroutine
			_ = co.loop.SubmitInternal(co.step)
		}()
	}

	co.state.Store(int32(CoroutineSuspended))
	co.released()
	co.parked <- struct{}{}

	select {
	case <-co.resume:
		co.acquired()
	case <-co.loop.terminated:
		co.offLoop = true
		co.state.Store(int32(CoroutineRunning))
	}
	close(stop)
}

func (co *Coroutine) acquired() {
	gid := co.gid.Load()
	co.loop.holderGoroutineID.Store(gid)
	goroutineLoops.Store(gid, co.loop)
	co.state.Store(int32(CoroutineRunning))
}

func (co *Coroutine) released() {
	gid := co.gid.Load()
	goroutineLoops.Delete(gid)
	co.loop.holderGoroutineID.CompareAndSwap(gid, 0)
}

// settle records the final outcome, then notifies waiters.
func (co *Coroutine) settle(err error) {
	co.settleOnce.Do(func() {
		state := CoroutineCompleted
		switch {
		case err == nil:
		case co.cancelRequested.Load():
			state = CoroutineCancelled
			if !errors.Is(err, ErrCoroutineCancelled) {
				err = &cancelledError{Cause: err}
			}
		default:
			state = CoroutineFailed
		}

		co.loop.removeLive(co)

		co.mu.Lock()
		co.err = err
		co.state.Store(int32(state))
		callbacks := co.callbacks
		co.callbacks = nil
		close(co.done)
		co.mu.Unlock()

		// releases the context, without marking a cancellation request
		co.cancel(context.Canceled)

		for _, fn := range callbacks {
			co.loop.safeExecute(func() { fn(co) })
		}
	})
}
