// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"container/heap"
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

const (
	// externalBudget caps the external tasks run per tick.
	externalBudget = 1024
	// maxWaitDelay caps a single idle wait, as a safety net.
	maxWaitDelay = 10 * time.Second
)

// Loop is a single-goroutine cooperative scheduler. Tasks, timers, and
// [Coroutine] steps all execute on the loop goroutine, one at a time.
//
// Construct with [New], then start it with Run (typically `go loop.Run(ctx)`).
type Loop struct { // betteralign:ignore
	// Prevent copying
	_ [0]func()

	logger *logiface.Logger[logiface.Event]
	waker  waker

	// queueMu guards the queues, and orders submissions against termination
	queueMu  sync.Mutex
	internal []func()
	external []func()

	// timers are only accessed by the loop goroutine
	timers   timerHeap
	timerSeq uint64
	// TimerID -> *timer, until fired or cancelled
	timerIDs sync.Map

	liveMu    sync.Mutex
	live      map[*Coroutine]struct{}
	liveCause error // set once shutdown begins

	running    chan struct{} // closed once Run reaches StateRunning
	terminated chan struct{} // closed once StateTerminated is stored
	loopDone   chan struct{} // closed once the loop has fully stopped
	doneOnce   sync.Once

	state fastState

	loopGoroutineID   atomic.Uint64
	holderGoroutineID atomic.Uint64 // goroutine of the coroutine holding the loop
	nextCoroutineID   atomic.Uint64
	nextTimerID       atomic.Uint64

	id            uint64
	tickCount     uint64
	shutdownGrace time.Duration
	wakeStrategy  WakeStrategy
}

var loopIDCounter atomic.Uint64

// New creates a new loop, in [StateAwake]. The wake strategy is taken from
// [WithWakeStrategy], or [DefaultWakeStrategy] at the time of the call.
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	w, err := newWaker(cfg.wakeStrategy)
	if err != nil {
		return nil, fmt.Errorf("eventloop: %s wake strategy: %w", cfg.wakeStrategy, err)
	}

	return &Loop{
		logger:        cfg.logger,
		waker:         w,
		live:          make(map[*Coroutine]struct{}),
		running:       make(chan struct{}),
		terminated:    make(chan struct{}),
		loopDone:      make(chan struct{}),
		id:            loopIDCounter.Add(1),
		shutdownGrace: cfg.shutdownGrace,
		wakeStrategy:  cfg.wakeStrategy,
	}, nil
}

// ID returns the process-unique loop identifier.
func (l *Loop) ID() uint64 { return l.id }

// State returns the current loop state.
func (l *Loop) State() LoopState { return l.state.Load() }

// WakeStrategy returns the strategy this loop was created with.
func (l *Loop) WakeStrategy() WakeStrategy { return l.wakeStrategy }

// Running returns a channel that is closed once Run has started processing.
func (l *Loop) Running() <-chan struct{} { return l.running }

// Done returns a channel that is closed once the loop has fully stopped.
func (l *Loop) Done() <-chan struct{} { return l.loopDone }

// Run runs the event loop and blocks until fully stopped.
//
// Run blocks until the loop terminates (via Shutdown(), Close(), or ctx
// cancellation, the latter returning ctx.Err()).
func (l *Loop) Run(ctx context.Context) error {
	if l.IsLoopGoroutine() {
		return ErrReentrantRun
	}

	if !l.state.TryTransition(StateAwake, StateRunning) {
		switch l.state.Load() {
		case StateTerminating, StateTerminated:
			return ErrLoopTerminated
		default:
			return ErrLoopAlreadyRunning
		}
	}

	defer l.markDone()

	return l.run(ctx)
}

func (l *Loop) run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	gid := GoroutineID()
	l.loopGoroutineID.Store(gid)
	goroutineLoops.Store(gid, l)
	defer func() {
		goroutineLoops.Delete(gid)
		l.loopGoroutineID.Store(0)
	}()

	stop := context.AfterFunc(ctx, func() {
		if _, ok := l.state.terminating(); ok {
			l.wake()
		}
	})
	defer stop()

	close(l.running)

	for {
		if l.state.Load() == StateTerminating {
			l.shutdown()
			return ctx.Err()
		}
		l.tick()
	}
}

// tick is a single iteration of the event loop.
func (l *Loop) tick() {
	l.tickCount++
	l.runTimers()
	l.runInternal()
	l.runExternal()
	l.wait()
}

func (l *Loop) wait() {
	if !l.state.TryTransition(StateRunning, StateSleeping) {
		return
	}

	// anything pushed before the transition must be seen here, anything
	// pushed after will wake us
	if l.hasPending() {
		l.state.TryTransition(StateSleeping, StateRunning)
		return
	}

	if err := l.waker.wait(l.nextTimeout()); err != nil {
		l.logger.Crit().
			Uint64(`loop`, l.id).
			Err(err).
			Log(`eventloop: wait failed, terminating loop`)
		l.state.TryTransition(StateSleeping, StateTerminating)
		return
	}

	l.state.TryTransition(StateSleeping, StateRunning)
}

// nextTimeout returns how long to block waiting, capped at maxWaitDelay.
func (l *Loop) nextTimeout() time.Duration {
	if len(l.timers) == 0 {
		return maxWaitDelay
	}
	delay := time.Until(l.timers[0].when)
	if delay < 0 {
		return 0
	}
	return min(delay, maxWaitDelay)
}

func (l *Loop) hasPending() bool {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()
	return len(l.internal) != 0 || len(l.external) != 0
}

// runInternal runs a snapshot of the internal queue, anything queued while
// running waits for the next tick, so a yielding coroutine can't starve
// timers or external tasks.
func (l *Loop) runInternal() bool {
	l.queueMu.Lock()
	tasks := l.internal
	l.internal = nil
	l.queueMu.Unlock()

	for i, fn := range tasks {
		l.safeExecute(fn)
		tasks[i] = nil
	}

	return len(tasks) != 0
}

func (l *Loop) runExternal() bool {
	l.queueMu.Lock()
	tasks := l.external
	if len(tasks) > externalBudget {
		l.external = append([]func(){}, tasks[externalBudget:]...)
		tasks = tasks[:externalBudget]
	} else {
		l.external = nil
	}
	l.queueMu.Unlock()

	for i, fn := range tasks {
		l.safeExecute(fn)
		tasks[i] = nil
	}

	return len(tasks) != 0
}

// runTimers executes all expired timers.
func (l *Loop) runTimers() bool {
	var ran bool
	now := time.Now()
	for len(l.timers) != 0 && !l.timers[0].when.After(now) {
		t := heap.Pop(&l.timers).(*timer)
		if !t.stopped.CompareAndSwap(false, true) {
			continue
		}
		l.timerIDs.Delete(t.id)
		l.safeExecute(t.fn)
		ran = true
	}
	return ran
}

// Submit submits a task to the external queue. Safe to call from any
// goroutine.
//
// State Policy:
//   - StateTerminated: returns ErrLoopTerminated
//   - StateTerminating: accepted, the loop drains queued work before stopping
//   - otherwise: accepted
func (l *Loop) Submit(task func()) error {
	return l.push(&l.external, task)
}

// SubmitInternal submits a task to the internal priority queue, which runs
// before external tasks, each tick. Safe to call from any goroutine.
func (l *Loop) SubmitInternal(task func()) error {
	return l.push(&l.internal, task)
}

func (l *Loop) push(q *[]func(), task func()) error {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()

	switch l.state.Load() {
	case StateTerminated:
		return ErrLoopTerminated
	case StateSleeping, StateTerminating:
		*q = append(*q, task)
		l.wakeLocked()
	default:
		*q = append(*q, task)
	}

	return nil
}

func (l *Loop) wake() {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()
	if l.state.Load() != StateTerminated {
		l.wakeLocked()
	}
}

func (l *Loop) wakeLocked() {
	if err := l.waker.wake(); err != nil {
		l.logger.Debug().
			Uint64(`loop`, l.id).
			Err(err).
			Log(`eventloop: wake failed`)
	}
}

// ScheduleTimer schedules fn to run on the loop after delay. The returned ID
// may be passed to [Loop.CancelTimer].
func (l *Loop) ScheduleTimer(delay time.Duration, fn func()) (TimerID, error) {
	t := &timer{
		when:  time.Now().Add(delay),
		fn:    fn,
		id:    TimerID(l.nextTimerID.Add(1)),
		index: -1,
	}
	l.timerIDs.Store(t.id, t)
	if err := l.SubmitInternal(func() {
		if t.stopped.Load() {
			return
		}
		l.timerSeq++
		t.seq = l.timerSeq
		heap.Push(&l.timers, t)
	}); err != nil {
		l.timerIDs.Delete(t.id)
		return 0, err
	}
	return t.id, nil
}

// CancelTimer prevents a timer from firing, and removes it from the loop. It
// returns [ErrTimerNotFound] if the timer already fired, or was cancelled.
// Safe to call from any goroutine.
func (l *Loop) CancelTimer(id TimerID) error {
	v, ok := l.timerIDs.Load(id)
	if !ok {
		return ErrTimerNotFound
	}
	t := v.(*timer)
	if !t.stopped.CompareAndSwap(false, true) {
		return ErrTimerNotFound
	}
	l.timerIDs.Delete(id)
	// a terminated loop has already discarded its timers
	_ = l.SubmitInternal(func() {
		if t.index >= 0 {
			heap.Remove(&l.timers, t.index)
		}
	})
	return nil
}

// Shutdown gracefully shuts down the event loop, cancelling every live
// coroutine, and waiting (bounded by the shutdown grace) for them to return.
// It blocks until the loop has stopped or ctx is done.
func (l *Loop) Shutdown(ctx context.Context) error {
	if prev, ok := l.state.terminating(); ok {
		if prev == StateAwake {
			l.terminateIdle()
			return nil
		}
		l.wake()
	}

	select {
	case <-l.loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close initiates shutdown without waiting for it to complete.
func (l *Loop) Close() error {
	prev, ok := l.state.terminating()
	if !ok {
		return ErrLoopTerminated
	}
	if prev == StateAwake {
		l.terminateIdle()
		return nil
	}
	l.wake()
	return nil
}

// terminateIdle stops a loop that never ran, on the calling goroutine.
func (l *Loop) terminateIdle() {
	l.cancelLive(ErrCoroutineCancelled)
	l.finalize()
	l.markDone()
}

// shutdown performs the shutdown sequence, on the loop goroutine.
func (l *Loop) shutdown() {
	l.cancelLive(ErrCoroutineCancelled)

	deadline := time.Now().Add(l.shutdownGrace)
	for l.liveCount() != 0 {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			l.logger.Warning().
				Uint64(`loop`, l.id).
				Int(`coroutines`, l.liveCount()).
				Log(`eventloop: shutdown grace elapsed, abandoning live coroutines`)
			break
		}
		ran := l.runTimers()
		ran = l.runInternal() || ran
		ran = l.runExternal() || ran
		if !ran && l.liveCount() != 0 {
			_ = l.waker.wait(min(remaining, l.nextTimeout()))
		}
	}

	l.finalize()
}

// finalize stores StateTerminated, releasing any parked coroutines, then
// runs whatever was queued before termination.
func (l *Loop) finalize() {
	l.queueMu.Lock()
	l.state.Store(StateTerminated)
	l.queueMu.Unlock()

	close(l.terminated)

	for l.runInternal() || l.runExternal() {
	}

	l.timers = nil
	l.timerIDs.Clear()

	l.queueMu.Lock()
	_ = l.waker.close()
	l.queueMu.Unlock()
}

func (l *Loop) markDone() {
	l.doneOnce.Do(func() { close(l.loopDone) })
}

// addLive tracks co, returning the cause it must be cancelled with, if the
// loop is already shutting down.
func (l *Loop) addLive(co *Coroutine) error {
	l.liveMu.Lock()
	defer l.liveMu.Unlock()
	l.live[co] = struct{}{}
	return l.liveCause
}

func (l *Loop) removeLive(co *Coroutine) {
	l.liveMu.Lock()
	delete(l.live, co)
	l.liveMu.Unlock()
}

func (l *Loop) liveCount() int {
	l.liveMu.Lock()
	defer l.liveMu.Unlock()
	return len(l.live)
}

func (l *Loop) cancelLive(cause error) {
	l.liveMu.Lock()
	if l.liveCause == nil {
		l.liveCause = cause
	}
	live := make([]*Coroutine, 0, len(l.live))
	for co := range l.live {
		live = append(live, co)
	}
	l.liveMu.Unlock()

	for _, co := range live {
		co.cancelNow(cause)
	}
}

// safeExecute executes a task with panic recovery.
func (l *Loop) safeExecute(fn func()) {
	if fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			l.logger.Err().
				Uint64(`loop`, l.id).
				Str(`panic`, fmt.Sprint(r)).
				Log(`eventloop: task panicked`)
		}
	}()

	fn()
}

// IsLoopGoroutine reports whether the caller is the loop goroutine, or the
// goroutine of a coroutine currently holding the loop. Blocking on the loop
// from either would deadlock.
func (l *Loop) IsLoopGoroutine() bool {
	loopID := l.loopGoroutineID.Load()
	holderID := l.holderGoroutineID.Load()
	if loopID == 0 && holderID == 0 {
		return false
	}
	id := GoroutineID()
	return id == loopID || id == holderID
}
