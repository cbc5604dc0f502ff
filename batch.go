// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package syncbridge

import (
	"context"
	"sync"
	"time"

	"github.com/joeycumines/go-syncbridge/eventloop"
	"golang.org/x/sync/semaphore"
)

// Outcome is the result of one operation within a batch. Operations that
// were never started, or had not settled, have Done set to false.
type Outcome[T any] struct {
	Value T
	Err   error
	Done  bool
}

// FirstError returns the error of the first outcome, in input order, that
// failed, or nil.
func FirstError[T any](outcomes []Outcome[T]) error {
	for _, o := range outcomes {
		if o.Err != nil {
			return o.Err
		}
	}
	return nil
}

// BatchOption configures [RunBatched].
type BatchOption interface {
	applyBatch(*batchOptions) error
}

type batchOptions struct {
	batchSize    *int
	progress     func(done, total int)
	opTimeout    time.Duration
	returnErrors bool
	noFiles      bool
}

type batchOptionImpl struct {
	applyBatchFunc func(*batchOptions) error
}

func (x *batchOptionImpl) applyBatch(opts *batchOptions) error {
	return x.applyBatchFunc(opts)
}

// WithBatchSize bounds how many operations are in flight at once. A
// non-positive n is unbounded. If omitted, the bridge's settings provide the
// default, see [config.Settings.BatchSize], else it is unbounded.
func WithBatchSize(n int) BatchOption {
	return &batchOptionImpl{func(opts *batchOptions) error {
		opts.batchSize = &n
		return nil
	}}
}

// WithReturnErrors, if true, records every error in its [Outcome], running
// every operation, rather than stopping at the first error.
func WithReturnErrors(returnErrors bool) BatchOption {
	return &batchOptionImpl{func(opts *batchOptions) error {
		opts.returnErrors = returnErrors
		return nil
	}}
}

// WithOperationTimeout cancels each operation that runs longer than d, with
// a [*TimeoutError] cause. Zero disables, negative values are invalid.
func WithOperationTimeout(d time.Duration) BatchOption {
	return &batchOptionImpl{func(opts *batchOptions) error {
		if d < 0 {
			return ErrInvalidTimeout
		}
		opts.opTimeout = d
		return nil
	}}
}

// WithProgress calls fn each time an operation settles. Calls are
// serialised.
func WithProgress(fn func(done, total int)) BatchOption {
	return &batchOptionImpl{func(opts *batchOptions) error {
		opts.progress = fn
		return nil
	}}
}

// WithNoFiles selects the default batch size for operations that do not
// hold open files, which is typically much larger.
func WithNoFiles(noFiles bool) BatchOption {
	return &batchOptionImpl{func(opts *batchOptions) error {
		opts.noFiles = noFiles
		return nil
	}}
}

// batchState is shared between the caller, and the loop driving the batch.
type batchState[T any] struct {
	ctx      context.Context
	bridge   *Bridge
	loop     *eventloop.Loop
	sem      *semaphore.Weighted
	ops      []Operation[T]
	outcomes []Outcome[T]
	firstErr error
	done     chan struct{}
	opts     *batchOptions
	mu       sync.Mutex
	next     int
	active   int
	settled  int
	stopped  bool
	filling  bool
	finished bool
}

// RunBatched runs ops on the caller's loop, with at most the batch size
// unresolved at once, blocking until they settle. Outcomes are in input
// order, and always the same length as ops.
//
// By default, the first error stops further operations from starting, and
// is returned once every started operation settles. With
// [WithReturnErrors], every operation runs, and errors are only recorded in
// the outcomes.
//
// If ctx is done, RunBatched stops starting operations, and returns
// ctx.Err() with the outcomes so far, leaving started operations running.
// Calls from a loop goroutine return [ErrReentrantCall]. A nil b uses
// [Default].
func RunBatched[T any](ctx context.Context, b *Bridge, ops []Operation[T], opts ...BatchOption) ([]Outcome[T], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b == nil {
		b = Default()
	}

	cfg := new(batchOptions)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyBatch(cfg); err != nil {
			return nil, err
		}
	}

	if eventloop.CurrentLoop() != nil {
		return nil, ErrReentrantCall
	}

	outcomes := make([]Outcome[T], len(ops))
	if len(ops) == 0 {
		return outcomes, nil
	}

	loop, err := b.Loop()
	if err != nil {
		return nil, err
	}

	limit := len(ops)
	if n := b.batchSize(cfg); n > 0 && n < limit {
		limit = n
	}

	s := &batchState[T]{
		ctx:      context.WithoutCancel(ctx),
		bridge:   b,
		loop:     loop,
		sem:      semaphore.NewWeighted(int64(limit)),
		ops:      ops,
		outcomes: outcomes,
		done:     make(chan struct{}),
		opts:     cfg,
	}

	if err := loop.Submit(s.fill); err != nil {
		return nil, err
	}

	select {
	case <-s.done:
		return s.outcomes, s.firstErr
	case <-ctx.Done():
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return s.outcomes, s.firstErr
	}
	s.stopped = true
	return append([]Outcome[T](nil), s.outcomes...), ctx.Err()
}

// batchSize resolves the effective batch size, non-positive if unbounded.
func (b *Bridge) batchSize(cfg *batchOptions) int {
	if cfg.batchSize != nil {
		return *cfg.batchSize
	}
	if n, ok := b.settings.Get().BatchSize(cfg.noFiles); ok {
		return n
	}
	return 0
}

// fill starts operations until the batch is full, or exhausted. Only one
// fill runs at a time, any other caller defers to it.
func (s *batchState[T]) fill() {
	s.mu.Lock()
	if s.filling {
		s.mu.Unlock()
		return
	}
	s.filling = true
	for !s.stopped && s.next < len(s.ops) && s.sem.TryAcquire(1) {
		i := s.next
		s.next++
		s.active++
		s.mu.Unlock()
		s.start(i)
		s.mu.Lock()
	}
	s.filling = false
	s.checkDone()
	s.mu.Unlock()
}

func (s *batchState[T]) start(i int) {
	op := s.ops[i]
	if d := s.opts.opTimeout; d > 0 {
		inner := op
		op = func(ctx context.Context) (T, error) {
			ctx, cancel := context.WithTimeoutCause(ctx, d, &TimeoutError{Timeout: d})
			defer cancel()
			return inner(ctx)
		}
	}

	var value T
	co := s.loop.NewCoroutine(s.ctx, func(ctx context.Context) (err error) {
		value, err = op(ctx)
		return
	})
	task := newTrackedTask(co, s.ops[i])
	id := s.bridge.tasks.Track(task)
	co.OnDone(func(co *eventloop.Coroutine) {
		s.bridge.tasks.Untrack(id)
		s.finish(i, value, co.Err())
	})

	// on failure the coroutine settles, and finish is already called
	_ = co.Start()
}

// finish records an outcome, freeing its slot.
func (s *batchState[T]) finish(i int, value T, err error) {
	s.mu.Lock()
	s.sem.Release(1)
	s.active--
	s.settled++
	s.outcomes[i] = Outcome[T]{Value: value, Err: err, Done: true}
	if err != nil && !s.opts.returnErrors {
		if s.firstErr == nil {
			s.firstErr = err
		}
		s.stopped = true
	}
	if s.opts.progress != nil {
		s.opts.progress(s.settled, len(s.ops))
	}
	if s.filling {
		// the running fill will observe the free slot
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.fill()
}

// checkDone must be called with mu held.
func (s *batchState[T]) checkDone() {
	if s.finished || s.active != 0 || (!s.stopped && s.next < len(s.ops)) {
		return
	}
	s.finished = true
	close(s.done)
}
