// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package syncbridge

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-syncbridge/config"
	"github.com/joeycumines/go-syncbridge/eventloop"
	"github.com/joeycumines/logiface"
)

// Bridge runs operations on background loops, on behalf of blocking
// callers. It owns a [LoopRegistry] and a [TaskRegistry].
//
// By default every caller shares one loop, which persists until
// [Bridge.Close]. See [WithLoopPerGoroutine] for a loop per goroutine.
type Bridge struct {
	logger   *logiface.Logger[logiface.Event]
	settings *config.Store
	loops    *LoopRegistry
	tasks    *TaskRegistry
	// limits warnings logged per operation
	warnLimiter  *catrate.Limiter
	perGoroutine bool
}

// New initialises a bridge. Loops are created lazily, each running on a
// goroutine locked to an OS thread, and holding a wake-up fd, until shut down.
func New(opts ...Option) (*Bridge, error) {
	cfg, err := resolveBridgeOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Bridge{
		logger:   cfg.logger,
		settings: cfg.settings,
		loops:    newLoopRegistry(cfg.logger, cfg.alternateStrategy, cfg.loopOptions),
		tasks:    NewTaskRegistry(),
		warnLimiter: catrate.NewLimiter(map[time.Duration]int{
			time.Second: 1,
			time.Minute: 10,
		}),
		perGoroutine: cfg.perGoroutine,
	}, nil
}

var (
	defaultBridge     atomic.Pointer[Bridge]
	defaultBridgeOnce sync.Once
)

// Default returns the process-wide bridge, creating it with default options
// on first use, unless replaced via [SetDefault].
func Default() *Bridge {
	defaultBridgeOnce.Do(func() {
		if defaultBridge.Load() != nil {
			return
		}
		b, err := New()
		if err != nil {
			panic(err)
		}
		defaultBridge.CompareAndSwap(nil, b)
	})
	return defaultBridge.Load()
}

// SetDefault replaces the process-wide bridge, returning the previous one,
// which may be nil. The previous bridge is not closed.
func SetDefault(b *Bridge) *Bridge {
	return defaultBridge.Swap(b)
}

// owner identifies the caller's loop.
func (b *Bridge) owner() uint64 {
	if !b.perGoroutine {
		return 0
	}
	return eventloop.GoroutineID()
}

// Loop returns the caller's loop, creating it if necessary.
func (b *Bridge) Loop() (*eventloop.Loop, error) {
	return b.loops.GetOrCreate(b.owner())
}

// ReleaseLoop shuts down the caller's loop, if it has one, cancelling its
// in-flight operations, and waiting until it stops, or ctx is done. A later
// call creates a new loop.
func (b *Bridge) ReleaseLoop(ctx context.Context) error {
	return b.loops.Release(ctx, b.owner())
}

// Loops returns the loop registry.
func (b *Bridge) Loops() *LoopRegistry { return b.loops }

// Tasks returns the task registry.
func (b *Bridge) Tasks() *TaskRegistry { return b.tasks }

// Settings returns the current default settings.
func (b *Bridge) Settings() config.Settings { return b.settings.Get() }

// ListActive describes every in-flight operation.
func (b *Bridge) ListActive() []TaskInfo { return b.tasks.ListActive() }

// Interrupt forcibly cancels every in-flight operation, without waiting,
// returning how many were cancelled. Every blocked caller observes an error
// matching [ErrCoroutineCancelled].
func (b *Bridge) Interrupt() int {
	n := b.tasks.CancelAll()
	b.logger.Info().
		Int(`tasks`, n).
		Log(`syncbridge: interrupted in-flight operations`)
	return n
}

// DumpRunningTasks writes a line per in-flight operation to w, if non-nil,
// then, if cancel is true, cancels them. It returns the listed tasks.
func (b *Bridge) DumpRunningTasks(w io.Writer, cancel bool) ([]TaskInfo, error) {
	infos := b.tasks.ListActive()
	if w != nil {
		if err := FormatTasks(w, infos); err != nil {
			return infos, err
		}
	}
	if cancel {
		var n int
		for _, info := range infos {
			if info.Task.Cancel() {
				n++
			}
		}
		b.logger.Info().
			Int(`tasks`, n).
			Log(`syncbridge: cancelled dumped tasks`)
	}
	return infos, nil
}

// Close cancels every in-flight operation, then shuts down every loop,
// waiting until they stop, or ctx is done. The bridge may still be used
// afterwards, creating new loops as needed.
func (b *Bridge) Close(ctx context.Context) error {
	if n := b.tasks.CancelAll(); n != 0 {
		b.logger.Debug().
			Int(`tasks`, n).
			Log(`syncbridge: cancelled in-flight operations on close`)
	}
	return b.loops.Close(ctx)
}

// warnTimeout logs a timed out wait, rate limited per operation.
func (b *Bridge) warnTimeout(task *TrackedTask, timeout time.Duration) {
	if b.logger == nil {
		return
	}
	name, _, _ := task.Func()
	if _, ok := b.warnLimiter.Allow(name); !ok {
		return
	}
	b.logger.Warning().
		Uint64(`task`, task.ID()).
		Str(`func`, name).
		Dur(`timeout`, timeout).
		Log(`syncbridge: timed out waiting for operation, it continues running`)
}
