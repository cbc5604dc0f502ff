// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"sync/atomic"
	"time"
)

// WakeStrategy selects the mechanism an idle loop blocks on, and that
// submitters use to wake it.
type WakeStrategy uint32

const (
	// WakeFD blocks in poll(2) on an eventfd (Linux) or self-pipe (other
	// unix). It is the process-wide default, and is unavailable on
	// non-unix platforms.
	WakeFD WakeStrategy = iota
	// WakeChannel blocks on a Go channel. Available on every platform.
	WakeChannel
)

// String returns a human-readable representation of the strategy.
func (s WakeStrategy) String() string {
	switch s {
	case WakeFD:
		return "fd"
	case WakeChannel:
		return "channel"
	default:
		return "unknown"
	}
}

func (s WakeStrategy) valid() bool {
	return s == WakeFD || s == WakeChannel
}

var defaultWakeStrategy atomic.Uint32 // WakeFD

// DefaultWakeStrategy returns the process-wide wake strategy, used by [New]
// unless [WithWakeStrategy] is provided.
func DefaultWakeStrategy() WakeStrategy {
	return WakeStrategy(defaultWakeStrategy.Load())
}

// SetDefaultWakeStrategy replaces the process-wide wake strategy, returning
// the previous value. It panics if strategy is not a known value.
//
// Loops that already exist are unaffected.
func SetDefaultWakeStrategy(strategy WakeStrategy) WakeStrategy {
	if !strategy.valid() {
		panic(ErrUnknownWakeStrategy)
	}
	return WakeStrategy(defaultWakeStrategy.Swap(uint32(strategy)))
}

// waker is the blocking primitive behind an idle loop.
type waker interface {
	// wait blocks until woken, or timeout elapses. A negative timeout blocks
	// indefinitely. Spurious returns are permitted.
	wait(timeout time.Duration) error
	// wake is safe to call from any goroutine, and must not block.
	wake() error
	close() error
}

func newWaker(strategy WakeStrategy) (waker, error) {
	switch strategy {
	case WakeFD:
		return newFDWaker()
	case WakeChannel:
		return newChanWaker(), nil
	default:
		return nil, ErrUnknownWakeStrategy
	}
}

// chanWaker coalesces wake-ups into a single buffered slot.
type chanWaker struct {
	ch    chan struct{}
	timer *time.Timer
}

func newChanWaker() *chanWaker {
	return &chanWaker{ch: make(chan struct{}, 1)}
}

func (w *chanWaker) wait(timeout time.Duration) error {
	if timeout < 0 {
		<-w.ch
		return nil
	}
	if timeout == 0 {
		select {
		case <-w.ch:
		default:
		}
		return nil
	}
	if w.timer == nil {
		w.timer = time.NewTimer(timeout)
	} else {
		w.timer.Reset(timeout)
	}
	select {
	case <-w.ch:
		w.timer.Stop()
	case <-w.timer.C:
	}
	return nil
}

func (w *chanWaker) wake() error {
	select {
	case w.ch <- struct{}{}:
	default:
	}
	return nil
}

func (w *chanWaker) close() error {
	if w.timer != nil {
		w.timer.Stop()
	}
	return nil
}
