// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"time"

	"github.com/joeycumines/logiface"
)

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	logger        *logiface.Logger[logiface.Event]
	wakeStrategy  WakeStrategy
	shutdownGrace time.Duration
	wakeSet       bool
}

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithLogger configures structured logging for the loop, e.g. recovered task
// panics, and wake-up failures. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithWakeStrategy selects how the loop blocks while idle, overriding the
// process-wide [DefaultWakeStrategy] at the time of [New].
func WithWakeStrategy(strategy WakeStrategy) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if !strategy.valid() {
			return ErrUnknownWakeStrategy
		}
		opts.wakeStrategy = strategy
		opts.wakeSet = true
		return nil
	}}
}

// WithShutdownGrace bounds how long shutdown waits for cancelled coroutines
// to return, before abandoning the loop. Defaults to 100ms.
func WithShutdownGrace(d time.Duration) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.shutdownGrace = d
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		shutdownGrace: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	if !cfg.wakeSet {
		cfg.wakeStrategy = DefaultWakeStrategy()
	}
	return cfg, nil
}
