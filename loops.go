// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package syncbridge

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/joeycumines/go-syncbridge/eventloop"
	"github.com/joeycumines/logiface"
)

// LoopRegistry owns the loop of each owner identity, creating each on first
// use, and running it on a dedicated goroutine until [LoopRegistry.Close].
// At most one running loop exists per owner.
type LoopRegistry struct {
	logger      *logiface.Logger[logiface.Event]
	loops       map[uint64]*eventloop.Loop
	loopOptions []eventloop.LoopOption
	mu          sync.Mutex
	alternate   bool
}

func newLoopRegistry(logger *logiface.Logger[logiface.Event], alternate bool, opts []eventloop.LoopOption) *LoopRegistry {
	return &LoopRegistry{
		logger:      logger,
		loops:       make(map[uint64]*eventloop.Loop),
		loopOptions: opts,
		alternate:   alternate,
	}
}

// GetOrCreate returns the loop for owner, creating and starting it if none
// exists, or the existing one was shut down. Concurrent calls for the same
// owner observe the same loop.
//
// On failure, a [*LoopCreationError] is returned, and nothing is recorded.
func (x *LoopRegistry) GetOrCreate(owner uint64) (*eventloop.Loop, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if loop, ok := x.loops[owner]; ok {
		switch loop.State() {
		case eventloop.StateTerminating, eventloop.StateTerminated:
			delete(x.loops, owner)
		default:
			return loop, nil
		}
	}

	var loop *eventloop.Loop
	create := func() (err error) {
		loop, err = x.start()
		return err
	}

	var err error
	if x.alternate || platformNeedsAlternateStrategy {
		err = WithAlternateStrategy(create)
	} else {
		err = create()
	}
	if err != nil {
		x.logger.Err().
			Uint64(`owner`, owner).
			Err(err).
			Log(`syncbridge: loop creation failed`)
		return nil, &LoopCreationError{Owner: owner, Cause: err}
	}

	x.loops[owner] = loop

	x.logger.Debug().
		Uint64(`owner`, owner).
		Uint64(`loop`, loop.ID()).
		Str(`wake_strategy`, loop.WakeStrategy().String()).
		Log(`syncbridge: loop created`)

	return loop, nil
}

// start creates a loop, and runs it, returning once it is processing.
func (x *LoopRegistry) start() (*eventloop.Loop, error) {
	opts := make([]eventloop.LoopOption, 0, len(x.loopOptions)+1)
	opts = append(opts, eventloop.WithLogger(x.logger))
	opts = append(opts, x.loopOptions...)

	loop, err := eventloop.New(opts...)
	if err != nil {
		return nil, err
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- loop.Run(context.Background())
	}()

	select {
	case <-loop.Running():
		return loop, nil
	case err := <-runErr:
		if err == nil {
			err = eventloop.ErrLoopTerminated
		}
		return nil, err
	}
}

// Release shuts down and forgets the loop of owner, if any, waiting until it
// stops, or ctx is done.
func (x *LoopRegistry) Release(ctx context.Context, owner uint64) error {
	x.mu.Lock()
	loop, ok := x.loops[owner]
	delete(x.loops, owner)
	x.mu.Unlock()
	if !ok {
		return nil
	}

	x.logger.Debug().
		Uint64(`owner`, owner).
		Uint64(`loop`, loop.ID()).
		Log(`syncbridge: loop released`)

	return loop.Shutdown(ctx)
}

// Loops returns every registered loop, ordered by ID.
func (x *LoopRegistry) Loops() []*eventloop.Loop {
	x.mu.Lock()
	loops := make([]*eventloop.Loop, 0, len(x.loops))
	for _, loop := range x.loops {
		loops = append(loops, loop)
	}
	x.mu.Unlock()
	sort.Slice(loops, func(i, j int) bool { return loops[i].ID() < loops[j].ID() })
	return loops
}

// Close shuts down and forgets every loop, waiting until they stop, or ctx
// is done. Live coroutines are cancelled, see [eventloop.Loop.Shutdown].
func (x *LoopRegistry) Close(ctx context.Context) error {
	x.mu.Lock()
	loops := x.loops
	x.loops = make(map[uint64]*eventloop.Loop)
	x.mu.Unlock()

	var errs []error
	for _, loop := range loops {
		if err := loop.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
