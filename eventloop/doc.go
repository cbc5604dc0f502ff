// Package eventloop provides a single-goroutine cooperative event loop, with
// timers, and coroutines that hand the loop back at explicit yield points.
//
// # Architecture
//
// A [Loop] runs on one goroutine (locked to its OS thread), executing, each
// tick:
//  1. Expired timers (earliest deadline first, FIFO for ties)
//  2. Internal queue tasks ([Loop.SubmitInternal], including coroutine steps)
//  3. External queue tasks ([Loop.Submit]), up to a fixed budget
//
// then blocks until woken, or the next timer is due.
//
// A [Coroutine] wraps a func(ctx) error. It executes on its own goroutine,
// but only while the loop has handed control to it, so coroutine code never
// runs concurrently with loop tasks, or other coroutines on the same loop.
// Control returns to the loop at [Yield], [Sleep], and [Await].
//
// # Wake Strategies
//
// An idle loop blocks on a [WakeStrategy]:
//   - [WakeFD]: poll(2) on an eventfd (Linux) or self-pipe (other unix)
//   - [WakeChannel]: a buffered Go channel, available everywhere
//
// [WakeFD] is the process-wide default, see [SetDefaultWakeStrategy].
//
// # Shutdown
//
// [Loop.Shutdown] cancels every live coroutine, runs the loop until they
// return (bounded by [WithShutdownGrace]), then terminates. Coroutines still
// live at that point continue without the loop.
//
// # Usage
//
//	loop, err := eventloop.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go loop.Run(ctx)
//	defer loop.Shutdown(context.Background())
//
//	co, err := loop.Go(ctx, func(ctx context.Context) error {
//	    return eventloop.Sleep(ctx, time.Second)
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	<-co.Done()
package eventloop
