// Package syncbridge runs cooperative asynchronous operations on behalf of
// ordinary blocking callers.
//
// Operations are functions of a context, run as coroutines on a background
// [eventloop.Loop], suspending only at the yield points of package
// eventloop. Callers never run loop code directly: work is submitted across
// goroutines, and results come back through a single-use signal.
//
//   - [RunSync] runs one operation, blocking until it settles, or the wait
//     times out. Timeouts end the wait, never the operation.
//   - [RunBatched] runs many, with a bound on how many are in flight, and
//     outcomes in input order.
//   - [Bridge.Interrupt] forcibly cancels everything in flight, and every
//     waiter observes [ErrCoroutineCancelled].
//   - [Bridge.ListActive] and [Bridge.DumpRunningTasks] help find stuck
//     operations.
//
// # Loops
//
// Every caller shares one loop, created on first use, and kept until
// [Bridge.Close]. [WithLoopPerGoroutine] gives each calling goroutine its own
// loop, which costs an OS thread and a wake-up fd until the goroutine calls
// [Bridge.ReleaseLoop]. Where
// poll(2) is unavailable, loops are created via [WithAlternateStrategy],
// which leaves the process-wide default wake strategy untouched.
//
// # Usage
//
//	b, err := syncbridge.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close(context.Background())
//
//	v, err := syncbridge.RunSync(ctx, b, func(ctx context.Context) (string, error) {
//	    if err := eventloop.Sleep(ctx, time.Second); err != nil {
//	        return "", err
//	    }
//	    return "done", nil
//	}, 5*time.Second)
package syncbridge
