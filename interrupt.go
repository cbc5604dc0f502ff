package syncbridge

import (
	"context"
	"os"
	"os/signal"
)

// NotifyInterrupt calls [Bridge.Interrupt] each time one of the given
// signals is received, os.Interrupt if none are given, until ctx is done, or
// the returned stop function is called.
func (b *Bridge) NotifyInterrupt(ctx context.Context, signals ...os.Signal) (stop func()) {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt}
	}

	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-ch:
				b.logger.Notice().
					Str(`signal`, sig.String()).
					Log(`syncbridge: received interrupt signal`)
				b.Interrupt()
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
