package syncbridge_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joeycumines/go-syncbridge"
	"github.com/joeycumines/go-syncbridge/config"
	"github.com/joeycumines/go-syncbridge/eventloop"
)

// ExampleRunSync demonstrates calling an asynchronous operation from
// ordinary blocking code.
func ExampleRunSync() {
	bridge, err := syncbridge.New(syncbridge.WithSettings(config.NewStore(config.Settings{})))
	if err != nil {
		panic(err)
	}
	defer bridge.Close(context.Background())

	greeting, err := syncbridge.RunSync(context.Background(), bridge, func(ctx context.Context) (string, error) {
		if err := eventloop.Sleep(ctx, 10*time.Millisecond); err != nil {
			return ``, err
		}
		return `hello`, nil
	}, time.Second)
	fmt.Println(greeting, err)

	// the wait times out, but the operation keeps running
	_, err = syncbridge.RunSync(context.Background(), bridge, func(ctx context.Context) (string, error) {
		return ``, eventloop.Sleep(ctx, time.Minute)
	}, 10*time.Millisecond)
	fmt.Println(errors.Is(err, syncbridge.ErrTimeout), len(bridge.ListActive()))

	//output:
	//hello <nil>
	//true 1
}

// ExampleRunBatched demonstrates running operations with bounded
// concurrency, results returned in input order.
func ExampleRunBatched() {
	bridge, err := syncbridge.New(syncbridge.WithSettings(config.NewStore(config.Settings{})))
	if err != nil {
		panic(err)
	}
	defer bridge.Close(context.Background())

	ops := make([]syncbridge.Operation[int], 5)
	for i := range ops {
		ops[i] = func(ctx context.Context) (int, error) {
			if err := eventloop.Sleep(ctx, time.Duration(5-i)*time.Millisecond); err != nil {
				return 0, err
			}
			return i * 10, nil
		}
	}

	outcomes, err := syncbridge.RunBatched(context.Background(), bridge, ops, syncbridge.WithBatchSize(2))
	if err != nil {
		panic(err)
	}
	for _, o := range outcomes {
		fmt.Println(o.Value)
	}

	//output:
	//0
	//10
	//20
	//30
	//40
}

// ExampleBridge_Interrupt demonstrates forcibly cancelling in-flight
// operations.
func ExampleBridge_Interrupt() {
	bridge, err := syncbridge.New(syncbridge.WithSettings(config.NewStore(config.Settings{})))
	if err != nil {
		panic(err)
	}
	defer bridge.Close(context.Background())

	started := make(chan struct{})
	go func() {
		<-started
		bridge.Interrupt()
	}()

	_, err = syncbridge.RunSync(context.Background(), bridge, func(ctx context.Context) (int, error) {
		close(started)
		return 0, eventloop.Sleep(ctx, time.Hour)
	}, 0)
	fmt.Println(errors.Is(err, syncbridge.ErrCoroutineCancelled))

	//output:
	//true
}
