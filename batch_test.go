package syncbridge

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/go-syncbridge/config"
	"github.com/joeycumines/go-syncbridge/eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTooMany = errors.New(`too many operations in flight`)

// countingOps returns n operations that each fail if more than limit are
// running at once. They interleave via a single yield.
func countingOps(n, limit int) []Operation[int] {
	var running int
	ops := make([]Operation[int], n)
	for i := range ops {
		ops[i] = func(ctx context.Context) (int, error) {
			running++
			if err := eventloop.Yield(ctx); err != nil {
				return 0, err
			}
			if running > limit {
				return 0, errTooMany
			}
			running--
			return 1, nil
		}
	}
	return ops
}

// concurrencyOps returns n operations that record the maximum observed in
// flight.
func concurrencyOps(n int, d time.Duration, peak *int) []Operation[int] {
	var running int
	ops := make([]Operation[int], n)
	for i := range ops {
		ops[i] = func(ctx context.Context) (int, error) {
			running++
			if running > *peak {
				*peak = running
			}
			defer func() { running-- }()
			if err := eventloop.Sleep(ctx, d); err != nil {
				return 0, err
			}
			return i, nil
		}
	}
	return ops
}

func sum(outcomes []Outcome[int]) (total int) {
	for _, o := range outcomes {
		total += o.Value
	}
	return
}

func TestRunBatched_throttled(t *testing.T) {
	b := newTestBridge(t)

	t.Run(`within bound`, func(t *testing.T) {
		outcomes, err := RunBatched(context.Background(), b, countingOps(32, 4), WithBatchSize(4))
		require.NoError(t, err)
		require.Len(t, outcomes, 32)
		assert.Equal(t, 32, sum(outcomes))
		for _, o := range outcomes {
			assert.True(t, o.Done)
		}
	})

	t.Run(`exceeding bound`, func(t *testing.T) {
		outcomes, err := RunBatched(context.Background(), b, countingOps(32, 4), WithBatchSize(5), WithReturnErrors(true))
		require.NoError(t, err)
		require.Len(t, outcomes, 32)
		assert.ErrorIs(t, FirstError(outcomes), errTooMany)
	})

	t.Run(`exceeding bound stops`, func(t *testing.T) {
		outcomes, err := RunBatched(context.Background(), b, countingOps(32, 4), WithBatchSize(5))
		require.ErrorIs(t, err, errTooMany)
		require.Len(t, outcomes, 32)
	})

	t.Run(`unbounded`, func(t *testing.T) {
		_, err := RunBatched(context.Background(), b, countingOps(32, 4), WithBatchSize(-1))
		assert.ErrorIs(t, err, errTooMany)
	})
}

func TestRunBatched_defaultBatchSize(t *testing.T) {
	store := config.NewStore(config.Settings{GatherBatchSize: config.Int(5)})
	b := newTestBridge(t, WithSettings(store))

	outcomes, err := RunBatched(context.Background(), b, countingOps(32, 4), WithReturnErrors(true))
	require.NoError(t, err)
	assert.ErrorIs(t, FirstError(outcomes), errTooMany)

	// explicit wins
	outcomes, err = RunBatched(context.Background(), b, countingOps(32, 4), WithBatchSize(4))
	require.NoError(t, err)
	assert.Equal(t, 32, sum(outcomes))

	store.Update(func(s *config.Settings) { s.GatherBatchSize = config.Int(4) })
	outcomes, err = RunBatched(context.Background(), b, countingOps(32, 4))
	require.NoError(t, err)
	assert.Equal(t, 32, sum(outcomes))
}

func TestRunBatched_unboundedByDefault(t *testing.T) {
	b := newTestBridge(t)
	var peak int
	outcomes, err := RunBatched(context.Background(), b, concurrencyOps(32, 10*time.Millisecond, &peak))
	require.NoError(t, err)
	assert.Equal(t, 32, peak)
	for i, o := range outcomes {
		assert.Equal(t, i, o.Value)
	}
}

func TestRunBatched_noFiles(t *testing.T) {
	store := config.NewStore(config.Settings{
		GatherBatchSize:        config.Int(8),
		NoFilesGatherBatchSize: config.Int(2),
	})
	b := newTestBridge(t, WithSettings(store))

	var peak int
	_, err := RunBatched(context.Background(), b, concurrencyOps(10, 5*time.Millisecond, &peak), WithNoFiles(true))
	require.NoError(t, err)
	assert.Equal(t, 2, peak)

	peak = 0
	_, err = RunBatched(context.Background(), b, concurrencyOps(10, 5*time.Millisecond, &peak))
	require.NoError(t, err)
	assert.Equal(t, 8, peak)
}

func TestRunBatched_inputOrder(t *testing.T) {
	b := newTestBridge(t)

	ops := make([]Operation[int], 10)
	for i := range ops {
		ops[i] = func(ctx context.Context) (int, error) {
			// later inputs finish first
			if err := eventloop.Sleep(ctx, time.Duration(len(ops)-i)*2*time.Millisecond); err != nil {
				return 0, err
			}
			return i * i, nil
		}
	}

	outcomes, err := RunBatched(context.Background(), b, ops, WithBatchSize(3))
	require.NoError(t, err)
	require.Len(t, outcomes, len(ops))
	for i, o := range outcomes {
		assert.Equal(t, Outcome[int]{Value: i * i, Done: true}, o)
	}
}

func TestRunBatched_firstErrorStops(t *testing.T) {
	b := newTestBridge(t)

	sentinel := errors.New(`sentinel`)
	var started int
	ops := make([]Operation[int], 5)
	for i := range ops {
		ops[i] = func(ctx context.Context) (int, error) {
			started++
			if i == 1 {
				return 0, sentinel
			}
			return i, nil
		}
	}

	outcomes, err := RunBatched(context.Background(), b, ops, WithBatchSize(1))
	require.ErrorIs(t, err, sentinel)
	require.Len(t, outcomes, 5)
	assert.Equal(t, 2, started)
	assert.Equal(t, Outcome[int]{Done: true}, outcomes[0])
	assert.Equal(t, Outcome[int]{Err: sentinel, Done: true}, outcomes[1])
	for _, o := range outcomes[2:] {
		assert.False(t, o.Done)
	}
}

func TestRunBatched_firstErrorWins(t *testing.T) {
	b := newTestBridge(t)

	first, second := errors.New(`first`), errors.New(`second`)
	ops := []Operation[int]{
		func(ctx context.Context) (int, error) {
			if err := eventloop.Yield(ctx); err != nil {
				return 0, err
			}
			return 0, first
		},
		func(ctx context.Context) (int, error) {
			if err := eventloop.Sleep(ctx, 20*time.Millisecond); err != nil {
				return 0, err
			}
			return 0, second
		},
	}

	outcomes, err := RunBatched(context.Background(), b, ops)
	assert.Same(t, first, err)
	assert.Same(t, second, outcomes[1].Err)
}

func TestRunBatched_progressDespiteCancellation(t *testing.T) {
	b := newTestBridge(t)

	ops := make([]Operation[int], 6)
	for i := range ops {
		ops[i] = func(ctx context.Context) (int, error) {
			if i%2 == 0 {
				return 1, eventloop.Yield(ctx)
			}
			return 0, eventloop.Sleep(ctx, time.Hour)
		}
	}

	var (
		lastDone  atomic.Int64
		lastTotal atomic.Int64
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.Interrupt()
			}
		}
	}()

	outcomes, err := RunBatched(context.Background(), b, ops,
		WithBatchSize(2),
		WithReturnErrors(true),
		WithProgress(func(done, total int) {
			lastDone.Store(int64(done))
			lastTotal.Store(int64(total))
		}),
	)
	cancel()
	require.NoError(t, err)
	assert.Equal(t, int64(6), lastDone.Load())
	assert.Equal(t, int64(6), lastTotal.Load())
	for i, o := range outcomes {
		assert.True(t, o.Done)
		if i%2 == 1 {
			assert.ErrorIs(t, o.Err, ErrCoroutineCancelled)
		} else if o.Err != nil {
			assert.ErrorIs(t, o.Err, ErrCoroutineCancelled)
		}
	}
}

func TestRunBatched_operationTimeout(t *testing.T) {
	b := newTestBridge(t)

	ops := []Operation[int]{
		func(ctx context.Context) (int, error) { return 1, eventloop.Sleep(ctx, time.Millisecond) },
		func(ctx context.Context) (int, error) { return 2, eventloop.Sleep(ctx, time.Hour) },
	}

	outcomes, err := RunBatched(context.Background(), b, ops, WithOperationTimeout(20*time.Millisecond), WithReturnErrors(true))
	require.NoError(t, err)
	assert.NoError(t, outcomes[0].Err)
	assert.ErrorIs(t, outcomes[1].Err, ErrTimeout)
	assert.NotErrorIs(t, outcomes[1].Err, ErrCoroutineCancelled)

	_, err = RunBatched(context.Background(), b, ops, WithOperationTimeout(-time.Second))
	assert.ErrorIs(t, err, ErrInvalidTimeout)
}

func TestRunBatched_contextDone(t *testing.T) {
	b := newTestBridge(t)

	ops := []Operation[int]{
		func(ctx context.Context) (int, error) { return 1, nil },
		func(ctx context.Context) (int, error) { return 2, eventloop.Sleep(ctx, time.Hour) },
		func(ctx context.Context) (int, error) { return 3, nil },
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	outcomes, err := RunBatched(ctx, b, ops, WithBatchSize(2))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, outcomes, 3)
	assert.Equal(t, Outcome[int]{Value: 1, Done: true}, outcomes[0])
	assert.False(t, outcomes[1].Done)
	assert.Equal(t, 1, b.Tasks().Len())
}

func TestRunBatched_empty(t *testing.T) {
	b := newTestBridge(t)
	outcomes, err := RunBatched[int](context.Background(), b, nil)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Empty(t, b.Loops().Loops())
}
