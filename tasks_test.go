package syncbridge

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/joeycumines/go-syncbridge/eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoopForTest(t *testing.T) *eventloop.Loop {
	t.Helper()
	loop, err := eventloop.New()
	require.NoError(t, err)
	go func() { _ = loop.Run(context.Background()) }()
	<-loop.Running()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = loop.Shutdown(ctx)
	})
	return loop
}

func exampleOperation(ctx context.Context) error { return nil }

func TestTaskRegistry_trackUntrack(t *testing.T) {
	loop := newLoopForTest(t)
	registry := NewTaskRegistry()

	co := loop.NewCoroutine(context.Background(), exampleOperation)
	task := newTrackedTask(co, exampleOperation)
	id := registry.Track(task)
	assert.Equal(t, uint64(1), id)
	assert.Equal(t, id, task.ID())
	assert.Equal(t, 1, registry.Len())

	assert.Panics(t, func() { registry.Track(task) })

	other := newTrackedTask(loop.NewCoroutine(context.Background(), exampleOperation), exampleOperation)
	assert.Equal(t, uint64(2), registry.Track(other))

	infos := registry.ListActive()
	require.Len(t, infos, 2)
	assert.Equal(t, uint64(1), infos[0].ID)
	assert.Equal(t, uint64(2), infos[1].ID)
	assert.True(t, strings.HasSuffix(infos[0].Func, `.exampleOperation`), infos[0].Func)
	assert.True(t, strings.HasSuffix(infos[0].File, `tasks_test.go`), infos[0].File)
	assert.Positive(t, infos[0].Line)
	assert.Equal(t, TaskPending, infos[0].State)
	assert.Equal(t, loop.ID(), infos[0].LoopID)
	assert.Equal(t, co.ID(), infos[0].CoroutineID)
	assert.Same(t, task, infos[0].Task)

	registry.Untrack(id)
	assert.Equal(t, 1, registry.Len())
	assert.Panics(t, func() { registry.Untrack(id) })
	registry.Untrack(other.ID())
	assert.Zero(t, registry.Len())
}

func TestTaskRegistry_CancelAll(t *testing.T) {
	loop := newLoopForTest(t)
	registry := NewTaskRegistry()

	finished := loop.NewCoroutine(context.Background(), exampleOperation)
	registry.Track(newTrackedTask(finished, exampleOperation))
	require.NoError(t, finished.Start())
	<-finished.Done()

	sleeping := loop.NewCoroutine(context.Background(), func(ctx context.Context) error {
		return eventloop.Sleep(ctx, time.Hour)
	})
	sleepingTask := newTrackedTask(sleeping, nil)
	registry.Track(sleepingTask)
	require.NoError(t, sleeping.Start())

	assert.Equal(t, 1, registry.CancelAll())
	<-sleeping.Done()
	assert.Equal(t, TaskCancelled, sleepingTask.State())
	assert.ErrorIs(t, sleepingTask.Err(), ErrCoroutineCancelled)

	name, file, line := sleepingTask.Func()
	assert.Empty(t, name)
	assert.Empty(t, file)
	assert.Zero(t, line)

	// still tracked, until untracked
	assert.Equal(t, 2, registry.Len())
	assert.Zero(t, registry.CancelAll())
}

func TestTaskState_String(t *testing.T) {
	for state, want := range map[TaskState]string{
		TaskPending:   `pending`,
		TaskCompleted: `completed`,
		TaskFailed:    `failed`,
		TaskCancelled: `cancelled`,
		TaskState(42): `unknown`,
	} {
		assert.Equal(t, want, state.String())
	}
}

func TestFormatTasks(t *testing.T) {
	started := time.Now().Add(-1500 * time.Millisecond)
	var buf bytes.Buffer
	require.NoError(t, FormatTasks(&buf, []TaskInfo{
		{
			Started:     started,
			Func:        `example.com/pkg.op`,
			File:        `/src/op.go`,
			ID:          3,
			CoroutineID: 9,
			LoopID:      2,
			Line:        17,
			State:       TaskFailed,
		},
		{
			Started: started,
			ID:      4,
			State:   TaskPending,
		},
	}))
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], `task 3: example.com/pkg.op (/src/op.go:17) state=failed loop=2 coroutine=9 age=`), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], `task 4:  (:0) state=pending loop=0 coroutine=0 age=`), lines[1])
}
