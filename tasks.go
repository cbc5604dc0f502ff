// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package syncbridge

import (
	"fmt"
	"io"
	"reflect"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/joeycumines/go-syncbridge/eventloop"
)

// TaskState is the completion state of a [TrackedTask].
type TaskState int

const (
	// TaskPending indicates the operation has not settled.
	TaskPending TaskState = iota
	// TaskCompleted indicates the operation returned successfully.
	TaskCompleted
	// TaskFailed indicates the operation returned an error, or panicked.
	TaskFailed
	// TaskCancelled indicates the operation was forcibly cancelled.
	TaskCancelled
)

// String returns a human-readable representation of the state.
func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// TrackedTask is an operation scheduled on a loop, visible to a
// [TaskRegistry] from before it starts, until its outcome is delivered.
type TrackedTask struct {
	started time.Time
	co      *eventloop.Coroutine
	fn      uintptr
	id      uint64
}

func newTrackedTask(co *eventloop.Coroutine, op any) *TrackedTask {
	t := &TrackedTask{
		started: time.Now(),
		co:      co,
	}
	if v := reflect.ValueOf(op); v.Kind() == reflect.Func && !v.IsNil() {
		t.fn = v.Pointer()
	}
	return t
}

// ID returns the identifier assigned by [TaskRegistry.Track].
func (t *TrackedTask) ID() uint64 { return t.id }

// Coroutine returns the coroutine running the operation.
func (t *TrackedTask) Coroutine() *eventloop.Coroutine { return t.co }

// Loop returns the loop the operation runs on.
func (t *TrackedTask) Loop() *eventloop.Loop { return t.co.Loop() }

// Started returns the time the task was created.
func (t *TrackedTask) Started() time.Time { return t.started }

// Done returns a channel that is closed once the operation settles.
func (t *TrackedTask) Done() <-chan struct{} { return t.co.Done() }

// Err returns the operation's outcome, once settled.
func (t *TrackedTask) Err() error { return t.co.Err() }

// Cancel requests cooperative cancellation of the operation, via its loop,
// without waiting. It returns false if the operation already settled.
func (t *TrackedTask) Cancel() bool { return t.co.Cancel() }

// State returns the task's current completion state.
func (t *TrackedTask) State() TaskState {
	switch t.co.State() {
	case eventloop.CoroutineCompleted:
		return TaskCompleted
	case eventloop.CoroutineFailed:
		return TaskFailed
	case eventloop.CoroutineCancelled:
		return TaskCancelled
	default:
		return TaskPending
	}
}

// Func returns the name, file, and line of the operation's function.
func (t *TrackedTask) Func() (name, file string, line int) {
	if f := runtime.FuncForPC(t.fn); f != nil {
		name = f.Name()
		file, line = f.FileLine(f.Entry())
	}
	return
}

// TaskInfo describes a tracked task, for diagnostics.
type TaskInfo struct {
	Started     time.Time
	Task        *TrackedTask
	Func        string
	File        string
	ID          uint64
	CoroutineID uint64
	LoopID      uint64
	Line        int
	State       TaskState
}

// Info snapshots the task.
func (t *TrackedTask) Info() TaskInfo {
	name, file, line := t.Func()
	return TaskInfo{
		Started:     t.started,
		Task:        t,
		Func:        name,
		File:        file,
		ID:          t.id,
		CoroutineID: t.co.ID(),
		LoopID:      t.co.Loop().ID(),
		Line:        line,
		State:       t.State(),
	}
}

// TaskRegistry tracks every in-flight operation, for diagnostics and bulk
// cancellation. It is safe for concurrent use.
type TaskRegistry struct {
	tasks  map[uint64]*TrackedTask
	mu     sync.Mutex
	nextID uint64
}

// NewTaskRegistry initialises an empty registry.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{tasks: make(map[uint64]*TrackedTask)}
}

// Track registers task, assigning and returning its ID. Tracking a task
// twice panics.
func (x *TaskRegistry) Track(task *TrackedTask) uint64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	if task.id != 0 {
		panic(fmt.Errorf(`syncbridge: task %d tracked twice`, task.id))
	}
	x.nextID++
	task.id = x.nextID
	x.tasks[task.id] = task
	return task.id
}

// Untrack removes a task. Removing a task that is not tracked panics, as it
// indicates the registry is corrupt.
func (x *TaskRegistry) Untrack(id uint64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.tasks[id]; !ok {
		panic(fmt.Errorf(`syncbridge: task %d untracked but not tracked`, id))
	}
	delete(x.tasks, id)
}

// Len returns the number of tracked tasks.
func (x *TaskRegistry) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.tasks)
}

func (x *TaskRegistry) snapshot() []*TrackedTask {
	x.mu.Lock()
	tasks := make([]*TrackedTask, 0, len(x.tasks))
	for _, t := range x.tasks {
		tasks = append(tasks, t)
	}
	x.mu.Unlock()
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].id < tasks[j].id })
	return tasks
}

// ListActive describes every tracked task, ordered by ID.
func (x *TaskRegistry) ListActive() []TaskInfo {
	tasks := x.snapshot()
	infos := make([]TaskInfo, len(tasks))
	for i, t := range tasks {
		infos[i] = t.Info()
	}
	return infos
}

// CancelAll requests cancellation of every tracked task, without waiting,
// returning how many requests were made. Waiters of each observe an error
// matching [ErrCoroutineCancelled]. Tasks that already settled are skipped.
func (x *TaskRegistry) CancelAll() int {
	var n int
	for _, t := range x.snapshot() {
		if t.Cancel() {
			n++
		}
	}
	return n
}

// FormatTasks writes one line per task, e.g. as returned by
// [TaskRegistry.ListActive].
func FormatTasks(w io.Writer, infos []TaskInfo) error {
	now := time.Now()
	for _, info := range infos {
		if _, err := fmt.Fprintf(w, "task %d: %s (%s:%d) state=%s loop=%d coroutine=%d age=%s\n",
			info.ID,
			info.Func,
			info.File,
			info.Line,
			info.State,
			info.LoopID,
			info.CoroutineID,
			now.Sub(info.Started).Round(time.Millisecond),
		); err != nil {
			return err
		}
	}
	return nil
}
