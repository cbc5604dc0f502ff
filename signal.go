package syncbridge

import (
	"sync"
)

// completionSignal delivers one outcome, from the loop, to one blocked
// caller.
type completionSignal[T any] struct {
	done  chan struct{}
	err   error
	value T
	once  sync.Once
}

func newCompletionSignal[T any]() *completionSignal[T] {
	return &completionSignal[T]{done: make(chan struct{})}
}

// settle records the outcome, returning false if already settled.
func (s *completionSignal[T]) settle(value T, err error) (ok bool) {
	s.once.Do(func() {
		s.value, s.err = value, err
		close(s.done)
		ok = true
	})
	return
}

// result must only be called once done is closed.
func (s *completionSignal[T]) result() (T, error) {
	return s.value, s.err
}
