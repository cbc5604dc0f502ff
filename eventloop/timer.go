package eventloop

import (
	"sync/atomic"
	"time"
)

// TimerID identifies a timer scheduled via [Loop.ScheduleTimer].
type TimerID uint64

// timer represents a scheduled task
type timer struct {
	when  time.Time
	fn    func()
	id    TimerID
	seq   uint64 // FIFO among equal deadlines
	index int    // position in the heap, -1 if not in it
	// set by whichever of firing or cancellation happens first
	stopped atomic.Bool
}

// timerHeap is a min-heap of timers, accessed only by the loop goroutine.
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	x.index = -1
	*h = old[:n-1]
	return x
}
