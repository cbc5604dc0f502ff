package syncbridge

import (
	"sync"

	"github.com/joeycumines/go-syncbridge/eventloop"
)

var policyMu sync.Mutex

// WithAlternateStrategy installs [eventloop.WakeChannel] as the process-wide
// default wake strategy, calls body, then restores the previous default, on
// every exit path, including panics. Calls are serialised.
//
// Loops created by body use the alternate strategy, while the default
// observed after the call is identical to that before it.
func WithAlternateStrategy(body func() error) error {
	policyMu.Lock()
	defer policyMu.Unlock()

	prev := eventloop.SetDefaultWakeStrategy(eventloop.WakeChannel)
	defer eventloop.SetDefaultWakeStrategy(prev)

	return body()
}
