package eventloop

import (
	"runtime"
	"sync"
)

// goroutineLoops maps the ID of each loop goroutine, and of each coroutine
// currently holding its loop, to that loop.
var goroutineLoops sync.Map

// CurrentLoop returns the loop the calling goroutine is running, either as
// the loop goroutine, or as a coroutine holding it. Blocking on that loop
// from here would deadlock.
func CurrentLoop() *Loop {
	if v, ok := goroutineLoops.Load(GoroutineID()); ok {
		return v.(*Loop)
	}
	return nil
}

// GoroutineID returns the current goroutine's ID, parsed from the header of
// runtime.Stack, i.e. "goroutine 123 [running]:".
func GoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
