//go:build !unix

package eventloop

// newFDWaker is unavailable without poll(2); callers must select
// [WakeChannel], e.g. via [SetDefaultWakeStrategy].
func newFDWaker() (waker, error) {
	return nil, ErrWakeStrategyUnsupported
}
