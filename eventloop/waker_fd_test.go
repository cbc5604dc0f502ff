//go:build unix

package eventloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollTimeoutMillis(t *testing.T) {
	for _, tc := range []struct {
		in   time.Duration
		want int
	}{
		{-1, -1},
		{0, 0},
		{time.Microsecond, 1},
		{time.Millisecond, 1},
		{1500 * time.Microsecond, 2},
		{time.Second, 1000},
	} {
		assert.Equal(t, tc.want, pollTimeoutMillis(tc.in), tc.in.String())
	}
}

func TestFDWaker_coalescesWakes(t *testing.T) {
	w, err := newFDWaker()
	require.NoError(t, err)
	defer w.close()

	for range 5 {
		require.NoError(t, w.wake())
	}

	start := time.Now()
	require.NoError(t, w.wait(time.Second))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	// drained, so this one times out
	start = time.Now()
	require.NoError(t, w.wait(20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	require.NoError(t, w.close())
	assert.ErrorIs(t, w.wake(), ErrLoopTerminated)
}
