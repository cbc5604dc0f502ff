package eventloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChanWaker(t *testing.T) {
	w := newChanWaker()
	defer w.close()

	require.NoError(t, w.wake())
	require.NoError(t, w.wake())

	start := time.Now()
	require.NoError(t, w.wait(-1))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	start = time.Now()
	require.NoError(t, w.wait(20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = w.wake()
	}()
	start = time.Now()
	require.NoError(t, w.wait(5*time.Second))
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestWakeStrategy_String(t *testing.T) {
	assert.Equal(t, `fd`, WakeFD.String())
	assert.Equal(t, `channel`, WakeChannel.String())
	assert.Equal(t, `unknown`, WakeStrategy(7).String())
}
