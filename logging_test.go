package syncbridge

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/go-syncbridge/config"
	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for concurrent use by loggers.
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (x *syncBuffer) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.Write(p)
}

func (x *syncBuffer) String() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.String()
}

func TestNewJSONLogger(t *testing.T) {
	var buf syncBuffer
	logger := NewJSONLogger(&buf, logiface.LevelWarning)
	logger.Info().Log(`hidden`)
	logger.Warning().Str(`key`, `value`).Log(`shown`)

	out := buf.String()
	assert.NotContains(t, out, `hidden`)
	assert.Contains(t, out, `"key":"value"`)
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestBridge_timeoutWarningRateLimited(t *testing.T) {
	var buf syncBuffer
	b := newTestBridge(t, WithLogger(NewJSONLogger(&buf, logiface.LevelWarning)))

	op := sleepy(time.Second)
	for range 2 {
		_, err := RunSync(context.Background(), b, op, 10*time.Millisecond)
		require.ErrorIs(t, err, ErrTimeout)
	}

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, `timed out waiting for operation`), out)
	assert.Contains(t, out, `sleepy`)
}

func TestBridge_debugLogging(t *testing.T) {
	var buf syncBuffer
	b, err := New(
		WithSettings(config.NewStore(config.Settings{})),
		WithLogger(NewJSONLogger(&buf, logiface.LevelDebug)),
	)
	require.NoError(t, err)

	_, err = RunSync(context.Background(), b, sleepy(50*time.Millisecond), 5*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), `discarded outcome of abandoned operation`)
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, b.Close(context.Background()))
	out := buf.String()
	assert.Contains(t, out, `syncbridge: loop created`)
	assert.Contains(t, out, `"wake_strategy":`)
}
