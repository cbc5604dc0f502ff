//go:build unix

package syncbridge

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBridge_NotifyInterrupt(t *testing.T) {
	b := newTestBridge(t)
	stop := b.NotifyInterrupt(context.Background(), syscall.SIGUSR1)
	defer stop()

	result := startSuspended(t, b)
	assert.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrCoroutineCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("signal did not interrupt the operation")
	}
}
