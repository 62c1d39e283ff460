package signal

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitShutdown(t *testing.T, c *Interceptor) {
	t.Helper()

	select {
	case <-c.ShutdownChannel():
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown channel not closed")
	}
}

// TestRequestShutdown asserts a shutdown request closes the shutdown channel
// and that later requests don't block.
func TestRequestShutdown(t *testing.T) {
	t.Parallel()

	c := newInterceptor()
	require.True(t, c.Alive())

	c.RequestShutdown()
	waitShutdown(t, &c)
	require.False(t, c.Alive())

	c.RequestShutdown()
}

// TestInterruptSignal asserts a caught signal shuts the interceptor down.
func TestInterruptSignal(t *testing.T) {
	t.Parallel()

	c := newInterceptor()
	c.interruptChannel <- os.Signal(syscall.SIGTERM)

	waitShutdown(t, &c)
}

// TestInterceptOnce asserts only one process wide interceptor can be started.
func TestInterceptOnce(t *testing.T) {
	c, err := Intercept()
	require.NoError(t, err)
	defer c.RequestShutdown()

	_, err = Intercept()
	require.Error(t, err)
}
