package peer

import (
	"testing"
	"time"

	"github.com/lightningnetwork/btcpeer/btcwire"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"
)

// pingHarness wires a PingManager to channels so tests can observe the pings
// it sends and the failures it reports.
type pingHarness struct {
	mgr      *PingManager
	ticker   *ticker.Force
	pings    chan *btcwire.MsgPing
	failures chan error
}

func newPingHarness(t *testing.T, timeout time.Duration) *pingHarness {
	t.Helper()

	h := &pingHarness{
		ticker:   ticker.NewForce(time.Hour),
		pings:    make(chan *btcwire.MsgPing, 4),
		failures: make(chan error, 4),
	}

	var nonce uint64
	h.mgr = NewPingManager(&PingManagerConfig{
		NewNonce: func() uint64 {
			nonce++
			return nonce
		},
		Ticker:          h.ticker,
		TimeoutDuration: timeout,
		SendPing: func(ping *btcwire.MsgPing) {
			h.pings <- ping
		},
		OnPongFailure: func(err error, _, _ time.Duration) {
			h.failures <- err
		},
	})
	require.NoError(t, h.mgr.Start())
	t.Cleanup(h.mgr.Stop)

	return h
}

// tick forces a ping cycle and returns the ping that was sent.
func (h *pingHarness) tick(t *testing.T) *btcwire.MsgPing {
	t.Helper()

	select {
	case h.ticker.Force <- time.Now():
	case <-time.After(time.Second):
		t.Fatal("ping manager did not take the tick")
	}

	select {
	case ping := <-h.pings:
		return ping
	case <-time.After(time.Second):
		t.Fatal("no ping sent")
		return nil
	}
}

func (h *pingHarness) expectFailure(t *testing.T) error {
	t.Helper()

	select {
	case err := <-h.failures:
		return err
	case <-time.After(time.Second):
		t.Fatal("expected pong failure")
		return nil
	}
}

func (h *pingHarness) expectNoFailure(t *testing.T) {
	t.Helper()

	select {
	case err := <-h.failures:
		t.Fatalf("unexpected pong failure: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

// TestPingManagerMatchingPong asserts a pong echoing the outstanding nonce
// records a round trip time.
func TestPingManagerMatchingPong(t *testing.T) {
	t.Parallel()

	h := newPingHarness(t, time.Minute)
	require.True(t, h.mgr.PingTime().IsNone())

	ping := h.tick(t)
	h.mgr.ReceivedPong(&btcwire.MsgPong{Nonce: ping.Nonce})

	require.Eventually(t, func() bool {
		return h.mgr.PingTime().IsSome()
	}, time.Second, 10*time.Millisecond)
	h.expectNoFailure(t)

	// The next cycle draws a fresh nonce.
	next := h.tick(t)
	require.NotEqual(t, ping.Nonce, next.Nonce)
}

// TestPingManagerWrongNonce asserts a pong with a foreign nonce is a failure.
func TestPingManagerWrongNonce(t *testing.T) {
	t.Parallel()

	h := newPingHarness(t, time.Minute)

	ping := h.tick(t)
	h.mgr.ReceivedPong(&btcwire.MsgPong{Nonce: ping.Nonce + 1})

	err := h.expectFailure(t)
	require.ErrorContains(t, err, "does not match")
	require.True(t, h.mgr.PingTime().IsNone())
}

// TestPingManagerTimeout asserts an unanswered ping fails after the timeout.
func TestPingManagerTimeout(t *testing.T) {
	t.Parallel()

	h := newPingHarness(t, 50*time.Millisecond)

	h.tick(t)

	err := h.expectFailure(t)
	require.ErrorContains(t, err, "timeout")
}

// TestPingManagerNextInterval asserts a ping still outstanding when the next
// cycle begins is a failure.
func TestPingManagerNextInterval(t *testing.T) {
	t.Parallel()

	h := newPingHarness(t, time.Hour)

	h.tick(t)
	h.tick(t)

	err := h.expectFailure(t)
	require.ErrorContains(t, err, "next interval")
}

// TestPingManagerUnsolicitedPong asserts a pong without a ping is ignored.
func TestPingManagerUnsolicitedPong(t *testing.T) {
	t.Parallel()

	h := newPingHarness(t, time.Minute)

	h.mgr.ReceivedPong(&btcwire.MsgPong{Nonce: 42})

	h.expectNoFailure(t)
	require.True(t, h.mgr.PingTime().IsNone())
}
