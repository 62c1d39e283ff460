package peer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/btcpeer/btcwire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/ticker"
)

// PingManagerConfig is a structure containing various parameters that govern
// how the PingManager behaves.
type PingManagerConfig struct {
	// NewNonce is a closure that returns the nonce of the next ping. The
	// pong answering it must echo the same nonce.
	NewNonce func() uint64

	// Ticker fires on every ping interval.
	Ticker ticker.Ticker

	// TimeoutDuration is the Duration we wait before declaring a ping
	// attempt failed.
	TimeoutDuration time.Duration

	// SendPing is a closure that is responsible for sending the Ping
	// message out to our peer.
	SendPing func(ping *btcwire.MsgPing)

	// OnPongFailure is a closure that is responsible for executing the
	// logic when a Pong message is either late or does not match our
	// expectations for that Pong.
	OnPongFailure func(failureReason error, timeWaitedForPong time.Duration,
		lastKnownRTT time.Duration)
}

// PingManager is a structure that is designed to manage the internal state
// of the ping pong lifecycle with the remote peer. We assume there is only one
// ping outstanding at once.
//
// NOTE: This structure MUST be initialized with NewPingManager.
type PingManager struct {
	cfg *PingManagerConfig

	// pingTime is a rough estimate of the RTT (round-trip-time) between us
	// and the connected peer.
	pingTime atomic.Pointer[time.Duration]

	// pingLastSend is the time when we sent our last ping message. It is
	// only touched by pingHandler.
	pingLastSend *time.Time

	// outstandingNonce is the nonce of the ping awaiting a pong, if any.
	outstandingNonce fn.Option[uint64]

	// pingTimeout is a Timer that will fire when we want to time out a
	// ping.
	pingTimeout *time.Timer

	// pongChan is the channel on which the pingManager will write Pong
	// messages it is evaluating.
	pongChan chan *btcwire.MsgPong

	started sync.Once
	stopped sync.Once

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewPingManager constructs a pingManager in a valid state. It must be started
// before it does anything useful, though.
func NewPingManager(cfg *PingManagerConfig) *PingManager {
	return &PingManager{
		cfg:              cfg,
		outstandingNonce: fn.None[uint64](),
		pongChan:         make(chan *btcwire.MsgPong, 1),
		quit:             make(chan struct{}),
	}
}

// Start launches the primary goroutine that is owned by the pingManager.
func (m *PingManager) Start() error {
	m.started.Do(func() {
		m.pingTimeout = time.NewTimer(0)
		m.cfg.Ticker.Resume()

		m.wg.Add(1)
		go m.pingHandler()
	})

	return nil
}

// getLastRTT safely retrieves the last known RTT, returning 0 if none exists.
func (m *PingManager) getLastRTT() time.Duration {
	rttPtr := m.pingTime.Load()
	if rttPtr == nil {
		return 0
	}

	return *rttPtr
}

// pendingPingWait calculates the time waited since the last ping was sent. If
// no ping is outstanding, None is returned.
func (m *PingManager) pendingPingWait() fn.Option[time.Duration] {
	if m.pingLastSend != nil {
		return fn.Some(time.Since(*m.pingLastSend))
	}

	return fn.None[time.Duration]()
}

// pingHandler is the main goroutine responsible for enforcing the ping/pong
// protocol.
func (m *PingManager) pingHandler() {
	defer m.wg.Done()
	defer m.pingTimeout.Stop()

	// Ensure that the pingTimeout channel is empty.
	if !m.pingTimeout.Stop() {
		<-m.pingTimeout.C
	}

	for {
		select {
		case <-m.cfg.Ticker.Ticks():
			// A new ping cycle began while a ping is still
			// outstanding, which implies a timeout.
			if m.outstandingNonce.IsSome() {
				timeWaited := m.pendingPingWait().UnwrapOr(
					m.cfg.TimeoutDuration,
				)

				m.cfg.OnPongFailure(
					errors.New("ping timed out by next "+
						"interval"),
					timeWaited, m.getLastRTT(),
				)

				m.resetPingState()
			}

			ping := &btcwire.MsgPing{Nonce: m.cfg.NewNonce()}

			if err := m.setPingState(ping.Nonce); err != nil {
				m.cfg.OnPongFailure(err, 0, 0)
				m.resetPingState()

				continue
			}

			m.cfg.SendPing(ping)

		case <-m.pingTimeout.C:
			timeWaited := m.pendingPingWait().UnwrapOr(
				m.cfg.TimeoutDuration,
			)

			m.cfg.OnPongFailure(
				errors.New("timeout while waiting for pong "+
					"response"),
				timeWaited, m.getLastRTT(),
			)

			m.resetPingState()

		case pong := <-m.pongChan:
			lastPingTime := m.pingLastSend

			// A pong without a ping outstanding is unsolicited,
			// we'll ignore it.
			if lastPingTime == nil {
				log.Debugf("Ignoring unsolicited pong with "+
					"nonce %d", pong.Nonce)

				continue
			}

			actualRTT := time.Since(*lastPingTime)
			expected := m.outstandingNonce.UnwrapOr(0)

			if pong.Nonce != expected {
				e := fmt.Errorf("pong nonce does not match "+
					"ping: expected %d, got %d", expected,
					pong.Nonce)

				m.cfg.OnPongFailure(e, actualRTT, m.getLastRTT())
				m.resetPingState()

				continue
			}

			// Pong is good, update RTT and reset state.
			m.pingTime.Store(&actualRTT)
			m.resetPingState()

		case <-m.quit:
			return
		}
	}
}

// Stop interrupts the goroutines that the PingManager owns.
func (m *PingManager) Stop() {
	m.stopped.Do(func() {
		close(m.quit)
		m.wg.Wait()

		m.cfg.Ticker.Stop()
	})
}

// setPingState is a private method to keep track of all of the fields we need
// to set when we send out a Ping.
func (m *PingManager) setPingState(nonce uint64) error {
	t := time.Now()
	m.pingLastSend = &t
	m.outstandingNonce = fn.Some(nonce)
	if m.pingTimeout.Reset(m.cfg.TimeoutDuration) {
		return fmt.Errorf(
			"impossible: ping timeout reset when already active",
		)
	}

	return nil
}

// resetPingState is a private method that resets all of the bookkeeping that
// is tracking a currently outstanding Ping.
func (m *PingManager) resetPingState() {
	m.pingLastSend = nil
	m.outstandingNonce = fn.None[uint64]()

	if !m.pingTimeout.Stop() {
		select {
		case <-m.pingTimeout.C:
		default:
		}
	}
}

// PingTime reports back the RTT calculated by the pingManager, or None before
// the first pong.
func (m *PingManager) PingTime() fn.Option[time.Duration] {
	return fn.OptionFromPtr(m.pingTime.Load())
}

// ReceivedPong is called to evaluate a Pong message against the expectations
// we have for it. It will cause the PingManager to invoke the supplied
// OnPongFailure function if the Pong argument supplied violates expectations.
func (m *PingManager) ReceivedPong(msg *btcwire.MsgPong) {
	select {
	case m.pongChan <- msg:
	case <-m.quit:
	}
}
