package peer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/lightningnetwork/btcpeer/btcwire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// HandshakeState is the progress of the version/verack exchange.
type HandshakeState uint8

const (
	// StateConnected is the state of a fresh connection before our
	// version has been sent.
	StateConnected HandshakeState = iota

	// StateVersionSent means our version is on the wire and we wait for
	// the remote version.
	StateVersionSent

	// StateVersionReceived means the remote version arrived and was
	// acknowledged. We wait for the remote verack.
	StateVersionReceived

	// StateEstablished means both sides acknowledged each other. Any
	// message may now be exchanged.
	StateEstablished
)

// String returns a human readable name for the state.
func (s HandshakeState) String() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StateVersionSent:
		return "VersionSent"
	case StateVersionReceived:
		return "VersionReceived"
	case StateEstablished:
		return "Established"
	default:
		return fmt.Sprintf("HandshakeState(%d)", uint8(s))
	}
}

// handshakeMachine is the pure state machine of the handshake. It performs no
// I/O: callers feed it received messages and write whatever reply it returns.
// Before Established only version and verack are allowed, each exactly once
// and in that order. Anything else fails the handshake.
type handshakeMachine struct {
	state HandshakeState

	localNonce         uint64
	minProtocolVersion uint32

	remoteVersion fn.Option[*btcwire.MsgVersion]
}

// newHandshakeMachine returns a machine in StateConnected.
func newHandshakeMachine(localNonce uint64,
	minProtocolVersion uint32) *handshakeMachine {

	return &handshakeMachine{
		state:              StateConnected,
		localNonce:         localNonce,
		minProtocolVersion: minProtocolVersion,
		remoteVersion:      fn.None[*btcwire.MsgVersion](),
	}
}

// versionSent records that our version message has been written.
func (h *handshakeMachine) versionSent() error {
	if h.state != StateConnected {
		return fmt.Errorf("version already sent in state %v", h.state)
	}
	h.state = StateVersionSent

	return nil
}

// receive advances the machine with a message from the remote peer. It
// returns the payload that must be written in reply, if any.
func (h *handshakeMachine) receive(
	p btcwire.Payload) (fn.Option[btcwire.Payload], error) {

	none := fn.None[btcwire.Payload]()

	switch msg := p.(type) {
	case *btcwire.MsgVersion:
		if h.state != StateVersionSent {
			return none, fmt.Errorf("%w: version in state %v",
				ErrUnexpectedMessage, h.state)
		}

		if msg.Nonce == h.localNonce {
			return none, ErrSelfConnection
		}

		if msg.ProtocolVersion < h.minProtocolVersion {
			return none, fmt.Errorf("%w: version %d, minimum %d",
				ErrObsoletePeer, msg.ProtocolVersion,
				h.minProtocolVersion)
		}

		h.remoteVersion = fn.Some(msg)
		h.state = StateVersionReceived

		return fn.Some[btcwire.Payload](&btcwire.MsgVerack{}), nil

	case *btcwire.MsgVerack:
		if h.state != StateVersionReceived {
			return none, fmt.Errorf("%w: verack in state %v",
				ErrUnexpectedMessage, h.state)
		}

		h.state = StateEstablished

		return none, nil

	default:
		return none, fmt.Errorf("%w: %v in state %v",
			ErrUnexpectedMessage, p.Command(), h.state)
	}
}

// established reports whether the handshake completed.
func (h *handshakeMachine) established() bool {
	return h.state == StateEstablished
}

// handshakeResult is what a completed handshake hands to the connection.
type handshakeResult struct {
	remoteVersion *btcwire.MsgVersion
	bytesRead     int
	bytesWritten  int
}

// runHandshake drives the handshake machine over conn. Our version is written
// immediately, then replies are written directly to the socket as messages
// arrive. The exchange is bounded by cfg.HandshakeTimeout and by ctx; either
// expiring closes the exchange with ErrHandshakeTimeout or the context error.
// The socket deadline is cleared again on success.
func runHandshake(ctx context.Context, conn net.Conn, cfg *Config,
	localVersion *btcwire.MsgVersion) (*handshakeResult, error) {

	deadline := time.Now().Add(cfg.HandshakeTimeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	// Cancelling ctx pulls the deadline into the past so that a blocked
	// read or write returns immediately.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	machine := newHandshakeMachine(
		localVersion.Nonce, cfg.MinProtocolVersion,
	)
	result := &handshakeResult{}

	mapErr := func(err error) error {
		if ctx.Err() != nil {
			return fmt.Errorf("handshake aborted in state %v: %w",
				machine.state, ctx.Err())
		}

		if errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("%w after %v in state %v",
				ErrHandshakeTimeout, cfg.HandshakeTimeout,
				machine.state)
		}

		return err
	}

	write := func(p btcwire.Payload) error {
		n, err := btcwire.WriteMessage(conn, cfg.Net, p)
		result.bytesWritten += n
		if err != nil {
			return mapErr(err)
		}

		log.Debugf("Sent %v to %v", p.Command(), conn.RemoteAddr())

		return nil
	}

	if err := write(localVersion); err != nil {
		return nil, err
	}
	if err := machine.versionSent(); err != nil {
		return nil, err
	}

	for !machine.established() {
		msg, n, err := btcwire.ReadMessage(conn, cfg.Net)
		result.bytesRead += n
		if err != nil {
			return nil, mapErr(err)
		}

		log.Debugf("Received %v from %v during handshake", msg,
			conn.RemoteAddr())

		reply, err := machine.receive(msg.Payload())
		if err != nil {
			return nil, err
		}

		var writeErr error
		reply.WhenSome(func(p btcwire.Payload) {
			writeErr = write(p)
		})
		if writeErr != nil {
			return nil, writeErr
		}
	}

	// A cancellation racing with the final message still aborts.
	if !stop() {
		return nil, mapErr(ctx.Err())
	}

	// The handshake is done, so the connection's own read and write
	// deadlines take over from here.
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, err
	}

	result.remoteVersion = machine.remoteVersion.UnsafeFromSome()

	return result, nil
}
