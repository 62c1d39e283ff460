package peer

import "errors"

var (
	// ErrHandshakeTimeout is returned when the version handshake doesn't
	// complete within the configured timeout.
	ErrHandshakeTimeout = errors.New("handshake timed out")

	// ErrUnexpectedMessage is returned when the remote peer sends a
	// message the handshake doesn't allow in its current state.
	ErrUnexpectedMessage = errors.New("unexpected message during " +
		"handshake")

	// ErrSelfConnection is returned when the remote version carries our
	// own nonce, meaning we dialed ourselves.
	ErrSelfConnection = errors.New("connected to self")

	// ErrObsoletePeer is returned when the remote peer advertises a
	// protocol version below the configured minimum.
	ErrObsoletePeer = errors.New("peer protocol version is obsolete")

	// ErrSendQueueFull is returned by Send when the outbound queue holds
	// SendQueueSize messages that haven't been written yet.
	ErrSendQueueFull = errors.New("send queue full")

	// ErrNetworkClosed is returned by Send once the connection has been
	// torn down.
	ErrNetworkClosed = errors.New("connection closed")

	// ErrWrongNetwork is returned when a message framed for another
	// network is handed to Send.
	ErrWrongNetwork = errors.New("message framed for another network")

	// ErrPingTimeout is the disconnect cause when the remote peer stops
	// answering pings.
	ErrPingTimeout = errors.New("ping timeout")
)
