package btcwire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"net/netip"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// ProtocolVersion is the protocol version advertised in outgoing
	// version messages.
	ProtocolVersion uint32 = 70015

	// MinVersionPayloadSize is the length of a version payload with an
	// empty user agent and no relay flag.
	MinVersionPayloadSize = 4 + 8 + 8 + 2*netAddressSize + 8 + 1 + 4

	// MaxUserAgentLen is the longest user agent accepted in either
	// direction.
	MaxUserAgentLen = wire.MaxUserAgentLen
)

// MsgVersion is the first message each side sends on a new connection. It
// advertises the sender's protocol version, services and chain height.
type MsgVersion struct {
	// ProtocolVersion is the highest protocol version the sender speaks.
	ProtocolVersion uint32

	// Services is the bitfield of services offered by the sender.
	Services wire.ServiceFlag

	// Timestamp is the sender's clock at the time the message was
	// built. Only whole seconds are carried on the wire.
	Timestamp time.Time

	// RemoteServices is the set of services the sender believes the
	// receiver offers.
	RemoteServices wire.ServiceFlag

	// RemoteAddr is the address of the receiver as seen by the sender.
	RemoteAddr netip.AddrPort

	// LocalServices is the set of services offered at LocalAddr.
	LocalServices wire.ServiceFlag

	// LocalAddr is the address of the sender.
	LocalAddr netip.AddrPort

	// Nonce is a random value used to detect connections to self.
	Nonce uint64

	// UserAgent identifies the sender's software. It must be ASCII.
	UserAgent string

	// StartHeight is the height of the sender's best block.
	StartHeight uint32

	// Relay is the optional BIP37 flag that trails newer version
	// messages. It is only written when set.
	Relay fn.Option[bool]
}

// A compile time check to ensure MsgVersion implements the Payload interface.
var _ Payload = (*MsgVersion)(nil)

// NewMsgVersion returns a version message advertising ProtocolVersion with
// zeroed service bits. An invalid user agent is rejected here rather than at
// encode time.
func NewMsgVersion(timestamp time.Time, remote, local netip.AddrPort,
	nonce uint64, userAgent string, startHeight uint32) (*MsgVersion,
	error) {

	if err := ValidateUserAgent(userAgent); err != nil {
		return nil, err
	}
	if err := validateTimestamp(timestamp); err != nil {
		return nil, err
	}

	return &MsgVersion{
		ProtocolVersion: ProtocolVersion,
		Timestamp:       time.Unix(timestamp.Unix(), 0),
		RemoteAddr:      remote,
		LocalAddr:       local,
		Nonce:           nonce,
		UserAgent:       userAgent,
		StartHeight:     startHeight,
		Relay:           fn.None[bool](),
	}, nil
}

// Command returns CmdVersion.
//
// This is part of the Payload interface.
func (m *MsgVersion) Command() Command {
	return CmdVersion
}

// Encode writes the version fields in wire order.
//
// This is part of the Payload interface.
func (m *MsgVersion) Encode(w *bytes.Buffer) error {
	if err := ValidateUserAgent(m.UserAgent); err != nil {
		return err
	}
	if err := validateTimestamp(m.Timestamp); err != nil {
		return err
	}

	writeUint32(w, m.ProtocolVersion)
	writeUint64(w, uint64(m.Services))
	writeUint64(w, uint64(m.Timestamp.Unix()))
	writeNetAddress(w, m.RemoteServices, m.RemoteAddr)
	writeNetAddress(w, m.LocalServices, m.LocalAddr)
	writeUint64(w, m.Nonce)

	if err := wire.WriteVarString(w, m.ProtocolVersion,
		m.UserAgent); err != nil {

		return err
	}

	writeUint32(w, m.StartHeight)

	m.Relay.WhenSome(func(relay bool) {
		if relay {
			w.WriteByte(1)
		} else {
			w.WriteByte(0)
		}
	})

	return nil
}

// Decode reads the version fields in wire order. The trailing relay flag is
// read when present.
//
// This is part of the Payload interface.
func (m *MsgVersion) Decode(r io.Reader) error {
	var err error

	if m.ProtocolVersion, err = readUint32(r); err != nil {
		return err
	}

	services, err := readUint64(r)
	if err != nil {
		return err
	}
	m.Services = wire.ServiceFlag(services)

	timestamp, err := readUint64(r)
	if err != nil {
		return err
	}
	if timestamp > math.MaxInt64 {
		return fmt.Errorf("%w: timestamp %d", ErrFieldRange, timestamp)
	}
	m.Timestamp = time.Unix(int64(timestamp), 0)

	m.RemoteServices, m.RemoteAddr, err = readNetAddress(r)
	if err != nil {
		return err
	}

	m.LocalServices, m.LocalAddr, err = readNetAddress(r)
	if err != nil {
		return err
	}

	if m.Nonce, err = readUint64(r); err != nil {
		return err
	}

	m.UserAgent, err = readUserAgent(r, m.ProtocolVersion)
	if err != nil {
		return err
	}

	if m.StartHeight, err = readUint32(r); err != nil {
		return err
	}

	m.Relay, err = readRelay(r)

	return err
}

func (m *MsgVersion) payload() {}

// readUserAgent reads a compact size prefixed user agent. The length is
// bounded before any bytes are allocated.
func readUserAgent(r io.Reader, pver uint32) (string, error) {
	length, err := wire.ReadVarInt(r, pver)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return "", truncated(err)

	case err != nil:
		return "", fmt.Errorf("%w: user agent length: %w",
			ErrFieldRange, err)
	}

	if length > MaxUserAgentLen {
		return "", fmt.Errorf("%w: user agent is %d bytes, max %d",
			ErrFieldRange, length, MaxUserAgentLen)
	}

	b := make([]byte, length)
	if err := readFull(r, b); err != nil {
		return "", err
	}

	userAgent := string(b)
	if err := ValidateUserAgent(userAgent); err != nil {
		return "", err
	}

	return userAgent, nil
}

// readRelay reads the optional relay flag. Reaching the end of the payload
// instead means the sender didn't include it.
func readRelay(r io.Reader) (fn.Option[bool], error) {
	var b [1]byte
	_, err := io.ReadFull(r, b[:])
	switch {
	case errors.Is(err, io.EOF):
		return fn.None[bool](), nil

	case err != nil:
		return fn.None[bool](), err
	}

	switch b[0] {
	case 0:
		return fn.Some(false), nil
	case 1:
		return fn.Some(true), nil
	default:
		return fn.None[bool](), fmt.Errorf("%w: relay flag %d",
			ErrFieldRange, b[0])
	}
}

// ValidateUserAgent checks that a user agent fits the wire limit and is
// 7-bit ASCII.
func ValidateUserAgent(userAgent string) error {
	if len(userAgent) > MaxUserAgentLen {
		return fmt.Errorf("%w: user agent is %d bytes, max %d",
			ErrFieldRange, len(userAgent), MaxUserAgentLen)
	}

	for i := 0; i < len(userAgent); i++ {
		if userAgent[i] > 0x7f {
			return fmt.Errorf("%w: byte %#x at offset %d",
				ErrNonASCIIUserAgent, userAgent[i], i)
		}
	}

	return nil
}

// validateTimestamp rejects times before the unix epoch, which includes the
// zero time.Time. The wire field only carries non-negative seconds.
func validateTimestamp(t time.Time) error {
	if t.Unix() < 0 {
		return fmt.Errorf("%w: timestamp %v before unix epoch",
			ErrFieldRange, t)
	}

	return nil
}
