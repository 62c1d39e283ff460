package btcwire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/btcpeer/hash256"
)

const (
	// HeaderSize is the length of the preamble in front of every message:
	// magic (4) + command (12) + payload size (4) + checksum (4).
	HeaderSize = MagicSize + CommandSize + 4 + hash256.ChecksumSize

	// MaxPayloadSize is the largest payload a header may declare. Larger
	// values are rejected before any payload bytes are buffered.
	MaxPayloadSize = wire.MaxMessagePayload
)

// Header is the fixed 24 byte preamble of a message. It is immutable once
// built.
type Header struct {
	net         Network
	command     Command
	payloadSize uint32
	checksum    [hash256.ChecksumSize]byte
}

// NewHeader assembles a header from its components.
func NewHeader(net Network, command Command, payloadSize uint32,
	checksum [hash256.ChecksumSize]byte) Header {

	return Header{
		net:         net,
		command:     command,
		payloadSize: payloadSize,
		checksum:    checksum,
	}
}

// HeaderForPayload builds the header that frames the given encoded payload.
func HeaderForPayload(net Network, command Command, payload []byte) Header {
	return NewHeader(
		net, command, uint32(len(payload)), hash256.Checksum(payload),
	)
}

// DecodeHeader parses the raw bytes of a header. Unknown magic and unknown
// command names are fatal: the stream can't be framed without them.
func DecodeHeader(b [HeaderSize]byte) (Header, error) {
	var (
		magic    [MagicSize]byte
		command  [CommandSize]byte
		checksum [hash256.ChecksumSize]byte
	)
	copy(magic[:], b[0:4])
	copy(command[:], b[4:16])
	size := binary.LittleEndian.Uint32(b[16:20])
	copy(checksum[:], b[20:24])

	net, err := NetworkFromMagic(magic)
	if err != nil {
		return Header{}, err
	}

	cmd, err := CommandFromBytes(command)
	if err != nil {
		return Header{}, err
	}

	return NewHeader(net, cmd, size, checksum), nil
}

// ReadHeader reads and decodes exactly HeaderSize bytes from r. A clean
// io.EOF before the first byte is returned as is so callers can tell an
// orderly close from a truncated header.
func ReadHeader(r io.Reader) (Header, error) {
	var b [HeaderSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Header{}, fmt.Errorf("%w: header: %w",
				ErrTruncated, err)
		}

		return Header{}, err
	}

	return DecodeHeader(b)
}

// Encode returns the wire form of the header. It is the exact inverse of
// DecodeHeader for headers built from known networks and commands.
func (h Header) Encode() [HeaderSize]byte {
	var b [HeaderSize]byte

	magic := h.net.MagicBytes()
	command := h.command.Bytes()

	copy(b[0:4], magic[:])
	copy(b[4:16], command[:])
	binary.LittleEndian.PutUint32(b[16:20], h.payloadSize)
	copy(b[20:24], h.checksum[:])

	return b
}

// Net returns the network the message belongs to.
func (h Header) Net() Network {
	return h.net
}

// Command returns the command of the framed message.
func (h Header) Command() Command {
	return h.command
}

// PayloadSize returns the byte length of the payload following the header.
func (h Header) PayloadSize() uint32 {
	return h.payloadSize
}

// Checksum returns the declared payload checksum.
func (h Header) Checksum() [hash256.ChecksumSize]byte {
	return h.checksum
}

// CheckPayload reports whether the digest of a payload matches the declared
// checksum.
func (h Header) CheckPayload(payloadHash hash256.Hash) bool {
	return payloadHash.Check(h.checksum)
}

// CheckPayloadBytes reports whether payload matches the declared checksum.
func (h Header) CheckPayloadBytes(payload []byte) bool {
	return h.CheckPayload(hash256.Digest(payload))
}

// String returns a short description of the header for logging.
func (h Header) String() string {
	return fmt.Sprintf("%v %v size=%d checksum=%x", h.net, h.command,
		h.payloadSize, h.checksum[:])
}
