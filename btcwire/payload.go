package btcwire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/lightningnetwork/btcpeer/hash256"
)

// Payload is the body of a message. The set of payloads is closed, one per
// registered Command, so the interface is sealed by an unexported method.
// New message kinds are added as new cases, never by embedding.
type Payload interface {
	// Command returns the command that frames this payload.
	Command() Command

	// Encode appends the wire form of the payload to w.
	Encode(w *bytes.Buffer) error

	// Decode reads the payload from r.
	Decode(r io.Reader) error

	// payload seals the interface to this package.
	payload()
}

// makeEmptyPayload creates a new empty payload of the proper concrete type for
// the passed command.
func makeEmptyPayload(cmd Command) (Payload, error) {
	var p Payload

	switch cmd {
	case CmdVersion:
		p = &MsgVersion{}
	case CmdVerack:
		p = &MsgVerack{}
	case CmdPing:
		p = &MsgPing{}
	case CmdPong:
		p = &MsgPong{}
	default:
		// Headers are only built for registered commands, so this
		// can't be reached from the wire.
		return nil, &UnknownCommandError{Raw: cmd.Bytes()}
	}

	return p, nil
}

// EncodePayload returns the wire form of a payload.
func EncodePayload(p Payload) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Encode(&buf); err != nil {
		return nil, fmt.Errorf("unable to encode %v: %w",
			p.Command(), err)
	}

	if buf.Len() > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %v encodes to %d bytes",
			ErrPayloadTooLarge, p.Command(), buf.Len())
	}

	// Empty payloads are nil, matching ReadMessage.
	if buf.Len() == 0 {
		return nil, nil
	}

	return buf.Bytes(), nil
}

// DecodePayload validates raw against the checksum declared by the header and
// decodes it into the payload type of the header's command. A checksum
// mismatch means the stream is desynchronized; the bytes are discarded.
func DecodePayload(h Header, raw []byte) (Payload, error) {
	if uint32(len(raw)) != h.PayloadSize() {
		return nil, fmt.Errorf("%w: header declares %d payload bytes, "+
			"got %d", ErrTruncated, h.PayloadSize(), len(raw))
	}

	if !h.CheckPayloadBytes(raw) {
		return nil, &ChecksumMismatchError{
			Command:  h.Command(),
			Expected: h.Checksum(),
			Actual:   hash256.Checksum(raw),
		}
	}

	p, err := makeEmptyPayload(h.Command())
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(raw)
	if err := p.Decode(r); err != nil {
		return nil, fmt.Errorf("unable to decode %v: %w",
			h.Command(), err)
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after %v",
			ErrFieldRange, r.Len(), h.Command())
	}

	return p, nil
}

// readFull wraps io.ReadFull so that a short body is reported as a truncated
// message.
func readFull(r io.Reader, b []byte) error {
	if _, err := io.ReadFull(r, b); err != nil {
		return truncated(err)
	}

	return nil
}

// truncated maps end of input onto ErrTruncated and passes anything else
// through.
func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrTruncated, err)
	}

	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(b[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(b[:]), nil
}

func writeUint32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func writeUint64(w *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.Write(b[:])
}
