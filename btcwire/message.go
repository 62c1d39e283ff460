package btcwire

import (
	"bytes"
	"fmt"
	"io"
)

// Message is a framed payload: a header plus the encoded body it describes.
// The header always agrees with the body since both are derived together.
type Message struct {
	header  Header
	payload Payload
	raw     []byte
}

// NewMessage encodes p and frames it for the given network.
func NewMessage(net Network, p Payload) (*Message, error) {
	if !net.IsValid() {
		return nil, fmt.Errorf("%w: %v", ErrUnknownNetwork, net)
	}

	raw, err := EncodePayload(p)
	if err != nil {
		return nil, err
	}

	return &Message{
		header:  HeaderForPayload(net, p.Command(), raw),
		payload: p,
		raw:     raw,
	}, nil
}

// Header returns the header framing the message.
func (m *Message) Header() Header {
	return m.header
}

// Payload returns the decoded body of the message.
func (m *Message) Payload() Payload {
	return m.payload
}

// Command returns the command of the message.
func (m *Message) Command() Command {
	return m.header.Command()
}

// Net returns the network the message was framed for.
func (m *Message) Net() Network {
	return m.header.Net()
}

// RawPayload returns the encoded payload bytes. The slice must not be
// modified.
func (m *Message) RawPayload() []byte {
	return m.raw
}

// Encode returns the complete wire form of the message, header first.
func (m *Message) Encode() []byte {
	header := m.header.Encode()

	b := make([]byte, 0, HeaderSize+len(m.raw))
	b = append(b, header[:]...)

	return append(b, m.raw...)
}

// String returns a short description of the message for logging.
func (m *Message) String() string {
	return m.header.String()
}

// WriteMessage frames p for the given network and writes it to w in a single
// write call. It returns the number of bytes written.
func WriteMessage(w io.Writer, net Network, p Payload) (int, error) {
	msg, err := NewMessage(net, p)
	if err != nil {
		return 0, err
	}

	return w.Write(msg.Encode())
}

// ReadMessage reads one message from r. The header must belong to net and
// declare no more than MaxPayloadSize bytes; the payload is only read once
// both checks pass. It returns the message and the number of bytes consumed.
func ReadMessage(r io.Reader, net Network) (*Message, int, error) {
	header, err := ReadHeader(r)
	if err != nil {
		return nil, 0, err
	}
	n := HeaderSize

	if header.Net() != net {
		return nil, n, fmt.Errorf("%w: expected %v, got %v",
			ErrNetworkMismatch, net, header.Net())
	}

	if header.PayloadSize() > MaxPayloadSize {
		return nil, n, fmt.Errorf("%w: %v declares %d bytes, max %d",
			ErrPayloadTooLarge, header.Command(),
			header.PayloadSize(), MaxPayloadSize)
	}

	// An empty payload stays nil, the same as one built by NewMessage.
	var raw []byte
	if header.PayloadSize() > 0 {
		raw = make([]byte, header.PayloadSize())
		read, err := io.ReadFull(r, raw)
		n += read
		if err != nil {
			return nil, n, truncated(err)
		}
	}

	p, err := DecodePayload(header, raw)
	if err != nil {
		return nil, n, err
	}

	return &Message{
		header:  header,
		payload: p,
		raw:     raw,
	}, n, nil
}

// DecodeMessage parses a complete message held in b.
func DecodeMessage(b []byte, net Network) (*Message, error) {
	r := bytes.NewReader(b)

	msg, _, err := ReadMessage(r, net)
	if err != nil {
		return nil, err
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d bytes after %v", ErrFieldRange,
			r.Len(), msg.Command())
	}

	return msg, nil
}
