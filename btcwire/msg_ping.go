package btcwire

import (
	"bytes"
	"io"
)

// MsgPing is a keepalive probe. The receiver echoes the nonce in a MsgPong.
type MsgPing struct {
	// Nonce identifies the probe.
	Nonce uint64
}

// A compile time check to ensure MsgPing implements the Payload interface.
var _ Payload = (*MsgPing)(nil)

// Command returns CmdPing.
//
// This is part of the Payload interface.
func (m *MsgPing) Command() Command {
	return CmdPing
}

// Encode writes the little endian nonce.
//
// This is part of the Payload interface.
func (m *MsgPing) Encode(w *bytes.Buffer) error {
	writeUint64(w, m.Nonce)
	return nil
}

// Decode reads the little endian nonce.
//
// This is part of the Payload interface.
func (m *MsgPing) Decode(r io.Reader) error {
	nonce, err := readUint64(r)
	if err != nil {
		return err
	}
	m.Nonce = nonce

	return nil
}

func (m *MsgPing) payload() {}

// MsgPong answers a MsgPing with the same nonce.
type MsgPong struct {
	// Nonce is copied from the ping being answered.
	Nonce uint64
}

// A compile time check to ensure MsgPong implements the Payload interface.
var _ Payload = (*MsgPong)(nil)

// Command returns CmdPong.
//
// This is part of the Payload interface.
func (m *MsgPong) Command() Command {
	return CmdPong
}

// Encode writes the little endian nonce.
//
// This is part of the Payload interface.
func (m *MsgPong) Encode(w *bytes.Buffer) error {
	writeUint64(w, m.Nonce)
	return nil
}

// Decode reads the little endian nonce.
//
// This is part of the Payload interface.
func (m *MsgPong) Decode(r io.Reader) error {
	nonce, err := readUint64(r)
	if err != nil {
		return err
	}
	m.Nonce = nonce

	return nil
}

func (m *MsgPong) payload() {}
