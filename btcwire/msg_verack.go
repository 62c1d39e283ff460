package btcwire

import (
	"bytes"
	"io"
)

// MsgVerack acknowledges a received version message. It has no payload.
type MsgVerack struct{}

// A compile time check to ensure MsgVerack implements the Payload interface.
var _ Payload = (*MsgVerack)(nil)

// Command returns CmdVerack.
//
// This is part of the Payload interface.
func (m *MsgVerack) Command() Command {
	return CmdVerack
}

// Encode writes nothing.
//
// This is part of the Payload interface.
func (m *MsgVerack) Encode(_ *bytes.Buffer) error {
	return nil
}

// Decode reads nothing. Trailing bytes are rejected by DecodePayload.
//
// This is part of the Payload interface.
func (m *MsgVerack) Decode(_ io.Reader) error {
	return nil
}

func (m *MsgVerack) payload() {}
