package btcwire

import (
	"bytes"
	"fmt"
)

// CommandSize is the fixed length of the ASCII, null padded command name in a
// message header.
const CommandSize = 12

// Command is the unique name of a message kind on the wire. The set of
// commands is closed: a byte pattern that isn't one of the names below is
// rejected rather than mapped onto a default.
type Command uint8

// The currently supported commands.
const (
	CmdVersion Command = iota
	CmdVerack
	CmdPing
	CmdPong
)

// commandNames is the registry of command names indexed by Command.
var commandNames = [...]string{
	CmdVersion: "version",
	CmdVerack:  "verack",
	CmdPing:    "ping",
	CmdPong:    "pong",
}

// commandBytes holds the null padded wire form of every registered command.
var commandBytes = func() map[Command][CommandSize]byte {
	m := make(map[Command][CommandSize]byte, len(commandNames))
	for i, name := range commandNames {
		var b [CommandSize]byte
		copy(b[:], name)
		m[Command(i)] = b
	}

	return m
}()

// String returns the command name without padding.
func (c Command) String() string {
	if int(c) < len(commandNames) {
		return commandNames[c]
	}

	return fmt.Sprintf("Command(%d)", uint8(c))
}

// Bytes returns the null padded wire form of the command. Unregistered
// values encode as all zeros, which CommandFromBytes rejects.
func (c Command) Bytes() [CommandSize]byte {
	return commandBytes[c]
}

// CommandFromBytes maps the wire form of a command back onto a Command. The
// bytes must match a registered name exactly, including the zero padding.
func CommandFromBytes(b [CommandSize]byte) (Command, error) {
	for cmd, known := range commandBytes {
		if bytes.Equal(known[:], b[:]) {
			return cmd, nil
		}
	}

	return 0, &UnknownCommandError{Raw: b}
}
