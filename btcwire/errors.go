package btcwire

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrUnknownNetwork is returned when a header carries magic that
	// belongs to no known network.
	ErrUnknownNetwork = errors.New("unknown network magic")

	// ErrNetworkMismatch is returned when a header belongs to a known
	// network other than the one the stream was opened for.
	ErrNetworkMismatch = errors.New("network mismatch")

	// ErrUnknownCommand is returned when a header carries a command name
	// that isn't registered.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrTruncated is returned when a header or payload ends before all
	// of its bytes could be read.
	ErrTruncated = errors.New("truncated message")

	// ErrPayloadTooLarge is returned when a header declares a payload
	// above MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrChecksumMismatch is returned when a payload doesn't hash to the
	// checksum its header declares.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrFieldRange is returned when a decoded field holds a value the
	// protocol doesn't allow, or a payload carries trailing bytes.
	ErrFieldRange = errors.New("field out of range")

	// ErrNonASCIIUserAgent is returned when a version user agent contains
	// bytes outside of 7-bit ASCII.
	ErrNonASCIIUserAgent = errors.New("user agent is not ascii")
)

// UnknownNetworkError is returned when the magic of a header matches no known
// network.
type UnknownNetworkError struct {
	// Magic is the magic as read off the wire.
	Magic [MagicSize]byte
}

// Error returns a human readable string describing the error.
func (e *UnknownNetworkError) Error() string {
	return fmt.Sprintf("unknown network magic %x", e.Magic[:])
}

// Unwrap allows errors.Is to match ErrUnknownNetwork.
func (e *UnknownNetworkError) Unwrap() error {
	return ErrUnknownNetwork
}

// UnknownCommandError is returned in response to a command name that isn't
// registered.
type UnknownCommandError struct {
	// Raw is the twelve command bytes as read off the wire.
	Raw [CommandSize]byte
}

// Error returns a human readable string describing the error.
func (e *UnknownCommandError) Error() string {
	name := bytes.TrimRight(e.Raw[:], "\x00")
	return fmt.Sprintf("unknown command %q", name)
}

// Unwrap allows errors.Is to match ErrUnknownCommand.
func (e *UnknownCommandError) Unwrap() error {
	return ErrUnknownCommand
}

// ChecksumMismatchError is returned when a payload fails its checksum. The
// stream is desynchronized at that point and can't be recovered.
type ChecksumMismatchError struct {
	// Command is the command of the offending message.
	Command Command

	// Expected is the checksum declared in the header.
	Expected [4]byte

	// Actual is the checksum of the payload bytes received.
	Actual [4]byte
}

// Error returns a human readable string describing the error.
func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %v: header declares %x, "+
		"payload hashes to %x", e.Command, e.Expected[:], e.Actual[:])
}

// Unwrap allows errors.Is to match ErrChecksumMismatch.
func (e *ChecksumMismatchError) Unwrap() error {
	return ErrChecksumMismatch
}

// IsFrameError reports whether err means the byte stream can no longer be
// framed into messages. Such errors are fatal for the connection.
func IsFrameError(err error) bool {
	switch {
	case errors.Is(err, ErrUnknownNetwork),
		errors.Is(err, ErrNetworkMismatch),
		errors.Is(err, ErrUnknownCommand),
		errors.Is(err, ErrTruncated),
		errors.Is(err, ErrPayloadTooLarge):

		return true

	default:
		return false
	}
}

// IsDecodeError reports whether err was produced while validating or decoding
// a payload that was framed correctly.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrChecksumMismatch) ||
		errors.Is(err, ErrFieldRange) ||
		errors.Is(err, ErrNonASCIIUserAgent)
}
