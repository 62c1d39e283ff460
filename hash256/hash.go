package hash256

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// Size is the number of bytes in a double-SHA256 digest.
	Size = chainhash.HashSize

	// HexSize is the number of hex characters needed to encode a digest.
	HexSize = Size * 2

	// ChecksumSize is the number of leading digest bytes used as a
	// message checksum.
	ChecksumSize = 4
)

var (
	// ErrMalformedHash is returned when hash text is not exactly HexSize
	// valid hex characters.
	ErrMalformedHash = errors.New("malformed hash")

	// ErrInvalidHexLength is returned when a hex string with an odd number
	// of characters is reversed.
	ErrInvalidHexLength = errors.New("invalid hex length")
)

// ByteOrder tags the byte order a Hash is carried in.
type ByteOrder uint8

const (
	// NaturalOrder is the byte order as it comes out of the hash function.
	// Checksums and all wire serialization operate on this order.
	NaturalOrder ByteOrder = iota

	// ReverseOrder is the byte order block explorers display hashes in.
	ReverseOrder
)

// String returns a human readable name for the byte order.
func (o ByteOrder) String() string {
	switch o {
	case NaturalOrder:
		return "natural"
	case ReverseOrder:
		return "reverse"
	default:
		return "unknown"
	}
}

// Hash is a 256-bit digest carried as lowercase hex text together with the
// byte order that text is written in. The tag makes it impossible to reverse
// a hash twice by accident: ToNatural and ToReverse only ever flip the order
// when the tag says they need to.
//
// The zero value is not a valid Hash. Use Digest, NewNatural or NewReverse.
type Hash struct {
	order ByteOrder
	hex   string
}

// Digest computes SHA256(SHA256(data)) and returns it in natural order.
func Digest(data []byte) Hash {
	return Hash{
		order: NaturalOrder,
		hex:   hex.EncodeToString(chainhash.DoubleHashB(data)),
	}
}

// Checksum returns the first ChecksumSize bytes of the natural order
// double-SHA256 digest of data.
func Checksum(data []byte) [ChecksumSize]byte {
	return Digest(data).Checksum()
}

// NewNatural parses hash text that is already in natural byte order.
func NewNatural(hexStr string) (Hash, error) {
	return newHash(NaturalOrder, hexStr)
}

// NewReverse parses hash text in reverse (display) byte order.
func NewReverse(hexStr string) (Hash, error) {
	return newHash(ReverseOrder, hexStr)
}

// FromChainHash converts a btcd chainhash.Hash, which stores its bytes in
// natural order, into a natural order Hash.
func FromChainHash(h chainhash.Hash) Hash {
	return Hash{
		order: NaturalOrder,
		hex:   hex.EncodeToString(h[:]),
	}
}

// FromNaturalBytes wraps raw digest bytes that are in natural order.
func FromNaturalBytes(b [Size]byte) Hash {
	return Hash{
		order: NaturalOrder,
		hex:   hex.EncodeToString(b[:]),
	}
}

func newHash(order ByteOrder, hexStr string) (Hash, error) {
	if len(hexStr) != HexSize {
		return Hash{}, fmt.Errorf("%w: expected %d hex characters, "+
			"got %d", ErrMalformedHash, HexSize, len(hexStr))
	}

	var raw [Size]byte
	if _, err := hex.Decode(raw[:], []byte(hexStr)); err != nil {
		return Hash{}, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}

	// Normalize the text so equal digests compare equal regardless of the
	// case the caller used.
	return Hash{order: order, hex: hex.EncodeToString(raw[:])}, nil
}

// ReverseHex reverses the sequence of byte pairs in a hex string. It is a
// pure function: reversing twice returns the input.
func ReverseHex(hexStr string) (string, error) {
	if len(hexStr)%2 != 0 {
		return "", fmt.Errorf("%w: %d characters", ErrInvalidHexLength,
			len(hexStr))
	}

	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}

	for i, j := 0, len(raw)-1; i < j; i, j = i+1, j-1 {
		raw[i], raw[j] = raw[j], raw[i]
	}

	return hex.EncodeToString(raw), nil
}

// Order returns the byte order the hash text is carried in.
func (h Hash) Order() ByteOrder {
	return h.order
}

// String returns the hash text in the order given by Order.
func (h Hash) String() string {
	return h.hex
}

// ToNatural returns the hash in natural byte order. A hash that is already
// natural is returned unchanged.
func (h Hash) ToNatural() Hash {
	if h.order == NaturalOrder {
		return h
	}

	return Hash{order: NaturalOrder, hex: mustReverse(h.hex)}
}

// ToReverse returns the hash in reverse byte order. A hash that is already
// reversed is returned unchanged.
func (h Hash) ToReverse() Hash {
	if h.order == ReverseOrder {
		return h
	}

	return Hash{order: ReverseOrder, hex: mustReverse(h.hex)}
}

// NaturalBytes returns the raw digest bytes in natural order.
func (h Hash) NaturalBytes() [Size]byte {
	var out [Size]byte

	// Every Hash is validated on construction, so the text always decodes.
	_, _ = hex.Decode(out[:], []byte(h.ToNatural().hex))

	return out
}

// ChainHash converts the hash into a btcd chainhash.Hash.
func (h Hash) ChainHash() chainhash.Hash {
	return chainhash.Hash(h.NaturalBytes())
}

// Checksum returns the first ChecksumSize bytes of the natural order digest.
func (h Hash) Checksum() [ChecksumSize]byte {
	var checksum [ChecksumSize]byte
	raw := h.NaturalBytes()
	copy(checksum[:], raw[:ChecksumSize])

	return checksum
}

// Check reports whether checksum matches the checksum of this hash.
func (h Hash) Check(checksum [ChecksumSize]byte) bool {
	expected := h.Checksum()
	return bytes.Equal(expected[:], checksum[:])
}

// Equal reports whether both hashes denote the same digest, regardless of the
// byte order they are carried in.
func (h Hash) Equal(other Hash) bool {
	return h.ToNatural().hex == other.ToNatural().hex
}

// mustReverse reverses text that was validated when the Hash was built.
func mustReverse(hexStr string) string {
	reversed, err := ReverseHex(hexStr)
	if err != nil {
		panic(fmt.Sprintf("hash256: unvalidated hash text %q: %v",
			hexStr, err))
	}

	return reversed
}
