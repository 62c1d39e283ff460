package block

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/btcpeer/hash256"
)

// HeaderSize is the length of a serialized block header.
const HeaderSize = wire.MaxBlockHeaderPayload

var (
	// ErrTruncated is returned when a header or block ends early.
	ErrTruncated = errors.New("truncated block data")

	// ErrNoTransactions is returned when a merkle root is requested for
	// an empty transaction list.
	ErrNoTransactions = errors.New("no transactions")
)

// Header is the fixed 80 byte record that heads every block. Hashes are
// serialized in natural order. A zero hash256.Hash serializes as all zero
// bytes, which is how the genesis block refers to its missing parent.
type Header struct {
	// Version is the block version.
	Version int32

	// PrevBlock is the hash of the previous block header.
	PrevBlock hash256.Hash

	// MerkleRoot commits to the block's transactions.
	MerkleRoot hash256.Hash

	// Timestamp is the block time. Only whole seconds are serialized and
	// the zero time is written as the epoch.
	Timestamp time.Time

	// Bits is the compact encoding of the proof of work target.
	Bits uint32

	// Nonce is the proof of work nonce.
	Nonce uint32
}

// FromWireHeader converts a btcd block header.
func FromWireHeader(h *wire.BlockHeader) *Header {
	return &Header{
		Version:    h.Version,
		PrevBlock:  hash256.FromChainHash(h.PrevBlock),
		MerkleRoot: hash256.FromChainHash(h.MerkleRoot),
		Timestamp:  h.Timestamp,
		Bits:       h.Bits,
		Nonce:      h.Nonce,
	}
}

// WireHeader converts the header into its btcd form.
func (h *Header) WireHeader() *wire.BlockHeader {
	timestamp := time.Unix(0, 0)
	if !h.Timestamp.IsZero() {
		timestamp = time.Unix(h.Timestamp.Unix(), 0)
	}

	return &wire.BlockHeader{
		Version:    h.Version,
		PrevBlock:  h.PrevBlock.ChainHash(),
		MerkleRoot: h.MerkleRoot.ChainHash(),
		Timestamp:  timestamp,
		Bits:       h.Bits,
		Nonce:      h.Nonce,
	}
}

// Serialize writes the 80 byte header to w. Integers are little-endian and
// hashes are written in natural order.
func (h *Header) Serialize(w io.Writer) error {
	return h.WireHeader().Serialize(w)
}

// Bytes returns the serialized header.
func (h *Header) Bytes() [HeaderSize]byte {
	var (
		b   [HeaderSize]byte
		buf bytes.Buffer
	)

	// Writes to a bytes.Buffer can't fail.
	_ = h.Serialize(&buf)
	copy(b[:], buf.Bytes())

	return b
}

// Deserialize reads an 80 byte header from r.
func (h *Header) Deserialize(r io.Reader) error {
	var wh wire.BlockHeader
	if err := wh.Deserialize(r); err != nil {
		if errors.Is(err, io.EOF) ||
			errors.Is(err, io.ErrUnexpectedEOF) {

			return fmt.Errorf("%w: header: %w", ErrTruncated, err)
		}

		return err
	}

	*h = *FromWireHeader(&wh)

	return nil
}

// BlockHash returns the double-SHA256 of the serialized header in natural
// order. Use ToReverse for the form block explorers display.
func (h *Header) BlockHash() hash256.Hash {
	b := h.Bytes()
	return hash256.Digest(b[:])
}

// String returns the displayed block hash.
func (h *Header) String() string {
	return h.BlockHash().ToReverse().String()
}
