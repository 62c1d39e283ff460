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

// maxTransactions bounds the transaction count read from a serialized block
// so a hostile count can't force a large allocation.
const maxTransactions = wire.MaxBlockPayload / 10

// RawTransaction is a serialized transaction. Parsing it is left to callers.
type RawTransaction []byte

// TxID returns the double-SHA256 of the serialized transaction in natural
// order.
func (t RawTransaction) TxID() hash256.Hash {
	return hash256.Digest(t)
}

// Block is a header followed by its serialized transactions.
type Block struct {
	Header       Header
	Transactions []RawTransaction
}

// NewBlock assembles a block on top of prev. The merkle root is computed from
// the transactions, which must hold at least the coinbase. The nonce is left
// at zero.
func NewBlock(version int32, prev hash256.Hash, timestamp time.Time,
	bits uint32, txs []RawTransaction) (*Block, error) {

	root, err := merkleRootOf(txs)
	if err != nil {
		return nil, err
	}

	return &Block{
		Header: Header{
			Version:    version,
			PrevBlock:  prev,
			MerkleRoot: root,
			Timestamp:  time.Unix(timestamp.Unix(), 0),
			Bits:       bits,
		},
		Transactions: txs,
	}, nil
}

// BlockHash returns the hash of the block's header.
func (b *Block) BlockHash() hash256.Hash {
	return b.Header.BlockHash()
}

// CheckMerkleRoot reports whether the header commits to the block's
// transactions.
func (b *Block) CheckMerkleRoot() (bool, error) {
	root, err := merkleRootOf(b.Transactions)
	if err != nil {
		return false, err
	}

	return root.Equal(b.Header.MerkleRoot), nil
}

// Serialize writes the header, a compact size transaction count and the raw
// transactions back to back.
func (b *Block) Serialize(w io.Writer) error {
	if err := b.Header.Serialize(w); err != nil {
		return err
	}

	err := wire.WriteVarInt(w, 0, uint64(len(b.Transactions)))
	if err != nil {
		return err
	}

	for _, tx := range b.Transactions {
		if _, err := w.Write(tx); err != nil {
			return err
		}
	}

	return nil
}

// Bytes returns the serialized block.
func (b *Block) Bytes() []byte {
	var buf bytes.Buffer

	// Writes to a bytes.Buffer can't fail.
	_ = b.Serialize(&buf)

	return buf.Bytes()
}

// DeserializeBlock reads a block whose transactions are split by the caller
// supplied function. Transactions are opaque here, so their boundaries must
// come from a parser that understands them.
func DeserializeBlock(r io.Reader,
	readTx func(io.Reader) (RawTransaction, error)) (*Block, error) {

	var b Block
	if err := b.Header.Deserialize(r); err != nil {
		return nil, err
	}

	count, err := wire.ReadVarInt(r, 0)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return nil, fmt.Errorf("%w: transaction count: %w",
			ErrTruncated, err)

	case err != nil:
		return nil, err
	}

	if count > maxTransactions {
		return nil, fmt.Errorf("block claims %d transactions, max %d",
			count, maxTransactions)
	}

	b.Transactions = make([]RawTransaction, 0, count)
	for i := uint64(0); i < count; i++ {
		tx, err := readTx(r)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		b.Transactions = append(b.Transactions, tx)
	}

	return &b, nil
}

// merkleRootOf computes the merkle root over the txids of txs.
func merkleRootOf(txs []RawTransaction) (hash256.Hash, error) {
	txids := make([]hash256.Hash, len(txs))
	for i, tx := range txs {
		txids[i] = tx.TxID()
	}

	return MerkleRoot(txids)
}
