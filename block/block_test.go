package block

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/btcpeer/hash256"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var allParams = []*chaincfg.Params{
	&chaincfg.MainNetParams,
	&chaincfg.TestNet3Params,
	&chaincfg.RegressionNetParams,
}

// rawTx serializes tx without witness data.
func rawTx(t require.TestingT, tx *wire.MsgTx) RawTransaction {
	var buf bytes.Buffer
	require.NoError(t, tx.SerializeNoWitness(&buf))

	return buf.Bytes()
}

// readWireTx splits one transaction off r using btcd's parser.
func readWireTx(r io.Reader) (RawTransaction, error) {
	var (
		buf bytes.Buffer
		tx  wire.MsgTx
	)
	if err := tx.Deserialize(io.TeeReader(r, &buf)); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// TestZeroHeader asserts the zero header serializes to 80 zero bytes.
func TestZeroHeader(t *testing.T) {
	t.Parallel()

	var h Header
	require.Equal(t, [HeaderSize]byte{}, h.Bytes())
}

// TestGenesisHeader asserts the genesis headers hash to the known genesis
// hashes and serialize exactly as btcd does.
func TestGenesisHeader(t *testing.T) {
	t.Parallel()

	for _, params := range allParams {
		params := params
		t.Run(params.Name, func(t *testing.T) {
			t.Parallel()

			wireHeader := params.GenesisBlock.Header
			h := FromWireHeader(&wireHeader)

			var expected bytes.Buffer
			require.NoError(t, wireHeader.Serialize(&expected))
			b := h.Bytes()
			require.Equal(t, expected.Bytes(), b[:])

			require.Equal(t, *params.GenesisHash,
				h.BlockHash().ChainHash())
			require.Equal(t, params.GenesisHash.String(), h.String())
		})
	}

	h := FromWireHeader(&chaincfg.MainNetParams.GenesisBlock.Header)
	require.Equal(
		t, "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b6"+
			"0a8ce26f", h.BlockHash().ToReverse().String(),
	)
}

// TestHeaderRoundTrip asserts Deserialize inverts Serialize.
func TestHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		prev := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "prev")
		root := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "root")

		h := &Header{
			Version:    rapid.Int32().Draw(t, "version"),
			PrevBlock:  hash256.FromNaturalBytes([32]byte(prev)),
			MerkleRoot: hash256.FromNaturalBytes([32]byte(root)),
			Timestamp: time.Unix(int64(
				rapid.Uint32Min(1).Draw(t, "time"),
			), 0),
			Bits:  rapid.Uint32().Draw(t, "bits"),
			Nonce: rapid.Uint32().Draw(t, "nonce"),
		}

		b := h.Bytes()

		var decoded Header
		require.NoError(t, decoded.Deserialize(bytes.NewReader(b[:])))
		require.Equal(t, h.Version, decoded.Version)
		require.True(t, h.PrevBlock.Equal(decoded.PrevBlock))
		require.True(t, h.MerkleRoot.Equal(decoded.MerkleRoot))
		require.True(t, h.Timestamp.Equal(decoded.Timestamp))
		require.Equal(t, h.Bits, decoded.Bits)
		require.Equal(t, h.Nonce, decoded.Nonce)
		require.True(t, h.BlockHash().Equal(decoded.BlockHash()))
	})
}

// TestHeaderTruncated asserts a short header is reported as truncated.
func TestHeaderTruncated(t *testing.T) {
	t.Parallel()

	b := FromWireHeader(&chaincfg.MainNetParams.GenesisBlock.Header).Bytes()

	var h Header
	err := h.Deserialize(bytes.NewReader(b[:HeaderSize-1]))
	require.ErrorIs(t, err, ErrTruncated)

	err = h.Deserialize(bytes.NewReader(nil))
	require.ErrorIs(t, err, ErrTruncated)
}

// TestMerkleRootEmpty asserts an empty transaction list has no root.
func TestMerkleRootEmpty(t *testing.T) {
	t.Parallel()

	_, err := MerkleRoot(nil)
	require.ErrorIs(t, err, ErrNoTransactions)

	_, err = NewBlock(1, hash256.Hash{}, time.Now(), 0, nil)
	require.ErrorIs(t, err, ErrNoTransactions)
}

// TestMerkleRootOdd asserts the last entry of an odd level is paired with
// itself.
func TestMerkleRootOdd(t *testing.T) {
	t.Parallel()

	a := hash256.Digest([]byte("a"))
	b := hash256.Digest([]byte("b"))
	c := hash256.Digest([]byte("c"))

	pair := func(l, r hash256.Hash) hash256.Hash {
		lb, rb := l.NaturalBytes(), r.NaturalBytes()
		return hash256.Digest(append(lb[:], rb[:]...))
	}

	root, err := MerkleRoot([]hash256.Hash{a, b, c})
	require.NoError(t, err)
	require.True(t, root.Equal(pair(pair(a, b), pair(c, c))))

	// A single transaction is its own root.
	root, err = MerkleRoot([]hash256.Hash{a})
	require.NoError(t, err)
	require.True(t, root.Equal(a))

	// Reversed input is read in natural order.
	root, err = MerkleRoot([]hash256.Hash{a.ToReverse(), b})
	require.NoError(t, err)
	require.True(t, root.Equal(pair(a, b)))
}

// TestMerkleRootMatchesBtcd asserts the merkle root agrees with btcd's merkle
// tree for random transaction sets.
func TestMerkleRootMatchesBtcd(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 40).Draw(t, "n")

		msgBlock := &wire.MsgBlock{}
		txids := make([]hash256.Hash, n)
		for i := 0; i < n; i++ {
			tx := wire.NewMsgTx(wire.TxVersion)
			tx.AddTxOut(wire.NewTxOut(
				rapid.Int64Min(0).Draw(t, "value"), nil,
			))
			tx.LockTime = uint32(i)

			require.NoError(t, msgBlock.AddTransaction(tx))

			txids[i] = rawTx(t, tx).TxID()
			require.Equal(t, tx.TxHash(), txids[i].ChainHash())
		}

		store := blockchain.BuildMerkleTreeStore(
			btcutil.NewBlock(msgBlock).Transactions(), false,
		)
		expected := store[len(store)-1]

		root, err := MerkleRoot(txids)
		require.NoError(t, err)
		require.Equal(t, *expected, root.ChainHash())
	})
}

// TestNewBlockGenesis rebuilds each genesis block from its coinbase and
// asserts it hashes to the genesis hash.
func TestNewBlockGenesis(t *testing.T) {
	t.Parallel()

	for _, params := range allParams {
		params := params
		t.Run(params.Name, func(t *testing.T) {
			t.Parallel()

			genesis := params.GenesisBlock
			coinbase := rawTx(t, genesis.Transactions[0])

			b, err := NewBlock(
				genesis.Header.Version, hash256.Hash{},
				genesis.Header.Timestamp, genesis.Header.Bits,
				[]RawTransaction{coinbase},
			)
			require.NoError(t, err)

			require.Equal(t, genesis.Header.MerkleRoot,
				b.Header.MerkleRoot.ChainHash())

			ok, err := b.CheckMerkleRoot()
			require.NoError(t, err)
			require.True(t, ok)

			b.Header.Nonce = genesis.Header.Nonce
			require.Equal(t, *params.GenesisHash,
				b.BlockHash().ChainHash())

			var expected bytes.Buffer
			require.NoError(t, genesis.Serialize(&expected))
			require.Equal(t, expected.Bytes(), b.Bytes())

			decoded, err := DeserializeBlock(
				bytes.NewReader(b.Bytes()), readWireTx,
			)
			require.NoError(t, err)
			require.Equal(t, b.Transactions, decoded.Transactions)
			require.True(t, b.BlockHash().Equal(decoded.BlockHash()))
		})
	}
}

// TestCheckMerkleRootMismatch asserts a header that doesn't commit to the
// transactions is detected.
func TestCheckMerkleRootMismatch(t *testing.T) {
	t.Parallel()

	coinbase := rawTx(t, chaincfg.MainNetParams.GenesisBlock.Transactions[0])

	b, err := NewBlock(
		1, hash256.Hash{}, time.Unix(1231006505, 0), 0x1d00ffff,
		[]RawTransaction{coinbase},
	)
	require.NoError(t, err)

	b.Transactions = append(b.Transactions, coinbase)

	ok, err := b.CheckMerkleRoot()
	require.NoError(t, err)
	require.False(t, ok)
}

// TestDeserializeBlockTruncated asserts a block cut short after its header
// is reported as truncated.
func TestDeserializeBlockTruncated(t *testing.T) {
	t.Parallel()

	b := FromWireHeader(&chaincfg.MainNetParams.GenesisBlock.Header).Bytes()

	_, err := DeserializeBlock(bytes.NewReader(b[:]), readWireTx)
	require.ErrorIs(t, err, ErrTruncated)
}
