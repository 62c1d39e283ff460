package block

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/btcpeer/hash256"
)

// MerkleRoot reduces the ordered transaction ids, coinbase first, to the root
// committed to in the block header. Each level hashes adjacent pairs with
// double-SHA256; a level with an odd count pairs its last entry with itself.
func MerkleRoot(txids []hash256.Hash) (hash256.Hash, error) {
	if len(txids) == 0 {
		return hash256.Hash{}, ErrNoTransactions
	}

	level := make([][hash256.Size]byte, len(txids))
	for i, txid := range txids {
		level[i] = txid.NaturalBytes()
	}

	var pair [hash256.Size * 2]byte
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}

		next := level[:0]
		for i := 0; i < len(level); i += 2 {
			copy(pair[:hash256.Size], level[i][:])
			copy(pair[hash256.Size:], level[i+1][:])

			next = append(next, chainhash.DoubleHashH(pair[:]))
		}
		level = next
	}

	return hash256.FromNaturalBytes(level[0]), nil
}
