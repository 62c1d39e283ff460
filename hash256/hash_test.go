package hash256

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestDigestVector checks the digest against a known good double-SHA256.
func TestDigestVector(t *testing.T) {
	t.Parallel()

	h := Digest([]byte("My cool String!"))
	require.Equal(t, NaturalOrder, h.Order())
	require.Equal(
		t, "ef7391fd5ad3916f2e1c9d9df3b5e2adc546f63509c04ed9ec010cc880c96045",
		h.String(),
	)
}

// TestChecksumVector checks checksum derivation and comparison.
func TestChecksumVector(t *testing.T) {
	t.Parallel()

	h := Digest([]byte("My awesome and blazingly fast str"))

	checksum := [ChecksumSize]byte{0xC6, 0x2A, 0x07, 0xDB}
	require.Equal(t, checksum, h.Checksum())
	require.True(t, h.Check(checksum))
	require.False(t, h.Check([ChecksumSize]byte{0xC6, 0x2A, 0x07, 0xDC}))

	// The checksum is defined on natural order, so a reversed hash must
	// yield the same checksum.
	require.Equal(t, checksum, h.ToReverse().Checksum())
	require.Equal(t, checksum, Checksum([]byte(
		"My awesome and blazingly fast str",
	)))
}

// TestEmptyPayloadChecksum pins the checksum every empty bitcoin message, such
// as verack, carries in its header.
func TestEmptyPayloadChecksum(t *testing.T) {
	t.Parallel()

	require.Equal(
		t, [ChecksumSize]byte{0x5d, 0xf6, 0xe0, 0xe2}, Checksum(nil),
	)
}

// TestDigestMatchesChainhash cross-checks the digest with btcd.
func TestDigestMatchesChainhash(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOf(rapid.Byte()).Draw(t, "data")

		h := Digest(data)
		expected := chainhash.DoubleHashH(data)

		require.Equal(t, expected, h.ChainHash())

		// chainhash renders hashes in display order.
		require.Equal(t, expected.String(), h.ToReverse().String())
		require.True(t, FromChainHash(expected).Equal(h))
	})
}

// TestNewHashValidation ensures malformed text is rejected instead of being
// zero filled.
func TestNewHashValidation(t *testing.T) {
	t.Parallel()

	valid := "ef7391fd5ad3916f2e1c9d9df3b5e2adc546f63509c04ed9ec010cc880c96045"

	tests := []struct {
		name  string
		input string
		err   error
	}{
		{
			name:  "valid",
			input: valid,
		},
		{
			name:  "upper case",
			input: "EF7391FD5AD3916F2E1C9D9DF3B5E2ADC546F63509C04ED9EC010CC880C96045",
		},
		{
			name:  "empty",
			input: "",
			err:   ErrMalformedHash,
		},
		{
			name:  "too short",
			input: valid[:62],
			err:   ErrMalformedHash,
		},
		{
			name:  "too long",
			input: valid + "00",
			err:   ErrMalformedHash,
		},
		{
			name:  "not hex",
			input: "zz" + valid[2:],
			err:   ErrMalformedHash,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewNatural(test.input)
			require.ErrorIs(t, err, test.err)

			_, err = NewReverse(test.input)
			require.ErrorIs(t, err, test.err)
		})
	}

	upper, err := NewNatural(
		"EF7391FD5AD3916F2E1C9D9DF3B5E2ADC546F63509C04ED9EC010CC880C96045",
	)
	require.NoError(t, err)
	require.Equal(t, valid, upper.String())
}

// TestReverseHex covers pair reversal and its failure modes.
func TestReverseHex(t *testing.T) {
	t.Parallel()

	reversed, err := ReverseHex("0011aabb")
	require.NoError(t, err)
	require.Equal(t, "bbaa1100", reversed)

	reversed, err = ReverseHex("")
	require.NoError(t, err)
	require.Empty(t, reversed)

	_, err = ReverseHex("abc")
	require.ErrorIs(t, err, ErrInvalidHexLength)

	_, err = ReverseHex("zz")
	require.ErrorIs(t, err, ErrMalformedHash)
}

// TestOrderConversion checks the tag bookkeeping of ToNatural/ToReverse.
func TestOrderConversion(t *testing.T) {
	t.Parallel()

	natural := Digest([]byte("My cool String!"))

	// Converting to the order a hash already has is a no-op.
	require.Equal(t, natural, natural.ToNatural())

	reversed := natural.ToReverse()
	require.Equal(t, ReverseOrder, reversed.Order())
	require.Equal(t, reversed, reversed.ToReverse())
	require.Equal(
		t, "4560c980c80c01ecd94ec00935f646c5ade2b5f39d9d1c2e6f91d35afd9173ef",
		reversed.String(),
	)

	require.Equal(t, natural, reversed.ToNatural())
	require.True(t, natural.Equal(reversed))
	require.Equal(t, natural.NaturalBytes(), reversed.NaturalBytes())
}

// TestOrderInvolution is the property form of the conversion laws: for any
// valid hash text, flipping the order there and back is the identity.
func TestOrderInvolution(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.SliceOfN(rapid.Byte(), Size, Size).Draw(t, "raw")
		text := hex.EncodeToString(raw)

		rev, err := NewReverse(text)
		require.NoError(t, err)
		require.Equal(t, rev, rev.ToNatural().ToReverse())

		nat, err := NewNatural(text)
		require.NoError(t, err)
		require.Equal(t, nat, nat.ToReverse().ToNatural())

		var fixed [Size]byte
		copy(fixed[:], raw)
		require.Equal(t, nat, FromNaturalBytes(fixed))
	})
}

// TestChecksumDetectsMutation flips a single payload byte and expects the
// checksum comparison to fail.
func TestChecksumDetectsMutation(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 1, 512).Draw(t, "data")
		idx := rapid.IntRange(0, len(data)-1).Draw(t, "idx")
		flip := rapid.ByteRange(1, 255).Draw(t, "flip")

		checksum := Checksum(data)
		require.True(t, Digest(data).Check(checksum))

		mutated := append([]byte(nil), data...)
		mutated[idx] ^= flip

		require.False(t, Digest(mutated).Check(checksum))
	})
}
