package btcwire

import (
	"encoding/hex"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestNetworkMagic checks the wire magic and default port of every network
// against the chain parameters.
func TestNetworkMagic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		net   Network
		magic string
		port  uint16
	}{
		{net: Mainnet, magic: "f9beb4d9", port: 8333},
		{net: Testnet, magic: "0b110907", port: 18333},
		{net: Regtest, magic: "fabfb5da", port: 18444},
	}

	for _, test := range tests {
		t.Run(test.net.String(), func(t *testing.T) {
			magic := test.net.MagicBytes()
			require.Equal(t, test.magic, hex.EncodeToString(magic[:]))
			require.Equal(t, test.port, test.net.Port())

			defaultPort, err := strconv.ParseUint(
				test.net.Params().DefaultPort, 10, 16,
			)
			require.NoError(t, err)
			require.EqualValues(t, defaultPort, test.net.Port())

			net, err := NetworkFromMagic(magic)
			require.NoError(t, err)
			require.Equal(t, test.net, net)

			parsed, err := ParseNetwork(test.net.String())
			require.NoError(t, err)
			require.Equal(t, test.net, parsed)
		})
	}
}

// TestUnknownNetwork asserts that unknown values are rejected.
func TestUnknownNetwork(t *testing.T) {
	t.Parallel()

	_, err := NetworkFromMagic([MagicSize]byte{1, 2, 3, 4})
	require.ErrorIs(t, err, ErrUnknownNetwork)

	var unknown *UnknownNetworkError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, [MagicSize]byte{1, 2, 3, 4}, unknown.Magic)

	_, err = ParseNetwork("signet")
	require.Error(t, err)

	require.False(t, Network(42).IsValid())
	require.Nil(t, Network(42).Params())
}
