package btcwire

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
)

// MagicSize is the length of the network magic that opens every message.
const MagicSize = 4

// Network identifies which bitcoin network a connection speaks. Each network
// has a fixed magic number and default TCP port.
type Network uint8

const (
	// Mainnet is the main bitcoin network.
	Mainnet Network = iota

	// Testnet is the version 3 public test network.
	Testnet

	// Regtest is the local regression test network.
	Regtest
)

// networkParams maps each network onto the btcd chain parameters that carry
// its magic number and default port.
var networkParams = map[Network]*chaincfg.Params{
	Mainnet: &chaincfg.MainNetParams,
	Testnet: &chaincfg.TestNet3Params,
	Regtest: &chaincfg.RegressionNetParams,
}

// networkPorts holds the default peer port of each network.
var networkPorts = map[Network]uint16{
	Mainnet: 8333,
	Testnet: 18333,
	Regtest: 18444,
}

// String returns the canonical name of the network.
func (n Network) String() string {
	switch n {
	case Mainnet:
		return "mainnet"
	case Testnet:
		return "testnet3"
	case Regtest:
		return "regtest"
	default:
		return fmt.Sprintf("Network(%d)", uint8(n))
	}
}

// Params returns the btcd chain parameters of the network, or nil for an
// unknown network.
func (n Network) Params() *chaincfg.Params {
	return networkParams[n]
}

// Magic returns the network magic as the little-endian integer btcd uses.
func (n Network) Magic() wire.BitcoinNet {
	params := n.Params()
	if params == nil {
		return 0
	}

	return params.Net
}

// MagicBytes returns the magic exactly as it appears on the wire.
func (n Network) MagicBytes() [MagicSize]byte {
	var b [MagicSize]byte
	binary.LittleEndian.PutUint32(b[:], uint32(n.Magic()))

	return b
}

// Port returns the default peer port of the network.
func (n Network) Port() uint16 {
	return networkPorts[n]
}

// IsValid reports whether n is one of the known networks.
func (n Network) IsValid() bool {
	_, ok := networkParams[n]
	return ok
}

// NetworkFromMagic maps the four magic bytes of a message header back onto a
// network. Unknown magic is an error: without it there is no way to tell
// which protocol the rest of the stream speaks.
func NetworkFromMagic(magic [MagicSize]byte) (Network, error) {
	for n := range networkParams {
		if n.MagicBytes() == magic {
			return n, nil
		}
	}

	return 0, &UnknownNetworkError{Magic: magic}
}

// ParseNetwork parses a network name as accepted on the command line.
func ParseNetwork(name string) (Network, error) {
	switch strings.ToLower(name) {
	case "mainnet", "main":
		return Mainnet, nil
	case "testnet", "testnet3":
		return Testnet, nil
	case "regtest", "regnet":
		return Regtest, nil
	default:
		return 0, fmt.Errorf("unknown network %q", name)
	}
}
