package btcwire

import (
	"bytes"
	"encoding/binary"
	"io"
	"net/netip"

	"github.com/btcsuite/btcd/wire"
)

// netAddressSize is the length of an address without timestamp as carried in
// a version payload: services (8) + ip (16) + port (2).
const netAddressSize = 8 + 16 + 2

// writeNetAddress appends the services, address and port of a peer. IPv4
// addresses are written in their IPv4-mapped IPv6 form and the port is big
// endian. An unset address is written as the unspecified IPv6 address.
func writeNetAddress(w *bytes.Buffer, services wire.ServiceFlag,
	addr netip.AddrPort) {

	writeUint64(w, uint64(services))

	var ip [16]byte
	if addr.Addr().IsValid() {
		ip = addr.Addr().As16()
	}
	w.Write(ip[:])

	var port [2]byte
	binary.BigEndian.PutUint16(port[:], addr.Port())
	w.Write(port[:])
}

// readNetAddress is the inverse of writeNetAddress. IPv4-mapped addresses are
// unmapped so that IPv4 peers round trip as IPv4.
func readNetAddress(r io.Reader) (wire.ServiceFlag, netip.AddrPort, error) {
	var b [netAddressSize]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, netip.AddrPort{}, err
	}

	services := wire.ServiceFlag(binary.LittleEndian.Uint64(b[0:8]))

	var ip [16]byte
	copy(ip[:], b[8:24])
	addr := netip.AddrFrom16(ip).Unmap()
	port := binary.BigEndian.Uint16(b[24:26])

	return services, netip.AddrPortFrom(addr, port), nil
}
