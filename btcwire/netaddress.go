package btcwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
)

// NetworkAddressSize is the encoded size of a NetworkAddress inside a
// version message: services (8) + address (16) + port (2).
const NetworkAddressSize = 26

// NetworkAddress is a peer address as carried in a version message.
type NetworkAddress struct {
	// Services is the service bitfield advertised for the address.
	Services uint64

	// IP is the address in 16-byte IPv6 form. IPv4 addresses are mapped
	// under ::ffff:0:0/96.
	IP [16]byte

	// Port is the TCP port. It is the only big-endian field in the
	// protocol.
	Port uint16
}

// NewNetworkAddress builds a NetworkAddress from a TCP address. A nil
// address yields the unspecified address with port zero.
func NewNetworkAddress(addr *net.TCPAddr, services uint64) NetworkAddress {
	na := NetworkAddress{Services: services}
	if addr == nil {
		return na
	}

	if ip := addr.IP.To16(); ip != nil {
		copy(na.IP[:], ip)
	}
	na.Port = uint16(addr.Port)

	return na
}

// NewNetworkAddressFromAddrPort builds a NetworkAddress from a netip.AddrPort.
func NewNetworkAddressFromAddrPort(ap netip.AddrPort,
	services uint64) NetworkAddress {

	return NetworkAddress{
		Services: services,
		IP:       ap.Addr().As16(),
		Port:     ap.Port(),
	}
}

// AddrPort returns the address as a netip.AddrPort, unmapping IPv4.
func (na NetworkAddress) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom16(na.IP).Unmap(), na.Port)
}

// String returns the host:port form of the address.
func (na NetworkAddress) String() string {
	return na.AddrPort().String()
}

// Encode writes the 26-byte wire form of the address.
func (na NetworkAddress) Encode(buf *bytes.Buffer) error {
	if err := WriteUint64(buf, na.Services); err != nil {
		return err
	}
	if err := WriteBytes(buf, na.IP[:]); err != nil {
		return err
	}

	var port [2]byte
	binary.BigEndian.PutUint16(port[:], na.Port)

	return WriteBytes(buf, port[:])
}

// DecodeNetworkAddress reads a 26-byte network address.
func DecodeNetworkAddress(r *Reader) (NetworkAddress, error) {
	var na NetworkAddress

	services, err := r.ReadUint64()
	if err != nil {
		return na, fmt.Errorf("services: %w", err)
	}
	na.Services = services

	ip, err := r.ReadBytes(16)
	if err != nil {
		return na, fmt.Errorf("ip: %w", err)
	}
	copy(na.IP[:], ip)

	port, err := r.ReadBytes(2)
	if err != nil {
		return na, fmt.Errorf("port: %w", err)
	}
	na.Port = binary.BigEndian.Uint16(port)

	return na, nil
}
