package lncfg

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// NormalizePeerAddress turns a user supplied peer address into a host:port
// string. Addresses may be given as tcp://host:port, tcp:host:port, host:port,
// host or just a port. If no port is given, defaultPort is used.
func NormalizePeerAddress(strAddress, defaultPort string) (string, error) {
	if strAddress == "" {
		return "", errors.New("empty peer address")
	}

	var parsedNetwork, parsedAddr string
	switch {
	case strings.Contains(strAddress, "://"):
		parts := strings.SplitN(strAddress, "://", 2)
		parsedNetwork, parsedAddr = parts[0], parts[1]

	case strings.Contains(strAddress, ":"):
		parts := strings.Split(strAddress, ":")
		parsedNetwork = parts[0]
		parsedAddr = strings.Join(parts[1:], ":")
	}

	switch parsedNetwork {
	case "tcp", "tcp4", "tcp6":
		strAddress = parsedAddr

	case "unix", "unixpacket", "ip", "ip4", "ip6", "udp", "udp4", "udp6",
		"unixgram":

		return "", fmt.Errorf("only TCP peer addresses are "+
			"supported: %s", strAddress)
	}

	addrWithPort := verifyPort(strAddress, defaultPort)
	host, port, err := net.SplitHostPort(addrWithPort)
	if err != nil {
		return "", fmt.Errorf("invalid peer address %q: %w",
			strAddress, err)
	}
	if host == "" {
		return "", fmt.Errorf("peer address %q has no host", strAddress)
	}

	portNum, err := strconv.Atoi(port)
	if err != nil || portNum <= 0 || portNum > 65535 {
		return "", fmt.Errorf("invalid port in peer address %q",
			strAddress)
	}

	return net.JoinHostPort(host, port), nil
}

// IsLoopback returns true if an address describes a loopback interface.
func IsLoopback(host string) bool {
	if strings.Contains(host, "localhost") {
		return true
	}

	rawHost, _, err := net.SplitHostPort(host)
	if err != nil {
		rawHost = host
	}
	addr := net.ParseIP(rawHost)
	if addr == nil {
		return false
	}

	return addr.IsLoopback()
}

// verifyPort makes sure that an address string has both a host and a port. If
// there is no port found, the default port is appended. If the address is just
// a port, then we'll assume that the user is using the short cut to specify a
// localhost:port address.
func verifyPort(address string, defaultPort string) string {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		// If the address itself is just an integer, then we'll assume
		// that we're mapping this directly to a localhost:port pair.
		if _, err := strconv.Atoi(address); err == nil {
			return net.JoinHostPort("localhost", address)
		}

		// Otherwise, we'll assume that the address just failed to
		// attach its own port, so we'll use the default port. In the
		// case of IPv6 addresses, if the host is already surrounded by
		// brackets, then we'll avoid using the JoinHostPort function,
		// since it will always add a pair of brackets.
		if strings.HasPrefix(address, "[") {
			return address + ":" + defaultPort
		}
		return net.JoinHostPort(address, defaultPort)
	}

	// In the case that both the host and port are empty, we'll use the
	// default port.
	if host == "" && port == "" {
		return ":" + defaultPort
	}

	return address
}
