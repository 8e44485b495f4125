// Package addr implements the address and port-type value types shared by
// the NAT-PMP, PCP and UPnP message types: a 16-byte-on-the-wire IP address
// (IPv4 is always carried as an IPv4-mapped IPv6 address) and the TCP/UDP
// port-type enum with its IANA protocol numbers.
package addr

import (
	"fmt"
	"net"
)

// PortType is the mapped protocol, TCP or UDP.
type PortType int

const (
	TCP PortType = iota
	UDP
)

// IANAProtocol returns the IP-header protocol number for p: 6 for TCP, 17
// for UDP.
func (p PortType) IANAProtocol() int {
	if p == TCP {
		return 6
	}
	return 17
}

func (p PortType) String() string {
	if p == TCP {
		return "TCP"
	}
	return "UDP"
}

// ParsePortType maps an IANA protocol number back to a PortType.
func ParsePortType(proto int) (PortType, error) {
	switch proto {
	case 6:
		return TCP, nil
	case 17:
		return UDP, nil
	default:
		return 0, fmt.Errorf("addr: unsupported IANA protocol number %d", proto)
	}
}

// IPv4WildcardMapped is the wire form of the IPv4 wildcard address,
// ::ffff:0:0.
var IPv4WildcardMapped = net.IPv4(0, 0, 0, 0).To16()

// IPv6Wildcard is the wire form of the IPv6 wildcard address, ::.
var IPv6Wildcard = net.IPv6unspecified

// ToWire normalizes ip to its 16-byte on-the-wire form. An IPv4 address (4
// bytes, or a 16-byte IPv4-in-IPv6 form) is mapped to ::ffff:a.b.c.d, so
// 0.0.0.0 becomes ::ffff:0:0; a nil ip maps to the IPv6 wildcard ::. ToWire never returns a
// slice shorter than 16 bytes.
func ToWire(ip net.IP) []byte {
	if len(ip) == 0 {
		return append([]byte(nil), IPv6Wildcard...)
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.To16()
	}
	v16 := ip.To16()
	if v16 == nil {
		return append([]byte(nil), IPv6Wildcard...)
	}
	return append([]byte(nil), v16...)
}

// FromWire parses a 16-byte on-the-wire address back into a net.IP. If the
// address carries the IPv4-mapped-IPv6 prefix (80 bits of zero followed by
// 16 bits of one), the returned IP is in 4-byte form so callers can tell the
// two families apart with len().
func FromWire(buf []byte) (net.IP, error) {
	if len(buf) != 16 {
		return nil, fmt.Errorf("addr: wire address must be 16 bytes, got %d", len(buf))
	}
	ip := make(net.IP, 16)
	copy(ip, buf)
	if v4 := ip.To4(); v4 != nil {
		return v4, nil
	}
	return ip, nil
}

// IsWildcard reports whether ip, in its wire form, is the all-zero (IPv6) or
// IPv4-mapped-all-zero (IPv4) wildcard address.
func IsWildcard(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.Equal(net.IPv4zero)
	}
	return ip.Equal(net.IPv6unspecified)
}
