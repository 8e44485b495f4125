package upnpsoap

import (
	"fmt"
	"net"
	"strings"

	"github.com/HD-CIPL/portmapper/pkg/addr"
)

// formatBool encodes a boolean the UPnP way: "1" or "0".
func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// formatIPv4 encodes an IPv4 address as a dotted quad, or the empty string
// for a wildcard/nil address.
func formatIPv4(ip net.IP) string {
	if addr.IsWildcard(ip) {
		return ""
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.String()
}

// formatPortMappingProtocol encodes a PortType for AddPortMapping/
// DeletePortMapping: the literal strings TCP/UDP.
func formatPortMappingProtocol(p addr.PortType) string {
	return p.String()
}

// formatPinholeProtocol encodes a PortType for AddPinhole/GetOutboundPinholeTimeout: the
// IANA protocol number, 6 or 17.
func formatPinholeProtocol(p addr.PortType) string {
	return fmt.Sprintf("%d", p.IANAProtocol())
}

// formatPinholeAddress encodes an IPv6-firewall-profile address field
// (RemoteHost/InternalClient of AddPinhole and friends).
//
// An IPv4-mapped address is always rendered in its compressed mapped form,
// "::ffff:" followed by the low 32 bits as two hex groups (e.g.
// "::ffff:102:304" for 1.2.3.4) — this is a fixed convention for the
// mapped prefix, not a general zero-run compression.
//
// A genuine (non-mapped) IPv6 address is rendered as all eight hextets in
// lowercase, each with leading zeros stripped, joined by colons, with no ::
// compression at all — some IGD:2 firewall-control implementations reject a
// compressed address here.
//
// A nil or wildcard address is rendered as the empty string.
func formatPinholeAddress(ip net.IP) string {
	if addr.IsWildcard(ip) {
		return ""
	}
	wire := addr.ToWire(ip)
	if v4 := ip.To4(); v4 != nil {
		// Wire form is 10 zero bytes, 0xff, 0xff, then the 4 IPv4 bytes.
		g6 := uint16(wire[12])<<8 | uint16(wire[13])
		g7 := uint16(wire[14])<<8 | uint16(wire[15])
		return fmt.Sprintf("::ffff:%x:%x", g6, g7)
	}
	groups := make([]string, 8)
	for i := 0; i < 8; i++ {
		g := uint16(wire[2*i])<<8 | uint16(wire[2*i+1])
		groups[i] = fmt.Sprintf("%x", g)
	}
	return strings.Join(groups, ":")
}

// escapeXMLText XML-escapes free text placed inside an element body (used
// for NewPortMappingDescription and similar fields).
func escapeXMLText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&apos;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
