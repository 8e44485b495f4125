// Package pcpopt implements the PCP option TLV codec shared across PCP
// opcodes (RFC 6887 §7.3): code (1 byte) | reserved (1 byte) | length
// (2 bytes) | value (length bytes) | zero padding to a 4-byte boundary.
//
// Options preserve construction/wire order: callers that build a request
// with options in a particular order get that same order back out of
// Decode, because some gateways are documented to rely on it.
package pcpopt

import (
	"fmt"

	"github.com/HD-CIPL/portmapper/internal/wire"
)

// Option codes defined by RFC 6887 and its extensions.
const (
	CodeThirdParty       = 1
	CodePreferFailure    = 2
	CodeFilter           = 3
	CodeDescription      = 0x80 // vendor/extension range, used by dynport-style servers
	CodeNextHop          = 0x81
	CodePortReservation  = 0x82
)

// Option is a single decoded PCP option TLV. Exactly one of the typed
// accessor sets applies, selected by Code; unrecognized codes carry their
// raw Payload and nothing else.
type Option struct {
	Code    uint8
	Payload []byte // raw value bytes, as they appeared on (or will appear on) the wire
}

// ThirdParty builds a THIRD_PARTY option carrying internalIP (16 bytes,
// wire form).
func ThirdParty(internalIP []byte) Option {
	return Option{Code: CodeThirdParty, Payload: append([]byte(nil), internalIP...)}
}

// PreferFailure builds a PREFER_FAILURE option, which carries no payload.
func PreferFailure() Option {
	return Option{Code: CodePreferFailure, Payload: nil}
}

// Filter builds a FILTER option.
func Filter(prefixLength uint8, remotePort uint16, remoteIP []byte) Option {
	payload := make([]byte, 1+1+2+16)
	payload[1] = prefixLength
	wire.WriteUint16(payload, 2, remotePort)
	wire.PutBytes(payload, 4, remoteIP)
	return Option{Code: CodeFilter, Payload: payload}
}

// Description builds a DESCRIPTION option carrying a UTF-8 text fragment.
func Description(text string) Option {
	return Option{Code: CodeDescription, Payload: []byte(text)}
}

// NextHop builds a NEXT_HOP option carrying ip (16 bytes, wire form).
func NextHop(ip []byte) Option {
	return Option{Code: CodeNextHop, Payload: append([]byte(nil), ip...)}
}

// PortReservation builds a PORT_RESERVATION option from a bulk list of
// reserved ports, each encoded as a big-endian uint16.
func PortReservation(ports []uint16) Option {
	payload := make([]byte, 2*len(ports))
	for i, p := range ports {
		wire.WriteUint16(payload, 2*i, p)
	}
	return Option{Code: CodePortReservation, Payload: payload}
}

// IsThirdParty, IsPreferFailure, IsFilter, IsDescription, IsNextHop and
// IsPortReservation report whether o carries the corresponding well-known
// code; callers use these before interpreting Payload field-by-field.
func (o Option) IsThirdParty() bool      { return o.Code == CodeThirdParty }
func (o Option) IsPreferFailure() bool   { return o.Code == CodePreferFailure }
func (o Option) IsFilter() bool          { return o.Code == CodeFilter }
func (o Option) IsDescription() bool     { return o.Code == CodeDescription }
func (o Option) IsNextHop() bool         { return o.Code == CodeNextHop }
func (o Option) IsPortReservation() bool { return o.Code == CodePortReservation }

// FilterFields decodes a FILTER option's payload. Callers must first check
// IsFilter.
func (o Option) FilterFields() (prefixLength uint8, remotePort uint16, remoteIP []byte, err error) {
	if len(o.Payload) < 20 {
		return 0, 0, nil, fmt.Errorf("pcpopt: filter payload too short (%d bytes)", len(o.Payload))
	}
	prefixLength = o.Payload[1]
	remotePort, _ = wire.ReadUint16(o.Payload, 2)
	remoteIP = append([]byte(nil), o.Payload[4:20]...)
	return prefixLength, remotePort, remoteIP, nil
}

// Text decodes a DESCRIPTION option's payload as UTF-8 text. Callers must
// first check IsDescription.
func (o Option) Text() string { return string(o.Payload) }

// Encode appends the wire form of opts, in order, to dst and returns the
// extended slice.
func Encode(dst []byte, opts []Option) []byte {
	for _, o := range opts {
		header := [4]byte{o.Code, 0, 0, 0}
		wire.WriteUint16(header[:], 2, uint16(len(o.Payload)))
		dst = append(dst, header[:]...)
		dst = append(dst, o.Payload...)
		dst = append(dst, make([]byte, wire.Pad4(len(o.Payload)))...)
	}
	return dst
}

// Decode parses every option TLV in buf, in wire order, stopping cleanly at
// the end of buf. It never discards an option: codes it does not recognize
// above come back with their raw Payload populated and no typed accessor
// returning true.
func Decode(buf []byte) ([]Option, error) {
	var opts []Option
	off := 0
	for off < len(buf) {
		if off+4 > len(buf) {
			return nil, fmt.Errorf("pcpopt: truncated option header at offset %d", off)
		}
		code := buf[off]
		length, _ := wire.ReadUint16(buf, off+2)
		start := off + 4
		end := start + int(length)
		if end > len(buf) {
			return nil, fmt.Errorf("pcpopt: option length %d at offset %d exceeds buffer", length, off)
		}
		payload, err := wire.ReadBytes(buf, start, int(length))
		if err != nil {
			return nil, err
		}
		opts = append(opts, Option{Code: code, Payload: payload})
		off = end + wire.Pad4(int(length))
	}
	return opts, nil
}
