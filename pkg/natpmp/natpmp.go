// Package natpmp implements the NAT-PMP (RFC 6886) request and response
// message types: wire-exact encode (Dump) and decode (Parse), with
// self-validating constructors. Message values are immutable once built.
package natpmp

import (
	"fmt"
	"net"

	"github.com/HD-CIPL/portmapper/internal/wire"
	"github.com/HD-CIPL/portmapper/pkg/addr"
)

// ProtocolVersion is the only NAT-PMP version this client speaks.
const ProtocolVersion = 0

// Opcode identifies the NAT-PMP operation. Response opcodes set bit 0x80 on
// top of the request opcode they answer.
type Opcode uint8

const (
	OpExternalAddress Opcode = 0
	OpMapUDP          Opcode = 1
	OpMapTCP          Opcode = 2

	responseBit = 0x80
)

func opcodeForProtocol(p addr.PortType) Opcode {
	if p == addr.TCP {
		return OpMapTCP
	}
	return OpMapUDP
}

// Result codes defined by RFC 6886 §3.5.
const (
	ResultSuccess                = 0
	ResultUnsupportedVersion     = 1
	ResultNotAuthorized          = 2
	ResultNetworkFailure         = 3
	ResultOutOfResources         = 4
	ResultUnsupportedOpcode      = 5
)

// ExternalAddressRequest asks the gateway for its external IPv4 address.
type ExternalAddressRequest struct{}

// Dump returns the 2-byte wire form of the request.
func (ExternalAddressRequest) Dump() []byte {
	return []byte{ProtocolVersion, byte(OpExternalAddress)}
}

// ParseExternalAddressRequest validates and parses a 2-byte request buffer.
func ParseExternalAddressRequest(buf []byte) (ExternalAddressRequest, error) {
	if len(buf) != 2 {
		return ExternalAddressRequest{}, fmt.Errorf("natpmp: external address request must be 2 bytes, got %d", len(buf))
	}
	if buf[0] != ProtocolVersion {
		return ExternalAddressRequest{}, fmt.Errorf("natpmp: unsupported version %d", buf[0])
	}
	if buf[1] != byte(OpExternalAddress) {
		return ExternalAddressRequest{}, fmt.Errorf("natpmp: unexpected opcode %d, want %d", buf[1], OpExternalAddress)
	}
	return ExternalAddressRequest{}, nil
}

// ExternalAddressResponse is the gateway's reply to ExternalAddressRequest.
type ExternalAddressResponse struct {
	ResultCode        uint16
	SecondsSinceEpoch uint32
	ExternalIP        net.IP // 4-byte IPv4
}

// Dump returns the 12-byte wire form of the response.
func (r ExternalAddressResponse) Dump() []byte {
	buf := make([]byte, 12)
	buf[0] = ProtocolVersion
	buf[1] = byte(OpExternalAddress) | responseBit
	wire.WriteUint16(buf, 2, r.ResultCode)
	wire.WriteUint32(buf, 4, r.SecondsSinceEpoch)
	ip4 := r.ExternalIP.To4()
	if ip4 == nil {
		ip4 = net.IPv4zero.To4()
	}
	wire.PutBytes(buf, 8, ip4)
	return buf
}

// ParseExternalAddressResponse validates and parses a 12-byte response
// buffer.
func ParseExternalAddressResponse(buf []byte) (ExternalAddressResponse, error) {
	if len(buf) != 12 {
		return ExternalAddressResponse{}, fmt.Errorf("natpmp: external address response must be 12 bytes, got %d", len(buf))
	}
	if buf[0] != ProtocolVersion {
		return ExternalAddressResponse{}, fmt.Errorf("natpmp: unsupported version %d", buf[0])
	}
	if buf[1] != byte(OpExternalAddress)|responseBit {
		return ExternalAddressResponse{}, fmt.Errorf("natpmp: unexpected opcode %d", buf[1])
	}
	result, _ := wire.ReadUint16(buf, 2)
	secs, _ := wire.ReadUint32(buf, 4)
	ip := make(net.IP, 4)
	copy(ip, buf[8:12])
	return ExternalAddressResponse{ResultCode: result, SecondsSinceEpoch: secs, ExternalIP: ip}, nil
}

// MapRequest asks the gateway to map internalPort to externalPort
// (0 = gateway's choice) for lifetime seconds.
type MapRequest struct {
	Protocol     addr.PortType
	InternalPort uint16
	ExternalPort uint16 // suggested; 0 means "gateway's choice"
	Lifetime     uint32
}

// NewMapRequest validates its arguments and builds a MapRequest.
// InternalPort must be in [1,65535]; ExternalPort may be 0 (wildcard,
// meaning "any port") or in [1,65535].
func NewMapRequest(protocol addr.PortType, internalPort, externalPort uint16, lifetime uint32) (MapRequest, error) {
	if internalPort == 0 {
		return MapRequest{}, fmt.Errorf("natpmp: internal port must be in [1,65535], got 0")
	}
	return MapRequest{Protocol: protocol, InternalPort: internalPort, ExternalPort: externalPort, Lifetime: lifetime}, nil
}

// Dump returns the 12-byte wire form of the request.
func (r MapRequest) Dump() []byte {
	buf := make([]byte, 12)
	buf[0] = ProtocolVersion
	buf[1] = byte(opcodeForProtocol(r.Protocol))
	// bytes 2-3 reserved, left zero
	wire.WriteUint16(buf, 4, r.InternalPort)
	wire.WriteUint16(buf, 6, r.ExternalPort)
	wire.WriteUint32(buf, 8, r.Lifetime)
	return buf
}

// ParseMapRequest validates and parses a 12-byte request buffer.
func ParseMapRequest(buf []byte) (MapRequest, error) {
	if len(buf) != 12 {
		return MapRequest{}, fmt.Errorf("natpmp: map request must be 12 bytes, got %d", len(buf))
	}
	if buf[0] != ProtocolVersion {
		return MapRequest{}, fmt.Errorf("natpmp: unsupported version %d", buf[0])
	}
	var proto addr.PortType
	switch Opcode(buf[1]) {
	case OpMapUDP:
		proto = addr.UDP
	case OpMapTCP:
		proto = addr.TCP
	default:
		return MapRequest{}, fmt.Errorf("natpmp: unexpected opcode %d", buf[1])
	}
	internal, _ := wire.ReadUint16(buf, 4)
	external, _ := wire.ReadUint16(buf, 6)
	lifetime, _ := wire.ReadUint32(buf, 8)
	if internal == 0 {
		return MapRequest{}, fmt.Errorf("natpmp: internal port must be non-zero")
	}
	return MapRequest{Protocol: proto, InternalPort: internal, ExternalPort: external, Lifetime: lifetime}, nil
}

// MapResponse is the gateway's reply to a MapRequest.
type MapResponse struct {
	Protocol          addr.PortType
	ResultCode        uint16
	SecondsSinceEpoch uint32
	InternalPort      uint16
	ExternalPort      uint16
	Lifetime          uint32
}

// Dump returns the 16-byte wire form of the response.
func (r MapResponse) Dump() []byte {
	buf := make([]byte, 16)
	buf[0] = ProtocolVersion
	buf[1] = byte(opcodeForProtocol(r.Protocol)) | responseBit
	wire.WriteUint16(buf, 2, r.ResultCode)
	wire.WriteUint32(buf, 4, r.SecondsSinceEpoch)
	wire.WriteUint16(buf, 8, r.InternalPort)
	wire.WriteUint16(buf, 10, r.ExternalPort)
	wire.WriteUint32(buf, 12, r.Lifetime)
	return buf
}

// ParseMapResponse validates and parses a 16-byte response buffer.
func ParseMapResponse(buf []byte) (MapResponse, error) {
	if len(buf) != 16 {
		return MapResponse{}, fmt.Errorf("natpmp: map response must be 16 bytes, got %d", len(buf))
	}
	if buf[0] != ProtocolVersion {
		return MapResponse{}, fmt.Errorf("natpmp: unsupported version %d", buf[0])
	}
	var proto addr.PortType
	switch Opcode(buf[1] &^ responseBit) {
	case OpMapUDP:
		proto = addr.UDP
	case OpMapTCP:
		proto = addr.TCP
	default:
		return MapResponse{}, fmt.Errorf("natpmp: unexpected opcode %d", buf[1])
	}
	if buf[1]&responseBit == 0 {
		return MapResponse{}, fmt.Errorf("natpmp: expected response opcode, got request opcode %d", buf[1])
	}
	result, _ := wire.ReadUint16(buf, 2)
	secs, _ := wire.ReadUint32(buf, 4)
	internal, _ := wire.ReadUint16(buf, 8)
	external, _ := wire.ReadUint16(buf, 10)
	lifetime, _ := wire.ReadUint32(buf, 12)
	return MapResponse{
		Protocol:          proto,
		ResultCode:        result,
		SecondsSinceEpoch: secs,
		InternalPort:      internal,
		ExternalPort:      external,
		Lifetime:          lifetime,
	}, nil
}

// RequestOpcode returns the request opcode (without the response bit) that
// buf's first two bytes claim to carry, used by the retry controller to
// match a response to its request without fully parsing the body.
func RequestOpcode(buf []byte) (Opcode, error) {
	if len(buf) < 2 {
		return 0, fmt.Errorf("natpmp: buffer too short to carry an opcode")
	}
	return Opcode(buf[1] &^ responseBit), nil
}
