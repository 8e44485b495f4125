// Package pcp implements the Port Control Protocol (RFC 6887) request and
// response message types for the MAP, PEER and ANNOUNCE opcodes: a common
// 24-byte header, an opcode-specific body, and a trailing PCP option list
// (pkg/pcpopt). Every type is immutable and self-validating, constructed
// either from fields (NewXxxRequest) or parsed from a byte buffer (ParseXxx).
package pcp

import (
	"fmt"

	"github.com/HD-CIPL/portmapper/internal/wire"
	"github.com/HD-CIPL/portmapper/pkg/addr"
)

// ProtocolVersion is the PCP version this client speaks.
const ProtocolVersion = 2

// HeaderLength is the size in bytes of the common PCP header (request or
// response).
const HeaderLength = 24

// MaxPacketLength is the maximum size of a PCP packet, per RFC 6887 §7.
const MaxPacketLength = 1100

// Opcode identifies the PCP operation.
type Opcode uint8

const (
	OpAnnounce Opcode = 0
	OpMap      Opcode = 1
	OpPeer     Opcode = 2
)

func (o Opcode) String() string {
	switch o {
	case OpAnnounce:
		return "ANNOUNCE"
	case OpMap:
		return "MAP"
	case OpPeer:
		return "PEER"
	default:
		return fmt.Sprintf("Opcode(%d)", uint8(o))
	}
}

const responseBit = 0x80

// ResultCode is a PCP response result code, RFC 6887 §7.4.
type ResultCode uint8

const (
	ResultSuccess                  ResultCode = 0
	ResultUnsuppVersion            ResultCode = 1
	ResultNotAuthorized            ResultCode = 2
	ResultMalformedRequest         ResultCode = 3
	ResultUnsuppOpcode             ResultCode = 4
	ResultUnsuppOption             ResultCode = 5
	ResultMalformedOption          ResultCode = 6
	ResultNetworkFailure           ResultCode = 7
	ResultNoResources              ResultCode = 8
	ResultUnsuppProtocol           ResultCode = 9
	ResultUserExQuota              ResultCode = 10
	ResultCannotProvideExternal    ResultCode = 11
	ResultAddressMismatch          ResultCode = 12
	ResultExcessiveRemotePeers     ResultCode = 13
)

func (r ResultCode) String() string {
	switch r {
	case ResultSuccess:
		return "SUCCESS"
	case ResultUnsuppVersion:
		return "UNSUPP_VERSION"
	case ResultNotAuthorized:
		return "NOT_AUTHORIZED"
	case ResultMalformedRequest:
		return "MALFORMED_REQUEST"
	case ResultUnsuppOpcode:
		return "UNSUPP_OPCODE"
	case ResultUnsuppOption:
		return "UNSUPP_OPTION"
	case ResultMalformedOption:
		return "MALFORMED_OPTION"
	case ResultNetworkFailure:
		return "NETWORK_FAILURE"
	case ResultNoResources:
		return "NO_RESOURCES"
	case ResultUnsuppProtocol:
		return "UNSUPP_PROTOCOL"
	case ResultUserExQuota:
		return "USER_EX_QUOTA"
	case ResultCannotProvideExternal:
		return "CANNOT_PROVIDE_EXTERNAL"
	case ResultAddressMismatch:
		return "ADDRESS_MISMATCH"
	case ResultExcessiveRemotePeers:
		return "EXCESSIVE_REMOTE_PEERS"
	default:
		return fmt.Sprintf("ResultCode(%d)", uint8(r))
	}
}

// Retryable reports whether a session should retry the operation that
// produced r rather than surfacing it as a permanent failure (spec §7: only
// NETWORK_FAILURE and NO_RESOURCES are retried by the session layer).
func (r ResultCode) Retryable() bool {
	return r == ResultNetworkFailure || r == ResultNoResources
}

// RequestHeader is the common 24-byte PCP request header.
type RequestHeader struct {
	Opcode            Opcode
	RequestedLifetime uint32
	ClientIP          []byte // 16-byte wire form
}

func (h RequestHeader) dump() []byte {
	buf := make([]byte, HeaderLength)
	buf[0] = ProtocolVersion
	buf[1] = byte(h.Opcode) // R-bit 0 for requests
	// bytes 2-3 reserved
	wire.WriteUint32(buf, 4, h.RequestedLifetime)
	wire.PutBytes(buf, 8, addr.ToWire(netIPOrNil(h.ClientIP)))
	return buf
}

func parseRequestHeader(buf []byte, want Opcode) (RequestHeader, error) {
	if len(buf) < HeaderLength {
		return RequestHeader{}, fmt.Errorf("pcp: request header truncated (%d bytes)", len(buf))
	}
	if buf[0] != ProtocolVersion {
		return RequestHeader{}, fmt.Errorf("pcp: unsupported version %d", buf[0])
	}
	if buf[1]&responseBit != 0 {
		return RequestHeader{}, fmt.Errorf("pcp: R-bit set on request")
	}
	op := Opcode(buf[1] &^ responseBit)
	if op != want {
		return RequestHeader{}, fmt.Errorf("pcp: unexpected opcode %s, want %s", op, want)
	}
	lifetime, _ := wire.ReadUint32(buf, 4)
	clientIP, err := wire.ReadBytes(buf, 8, 16)
	if err != nil {
		return RequestHeader{}, err
	}
	return RequestHeader{Opcode: op, RequestedLifetime: lifetime, ClientIP: clientIP}, nil
}

// ResponseHeader is the common 24-byte PCP response header.
type ResponseHeader struct {
	Opcode     Opcode
	ResultCode ResultCode
	Lifetime   uint32
	EpochTime  uint32
}

func (h ResponseHeader) dump() []byte {
	buf := make([]byte, HeaderLength)
	buf[0] = ProtocolVersion
	buf[1] = byte(h.Opcode) | responseBit
	buf[2] = 0 // reserved
	buf[3] = byte(h.ResultCode)
	wire.WriteUint32(buf, 4, h.Lifetime)
	wire.WriteUint32(buf, 8, h.EpochTime)
	// bytes 12-23 reserved, left zero
	return buf
}

func parseResponseHeader(buf []byte, want Opcode) (ResponseHeader, error) {
	if len(buf) < HeaderLength {
		return ResponseHeader{}, fmt.Errorf("pcp: response header truncated (%d bytes)", len(buf))
	}
	if len(buf) > MaxPacketLength {
		return ResponseHeader{}, fmt.Errorf("pcp: response exceeds maximum PCP packet length (%d > %d)", len(buf), MaxPacketLength)
	}
	if buf[0] != ProtocolVersion {
		return ResponseHeader{}, fmt.Errorf("pcp: unsupported version %d", buf[0])
	}
	if buf[1]&responseBit == 0 {
		return ResponseHeader{}, fmt.Errorf("pcp: R-bit clear on response")
	}
	op := Opcode(buf[1] &^ responseBit)
	if op != want {
		return ResponseHeader{}, fmt.Errorf("pcp: unexpected opcode %s, want %s", op, want)
	}
	result := ResultCode(buf[3])
	lifetime, _ := wire.ReadUint32(buf, 4)
	epoch, _ := wire.ReadUint32(buf, 8)
	return ResponseHeader{Opcode: op, ResultCode: result, Lifetime: lifetime, EpochTime: epoch}, nil
}

func netIPOrNil(b []byte) []byte {
	if len(b) == 0 {
		return addr.IPv6Wildcard
	}
	return b
}
