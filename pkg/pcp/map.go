package pcp

import (
	"fmt"

	"github.com/HD-CIPL/portmapper/internal/wire"
	"github.com/HD-CIPL/portmapper/pkg/addr"
	"github.com/HD-CIPL/portmapper/pkg/pcpopt"
)

// mapDataLength is the size in bytes of the MAP opcode-specific data,
// common to both the request and the response (RFC 6887 §11.2/§11.2.1).
const mapDataLength = 36

// MapRequest is a PCP MAP request: map InternalPort to (optionally)
// SuggestedExternalPort/SuggestedExternalIP.
type MapRequest struct {
	RequestedLifetime     uint32
	ClientIP              []byte // 16-byte wire form
	Nonce                 Nonce
	Protocol              addr.PortType
	InternalPort          uint16
	SuggestedExternalPort uint16 // 0 requests "any"
	SuggestedExternalIP   []byte // 16-byte wire form; wildcard requests "any"
	Options               []pcpopt.Option
}

// NewMapRequest validates its arguments and constructs a MapRequest.
func NewMapRequest(lifetime uint32, clientIP []byte, nonce Nonce, protocol addr.PortType, internalPort, suggestedExternalPort uint16, suggestedExternalIP []byte, opts []pcpopt.Option) (MapRequest, error) {
	if internalPort == 0 {
		return MapRequest{}, fmt.Errorf("pcp: internal port must be in [1,65535], got 0")
	}
	return MapRequest{
		RequestedLifetime:     lifetime,
		ClientIP:              clientIP,
		Nonce:                 nonce,
		Protocol:              protocol,
		InternalPort:          internalPort,
		SuggestedExternalPort: suggestedExternalPort,
		SuggestedExternalIP:   suggestedExternalIP,
		Options:               opts,
	}, nil
}

func dumpMapBody(nonce Nonce, protocol addr.PortType, internalPort, externalPort uint16, externalIP []byte) []byte {
	buf := make([]byte, mapDataLength)
	copy(buf[0:12], nonce[:])
	buf[12] = byte(protocol.IANAProtocol())
	// bytes 13-15 reserved
	wire.WriteUint16(buf, 16, internalPort)
	wire.WriteUint16(buf, 18, externalPort)
	wire.PutBytes(buf, 20, netIPOrNil(externalIP))
	return buf
}

func parseMapBody(buf []byte) (nonce Nonce, protocol addr.PortType, internalPort, externalPort uint16, externalIP []byte, err error) {
	if len(buf) < mapDataLength {
		return nonce, 0, 0, 0, nil, fmt.Errorf("pcp: MAP body truncated (%d bytes)", len(buf))
	}
	copy(nonce[:], buf[0:12])
	protocol, err = addr.ParsePortType(int(buf[12]))
	if err != nil {
		return nonce, 0, 0, 0, nil, err
	}
	internalPort, _ = wire.ReadUint16(buf, 16)
	externalPort, _ = wire.ReadUint16(buf, 18)
	externalIP, err = wire.ReadBytes(buf, 20, 16)
	return nonce, protocol, internalPort, externalPort, externalIP, err
}

// Dump returns the wire form of the request: header, MAP body, then options
// in construction order.
func (r MapRequest) Dump() []byte {
	h := RequestHeader{Opcode: OpMap, RequestedLifetime: r.RequestedLifetime, ClientIP: r.ClientIP}
	buf := h.dump()
	buf = append(buf, dumpMapBody(r.Nonce, r.Protocol, r.InternalPort, r.SuggestedExternalPort, r.SuggestedExternalIP)...)
	return pcpopt.Encode(buf, r.Options)
}

// ParseMapRequest validates and parses a PCP MAP request buffer.
func ParseMapRequest(buf []byte) (MapRequest, error) {
	h, err := parseRequestHeader(buf, OpMap)
	if err != nil {
		return MapRequest{}, err
	}
	body := buf[HeaderLength:]
	if len(body) < mapDataLength {
		return MapRequest{}, fmt.Errorf("pcp: MAP request truncated")
	}
	nonce, protocol, internal, external, extIP, err := parseMapBody(body[:mapDataLength])
	if err != nil {
		return MapRequest{}, err
	}
	if internal == 0 {
		return MapRequest{}, fmt.Errorf("pcp: internal port must be non-zero")
	}
	opts, err := pcpopt.Decode(body[mapDataLength:])
	if err != nil {
		return MapRequest{}, err
	}
	return MapRequest{
		RequestedLifetime:     h.RequestedLifetime,
		ClientIP:              h.ClientIP,
		Nonce:                 nonce,
		Protocol:              protocol,
		InternalPort:          internal,
		SuggestedExternalPort: external,
		SuggestedExternalIP:   extIP,
		Options:                opts,
	}, nil
}

// MapResponse is the gateway's reply to a MapRequest.
type MapResponse struct {
	ResultCode        ResultCode
	Lifetime          uint32
	EpochTime         uint32
	Nonce             Nonce
	Protocol          addr.PortType
	InternalPort      uint16
	ExternalPort      uint16
	ExternalIP        []byte // 16-byte wire form
	Options           []pcpopt.Option
}

// Dump returns the wire form of the response.
func (r MapResponse) Dump() []byte {
	h := ResponseHeader{Opcode: OpMap, ResultCode: r.ResultCode, Lifetime: r.Lifetime, EpochTime: r.EpochTime}
	buf := h.dump()
	buf = append(buf, dumpMapBody(r.Nonce, r.Protocol, r.InternalPort, r.ExternalPort, r.ExternalIP)...)
	return pcpopt.Encode(buf, r.Options)
}

// ParseMapResponse validates and parses a PCP MAP response buffer.
func ParseMapResponse(buf []byte) (MapResponse, error) {
	h, err := parseResponseHeader(buf, OpMap)
	if err != nil {
		return MapResponse{}, err
	}
	body := buf[HeaderLength:]
	if len(body) < mapDataLength {
		return MapResponse{}, fmt.Errorf("pcp: MAP response truncated")
	}
	nonce, protocol, internal, external, extIP, err := parseMapBody(body[:mapDataLength])
	if err != nil {
		return MapResponse{}, err
	}
	opts, err := pcpopt.Decode(body[mapDataLength:])
	if err != nil {
		return MapResponse{}, err
	}
	return MapResponse{
		ResultCode:   h.ResultCode,
		Lifetime:     h.Lifetime,
		EpochTime:    h.EpochTime,
		Nonce:        nonce,
		Protocol:     protocol,
		InternalPort: internal,
		ExternalPort: external,
		ExternalIP:   extIP,
		Options:      opts,
	}, nil
}
