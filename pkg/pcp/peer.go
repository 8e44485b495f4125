package pcp

import (
	"fmt"

	"github.com/HD-CIPL/portmapper/internal/wire"
	"github.com/HD-CIPL/portmapper/pkg/addr"
	"github.com/HD-CIPL/portmapper/pkg/pcpopt"
)

// peerDataLength is the size in bytes of the PEER opcode-specific data: the
// MAP fields plus a remote peer port/reserved/IP (RFC 6887 §11.3/§11.3.1).
const peerDataLength = mapDataLength + 20

// PeerRequest is a PCP PEER request: like MAP, but pins the mapping to a
// specific remote peer (address+port).
type PeerRequest struct {
	RequestedLifetime     uint32
	ClientIP              []byte
	Nonce                 Nonce
	Protocol              addr.PortType
	InternalPort          uint16
	SuggestedExternalPort uint16
	SuggestedExternalIP   []byte
	RemotePeerPort        uint16
	RemotePeerIP          []byte // 16-byte wire form
	Options               []pcpopt.Option
}

// NewPeerRequest validates its arguments and constructs a PeerRequest.
func NewPeerRequest(lifetime uint32, clientIP []byte, nonce Nonce, protocol addr.PortType, internalPort, suggestedExternalPort uint16, suggestedExternalIP []byte, remotePeerPort uint16, remotePeerIP []byte, opts []pcpopt.Option) (PeerRequest, error) {
	if internalPort == 0 {
		return PeerRequest{}, fmt.Errorf("pcp: internal port must be in [1,65535], got 0")
	}
	if remotePeerPort == 0 {
		return PeerRequest{}, fmt.Errorf("pcp: remote peer port must be in [1,65535], got 0")
	}
	return PeerRequest{
		RequestedLifetime:     lifetime,
		ClientIP:              clientIP,
		Nonce:                 nonce,
		Protocol:              protocol,
		InternalPort:          internalPort,
		SuggestedExternalPort: suggestedExternalPort,
		SuggestedExternalIP:   suggestedExternalIP,
		RemotePeerPort:        remotePeerPort,
		RemotePeerIP:          remotePeerIP,
		Options:               opts,
	}, nil
}

func dumpPeerBody(nonce Nonce, protocol addr.PortType, internalPort, externalPort uint16, externalIP []byte, remotePort uint16, remoteIP []byte) []byte {
	buf := make([]byte, peerDataLength)
	copy(buf, dumpMapBody(nonce, protocol, internalPort, externalPort, externalIP))
	wire.WriteUint16(buf, mapDataLength, remotePort)
	// next 2 bytes reserved
	wire.PutBytes(buf, mapDataLength+4, netIPOrNil(remoteIP))
	return buf
}

func parsePeerBody(buf []byte) (nonce Nonce, protocol addr.PortType, internalPort, externalPort uint16, externalIP []byte, remotePort uint16, remoteIP []byte, err error) {
	if len(buf) < peerDataLength {
		err = fmt.Errorf("pcp: PEER body truncated (%d bytes)", len(buf))
		return
	}
	nonce, protocol, internalPort, externalPort, externalIP, err = parseMapBody(buf[:mapDataLength])
	if err != nil {
		return
	}
	remotePort, _ = wire.ReadUint16(buf, mapDataLength)
	remoteIP, err = wire.ReadBytes(buf, mapDataLength+4, 16)
	return
}

// Dump returns the wire form of the request.
func (r PeerRequest) Dump() []byte {
	h := RequestHeader{Opcode: OpPeer, RequestedLifetime: r.RequestedLifetime, ClientIP: r.ClientIP}
	buf := h.dump()
	buf = append(buf, dumpPeerBody(r.Nonce, r.Protocol, r.InternalPort, r.SuggestedExternalPort, r.SuggestedExternalIP, r.RemotePeerPort, r.RemotePeerIP)...)
	return pcpopt.Encode(buf, r.Options)
}

// ParsePeerRequest validates and parses a PCP PEER request buffer.
func ParsePeerRequest(buf []byte) (PeerRequest, error) {
	h, err := parseRequestHeader(buf, OpPeer)
	if err != nil {
		return PeerRequest{}, err
	}
	body := buf[HeaderLength:]
	if len(body) < peerDataLength {
		return PeerRequest{}, fmt.Errorf("pcp: PEER request truncated")
	}
	nonce, protocol, internal, external, extIP, remotePort, remoteIP, err := parsePeerBody(body[:peerDataLength])
	if err != nil {
		return PeerRequest{}, err
	}
	if internal == 0 {
		return PeerRequest{}, fmt.Errorf("pcp: internal port must be non-zero")
	}
	if remotePort == 0 {
		return PeerRequest{}, fmt.Errorf("pcp: remote peer port must be non-zero")
	}
	opts, err := pcpopt.Decode(body[peerDataLength:])
	if err != nil {
		return PeerRequest{}, err
	}
	return PeerRequest{
		RequestedLifetime:     h.RequestedLifetime,
		ClientIP:              h.ClientIP,
		Nonce:                 nonce,
		Protocol:              protocol,
		InternalPort:          internal,
		SuggestedExternalPort: external,
		SuggestedExternalIP:   extIP,
		RemotePeerPort:        remotePort,
		RemotePeerIP:          remoteIP,
		Options:               opts,
	}, nil
}

// PeerResponse is the gateway's reply to a PeerRequest.
type PeerResponse struct {
	ResultCode     ResultCode
	Lifetime       uint32
	EpochTime      uint32
	Nonce          Nonce
	Protocol       addr.PortType
	InternalPort   uint16
	ExternalPort   uint16
	ExternalIP     []byte
	RemotePeerPort uint16
	RemotePeerIP   []byte
	Options        []pcpopt.Option
}

// Dump returns the wire form of the response.
func (r PeerResponse) Dump() []byte {
	h := ResponseHeader{Opcode: OpPeer, ResultCode: r.ResultCode, Lifetime: r.Lifetime, EpochTime: r.EpochTime}
	buf := h.dump()
	buf = append(buf, dumpPeerBody(r.Nonce, r.Protocol, r.InternalPort, r.ExternalPort, r.ExternalIP, r.RemotePeerPort, r.RemotePeerIP)...)
	return pcpopt.Encode(buf, r.Options)
}

// ParsePeerResponse validates and parses a PCP PEER response buffer.
func ParsePeerResponse(buf []byte) (PeerResponse, error) {
	h, err := parseResponseHeader(buf, OpPeer)
	if err != nil {
		return PeerResponse{}, err
	}
	body := buf[HeaderLength:]
	if len(body) < peerDataLength {
		return PeerResponse{}, fmt.Errorf("pcp: PEER response truncated")
	}
	nonce, protocol, internal, external, extIP, remotePort, remoteIP, err := parsePeerBody(body[:peerDataLength])
	if err != nil {
		return PeerResponse{}, err
	}
	opts, err := pcpopt.Decode(body[peerDataLength:])
	if err != nil {
		return PeerResponse{}, err
	}
	return PeerResponse{
		ResultCode:     h.ResultCode,
		Lifetime:       h.Lifetime,
		EpochTime:      h.EpochTime,
		Nonce:          nonce,
		Protocol:       protocol,
		InternalPort:   internal,
		ExternalPort:   external,
		ExternalIP:     extIP,
		RemotePeerPort: remotePort,
		RemotePeerIP:   remoteIP,
		Options:        opts,
	}, nil
}
