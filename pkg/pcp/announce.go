package pcp

import (
	"fmt"

	"github.com/HD-CIPL/portmapper/pkg/pcpopt"
)

// AnnounceRequest is a PCP ANNOUNCE request: no opcode-specific body, used
// during discovery to probe whether a gateway speaks PCP at all.
type AnnounceRequest struct {
	ClientIP []byte
	Options  []pcpopt.Option
}

// Dump returns the wire form of the request.
func (r AnnounceRequest) Dump() []byte {
	h := RequestHeader{Opcode: OpAnnounce, RequestedLifetime: 0, ClientIP: r.ClientIP}
	return pcpopt.Encode(h.dump(), r.Options)
}

// ParseAnnounceRequest validates and parses a PCP ANNOUNCE request buffer.
func ParseAnnounceRequest(buf []byte) (AnnounceRequest, error) {
	h, err := parseRequestHeader(buf, OpAnnounce)
	if err != nil {
		return AnnounceRequest{}, err
	}
	opts, err := pcpopt.Decode(buf[HeaderLength:])
	if err != nil {
		return AnnounceRequest{}, err
	}
	return AnnounceRequest{ClientIP: h.ClientIP, Options: opts}, nil
}

// AnnounceResponse is the gateway's reply to an AnnounceRequest: header and
// options only, no opcode-specific body.
type AnnounceResponse struct {
	ResultCode ResultCode
	Lifetime   uint32
	EpochTime  uint32
	Options    []pcpopt.Option
}

// Dump returns the wire form of the response.
func (r AnnounceResponse) Dump() []byte {
	h := ResponseHeader{Opcode: OpAnnounce, ResultCode: r.ResultCode, Lifetime: r.Lifetime, EpochTime: r.EpochTime}
	return pcpopt.Encode(h.dump(), r.Options)
}

// ParseAnnounceResponse validates and parses a PCP ANNOUNCE response buffer.
func ParseAnnounceResponse(buf []byte) (AnnounceResponse, error) {
	h, err := parseResponseHeader(buf, OpAnnounce)
	if err != nil {
		return AnnounceResponse{}, err
	}
	opts, err := pcpopt.Decode(buf[HeaderLength:])
	if err != nil {
		return AnnounceResponse{}, err
	}
	return AnnounceResponse{ResultCode: h.ResultCode, Lifetime: h.Lifetime, EpochTime: h.EpochTime, Options: opts}, nil
}

// PeekOpcode reads the opcode (with the response bit masked off) from a raw
// PCP buffer without fully parsing it, used by the retry controller's
// response-matching logic.
func PeekOpcode(buf []byte) (Opcode, error) {
	if len(buf) < 2 {
		return 0, fmt.Errorf("pcp: buffer too short to carry an opcode")
	}
	return Opcode(buf[1] &^ responseBit), nil
}

// PeekIsResponse reports whether buf's R-bit is set.
func PeekIsResponse(buf []byte) bool {
	return len(buf) >= 2 && buf[1]&responseBit != 0
}
