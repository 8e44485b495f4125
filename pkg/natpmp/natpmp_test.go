package natpmp

import (
	"net"
	"testing"

	"github.com/HD-CIPL/portmapper/pkg/addr"
)

func TestExternalAddressRequestRoundTrip(t *testing.T) {
	req := ExternalAddressRequest{}
	got, err := ParseExternalAddressRequest(req.Dump())
	if err != nil {
		t.Fatalf("ParseExternalAddressRequest: %v", err)
	}
	if got != req {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestExternalAddressResponseRoundTrip(t *testing.T) {
	resp := ExternalAddressResponse{ResultCode: ResultSuccess, SecondsSinceEpoch: 12345, ExternalIP: net.IPv4(203, 0, 113, 1)}
	buf := resp.Dump()
	if len(buf) != 12 {
		t.Fatalf("Dump length = %d, want 12", len(buf))
	}
	got, err := ParseExternalAddressResponse(buf)
	if err != nil {
		t.Fatalf("ParseExternalAddressResponse: %v", err)
	}
	if got.ResultCode != resp.ResultCode || got.SecondsSinceEpoch != resp.SecondsSinceEpoch || !got.ExternalIP.Equal(resp.ExternalIP) {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestMapRequestRoundTrip(t *testing.T) {
	for _, proto := range []addr.PortType{addr.TCP, addr.UDP} {
		req, err := NewMapRequest(proto, 1234, 5678, 3600)
		if err != nil {
			t.Fatalf("NewMapRequest(%v): %v", proto, err)
		}
		buf := req.Dump()
		if len(buf) != 12 {
			t.Fatalf("Dump length = %d, want 12", len(buf))
		}
		got, err := ParseMapRequest(buf)
		if err != nil {
			t.Fatalf("ParseMapRequest: %v", err)
		}
		if got != req {
			t.Errorf("round trip mismatch for %v: %+v", proto, got)
		}
	}
}

func TestMapResponseRoundTrip(t *testing.T) {
	resp := MapResponse{
		Protocol:          addr.UDP,
		ResultCode:        ResultSuccess,
		SecondsSinceEpoch: 42,
		InternalPort:      1234,
		ExternalPort:      5678,
		Lifetime:          3600,
	}
	buf := resp.Dump()
	if len(buf) != 16 {
		t.Fatalf("Dump length = %d, want 16", len(buf))
	}
	got, err := ParseMapResponse(buf)
	if err != nil {
		t.Fatalf("ParseMapResponse: %v", err)
	}
	if got != resp {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestNewMapRequestRejectsZeroInternalPort(t *testing.T) {
	if _, err := NewMapRequest(addr.TCP, 0, 1, 3600); err == nil {
		t.Error("NewMapRequest should reject internalPort == 0 (spec §8 validation)")
	}
}

func TestRequestOpcodeMatchesMapRequest(t *testing.T) {
	req, err := NewMapRequest(addr.TCP, 1234, 0, 3600)
	if err != nil {
		t.Fatalf("NewMapRequest: %v", err)
	}
	op, err := RequestOpcode(req.Dump())
	if err != nil {
		t.Fatalf("RequestOpcode: %v", err)
	}
	if op != OpMapTCP {
		t.Errorf("RequestOpcode = %v, want OpMapTCP", op)
	}
}

func TestFlippingOpcodeByteChangesParseOutcome(t *testing.T) {
	req, _ := NewMapRequest(addr.UDP, 1234, 0, 3600)
	buf := req.Dump()
	buf[1] = 0x7f // not a valid request opcode
	if _, err := ParseMapRequest(buf); err == nil {
		t.Error("flipping the opcode byte to an invalid value should fail to parse")
	}
}

func TestParseMapResponseRejectsRequestOpcode(t *testing.T) {
	req, _ := NewMapRequest(addr.TCP, 1234, 0, 3600)
	buf := make([]byte, 16)
	copy(buf, req.Dump())
	if _, err := ParseMapResponse(buf); err == nil {
		t.Error("ParseMapResponse should reject a buffer carrying the request opcode (no response bit set)")
	}
}

func TestParseRejectsWrongLength(t *testing.T) {
	if _, err := ParseMapRequest(make([]byte, 11)); err == nil {
		t.Error("ParseMapRequest should reject a too-short buffer")
	}
	if _, err := ParseMapResponse(make([]byte, 15)); err == nil {
		t.Error("ParseMapResponse should reject a too-short buffer")
	}
	if _, err := ParseExternalAddressResponse(make([]byte, 11)); err == nil {
		t.Error("ParseExternalAddressResponse should reject a too-short buffer")
	}
}
