package pcp

import (
	"bytes"
	"testing"

	"github.com/HD-CIPL/portmapper/pkg/addr"
	"github.com/HD-CIPL/portmapper/pkg/pcpopt"
)

func testNonce() Nonce {
	var n Nonce
	for i := range n {
		n[i] = byte(i)
	}
	return n
}

func TestAnnounceRoundTrip(t *testing.T) {
	req := AnnounceRequest{ClientIP: addr.ToWire(nil)}
	gotReq, err := ParseAnnounceRequest(req.Dump())
	if err != nil {
		t.Fatalf("ParseAnnounceRequest: %v", err)
	}
	if !bytes.Equal(gotReq.ClientIP, req.ClientIP) {
		t.Errorf("request round trip mismatch: %+v", gotReq)
	}

	resp := AnnounceResponse{ResultCode: ResultSuccess, Lifetime: 0, EpochTime: 100}
	gotResp, err := ParseAnnounceResponse(resp.Dump())
	if err != nil {
		t.Fatalf("ParseAnnounceResponse: %v", err)
	}
	if gotResp.ResultCode != resp.ResultCode || gotResp.EpochTime != resp.EpochTime {
		t.Errorf("response round trip mismatch: %+v", gotResp)
	}
}

func TestPeekOpcodeAndIsResponse(t *testing.T) {
	req := AnnounceRequest{ClientIP: addr.ToWire(nil)}
	op, err := PeekOpcode(req.Dump())
	if err != nil {
		t.Fatalf("PeekOpcode: %v", err)
	}
	if op != OpAnnounce {
		t.Errorf("PeekOpcode(request) = %v, want OpAnnounce", op)
	}
	if PeekIsResponse(req.Dump()) {
		t.Error("PeekIsResponse(request) = true")
	}

	resp := AnnounceResponse{ResultCode: ResultSuccess}
	if !PeekIsResponse(resp.Dump()) {
		t.Error("PeekIsResponse(response) = false")
	}
}

func TestMapRequestResponseRoundTrip(t *testing.T) {
	nonce := testNonce()
	req, err := NewMapRequest(3600, addr.ToWire(nil), nonce, addr.TCP, 1234, 0, addr.ToWire(addr.IPv6Wildcard), []pcpopt.Option{pcpopt.PreferFailure()})
	if err != nil {
		t.Fatalf("NewMapRequest: %v", err)
	}
	got, err := ParseMapRequest(req.Dump())
	if err != nil {
		t.Fatalf("ParseMapRequest: %v", err)
	}
	if got.Nonce != nonce || got.InternalPort != 1234 || got.Protocol != addr.TCP {
		t.Errorf("request round trip mismatch: %+v", got)
	}
	if len(got.Options) != 1 || !got.Options[0].IsPreferFailure() {
		t.Errorf("request options not preserved: %+v", got.Options)
	}

	resp := MapResponse{
		ResultCode:   ResultSuccess,
		Lifetime:     3600,
		Nonce:        nonce,
		Protocol:     addr.UDP,
		InternalPort: 1234,
		ExternalPort: 5678,
		ExternalIP:   addr.ToWire(addr.IPv6Wildcard),
	}
	gotResp, err := ParseMapResponse(resp.Dump())
	if err != nil {
		t.Fatalf("ParseMapResponse: %v", err)
	}
	if gotResp.Nonce != nonce || gotResp.ExternalPort != 5678 || gotResp.Protocol != addr.UDP {
		t.Errorf("response round trip mismatch: %+v", gotResp)
	}
}

func TestNewMapRequestRejectsZeroInternalPort(t *testing.T) {
	if _, err := NewMapRequest(3600, nil, Nonce{}, addr.TCP, 0, 0, nil, nil); err == nil {
		t.Error("NewMapRequest should reject internalPort == 0 (spec §8 validation)")
	}
}

func TestPeerRequestResponseRoundTrip(t *testing.T) {
	nonce := testNonce()
	req, err := NewPeerRequest(1000, addr.ToWire(nil), nonce, addr.TCP, 1001, 50000, addr.ToWire(nil), 443, addr.ToWire(nil), nil)
	if err != nil {
		t.Fatalf("NewPeerRequest: %v", err)
	}
	got, err := ParsePeerRequest(req.Dump())
	if err != nil {
		t.Fatalf("ParsePeerRequest: %v", err)
	}
	if got.RemotePeerPort != 443 || got.Nonce != nonce {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestNewPeerRequestRejectsZeroRemotePort(t *testing.T) {
	if _, err := NewPeerRequest(1000, nil, Nonce{}, addr.TCP, 1, 0, nil, 0, nil, nil); err == nil {
		t.Error("NewPeerRequest should reject remotePeerPort == 0")
	}
}

// TestPeerResponseLiteralParse reproduces spec.md §8's end-to-end scenario 5:
// a hand-built PCP PEER response buffer, parsed field by field against
// literal expected values, independent of the Dump() that produced it.
func TestPeerResponseLiteralParse(t *testing.T) {
	var buf []byte

	// 24-byte common response header.
	buf = append(buf, ProtocolVersion, byte(OpPeer)|responseBit, 0, byte(ResultSuccess))
	buf = append(buf, 0, 0, 0x0e, 0x10) // lifetime = 3600
	buf = append(buf, 0, 0, 0x30, 0x39) // epoch = 12345
	buf = append(buf, make([]byte, 12)...)

	// MAP-shaped body: nonce 00..0b, protocol 6 (TCP), reserved, internal
	// 1001, external 50000, external IP ::ffff:203:405.
	for i := 0; i < 12; i++ {
		buf = append(buf, byte(i))
	}
	buf = append(buf, 6, 0, 0, 0)
	buf = append(buf, 0x03, 0xe9) // 1001
	buf = append(buf, 0xc3, 0x50) // 50000
	buf = append(buf, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 2, 3, 4, 5)

	// PEER extra: remote port 443, reserved, remote IP ::ffff:808:808.
	buf = append(buf, 0x01, 0xbb) // 443
	buf = append(buf, 0, 0)
	buf = append(buf, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 8, 8, 8, 8)

	resp, err := ParsePeerResponse(buf)
	if err != nil {
		t.Fatalf("ParsePeerResponse: %v", err)
	}
	if resp.ResultCode != ResultSuccess {
		t.Errorf("ResultCode = %v, want SUCCESS", resp.ResultCode)
	}
	if resp.Lifetime != 3600 {
		t.Errorf("Lifetime = %d, want 3600", resp.Lifetime)
	}
	if resp.EpochTime != 12345 {
		t.Errorf("EpochTime = %d, want 12345", resp.EpochTime)
	}
	if resp.Nonce != testNonce() {
		t.Errorf("Nonce = %v, want 00..0b", resp.Nonce)
	}
	if resp.Protocol != addr.TCP {
		t.Errorf("Protocol = %v, want TCP", resp.Protocol)
	}
	if resp.InternalPort != 1001 {
		t.Errorf("InternalPort = %d, want 1001", resp.InternalPort)
	}
	if resp.ExternalPort != 50000 {
		t.Errorf("ExternalPort = %d, want 50000", resp.ExternalPort)
	}
	wantExtIP, _ := addr.FromWire(addr.ToWire([]byte{2, 3, 4, 5}))
	gotExtIP, _ := addr.FromWire(resp.ExternalIP)
	if !gotExtIP.Equal(wantExtIP) {
		t.Errorf("ExternalIP = %v, want %v", gotExtIP, wantExtIP)
	}
	if resp.RemotePeerPort != 443 {
		t.Errorf("RemotePeerPort = %d, want 443", resp.RemotePeerPort)
	}
	wantRemoteIP, _ := addr.FromWire(addr.ToWire([]byte{8, 8, 8, 8}))
	gotRemoteIP, _ := addr.FromWire(resp.RemotePeerIP)
	if !gotRemoteIP.Equal(wantRemoteIP) {
		t.Errorf("RemotePeerIP = %v, want %v", gotRemoteIP, wantRemoteIP)
	}
}

func TestResultCodeRetryable(t *testing.T) {
	cases := []struct {
		code ResultCode
		want bool
	}{
		{ResultNetworkFailure, true},
		{ResultNoResources, true},
		{ResultMalformedRequest, false},
		{ResultSuccess, false},
	}
	for _, c := range cases {
		if got := c.code.Retryable(); got != c.want {
			t.Errorf("%v.Retryable() = %v, want %v", c.code, got, c.want)
		}
	}
}

func TestFlippingResultByteChangesParseOutcome(t *testing.T) {
	resp := MapResponse{ResultCode: ResultSuccess, Nonce: testNonce(), Protocol: addr.TCP, InternalPort: 1, ExternalPort: 2, ExternalIP: addr.ToWire(nil)}
	buf := resp.Dump()
	corrupted := append([]byte(nil), buf...)
	corrupted[3] = byte(ResultMalformedRequest)
	got, err := ParseMapResponse(corrupted)
	if err != nil {
		t.Fatalf("ParseMapResponse: %v", err)
	}
	if got.ResultCode == resp.ResultCode {
		t.Fatal("flipping the result byte did not change the parsed result code")
	}
}
