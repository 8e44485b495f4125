package pcpopt

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	opts := []Option{
		ThirdParty(make([]byte, 16)),
		PreferFailure(),
		Filter(24, 443, make([]byte, 16)),
		Description("a description"),
		NextHop(make([]byte, 16)),
		PortReservation([]uint16{80, 443, 8080}),
	}

	wire := Encode(nil, opts)
	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != len(opts) {
		t.Fatalf("got %d options, want %d", len(got), len(opts))
	}
	for i, o := range opts {
		if got[i].Code != o.Code {
			t.Errorf("option %d: code %d, want %d", i, got[i].Code, o.Code)
		}
		if !bytes.Equal(got[i].Payload, o.Payload) {
			t.Errorf("option %d: payload %v, want %v", i, got[i].Payload, o.Payload)
		}
	}
}

func TestEncodePadsEachOptionToFourByteBoundary(t *testing.T) {
	wire := Encode(nil, []Option{Description("abc")}) // 3-byte payload -> 1 byte pad
	if len(wire)%4 != 0 {
		t.Fatalf("encoded option length %d is not a multiple of 4", len(wire))
	}
	wantLen := 4 + 3 + 1 // header + payload + pad
	if len(wire) != wantLen {
		t.Fatalf("encoded length = %d, want %d", len(wire), wantLen)
	}
}

func TestEncodePreservesOrder(t *testing.T) {
	opts := []Option{PreferFailure(), ThirdParty(make([]byte, 16)), PreferFailure()}
	wire := Encode(nil, opts)
	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	wantCodes := []uint8{CodePreferFailure, CodeThirdParty, CodePreferFailure}
	for i, c := range wantCodes {
		if got[i].Code != c {
			t.Errorf("option %d: code %d, want %d", i, got[i].Code, c)
		}
	}
}

func TestUnrecognizedCodeSurvivesRoundTrip(t *testing.T) {
	opts := []Option{{Code: 0xfe, Payload: []byte{1, 2, 3, 4}}}
	wire := Encode(nil, opts)
	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 1 || got[0].Code != 0xfe || !bytes.Equal(got[0].Payload, opts[0].Payload) {
		t.Fatalf("unrecognized option not preserved: %+v", got)
	}
	if got[0].IsThirdParty() || got[0].IsFilter() || got[0].IsDescription() {
		t.Fatalf("unrecognized option matched a typed accessor: %+v", got[0])
	}
}

func TestDecodeTruncatedHeaderErrors(t *testing.T) {
	if _, err := Decode([]byte{1, 0, 0}); err == nil {
		t.Error("Decode should reject a truncated option header")
	}
}

func TestDecodeLengthExceedsBufferErrors(t *testing.T) {
	buf := []byte{CodeDescription, 0, 0, 10} // claims 10 bytes of payload, has none
	if _, err := Decode(buf); err == nil {
		t.Error("Decode should reject an option whose length exceeds the buffer")
	}
}

func TestFlippingLengthByteChangesParseOutcome(t *testing.T) {
	opts := []Option{Description("abc")}
	wire := Encode(nil, opts)
	before, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode original: %v", err)
	}

	corrupted := append([]byte(nil), wire...)
	corrupted[3] ^= 0xff // flip the low length byte
	after, err := Decode(corrupted)
	if err == nil && len(after) == len(before) && bytes.Equal(after[0].Payload, before[0].Payload) {
		t.Fatalf("flipping the length byte produced an identical parse")
	}
}

func TestFilterFieldsRoundTrip(t *testing.T) {
	remoteIP := make([]byte, 16)
	remoteIP[15] = 42
	o := Filter(16, 8080, remoteIP)
	if !o.IsFilter() {
		t.Fatal("Filter option should report IsFilter")
	}
	prefixLength, remotePort, ip, err := o.FilterFields()
	if err != nil {
		t.Fatalf("FilterFields: %v", err)
	}
	if prefixLength != 16 || remotePort != 8080 || !bytes.Equal(ip, remoteIP) {
		t.Fatalf("FilterFields = (%d, %d, %v)", prefixLength, remotePort, ip)
	}
}
