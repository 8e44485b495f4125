package wire

import "testing"

func TestUint16RoundTrip(t *testing.T) {
	cases := []uint16{0, 1, 0x00ff, 0xff00, 0xffff, 0x1234}
	for _, v := range cases {
		buf := make([]byte, 2)
		WriteUint16(buf, 0, v)
		got, err := ReadUint16(buf, 0)
		if err != nil {
			t.Fatalf("ReadUint16(%#x): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %#x: got %#x", v, got)
		}
	}
}

func TestUint32RoundTrip(t *testing.T) {
	cases := []uint32{0, 1, 0x000000ff, 0xff000000, 0xffffffff, 0x12345678}
	for _, v := range cases {
		buf := make([]byte, 4)
		WriteUint32(buf, 0, v)
		got, err := ReadUint32(buf, 0)
		if err != nil {
			t.Fatalf("ReadUint32(%#x): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %#x: got %#x", v, got)
		}
	}
}

func TestUint64RoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 0xffffffffffffffff, 0x0102030405060708}
	for _, v := range cases {
		buf := make([]byte, 8)
		WriteUint64(buf, 0, v)
		got, err := ReadUint64(buf, 0)
		if err != nil {
			t.Fatalf("ReadUint64(%#x): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %#x: got %#x", v, got)
		}
	}
}

func TestUint32BigEndianByteOrder(t *testing.T) {
	buf := make([]byte, 4)
	WriteUint32(buf, 0, 0x01020304)
	want := []byte{0x01, 0x02, 0x03, 0x04}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("byte %d: got %#x, want %#x", i, buf[i], want[i])
		}
	}
}

func TestReadShortBufferErrors(t *testing.T) {
	buf := []byte{1, 2, 3}
	if _, err := ReadUint32(buf, 0); err != ErrShortBuffer {
		t.Errorf("ReadUint32 past end: got %v, want ErrShortBuffer", err)
	}
	if _, err := ReadUint16(buf, 2); err != ErrShortBuffer {
		t.Errorf("ReadUint16 at off=2 len=3: got %v, want ErrShortBuffer", err)
	}
	if _, err := ReadUint16(buf, -1); err != ErrShortBuffer {
		t.Errorf("ReadUint16 negative offset: got %v, want ErrShortBuffer", err)
	}
	if _, err := ReadBytes(buf, 1, 10); err != ErrShortBuffer {
		t.Errorf("ReadBytes past end: got %v, want ErrShortBuffer", err)
	}
}

func TestReadBytesIsDefensiveCopy(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	out, err := ReadBytes(buf, 0, 4)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	out[0] = 0xff
	if buf[0] != 1 {
		t.Fatalf("ReadBytes did not return a defensive copy: source buffer mutated")
	}
}

func TestPad4(t *testing.T) {
	cases := []struct {
		n    int
		want int
	}{
		{0, 0}, {1, 3}, {2, 2}, {3, 1}, {4, 0}, {5, 3}, {8, 0},
	}
	for _, c := range cases {
		if got := Pad4(c.n); got != c.want {
			t.Errorf("Pad4(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}
