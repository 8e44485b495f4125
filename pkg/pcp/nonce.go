package pcp

import "fmt"

// NonceLength is the fixed size of a PCP mapping nonce (RFC 6887 §11.2).
const NonceLength = 12

// Nonce is the opaque token a client places in a MAP/PEER request and the
// gateway echoes back in its response, used to correlate the two.
type Nonce [NonceLength]byte

// NewNonce validates that b is exactly NonceLength bytes and returns it as a
// Nonce, copying the bytes so the caller's buffer may be reused afterwards.
func NewNonce(b []byte) (Nonce, error) {
	var n Nonce
	if len(b) != NonceLength {
		return n, fmt.Errorf("pcp: nonce must be %d bytes, got %d", NonceLength, len(b))
	}
	copy(n[:], b)
	return n, nil
}
