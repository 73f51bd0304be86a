package primitives

import "golang.org/x/crypto/blake2b"

// blake2bBlockSize (B) and blake2bOutputSize (L) are the constants the
// reference implementation's hand-rolled HMAC construction is built from:
// BLAKE2b's 64-byte block size and 64-byte (512-bit) full digest.
const (
	blake2bBlockSize  = 64
	blake2bOutputSize = 64

	ipadByte = 0x36
	opadByte = 0x5c
)

// Hash returns the full 64-byte BLAKE2b-512 digest of data.
func Hash(data []byte) [blake2bOutputSize]byte {
	return blake2b.Sum512(data)
}

// HMAC implements HMAC over BLAKE2b-512 by hand, the same nine-step
// construction as the reference client: zero-extend the key to the block
// size, XOR with ipad/opad, hash twice. golang.org/x/crypto/blake2b exposes
// a keyed-hash constructor (blake2b.New512(key)) that computes a different,
// blake2-native keyed MAC — not bytewise identical to this HMAC-over-BLAKE2b
// construction, so it can't be substituted here without breaking wire
// compatibility with the reference authenticator.
//
// The caller truncates the result to HMACTrunc bytes; this function returns
// the full untruncated digest so callers can decide independently (some
// wire fields truncate to 8 bytes, and truncation policy belongs with the
// field, not the primitive).
func HMAC(key []byte, text []byte) [blake2bOutputSize]byte {
	k0 := make([]byte, blake2bBlockSize)
	copy(k0, key) // zero-extends if key is shorter than the block size

	ipadKey := xorPad(k0, ipadByte)
	opadKey := xorPad(k0, opadByte)

	inner := Hash(append(ipadKey, text...))
	return Hash(append(opadKey, inner[:]...))
}

func xorPad(k0 []byte, pad byte) []byte {
	out := make([]byte, len(k0))
	for i, b := range k0 {
		out[i] = b ^ pad
	}
	return out
}
