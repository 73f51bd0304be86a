// Package primitives implements the cryptographic building blocks the
// protocol is assembled from: ChaCha20 stream encryption, a manual
// HMAC-BLAKE2b construction, Argon2id password hashing, and Schnorr
// signatures over the group package's safe-prime field.
package primitives

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20"
)

// StreamXOR encrypts or decrypts (ChaCha20 is its own inverse) using an
// unauthenticated ChaCha20 keystream. The protocol relies on Schnorr
// signatures for authenticity everywhere a ciphertext appears, not an AEAD
// tag, so this deliberately uses chacha20.NewUnauthenticatedCipher rather
// than chacha20poly1305 — there is no additional-data or tag field anywhere
// in the wire format to drive an AEAD construction.
//
// nonce must be either ShortNonce (12) bytes — used directly as an IETF
// ChaCha20 nonce with a zero initial counter — or LongNonce (16) bytes,
// where the first 12 bytes are the nonce and the trailing 4 are a
// little-endian initial block counter. The two wire field widths this
// package's callers pass in map onto x/crypto/chacha20's nonce-plus-counter
// API exactly; no XChaCha20 variant is needed.
func StreamXOR(key [32]byte, nonce []byte, src []byte) ([]byte, error) {
	c, err := newCipher(key, nonce)
	if err != nil {
		return nil, err
	}
	dst := make([]byte, len(src))
	c.XORKeyStream(dst, src)
	return dst, nil
}

func newCipher(key [32]byte, nonce []byte) (*chacha20.Cipher, error) {
	switch len(nonce) {
	case chacha20.NonceSize:
		return chacha20.NewUnauthenticatedCipher(key[:], nonce)
	case chacha20.NonceSize + 4:
		c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:chacha20.NonceSize])
		if err != nil {
			return nil, err
		}
		c.SetCounter(binary.LittleEndian.Uint32(nonce[chacha20.NonceSize:]))
		return c, nil
	default:
		return nil, fmt.Errorf("primitives: nonce must be %d or %d bytes, got %d",
			chacha20.NonceSize, chacha20.NonceSize+4, len(nonce))
	}
}
