// Package session holds the pairwise KAB/KBA key material two peers derive
// for each other during a handshake, generalizing the teacher's single-key
// SessionKey (internal/crypto/crypto.go) to this protocol's dual raw
// ChaCha20-stream model: two independent keys, one per direction, and a
// nonce derived from a per-peer counter rather than carried on the wire.
package session

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/tectonicboy/rosetta/internal/primitives"
	"github.com/tectonicboy/rosetta/internal/wire"
)

// Key is the session state two peers share after a handshake: one key for
// encrypting outbound data, one for decrypting inbound data, and a shared
// nonce counter advanced on every operation in either direction.
//
// Resolution of Open Question #1: KAB and KBA are assigned to EncryptKey
// and DecryptKey once, at construction, by comparing the two peers' raw
// public keys (I5: the lexicographically lower pubkey takes KAB as its
// encrypt key, KBA as its decrypt key; the higher pubkey takes the
// opposite). Callers never choose KAB or KBA by name again — Encrypt
// always uses "the key my counterpart will decrypt with," so a sender
// can't encrypt with the wrong role's key.
type Key struct {
	mu sync.Mutex

	encryptKey [wire.SessionKey]byte
	decryptKey [wire.SessionKey]byte

	initialNonce [wire.LongNonce]byte
	counter      uint64
}

// New derives a Key from both directions' raw key material. kab and kba are
// the two keys agreed during the handshake (named for the convention that
// KAB flows from the lexicographically-first peer to the second, KBA the
// reverse); ownPubkey and peerPubkey are the raw, uncompressed public keys
// used to break the tie (I5).
func New(ownPubkey, peerPubkey []byte, kab, kba [wire.SessionKey]byte, initialNonce [wire.LongNonce]byte) *Key {
	k := &Key{initialNonce: initialNonce}
	if bytes.Compare(ownPubkey, peerPubkey) < 0 {
		k.encryptKey = kab
		k.decryptKey = kba
	} else {
		k.encryptKey = kba
		k.decryptKey = kab
	}
	return k
}

// Encrypt XORs plaintext with the keystream at the next nonce (I6: nonce =
// initial_nonce + i, where i is this Key's operation counter), using the
// key this session's counterpart will decrypt with.
func (k *Key) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := k.nextNonce()
	return primitives.StreamXOR(k.encryptKey, nonce[:], plaintext)
}

// Decrypt reverses Encrypt using the matching decrypt key and the next
// nonce in sequence. Since ChaCha20 is a stream cipher, Encrypt and Decrypt
// are the same operation under different keys — Decrypt is kept distinct
// only so callers never have to reason about which of the two keys to pass.
func (k *Key) Decrypt(ciphertext []byte) ([]byte, error) {
	nonce := k.nextNonce()
	return primitives.StreamXOR(k.decryptKey, nonce[:], ciphertext)
}

func (k *Key) nextNonce() [wire.LongNonce]byte {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := addCounter(k.initialNonce, k.counter)
	k.counter++
	return n
}

// NextNonce advances and returns the next nonce in this session's sequence
// without touching either key. Room and message handling both wrap a
// series of values (a one-time key, then data under that key) under the
// same running nonce sequence rather than under Key's own encrypt/decrypt
// keys (§4.6) — NextNonce lets a caller do that with primitives.StreamXOR
// directly while keeping I6's counter monotonic across every operation on
// this session, whichever key a given step happens to use.
func (k *Key) NextNonce() [wire.LongNonce]byte {
	return k.nextNonce()
}

// addCounter adds i to a 16-byte little-endian value read as a 128-bit
// integer split into two 64-bit little-endian words (I6).
func addCounter(base [wire.LongNonce]byte, i uint64) [wire.LongNonce]byte {
	lo := binary.LittleEndian.Uint64(base[0:8])
	hi := binary.LittleEndian.Uint64(base[8:16])

	newLo := lo + i
	carry := uint64(0)
	if newLo < lo {
		carry = 1
	}
	newHi := hi + carry

	var out [wire.LongNonce]byte
	binary.LittleEndian.PutUint64(out[0:8], newLo)
	binary.LittleEndian.PutUint64(out[8:16], newHi)
	return out
}
