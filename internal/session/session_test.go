package session

import (
	"bytes"
	"testing"

	"github.com/tectonicboy/rosetta/internal/wire"
)

func keyPair(seedA, seedB byte) (kab, kba [wire.SessionKey]byte) {
	for i := range kab {
		kab[i] = seedA
	}
	for i := range kba {
		kba[i] = seedB
	}
	return
}

func TestRoleTiebreakIsConsistentAcrossPeers(t *testing.T) {
	lowPub := []byte{0x01, 0x02}
	highPub := []byte{0x09, 0x09}
	kab, kba := keyPair(0xAA, 0xBB)
	var initialNonce [wire.LongNonce]byte

	low := New(lowPub, highPub, kab, kba, initialNonce)
	high := New(highPub, lowPub, kab, kba, initialNonce)

	if low.encryptKey != high.decryptKey {
		t.Error("low peer's encrypt key must match high peer's decrypt key")
	}
	if low.decryptKey != high.encryptKey {
		t.Error("low peer's decrypt key must match high peer's encrypt key")
	}
}

func TestEncryptDecryptRoundTripBetweenPeers(t *testing.T) {
	lowPub := []byte{0x01}
	highPub := []byte{0xFF}
	kab, kba := keyPair(0x11, 0x22)
	var initialNonce [wire.LongNonce]byte
	initialNonce[0] = 0x07

	low := New(lowPub, highPub, kab, kba, initialNonce)
	high := New(highPub, lowPub, kab, kba, initialNonce)

	plaintext := []byte("room handshake transcript")
	cipher, err := low.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(cipher, plaintext) {
		t.Fatal("ciphertext equals plaintext")
	}

	got, err := high.Decrypt(cipher)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Error("peer could not recover the plaintext sent to it")
	}
}

func TestNonceAdvancesEachOperation(t *testing.T) {
	kab, kba := keyPair(0x33, 0x44)
	var initialNonce [wire.LongNonce]byte

	k := New([]byte{0x01}, []byte{0x02}, kab, kba, initialNonce)

	plaintext := []byte("same plaintext every time")
	first, err := k.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt 1: %v", err)
	}
	second, err := k.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt 2: %v", err)
	}
	if bytes.Equal(first, second) {
		t.Error("repeated encryption of the same plaintext produced identical ciphertext: nonce did not advance")
	}
}

func TestAddCounterCarriesAcrossWords(t *testing.T) {
	var base [wire.LongNonce]byte
	for i := 0; i < 8; i++ {
		base[i] = 0xFF // low word already at max
	}

	out := addCounter(base, 1)
	for i := 0; i < 8; i++ {
		if out[i] != 0 {
			t.Fatalf("low word byte %d = 0x%02x, want 0 after carry", i, out[i])
		}
	}
	if out[8] != 1 {
		t.Errorf("high word byte 0 = 0x%02x, want 1 (carried)", out[8])
	}
}
