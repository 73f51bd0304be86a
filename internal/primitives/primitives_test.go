package primitives

import (
	"bytes"
	"testing"

	"github.com/tectonicboy/rosetta/internal/group"
)

func TestStreamXORRoundTrip(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	nonce := make([]byte, 12)
	plain := []byte("the quick brown fox jumps over the lazy dog")

	cipher, err := StreamXOR(key, nonce, plain)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(cipher, plain) {
		t.Error("ciphertext equals plaintext")
	}

	back, err := StreamXOR(key, nonce, cipher)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(back, plain) {
		t.Error("round trip did not recover plaintext")
	}
}

func TestStreamXORLongNonceWithCounter(t *testing.T) {
	var key [32]byte
	nonce16 := make([]byte, 16) // 12-byte nonce || 4-byte LE counter
	plain := []byte("room key material")

	out1, err := StreamXOR(key, nonce16, plain)
	if err != nil {
		t.Fatalf("encrypt counter=0: %v", err)
	}

	nonce16[12] = 1 // bump the counter
	out2, err := StreamXOR(key, nonce16, plain)
	if err != nil {
		t.Fatalf("encrypt counter=1: %v", err)
	}

	if bytes.Equal(out1, out2) {
		t.Error("different counters produced identical keystream")
	}
}

func TestStreamXORRejectsBadNonceLength(t *testing.T) {
	var key [32]byte
	_, err := StreamXOR(key, make([]byte, 7), []byte("x"))
	if err == nil {
		t.Error("expected error for invalid nonce length")
	}
}

func TestHMACDeterministic(t *testing.T) {
	key := []byte("session-key-material")
	text := []byte("client's long-term pubkey bytes")

	a := HMAC(key, text)
	b := HMAC(key, text)
	if a != b {
		t.Error("HMAC is not deterministic")
	}

	c := HMAC(key, append(append([]byte{}, text...), 0x00))
	if a == c {
		t.Error("HMAC did not change when text changed")
	}
}

func TestHMACDifferentKeys(t *testing.T) {
	text := []byte("same text")
	a := HMAC([]byte("key one"), text)
	b := HMAC([]byte("key two"), text)
	if a == b {
		t.Error("different keys produced the same HMAC")
	}
}

func TestDeriveSaveFileKeyDeterministic(t *testing.T) {
	password := []byte("correct horse battery staple\x00\x00\x00")
	salt := bytes.Repeat([]byte{0x42}, 16)

	a := DeriveSaveFileKey(password, salt)
	b := DeriveSaveFileKey(password, salt)
	if a != b {
		t.Error("Argon2id derivation is not deterministic for fixed inputs")
	}

	c := DeriveSaveFileKey([]byte("different password!!!!!!!!!!!"), salt)
	if a == c {
		t.Error("different passwords produced the same key")
	}
}

func TestSchnorrSignVerify(t *testing.T) {
	p := group.TestParams()
	priv, pub, err := p.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	payload := []byte("login handshake transcript bytes")

	sig, err := Sign(p, priv, payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !Verify(p, pub, payload, sig) {
		t.Error("valid signature failed to verify")
	}
}

func TestSchnorrRejectsTamperedPayload(t *testing.T) {
	p := group.TestParams()
	priv, pub, err := p.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	sig, err := Sign(p, priv, []byte("original payload"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if Verify(p, pub, []byte("tampered payload"), sig) {
		t.Error("signature verified against a different payload")
	}
}

func TestSchnorrRejectsWrongKey(t *testing.T) {
	p := group.TestParams()
	_, pubA, err := p.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair A: %v", err)
	}
	privB, _, err := p.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair B: %v", err)
	}
	payload := []byte("some signed bytes")
	sig, err := Sign(p, privB, payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if Verify(p, pubA, payload, sig) {
		t.Error("signature from B verified against A's public key")
	}
}

func TestSignatureEncodeDecodeRoundTrip(t *testing.T) {
	p := group.TestParams()
	priv, _, err := p.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	sig, err := Sign(p, priv, []byte("payload"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	encoded := EncodeSignature(sig, 40)
	if len(encoded) != 80 {
		t.Fatalf("encoded signature is %d bytes, want 80", len(encoded))
	}
	decoded := DecodeSignature(encoded, 40)
	if decoded.S.Cmp(sig.S) != 0 || decoded.E.Cmp(sig.E) != 0 {
		t.Error("signature did not survive encode/decode round trip")
	}
}
