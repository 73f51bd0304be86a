// Package keystore reads and writes the client's long-term identity save
// file: a long-term keypair, private-key-half encrypted at rest under a
// password-derived key.
package keystore

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/tectonicboy/rosetta/internal/group"
	"github.com/tectonicboy/rosetta/internal/primitives"
	"github.com/tectonicboy/rosetta/internal/wire"
)

// passwordBufSize is the fixed, zero-padded buffer Argon2 hashes the
// password into — 16 bytes including a null terminator, so passwords longer
// than 15 bytes are rejected rather than silently truncated.
const passwordBufSize = 16

// argonStringLen is the random half of the Argon2 salt; the other 64 bytes
// come from BLAKE2b-512 of the long-term public key.
const argonStringLen = 8

var (
	// ErrPasswordTooLong is returned when a password does not fit the
	// fixed 16-byte (15 usable bytes + null terminator) password buffer.
	ErrPasswordTooLong = errors.New("keystore: password longer than 15 bytes")
	// ErrCorruptSaveFile is returned when a save file is not exactly the
	// expected fixed length.
	ErrCorruptSaveFile = errors.New("keystore: save file has the wrong size")
)

// saveFileLen is the fixed total length of a save file: nonce || encrypted
// private key || public key || argon salt string.
const saveFileLen = wire.LongNonce + wire.PrivkeyBytes + wire.PubkeyBytes + argonStringLen

// Identity is a loaded long-term keypair, ready for use in a handshake.
type Identity struct {
	Priv *big.Int
	Pub  *big.Int
}

// Generate derives a fresh long-term keypair, encrypts its private half
// under password, and writes the resulting save file to path.
func Generate(p *group.Params, password []byte, path string) (*Identity, error) {
	priv, pub, err := p.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("keystore: generate keypair: %w", err)
	}

	pubBytes := make([]byte, wire.PubkeyBytes)
	pub.FillBytes(pubBytes)
	privBytes := make([]byte, wire.PrivkeyBytes)
	priv.FillBytes(privBytes)

	argonString := make([]byte, argonStringLen)
	if _, err := rand.Read(argonString); err != nil {
		return nil, fmt.Errorf("keystore: read random salt string: %w", err)
	}
	nonce := make([]byte, wire.LongNonce)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("keystore: read random nonce: %w", err)
	}

	encPriv, err := encryptPrivateKey(password, argonString, pubBytes, nonce, privBytes)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, saveFileLen)
	buf = append(buf, nonce...)
	buf = append(buf, encPriv...)
	buf = append(buf, pubBytes...)
	buf = append(buf, argonString...)

	if err := os.WriteFile(path, buf, 0600); err != nil {
		return nil, fmt.Errorf("keystore: write save file: %w", err)
	}

	return &Identity{Priv: priv, Pub: pub}, nil
}

// Load reads a save file and decrypts its private key under password.
func Load(password []byte, path string) (*Identity, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keystore: read save file: %w", err)
	}
	if len(buf) != saveFileLen {
		return nil, ErrCorruptSaveFile
	}

	offset := 0
	nonce := buf[offset : offset+wire.LongNonce]
	offset += wire.LongNonce
	encPriv := buf[offset : offset+wire.PrivkeyBytes]
	offset += wire.PrivkeyBytes
	pubBytes := buf[offset : offset+wire.PubkeyBytes]
	offset += wire.PubkeyBytes
	argonString := buf[offset : offset+argonStringLen]

	privBytes, err := encryptPrivateKey(password, argonString, pubBytes, nonce, encPriv)
	if err != nil {
		return nil, err
	}

	return &Identity{
		Priv: new(big.Int).SetBytes(privBytes),
		Pub:  new(big.Int).SetBytes(pubBytes),
	}, nil
}

// encryptPrivateKey is its own inverse: ChaCha20 is a stream cipher, so
// encrypting and decrypting the private key are the same XOR operation
// under the same derived key and nonce.
func encryptPrivateKey(password, argonString, pubBytes, nonce, privBytes []byte) ([]byte, error) {
	passwordBuf, err := padPassword(password)
	if err != nil {
		return nil, err
	}

	pubHash := primitives.Hash(pubBytes)
	salt := make([]byte, 0, argonStringLen+len(pubHash))
	salt = append(salt, argonString...)
	salt = append(salt, pubHash[:]...)

	tag := primitives.DeriveSaveFileKey(passwordBuf, salt)
	var v [wire.SessionKey]byte
	copy(v[:], tag[:wire.SessionKey])

	return primitives.StreamXOR(v, nonce, privBytes)
}

func padPassword(password []byte) ([]byte, error) {
	if len(password) > passwordBufSize-1 {
		return nil, ErrPasswordTooLong
	}
	buf := make([]byte, passwordBufSize)
	copy(buf, password)
	return buf, nil
}
