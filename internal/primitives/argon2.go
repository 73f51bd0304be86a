package primitives

import "golang.org/x/crypto/argon2"

// Argon2 parameters match the reference client exactly: 4 threads, 1 pass,
// ~2GiB memory, 64-byte output. Memory cost this high is deliberate — it's
// what makes a save-file password brute-force expensive — not a default
// left unconsidered.
const (
	argonTime    = 1
	argonMemory  = 2097000 // KiB
	argonThreads = 4
	argonKeyLen  = 64
)

// DeriveSaveFileKey runs Argon2id over password with salt, returning the
// 64-byte tag the reference client calls V. Callers take the leftmost 32
// bytes as the ChaCha20 key used to encrypt/decrypt the save file's private
// key field.
func DeriveSaveFileKey(password, salt []byte) [argonKeyLen]byte {
	tag := argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	var out [argonKeyLen]byte
	copy(out[:], tag)
	return out
}
