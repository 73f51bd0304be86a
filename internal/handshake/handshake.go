// Package handshake implements the login key-derivation shared by both
// ends of the protocol (slicing a DH secret into KAB/KBA/auth-key/nonce),
// and the server's per-login state machine: IDLE -> AWAITING_A_X ->
// LOGGED_IN, guarded by a handshake_locked flag so at most one login is
// ever in flight at a time (P5).
package handshake

import (
	"errors"
	"math/big"
	"sync"

	"github.com/tectonicboy/rosetta/internal/group"
	"github.com/tectonicboy/rosetta/internal/wire"
)

var (
	// ErrInProgress is returned when a second MAGIC_00 arrives while a
	// login is already in AWAITING_A_X (P5).
	ErrInProgress = errors.New("handshake: a login is already in progress")
	// ErrBadPubkey is returned when a short-term or long-term pubkey fails
	// the range/subgroup check (P4).
	ErrBadPubkey = errors.New("handshake: pubkey out of range or not in subgroup")
	// ErrWrongPhase is returned when a caller drives the state machine out
	// of sequence (e.g. completing a login that was never begun).
	ErrWrongPhase = errors.New("handshake: called from the wrong phase")
)

// Phase is the server's per-login state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingAX
	PhaseLoggedIn
)

// handshakeNOffset/handshakeSecretLen describe where each slice sits inside
// the round-0 DH secret X: KAB = X[0:32], KBA = X[32:64], Y = X[64:96],
// N = X[96:108] (§4.4).
const (
	handshakeKABOffset = 0
	handshakeKBAOffset = wire.SessionKey
	handshakeYOffset   = 2 * wire.SessionKey
	handshakeNOffset   = 2*wire.SessionKey + wire.SessionKey
	handshakeSecretLen = handshakeNOffset + wire.ShortNonce
)

// sessionKABOffset/sessionSecretLen describe where each slice sits inside
// the long-term shared secret S: KAB = S[0:32], KBA = S[32:64],
// nonce = S[64:80] (§4.5).
const (
	sessionKABOffset = 0
	sessionKBAOffset = wire.SessionKey
	sessionNonceOff  = 2 * wire.SessionKey
	sessionSecretLen = sessionNonceOff + wire.LongNonce
)

// Slices holds the round-0 handshake's derived material: a session-key
// pair, an authentication key Y (signed by the server to prove possession
// of its long-term private key), and a 12-byte nonce.
type Slices struct {
	KAB [wire.SessionKey]byte
	KBA [wire.SessionKey]byte
	Y   [wire.SessionKey]byte
	N   [wire.ShortNonce]byte
}

// DeriveHandshakeSlices splits the round-0 DH secret X into KAB/KBA/Y/N
// (§4.4). X's magnitude is serialized little-endian, per the external
// interface contract (DeriveSessionSlices does the same), unlike public
// keys and signature scalars, which this codebase writes big-endian.
func DeriveHandshakeSlices(x *big.Int, fieldBytes int) Slices {
	buf := leBytes(x, fieldBytes)
	var s Slices
	copy(s.KAB[:], buf[handshakeKABOffset:])
	copy(s.KBA[:], buf[handshakeKBAOffset:])
	copy(s.Y[:], buf[handshakeYOffset:])
	copy(s.N[:], buf[handshakeNOffset:handshakeSecretLen])
	return s
}

// SessionSlices holds the long-term (or pairwise-roommate) shared secret's
// derived material (§4.5): a session-key pair and a 16-byte nonce.
type SessionSlices struct {
	KAB   [wire.SessionKey]byte
	KBA   [wire.SessionKey]byte
	Nonce [wire.LongNonce]byte
}

// DeriveSessionSlices splits a long-term or pairwise DH secret S into
// KAB/KBA/nonce (§4.5). The caller still owns the role tiebreak
// (internal/session.New) — this function only slices the bytes.
func DeriveSessionSlices(s *big.Int, fieldBytes int) SessionSlices {
	buf := leBytes(s, fieldBytes)
	var out SessionSlices
	copy(out.KAB[:], buf[sessionKABOffset:])
	copy(out.KBA[:], buf[sessionKBAOffset:])
	copy(out.Nonce[:], buf[sessionNonceOff:sessionSecretLen])
	return out
}

// AddNonce returns nonce + i, treating nonce as a little-endian integer of
// its own length. Round-0 of the handshake (§4.4) reuses its derived N for
// the client's A_x encryption and N+1 for the server's user-index reply;
// unlike the long-term session (§4.5, internal/session's 16-byte, two-word
// counter), this nonce is only ever advanced by a small fixed amount, so a
// plain byte-wise ripple-carry add is all that's needed.
func AddNonce(nonce []byte, i uint64) []byte {
	out := append([]byte(nil), nonce...)
	carry := i
	for idx := range out {
		if carry == 0 {
			break
		}
		sum := uint64(out[idx]) + carry
		out[idx] = byte(sum)
		carry = sum >> 8
	}
	return out
}

// leBytes returns x's magnitude as fieldBytes little-endian bytes.
func leBytes(x *big.Int, fieldBytes int) []byte {
	be := make([]byte, fieldBytes)
	x.FillBytes(be)
	for i, j := 0, len(be)-1; i < j; i, j = i+1, j-1 {
		be[i], be[j] = be[j], be[i]
	}
	return be
}

// Scratch is the server's in-flight login state for a single connection. It
// holds exactly the material needed between MAGIC_00 and MAGIC_01 and
// nothing else — callers must call Zero (via the owning Login's Abort or
// Complete) as soon as the login resolves either way (§4.4's
// secrecy-critical zeroing requirement).
type Scratch struct {
	EphemeralPriv *big.Int
	EphemeralPub  *big.Int
	ClientPub     *big.Int
	Slices        Slices
}

// Login drives the server-side login state machine. The server keeps a
// single Login shared by all connections, so its locked flag allows at most
// one login in flight server-wide.
type Login struct {
	mu      sync.Mutex
	locked  bool
	phase   Phase
	scratch *Scratch
}

// NewLogin returns a Login in the IDLE phase.
func NewLogin() *Login {
	return &Login{phase: PhaseIdle}
}

// Phase returns the current state, for callers that only need to inspect
// it (e.g. metrics, logging).
func (l *Login) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

// Begin validates the client's ephemeral pubkey (P4), draws a fresh
// ephemeral keypair, derives the round-0 secret, and transitions
// IDLE -> AWAITING_A_X. It refuses to run at all if a login is already in
// flight (P5: no partial state mutation on the rejected attempt).
func Begin(l *Login, p *group.Params, clientPub *big.Int) (*Scratch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locked {
		return nil, ErrInProgress
	}
	if !validPubkey(p, clientPub) {
		return nil, ErrBadPubkey
	}

	ephPriv, ephPub, err := p.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	x := p.SharedSecret(clientPub, ephPriv)

	scratch := &Scratch{
		EphemeralPriv: ephPriv,
		EphemeralPub:  ephPub,
		ClientPub:     clientPub,
		Slices:        DeriveHandshakeSlices(x, wire.PubkeyBytes),
	}

	l.scratch = scratch
	l.locked = true
	l.phase = PhaseAwaitingAX
	return scratch, nil
}

// Current returns the in-flight scratch state, or ErrWrongPhase if no
// login is currently awaiting its MAGIC_01.
func Current(l *Login) (*Scratch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase != PhaseAwaitingAX || l.scratch == nil {
		return nil, ErrWrongPhase
	}
	return l.scratch, nil
}

// Complete zeros the scratch and transitions AWAITING_A_X -> LOGGED_IN,
// clearing handshake_locked so a future login attempt (after logoff) can
// proceed.
func Complete(l *Login) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase != PhaseAwaitingAX {
		return ErrWrongPhase
	}
	zero(l.scratch)
	l.scratch = nil
	l.locked = false
	l.phase = PhaseLoggedIn
	return nil
}

// Abort zeros the scratch and returns to IDLE — used on any MAGIC_01
// failure (bad HMAC, duplicate pubkey, registry full) and on connection
// teardown mid-handshake.
func Abort(l *Login) {
	l.mu.Lock()
	defer l.mu.Unlock()
	zero(l.scratch)
	l.scratch = nil
	l.locked = false
	l.phase = PhaseIdle
}

func zero(s *Scratch) {
	if s == nil {
		return
	}
	zeroBytes(s.Slices.KAB[:])
	zeroBytes(s.Slices.KBA[:])
	zeroBytes(s.Slices.Y[:])
	zeroBytes(s.Slices.N[:])
	if s.EphemeralPriv != nil {
		s.EphemeralPriv.SetInt64(0)
	}
}

// zeroBytes overwrites b with zeros. Go provides no optimization-barrier
// guarantee the way an explicit_bzero call does in the reference
// implementation; this is the same best-effort loop the teacher repo uses
// (internal/crypto/crypto.go's ZeroBytes) for the same purpose.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func validPubkey(p *group.Params, pub *big.Int) bool {
	if pub.Sign() <= 0 || pub.Cmp(p.M) >= 0 {
		return false
	}
	return p.InSubgroup(pub)
}
