package handshake

import (
	"testing"

	"github.com/tectonicboy/rosetta/internal/group"
)

func TestDeriveHandshakeSlicesAreDisjoint(t *testing.T) {
	p := group.TestParams()
	x := p.ModPow(p.G, p.Q) // any deterministic value works for a shape test

	s := DeriveHandshakeSlices(x, 128)
	if s.KAB == s.KBA {
		t.Error("KAB and KBA must not be identical for a nonzero secret with distinct byte windows")
	}
}

func TestBeginRejectsInvalidPubkey(t *testing.T) {
	p := group.TestParams()
	l := NewLogin()

	_, err := Begin(l, p, p.M) // M itself is out of range
	if err != ErrBadPubkey {
		t.Fatalf("expected ErrBadPubkey, got %v", err)
	}
	if l.Phase() != PhaseIdle {
		t.Error("a rejected Begin must not mutate the phase (P4)")
	}
}

func TestSecondBeginWhileInProgressIsRejected(t *testing.T) {
	p := group.TestParams()
	l := NewLogin()
	_, clientPub, err := p.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate client keypair: %v", err)
	}

	if _, err := Begin(l, p, clientPub); err != nil {
		t.Fatalf("first Begin: %v", err)
	}
	if _, err := Begin(l, p, clientPub); err != ErrInProgress {
		t.Fatalf("expected ErrInProgress, got %v", err)
	}
}

func TestCompleteTransitionsToLoggedInAndClearsLock(t *testing.T) {
	p := group.TestParams()
	l := NewLogin()
	_, clientPub, _ := p.GenerateKeypair()

	if _, err := Begin(l, p, clientPub); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := Complete(l); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if l.Phase() != PhaseLoggedIn {
		t.Errorf("phase = %v, want PhaseLoggedIn", l.Phase())
	}

	// The lock is cleared, so a fresh login can begin (e.g. after logoff).
	_, clientPub2, _ := p.GenerateKeypair()
	if _, err := Begin(l, p, clientPub2); err != nil {
		t.Fatalf("begin after complete: %v", err)
	}
}

func TestAbortReturnsToIdleAndClearsScratch(t *testing.T) {
	p := group.TestParams()
	l := NewLogin()
	_, clientPub, _ := p.GenerateKeypair()

	if _, err := Begin(l, p, clientPub); err != nil {
		t.Fatalf("begin: %v", err)
	}
	Abort(l)
	if l.Phase() != PhaseIdle {
		t.Errorf("phase = %v, want PhaseIdle", l.Phase())
	}
	if _, err := Current(l); err != ErrWrongPhase {
		t.Errorf("expected ErrWrongPhase after abort, got %v", err)
	}
}
