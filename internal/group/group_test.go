package group

import (
	"math/big"
	"testing"
)

func TestTestParamsSelfCheck(t *testing.T) {
	p := TestParams()
	if err := p.selfCheck(); err != nil {
		t.Fatalf("self-check failed on hand-verified test group: %v", err)
	}
}

func TestInSubgroup(t *testing.T) {
	p := TestParams()

	// The subgroup generated by G=4 mod 23 is {4, 16, 18, 3, 12, 2, 8, 9, 13, 6, 1}.
	if !p.InSubgroup(p.G) {
		t.Error("G itself must be in its own subgroup")
	}
	if p.InSubgroup(big.NewInt(5)) {
		t.Error("5 is not in the order-11 subgroup mod 23")
	}
}

func TestGenerateKeypairProducesSubgroupElement(t *testing.T) {
	p := TestParams()
	for i := 0; i < 20; i++ {
		priv, pub, err := p.GenerateKeypair()
		if err != nil {
			t.Fatalf("GenerateKeypair: %v", err)
		}
		if priv.Sign() <= 0 || priv.Cmp(p.Q) >= 0 {
			t.Fatalf("private exponent out of range [1, Q): %v", priv)
		}
		if !p.InSubgroup(pub) {
			t.Fatalf("generated public key %v not in subgroup", pub)
		}
	}
}

func TestSharedSecretAgreement(t *testing.T) {
	p := TestParams()
	aPriv, aPub, err := p.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair a: %v", err)
	}
	bPriv, bPub, err := p.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair b: %v", err)
	}

	secretAB := p.SharedSecret(bPub, aPriv)
	secretBA := p.SharedSecret(aPub, bPriv)

	if secretAB.Cmp(secretBA) != 0 {
		t.Errorf("shared secrets disagree: %v != %v", secretAB, secretBA)
	}
}
