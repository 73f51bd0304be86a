// Package group implements the discrete-log group arithmetic the protocol
// runs its Diffie-Hellman handshake and Schnorr signatures over: a safe
// prime field M with prime-order subgroup Q, generator G (and its
// Montgomery-form counterpart Gm, preserved as a named field for fidelity
// with the reference implementation even though this package does not
// hand-roll Montgomery multiplication — see DESIGN.md).
package group

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
)

// Params holds the group's public parameters.
type Params struct {
	M  *big.Int // 3071-bit safe prime modulus
	Q  *big.Int // 320-bit prime order of the subgroup generated by G
	G  *big.Int // generator of the order-Q subgroup
	Gm *big.Int // G in Montgomery form, as carried on the wire save files
}

const (
	fileM  = "saved_M.dat"
	fileQ  = "saved_Q.dat"
	fileG  = "saved_G.dat"
	fileGm = "saved_Gm.dat"
)

// LoadParams reads the four group-parameter files from dir. These are
// generated once by whoever stands up a Rosetta deployment and distributed
// out of band; this package only ever reads them; it never generates a
// prime of its own, since validating a freshly generated "looks prime"
// candidate is exactly the kind of thing that should happen once, offline,
// with time to double-check it, not inline in a server's startup path.
func LoadParams(dir string) (*Params, error) {
	m, err := readBigInt(filepath.Join(dir, fileM))
	if err != nil {
		return nil, fmt.Errorf("load M: %w", err)
	}
	q, err := readBigInt(filepath.Join(dir, fileQ))
	if err != nil {
		return nil, fmt.Errorf("load Q: %w", err)
	}
	g, err := readBigInt(filepath.Join(dir, fileG))
	if err != nil {
		return nil, fmt.Errorf("load G: %w", err)
	}
	gm, err := readBigInt(filepath.Join(dir, fileGm))
	if err != nil {
		return nil, fmt.Errorf("load Gm: %w", err)
	}

	p := &Params{M: m, Q: q, G: g, Gm: gm}
	if err := p.selfCheck(); err != nil {
		return nil, fmt.Errorf("group parameter self-check: %w", err)
	}
	return p, nil
}

func readBigInt(path string) (*big.Int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(data), nil
}

// selfCheck confirms G actually generates a subgroup of order Q mod M:
// G^Q == 1 (mod M). It cannot prove M is a safe prime or that Q is prime —
// that trust is placed in whoever generated the save files — but it does
// catch a save-file mismatch (wrong file, truncated read, wrong byte order)
// before the server or client ever signs anything against a broken group.
func (p *Params) selfCheck() error {
	one := big.NewInt(1)
	result := new(big.Int).Exp(p.G, p.Q, p.M)
	if result.Cmp(one) != 0 {
		return fmt.Errorf("G^Q mod M != 1")
	}
	return nil
}

// TestParams returns a tiny hand-verified group for unit tests: M=23 is
// prime, Q=11 divides M-1=22, and G=4 has order 11 since 4^11 mod 23 = 1.
// Never used outside _test.go files; far too small to be secure.
func TestParams() *Params {
	return &Params{
		M:  big.NewInt(23),
		Q:  big.NewInt(11),
		G:  big.NewInt(4),
		Gm: big.NewInt(4),
	}
}

// ModPow computes base^exp mod M. Named for the wire format's "mont_pow"
// terminology, but implemented as plain big.Int modular exponentiation:
// math/big's Exp already runs in the time the modulus's bit length implies
// regardless of the exponent's value, which is what a Montgomery ladder is
// for here; hand-rolling Montgomery multiplication on top of math/big would
// only reimplement what Exp already does internally. See DESIGN.md.
func (p *Params) ModPow(base, exp *big.Int) *big.Int {
	return new(big.Int).Exp(base, exp, p.M)
}

// InSubgroup reports whether a received public key is a valid element of
// the order-Q subgroup: 0 < a < M and a^Q == 1 (mod M). Every public key
// accepted from the wire must pass this before it is used in any further
// computation (small-subgroup confinement).
func (p *Params) InSubgroup(a *big.Int) bool {
	if a.Sign() <= 0 || a.Cmp(p.M) >= 0 {
		return false
	}
	one := big.NewInt(1)
	return p.ModPow(a, p.Q).Cmp(one) == 0
}

// GenerateKeypair draws a fresh exponent uniformly from [1, Q) and returns
// it alongside its public key G^x mod M.
func (p *Params) GenerateKeypair() (priv, pub *big.Int, err error) {
	qMinus1 := new(big.Int).Sub(p.Q, big.NewInt(1))
	x, err := rand.Int(rand.Reader, qMinus1)
	if err != nil {
		return nil, nil, fmt.Errorf("generate private exponent: %w", err)
	}
	x.Add(x, big.NewInt(1)) // shift [0, Q-1) to [1, Q)
	pub = p.ModPow(p.G, x)
	return x, pub, nil
}

// SharedSecret computes the DH shared value peerPub^ownPriv mod M.
func (p *Params) SharedSecret(peerPub, ownPriv *big.Int) *big.Int {
	return p.ModPow(peerPub, ownPriv)
}

// RandomExponent draws a uniform value from [1, Q), used for Schnorr
// signature nonces as well as keypair generation.
func (p *Params) RandomExponent() (*big.Int, error) {
	qMinus1 := new(big.Int).Sub(p.Q, big.NewInt(1))
	k, err := rand.Int(rand.Reader, qMinus1)
	if err != nil {
		return nil, err
	}
	return k.Add(k, big.NewInt(1)), nil
}
