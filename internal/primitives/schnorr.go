package primitives

import (
	"math/big"

	"github.com/tectonicboy/rosetta/internal/group"
)

// Signature is a Schnorr signature over the group's safe-prime field,
// wire-encoded as s[PRIVKEY_BYTES] || e[PRIVKEY_BYTES] (Design Note #2: a
// fixed 80-byte shape, no bigint length header).
type Signature struct {
	S *big.Int
	E *big.Int
}

// Sign produces a Schnorr signature over payload under priv, using params
// for the group arithmetic: draw a random nonce k, commit r = G^k mod M,
// derive the challenge e = H(r || payload) mod Q, and close s = (k - e*priv)
// mod Q.
func Sign(p *group.Params, priv *big.Int, payload []byte) (*Signature, error) {
	k, err := p.RandomExponent()
	if err != nil {
		return nil, err
	}
	r := p.ModPow(p.G, k)

	e := challenge(p, r, payload)

	s := new(big.Int).Mul(e, priv)
	s.Sub(k, s)
	s.Mod(s, p.Q)

	return &Signature{S: s, E: e}, nil
}

// Verify checks a Schnorr signature against pub: recompute r' = G^s *
// pub^e mod M, and accept iff H(r' || payload) mod Q equals the signature's
// e. The caller is responsible for having already confirmed pub lies in
// the order-Q subgroup (group.Params.InSubgroup) before calling Verify.
func Verify(p *group.Params, pub *big.Int, payload []byte, sig *Signature) bool {
	gs := p.ModPow(p.G, sig.S)
	ye := p.ModPow(pub, sig.E)
	rPrime := new(big.Int).Mul(gs, ye)
	rPrime.Mod(rPrime, p.M)

	ePrime := challenge(p, rPrime, payload)
	return ePrime.Cmp(sig.E) == 0
}

func challenge(p *group.Params, r *big.Int, payload []byte) *big.Int {
	h := Hash(append(r.Bytes(), payload...))
	e := new(big.Int).SetBytes(h[:])
	return e.Mod(e, p.Q)
}

// EncodeSignature serializes a Signature to its fixed 80-byte wire form.
func EncodeSignature(sig *Signature, privkeyBytes int) []byte {
	out := make([]byte, 2*privkeyBytes)
	sig.S.FillBytes(out[:privkeyBytes])
	sig.E.FillBytes(out[privkeyBytes:])
	return out
}

// DecodeSignature parses a Signature from its fixed-width wire form.
func DecodeSignature(buf []byte, privkeyBytes int) *Signature {
	return &Signature{
		S: new(big.Int).SetBytes(buf[:privkeyBytes]),
		E: new(big.Int).SetBytes(buf[privkeyBytes:]),
	}
}
