package rosettaserver

import (
	"crypto/subtle"
	"math/big"

	"github.com/tectonicboy/rosetta/internal/handshake"
	"github.com/tectonicboy/rosetta/internal/logging"
	"github.com/tectonicboy/rosetta/internal/primitives"
	"github.com/tectonicboy/rosetta/internal/registry"
	"github.com/tectonicboy/rosetta/internal/session"
	"github.com/tectonicboy/rosetta/internal/wire"
)

// processMagic00 begins a login: validate the client's ephemeral pubkey,
// draw the server's own ephemeral keypair, derive round-0's key material,
// and reply with the server's ephemeral pubkey signed over the shared
// authentication key Y.
func (s *Server) processMagic00(cc *clientConn, packet []byte) {
	req, err := wire.DecodeLogin00Request(packet)
	if err != nil {
		s.drop(cc, "malformed_login00")
		return
	}

	clientPub := new(big.Int).SetBytes(req.Pubkey[:])
	scratch, err := handshake.Begin(s.login, s.params, clientPub)
	if err != nil {
		if s.metrics != nil {
			s.metrics.LoginFailures.WithLabelValues(reasonFor(err)).Inc()
		}
		s.drop(cc, reasonFor(err))
		return
	}
	cc.scratch = scratch

	var pubBuf [wire.PubkeyBytes]byte
	scratch.EphemeralPub.FillBytes(pubBuf[:])

	reply := &wire.Login00Reply{Pubkey: pubBuf, Signature: s.sign(scratch.Slices.Y[:])}
	s.writeOrDrop(cc, reply.Encode())
}

// processMagic01 verifies the client's HMAC-bound long-term pubkey,
// decrypts it, and either allocates a registry slot (replying with the
// encrypted index) or rejects the login (full registry, duplicate pubkey,
// or a failed HMAC/subgroup check) without ever sending a reply to the two
// latter failures (§4.6's dispatcher table: malformed/unauthenticated
// packets are dropped silently).
func (s *Server) processMagic01(cc *clientConn, packet []byte) {
	if cc.scratch == nil {
		s.drop(cc, "login01_without_login00")
		return
	}
	scratch := cc.scratch

	req, err := wire.DecodeLogin01Request(packet)
	if err != nil {
		handshake.Abort(s.login)
		cc.scratch = nil
		s.drop(cc, "malformed_login01")
		return
	}

	expected := primitives.HMAC(scratch.Slices.KAB[:], req.EncryptedLongtermPubkey[:])
	if subtle.ConstantTimeCompare(expected[:wire.HMACTrunc], req.HMAC[:]) != 1 {
		handshake.Abort(s.login)
		cc.scratch = nil
		s.drop(cc, "hmac_mismatch")
		return
	}

	decrypted, err := primitives.StreamXOR(scratch.Slices.KAB, scratch.Slices.N[:], req.EncryptedLongtermPubkey[:])
	if err != nil {
		handshake.Abort(s.login)
		cc.scratch = nil
		s.drop(cc, "decrypt_failed")
		return
	}
	longtermPub := new(big.Int).SetBytes(decrypted)
	if !s.params.InSubgroup(longtermPub) {
		handshake.Abort(s.login)
		cc.scratch = nil
		s.drop(cc, "bad_longterm_pubkey")
		return
	}

	var pubBytes [wire.PubkeyBytes]byte
	copy(pubBytes[:], decrypted)

	ix, err := s.reg.AllocateClient(pubBytes)
	if err == registry.ErrDuplicate {
		handshake.Abort(s.login)
		cc.scratch = nil
		if s.metrics != nil {
			s.metrics.LoginFailures.WithLabelValues("duplicate_pubkey").Inc()
		}
		s.drop(cc, "duplicate_pubkey")
		return
	}
	if err == registry.ErrFull {
		reply := &wire.LoginFull02{Signature: s.signMagic(wire.MagicLoginFull02)}
		s.writeOrDrop(cc, reply.Encode())
		handshake.Abort(s.login)
		cc.scratch = nil
		if s.metrics != nil {
			s.metrics.LoginFailures.WithLabelValues("registry_full").Inc()
		}
		return
	}
	if err != nil {
		handshake.Abort(s.login)
		cc.scratch = nil
		s.drop(cc, "allocate_failed")
		return
	}

	// Server-derives the long-term session from its own long-term keypair
	// and the client's just-registered long-term pubkey (§4.5), independent
	// of the round-0 ephemeral secret, which is now done with its job.
	sharedSecret := s.params.SharedSecret(longtermPub, s.priv)
	var serverPubBytes [wire.PubkeyBytes]byte
	s.pub.FillBytes(serverPubBytes[:])
	slices := handshake.DeriveSessionSlices(sharedSecret, wire.PubkeyBytes)
	sess := session.New(serverPubBytes[:], pubBytes[:], slices.KAB, slices.KBA, slices.Nonce)

	s.mu.Lock()
	s.sessions[ix] = sess
	s.mu.Unlock()

	cc.userIx = ix
	cc.hasUser = true
	cc.sess = sess

	nonce := handshake.AddNonce(scratch.Slices.N[:], 1)
	var ixBuf [wire.SmallField]byte
	putU64LE(ixBuf[:], uint64(ix))
	encIx, err := primitives.StreamXOR(scratch.Slices.KBA, nonce, ixBuf[:])
	if err != nil {
		s.drop(cc, "encrypt_failed")
		handshake.Abort(s.login)
		cc.scratch = nil
		return
	}

	reply := &wire.Login01Reply{Signature: s.signMagic(wire.MagicLogin01)}
	copy(reply.EncryptedUserIx[:], encIx)
	s.writeOrDrop(cc, reply.Encode())

	handshake.Complete(s.login)
	cc.scratch = nil

	if s.metrics != nil {
		s.metrics.LoginsTotal.Inc()
		s.metrics.ClientsConnected.Inc()
	}
	logging.WithUser(cc.log, ix).Info("login complete")
}

func (s *Server) writeOrDrop(cc *clientConn, packet []byte) {
	if err := cc.writer.Write(packet); err != nil {
		cc.log.Debug("write failed", logging.KeyError, err.Error())
	}
}

func reasonFor(err error) string {
	switch err {
	case handshake.ErrInProgress:
		return "login_in_progress"
	case handshake.ErrBadPubkey:
		return "bad_pubkey"
	default:
		return "unknown"
	}
}

func putU64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}
