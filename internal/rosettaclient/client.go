// Package rosettaclient implements the client half of the Rosetta
// protocol: the login handshake, long-term session establishment, and the
// room/messaging operations layered on top of it. A Client owns exactly one
// TCP connection and the roommate/session state that connection's login
// establishes; the user-interaction and poller actors described in §5 both
// operate through the same Client under its single mutex.
package rosettaclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"sync"

	"github.com/tectonicboy/rosetta/internal/group"
	"github.com/tectonicboy/rosetta/internal/handshake"
	"github.com/tectonicboy/rosetta/internal/keystore"
	"github.com/tectonicboy/rosetta/internal/logging"
	"github.com/tectonicboy/rosetta/internal/primitives"
	"github.com/tectonicboy/rosetta/internal/session"
	"github.com/tectonicboy/rosetta/internal/wire"
)

var (
	ErrNotLoggedIn   = errors.New("rosettaclient: not logged in")
	ErrServerFull    = errors.New("rosettaclient: server registry is full")
	ErrBadServerSig  = errors.New("rosettaclient: server signature did not verify")
	ErrUnexpectedPkt = errors.New("rosettaclient: unexpected packet from server")
)

// Client drives one logged-in connection to a Rosetta relay server: its own
// long-term identity, the server's long-term pubkey (verified against every
// signed reply), the long-term session derived after login, and the
// roommate table a joined room populates.
//
// Every exported method that touches userIx, sess, or roommates takes mu,
// so the user-interaction thread and a background poller goroutine can
// share one Client safely (§5's single process-wide mutex).
type Client struct {
	params    *group.Params
	identity  *keystore.Identity
	serverPub *big.Int

	conn   net.Conn
	reader *wire.PacketReader
	writer *wire.PacketWriter

	log *slog.Logger

	mu        sync.Mutex
	userIx    uint32
	loggedIn  bool
	sess      *session.Key
	roommates map[uint64]*Roommate
}

// Roommate is one entry in a joined room's roster: the peer's registry
// index, its long-term pubkey, and the pairwise session derived from it
// (§4.5, applied between any two peers — not just client and server).
type Roommate struct {
	UserID uint64
	Pubkey *big.Int
	Sess   *session.Key
}

// New constructs a Client bound to a connected socket. params, identity,
// and serverPub must already be loaded by the caller (group parameter
// files, the local save file, and server_pubkey.dat respectively — §6).
func New(params *group.Params, identity *keystore.Identity, serverPub *big.Int, conn net.Conn, log *slog.Logger) *Client {
	if log == nil {
		log = logging.Nop()
	}
	return &Client{
		params:    params,
		identity:  identity,
		serverPub: serverPub,
		conn:      conn,
		reader:    wire.NewPacketReader(conn),
		writer:    wire.NewPacketWriter(conn),
		log:       log,
		roommates: make(map[uint64]*Roommate),
	}
}

// Register draws a fresh long-term keypair and writes a password-protected
// save file, without contacting any server (§4.2).
func Register(params *group.Params, password []byte, path string) (*keystore.Identity, error) {
	return keystore.Generate(params, password, path)
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Login runs the full four-packet handshake (§4.4) and, on success,
// derives the long-term session (§4.5). It blocks until the exchange
// completes, the server reports itself full, or ctx is canceled.
func (c *Client) Login(ctx context.Context) error {
	ephPriv, ephPub, err := c.params.GenerateKeypair()
	if err != nil {
		return fmt.Errorf("rosettaclient: generate ephemeral keypair: %w", err)
	}

	var ephPubBuf [wire.PubkeyBytes]byte
	ephPub.FillBytes(ephPubBuf[:])
	req := &wire.Login00Request{Pubkey: ephPubBuf}
	if err := c.send(req.Encode()); err != nil {
		return err
	}

	replyBuf, err := c.recv(ctx)
	if err != nil {
		return fmt.Errorf("rosettaclient: read login00 reply: %w", err)
	}
	reply, err := wire.DecodeLogin00Reply(replyBuf)
	if err != nil {
		return fmt.Errorf("rosettaclient: decode login00 reply: %w", err)
	}

	serverEphPub := new(big.Int).SetBytes(reply.Pubkey[:])
	if !validPubkey(c.params, serverEphPub) {
		return handshake.ErrBadPubkey
	}

	x := c.params.SharedSecret(serverEphPub, ephPriv)
	slices := handshake.DeriveHandshakeSlices(x, wire.PubkeyBytes)

	if !primitives.Verify(c.params, c.serverPub, slices.Y[:], primitives.DecodeSignature(reply.Signature[:], wire.PrivkeyBytes)) {
		return ErrBadServerSig
	}

	var longtermPubBuf [wire.PubkeyBytes]byte
	c.identity.Pub.FillBytes(longtermPubBuf[:])
	encLongterm, err := primitives.StreamXOR(slices.KAB, slices.N[:], longtermPubBuf[:])
	if err != nil {
		return fmt.Errorf("rosettaclient: encrypt long-term pubkey: %w", err)
	}
	hmacFull := primitives.HMAC(slices.KAB[:], encLongterm)

	req01 := &wire.Login01Request{}
	copy(req01.EncryptedLongtermPubkey[:], encLongterm)
	copy(req01.HMAC[:], hmacFull[:wire.HMACTrunc])
	if err := c.send(req01.Encode()); err != nil {
		return err
	}

	reply01Buf, err := c.recv(ctx)
	if err != nil {
		return fmt.Errorf("rosettaclient: read login01 reply: %w", err)
	}
	magic, err := wire.PeekMagic(reply01Buf)
	if err != nil {
		return err
	}
	if magic == wire.MagicLoginFull02 {
		return ErrServerFull
	}
	reply01, err := wire.DecodeLogin01Reply(reply01Buf)
	if err != nil {
		return fmt.Errorf("rosettaclient: decode login01 reply: %w", err)
	}

	var magicBuf [wire.SmallField]byte
	putU64LE(magicBuf[:], uint64(wire.MagicLogin01))
	if !primitives.Verify(c.params, c.serverPub, magicBuf[:], primitives.DecodeSignature(reply01.Signature[:], wire.PrivkeyBytes)) {
		return ErrBadServerSig
	}

	nonce := handshake.AddNonce(slices.N[:], 1)
	ixBuf, err := primitives.StreamXOR(slices.KBA, nonce, reply01.EncryptedUserIx[:])
	if err != nil {
		return fmt.Errorf("rosettaclient: decrypt user index: %w", err)
	}
	userIx := uint32(leU64(ixBuf))

	sharedSecret := c.params.SharedSecret(c.serverPub, c.identity.Priv)
	sessSlices := handshake.DeriveSessionSlices(sharedSecret, wire.PubkeyBytes)

	var ownPubBuf, serverPubBuf [wire.PubkeyBytes]byte
	c.identity.Pub.FillBytes(ownPubBuf[:])
	c.serverPub.FillBytes(serverPubBuf[:])
	sess := session.New(ownPubBuf[:], serverPubBuf[:], sessSlices.KAB, sessSlices.KBA, sessSlices.Nonce)

	c.mu.Lock()
	c.userIx = userIx
	c.sess = sess
	c.loggedIn = true
	c.mu.Unlock()

	c.log.Info("login complete", logging.KeyUserIndex, userIx)
	return nil
}

func (c *Client) send(packet []byte) error {
	return c.writer.Write(packet)
}

func (c *Client) recv(ctx context.Context) ([]byte, error) {
	type result struct {
		buf []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		buf, err := c.reader.Read()
		ch <- result{buf, err}
	}()
	select {
	case <-ctx.Done():
		c.conn.Close()
		return nil, ctx.Err()
	case r := <-ch:
		return r.buf, r.err
	}
}

func (c *Client) session() (*session.Key, uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loggedIn {
		return nil, 0, ErrNotLoggedIn
	}
	return c.sess, c.userIx, nil
}

func validPubkey(p *group.Params, pub *big.Int) bool {
	if pub.Sign() <= 0 || pub.Cmp(p.M) >= 0 {
		return false
	}
	return p.InSubgroup(pub)
}

func putU64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}

func leU64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
