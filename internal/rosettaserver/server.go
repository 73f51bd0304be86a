// Package rosettaserver implements the relay server's accept loop and
// packet dispatcher: one goroutine per connection, reading length-prefixed
// packets and routing each by its magic, with the client/room registry and
// the single in-flight login guarded by their own internal locks so
// handlers never need to coordinate directly with each other (§5).
package rosettaserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"sync"

	"github.com/tectonicboy/rosetta/internal/group"
	"github.com/tectonicboy/rosetta/internal/handshake"
	"github.com/tectonicboy/rosetta/internal/logging"
	"github.com/tectonicboy/rosetta/internal/primitives"
	"github.com/tectonicboy/rosetta/internal/registry"
	"github.com/tectonicboy/rosetta/internal/session"
	"github.com/tectonicboy/rosetta/internal/wire"
)

// Server is the Rosetta relay server: a registry of logged-in clients and
// rooms, a single global in-flight login (handshake_locked, §4.4), and the
// long-term identity it signs every reply with.
type Server struct {
	params *group.Params
	priv   *big.Int
	pub    *big.Int

	reg     *registry.Registry
	login   *handshake.Login
	metrics *Metrics
	log     *slog.Logger

	mu       sync.Mutex
	sessions map[uint32]*session.Key // server<->client long-term session, by registry index

	listener net.Listener
}

// New constructs a Server. priv is the server's long-term private exponent;
// its public counterpart is derived here rather than read from disk, so the
// two files (§6's server_privkey.dat / server_pubkey.dat) can never drift.
func New(params *group.Params, priv *big.Int, log *slog.Logger, metrics *Metrics) *Server {
	if log == nil {
		log = logging.Nop()
	}
	return &Server{
		params:   params,
		priv:     priv,
		pub:      params.ModPow(params.G, priv),
		reg:      registry.New(),
		login:    handshake.NewLogin(),
		metrics:  metrics,
		log:      log,
		sessions: make(map[uint32]*session.Key),
	}
}

// LoadServerPrivkey reads the fixed 40-byte raw private exponent file
// described in §6 ("Files consumed at startup: server_privkey.dat").
func LoadServerPrivkey(path string) (*big.Int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read server privkey: %w", err)
	}
	if len(data) != wire.PrivkeyBytes {
		return nil, fmt.Errorf("server privkey: got %d bytes, want %d", len(data), wire.PrivkeyBytes)
	}
	return new(big.Int).SetBytes(data), nil
}

// Serve accepts connections on addr until ctx is canceled or Serve's
// listener is closed.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lc := net.ListenConfig{Control: setReuseAddr}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.listener = ln

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.Info("server listening", logging.KeyLocalAddr, addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}
		go s.handleConn(conn)
	}
}

// clientConn is the per-connection state a handler needs across packets:
// the registry index this connection logged in as (once known), its
// long-term session with the server, and the in-flight handshake scratch
// between this connection's MAGIC_00 and MAGIC_01.
type clientConn struct {
	conn    net.Conn
	writer  *wire.PacketWriter
	userIx  uint32
	hasUser bool
	sess    *session.Key
	scratch *handshake.Scratch
	log     *slog.Logger
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	cc := &clientConn{
		conn:   conn,
		writer: wire.NewPacketWriter(conn),
		log:    logging.WithConn(s.log, conn.RemoteAddr().String()),
	}
	reader := wire.NewPacketReader(conn)

	defer s.cleanupConn(cc)

	for {
		packet, err := reader.Read()
		if err != nil {
			return
		}
		magic, err := wire.PeekMagic(packet)
		if err != nil {
			continue
		}
		s.dispatch(cc, magic, packet)
	}
}

func (s *Server) cleanupConn(cc *clientConn) {
	if cc.scratch != nil {
		handshake.Abort(s.login)
	}
	if cc.hasUser {
		s.mu.Lock()
		delete(s.sessions, cc.userIx)
		s.mu.Unlock()
		ownedRoom, isOwner := s.ownedRoomOf(cc.userIx)
		_ = s.reg.FreeClient(cc.userIx)
		if s.metrics != nil {
			s.metrics.ClientsConnected.Dec()
		}
		if isOwner {
			s.closeOwnedRoom(ownedRoom, cc.userIx)
		}
		cc.log.Debug("connection closed")
	}
}

func (s *Server) dispatch(cc *clientConn, magic wire.Magic, packet []byte) {
	switch magic {
	case wire.MagicLogin00:
		s.processMagic00(cc, packet)
	case wire.MagicLogin01:
		s.processMagic01(cc, packet)
	case wire.MagicCreateRoom10:
		s.processCreateRoom(cc, packet)
	case wire.MagicJoinRoom20:
		s.processJoinRoom(cc, packet)
	case wire.MagicSendText30:
		s.processSendText(cc, packet)
	case wire.MagicPoll40:
		s.processPoll(cc, packet)
	case wire.MagicGuestLeft50:
		s.processGuestLeft(cc, packet)
	case wire.MagicLogoff60:
		s.processLogoff(cc, packet)
	default:
		s.drop(cc, "unknown_magic")
	}
}

func (s *Server) drop(cc *clientConn, reason string) {
	if s.metrics != nil {
		s.metrics.PacketsDropped.WithLabelValues(reason).Inc()
	}
	cc.log.Debug("dropped packet", logging.KeyReason, reason)
}

// sign produces a Schnorr signature over payload exactly as given. Handlers
// that sign an encoded packet follow a "build the struct, Encode it once
// with a zero signature, sign the prefix, set the signature, Encode again"
// pattern, slicing the trailing signature field off before calling sign.
func (s *Server) sign(payload []byte) [wire.SignatureLen]byte {
	sig, err := primitives.Sign(s.params, s.priv, payload)
	if err != nil {
		// RandomExponent only fails if the OS RNG is broken; there is no
		// sane fallback at that point.
		panic(fmt.Sprintf("rosettaserver: sign: %v", err))
	}
	var out [wire.SignatureLen]byte
	copy(out[:], primitives.EncodeSignature(sig, wire.PrivkeyBytes))
	return out
}

func (s *Server) verify(pub *big.Int, payload []byte, sig [wire.SignatureLen]byte) bool {
	return primitives.Verify(s.params, pub, payload, primitives.DecodeSignature(sig[:], wire.PrivkeyBytes))
}

// signMagic signs a bare magic value — every ack-shaped reply (room-full,
// poll-empty, owner-left, the login-full packet, and the login-01 success
// reply) carries "a signature of the magic" and nothing else (§4.4, §4.6).
func (s *Server) signMagic(m wire.Magic) [wire.SignatureLen]byte {
	var buf [wire.SmallField]byte
	putU64LE(buf[:], uint64(m))
	return s.sign(buf[:])
}

// signUserID signs a magic paired with a user index — the guest-left
// broadcast's signed shape is `{magic_50, guest_user_id}` (§4.6), one field
// wider than the bare-magic acks signMagic covers.
func (s *Server) signUserID(m wire.Magic, userID uint64) [wire.SignatureLen]byte {
	var buf [2 * wire.SmallField]byte
	putU64LE(buf[:wire.SmallField], uint64(m))
	putU64LE(buf[wire.SmallField:], userID)
	return s.sign(buf[:])
}

func (s *Server) clientPubkey(ix uint32) (*big.Int, error) {
	c, err := s.reg.GetClient(ix)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(c.Pubkey[:]), nil
}

func (s *Server) sessionFor(ix uint32) (*session.Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[ix]
	return sess, ok
}

// ownedRoomOf returns the room ix owned by ix, if any, before that client's
// registry slot is freed — closeOwnedRoom needs the room ix looked up while
// the owner's own slot (and RoomIx field) is still readable.
func (s *Server) ownedRoomOf(ix uint32) (roomIx uint32, isOwner bool) {
	c, err := s.reg.GetClient(ix)
	if err != nil || c.RoomIx == 0 {
		return 0, false
	}
	room, err := s.reg.GetRoom(c.RoomIx)
	if err != nil || room.OwnerIx != ix {
		return 0, false
	}
	return c.RoomIx, true
}

var errNotLoggedIn = errors.New("rosettaserver: connection has not completed login")
