package rosettaclient

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/tectonicboy/rosetta/internal/handshake"
	"github.com/tectonicboy/rosetta/internal/logging"
	"github.com/tectonicboy/rosetta/internal/primitives"
	"github.com/tectonicboy/rosetta/internal/session"
	"github.com/tectonicboy/rosetta/internal/wire"
)

// CreateRoom draws a fresh room key, sends the signed create-room request,
// and waits for the server's ack (§4.6). roomID is the caller's own choice
// of identifier, shared with guests out of band so they can join.
func (c *Client) CreateRoom(ctx context.Context, roomID uint64) error {
	sess, userIx, err := c.session()
	if err != nil {
		return err
	}

	var roomKey [wire.SessionKey]byte
	if _, err := rand.Read(roomKey[:]); err != nil {
		return fmt.Errorf("rosettaclient: draw room key: %w", err)
	}

	req, err := c.buildRoomRequest(wire.MagicCreateRoom10, sess, userIx, roomID, roomKey)
	if err != nil {
		return err
	}
	if err := c.send(req.Encode()); err != nil {
		return err
	}

	replyBuf, err := c.recv(ctx)
	if err != nil {
		return fmt.Errorf("rosettaclient: read create-room reply: %w", err)
	}
	magic, err := wire.PeekMagic(replyBuf)
	if err != nil {
		return err
	}
	if magic == wire.MagicRoomFull11 {
		return fmt.Errorf("rosettaclient: no room slot available")
	}
	ack, err := wire.DecodeCreateRoomAck(replyBuf)
	if err != nil {
		return fmt.Errorf("rosettaclient: decode create-room ack: %w", err)
	}
	var magicBuf [wire.SmallField]byte
	putU64LE(magicBuf[:], uint64(ack.Magic))
	if !primitives.Verify(c.params, c.serverPub, magicBuf[:], primitives.DecodeSignature(ack.Signature[:], wire.PrivkeyBytes)) {
		return ErrBadServerSig
	}

	c.mu.Lock()
	c.roommates = make(map[uint64]*Roommate)
	c.mu.Unlock()

	c.log.Info("room created", "room_id", roomID)
	return nil
}

// JoinRoom sends a signed join-room request, decrypts the reply's roster,
// and populates the roommate table. Each current occupant becomes a
// Roommate with its own pairwise session derived against the caller's own
// long-term keypair (§4.5's same construction, applied peer to peer rather
// than client to server).
func (c *Client) JoinRoom(ctx context.Context, roomID uint64) error {
	sess, userIx, err := c.session()
	if err != nil {
		return err
	}

	var onetimeKey [wire.SessionKey]byte
	if _, err := rand.Read(onetimeKey[:]); err != nil {
		return fmt.Errorf("rosettaclient: draw one-time key: %w", err)
	}

	req, err := c.buildRoomRequest(wire.MagicJoinRoom20, sess, userIx, roomID, onetimeKey)
	if err != nil {
		return err
	}
	if err := c.send(req.Encode()); err != nil {
		return err
	}

	replyBuf, err := c.recv(ctx)
	if err != nil {
		return fmt.Errorf("rosettaclient: read join-room reply: %w", err)
	}
	reply, err := wire.DecodeJoinRoomReply(replyBuf)
	if err != nil {
		return fmt.Errorf("rosettaclient: decode join-room reply: %w", err)
	}
	signed := reply.Encode()
	signed = signed[:len(signed)-wire.SignatureLen]
	if !primitives.Verify(c.params, c.serverPub, signed, primitives.DecodeSignature(reply.Signature[:], wire.PrivkeyBytes)) {
		return ErrBadServerSig
	}

	roomKeyBytes, err := sess.Decrypt(reply.EncryptedOnetime[:])
	if err != nil {
		return fmt.Errorf("rosettaclient: decrypt room key: %w", err)
	}
	var roomKey [wire.SessionKey]byte
	copy(roomKey[:], roomKeyBytes)

	adNonce := sess.NextNonce()
	adPlain, err := primitives.StreamXOR(roomKey, adNonce[:], reply.EncryptedAD)
	if err != nil {
		return fmt.Errorf("rosettaclient: decrypt roster: %w", err)
	}
	guests, err := wire.DecodeGuestInfoList(adPlain, reply.N)
	if err != nil {
		return fmt.Errorf("rosettaclient: decode roster: %w", err)
	}

	c.mu.Lock()
	for _, g := range guests {
		c.roommates[g.UserID] = c.newRoommate(g.UserID, g.Pubkey)
	}
	c.mu.Unlock()

	c.log.Info("joined room", logging.KeyCount, len(guests))
	return nil
}

// buildRoomRequest encrypts a room operation's shared payload shape: draw
// the one-time key under the caller's session (first nonce), then the
// room_id||user_id payload under that one-time key (second nonce) — the
// same two-step sequence for both create and join (§4.6).
func (c *Client) buildRoomRequest(magic wire.Magic, sess *session.Key, userIx uint32, roomID uint64, onetimeKey [wire.SessionKey]byte) (*wire.CreateJoinRequest, error) {
	encKey, err := sess.Encrypt(onetimeKey[:])
	if err != nil {
		return nil, fmt.Errorf("rosettaclient: encrypt one-time key: %w", err)
	}

	var payload [2 * wire.SmallField]byte
	putU64LE(payload[0:8], roomID)
	putU64LE(payload[8:16], uint64(userIx))

	payloadNonce := sess.NextNonce()
	encPayload, err := primitives.StreamXOR(onetimeKey, payloadNonce[:], payload[:])
	if err != nil {
		return nil, fmt.Errorf("rosettaclient: encrypt payload: %w", err)
	}

	req := &wire.CreateJoinRequest{Magic: magic, UserIx: uint64(userIx)}
	copy(req.EncryptedOnetime[:], encKey)
	copy(req.EncryptedPayload[:], encPayload)

	encoded := req.Encode()
	signed := encoded[:len(encoded)-wire.SignatureLen]
	sig, err := primitives.Sign(c.params, c.identity.Priv, signed)
	if err != nil {
		return nil, fmt.Errorf("rosettaclient: sign room request: %w", err)
	}
	copy(req.Signature[:], primitives.EncodeSignature(sig, wire.PrivkeyBytes))
	return req, nil
}

// newRoommate derives the pairwise session with a newly-seen roommate,
// using the same construction as the client/server long-term session
// (§4.5, "applied pairwise between any two roommates").
func (c *Client) newRoommate(userID uint64, pubBytes [wire.PubkeyBytes]byte) *Roommate {
	peerPub := new(big.Int).SetBytes(pubBytes[:])
	shared := c.params.SharedSecret(peerPub, c.identity.Priv)
	slices := handshake.DeriveSessionSlices(shared, wire.PubkeyBytes)

	var ownPubBuf [wire.PubkeyBytes]byte
	c.identity.Pub.FillBytes(ownPubBuf[:])

	return &Roommate{
		UserID: userID,
		Pubkey: peerPub,
		Sess:   session.New(ownPubBuf[:], pubBytes[:], slices.KAB, slices.KBA, slices.Nonce),
	}
}

// handleNewGuestPush applies an unsolicited new-guest notification: decrypt
// the room key (discarded — the client keeps no room key), the guest's
// id, and its pubkey, then add a roommate entry (§4.6's packet 21).
func (c *Client) handleNewGuestPush(push *wire.NewGuestPush) error {
	sess, _, err := c.session()
	if err != nil {
		return err
	}

	signed := push.Encode()
	signed = signed[:len(signed)-wire.SignatureLen]
	if !primitives.Verify(c.params, c.serverPub, signed, primitives.DecodeSignature(push.Signature[:], wire.PrivkeyBytes)) {
		return ErrBadServerSig
	}

	if _, err := sess.Decrypt(push.EncryptedOnetime[:]); err != nil {
		return fmt.Errorf("rosettaclient: decrypt room key: %w", err)
	}
	guestIDBytes, err := sess.Decrypt(push.EncryptedGuestID[:])
	if err != nil {
		return fmt.Errorf("rosettaclient: decrypt guest id: %w", err)
	}
	guestID := leU64(guestIDBytes)
	pubBytes, err := sess.Decrypt(push.EncryptedPubkey[:])
	if err != nil {
		return fmt.Errorf("rosettaclient: decrypt guest pubkey: %w", err)
	}
	var pubBuf [wire.PubkeyBytes]byte
	copy(pubBuf[:], pubBytes)

	c.mu.Lock()
	c.roommates[guestID] = c.newRoommate(guestID, pubBuf)
	c.mu.Unlock()

	logging.WithUser(c.log, uint32(guestID)).Info("new guest joined room")
	return nil
}
