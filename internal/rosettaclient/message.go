package rosettaclient

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/tectonicboy/rosetta/internal/logging"
	"github.com/tectonicboy/rosetta/internal/primitives"
	"github.com/tectonicboy/rosetta/internal/wire"
)

// Message is one decrypted incoming text, surfaced to the caller from
// Poll/PollLoop.
type Message struct {
	SenderID uint64
	Text     []byte
}

// SendText draws a fresh per-recipient key for every current roommate,
// wraps the plaintext under it, and wraps that key under the recipient's
// pairwise session key, then sends the whole request in one packet
// (§4.6's send-text AD shape).
func (c *Client) SendText(text []byte) error {
	if len(text) > wire.MaxText {
		return fmt.Errorf("rosettaclient: text exceeds %d bytes", wire.MaxText)
	}

	sess, userIx, err := c.session()
	if err != nil {
		return err
	}

	c.mu.Lock()
	roommates := make([]*Roommate, 0, len(c.roommates))
	for _, r := range c.roommates {
		roommates = append(roommates, r)
	}
	c.mu.Unlock()

	recipients := make([]wire.RecipientSlot, 0, len(roommates))
	for _, r := range roommates {
		var msgKey [wire.SessionKey]byte
		if _, err := rand.Read(msgKey[:]); err != nil {
			return fmt.Errorf("rosettaclient: draw message key: %w", err)
		}

		// Order matters: the recipient's session nonce counter is shared
		// between this key-wrap and the message below, and decryptRelay
		// must draw the same two nonces in the same order — key-wrap
		// first, message second — since it needs the unwrapped key before
		// it can touch the ciphertext at all.
		keyEnc, err := r.Sess.Encrypt(msgKey[:])
		if err != nil {
			return fmt.Errorf("rosettaclient: wrap message key: %w", err)
		}
		msgNonce := r.Sess.NextNonce()
		cipherText, err := primitives.StreamXOR(msgKey, msgNonce[:], text)
		if err != nil {
			return fmt.Errorf("rosettaclient: encrypt message: %w", err)
		}

		slot := wire.RecipientSlot{GuestID: r.UserID, CipherText: cipherText}
		copy(slot.KeyEnc[:], keyEnc)
		recipients = append(recipients, slot)
	}

	req := &wire.SendTextRequest{SenderIx: uint64(userIx), TextLen: uint64(len(text)), Recipients: recipients}
	encoded := req.Encode()
	signed := encoded[:len(encoded)-wire.SignatureLen]
	sig, err := primitives.Sign(c.params, c.identity.Priv, signed)
	if err != nil {
		return fmt.Errorf("rosettaclient: sign message: %w", err)
	}
	copy(req.Signature[:], primitives.EncodeSignature(sig, wire.PrivkeyBytes))

	_ = sess // only needed to confirm the login precondition above
	return c.send(req.Encode())
}

// decryptRelay finds the caller's own recipient slot in a relayed send-text
// packet, verifies both signatures, and decrypts the plaintext (§4.6's
// "receive text" description).
func (c *Client) decryptRelay(relay *wire.SendTextRelay) (*Message, error) {
	signedByServer := relay.SendTextRequest.Encode()
	if !primitives.Verify(c.params, c.serverPub, signedByServer, primitives.DecodeSignature(relay.ServerSignature[:], wire.PrivkeyBytes)) {
		return nil, ErrBadServerSig
	}

	c.mu.Lock()
	sender, ok := c.roommates[relay.SenderIx]
	userIx := c.userIx
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("rosettaclient: message from unknown roommate %d", relay.SenderIx)
	}

	signedBySender := relay.SendTextRequest.Encode()
	signedBySender = signedBySender[:len(signedBySender)-wire.SignatureLen]
	if !primitives.Verify(c.params, sender.Pubkey, signedBySender, primitives.DecodeSignature(relay.Signature[:], wire.PrivkeyBytes)) {
		return nil, fmt.Errorf("rosettaclient: sender signature did not verify")
	}

	var own *wire.RecipientSlot
	for i := range relay.Recipients {
		if relay.Recipients[i].GuestID == uint64(userIx) {
			own = &relay.Recipients[i]
			break
		}
	}
	if own == nil {
		return nil, fmt.Errorf("rosettaclient: no recipient slot addressed to this client")
	}

	keyBytes, err := sender.Sess.Decrypt(own.KeyEnc[:])
	if err != nil {
		return nil, fmt.Errorf("rosettaclient: unwrap message key: %w", err)
	}
	var msgKey [wire.SessionKey]byte
	copy(msgKey[:], keyBytes)

	msgNonce := sender.Sess.NextNonce()
	plaintext, err := primitives.StreamXOR(msgKey, msgNonce[:], own.CipherText)
	if err != nil {
		return nil, fmt.Errorf("rosettaclient: decrypt message: %w", err)
	}

	return &Message{SenderID: relay.SenderIx, Text: plaintext}, nil
}

// Poll sends one signed poll request and returns at most one decoded
// envelope: a Message, nil with no error if the server reports nothing
// pending, or an error if the reply is malformed or unverifiable. Room
// roster updates (new-guest/guest-left/owner-left) are applied internally
// and never surfaced as a Message.
func (c *Client) Poll(ctx context.Context) (*Message, error) {
	sess, userIx, err := c.session()
	if err != nil {
		return nil, err
	}

	req := &wire.UserIDPacket{Magic: wire.MagicPoll40, UserID: uint64(userIx)}
	signed := req.Encode()
	signed = signed[:len(signed)-wire.SignatureLen]
	sig, err := primitives.Sign(c.params, c.identity.Priv, signed)
	if err != nil {
		return nil, fmt.Errorf("rosettaclient: sign poll request: %w", err)
	}
	copy(req.Signature[:], primitives.EncodeSignature(sig, wire.PrivkeyBytes))
	if err := c.send(req.Encode()); err != nil {
		return nil, err
	}

	buf, err := c.recv(ctx)
	if err != nil {
		return nil, fmt.Errorf("rosettaclient: read poll reply: %w", err)
	}

	_ = sess
	return c.handleEnvelope(buf)
}

// handleEnvelope decodes and applies one server-delivered envelope,
// dispatching on its magic.
func (c *Client) handleEnvelope(buf []byte) (*Message, error) {
	magic, err := wire.PeekMagic(buf)
	if err != nil {
		return nil, err
	}

	switch magic {
	case wire.MagicPollEmpty41:
		return nil, nil
	case wire.MagicSendText30:
		relay, err := wire.DecodeSendTextRelay(buf)
		if err != nil {
			return nil, fmt.Errorf("rosettaclient: decode relayed message: %w", err)
		}
		return c.decryptRelay(relay)
	case wire.MagicNewGuest21:
		push, err := wire.DecodeNewGuestPush(buf)
		if err != nil {
			return nil, fmt.Errorf("rosettaclient: decode new-guest push: %w", err)
		}
		return nil, c.handleNewGuestPush(push)
	case wire.MagicGuestLeft50:
		notice, err := wire.DecodeGuestLeft(buf)
		if err != nil {
			return nil, fmt.Errorf("rosettaclient: decode guest-left notice: %w", err)
		}
		var magicBuf [2 * wire.SmallField]byte
		putU64LE(magicBuf[:wire.SmallField], uint64(notice.Magic))
		putU64LE(magicBuf[wire.SmallField:], notice.UserID)
		if !primitives.Verify(c.params, c.serverPub, magicBuf[:], primitives.DecodeSignature(notice.Signature[:], wire.PrivkeyBytes)) {
			return nil, ErrBadServerSig
		}
		c.mu.Lock()
		delete(c.roommates, notice.UserID)
		c.mu.Unlock()
		logging.WithUser(c.log, uint32(notice.UserID)).Info("roommate left room")
		return nil, nil
	case wire.MagicOwnerLeft51:
		ack, err := wire.DecodeOwnerLeft(buf)
		if err != nil {
			return nil, fmt.Errorf("rosettaclient: decode owner-left notice: %w", err)
		}
		var magicBuf [wire.SmallField]byte
		putU64LE(magicBuf[:], uint64(ack.Magic))
		if !primitives.Verify(c.params, c.serverPub, magicBuf[:], primitives.DecodeSignature(ack.Signature[:], wire.PrivkeyBytes)) {
			return nil, ErrBadServerSig
		}
		c.mu.Lock()
		c.roommates = make(map[uint64]*Roommate)
		c.mu.Unlock()
		c.log.Info("room owner left, roommate table cleared")
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: magic %s", ErrUnexpectedPkt, magic)
	}
}

// PollLoop runs Poll on interval until ctx is canceled, delivering each
// non-empty result on messages. This is the poller actor of §5's two
// concurrent-actor model; it shares the Client's mutex with whatever
// goroutine is driving CreateRoom/JoinRoom/SendText calls on the same
// Client, never its own separate state.
func (c *Client) PollLoop(ctx context.Context, interval time.Duration, messages chan<- *Message) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg, err := c.Poll(ctx)
			if err != nil {
				c.log.Debug("poll failed", logging.KeyError, err.Error())
				continue
			}
			if msg != nil {
				messages <- msg
			}
		}
	}
}

// GuestLeave tells the server the caller is leaving its current room
// without logging off entirely (§4.6's "guest leaves").
func (c *Client) GuestLeave() error {
	_, userIx, err := c.session()
	if err != nil {
		return err
	}
	req := &wire.UserIDPacket{Magic: wire.MagicGuestLeft50, UserID: uint64(userIx)}
	signed := req.Encode()
	signed = signed[:len(signed)-wire.SignatureLen]
	sig, err := primitives.Sign(c.params, c.identity.Priv, signed)
	if err != nil {
		return fmt.Errorf("rosettaclient: sign guest-left request: %w", err)
	}
	copy(req.Signature[:], primitives.EncodeSignature(sig, wire.PrivkeyBytes))

	c.mu.Lock()
	c.roommates = make(map[uint64]*Roommate)
	c.mu.Unlock()

	return c.send(req.Encode())
}

// Logoff tells the server to free the caller's client slot entirely,
// closing the room it owns if any (§4.6).
func (c *Client) Logoff() error {
	_, userIx, err := c.session()
	if err != nil {
		return err
	}
	req := &wire.UserIDPacket{Magic: wire.MagicLogoff60, UserID: uint64(userIx)}
	signed := req.Encode()
	signed = signed[:len(signed)-wire.SignatureLen]
	sig, err := primitives.Sign(c.params, c.identity.Priv, signed)
	if err != nil {
		return fmt.Errorf("rosettaclient: sign logoff request: %w", err)
	}
	copy(req.Signature[:], primitives.EncodeSignature(sig, wire.PrivkeyBytes))

	if err := c.send(req.Encode()); err != nil {
		return err
	}

	c.mu.Lock()
	c.loggedIn = false
	c.roommates = make(map[uint64]*Roommate)
	c.mu.Unlock()
	return nil
}
