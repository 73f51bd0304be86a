package rosettaserver

import (
	"github.com/tectonicboy/rosetta/internal/logging"
	"github.com/tectonicboy/rosetta/internal/primitives"
	"github.com/tectonicboy/rosetta/internal/registry"
	"github.com/tectonicboy/rosetta/internal/wire"
)

// decodeRoomPayload splits a create/join request's decrypted 16-byte
// payload into its room_id and user_id halves (§4.6).
func decodeRoomPayload(payload []byte) (roomID, userID uint64) {
	return leU64(payload[0:8]), leU64(payload[8:16])
}

func leU64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// openRoomRequest verifies and decrypts the shared create/join request
// shape: checks the caller is logged in and naming itself, verifies the
// signature, decrypts the one-time key under the session, then decrypts
// the payload under that one-time key. Both decryptions consume the
// session's next nonce in order (§4.6: "after both encryptions the nonce
// counter is incremented by 2").
func (s *Server) openRoomRequest(cc *clientConn, req *wire.CreateJoinRequest) (onetimeKey [wire.SessionKey]byte, roomID uint64, ok bool) {
	if !cc.hasUser || uint64(cc.userIx) != req.UserIx {
		s.drop(cc, "room_request_identity_mismatch")
		return onetimeKey, 0, false
	}
	pub, err := s.clientPubkey(cc.userIx)
	if err != nil {
		s.drop(cc, "unknown_client")
		return onetimeKey, 0, false
	}
	signed := req.Encode()
	signed = signed[:len(signed)-wire.SignatureLen]
	if !s.verify(pub, signed, req.Signature) {
		s.drop(cc, "bad_signature")
		return onetimeKey, 0, false
	}

	sess, ok2 := s.sessionFor(cc.userIx)
	if !ok2 {
		s.drop(cc, "no_session")
		return onetimeKey, 0, false
	}

	keyBytes, err := sess.Decrypt(req.EncryptedOnetime[:])
	if err != nil {
		s.drop(cc, "decrypt_onetime_failed")
		return onetimeKey, 0, false
	}
	copy(onetimeKey[:], keyBytes)

	payloadNonce := sess.NextNonce()
	payload, err := primitives.StreamXOR(onetimeKey, payloadNonce[:], req.EncryptedPayload[:])
	if err != nil {
		s.drop(cc, "decrypt_payload_failed")
		return onetimeKey, 0, false
	}
	rid, uid := decodeRoomPayload(payload)
	if uid != req.UserIx {
		s.drop(cc, "payload_identity_mismatch")
		return onetimeKey, 0, false
	}
	return onetimeKey, rid, true
}

// processCreateRoom allocates a fresh room slot keyed by the room's own
// one-time key, storing that key as the room's lasting shared key for
// every later joiner (§4.6's create reply is a bare signed ack; there is
// no room index on the wire — guests locate the room by its room_id).
func (s *Server) processCreateRoom(cc *clientConn, packet []byte) {
	req, err := wire.DecodeCreateRoomRequest(packet)
	if err != nil {
		s.drop(cc, "malformed_create_room")
		return
	}
	key, roomID, ok := s.openRoomRequest(cc, req)
	if !ok {
		return
	}

	roomIx, err := s.reg.AllocateRoom(cc.userIx, roomID, key)
	if err == registry.ErrDuplicate {
		s.drop(cc, "room_id_collision")
		return
	}
	if err == registry.ErrFull {
		ack := &wire.AckPacket{Magic: wire.MagicRoomFull11, Signature: s.signMagic(wire.MagicRoomFull11)}
		s.writeOrDrop(cc, ack.Encode())
		return
	}
	if err != nil {
		s.drop(cc, "allocate_room_failed")
		return
	}

	if err := s.reg.SetClientRoom(cc.userIx, roomIx); err != nil {
		s.drop(cc, "set_room_failed")
		return
	}

	if s.metrics != nil {
		s.metrics.RoomsActive.Inc()
	}
	logging.WithRoom(logging.WithUser(cc.log, cc.userIx), roomIx).Info("room created")

	ack := &wire.AckPacket{Magic: wire.MagicCreateRoom10, Signature: s.signMagic(wire.MagicCreateRoom10)}
	s.writeOrDrop(cc, ack.Encode())
}

// processJoinRoom adds the caller to an existing room: re-wraps the room's
// stored key for the joiner, lists current occupants as associated data
// under that key, and pushes a new-guest notification to every existing
// occupant's pending queue.
func (s *Server) processJoinRoom(cc *clientConn, packet []byte) {
	req, err := wire.DecodeJoinRoomRequest(packet)
	if err != nil {
		s.drop(cc, "malformed_join_room")
		return
	}
	// The joiner's own one-time key only authenticates this request; the
	// room's real shared key is the one stored at creation time.
	_, roomID, ok := s.openRoomRequest(cc, req)
	if !ok {
		return
	}

	roomIx, err := s.reg.FindRoomByRoomID(roomID)
	if err != nil {
		s.drop(cc, "unknown_room")
		return
	}
	room, err := s.reg.GetRoom(roomIx)
	if err != nil {
		s.drop(cc, "unknown_room")
		return
	}

	occupants := s.reg.RoomOccupants(roomIx)

	sess, ok2 := s.sessionFor(cc.userIx)
	if !ok2 {
		s.drop(cc, "no_session")
		return
	}

	var guests []wire.GuestInfo
	for _, oix := range occupants {
		oc, err := s.reg.GetClient(oix)
		if err != nil {
			continue
		}
		guests = append(guests, wire.GuestInfo{UserID: uint64(oix), Pubkey: oc.Pubkey})
	}

	encKey, err := sess.Encrypt(room.Key[:])
	if err != nil {
		s.drop(cc, "rewrap_room_key_failed")
		return
	}

	adNonce := sess.NextNonce()
	adPlain := wire.EncodeGuestInfoList(guests)
	adCipher, err := primitives.StreamXOR(room.Key, adNonce[:], adPlain)
	if err != nil {
		s.drop(cc, "encrypt_ad_failed")
		return
	}

	if err := s.reg.SetClientRoom(cc.userIx, roomIx); err != nil {
		s.drop(cc, "set_room_failed")
		return
	}
	_ = s.reg.IncrementRoomPeople(roomIx, 1)

	reply := &wire.JoinRoomReply{N: uint64(len(guests)), EncryptedAD: adCipher}
	copy(reply.EncryptedOnetime[:], encKey)
	signed := reply.Encode()
	reply.Signature = s.sign(signed[:len(signed)-wire.SignatureLen])
	s.writeOrDrop(cc, reply.Encode())

	s.notifyNewGuest(roomIx, cc.userIx)
}

// notifyNewGuest enqueues a new-guest-21 envelope for every other occupant
// of roomIx, naming the guest at joinerIx. Delivery happens asynchronously
// on each recipient's next poll (§4.6's "broadcast" is always a pending-
// queue fan-out, never a direct write to another connection).
func (s *Server) notifyNewGuest(roomIx uint32, joinerIx uint32) {
	room, err := s.reg.GetRoom(roomIx)
	if err != nil {
		return
	}
	joiner, err := s.reg.GetClient(joinerIx)
	if err != nil {
		return
	}

	for _, oix := range s.reg.RoomOccupants(roomIx) {
		if oix == joinerIx {
			continue
		}
		sess, ok := s.sessionFor(oix)
		if !ok {
			continue
		}

		encKey, err := sess.Encrypt(room.Key[:])
		if err != nil {
			continue
		}
		var guestIDBuf [wire.SmallField]byte
		putU64LE(guestIDBuf[:], uint64(joinerIx))
		encGuestID, err := sess.Encrypt(guestIDBuf[:])
		if err != nil {
			continue
		}
		encPubkey, err := sess.Encrypt(joiner.Pubkey[:])
		if err != nil {
			continue
		}

		push := &wire.NewGuestPush{}
		copy(push.EncryptedOnetime[:], encKey)
		copy(push.EncryptedGuestID[:], encGuestID)
		copy(push.EncryptedPubkey[:], encPubkey)
		signed := push.Encode()
		push.Signature = s.sign(signed[:len(signed)-wire.SignatureLen])

		_ = s.reg.EnqueuePending(oix, push.Encode())
	}
}

// closeOwnedRoom runs when a room's owner disconnects, logs off, or leaves
// the room: every remaining occupant is pushed a signed owner-left-51 ack, its room
// membership is cleared, and the room slot itself is freed (§4.6's
// "triggers room closure"). Callers must look up roomIx before freeing the
// owner's own registry slot, since RoomIx lives on that slot.
func (s *Server) closeOwnedRoom(roomIx uint32, ownerIx uint32) {
	ack := &wire.AckPacket{Magic: wire.MagicOwnerLeft51, Signature: s.signMagic(wire.MagicOwnerLeft51)}
	encoded := ack.Encode()

	for _, oix := range s.reg.RoomOccupants(roomIx) {
		if oix == ownerIx {
			continue
		}
		_ = s.reg.EnqueuePending(oix, encoded)
		_ = s.reg.SetClientRoom(oix, 0)
	}

	if err := s.reg.FreeRoom(roomIx); err == nil && s.metrics != nil {
		s.metrics.RoomsActive.Dec()
	}
}
