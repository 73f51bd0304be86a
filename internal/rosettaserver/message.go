package rosettaserver

import (
	"github.com/tectonicboy/rosetta/internal/logging"
	"github.com/tectonicboy/rosetta/internal/wire"
)

// processSendText relays a message unread: it verifies the sender's
// signature (so a forged sender can never be attributed), appends its own
// signature over the whole packet, and enqueues the relayed envelope for
// every other occupant of the sender's room. The server never decrypts
// AD — each recipient slot's key and ciphertext stay opaque end to end.
func (s *Server) processSendText(cc *clientConn, packet []byte) {
	req, err := wire.DecodeSendTextRequest(packet)
	if err != nil {
		s.drop(cc, "malformed_send_text")
		return
	}
	if !cc.hasUser || uint64(cc.userIx) != req.SenderIx {
		s.drop(cc, "send_text_identity_mismatch")
		return
	}

	pub, err := s.clientPubkey(cc.userIx)
	if err != nil {
		s.drop(cc, "unknown_client")
		return
	}
	signed := req.Encode()
	signed = signed[:len(signed)-wire.SignatureLen]
	if !s.verify(pub, signed, req.Signature) {
		s.drop(cc, "bad_signature")
		return
	}

	client, err := s.reg.GetClient(cc.userIx)
	if err != nil || client.RoomIx == 0 {
		s.drop(cc, "not_in_room")
		return
	}

	relay := &wire.SendTextRelay{SendTextRequest: *req}
	relay.ServerSignature = s.sign(req.Encode())

	encoded := relay.Encode()
	delivered := 0
	for _, oix := range s.reg.RoomOccupants(client.RoomIx) {
		if oix == cc.userIx {
			continue
		}
		if err := s.reg.EnqueuePending(oix, encoded); err == nil {
			delivered++
		}
	}

	if s.metrics != nil && delivered > 0 {
		s.metrics.MessagesRelayed.Add(float64(delivered))
	}
}

// processPoll dequeues and returns the caller's oldest pending envelope, or
// a signed "nothing pending" ack if its queue is empty (§4.6).
func (s *Server) processPoll(cc *clientConn, packet []byte) {
	req, err := wire.DecodePollRequest(packet)
	if err != nil {
		s.drop(cc, "malformed_poll")
		return
	}
	if !cc.hasUser || uint64(cc.userIx) != req.UserID {
		s.drop(cc, "poll_identity_mismatch")
		return
	}
	pub, err := s.clientPubkey(cc.userIx)
	if err != nil {
		s.drop(cc, "unknown_client")
		return
	}
	signed := req.Encode()
	signed = signed[:len(signed)-wire.SignatureLen]
	if !s.verify(pub, signed, req.Signature) {
		s.drop(cc, "bad_signature")
		return
	}

	pending, err := s.reg.DrainPending(cc.userIx)
	if err != nil || len(pending) == 0 {
		ack := &wire.AckPacket{Magic: wire.MagicPollEmpty41, Signature: s.signMagic(wire.MagicPollEmpty41)}
		s.writeOrDrop(cc, ack.Encode())
		return
	}

	// Only the oldest envelope is delivered per poll; the rest stay queued
	// for the next one.
	s.writeOrDrop(cc, pending[0])
	for _, env := range pending[1:] {
		_ = s.reg.EnqueuePending(cc.userIx, env)
	}
}

// processGuestLeft handles a non-owner's voluntary departure: broadcast the
// departure to the rest of the room, then clear the caller's own room
// membership (it keeps its client slot — only logoff frees that). When the
// caller owns its room, the room is closed instead (closeOwnedRoom).
func (s *Server) processGuestLeft(cc *clientConn, packet []byte) {
	req, err := wire.DecodeGuestLeft(packet)
	if err != nil {
		s.drop(cc, "malformed_guest_left")
		return
	}
	if !cc.hasUser || uint64(cc.userIx) != req.UserID {
		s.drop(cc, "guest_left_identity_mismatch")
		return
	}
	pub, err := s.clientPubkey(cc.userIx)
	if err != nil {
		s.drop(cc, "unknown_client")
		return
	}
	signed := req.Encode()
	signed = signed[:len(signed)-wire.SignatureLen]
	if !s.verify(pub, signed, req.Signature) {
		s.drop(cc, "bad_signature")
		return
	}

	client, err := s.reg.GetClient(cc.userIx)
	if err != nil || client.RoomIx == 0 {
		s.drop(cc, "not_in_room")
		return
	}
	roomIx := client.RoomIx

	if _, isOwner := s.ownedRoomOf(cc.userIx); isOwner {
		s.closeOwnedRoom(roomIx, cc.userIx)
		_ = s.reg.SetClientRoom(cc.userIx, 0)
		logging.WithRoom(logging.WithUser(cc.log, cc.userIx), roomIx).Info("room owner left, room closed")
		return
	}

	notice := &wire.UserIDPacket{Magic: wire.MagicGuestLeft50, UserID: uint64(cc.userIx)}
	notice.Signature = s.signUserID(notice.Magic, notice.UserID)
	encoded := notice.Encode()
	for _, oix := range s.reg.RoomOccupants(roomIx) {
		if oix == cc.userIx {
			continue
		}
		_ = s.reg.EnqueuePending(oix, encoded)
	}

	_ = s.reg.SetClientRoom(cc.userIx, 0)
	_ = s.reg.IncrementRoomPeople(roomIx, -1)
	logging.WithRoom(logging.WithUser(cc.log, cc.userIx), roomIx).Info("guest left room")
}

// processLogoff verifies the request, frees the caller's client slot, and —
// if the caller owned a room — closes it, before the connection itself is
// torn down by the caller's deferred cleanup.
func (s *Server) processLogoff(cc *clientConn, packet []byte) {
	req, err := wire.DecodeLogoffRequest(packet)
	if err != nil {
		s.drop(cc, "malformed_logoff")
		return
	}
	if !cc.hasUser || uint64(cc.userIx) != req.UserID {
		s.drop(cc, "logoff_identity_mismatch")
		return
	}
	pub, err := s.clientPubkey(cc.userIx)
	if err != nil {
		s.drop(cc, "unknown_client")
		return
	}
	signed := req.Encode()
	signed = signed[:len(signed)-wire.SignatureLen]
	if !s.verify(pub, signed, req.Signature) {
		s.drop(cc, "bad_signature")
		return
	}

	ownedRoom, isOwner := s.ownedRoomOf(cc.userIx)

	s.mu.Lock()
	delete(s.sessions, cc.userIx)
	s.mu.Unlock()
	_ = s.reg.FreeClient(cc.userIx)
	if s.metrics != nil {
		s.metrics.ClientsConnected.Dec()
	}
	if isOwner {
		s.closeOwnedRoom(ownedRoom, cc.userIx)
	}

	cc.hasUser = false
	logging.WithUser(cc.log, cc.userIx).Info("client logged off")
}
