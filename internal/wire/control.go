package wire

// AckPacket is the bare "magic + signature" shape used for replies and
// broadcasts that carry no payload beyond the act of signing the magic
// itself: a successful room creation, a full room, an empty poll, or an
// owner-left notification. No length field accompanies the signature here
// (unlike Login00Reply/Login01Reply/LoginFull02) because these are pure
// acknowledgements with nothing else on the wire to size.
type AckPacket struct {
	Magic     Magic
	Signature [SignatureLen]byte
}

func (p *AckPacket) Encode() []byte {
	buf := make([]byte, SmallField+SignatureLen)
	putMagic(buf, p.Magic)
	copy(buf[SmallField:], p.Signature[:])
	return buf
}

func decodeAckPacket(buf []byte, want Magic) (*AckPacket, error) {
	const total = SmallField + SignatureLen
	if err := requireLen(len(buf), total); err != nil {
		return nil, err
	}
	if err := requireMagic(getMagic(buf), want); err != nil {
		return nil, err
	}
	p := &AckPacket{Magic: want}
	copy(p.Signature[:], buf[SmallField:])
	return p, nil
}

func DecodeCreateRoomAck(buf []byte) (*AckPacket, error) { return decodeAckPacket(buf, MagicCreateRoom10) }
func DecodeRoomFull(buf []byte) (*AckPacket, error)      { return decodeAckPacket(buf, MagicRoomFull11) }
func DecodePollEmpty(buf []byte) (*AckPacket, error)     { return decodeAckPacket(buf, MagicPollEmpty41) }
func DecodeOwnerLeft(buf []byte) (*AckPacket, error)     { return decodeAckPacket(buf, MagicOwnerLeft51) }

// UserIDPacket is the shared "magic + user_id + signature" shape used by
// a poll request, a guest's own departure request, the server's broadcast
// of that departure to the rest of the room, and a logoff request. The
// embedded user_id always names the guest the packet is about, not
// necessarily the connection it arrived on (a broadcast names the guest
// who left, to every other roommate).
type UserIDPacket struct {
	Magic     Magic
	UserID    uint64
	Signature [SignatureLen]byte
}

func (p *UserIDPacket) Encode() []byte {
	buf := make([]byte, SmallField+SmallField+SignatureLen)
	off := 0
	putMagic(buf[off:], p.Magic)
	off += SmallField
	putU64(buf[off:], p.UserID)
	off += SmallField
	copy(buf[off:], p.Signature[:])
	return buf
}

func decodeUserIDPacket(buf []byte, want Magic) (*UserIDPacket, error) {
	const total = SmallField + SmallField + SignatureLen
	if err := requireLen(len(buf), total); err != nil {
		return nil, err
	}
	off := 0
	if err := requireMagic(getMagic(buf[off:]), want); err != nil {
		return nil, err
	}
	off += SmallField
	p := &UserIDPacket{Magic: want}
	p.UserID = getU64(buf[off:])
	off += SmallField
	copy(p.Signature[:], buf[off:])
	return p, nil
}

func DecodePollRequest(buf []byte) (*UserIDPacket, error)   { return decodeUserIDPacket(buf, MagicPoll40) }
func DecodeGuestLeft(buf []byte) (*UserIDPacket, error)     { return decodeUserIDPacket(buf, MagicGuestLeft50) }
func DecodeLogoffRequest(buf []byte) (*UserIDPacket, error) { return decodeUserIDPacket(buf, MagicLogoff60) }
