package wire

// CreateJoinRequest is the shared C->S shape for "create a room" (magic 10)
// and "join a room" (magic 20): the client's own registry index, a freshly
// generated one-time room key encrypted under its session key, an encrypted
// 16-byte payload (room_id || user_id, 8 bytes each — see EncryptedPayload
// doc), and a signature over
// the whole request. Nonces are never wire fields: each side derives the
// i-th operation's nonce deterministically from its own nonce_counter
// state (§4.5), so there is nothing to transmit.
type CreateJoinRequest struct {
	Magic            Magic // MagicCreateRoom10 or MagicJoinRoom20
	UserIx           uint64
	EncryptedOnetime [SessionKey]byte

	// EncryptedPayload holds room_id[8] || user_id[8], encrypted under the
	// one-time key at nonce_counter+1.
	EncryptedPayload [2 * SmallField]byte

	Signature [SignatureLen]byte
}

func (p *CreateJoinRequest) Encode() []byte {
	buf := make([]byte, SmallField+SmallField+SessionKey+2*SmallField+SignatureLen)
	off := 0
	putMagic(buf[off:], p.Magic)
	off += SmallField
	putU64(buf[off:], p.UserIx)
	off += SmallField
	copy(buf[off:], p.EncryptedOnetime[:])
	off += SessionKey
	copy(buf[off:], p.EncryptedPayload[:])
	off += 2 * SmallField
	copy(buf[off:], p.Signature[:])
	return buf
}

func decodeCreateJoinRequest(buf []byte, want Magic) (*CreateJoinRequest, error) {
	const total = SmallField + SmallField + SessionKey + 2*SmallField + SignatureLen
	if err := requireLen(len(buf), total); err != nil {
		return nil, err
	}
	off := 0
	if err := requireMagic(getMagic(buf[off:]), want); err != nil {
		return nil, err
	}
	off += SmallField
	p := &CreateJoinRequest{Magic: want}
	p.UserIx = getU64(buf[off:])
	off += SmallField
	copy(p.EncryptedOnetime[:], buf[off:])
	off += SessionKey
	copy(p.EncryptedPayload[:], buf[off:])
	off += 2 * SmallField
	copy(p.Signature[:], buf[off:])
	return p, nil
}

func DecodeCreateRoomRequest(buf []byte) (*CreateJoinRequest, error) {
	return decodeCreateJoinRequest(buf, MagicCreateRoom10)
}

func DecodeJoinRoomRequest(buf []byte) (*CreateJoinRequest, error) {
	return decodeCreateJoinRequest(buf, MagicJoinRoom20)
}

// GuestInfo is one roommate descriptor: registry index and long-term public
// key. A JoinRoomReply's associated data is a list of these, but encrypted
// as a whole on the wire (under the room's one-time key) — EncodeGuestInfoList
// / DecodeGuestInfoList operate on the plaintext bytes once a caller in the
// session/room layer has already decrypted the AD blob.
type GuestInfo struct {
	UserID uint64
	Pubkey [PubkeyBytes]byte
}

const guestInfoLen = SmallField + PubkeyBytes

// EncodeGuestInfoList serializes a roommate list to the plaintext form that
// gets encrypted into a JoinRoomReply's AD field.
func EncodeGuestInfoList(guests []GuestInfo) []byte {
	buf := make([]byte, len(guests)*guestInfoLen)
	for i, g := range guests {
		off := i * guestInfoLen
		putU64(buf[off:], g.UserID)
		copy(buf[off+SmallField:], g.Pubkey[:])
	}
	return buf
}

// DecodeGuestInfoList parses a decrypted AD blob into n roommate descriptors.
func DecodeGuestInfoList(buf []byte, n uint64) ([]GuestInfo, error) {
	if uint64(len(buf)) != n*guestInfoLen {
		return nil, ErrTruncated
	}
	guests := make([]GuestInfo, n)
	for i := range guests {
		off := i * guestInfoLen
		guests[i].UserID = getU64(buf[off:])
		copy(guests[i].Pubkey[:], buf[off+SmallField:])
	}
	return guests, nil
}

// JoinRoomReply answers a successful join: the room's one-time key
// re-encrypted for this joiner, the current roommate count, and an
// encrypted associated-data blob (one GuestInfo per existing roommate once
// decrypted).
type JoinRoomReply struct {
	EncryptedOnetime [SessionKey]byte
	N                uint64
	EncryptedAD      []byte // N * guestInfoLen bytes once decrypted
	Signature        [SignatureLen]byte
}

func (p *JoinRoomReply) Encode() []byte {
	buf := make([]byte, SmallField+SessionKey+SmallField+len(p.EncryptedAD)+SignatureLen)
	off := 0
	putMagic(buf[off:], MagicJoinRoom20)
	off += SmallField
	copy(buf[off:], p.EncryptedOnetime[:])
	off += SessionKey
	putU64(buf[off:], p.N)
	off += SmallField
	copy(buf[off:], p.EncryptedAD)
	off += len(p.EncryptedAD)
	copy(buf[off:], p.Signature[:])
	return buf
}

func DecodeJoinRoomReply(buf []byte) (*JoinRoomReply, error) {
	const headLen = SmallField + SessionKey + SmallField
	if len(buf) < headLen+SignatureLen {
		return nil, ErrTruncated
	}
	off := 0
	if err := requireMagic(getMagic(buf[off:]), MagicJoinRoom20); err != nil {
		return nil, err
	}
	off += SmallField
	p := &JoinRoomReply{}
	copy(p.EncryptedOnetime[:], buf[off:])
	off += SessionKey
	p.N = getU64(buf[off:])
	off += SmallField

	adLen := int(p.N) * guestInfoLen
	if err := requireLen(len(buf), headLen+adLen+SignatureLen); err != nil {
		return nil, err
	}
	p.EncryptedAD = append([]byte(nil), buf[off:off+adLen]...)
	off += adLen
	copy(p.Signature[:], buf[off:])
	return p, nil
}

// NewGuestPush is an unsolicited server->client notification telling
// existing roommates about a guest who just joined: the room key
// re-encrypted for this recipient, and the new guest's identity and
// long-term pubkey. All three fields are encrypted under the recipient's
// own session with the server, each at that session's next nonce.
type NewGuestPush struct {
	EncryptedOnetime [SessionKey]byte
	EncryptedGuestID [SmallField]byte
	EncryptedPubkey  [PubkeyBytes]byte
	Signature        [SignatureLen]byte
}

func (p *NewGuestPush) Encode() []byte {
	buf := make([]byte, SmallField+SessionKey+SmallField+PubkeyBytes+SignatureLen)
	off := 0
	putMagic(buf[off:], MagicNewGuest21)
	off += SmallField
	copy(buf[off:], p.EncryptedOnetime[:])
	off += SessionKey
	copy(buf[off:], p.EncryptedGuestID[:])
	off += SmallField
	copy(buf[off:], p.EncryptedPubkey[:])
	off += PubkeyBytes
	copy(buf[off:], p.Signature[:])
	return buf
}

func DecodeNewGuestPush(buf []byte) (*NewGuestPush, error) {
	const want = SmallField + SessionKey + SmallField + PubkeyBytes + SignatureLen
	if err := requireLen(len(buf), want); err != nil {
		return nil, err
	}
	off := 0
	if err := requireMagic(getMagic(buf[off:]), MagicNewGuest21); err != nil {
		return nil, err
	}
	off += SmallField
	p := &NewGuestPush{}
	copy(p.EncryptedOnetime[:], buf[off:])
	off += SessionKey
	copy(p.EncryptedGuestID[:], buf[off:])
	off += SmallField
	copy(p.EncryptedPubkey[:], buf[off:])
	off += PubkeyBytes
	copy(p.Signature[:], buf[off:])
	return p, nil
}
