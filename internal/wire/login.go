package wire

// Login00 carries an ephemeral DH public key. The same magic and shape is
// used in both directions of the first handshake round-trip: client sends
// its ephemeral pubkey, server replies with its own plus a signature over
// the round-0 authentication key Y.
type Login00Request struct {
	Pubkey [PubkeyBytes]byte // client ephemeral A
}

func (p *Login00Request) Encode() []byte {
	buf := make([]byte, SmallField+SmallField+PubkeyBytes)
	putMagic(buf, MagicLogin00)
	putU64(buf[SmallField:], PubkeyBytes)
	copy(buf[2*SmallField:], p.Pubkey[:])
	return buf
}

func DecodeLogin00Request(buf []byte) (*Login00Request, error) {
	const want = SmallField + SmallField + PubkeyBytes
	if err := requireLen(len(buf), want); err != nil {
		return nil, err
	}
	if err := requireMagic(getMagic(buf), MagicLogin00); err != nil {
		return nil, err
	}
	if getU64(buf[SmallField:]) != PubkeyBytes {
		return nil, ErrFieldTooLarge
	}
	p := &Login00Request{}
	copy(p.Pubkey[:], buf[2*SmallField:])
	return p, nil
}

// Login00Reply is the server's ephemeral pubkey B plus a signature over the
// round-0 authentication key Y, so the client can authenticate the server
// before deriving the session key (§4.4).
type Login00Reply struct {
	Pubkey    [PubkeyBytes]byte
	Signature [SignatureLen]byte
}

func (p *Login00Reply) Encode() []byte {
	buf := make([]byte, SmallField+SmallField+PubkeyBytes+SmallField+SignatureLen)
	off := 0
	putMagic(buf[off:], MagicLoginReply00)
	off += SmallField
	putU64(buf[off:], PubkeyBytes)
	off += SmallField
	copy(buf[off:], p.Pubkey[:])
	off += PubkeyBytes
	putU64(buf[off:], SignatureLen)
	off += SmallField
	copy(buf[off:], p.Signature[:])
	return buf
}

func DecodeLogin00Reply(buf []byte) (*Login00Reply, error) {
	const want = SmallField + SmallField + PubkeyBytes + SmallField + SignatureLen
	if err := requireLen(len(buf), want); err != nil {
		return nil, err
	}
	off := 0
	if err := requireMagic(getMagic(buf[off:]), MagicLoginReply00); err != nil {
		return nil, err
	}
	off += SmallField
	if getU64(buf[off:]) != PubkeyBytes {
		return nil, ErrFieldTooLarge
	}
	off += SmallField
	p := &Login00Reply{}
	copy(p.Pubkey[:], buf[off:])
	off += PubkeyBytes
	if getU64(buf[off:]) != SignatureLen {
		return nil, ErrFieldTooLarge
	}
	off += SmallField
	copy(p.Signature[:], buf[off:])
	return p, nil
}

// Login01Request carries the client's long-term public key encrypted under
// the session key derived from round 0, plus an HMAC binding it to that
// session. Fixed-size body, no length prefix (Design Note: PUBKEY_BYTES is
// a compile-time constant here, so a redundant length field would only be
// another thing that could lie).
type Login01Request struct {
	EncryptedLongtermPubkey [PubkeyBytes]byte
	HMAC                    [HMACTrunc]byte
}

func (p *Login01Request) Encode() []byte {
	buf := make([]byte, SmallField+PubkeyBytes+HMACTrunc)
	putMagic(buf, MagicLogin01)
	copy(buf[SmallField:], p.EncryptedLongtermPubkey[:])
	copy(buf[SmallField+PubkeyBytes:], p.HMAC[:])
	return buf
}

func DecodeLogin01Request(buf []byte) (*Login01Request, error) {
	const want = SmallField + PubkeyBytes + HMACTrunc
	if err := requireLen(len(buf), want); err != nil {
		return nil, err
	}
	if err := requireMagic(getMagic(buf), MagicLogin01); err != nil {
		return nil, err
	}
	p := &Login01Request{}
	copy(p.EncryptedLongtermPubkey[:], buf[SmallField:])
	copy(p.HMAC[:], buf[SmallField+PubkeyBytes:])
	return p, nil
}

// Login01Reply assigns the newly-registered client its registry slot index,
// encrypted under round 0's KBA at nonce N+1, plus a signature over the bare
// magic.
type Login01Reply struct {
	EncryptedUserIx [SmallField]byte
	Signature       [SignatureLen]byte
}

func (p *Login01Reply) Encode() []byte {
	buf := make([]byte, SmallField+SmallField+SmallField+SignatureLen)
	off := 0
	putMagic(buf[off:], MagicLogin01)
	off += SmallField
	copy(buf[off:], p.EncryptedUserIx[:])
	off += SmallField
	putU64(buf[off:], SignatureLen)
	off += SmallField
	copy(buf[off:], p.Signature[:])
	return buf
}

func DecodeLogin01Reply(buf []byte) (*Login01Reply, error) {
	const want = SmallField + SmallField + SmallField + SignatureLen
	if err := requireLen(len(buf), want); err != nil {
		return nil, err
	}
	off := 0
	if err := requireMagic(getMagic(buf[off:]), MagicLogin01); err != nil {
		return nil, err
	}
	off += SmallField
	p := &Login01Reply{}
	copy(p.EncryptedUserIx[:], buf[off:])
	off += SmallField
	if getU64(buf[off:]) != SignatureLen {
		return nil, ErrFieldTooLarge
	}
	off += SmallField
	copy(p.Signature[:], buf[off:])
	return p, nil
}

// LoginFull02 tells the client the server's client registry has no free
// slot (P7 exhausted); the handshake aborts and no session key exists.
type LoginFull02 struct {
	Signature [SignatureLen]byte
}

func (p *LoginFull02) Encode() []byte {
	buf := make([]byte, SmallField+SmallField+SignatureLen)
	putMagic(buf, MagicLoginFull02)
	putU64(buf[SmallField:], SignatureLen)
	copy(buf[2*SmallField:], p.Signature[:])
	return buf
}

func DecodeLoginFull02(buf []byte) (*LoginFull02, error) {
	const want = SmallField + SmallField + SignatureLen
	if err := requireLen(len(buf), want); err != nil {
		return nil, err
	}
	if err := requireMagic(getMagic(buf), MagicLoginFull02); err != nil {
		return nil, err
	}
	if getU64(buf[SmallField:]) != SignatureLen {
		return nil, ErrFieldTooLarge
	}
	p := &LoginFull02{}
	copy(p.Signature[:], buf[2*SmallField:])
	return p, nil
}
