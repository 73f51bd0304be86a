package wire

// RecipientSlot is one entry in a send-text packet's associated data: the
// message key re-wrapped for a single recipient, plus that recipient's
// share of the ciphertext. Every recipient gets the same plaintext but a
// distinct per-message key, since each pairwise session uses its own
// KAB/KBA for the key-wrap step; no nonce travels here — like every other
// nonce in this protocol it's derived from the sender's own nonce_counter
// state against that recipient, never transmitted.
type RecipientSlot struct {
	GuestID    uint64
	KeyEnc     [SessionKey]byte
	CipherText []byte // length == the packet's TextLen
}

func recipientSlotLen(textLen uint64) int {
	return SmallField + SessionKey + int(textLen)
}

func encodeRecipients(slots []RecipientSlot) []byte {
	if len(slots) == 0 {
		return nil
	}
	textLen := uint64(len(slots[0].CipherText))
	slotLen := recipientSlotLen(textLen)
	buf := make([]byte, len(slots)*slotLen)
	for i, s := range slots {
		off := i * slotLen
		putU64(buf[off:], s.GuestID)
		copy(buf[off+SmallField:], s.KeyEnc[:])
		copy(buf[off+SmallField+SessionKey:], s.CipherText)
	}
	return buf
}

func decodeRecipients(buf []byte, n, textLen uint64) ([]RecipientSlot, error) {
	slotLen := recipientSlotLen(textLen)
	if uint64(len(buf)) != n*uint64(slotLen) {
		return nil, ErrTruncated
	}
	slots := make([]RecipientSlot, n)
	for i := range slots {
		off := i * slotLen
		slots[i].GuestID = getU64(buf[off:])
		copy(slots[i].KeyEnc[:], buf[off+SmallField:])
		slots[i].CipherText = append([]byte(nil), buf[off+SmallField+SessionKey:off+slotLen]...)
	}
	return slots, nil
}

// SendTextRequest is a client's outgoing message: one plaintext, wrapped
// once per roommate, signed by the sender. MaxText and MaxClients (wire
// package constants) bound TextLen and the recipient count respectively;
// Decode checks both before sizing the recipient slots, so a malformed
// packet can never allocate more than the static ceiling implies.
type SendTextRequest struct {
	SenderIx   uint64
	TextLen    uint64
	Recipients []RecipientSlot
	Signature  [SignatureLen]byte
}

func (p *SendTextRequest) Encode() []byte {
	ad := encodeRecipients(p.Recipients)
	buf := make([]byte, SmallField+SmallField+SmallField+SmallField+len(ad)+SignatureLen)
	off := 0
	putMagic(buf[off:], MagicSendText30)
	off += SmallField
	putU64(buf[off:], p.SenderIx)
	off += SmallField
	putU64(buf[off:], p.TextLen)
	off += SmallField
	putU64(buf[off:], uint64(len(p.Recipients)))
	off += SmallField
	copy(buf[off:], ad)
	off += len(ad)
	copy(buf[off:], p.Signature[:])
	return buf
}

func DecodeSendTextRequest(buf []byte) (*SendTextRequest, error) {
	const headLen = SmallField + SmallField + SmallField + SmallField
	if len(buf) < headLen+SignatureLen {
		return nil, ErrTruncated
	}
	off := 0
	if err := requireMagic(getMagic(buf[off:]), MagicSendText30); err != nil {
		return nil, err
	}
	off += SmallField
	p := &SendTextRequest{}
	p.SenderIx = getU64(buf[off:])
	off += SmallField
	p.TextLen = getU64(buf[off:])
	off += SmallField
	if p.TextLen > MaxText {
		return nil, ErrFieldTooLarge
	}
	n := getU64(buf[off:])
	off += SmallField
	if n > MaxClients {
		return nil, ErrFieldTooLarge
	}

	adLen := int(n) * recipientSlotLen(p.TextLen)
	if err := requireLen(len(buf), headLen+adLen+SignatureLen); err != nil {
		return nil, err
	}
	recipients, err := decodeRecipients(buf[off:off+adLen], n, p.TextLen)
	if err != nil {
		return nil, err
	}
	p.Recipients = recipients
	off += adLen
	copy(p.Signature[:], buf[off:])
	return p, nil
}

// SendTextRelay is the server-forwarded form of a SendTextRequest: the
// original sender's signature travels unchanged, with a second signature
// appended over the whole relayed packet so a roommate can verify both
// that the sender authored the message and that the server relayed it
// unmodified.
type SendTextRelay struct {
	SendTextRequest
	ServerSignature [SignatureLen]byte
}

func (p *SendTextRelay) Encode() []byte {
	base := p.SendTextRequest.Encode()
	buf := make([]byte, len(base)+SignatureLen)
	copy(buf, base)
	copy(buf[len(base):], p.ServerSignature[:])
	return buf
}

func DecodeSendTextRelay(buf []byte) (*SendTextRelay, error) {
	if len(buf) < SignatureLen {
		return nil, ErrTruncated
	}
	base, err := DecodeSendTextRequest(buf[:len(buf)-SignatureLen])
	if err != nil {
		return nil, err
	}
	p := &SendTextRelay{SendTextRequest: *base}
	copy(p.ServerSignature[:], buf[len(buf)-SignatureLen:])
	return p, nil
}
