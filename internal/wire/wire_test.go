package wire

import (
	"bytes"
	"testing"
)

func fill(b []byte, seed byte) {
	for i := range b {
		b[i] = seed + byte(i)
	}
}

func TestLogin00RoundTrip(t *testing.T) {
	req := &Login00Request{}
	fill(req.Pubkey[:], 1)

	got, err := DecodeLogin00Request(req.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Pubkey != req.Pubkey {
		t.Error("pubkey mismatch after round trip")
	}

	reply := &Login00Reply{}
	fill(reply.Pubkey[:], 2)
	fill(reply.Signature[:], 3)
	gotReply, err := DecodeLogin00Reply(reply.Encode())
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if gotReply.Pubkey != reply.Pubkey || gotReply.Signature != reply.Signature {
		t.Error("reply fields mismatch after round trip")
	}
}

func TestLogin01RoundTrip(t *testing.T) {
	req := &Login01Request{}
	fill(req.EncryptedLongtermPubkey[:], 4)
	fill(req.HMAC[:], 5)
	got, err := DecodeLogin01Request(req.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EncryptedLongtermPubkey != req.EncryptedLongtermPubkey || got.HMAC != req.HMAC {
		t.Error("request fields mismatch")
	}

	reply := &Login01Reply{}
	fill(reply.EncryptedUserIx[:], 6)
	fill(reply.Signature[:], 7)
	gotReply, err := DecodeLogin01Reply(reply.Encode())
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if gotReply.EncryptedUserIx != reply.EncryptedUserIx || gotReply.Signature != reply.Signature {
		t.Error("reply fields mismatch")
	}
}

func TestLoginFull02RoundTrip(t *testing.T) {
	p := &LoginFull02{}
	fill(p.Signature[:], 8)
	got, err := DecodeLoginFull02(p.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Signature != p.Signature {
		t.Error("signature mismatch")
	}
}

func TestCreateJoinRequestRoundTrip(t *testing.T) {
	req := &CreateJoinRequest{Magic: MagicCreateRoom10, UserIx: 42}
	fill(req.EncryptedOnetime[:], 9)
	fill(req.EncryptedPayload[:], 10)
	fill(req.Signature[:], 11)

	got, err := DecodeCreateRoomRequest(req.Encode())
	if err != nil {
		t.Fatalf("decode create: %v", err)
	}
	if got.UserIx != 42 || got.EncryptedOnetime != req.EncryptedOnetime {
		t.Error("create-room fields mismatch")
	}

	req.Magic = MagicJoinRoom20
	got, err = DecodeJoinRoomRequest(req.Encode())
	if err != nil {
		t.Fatalf("decode join: %v", err)
	}
	if got.UserIx != 42 {
		t.Error("join-room fields mismatch")
	}

	if _, err := DecodeJoinRoomRequest((&CreateJoinRequest{Magic: MagicCreateRoom10}).Encode()); err != ErrMagicMismatch {
		t.Errorf("expected ErrMagicMismatch, got %v", err)
	}
}

func TestGuestInfoListRoundTrip(t *testing.T) {
	guests := []GuestInfo{{UserID: 1}, {UserID: 2}}
	fill(guests[0].Pubkey[:], 20)
	fill(guests[1].Pubkey[:], 40)

	got, err := DecodeGuestInfoList(EncodeGuestInfoList(guests), uint64(len(guests)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].UserID != 1 || got[1].UserID != 2 {
		t.Error("guest ids mismatch")
	}
	if got[0].Pubkey != guests[0].Pubkey {
		t.Error("guest pubkey mismatch")
	}
}

func TestJoinRoomReplyRoundTrip(t *testing.T) {
	reply := &JoinRoomReply{N: 2}
	reply.EncryptedAD = make([]byte, 2*guestInfoLen)
	fill(reply.EncryptedAD, 20)
	fill(reply.Signature[:], 60)

	got, err := DecodeJoinRoomReply(reply.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.N != 2 {
		t.Fatalf("got N=%d, want 2", got.N)
	}
	if !bytes.Equal(got.EncryptedAD, reply.EncryptedAD) {
		t.Error("encrypted AD mismatch")
	}
}

func TestJoinRoomReplyEmptyRoom(t *testing.T) {
	reply := &JoinRoomReply{}
	got, err := DecodeJoinRoomReply(reply.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.N != 0 || len(got.EncryptedAD) != 0 {
		t.Errorf("expected no guests, got N=%d len=%d", got.N, len(got.EncryptedAD))
	}
}

func TestNewGuestPushRoundTrip(t *testing.T) {
	p := &NewGuestPush{}
	fill(p.EncryptedPubkey[:], 13)
	got, err := DecodeNewGuestPush(p.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EncryptedPubkey != p.EncryptedPubkey {
		t.Error("pubkey mismatch")
	}
}

func TestAckPacketRoundTrip(t *testing.T) {
	cases := []struct {
		magic  Magic
		decode func([]byte) (*AckPacket, error)
	}{
		{MagicCreateRoom10, DecodeCreateRoomAck},
		{MagicRoomFull11, DecodeRoomFull},
		{MagicPollEmpty41, DecodePollEmpty},
		{MagicOwnerLeft51, DecodeOwnerLeft},
	}
	for _, c := range cases {
		p := &AckPacket{Magic: c.magic}
		fill(p.Signature[:], 14)
		got, err := c.decode(p.Encode())
		if err != nil {
			t.Fatalf("%s: decode: %v", c.magic, err)
		}
		if got.Signature != p.Signature {
			t.Errorf("%s: signature mismatch", c.magic)
		}
	}
}

func TestUserIDPacketRoundTrip(t *testing.T) {
	cases := []struct {
		magic  Magic
		decode func([]byte) (*UserIDPacket, error)
	}{
		{MagicPoll40, DecodePollRequest},
		{MagicGuestLeft50, DecodeGuestLeft},
		{MagicLogoff60, DecodeLogoffRequest},
	}
	for _, c := range cases {
		p := &UserIDPacket{Magic: c.magic, UserID: 7}
		fill(p.Signature[:], 15)
		got, err := c.decode(p.Encode())
		if err != nil {
			t.Fatalf("%s: decode: %v", c.magic, err)
		}
		if got.UserID != 7 || got.Signature != p.Signature {
			t.Errorf("%s: field mismatch", c.magic)
		}
	}
}

func TestSendTextRequestRoundTrip(t *testing.T) {
	req := &SendTextRequest{SenderIx: 3, TextLen: 5}
	slot := RecipientSlot{GuestID: 9, CipherText: []byte("hello")}
	fill(slot.KeyEnc[:], 1)
	req.Recipients = []RecipientSlot{slot}
	fill(req.Signature[:], 99)

	got, err := DecodeSendTextRequest(req.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SenderIx != 3 || got.TextLen != 5 {
		t.Error("header fields mismatch")
	}
	if len(got.Recipients) != 1 || !bytes.Equal(got.Recipients[0].CipherText, slot.CipherText) {
		t.Error("recipient ciphertext mismatch")
	}
}

func TestSendTextRequestOversizedTextRejected(t *testing.T) {
	req := &SendTextRequest{TextLen: MaxText + 1}
	_, err := DecodeSendTextRequest(req.Encode())
	if err != ErrFieldTooLarge {
		t.Errorf("expected ErrFieldTooLarge, got %v", err)
	}
}

func TestSendTextRelayRoundTrip(t *testing.T) {
	base := SendTextRequest{SenderIx: 1, TextLen: 3}
	slot := RecipientSlot{GuestID: 2, CipherText: []byte("abc")}
	base.Recipients = []RecipientSlot{slot}
	relay := &SendTextRelay{SendTextRequest: base}
	fill(relay.ServerSignature[:], 50)

	got, err := DecodeSendTextRelay(relay.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ServerSignature != relay.ServerSignature {
		t.Error("server signature mismatch")
	}
	if got.SenderIx != 1 {
		t.Error("inner request fields lost")
	}
}

func TestPacketReaderWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewPacketWriter(&buf)
	r := NewPacketReader(&buf)

	packets := [][]byte{
		[]byte("first packet"),
		[]byte(""),
		bytes.Repeat([]byte{0xAB}, 1000),
	}
	for _, p := range packets {
		if err := w.Write(p); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	for i, want := range packets {
		got, err := r.Read()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("packet %d mismatch: got %d bytes, want %d", i, len(got), len(want))
		}
	}
}

func TestPacketWriterRejectsOversized(t *testing.T) {
	var buf bytes.Buffer
	w := NewPacketWriter(&buf)
	err := w.Write(make([]byte, MaxMsg+1))
	if err != ErrPacketTooLarge {
		t.Errorf("expected ErrPacketTooLarge, got %v", err)
	}
}

func TestTruncatedPacketRejected(t *testing.T) {
	req := &Login00Request{}
	buf := req.Encode()
	_, err := DecodeLogin00Request(buf[:len(buf)-1])
	if err != ErrTruncated {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}

func TestTrailingBytesRejected(t *testing.T) {
	req := &Login00Request{}
	buf := append(req.Encode(), 0x00)
	_, err := DecodeLogin00Request(buf)
	if err != ErrTrailingBytes {
		t.Errorf("expected ErrTrailingBytes, got %v", err)
	}
}

func TestMagicString(t *testing.T) {
	if MagicLogin00.String() != "LOGIN_00" {
		t.Errorf("String() = %s, want LOGIN_00", MagicLogin00.String())
	}
	if Magic(0).String() != "UNKNOWN" {
		t.Errorf("String() for unknown magic = %s, want UNKNOWN", Magic(0).String())
	}
}
