package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ErrPacketTooLarge is returned when a length prefix exceeds MaxMsg, either
// because the local caller tried to send an oversized packet or because a
// peer's prefix is lying.
var ErrPacketTooLarge = fmt.Errorf("wire: packet exceeds %d bytes", MaxMsg)

// Every packet type in this package self-identifies via its own embedded
// magic and is fully self-describing once its bytes are in hand. Raw TCP
// carries no record boundaries, though, so a single 8-byte little-endian
// length prefix wraps each logical packet on the wire. This is deliberately
// thinner than a general framing header: no type/flags/stream-id fields,
// since the payload already carries its own type (the magic) and there is
// exactly one logical stream per connection.

// PacketReader reads length-prefixed packets from a connection.
type PacketReader struct {
	r      io.Reader
	prefix [SmallField]byte
}

func NewPacketReader(r io.Reader) *PacketReader {
	return &PacketReader{r: r}
}

// Read blocks until one full packet has arrived and returns its raw bytes,
// unparsed. Callers dispatch on the leading magic themselves.
func (pr *PacketReader) Read() ([]byte, error) {
	if _, err := io.ReadFull(pr.r, pr.prefix[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint64(pr.prefix[:])
	if n > MaxMsg {
		return nil, ErrPacketTooLarge
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(pr.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// PacketWriter writes length-prefixed packets to a connection.
type PacketWriter struct {
	w io.Writer
}

func NewPacketWriter(w io.Writer) *PacketWriter {
	return &PacketWriter{w: w}
}

// Write sends one already-encoded packet, prefixed with its length.
func (pw *PacketWriter) Write(packet []byte) error {
	if len(packet) > MaxMsg {
		return ErrPacketTooLarge
	}
	var prefix [SmallField]byte
	binary.LittleEndian.PutUint64(prefix[:], uint64(len(packet)))
	if _, err := pw.w.Write(prefix[:]); err != nil {
		return err
	}
	_, err := pw.w.Write(packet)
	return err
}
