package wire

import "encoding/binary"

func putU64(b []byte, v uint64) {
	binary.LittleEndian.PutUint64(b, v)
}

func getU64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}

func putMagic(b []byte, m Magic) {
	putU64(b, uint64(m))
}

func getMagic(b []byte) Magic {
	return Magic(getU64(b))
}

// PeekMagic reads the 8-byte magic a packet opens with, without otherwise
// validating or decoding it — the one piece of every packet a dispatcher
// needs before it knows which DecodeX function to call next.
func PeekMagic(buf []byte) (Magic, error) {
	if len(buf) < SmallField {
		return 0, ErrTruncated
	}
	return getMagic(buf), nil
}

// requireLen returns ErrTruncated/ErrTrailingBytes when got does not equal
// want exactly. Every DecodeX function in this package is the sole arbiter
// of its own packet's length; there is no separate length-lookup table.
func requireLen(got, want int) error {
	if got < want {
		return ErrTruncated
	}
	if got > want {
		return ErrTrailingBytes
	}
	return nil
}

func requireMagic(got, want Magic) error {
	if got != want {
		return ErrMagicMismatch
	}
	return nil
}
