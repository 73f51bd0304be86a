package wire

import "errors"

// Sentinel errors for the Malformed class of §7's error taxonomy. The
// dispatcher treats all of these identically: drop the packet, log, and
// keep serving.
var (
	ErrTruncated     = errors.New("wire: packet shorter than its declared shape")
	ErrTrailingBytes = errors.New("wire: packet longer than its declared shape")
	ErrMagicMismatch = errors.New("wire: unexpected magic for this packet type")
	ErrFieldTooLarge = errors.New("wire: length-prefixed field exceeds its ceiling")
)
