// Package logging provides structured logging for Rosetta.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a structured logger writing to stderr at the given level and
// format. Supported levels: debug, info, warn, error. Supported formats:
// text, json.
func New(level, format string) *slog.Logger {
	return NewWithWriter(level, format, os.Stderr)
}

// NewWithWriter is New with an explicit writer, so tests and the metrics
// HTTP server's own access log (if any) can redirect output independently
// of the dispatcher's stderr stream.
func NewWithWriter(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Nop returns a logger that discards all output, for callers (tests, a
// library caller with no logging configured) that need a non-nil *slog.Logger
// without an opinion on where it goes.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithConn derives a per-connection logger carrying the remote address on
// every line it emits — the dispatcher attaches one to each clientConn at
// accept time so a packet trace can be followed across an entire session
// without repeating KeyRemoteAddr at every call site.
func WithConn(log *slog.Logger, remoteAddr string) *slog.Logger {
	return log.With(KeyRemoteAddr, remoteAddr)
}

// WithUser derives a logger scoped to one registry index, used once a
// connection's login completes or a handler already knows which client a
// packet claims to be.
func WithUser(log *slog.Logger, userIx uint32) *slog.Logger {
	return log.With(KeyUserIndex, userIx)
}

// WithRoom derives a logger scoped to one room slot.
func WithRoom(log *slog.Logger, roomIx uint32) *slog.Logger {
	return log.With(KeyRoomIndex, roomIx)
}

// Common attribute keys for consistent logging across the dispatcher,
// handshake, and room handlers.
const (
	KeyUserIndex  = "user_ix"
	KeyRoomIndex  = "room_ix"
	KeyMagic      = "magic"
	KeyRemoteAddr = "remote_addr"
	KeyLocalAddr  = "local_addr"
	KeyError      = "error"
	KeyComponent  = "component"
	KeyReason     = "reason"
	KeyDuration   = "duration"
	KeyCount      = "count"
	KeyBytes      = "bytes"
)
