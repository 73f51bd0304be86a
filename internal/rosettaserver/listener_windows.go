//go:build windows

package rosettaserver

import "syscall"

// setReuseAddr is a no-op on Windows: SO_REUSEPORT has no equivalent, and
// plain SO_REUSEADDR semantics there already permit a quick rebind.
func setReuseAddr(_, _ string, _ syscall.RawConn) error {
	return nil
}
