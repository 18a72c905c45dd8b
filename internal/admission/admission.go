// Package admission implements the peer allowlist check performed before a
// connection is upgraded to the control channel.
package admission

import "errors"

// ErrNotAllowed is returned when the peer's address is not in the allowlist.
var ErrNotAllowed = errors.New("admission: client address not recognized")

// Check rejects remoteIP if it is not literally present in allowlist.
func Check(remoteIP string, allowlist []string) error {
	for _, addr := range allowlist {
		if addr == remoteIP {
			return nil
		}
	}
	return ErrNotAllowed
}
