//go:build windows

package supervisor

import (
	"errors"
	"os/exec"
)

// setCredential is not supported on Windows; PSYNC_USER is a unix-only
// feature that assumes POSIX uid/gid semantics.
func setCredential(cmd *exec.Cmd, uid, gid uint32) error {
	return errors.New("supervisor: PSYNC_USER is not supported on windows")
}
