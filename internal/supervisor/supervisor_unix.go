//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// setCredential arranges for the child to run under the given uid/gid.
// Platform-specific process attributes live in their own file instead of
// behind runtime checks.
func setCredential(cmd *exec.Cmd, uid, gid uint32) error {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Credential = &syscall.Credential{Uid: uid, Gid: gid}
	return nil
}
