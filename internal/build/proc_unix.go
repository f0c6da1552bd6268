//go:build !windows

package build

import (
	"os/exec"
	"syscall"
)

// configureProcess starts the shell in its own process group so that a
// timeout kills the whole build tree, not just the shell.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}

		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
