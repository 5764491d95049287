//go:build !windows

package tailer

import (
	"os/exec"
	"syscall"
)

// detach puts the helper in its own process group so a terminal interrupt
// aimed at the supervisor does not also stop the helper.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
