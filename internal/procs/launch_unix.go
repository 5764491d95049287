//go:build !windows

package procs

import (
	"os/exec"
	"syscall"
)

// launchCommand detaches the client into its own process group so a
// terminal interrupt aimed at the supervisor does not reach it.
func launchCommand(argv []string) *exec.Cmd {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}
