//go:build windows

package procs

import "os/exec"

func launchCommand(argv []string) *exec.Cmd {
	return exec.Command(argv[0], argv[1:]...)
}
