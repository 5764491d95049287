//go:build !windows

package tailer

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func TestExecSpawnerOwnProcessGroup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	p, err := helperSpawner(t, "follow").Spawn(context.Background(), path, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		p.Stop()
		collect(t, p)
	}()

	pgid, err := syscall.Getpgid(p.PID)
	if err != nil {
		t.Fatalf("Getpgid(%d): %v", p.PID, err)
	}
	if pgid != p.PID {
		t.Errorf("helper pgid = %d, want its own group %d", pgid, p.PID)
	}
	if pgid == syscall.Getpgrp() {
		t.Error("helper shares the supervisor's process group")
	}
}
