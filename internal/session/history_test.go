package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHistoryRoundTrip(t *testing.T) {
	h := NewHistory(filepath.Join(t.TempDir(), "state"))
	ended := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := []Session{
		{ID: "a", State: Exited, ProcessID: 10, StartedAt: ended.Add(-time.Hour), EndedAt: &ended, ExitReason: "quit"},
		{ID: "b", State: Watching, ProcessID: 20, Watching: true, StartedAt: ended},
	}

	if err := h.Save(in); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	out, err := h.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("Load() returned %d sessions, want 2", len(out))
	}
	if out[0].ID != "a" || out[0].ExitReason != "quit" || !out[0].EndedAt.Equal(ended) {
		t.Errorf("out[0] = %+v", out[0])
	}
	// Active at save time comes back ended.
	if out[1].State != Exited || out[1].Watching || out[1].ExitReason != ReasonInterrupted || out[1].EndedAt == nil {
		t.Errorf("out[1] = %+v", out[1])
	}
}

func TestHistoryLoadMissing(t *testing.T) {
	out, err := NewHistory(t.TempDir()).Load()
	if err != nil || out != nil {
		t.Errorf("Load() = %v, %v, want nil, nil", out, err)
	}
}

func TestHistoryLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	h := NewHistory(dir)
	if err := os.WriteFile(h.Path(), []byte("{nope"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Load(); err == nil {
		t.Error("Load() on corrupt file should fail")
	}
}

func TestHistorySaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	h := NewHistory(dir)
	if err := h.Save(nil); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != historyFileName {
		t.Errorf("dir entries = %v, want only %s", entries, historyFileName)
	}
}

func TestDefaultStateDirHonoursXDG(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg-state")
	if got := NewHistory("").Path(); got != "/tmp/xdg-state/gamewatch/sessions.json" {
		t.Errorf("Path() = %q", got)
	}
}
