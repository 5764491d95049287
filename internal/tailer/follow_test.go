package tailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) records(t *testing.T) [][]string {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out [][]string
	for _, rec := range strings.Split(b.buf.String(), "\n") {
		if rec == "" {
			continue
		}
		var lines []string
		if err := json.Unmarshal([]byte(rec), &lines); err != nil {
			t.Fatalf("record %q is not a JSON string array: %v", rec, err)
		}
		out = append(out, lines)
	}
	return out
}

func (b *syncBuffer) lines(t *testing.T) []string {
	var all []string
	for _, rec := range b.records(t) {
		all = append(all, rec...)
	}
	return all
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func appendFile(t *testing.T, path, s string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(s); err != nil {
		t.Fatal(err)
	}
}

func startFollow(t *testing.T, path string, offset int64) (*syncBuffer, <-chan error, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	errc := make(chan error, 1)
	go func() {
		errc <- Follow(ctx, path, offset, out, slog.New(slog.DiscardHandler))
	}()
	t.Cleanup(cancel)
	return out, errc, cancel
}

func TestFollowFromOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")
	if err := os.WriteFile(path, []byte("old line\nnew one\n"), 0644); err != nil {
		t.Fatal(err)
	}

	out, _, _ := startFollow(t, path, int64(len("old line\n")))
	waitFor(t, "initial read", func() bool { return len(out.lines(t)) == 1 })

	appendFile(t, path, "second\nthird\n")
	waitFor(t, "appended lines", func() bool { return len(out.lines(t)) == 3 })

	want := []string{"new one", "second", "third"}
	if got := out.lines(t); !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %q, want %q", got, want)
	}
}

func TestFollowFromEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")
	if err := os.WriteFile(path, []byte("history\n"), 0644); err != nil {
		t.Fatal(err)
	}

	out, _, _ := startFollow(t, path, -1)
	// Give the follower time to open and seek before appending.
	time.Sleep(100 * time.Millisecond)
	appendFile(t, path, "fresh\n")
	waitFor(t, "fresh line", func() bool { return len(out.lines(t)) > 0 })

	if got := out.lines(t); !reflect.DeepEqual(got, []string{"fresh"}) {
		t.Errorf("lines = %q, want [fresh]", got)
	}
}

func TestFollowBuffersPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	out, _, _ := startFollow(t, path, 0)
	appendFile(t, path, "complete\npart")
	waitFor(t, "complete line", func() bool { return len(out.lines(t)) == 1 })

	// Let at least one poll pass with the fragment still unterminated.
	time.Sleep(2 * followPollInterval)
	if got := out.lines(t); len(got) != 1 {
		t.Fatalf("partial line emitted early: %q", got)
	}

	appendFile(t, path, "ial\r\n")
	waitFor(t, "joined line", func() bool { return len(out.lines(t)) == 2 })
	if got := out.lines(t); got[1] != "partial" {
		t.Errorf("joined line = %q, want %q", got[1], "partial")
	}
}

func TestFollowStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	_, errc, cancel := startFollow(t, path, 0)
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Follow() after cancel = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not return after cancel")
	}
}

func TestFollowFileRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	_, errc, _ := startFollow(t, path, 0)
	time.Sleep(100 * time.Millisecond)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, ErrFileGone) {
			t.Errorf("Follow() = %v, want ErrFileGone", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not return after removal")
	}
}

func TestFollowMissingFile(t *testing.T) {
	err := Follow(context.Background(), filepath.Join(t.TempDir(), "nope.log"), 0, &syncBuffer{}, slog.New(slog.DiscardHandler))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Follow() = %v, want ErrNotExist", err)
	}
}

func TestDrainLogsFailedFinalRead(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "client.log"))
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	var logs bytes.Buffer
	fw := &follower{
		file: f,
		enc:  json.NewEncoder(&syncBuffer{}),
		log:  slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}
	fw.drain()

	out := logs.String()
	if !strings.Contains(out, "level=DEBUG") || !strings.Contains(out, "final read before exit failed") {
		t.Errorf("log = %q, want a debug line for the failed read", out)
	}
}
