package locator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("log\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLocateFindsFreshFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "0.123_RobloxPlayer_last.log")

	got, err := Locate(context.Background(), Options{
		Dir:         dir,
		MaxAge:      15 * time.Second,
		MaxAttempts: 1,
	})
	if err != nil {
		t.Fatalf("Locate() error: %v", err)
	}
	if got != path {
		t.Errorf("Locate() = %q, want %q", got, path)
	}
}

func TestLocateRejectsStaleFileAfterExactAttempts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "old_Player.log")

	var calls atomic.Int32
	_, err := Locate(context.Background(), Options{
		Dir:         dir,
		MaxAge:      15 * time.Second,
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
		// Every attempt sees the newest file as 30 seconds old.
		Now: func() time.Time {
			calls.Add(1)
			return time.Now().Add(30 * time.Second)
		},
	})
	if !errors.Is(err, ErrLogFileNotFound) {
		t.Fatalf("Locate() error = %v, want ErrLogFileNotFound", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Locate() error = %T, want *NotFoundError", err)
	}
	if nf.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", nf.Attempts)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("directory evaluated %d times, want 3", got)
	}
	if nf.Newest == "" || nf.NewestAge < 15*time.Second {
		t.Errorf("NotFoundError should describe the stale candidate: %+v", nf)
	}
}

func TestLocateMissingDirCountsAsAttempt(t *testing.T) {
	_, err := Locate(context.Background(), Options{
		Dir:         filepath.Join(t.TempDir(), "does-not-exist"),
		MaxAge:      time.Minute,
		MaxAttempts: 2,
		RetryDelay:  time.Millisecond,
	})
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Attempts != 2 {
		t.Fatalf("Locate() error = %v, want NotFoundError after 2 attempts", err)
	}
}

func TestLocateWaitsForLateFile(t *testing.T) {
	dir := t.TempDir()
	want := filepath.Join(dir, "late_Player.log")

	go func() {
		time.Sleep(30 * time.Millisecond)
		os.WriteFile(want, []byte("x\n"), 0644)
	}()

	got, err := Locate(context.Background(), Options{
		Dir:         dir,
		MaxAge:      time.Minute,
		MaxAttempts: 50,
		RetryDelay:  10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Locate() error: %v", err)
	}
	if got != want {
		t.Errorf("Locate() = %q, want %q", got, want)
	}
}

func TestLocatePatternFiltersNames(t *testing.T) {
	dir := t.TempDir()
	player := writeFile(t, dir, "0.1_RobloxPlayer_abc.log")
	time.Sleep(20 * time.Millisecond)
	writeFile(t, dir, "0.1_RobloxStudio_def.log")
	if err := os.Mkdir(filepath.Join(dir, "archive_Player.log"), 0755); err != nil {
		t.Fatal(err)
	}

	got, err := Locate(context.Background(), Options{
		Dir:         dir,
		Pattern:     "*Player*.log",
		MaxAge:      time.Minute,
		MaxAttempts: 1,
	})
	if err != nil {
		t.Fatalf("Locate() error: %v", err)
	}
	if got != player {
		t.Errorf("Locate() = %q, want %q", got, player)
	}
}

func TestLocatePicksNewest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.log")
	time.Sleep(20 * time.Millisecond)
	newer := writeFile(t, dir, "b.log")

	got, err := Locate(context.Background(), Options{Dir: dir, MaxAge: time.Minute, MaxAttempts: 1})
	if err != nil {
		t.Fatal(err)
	}
	if got != newer {
		t.Errorf("Locate() = %q, want newest %q", got, newer)
	}
}

func TestLocateContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := Locate(ctx, Options{
		Dir:         t.TempDir(),
		MaxAge:      time.Minute,
		MaxAttempts: 1000,
		RetryDelay:  50 * time.Millisecond,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Locate() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Locate() ignored cancellation")
	}
}

func TestLocateInvalidPattern(t *testing.T) {
	_, err := Locate(context.Background(), Options{Dir: t.TempDir(), Pattern: "[", MaxAge: time.Minute})
	if err == nil || errors.Is(err, ErrLogFileNotFound) {
		t.Fatalf("Locate() error = %v, want pattern error", err)
	}
}
