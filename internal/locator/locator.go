// Package locator finds the log file a freshly launched client has just
// created.
package locator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrLogFileNotFound is returned once every attempt has failed.
var ErrLogFileNotFound = errors.New("log file not found")

// NotFoundError reports an exhausted search. It matches ErrLogFileNotFound
// with errors.Is.
type NotFoundError struct {
	Dir      string
	Attempts int
	// Newest is the best candidate seen on the last attempt, if any.
	Newest    string
	NewestAge time.Duration
}

func (e *NotFoundError) Error() string {
	if e.Newest != "" {
		return fmt.Sprintf("%v in %s after %d attempts (newest %s is %s old)",
			ErrLogFileNotFound, e.Dir, e.Attempts, filepath.Base(e.Newest), e.NewestAge.Round(time.Second))
	}
	return fmt.Sprintf("%v in %s after %d attempts", ErrLogFileNotFound, e.Dir, e.Attempts)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrLogFileNotFound }

type Options struct {
	Dir string
	// Pattern is a doublestar pattern matched against file names. Empty
	// matches everything.
	Pattern     string
	MaxAge      time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Locate lists Dir up to MaxAttempts times, RetryDelay apart, and returns
// the newest matching file whose creation time is within MaxAge of now.
func Locate(ctx context.Context, opts Options) (string, error) {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Pattern != "" && !doublestar.ValidatePattern(opts.Pattern) {
		return "", fmt.Errorf("invalid log file pattern %q", opts.Pattern)
	}

	nf := &NotFoundError{Dir: opts.Dir}
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(opts.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}
		}

		nf.Attempts = attempt
		path, created, err := newest(opts.Dir, opts.Pattern)
		if err != nil || path == "" {
			nf.Newest = ""
			continue
		}
		age := opts.Now().Sub(created)
		if age <= opts.MaxAge {
			return path, nil
		}
		nf.Newest, nf.NewestAge = path, age
	}
	return "", nf
}

func newest(dir, pattern string) (string, time.Time, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("reading log dir %s: %w", dir, err)
	}

	var bestPath string
	var bestTime time.Time
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if pattern != "" {
			ok, err := doublestar.Match(pattern, entry.Name())
			if err != nil || !ok {
				continue
			}
		}
		path := filepath.Join(dir, entry.Name())
		created, err := creationTime(path)
		if err != nil {
			continue
		}
		if bestPath == "" || created.After(bestTime) {
			bestPath, bestTime = path, created
		}
	}
	return bestPath, bestTime, nil
}
