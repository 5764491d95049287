package tailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrFileGone is returned by Follow when the followed file is removed or
// renamed away.
var ErrFileGone = errors.New("followed file disappeared")

// followPollInterval catches writes fsnotify does not report (network
// filesystems, some editors).
const followPollInterval = 250 * time.Millisecond

// maxPartial bounds the unterminated-line buffer.
const maxPartial = 1 << 20

// Follow streams complete lines appended to path onto out, starting at
// offset (or at the end of the file when offset < 0). It returns nil when
// ctx is cancelled.
func Follow(ctx context.Context, path string, offset int64, out io.Writer, log *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if offset < 0 {
		offset, err = f.Seek(0, io.SeekEnd)
	} else {
		offset, err = f.Seek(offset, io.SeekStart)
	}
	if err != nil {
		return fmt.Errorf("seeking %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()
	// Watch the directory so removal and rename of the file are seen.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	fw := &follower{file: f, offset: offset, enc: json.NewEncoder(out), log: log}
	fw.enc.SetEscapeHTML(false)

	if err := fw.readAvailable(); err != nil {
		return err
	}

	poll := time.NewTicker(followPollInterval)
	defer poll.Stop()

	clean := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != clean {
				continue
			}
			switch {
			case ev.Has(fsnotify.Write):
				if err := fw.readAvailable(); err != nil {
					return err
				}
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				fw.drain()
				return fmt.Errorf("%w: %s", ErrFileGone, path)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", "path", path, "error", err)

		case <-poll.C:
			if err := fw.readAvailable(); err != nil {
				return err
			}
		}
	}
}

type follower struct {
	file    *os.File
	offset  int64
	partial []byte
	enc     *json.Encoder
	log     *slog.Logger
}

// readAvailable reads to EOF and emits one record holding every line
// completed by the read.
func (fw *follower) readAvailable() error {
	if info, err := fw.file.Stat(); err == nil && info.Size() < fw.offset {
		fw.log.Info("log file truncated, restarting from beginning", "size", info.Size(), "offset", fw.offset)
		if _, err := fw.file.Seek(0, io.SeekStart); err != nil {
			return err
		}
		fw.offset = 0
		fw.partial = nil
	}

	data, err := io.ReadAll(fw.file)
	if err != nil {
		return fmt.Errorf("reading log: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	fw.offset += int64(len(data))

	lines := fw.split(data)
	if len(lines) == 0 {
		return nil
	}
	return fw.enc.Encode(lines)
}

// drain flushes whatever was written before the file went away. The file
// is gone, so a failed read here only gets a debug line.
func (fw *follower) drain() {
	if err := fw.readAvailable(); err != nil {
		fw.log.Debug("final read before exit failed", "offset", fw.offset, "error", err)
	}
}

// split returns the complete lines in partial+data and keeps the
// unterminated remainder for the next read.
func (fw *follower) split(data []byte) []string {
	buf := append(fw.partial, data...)
	fw.partial = nil

	var lines []string
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, strings.TrimSuffix(string(buf[:i]), "\r"))
		buf = buf[i+1:]
	}
	if len(buf) > maxPartial {
		fw.log.Warn("dropping oversized unterminated line", "bytes", len(buf))
		buf = nil
	}
	if len(buf) > 0 {
		fw.partial = append([]byte(nil), buf...)
	}
	return lines
}
