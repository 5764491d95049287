package tailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
)

// ErrTailWatcherSpawn is returned when the helper process cannot be started.
var ErrTailWatcherSpawn = errors.New("tail watcher spawn failed")

// Spawner starts a helper following path from offset. An offset < 0 means
// the current end of the file.
type Spawner interface {
	Spawn(ctx context.Context, path string, offset int64) (*Process, error)
}

// Process is a handle on one running helper. Data carries raw stdout
// chunks and is closed at EOF; Done then delivers the exit code once.
type Process struct {
	PID  int
	Data <-chan []byte
	Done <-chan int

	active   atomic.Bool
	stop     func() error
	stopOnce sync.Once
	stopErr  error
}

// NewProcess wraps externally managed channels. stop may be nil.
func NewProcess(pid int, data <-chan []byte, done <-chan int, stop func() error) *Process {
	p := &Process{PID: pid, Data: data, Done: done, stop: stop}
	p.active.Store(true)
	return p
}

// Active reports whether the helper has neither exited nor been stopped.
func (p *Process) Active() bool {
	return p.active.Load()
}

// Stop terminates the helper. Repeated calls return the first result.
func (p *Process) Stop() error {
	p.stopOnce.Do(func() {
		p.active.Store(false)
		if p.stop != nil {
			p.stopErr = p.stop()
		}
	})
	return p.stopErr
}

func (p *Process) markExited() {
	p.active.Store(false)
}

// ExecSpawner runs the helper as a child process.
type ExecSpawner struct {
	// Command is the helper argv; "--file" and "--offset" are appended.
	// Empty means the running executable with the "tail" subcommand.
	Command []string
	// Stderr receives the helper's own log output. Nil discards it.
	Stderr io.Writer
}

// DefaultCommand returns the argv that re-executes the running binary in
// helper mode.
func DefaultCommand() ([]string, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	return []string{exe, "tail"}, nil
}

func (s *ExecSpawner) Spawn(ctx context.Context, path string, offset int64) (*Process, error) {
	argv := s.Command
	if len(argv) == 0 {
		var err error
		if argv, err = DefaultCommand(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTailWatcherSpawn, err)
		}
	}
	args := append(append([]string{}, argv[1:]...), "--file", path, "--offset", strconv.FormatInt(offset, 10))

	cmd := exec.CommandContext(ctx, argv[0], args...)
	cmd.Stderr = s.Stderr
	detach(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTailWatcherSpawn, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTailWatcherSpawn, err)
	}

	data := make(chan []byte, 64)
	done := make(chan int, 1)
	p := NewProcess(cmd.Process.Pid, data, done, func() error {
		err := cmd.Process.Kill()
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return err
	})

	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				data <- append([]byte(nil), buf[:n]...)
			}
			if err != nil {
				break
			}
		}
		close(data)
		code := exitCode(cmd.Wait())
		p.markExited()
		done <- code
		close(done)
	}()

	return p, nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// HelperMatcher recognises the command line of a helper following path.
func HelperMatcher(path string) func(cmdline []string) bool {
	return func(cmdline []string) bool {
		hasTail := false
		for i, arg := range cmdline {
			switch {
			case arg == "tail":
				hasTail = true
			case arg == "--file=" + path:
				return hasTail
			case arg == "--file" && i+1 < len(cmdline) && cmdline[i+1] == path:
				return hasTail
			}
		}
		return false
	}
}
