// Package procs wraps the OS process table: launching the client,
// resolving its real PID, liveness checks and kills.
package procs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrNoProcess is returned when no process matches.
var ErrNoProcess = errors.New("no matching process")

// createSlack tolerates clock granularity between the launch timestamp and
// the kernel's process start time.
const createSlack = 2 * time.Second

// maxAncestry bounds parent walks.
const maxAncestry = 10

// Info is the subset of process attributes the supervisor cares about.
type Info struct {
	PID     int
	PPID    int
	Name    string
	Exe     string
	Cmdline []string
	Created time.Time
	Zombie  bool
}

// Table is the gopsutil-backed process table.
type Table struct {
	self int
}

func NewTable() *Table {
	return &Table{self: os.Getpid()}
}

// Launch starts argv without waiting for it and reaps it in the
// background. It returns the launcher's PID, which may or may not be the
// client itself.
func (t *Table) Launch(ctx context.Context, argv []string) (int, error) {
	if len(argv) == 0 {
		return 0, errors.New("empty launch command")
	}
	cmd := launchCommand(argv)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %s: %w", argv[0], err)
	}
	go cmd.Wait()
	return cmd.Process.Pid, nil
}

// Find returns the PID of the newest process named name that started at or
// after since. Descendants of launcherPID win over unrelated processes.
func (t *Table) Find(ctx context.Context, name string, since time.Time, launcherPID int) (int, error) {
	infos, err := t.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	info, ok := pickTarget(infos, name, since, launcherPID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoProcess, name)
	}
	return info.PID, nil
}

// Exists reports whether pid is present and not a zombie.
func (t *Table) Exists(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExists(int32(pid))
	if err != nil || !ok {
		return false
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	status, err := p.Status()
	if err != nil {
		return true
	}
	return !isZombie(status)
}

// Kill sends SIGKILL to pid.
func (t *Table) Kill(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return fmt.Errorf("%w: pid %d", ErrNoProcess, pid)
	}
	return p.Kill()
}

// KillMatching kills every process whose command line satisfies match,
// except this process. It returns how many were killed.
func (t *Table) KillMatching(ctx context.Context, match func(cmdline []string) bool) (int, error) {
	infos, err := t.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	var killed int
	var errs []error
	for _, info := range infos {
		if info.PID == t.self || info.Zombie || !match(info.Cmdline) {
			continue
		}
		if err := t.Kill(info.PID); err != nil {
			errs = append(errs, fmt.Errorf("pid %d: %w", info.PID, err))
			continue
		}
		killed++
	}
	return killed, errors.Join(errs...)
}

func (t *Table) snapshot(ctx context.Context) ([]Info, error) {
	ps, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}
	infos := make([]Info, 0, len(ps))
	for _, p := range ps {
		// Processes can vanish mid-scan; partial info is fine.
		info := Info{PID: int(p.Pid)}
		if ppid, err := p.PpidWithContext(ctx); err == nil {
			info.PPID = int(ppid)
		}
		info.Name, _ = p.NameWithContext(ctx)
		info.Exe, _ = p.ExeWithContext(ctx)
		info.Cmdline, _ = p.CmdlineSliceWithContext(ctx)
		if ms, err := p.CreateTimeWithContext(ctx); err == nil {
			info.Created = time.UnixMilli(ms)
		}
		if status, err := p.StatusWithContext(ctx); err == nil {
			info.Zombie = isZombie(status)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func isZombie(status []string) bool {
	for _, s := range status {
		if s == process.Zombie {
			return true
		}
	}
	return false
}

// matchesName compares name against the process name, the executable's
// base name and argv[0]'s base name.
func matchesName(info Info, name string) bool {
	if name == "" {
		return false
	}
	candidates := []string{info.Name}
	if info.Exe != "" {
		candidates = append(candidates, filepath.Base(info.Exe))
	}
	if len(info.Cmdline) > 0 {
		candidates = append(candidates, filepath.Base(info.Cmdline[0]))
	}
	for _, c := range candidates {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

func pickTarget(infos []Info, name string, since time.Time, launcherPID int) (Info, bool) {
	parents := make(map[int]int, len(infos))
	for _, info := range infos {
		parents[info.PID] = info.PPID
	}

	var matches []Info
	for _, info := range infos {
		if info.Zombie || !matchesName(info, name) {
			continue
		}
		if !info.Created.IsZero() && info.Created.Before(since.Add(-createSlack)) {
			continue
		}
		matches = append(matches, info)
	}
	if len(matches) == 0 {
		return Info{}, false
	}

	sort.SliceStable(matches, func(i, j int) bool {
		di := descendsFrom(parents, matches[i].PID, launcherPID)
		dj := descendsFrom(parents, matches[j].PID, launcherPID)
		if di != dj {
			return di
		}
		return matches[i].Created.After(matches[j].Created)
	})
	return matches[0], true
}

// descendsFrom walks pid's ancestry looking for ancestor.
func descendsFrom(parents map[int]int, pid, ancestor int) bool {
	if ancestor <= 0 {
		return false
	}
	current := pid
	for i := 0; i < maxAncestry; i++ {
		if current == ancestor {
			return true
		}
		parent, ok := parents[current]
		if !ok || parent <= 1 || parent == current {
			return false
		}
		current = parent
	}
	return false
}
