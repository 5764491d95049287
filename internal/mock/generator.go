// Package mock writes a synthetic game client log so the supervisor, the
// tailer and the rule table can be exercised without the real client.
package mock

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Generator appends one scripted line per tick to a fresh log file.
type Generator struct {
	Dir      string
	Interval time.Duration
	// Rounds is the number of join/leave cycles; 0 means until ctx ends.
	Rounds int
	// SplitLines writes each line in two halves on consecutive ticks.
	SplitLines bool

	rng *rand.Rand
	now func() time.Time
}

func NewGenerator(dir string, interval time.Duration) *Generator {
	return &Generator{
		Dir:      dir,
		Interval: interval,
		Rounds:   1,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
}

// Create makes a new log file named the way the client names its own.
func (g *Generator) Create() (*os.File, error) {
	if err := os.MkdirAll(g.Dir, 0o755); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("0.650.0.6500789_%s_Player_%05x_last.log",
		g.now().UTC().Format("20060102T150405Z"), g.rng.Intn(1<<20))
	return os.OpenFile(filepath.Join(g.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// Run creates the log file, reports its path on ready (if non-nil) and
// writes lines until the script ends or ctx is cancelled.
func (g *Generator) Run(ctx context.Context, ready func(path string)) error {
	f, err := g.Create()
	if err != nil {
		return fmt.Errorf("creating log: %w", err)
	}
	defer f.Close()
	if ready != nil {
		ready(f.Name())
	}

	ticker := time.NewTicker(g.Interval)
	defer ticker.Stop()

	var script []string
	var pending string
	round := 0
	for {
		if pending == "" && len(script) == 0 {
			if g.Rounds > 0 && round >= g.Rounds {
				return nil
			}
			round++
			script = g.session()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		var out string
		switch {
		case pending != "":
			out, pending = pending, ""
		case g.SplitLines:
			line := script[0]
			script = script[1:]
			half := len(line) / 2
			out, pending = line[:half], line[half:]
		default:
			out, script = script[0], script[1:]
		}
		if _, err := f.WriteString(out); err != nil {
			return fmt.Errorf("writing log: %w", err)
		}
	}
}

// session returns the lines of one join, play and leave cycle.
func (g *Generator) session() []string {
	jobID := uuid.NewString()
	placeID := 1000 + g.rng.Intn(9_000_000)
	universeID := 100 + g.rng.Intn(900_000)
	ip := fmt.Sprintf("128.116.%d.%d", g.rng.Intn(256), 1+g.rng.Intn(254))
	port := 49152 + g.rng.Intn(16384)

	bodies := []string{
		"[FLog::Output] Settings Date header was Mon, 01 Jan 2026 00:00:00 GMT",
		fmt.Sprintf("[FLog::Output] ! Joining game '%s' place %d at %s", jobID, placeID, ip),
		fmt.Sprintf("[FLog::GameJoinLoadTime] Report game_join_loadtime: placeid:%d, universeid:%d, joinTime:1.234", placeID, universeID),
		fmt.Sprintf("[FLog::Network] UDMUX Address = %s, Port = %d | RCC Server Address = 10.%d.0.1, Port = %d", ip, port, g.rng.Intn(256), port),
		fmt.Sprintf("[FLog::Network] serverId: %s|%d", ip, port),
		`[FLog::Output] [BloxstrapRPC] {"command":"SetRichPresence","data":{"details":"Playing"}}`,
		"[FLog::Output] Players: 12",
		"[FLog::SingleSurfaceApp] leaveUGCGameInternal",
		"[FLog::Network] Time to disconnect replication data: 0.004s",
	}

	lines := make([]string, len(bodies))
	for i, body := range bodies {
		lines[i] = g.prefix() + " " + body + "\n"
	}
	return lines
}

func (g *Generator) prefix() string {
	t := g.now().UTC()
	return fmt.Sprintf("%s,%.6f,%04x,6", t.Format("2006-01-02T15:04:05.000Z"), float64(t.UnixMicro()%1e9)/1e6, g.rng.Intn(1<<16))
}
