// Package console prints bus events to a terminal. Log events are shown
// with their rule name and payload; the supervisor's lifecycle notices are
// rendered as short status lines.
package console

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/appleblox/gamewatch/internal/rules"
	"github.com/appleblox/gamewatch/internal/supervisor"
)

var (
	colorDimmed  = lipgloss.Color("#6b7280")
	colorEvent   = lipgloss.Color("#3b82f6")
	colorHealthy = lipgloss.Color("#22c55e")
	colorWarning = lipgloss.Color("#d97706")
	colorDanger  = lipgloss.Color("#dc2626")
)

type styles struct {
	time    lipgloss.Style
	name    lipgloss.Style
	payload lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	danger  lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		time:    r.NewStyle().Foreground(colorDimmed),
		name:    r.NewStyle().Foreground(colorEvent).Bold(true),
		payload: r.NewStyle(),
		ok:      r.NewStyle().Foreground(colorHealthy).Bold(true),
		warn:    r.NewStyle().Foreground(colorWarning),
		danger:  r.NewStyle().Foreground(colorDanger).Bold(true),
	}
}

// Printer is a bus handler. The colour profile is detected from the
// writer, so output to a file or pipe is plain text.
type Printer struct {
	mu    sync.Mutex
	w     io.Writer
	st    styles
	now   func() time.Time
	quiet bool
}

// New returns a Printer writing to w. With quiet set, only lifecycle
// notices are printed.
func New(w io.Writer, quiet bool) *Printer {
	return &Printer{
		w:     w,
		st:    newStyles(lipgloss.NewRenderer(w)),
		now:   time.Now,
		quiet: quiet,
	}
}

// Handle satisfies bus.Handler.
func (p *Printer) Handle(ev rules.Event) error {
	var line string
	if supervisor.Lifecycle(ev.Name) {
		line = p.notice(ev)
	} else {
		if p.quiet {
			return nil
		}
		line = p.st.name.Render(ev.Name) + "  " + p.st.payload.Render(ev.RawData)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.w, "%s %s\n", p.st.time.Render(p.now().Format("15:04:05")), line)
	return err
}

func (p *Printer) notice(ev rules.Event) string {
	n, err := supervisor.ParseNotice(ev)
	if err != nil {
		return p.st.warn.Render(ev.Name) + "  " + ev.RawData
	}

	switch ev.Name {
	case supervisor.EventSessionStarted:
		return p.st.ok.Render("session started") + fields("pid", itoa(n.PID), "url", n.TargetURL, "id", n.SessionID)
	case supervisor.EventLogFileFound:
		return p.st.ok.Render("log file") + fields("path", n.Path)
	case supervisor.EventTailRestarted:
		code := ""
		if n.ExitCode != nil {
			code = strconv.Itoa(*n.ExitCode)
		}
		return p.st.warn.Render("tail restarted") + fields("attempt", itoa(n.Attempt), "exit", code)
	case supervisor.EventTailDiagnostic:
		return p.st.warn.Render("malformed tail output") +
			fields("dropped", itoa(n.Dropped), "suppressed", itoa(n.Suppressed), "error", n.Error)
	case supervisor.EventSessionExited:
		style := p.st.danger
		if n.Reason == supervisor.ReasonQuit || n.Reason == supervisor.ReasonReplaced {
			style = p.st.ok
		}
		return style.Render("session exited") + fields("reason", n.Reason, "error", n.Error)
	}
	return ev.Name
}

// fields renders key=value pairs, skipping empty values.
func fields(kv ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			continue
		}
		b.WriteString("  ")
		b.WriteString(kv[i])
		b.WriteByte('=')
		b.WriteString(kv[i+1])
	}
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
