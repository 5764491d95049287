package supervisor

import (
	"encoding/json"

	"github.com/appleblox/gamewatch/internal/rules"
)

// Lifecycle events published on the bus alongside classified log events.
const (
	EventSessionStarted = "sessionStarted"
	EventSessionExited  = "sessionExited"
	EventLogFileFound   = "logFileFound"
	EventTailRestarted  = "tailRestarted"
	EventTailDiagnostic = "tailDiagnostic"
)

// Exit reasons carried by sessionExited.
const (
	ReasonQuit            = "quit"
	ReasonReplaced        = "replaced"
	ReasonProcessExited   = "process exited"
	ReasonLogNotFound     = "log file not found"
	ReasonLogUnreadable   = "log file unreadable"
	ReasonTailUnavailable = "tail watcher unrecoverable"
)

// Notice is the RawData payload of lifecycle events.
type Notice struct {
	SessionID  string `json:"sessionId"`
	TargetURL  string `json:"targetUrl,omitempty"`
	PID        int    `json:"pid,omitempty"`
	Path       string `json:"path,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
	ExitCode   *int   `json:"exitCode,omitempty"`
	Attempt    int    `json:"attempt,omitempty"`
	Dropped    int    `json:"dropped,omitempty"`
	Suppressed int    `json:"suppressed,omitempty"`
}

// Lifecycle reports whether name is one of the supervisor's own events.
func Lifecycle(name string) bool {
	switch name {
	case EventSessionStarted, EventSessionExited, EventLogFileFound, EventTailRestarted, EventTailDiagnostic:
		return true
	}
	return false
}

// ParseNotice decodes the payload of a lifecycle event.
func ParseNotice(ev rules.Event) (Notice, error) {
	var n Notice
	err := json.Unmarshal([]byte(ev.RawData), &n)
	return n, err
}

func noticeEvent(name string, n Notice) rules.Event {
	data, _ := json.Marshal(n)
	return rules.Event{Name: name, RawData: string(data)}
}
