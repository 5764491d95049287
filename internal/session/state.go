package session

import (
	"encoding/json"
	"time"
)

// State is the lifecycle position of a Session:
// Idle → Launching → Watching → Exited.
type State int

const (
	Idle State = iota
	Launching
	Watching
	Exited
)

var stateNames = map[State]string{
	Idle:      "idle",
	Launching: "launching",
	Watching:  "watching",
	Exited:    "exited",
}

var stateFromName = map[string]State{
	"idle":      Idle,
	"launching": Launching,
	"watching":  Watching,
	"exited":    Exited,
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Active reports whether a session in this state blocks a new launch.
func (s State) Active() bool {
	return s == Launching || s == Watching
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, ok := stateFromName[n]; ok {
		*s = v
	} else {
		*s = Idle
	}
	return nil
}

// Session is one supervised run of the game client. The supervisor owns
// the live value; everyone else sees copies.
type Session struct {
	ID          string     `json:"id"`
	State       State      `json:"state"`
	TargetURL   string     `json:"targetUrl,omitempty"`
	ProcessID   int        `json:"pid,omitempty"`
	LogFilePath string     `json:"logFilePath,omitempty"`
	Watching    bool       `json:"watching"`
	Restarts    int        `json:"tailRestarts"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	ExitReason  string     `json:"exitReason,omitempty"`
}

// Clone returns a copy that shares no pointers with s.
func (s Session) Clone() Session {
	if s.EndedAt != nil {
		t := *s.EndedAt
		s.EndedAt = &t
	}
	return s
}

// End records the terminal transition.
func (s *Session) End(state State, at time.Time, reason string) {
	s.State = state
	s.Watching = false
	s.EndedAt = &at
	s.ExitReason = reason
}
