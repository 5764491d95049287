package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	historyVersion  = 1
	historyFileName = "sessions.json"
	appDirName      = "gamewatch"

	// ReasonInterrupted ends sessions that were still active when the
	// history was last written.
	ReasonInterrupted = "supervisor stopped"
)

type historyFile struct {
	Version  int       `json:"version"`
	Sessions []Session `json:"sessions"`
	SavedAt  time.Time `json:"savedAt"`
}

// History persists the session list between runs as
// $XDG_STATE_HOME/gamewatch/sessions.json.
type History struct {
	dir string
}

// NewHistory creates a History in dir, or in the default XDG state
// directory when dir is empty. The directory is created on first Save.
func NewHistory(dir string) *History {
	if dir == "" {
		dir = defaultStateDir()
	}
	return &History{dir: dir}
}

func (h *History) Path() string {
	return filepath.Join(h.dir, historyFileName)
}

// Load reads the saved sessions. A missing file yields no sessions.
// Sessions saved while still active are returned as exited, since the
// supervisor that owned them is gone.
func (h *History) Load() ([]Session, error) {
	data, err := os.ReadFile(h.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading history: %w", err)
	}

	var f historyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing history: %w", err)
	}
	for i := range f.Sessions {
		if f.Sessions[i].State.Active() {
			f.Sessions[i].End(Exited, f.SavedAt, ReasonInterrupted)
		}
	}
	return f.Sessions, nil
}

// Save writes sessions using a temp-file-then-rename so a crash never
// leaves a truncated file.
func (h *History) Save(sessions []Session) error {
	if err := os.MkdirAll(h.dir, 0o700); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	data, err := json.MarshalIndent(historyFile{
		Version:  historyVersion,
		Sessions: sessions,
		SavedAt:  time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(h.dir, ".sessions-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, h.Path()); err != nil {
		return fmt.Errorf("renaming history file: %w", err)
	}
	committed = true
	return nil
}

func defaultStateDir() string {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "state", appDirName)
}
