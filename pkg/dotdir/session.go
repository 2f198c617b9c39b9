package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const sessionFile = "session.json"

// SessionState is the persisted snapshot of an owner's active chat
// window.
type SessionState struct {
	// Owner is the owner id the window belongs to.
	Owner string `json:"owner"`

	// Turns is the window content in chronological order (oldest first).
	Turns []SessionTurn `json:"turns"`
}

// SessionTurn is one persisted window turn.
type SessionTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LoadSession loads the session snapshot from the target .engram/
// directory. Returns nil, nil when no snapshot exists or it belongs to a
// different owner.
func (m *Manager) LoadSession(owner, overrideDir string) (*SessionState, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, sessionFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session state: %w", err)
	}

	state := &SessionState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing session state: %w", err)
	}
	if state.Owner != owner {
		return nil, nil
	}

	return state, nil
}

// SaveSession persists the session snapshot to the target .engram/
// directory.
func (m *Manager) SaveSession(state *SessionState, overrideDir string) error {
	if state == nil {
		return fmt.Errorf("session state cannot be nil")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session state: %w", err)
	}

	path := filepath.Join(dir, sessionFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing session state: %w", err)
	}
	return nil
}

// ClearSession removes the persisted snapshot. Missing files are fine.
func (m *Manager) ClearSession(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	err = os.Remove(filepath.Join(dir, sessionFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session state: %w", err)
	}
	return nil
}
