package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrStateNotFound is returned when no persisted engine state exists yet.
var ErrStateNotFound = errors.New("workflow engine: state not found")

// StateFile is the snapshot name inside the state directory.
const StateFile = "state.json"

// StateStore persists engine state snapshots.
type StateStore interface {
	Load() (State, error)
	Save(State) error
}

// Repository stores engine state as JSON under .paneler/state.
type Repository struct {
	path string
}

// NewRepository creates a repository in stateDir.
func NewRepository(stateDir string) *Repository {
	return &Repository{path: filepath.Join(stateDir, StateFile)}
}

// Path returns the snapshot location.
func (r *Repository) Path() string {
	return r.path
}

// Load reads the persisted state if present.
func (r *Repository) Load() (State, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return State{}, ErrStateNotFound
		}
		return State{}, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("workflow engine: decode %s: %w", r.path, err)
	}
	return state, nil
}

// Save writes the snapshot to a temp file and renames it into place.
func (r *Repository) Save(state State) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, append(encoded, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}
