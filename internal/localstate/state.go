// Package localstate persists the client's sync cursors and schema version.
package localstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

const (
	// LegacySchemaVersion is assumed when no state file exists.
	LegacySchemaVersion = 1
	// CurrentSchemaVersion is the split PersistentDog/Visit layout.
	CurrentSchemaVersion = 2
)

// State is the persisted client state.
type State struct {
	LastSyncTime           time.Time `json:"last_sync_time"`
	LastAllHistorySyncTime time.Time `json:"last_all_history_sync_time"`
	SchemaVersion          int       `json:"schema_version"`
}

// File stores State as JSON. Writes go to a temp file that is renamed over the target.
// Safe for concurrent use.
type File struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
}

// NewFile returns a File at path on fs.
func NewFile(fs afero.Fs, path string) *File {
	return &File{fs: fs, path: path}
}

// Load reads the state. A missing file yields zero cursors and the legacy schema version.
func (f *File) Load() (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *File) load() (State, error) {
	b, err := afero.ReadFile(f.fs, f.path)
	if errors.Is(err, os.ErrNotExist) {
		return State{SchemaVersion: LegacySchemaVersion}, nil
	} else if err != nil {
		return State{}, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return State{}, fmt.Errorf("decode state %s: %w", f.path, err)
	}
	if st.SchemaVersion == 0 {
		st.SchemaVersion = LegacySchemaVersion
	}
	return st, nil
}

// Save writes st atomically.
func (f *File) Save(st State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(st)
}

func (f *File) save(st State) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, b, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := f.fs.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}

// Update loads, applies fn and saves under one lock.
func (f *File) Update(fn func(*State)) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, err := f.load()
	if err != nil {
		return State{}, err
	}
	fn(&st)
	return st, f.save(st)
}

// SetLastSyncTime persists the incremental cursor.
func (f *File) SetLastSyncTime(t time.Time) error {
	_, err := f.Update(func(s *State) { s.LastSyncTime = t })
	return err
}

// SetLastAllHistorySyncTime persists the history cursor.
func (f *File) SetLastAllHistorySyncTime(t time.Time) error {
	_, err := f.Update(func(s *State) { s.LastAllHistorySyncTime = t })
	return err
}

// SetSchemaVersion records a completed migration.
func (f *File) SetSchemaVersion(v int) error {
	_, err := f.Update(func(s *State) { s.SchemaVersion = v })
	return err
}
