// Package history keeps a bounded, append-only record of finished runs.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	runerrors "github.com/droidrun-stack/droidrun-runner/internal/errors"
	"github.com/droidrun-stack/droidrun-runner/internal/types"
)

// MaxEntries is the number of most recent entries retained.
const MaxEntries = 100

// Store persists history entries as a YAML list, oldest first.
type Store struct {
	path string
	max  int
	mu   sync.Mutex
}

// NewStore creates a store for the file at path.
func NewStore(path string) *Store {
	return &Store{path: path, max: MaxEntries}
}

// Append adds an entry, evicting the oldest entries beyond MaxEntries.
func (s *Store) Append(ctx context.Context, entry types.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadLocked()
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	if len(entries) > s.max {
		entries = entries[len(entries)-s.max:]
	}
	return s.saveLocked(entries)
}

// List returns all retained entries, oldest first.
func (s *Store) List(ctx context.Context) ([]types.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(nil)
}

func (s *Store) loadLocked() ([]types.HistoryEntry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, runerrors.ReadFailed(s.path, err)
	}

	var entries []types.HistoryEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing history %s: %w", s.path, err)
	}
	return entries, nil
}

// saveLocked writes entries atomically (write-then-rename).
func (s *Store) saveLocked(entries []types.HistoryEntry) error {
	if entries == nil {
		entries = []types.HistoryEntry{}
	}
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return runerrors.WriteFailed(s.path, err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return runerrors.WriteFailed(tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return runerrors.WriteFailed(s.path, err)
	}
	return nil
}
