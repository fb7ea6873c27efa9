package ledger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	runerrors "github.com/droidrun-stack/droidrun-runner/internal/errors"
)

// FileStore keeps one flag file per device, named portal_<device>.flag.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, runerrors.WriteFailed(dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the flag file path for device. The mapping is deterministic;
// path separators in the device identifier are replaced.
func (s *FileStore) Path(device string) string {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(device)
	return filepath.Join(s.dir, "portal_"+name+".flag")
}

// Has reports whether the flag file exists.
func (s *FileStore) Has(ctx context.Context, device string) (bool, error) {
	_, err := os.Stat(s.Path(device))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, runerrors.ReadFailed(s.Path(device), err)
}

// Put writes the flag file atomically (write-then-rename).
func (s *FileStore) Put(ctx context.Context, device string) error {
	mainPath := s.Path(device)
	tmpPath := mainPath + ".tmp"

	if err := os.WriteFile(tmpPath, []byte("ok"), 0644); err != nil {
		return runerrors.WriteFailed(tmpPath, err)
	}
	if err := os.Rename(tmpPath, mainPath); err != nil {
		os.Remove(tmpPath)
		return runerrors.WriteFailed(mainPath, err)
	}
	return nil
}

// MemoryStore is an in-memory MarkerStore for tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	markers map[string]bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(devices ...string) *MemoryStore {
	m := &MemoryStore{markers: make(map[string]bool)}
	for _, d := range devices {
		m.markers[d] = true
	}
	return m
}

// Has reports whether device has a marker.
func (m *MemoryStore) Has(ctx context.Context, device string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.markers[device], nil
}

// Put records a marker for device.
func (m *MemoryStore) Put(ctx context.Context, device string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers[device] = true
	return nil
}

// Ensure stores implement MarkerStore
var (
	_ MarkerStore = (*FileStore)(nil)
	_ MarkerStore = (*MemoryStore)(nil)
)
