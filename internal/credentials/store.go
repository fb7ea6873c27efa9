// Package credentials stores provider API keys in a flat JSON object keyed
// by upper-case provider name, e.g. {"OPENAI": "sk-..."}.
package credentials

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	runerrors "github.com/droidrun-stack/droidrun-runner/internal/errors"
)

// Store reads and writes the credential file.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store for the file at path. The file need not exist.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the credential file path.
func (s *Store) Path() string {
	return s.path
}

// Credential returns the key stored for provider. Keys match case-insensitively.
// A missing file or key is reported as ok == false, not as an error.
func (s *Store) Credential(ctx context.Context, provider string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return "", false, err
	}

	var value string
	var found bool
	gjson.ParseBytes(data).ForEach(func(key, val gjson.Result) bool {
		if strings.EqualFold(key.String(), provider) {
			value, found = val.String(), true
			return false
		}
		return true
	})
	if found && value == "" {
		return "", false, nil
	}
	return value, found, nil
}

// Set stores key for provider under its upper-case name.
func (s *Store) Set(ctx context.Context, provider, key string) error {
	name := strings.ToUpper(strings.TrimSpace(provider))
	if name == "" {
		return runerrors.CredentialInvalid(s.path, "provider name is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return err
	}
	// Drop any differently-cased entry for the same provider.
	for _, existing := range keysOf(data) {
		if existing != name && strings.EqualFold(existing, name) {
			if data, err = sjson.DeleteBytes(data, gjson.Escape(existing)); err != nil {
				return fmt.Errorf("removing %s: %w", existing, err)
			}
		}
	}
	data, err = sjson.SetBytes(data, gjson.Escape(name), key)
	if err != nil {
		return fmt.Errorf("setting %s: %w", name, err)
	}
	return s.writeLocked(data)
}

// Delete removes the key for provider. Removing a missing key is not an error.
func (s *Store) Delete(ctx context.Context, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return err
	}
	for _, existing := range keysOf(data) {
		if strings.EqualFold(existing, provider) {
			if data, err = sjson.DeleteBytes(data, gjson.Escape(existing)); err != nil {
				return fmt.Errorf("removing %s: %w", existing, err)
			}
		}
	}
	return s.writeLocked(data)
}

// All returns a copy of every stored key.
func (s *Store) All(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	gjson.ParseBytes(data).ForEach(func(key, val gjson.Result) bool {
		out[key.String()] = val.String()
		return true
	})
	return out, nil
}

// Mask hides all but the last four characters of a key.
func Mask(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

func (s *Store) readLocked() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []byte("{}"), nil
		}
		return nil, runerrors.ReadFailed(s.path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return []byte("{}"), nil
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return nil, runerrors.CredentialInvalid(s.path, "not a JSON object")
	}
	return data, nil
}

// writeLocked persists data atomically (write-then-rename) with owner-only permissions.
func (s *Store) writeLocked(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return runerrors.WriteFailed(s.path, err)
	}
	pretty := []byte(gjson.GetBytes(data, "@pretty").Raw)

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, pretty, 0600); err != nil {
		return runerrors.WriteFailed(tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return runerrors.WriteFailed(s.path, err)
	}
	return nil
}

func keysOf(data []byte) []string {
	var keys []string
	gjson.ParseBytes(data).ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	sort.Strings(keys)
	return keys
}
