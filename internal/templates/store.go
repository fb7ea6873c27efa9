// Package templates stores reusable task descriptions grouped by category.
package templates

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	runerrors "github.com/droidrun-stack/droidrun-runner/internal/errors"
	"github.com/droidrun-stack/droidrun-runner/internal/types"
)

// DefaultCategory holds the templates written on first use.
const DefaultCategory = "common"

// Defaults returns the templates seeded into a new store.
func Defaults() map[string][]types.Template {
	return map[string][]types.Template{
		DefaultCategory: {
			{Name: "check-system-version", Description: "Open the Settings app and check the Android version"},
			{Name: "clear-background", Description: "Open the recent apps list and clear all background apps"},
			{Name: "check-battery", Description: "Open the Settings app and check the battery status"},
		},
	}
}

// Store persists templates as a YAML mapping of category to template list.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store for the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// All returns every category. A missing file is seeded with Defaults.
func (s *Store) All(ctx context.Context) (map[string][]types.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Categories returns category names in sorted order.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Add appends a template to category, creating the category if needed.
// Names must be unique within a category.
func (s *Store) Add(ctx context.Context, category string, t types.Template) error {
	if category == "" {
		return fmt.Errorf("category is required")
	}
	if err := t.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadLocked()
	if err != nil {
		return err
	}
	for _, existing := range all[category] {
		if existing.Name == t.Name {
			return fmt.Errorf("template %s/%s already exists", category, t.Name)
		}
	}
	all[category] = append(all[category], t)
	return s.saveLocked(all)
}

// Remove deletes a template. The category is dropped once empty.
// It reports whether anything was removed.
func (s *Store) Remove(ctx context.Context, category, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadLocked()
	if err != nil {
		return false, err
	}
	list, ok := all[category]
	if !ok {
		return false, nil
	}
	kept := list[:0]
	for _, t := range list {
		if t.Name != name {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(list) {
		return false, nil
	}
	if len(kept) == 0 {
		delete(all, category)
	} else {
		all[category] = kept
	}
	return true, s.saveLocked(all)
}

// Find looks up a template by "category/name", or by bare name in DefaultCategory.
func (s *Store) Find(ctx context.Context, ref string) (types.Template, error) {
	category, name, ok := strings.Cut(ref, "/")
	if !ok {
		category, name = DefaultCategory, ref
	}

	all, err := s.All(ctx)
	if err != nil {
		return types.Template{}, err
	}
	for _, t := range all[category] {
		if t.Name == name {
			return t, nil
		}
	}
	return types.Template{}, fmt.Errorf("template not found: %s/%s", category, name)
}

func (s *Store) loadLocked() (map[string][]types.Template, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			all := Defaults()
			if err := s.saveLocked(all); err != nil {
				return nil, err
			}
			return all, nil
		}
		return nil, runerrors.ReadFailed(s.path, err)
	}

	all := make(map[string][]types.Template)
	if err := yaml.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("parsing templates %s: %w", s.path, err)
	}
	if all == nil {
		all = make(map[string][]types.Template)
	}
	return all, nil
}

// saveLocked writes templates atomically (write-then-rename).
func (s *Store) saveLocked(all map[string][]types.Template) error {
	data, err := yaml.Marshal(all)
	if err != nil {
		return fmt.Errorf("marshaling templates: %w", err)
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
