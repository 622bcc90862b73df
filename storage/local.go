package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"
)

// LocalStore is the ephemeral key-value store: one JSON object of string values in a single file.
// Every write rewrites the file through a temp file and rename. An empty path keeps values in memory.
type LocalStore struct {
	mu     sync.Mutex
	path   string
	values map[string]string
	loaded bool
}

// NewLocalStore creates a store backed by path. Nothing is read until Initialize or first use.
func NewLocalStore(path string) *LocalStore {
	return &LocalStore{path: path, values: map[string]string{}}
}

// Name identifies the backend in logs and metrics.
func (s *LocalStore) Name() string { return "local" }

// Initialize loads the file. It always succeeds; an unreadable file starts empty.
func (s *LocalStore) Initialize(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	return nil
}

func (s *LocalStore) loadLocked() {
	if s.loaded {
		return
	}
	s.loaded = true
	if s.path == "" {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("reading local store", "tag", "storage", "path", s.path, "err", err)
		}
		return
	}
	values := map[string]string{}
	if err := json.Unmarshal(data, &values); err != nil {
		slog.Warn("local store is corrupt; starting empty", "tag", "storage", "path", s.path, "err", err)
		return
	}
	s.values = values
}

// Get returns the value for key.
func (s *LocalStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set stores value under key.
func (s *LocalStore) Set(key, value string) error {
	return s.Update(key, func(string, bool) (string, bool) { return value, true })
}

// Update applies fn under the store lock; the new value is persisted before it becomes visible.
func (s *LocalStore) Update(key string, fn func(current string, ok bool) (string, bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	cur, ok := s.values[key]
	next, write := fn(cur, ok)
	if !write {
		return nil
	}
	values := maps.Clone(s.values)
	values[key] = next
	return s.commitLocked(values)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *LocalStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	if _, ok := s.values[key]; !ok {
		return nil
	}
	values := maps.Clone(s.values)
	delete(values, key)
	return s.commitLocked(values)
}

// Clear removes every key.
func (s *LocalStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	return s.commitLocked(map[string]string{})
}

func (s *LocalStore) commitLocked(values map[string]string) error {
	if s.path != "" {
		if err := writeFileAtomic(s.path, values); err != nil {
			return fmt.Errorf("%w: local store: %w", ErrFailed, err)
		}
	}
	s.values = values
	return nil
}

func writeFileAtomic(path string, values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".local-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
