package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// Store persists pipeline artifacts between stages: validated schedules as
// JSON and rendered ICS feeds. Unlike a cache it has no TTL; the artifact
// for a mosque lives until the next successful run replaces it.
type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte) error
	GetJSON(key string, v interface{}) bool
	SetJSON(key string, v interface{}) error
	// GetICS and SetICS carry rendered calendar feeds, stored separately
	// from the JSON artifacts so both can exist under one key.
	GetICS(key string) ([]byte, bool)
	SetICS(key string, value []byte) error
}

// LocalStore is a file-based implementation of Store.
type LocalStore struct {
	dir string
	mu  sync.RWMutex
}

// NewLocal creates a new LocalStore with the specified directory.
func NewLocal(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &LocalStore{dir: dir}, nil
}

// Get retrieves a value by key. Returns the value and true if found,
// or nil and false if not found.
func (s *LocalStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.keyPath(key))
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores a value with the given key.
func (s *LocalStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return writeAtomic(s.keyPath(key), value)
}

// GetJSON retrieves and unmarshals a JSON value.
func (s *LocalStore) GetJSON(key string, v interface{}) bool {
	data, ok := s.Get(key)
	if !ok {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// SetJSON marshals and stores a value as JSON.
func (s *LocalStore) SetJSON(key string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return s.Set(key, data)
}

// GetICS retrieves a staged calendar feed.
func (s *LocalStore) GetICS(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.icsPath(key))
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetICS stores a rendered calendar feed as <key>.ics.
func (s *LocalStore) SetICS(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return writeAtomic(s.icsPath(key), value)
}

func (s *LocalStore) keyPath(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *LocalStore) icsPath(key string) string {
	return filepath.Join(s.dir, key+".ics")
}

// writeAtomic writes through a temp file in the same directory and renames
// it into place, so a reader never observes a partially written artifact.
func writeAtomic(path string, value []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
