// Package registry persists the mapping from mosque key to the Google
// Calendar id that publishes its schedule. Subscribers follow the calendar
// id, so losing an entry means the next run creates a fresh calendar and
// existing subscriptions go stale. Entries must survive process restarts.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Local stores one calendar id per mosque key as a small file under dir,
// which keeps the registry human-inspectable and easy to back up.
type Local struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocal creates a file-backed registry rooted at dir.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Local{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Get returns the calendar id registered for key, if any.
func (l *Local) Get(key string) (string, bool, error) {
	lock := l.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(l.keyPath(key))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading registry entry: %w", err)
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", false, nil
	}
	return id, true, nil
}

// Set registers the calendar id for key, replacing any previous entry. The
// write goes through a temp file and rename so a crash never leaves a torn
// entry behind.
func (l *Local) Set(key, calendarID string) error {
	lock := l.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	path := l.keyPath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(calendarID+"\n"), 0644); err != nil {
		return fmt.Errorf("writing registry entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing registry entry: %w", err)
	}
	return nil
}

// keyLock returns the mutex guarding one key's file. Separate keys never
// contend, which matters when mosque workers run concurrently.
func (l *Local) keyLock(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	return lock
}

func (l *Local) keyPath(key string) string {
	// Sanitize key to be filesystem-safe
	safe := ""
	for _, r := range key {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			safe += string(r)
		} else {
			safe += "_"
		}
	}
	return filepath.Join(l.dir, safe+".calendar")
}
