// Package cache keeps recently served artifacts on disk with a TTL, so a
// feed server in front of a remote store does not re-read the bucket on
// every subscription poll.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one cached artifact with the time it was fetched.
type Entry struct {
	Value     []byte    `json:"value"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Cache provides disk-based caching keyed by artifact name.
type Cache struct {
	dir string
	ttl time.Duration
	mu  sync.RWMutex
}

// New creates a new disk-based cache.
func New(cacheDir string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, err
	}
	return &Cache{
		dir: cacheDir,
		ttl: ttl,
	}, nil
}

// Get retrieves a cached artifact if it exists and isn't expired.
func (c *Cache) Get(name string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := os.ReadFile(c.filePath(name))
	if err != nil {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}

	if time.Since(entry.FetchedAt) > c.ttl {
		return nil, false
	}

	return entry.Value, true
}

// Set stores an artifact in the cache.
func (c *Cache) Set(name string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := Entry{
		Value:     value,
		FetchedAt: time.Now(),
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.filePath(name), data, 0644)
}

// Invalidate removes a specific artifact's cache entry.
func (c *Cache) Invalidate(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.filePath(name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// InvalidateAll removes all cached entries.
func (c *Cache) InvalidateAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".json" {
			os.Remove(filepath.Join(c.dir, entry.Name()))
		}
	}
	return nil
}

func (c *Cache) filePath(name string) string {
	// Sanitize name to be filesystem-safe
	safeName := ""
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			safeName += string(r)
		} else {
			safeName += "_"
		}
	}
	return filepath.Join(c.dir, safeName+".json")
}
