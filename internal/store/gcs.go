package store

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"cloud.google.com/go/storage"
)

// GCSStore is a Cloud Storage-backed implementation of Store. Serving the
// staged ICS feeds straight from a bucket gives each mosque a stable
// download URL without running a server.
type GCSStore struct {
	client *storage.Client
	bucket string
	mu     sync.RWMutex
}

// NewGCS creates a new GCSStore with the specified bucket.
func NewGCS(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSStore{
		client: client,
		bucket: bucket,
	}, nil
}

// Get retrieves a value by key. Returns the value and true if found,
// or nil and false if not found.
func (s *GCSStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.read(s.keyPath(key))
}

// Set stores a value with the given key.
func (s *GCSStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(s.keyPath(key), "application/json", value)
}

// GetJSON retrieves and unmarshals a JSON value.
func (s *GCSStore) GetJSON(key string, v interface{}) bool {
	data, ok := s.Get(key)
	if !ok {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// SetJSON marshals and stores a value as JSON.
func (s *GCSStore) SetJSON(key string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return s.Set(key, data)
}

// GetICS retrieves a staged calendar feed.
func (s *GCSStore) GetICS(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.read(key + ".ics")
}

// SetICS stores a rendered calendar feed as <key>.ics. The text/calendar
// content type lets browsers and calendar apps open the object directly.
func (s *GCSStore) SetICS(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(key+".ics", "text/calendar", value)
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) read(object string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reader, err := s.client.Bucket(s.bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, false
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (s *GCSStore) write(object, contentType string, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	writer := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := writer.Write(value); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

func (s *GCSStore) keyPath(key string) string {
	return key + ".json"
}
