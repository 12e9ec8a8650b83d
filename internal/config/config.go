// Package config holds the YAML run configuration: which mosques to
// process, how to shape their events, and where artifacts go.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// MosqueConfig identifies one mosque to process.
type MosqueConfig struct {
	// Key is the stable identity the mosque keeps across runs. Empty
	// derives it from the last URL path segment.
	Key string `yaml:"key,omitempty"`
	// URL is the mosque's public schedule page.
	URL string `yaml:"url"`
}

// TemplateConfig shapes generated events. Title and Description accept
// {prayer}, {mosque}, {date} and {time} placeholders.
type TemplateConfig struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	// Reminders are popup offsets in minutes before the event.
	Reminders []int `yaml:"reminders"`
	// DurationMinutes overrides the per-prayer defaults when positive.
	DurationMinutes int `yaml:"duration_minutes,omitempty"`
	// Exclude lists prayer names to leave out, e.g. shuruq.
	Exclude []string `yaml:"exclude,omitempty"`
}

// SyncConfig tunes the calendar backend interaction.
type SyncConfig struct {
	// CalendarName names newly created calendars; {mosque} expands to the
	// mosque's display name.
	CalendarName string `yaml:"calendar_name"`
	// BatchSize bounds writes per reconciliation batch.
	BatchSize int `yaml:"batch_size"`
	// Prune removes remote events the current schedule no longer has.
	// Nil means unset; Normalize turns that into on. Only an explicit
	// "prune: false" disables it.
	Prune *bool `yaml:"prune"`
	// RequestIntervalMS spaces backend requests, shared by all workers.
	RequestIntervalMS int `yaml:"request_interval_ms"`
}

// Config is the top-level run configuration.
type Config struct {
	Mosques []MosqueConfig `yaml:"mosques"`

	Template TemplateConfig `yaml:"template"`
	Sync     SyncConfig     `yaml:"sync"`

	// Workers bounds how many mosques are processed concurrently.
	Workers int `yaml:"workers"`
	// MaxAttempts bounds retries of transient failures, first try included.
	MaxAttempts int `yaml:"max_attempts"`
	// Year selects the schedule year; zero means the current year.
	Year int `yaml:"year,omitempty"`

	// StoreDir stages schedule JSON and ICS feeds between stages.
	StoreDir string `yaml:"store_dir"`
	// GCSBucket, when set, stages artifacts in Cloud Storage instead.
	GCSBucket string `yaml:"gcs_bucket,omitempty"`
	// MetadataPath is the JSON file the website consumes.
	MetadataPath string `yaml:"metadata_path"`

	// RegistryDir holds the local mosque-to-calendar mapping.
	RegistryDir string `yaml:"registry_dir"`
	// FirestoreProject, when set, keeps the mapping in Firestore instead.
	FirestoreProject    string `yaml:"firestore_project,omitempty"`
	FirestoreCollection string `yaml:"firestore_collection,omitempty"`

	// CredentialsFile is the Google service account key. Empty uses
	// application-default credentials.
	CredentialsFile string `yaml:"credentials_file,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	prune := true
	return &Config{
		Mosques: []MosqueConfig{},
		Template: TemplateConfig{
			Title:       "{prayer}",
			Description: "Prayer time at {mosque}",
			Reminders:   []int{15, 5},
		},
		Sync: SyncConfig{
			CalendarName:      "{mosque} - Prayer Times",
			BatchSize:         50,
			Prune:             &prune,
			RequestIntervalMS: 100,
		},
		Workers:             4,
		MaxAttempts:         3,
		StoreDir:            "data",
		MetadataPath:        "data/mosques_metadata.json",
		RegistryDir:         "data/registry",
		FirestoreCollection: "calendars",
	}
}

// Normalize fills missing or zero values with defaults so partially filled
// configs still behave.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Mosques == nil {
		c.Mosques = []MosqueConfig{}
	}
	if c.Template.Title == "" {
		c.Template.Title = def.Template.Title
	}
	if c.Template.Description == "" {
		c.Template.Description = def.Template.Description
	}
	if c.Template.Reminders == nil {
		c.Template.Reminders = def.Template.Reminders
	}
	if c.Sync.CalendarName == "" {
		c.Sync.CalendarName = def.Sync.CalendarName
	}
	if c.Sync.BatchSize <= 0 {
		c.Sync.BatchSize = def.Sync.BatchSize
	}
	if c.Sync.Prune == nil {
		c.Sync.Prune = def.Sync.Prune
	}
	if c.Sync.RequestIntervalMS <= 0 {
		c.Sync.RequestIntervalMS = def.Sync.RequestIntervalMS
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.StoreDir == "" {
		c.StoreDir = def.StoreDir
	}
	if c.MetadataPath == "" {
		c.MetadataPath = def.MetadataPath
	}
	if c.RegistryDir == "" {
		c.RegistryDir = def.RegistryDir
	}
	if c.FirestoreCollection == "" {
		c.FirestoreCollection = def.FirestoreCollection
	}
}

// Load reads the YAML config at path. A missing file is created with the
// defaults so a first run leaves something to edit.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically via a temp file and rename.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
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
