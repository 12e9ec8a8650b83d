package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("first load mismatch: got %+v", cfg)
	}

	// A second load parses the freshly written file.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if !reflect.DeepEqual(again, cfg) {
		t.Errorf("reload mismatch: got %+v, want %+v", again, cfg)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	want := DefaultConfig()
	want.Mosques = []MosqueConfig{
		{Key: "annour-ivry", URL: "https://mawaqit.net/fr/annour-ivry"},
		{URL: "https://mawaqit.net/fr/grande-mosquee-de-paris"},
	}
	want.Template.Exclude = []string{"shuruq"}
	want.Workers = 2
	want.FirestoreProject = "mosquee-agenda"

	if err := Save(path, want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	partial := `mosques:
  - url: https://mawaqit.net/fr/annour-ivry
template:
  title: "{prayer} ({mosque})"
workers: 0
`
	if err := os.WriteFile(path, []byte(partial), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Mosques) != 1 || cfg.Mosques[0].URL != "https://mawaqit.net/fr/annour-ivry" {
		t.Errorf("mosques mismatch: %+v", cfg.Mosques)
	}
	if cfg.Template.Title != "{prayer} ({mosque})" {
		t.Errorf("explicit title lost: %q", cfg.Template.Title)
	}
	if cfg.Template.Description != "Prayer time at {mosque}" {
		t.Errorf("description default not filled: %q", cfg.Template.Description)
	}
	if cfg.Workers != 4 {
		t.Errorf("workers = %d, want the default", cfg.Workers)
	}
	if cfg.Sync.BatchSize != 50 || cfg.Sync.CalendarName != "{mosque} - Prayer Times" {
		t.Errorf("sync defaults not filled: %+v", cfg.Sync)
	}
	if cfg.Sync.Prune == nil || !*cfg.Sync.Prune {
		t.Error("omitted prune should default to on")
	}
	if cfg.StoreDir != "data" || cfg.MetadataPath != "data/mosques_metadata.json" {
		t.Errorf("path defaults not filled: %+v", cfg)
	}
}

func TestLoadKeepsExplicitPruneOff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	partial := `sync:
  prune: false
`
	if err := os.WriteFile(path, []byte(partial), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Sync.Prune == nil {
		t.Fatal("explicit prune setting lost")
	}
	if *cfg.Sync.Prune {
		t.Error("explicit prune: false flipped back to the default")
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(":\n\t- broken"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("want error for unparsable config")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("want error for empty path")
	}
}
