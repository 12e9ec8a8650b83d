package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"mosquee-agenda/internal/model"
)

// Entry is one mosque's record in the site metadata file: its descriptive
// fields plus where the published calendar lives and when it was scraped.
type Entry struct {
	model.Mosque
	ScrapedAt   time.Time `json:"scrapedAt"`
	CalendarID  string    `json:"calendarId,omitempty"`
	CalendarURL string    `json:"calendarUrl,omitempty"`
	ICSURL      string    `json:"icsUrl,omitempty"`
}

// writeMetadata merges this run's successes into the metadata file. A
// mosque that failed keeps its previous entry, so the website never links
// a half-synchronized calendar.
func (p *Pipeline) writeMetadata(summary *Summary) error {
	if p.opts.MetadataPath == "" || p.opts.DryRun {
		return nil
	}

	entries := make(map[string]Entry)
	for _, res := range summary.Results {
		if res.Status != StatusSuccess || res.Schedule == nil {
			continue
		}
		entries[res.Key] = Entry{
			Mosque:      res.Schedule.Mosque,
			ScrapedAt:   res.Schedule.ScrapedAt,
			CalendarID:  res.CalendarID,
			CalendarURL: res.CalendarURL,
			ICSURL:      res.ICSURL,
		}
	}
	if len(entries) == 0 {
		return nil
	}

	if err := WriteMetadata(p.opts.MetadataPath, entries); err != nil {
		return err
	}
	p.log.WithFields(logrus.Fields{
		"path":    p.opts.MetadataPath,
		"entries": len(entries),
	}).Info("metadata written")
	return nil
}

// WriteMetadata merges entries into the metadata file at path, keyed by
// mosque key, and replaces the file atomically so a reader never observes
// a half-written one. Entries for other mosques are retained verbatim. An
// existing file that does not parse is left untouched and reported, since
// overwriting it would throw away the last-known-good entries.
func WriteMetadata(path string, entries map[string]Entry) error {
	merged := make(map[string]json.RawMessage)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &merged); err != nil {
			return fmt.Errorf("parsing existing metadata %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return err
	}

	for key, entry := range entries {
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encoding metadata for %s: %w", key, err)
		}
		merged[key] = raw
	}

	out, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(out); err != nil {
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
