package ics

import (
	"fmt"
	"regexp"
	"time"

	"mosquee-agenda/internal/model"
)

// TemplateError reports a pattern referencing an undefined placeholder. It
// is a configuration defect: every mosque would hit it, so it is fatal for
// the whole run.
type TemplateError struct {
	Pattern     string
	Placeholder string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %q: undefined placeholder {%s}", e.Pattern, e.Placeholder)
}

// Template configures how prayer occurrences become calendar events.
// Patterns may reference {prayer}, {mosque}, {date} and {time}.
type Template struct {
	Title       string
	Description string
	Reminders   []int // minutes before start
	// Duration overrides the per-prayer defaults when non-zero.
	Duration time.Duration
	Exclude  []model.Prayer
}

// DefaultTemplate mirrors the historical calendar output: the prayer name as
// the title, the mosque name in the description, reminders 15 and 5 minutes
// before the event, per-prayer durations.
func DefaultTemplate() Template {
	return Template{
		Title:       "{prayer}",
		Description: "Prayer time at {mosque}",
		Reminders:   []int{15, 5},
	}
}

// NewTemplate builds a Template from configuration values, leaving defaults
// in place for empty ones. Unknown prayer names in the exclusion list are
// rejected here, before any mosque is processed.
func NewTemplate(title, description string, reminders []int, durationMinutes int, exclude []string) (Template, error) {
	t := DefaultTemplate()
	if title != "" {
		t.Title = title
	}
	if description != "" {
		t.Description = description
	}
	if reminders != nil {
		t.Reminders = append([]int(nil), reminders...)
	}
	if durationMinutes > 0 {
		t.Duration = time.Duration(durationMinutes) * time.Minute
	}
	for _, name := range exclude {
		p, ok := model.ParsePrayer(name)
		if !ok {
			return Template{}, fmt.Errorf("unknown prayer %q in exclusions", name)
		}
		t.Exclude = append(t.Exclude, p)
	}
	return t, nil
}

func (t Template) excluded(p model.Prayer) bool {
	for _, q := range t.Exclude {
		if p == q {
			return true
		}
	}
	return false
}

// Per-prayer durations when no fixed duration is configured. Shuruq and
// anything unrecognized get the one-hour default.
var prayerDurations = map[model.Prayer]time.Duration{
	model.PrayerFajr:    15 * time.Minute,
	model.PrayerDhuhr:   30 * time.Minute,
	model.PrayerAsr:     30 * time.Minute,
	model.PrayerMaghrib: 20 * time.Minute,
	model.PrayerIsha:    30 * time.Minute,
}

const defaultDuration = time.Hour

func (t Template) durationFor(p model.Prayer) time.Duration {
	if t.Duration > 0 {
		return t.Duration
	}
	if d, ok := prayerDurations[p]; ok {
		return d
	}
	return defaultDuration
}

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_]+)\}`)

// expand substitutes {placeholder} references in pattern. A reference to an
// undefined placeholder is a *TemplateError; literal braces that do not form
// a placeholder pass through untouched.
func expand(pattern string, vars map[string]string) (string, error) {
	var unknown string
	out := placeholderRe.ReplaceAllStringFunc(pattern, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := vars[name]
		if !ok {
			if unknown == "" {
				unknown = name
			}
			return m
		}
		return v
	})
	if unknown != "" {
		return "", &TemplateError{Pattern: pattern, Placeholder: unknown}
	}
	return out, nil
}
