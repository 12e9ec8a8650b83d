package ics

import (
	"fmt"
	"sort"
	"time"

	"mosquee-agenda/internal/model"
)

// Generate maps a Schedule Record into calendar events, one per occurrence,
// sorted by start instant ascending. The output is deterministic: identical
// (schedule, template) inputs always produce identical events, which is what
// makes the synchronizer's diffing correct.
func Generate(sched *model.Schedule, tpl Template) ([]model.Event, error) {
	loc, err := time.LoadLocation(sched.Mosque.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", sched.Mosque.Timezone, err)
	}

	events := make([]model.Event, 0, len(sched.Occurrences))
	for _, occ := range sched.Occurrences {
		if tpl.excluded(occ.Prayer) {
			continue
		}

		day, err := time.Parse("2006-01-02", occ.Date)
		if err != nil {
			return nil, fmt.Errorf("occurrence date %q: %w", occ.Date, err)
		}
		clock, err := time.Parse("15:04", occ.Time)
		if err != nil {
			return nil, fmt.Errorf("occurrence time %q: %w", occ.Time, err)
		}

		// Interpreting the wall clock in the mosque's zone resolves DST by
		// the rule in effect on that date, not at generation time.
		start := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
		end := start.Add(tpl.durationFor(occ.Prayer))

		vars := map[string]string{
			"prayer": occ.Prayer.Title(),
			"mosque": sched.Mosque.Name,
			"date":   occ.Date,
			"time":   occ.Time,
		}
		summary, err := expand(tpl.Title, vars)
		if err != nil {
			return nil, err
		}
		description, err := expand(tpl.Description, vars)
		if err != nil {
			return nil, err
		}

		events = append(events, model.Event{
			ID:          model.EventID(sched.Mosque.Key, occ.Date, occ.Prayer),
			MosqueKey:   sched.Mosque.Key,
			Date:        occ.Date,
			Prayer:      occ.Prayer,
			Summary:     summary,
			Description: description,
			Location:    sched.Mosque.Name,
			Latitude:    sched.Mosque.Latitude,
			Longitude:   sched.Mosque.Longitude,
			URL:         sched.Mosque.URL,
			Start:       start,
			End:         end,
			Timezone:    sched.Mosque.Timezone,
			Reminders:   append([]int(nil), tpl.Reminders...),
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Start.Equal(events[j].Start) {
			return events[i].Start.Before(events[j].Start)
		}
		return events[i].Prayer.Order() < events[j].Prayer.Order()
	})
	return events, nil
}
