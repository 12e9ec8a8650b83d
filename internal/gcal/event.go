package gcal

import (
	"sort"
	"time"

	"google.golang.org/api/calendar/v3"

	"mosquee-agenda/internal/model"
)

// toGoogleEvent renders a generated event in the backend's wire shape. The
// deterministic identifier doubles as the remote event id, which is what
// makes the whole reconciliation idempotent.
func toGoogleEvent(e *model.Event) *calendar.Event {
	overrides := make([]*calendar.EventReminder, 0, len(e.Reminders))
	for _, minutes := range e.Reminders {
		overrides = append(overrides, &calendar.EventReminder{Method: "popup", Minutes: int64(minutes)})
	}
	ev := &calendar.Event{
		Id:          e.ID,
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Start: &calendar.EventDateTime{
			DateTime: e.Start.Format(time.RFC3339),
			TimeZone: e.Timezone,
		},
		End: &calendar.EventDateTime{
			DateTime: e.End.Format(time.RFC3339),
			TimeZone: e.Timezone,
		},
		Reminders: &calendar.EventReminders{
			UseDefault:      false,
			Overrides:       overrides,
			ForceSendFields: []string{"UseDefault"},
		},
	}
	if e.URL != "" {
		ev.Source = &calendar.EventSource{Title: "Mosque page", Url: e.URL}
	}
	return ev
}

// eventChanged reports whether the remote copy differs in any field the
// generator controls. Times compare as instants because the backend may
// render the same instant with a different offset notation.
func eventChanged(have, want *calendar.Event) bool {
	if have.Summary != want.Summary || have.Description != want.Description || have.Location != want.Location {
		return true
	}
	if !sameInstant(have.Start, want.Start) || !sameInstant(have.End, want.End) {
		return true
	}
	return !sameReminders(have.Reminders, want.Reminders)
}

func sameInstant(have, want *calendar.EventDateTime) bool {
	if have == nil || want == nil {
		return have == want
	}
	ht, herr := time.Parse(time.RFC3339, have.DateTime)
	wt, werr := time.Parse(time.RFC3339, want.DateTime)
	if herr != nil || werr != nil {
		return have.DateTime == want.DateTime
	}
	return ht.Equal(wt)
}

func sameReminders(have, want *calendar.EventReminders) bool {
	hm := reminderMinutes(have)
	wm := reminderMinutes(want)
	if len(hm) != len(wm) {
		return false
	}
	for i := range hm {
		if hm[i] != wm[i] {
			return false
		}
	}
	return true
}

func reminderMinutes(r *calendar.EventReminders) []int64 {
	if r == nil || r.UseDefault {
		return nil
	}
	var minutes []int64
	for _, o := range r.Overrides {
		if o.Method == "popup" {
			minutes = append(minutes, o.Minutes)
		}
	}
	sort.Slice(minutes, func(i, j int) bool { return minutes[i] < minutes[j] })
	return minutes
}
