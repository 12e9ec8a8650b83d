package gcal

import (
	"context"
	"net/url"

	"google.golang.org/api/calendar/v3"
)

// Backend is the remote calendar surface the synchronizer needs. The real
// implementation talks to Google Calendar; tests substitute a fake.
type Backend interface {
	InsertCalendar(ctx context.Context, summary, timezone string) (string, error)
	// CalendarExists reports whether the calendar id is still live on the
	// backend. A deleted or never-created id reports false with a nil error.
	CalendarExists(ctx context.Context, calendarID string) (bool, error)
	ListEvents(ctx context.Context, calendarID string) ([]*calendar.Event, error)
	InsertEvent(ctx context.Context, calendarID string, ev *calendar.Event) error
	UpdateEvent(ctx context.Context, calendarID string, ev *calendar.Event) error
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	// EnsurePublic grants public read access if the calendar does not have
	// it yet. Idempotent.
	EnsurePublic(ctx context.Context, calendarID string) error
}

// CalendarWebURL is the browser view of a public calendar.
func CalendarWebURL(calendarID string) string {
	return "https://calendar.google.com/calendar/embed?src=" + url.QueryEscape(calendarID)
}

// PublicICSURL is the subscription feed of a calendar, readable once public
// access has been granted.
func PublicICSURL(calendarID string) string {
	return "https://calendar.google.com/calendar/ical/" + url.PathEscape(calendarID) + "/public/basic.ics"
}
