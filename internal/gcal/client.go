package gcal

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const defaultRequestInterval = 100 * time.Millisecond

// Client is the Google Calendar implementation of Backend. All requests
// share one pacing limiter so concurrent mosque workers stay inside the
// backend's rate budget.
type Client struct {
	svc     *calendar.Service
	limiter *rate.Limiter
}

// NewClient builds a Calendar API client. With an empty credentialsFile the
// ambient application-default credentials are used.
func NewClient(ctx context.Context, credentialsFile string, requestInterval time.Duration) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, classify("calendar client", err)
	}
	if requestInterval <= 0 {
		requestInterval = defaultRequestInterval
	}
	return &Client{
		svc:     svc,
		limiter: rate.NewLimiter(rate.Every(requestInterval), 1),
	}, nil
}

func (c *Client) InsertCalendar(ctx context.Context, summary, timezone string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	cal, err := c.svc.Calendars.Insert(&calendar.Calendar{Summary: summary, TimeZone: timezone}).Context(ctx).Do()
	if err != nil {
		return "", classify("insert calendar", err)
	}
	return cal.Id, nil
}

func (c *Client) CalendarExists(ctx context.Context, calendarID string) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, err
	}
	if _, err := c.svc.Calendars.Get(calendarID).Context(ctx).Do(); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, classify("get calendar", err)
	}
	return true, nil
}

func (c *Client) ListEvents(ctx context.Context, calendarID string) ([]*calendar.Event, error) {
	var events []*calendar.Event
	pageToken := ""
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		call := c.svc.Events.List(calendarID).MaxResults(2500).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, classify("list events", err)
		}
		events = append(events, page.Items...)
		if page.NextPageToken == "" {
			return events, nil
		}
		pageToken = page.NextPageToken
	}
}

// InsertEvent writes one event. Google refuses an insert when an event with
// the same id already exists, including cancelled events the list call never
// returns, so a conflict falls back to an update in place.
func (c *Client) InsertEvent(ctx context.Context, calendarID string, ev *calendar.Event) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := c.svc.Events.Insert(calendarID, ev).Context(ctx).Do(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == 409 {
			return c.UpdateEvent(ctx, calendarID, ev)
		}
		return classify("insert event", err)
	}
	return nil
}

func (c *Client) UpdateEvent(ctx context.Context, calendarID string, ev *calendar.Event) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := c.svc.Events.Update(calendarID, ev.Id, ev).Context(ctx).Do(); err != nil {
		return classify("update event", err)
	}
	return nil
}

func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := c.svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return classify("delete event", err)
	}
	return nil
}

// EnsurePublic grants public read access unless some rule already does. The
// ACL scope type "default" is what makes the subscription link readable
// without signing in.
func (c *Client) EnsurePublic(ctx context.Context, calendarID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	rules, err := c.svc.Acl.List(calendarID).Context(ctx).Do()
	if err != nil {
		return classify("list acl", err)
	}
	for _, rule := range rules.Items {
		if rule.Scope != nil && rule.Scope.Type == "default" && rule.Role != "none" {
			return nil
		}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err = c.svc.Acl.Insert(calendarID, &calendar.AclRule{
		Role:  "reader",
		Scope: &calendar.AclRuleScope{Type: "default"},
	}).Context(ctx).Do()
	if err != nil {
		return classify("insert acl", err)
	}
	return nil
}
