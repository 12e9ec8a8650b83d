package gcal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/calendar/v3"

	"mosquee-agenda/internal/logging"
	"mosquee-agenda/internal/model"
)

// Registry persists the mosque-key to calendar-id mapping across runs. The
// synchronizer finds its calendar only through this mapping, never by
// searching the credential's calendar list.
//
// Get distinguishes an absent mapping (false, nil) from a failed lookup.
// The distinction matters: treating a flaky lookup as absent would create
// a duplicate calendar and orphan the registered one.
type Registry interface {
	Get(key string) (string, bool, error)
	Set(key, calendarID string) error
}

// Options configure reconciliation.
type Options struct {
	// BatchSize bounds how many writes go out per reconciliation batch.
	BatchSize int
	// Prune deletes remote events this run no longer generates. Only ids
	// with the deterministic shape are touched.
	Prune bool
	// CalendarName names newly created calendars; {mosque} expands to the
	// mosque's display name.
	CalendarName string
}

const (
	defaultBatchSize    = 50
	defaultCalendarName = "{mosque} - Prayer Times"
)

// eventIDRe matches the deterministic identifier shape. The prune guard
// refuses to delete anything else, so events added by hand to a published
// calendar survive a prune.
var eventIDRe = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Result summarizes one mosque's reconciliation.
type Result struct {
	CalendarID  string
	CalendarURL string
	ICSURL      string
	Created     bool
	Inserted    int
	Updated     int
	Deleted     int
	Unchanged   int
}

// Syncer reconciles generated events against a mosque's remote calendar.
type Syncer struct {
	backend  Backend
	registry Registry
	opts     Options
	log      *logrus.Logger
}

func NewSyncer(backend Backend, registry Registry, opts Options, log *logrus.Logger) *Syncer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.CalendarName == "" {
		opts.CalendarName = defaultCalendarName
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Syncer{backend: backend, registry: registry, opts: opts, log: log}
}

// Sync ensures the mosque's calendar exists, brings its events in line with
// the generated set, and guarantees public read access. Runs are idempotent:
// a second pass over unchanged input issues no writes, and a pass cut short
// mid-batch is completed by the next one.
func (s *Syncer) Sync(ctx context.Context, sched *model.Schedule, events []model.Event) (*Result, error) {
	key := sched.Mosque.Key
	res := &Result{}

	calendarID, err := s.ensureCalendar(ctx, sched, res)
	if err != nil {
		return nil, err
	}
	res.CalendarID = calendarID

	remote, err := s.backend.ListEvents(ctx, calendarID)
	if err != nil {
		return nil, fmt.Errorf("listing events for %s: %w", key, err)
	}
	existing := make(map[string]*calendar.Event, len(remote))
	for _, ev := range remote {
		existing[ev.Id] = ev
	}

	var inserts, updates []*calendar.Event
	desired := make(map[string]bool, len(events))
	for i := range events {
		want := toGoogleEvent(&events[i])
		desired[want.Id] = true
		have, ok := existing[want.Id]
		switch {
		case !ok:
			inserts = append(inserts, want)
		case eventChanged(have, want):
			updates = append(updates, want)
		default:
			res.Unchanged++
		}
	}

	if err := s.applyBatches(ctx, key, "insert", inserts, func(ev *calendar.Event) error {
		return s.backend.InsertEvent(ctx, calendarID, ev)
	}); err != nil {
		return nil, err
	}
	res.Inserted = len(inserts)

	if err := s.applyBatches(ctx, key, "update", updates, func(ev *calendar.Event) error {
		return s.backend.UpdateEvent(ctx, calendarID, ev)
	}); err != nil {
		return nil, err
	}
	res.Updated = len(updates)

	if s.opts.Prune {
		var stale []*calendar.Event
		for id, ev := range existing {
			if !desired[id] && eventIDRe.MatchString(id) {
				stale = append(stale, ev)
			}
		}
		sort.Slice(stale, func(i, j int) bool { return stale[i].Id < stale[j].Id })
		if err := s.applyBatches(ctx, key, "delete", stale, func(ev *calendar.Event) error {
			return s.backend.DeleteEvent(ctx, calendarID, ev.Id)
		}); err != nil {
			return nil, err
		}
		res.Deleted = len(stale)
	}

	if err := s.backend.EnsurePublic(ctx, calendarID); err != nil {
		return nil, fmt.Errorf("publishing calendar for %s: %w", key, err)
	}

	res.CalendarURL = CalendarWebURL(calendarID)
	res.ICSURL = PublicICSURL(calendarID)
	s.log.WithFields(logrus.Fields{
		"mosque":    key,
		"inserted":  res.Inserted,
		"updated":   res.Updated,
		"deleted":   res.Deleted,
		"unchanged": res.Unchanged,
	}).Info("calendar synchronized")
	return res, nil
}

// ensureCalendar resolves the mosque's calendar id through the registry,
// creating and registering a calendar when none exists. A registered id
// whose calendar was deleted remotely is replaced the same way.
func (s *Syncer) ensureCalendar(ctx context.Context, sched *model.Schedule, res *Result) (string, error) {
	key := sched.Mosque.Key
	id, ok, err := s.registry.Get(key)
	if err != nil {
		return "", fmt.Errorf("reading registry for %s: %w", key, err)
	}
	if ok {
		exists, err := s.backend.CalendarExists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("checking calendar for %s: %w", key, err)
		}
		if exists {
			return id, nil
		}
		s.log.WithFields(logrus.Fields{"mosque": key, "calendar": id}).Warn("registered calendar missing remotely, recreating")
	}

	name := strings.ReplaceAll(s.opts.CalendarName, "{mosque}", sched.Mosque.Name)
	id, err = s.backend.InsertCalendar(ctx, name, sched.Mosque.Timezone)
	if err != nil {
		return "", fmt.Errorf("creating calendar for %s: %w", key, err)
	}
	if err := s.registry.Set(key, id); err != nil {
		return "", fmt.Errorf("registering calendar for %s: %w", key, err)
	}
	res.Created = true
	s.log.WithFields(logrus.Fields{"mosque": key, "calendar": id, "name": name}).Info("calendar created")
	return id, nil
}

// applyBatches issues writes in bounded chunks so one mosque cannot hold
// the backend for an unbounded burst. A failing chunk reports its batch
// index; chunks already applied stay applied.
func (s *Syncer) applyBatches(ctx context.Context, key, op string, events []*calendar.Event, apply func(*calendar.Event) error) error {
	batchSize := s.opts.BatchSize
	for i := 0; i < len(events); i += batchSize {
		end := i + batchSize
		if end > len(events) {
			end = len(events)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, ev := range events[i:end] {
			if err := apply(ev); err != nil {
				var writeErr *RemoteWriteError
				if errors.As(err, &writeErr) && writeErr.Batch < 0 {
					writeErr.Batch = i / batchSize
				}
				return fmt.Errorf("%s for %s: %w", op, key, err)
			}
		}
		s.log.WithFields(logrus.Fields{
			"mosque": key,
			"op":     op,
			"batch":  i / batchSize,
			"events": end - i,
		}).Debug("batch applied")
	}
	return nil
}
