// Package pipeline drives the scrape, validate, generate, and sync stages
// across the configured mosques with bounded concurrency.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mosquee-agenda/internal/gcal"
	"mosquee-agenda/internal/ics"
	"mosquee-agenda/internal/logging"
	"mosquee-agenda/internal/model"
	"mosquee-agenda/internal/scraper"
	"mosquee-agenda/internal/store"
	"mosquee-agenda/internal/validate"
)

// Source identifies one configured mosque. An empty Key is derived from the
// URL during validation.
type Source struct {
	Key string
	URL string
}

// Status classifies one mosque's outcome.
type Status string

const (
	// StatusSuccess means the mosque's calendar is fully reconciled.
	StatusSuccess Status = "success"
	// StatusSkipped means the mosque was not published this run: its data
	// failed validation, or the run was cancelled before its turn.
	StatusSkipped Status = "skipped"
	// StatusFailed means a terminal failure after any retries.
	StatusFailed Status = "failed"
)

// MosqueResult records one mosque's outcome for operator visibility.
type MosqueResult struct {
	Key         string
	URL         string
	Status      Status
	Stage       string
	Err         error
	Attempts    int
	Events      int
	CalendarID  string
	CalendarURL string
	ICSURL      string

	Schedule *model.Schedule
}

// Summary aggregates a whole run.
type Summary struct {
	StartedAt   time.Time
	FinishedAt  time.Time
	Results     []MosqueResult
	Aborted     bool
	AbortErr    error
	MetadataErr error
}

// Count returns how many mosques finished with the given status.
func (s *Summary) Count(status Status) int {
	n := 0
	for _, r := range s.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// Ok reports whether every mosque succeeded, the metadata file was written,
// and the run was not aborted.
func (s *Summary) Ok() bool {
	if s.Aborted || s.MetadataErr != nil {
		return false
	}
	for _, r := range s.Results {
		if r.Status != StatusSuccess {
			return false
		}
	}
	return true
}

// Duration returns the wall time of the run.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Fetcher retrieves one mosque page. Satisfied by scraper.Client.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*scraper.Raw, error)
}

// Syncer publishes generated events to a mosque's remote calendar.
// Satisfied by gcal.Syncer.
type Syncer interface {
	Sync(ctx context.Context, sched *model.Schedule, events []model.Event) (*gcal.Result, error)
}

// Options configure a run.
type Options struct {
	// Workers bounds how many mosques are processed concurrently.
	Workers int
	// MaxAttempts bounds retries of a transient failure, first try included.
	MaxAttempts int
	// Year selects the schedule year; zero means the scrape year.
	Year int
	// DryRun stops after staging artifacts, issuing no remote writes and
	// leaving the metadata file untouched.
	DryRun bool
	// MetadataPath is where the site metadata file is written. Empty
	// disables the metadata step.
	MetadataPath string
}

const (
	defaultWorkers     = 4
	defaultMaxAttempts = 3
)

// Pipeline wires the stages together for a run.
type Pipeline struct {
	fetcher  Fetcher
	syncer   Syncer
	store    store.Store
	template ics.Template
	opts     Options
	log      *logrus.Logger
}

// New creates a pipeline. A nil syncer behaves like a dry run.
func New(fetcher Fetcher, syncer Syncer, st store.Store, template ics.Template, opts Options, log *logrus.Logger) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Pipeline{
		fetcher:  fetcher,
		syncer:   syncer,
		store:    st,
		template: template,
		opts:     opts,
		log:      log,
	}
}

// Run processes every source and reports the aggregate outcome. Failures
// stay isolated to their mosque except an auth or template failure, which
// cancels the remaining work. The metadata file is written once at the end,
// merging this run's successes over the previous file's entries.
func (p *Pipeline) Run(ctx context.Context, sources []Source) *Summary {
	summary := &Summary{StartedAt: time.Now()}
	defer func() { summary.FinishedAt = time.Now() }()

	if len(sources) == 0 {
		p.log.Warn("no mosques configured")
		return summary
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := p.opts.Workers
	if workers > len(sources) {
		workers = len(sources)
	}

	jobs := make(chan Source)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range jobs {
				res := p.processMosque(runCtx, src)

				mu.Lock()
				summary.Results = append(summary.Results, res)
				if res.Err != nil && fatal(res.Err) && !summary.Aborted {
					summary.Aborted = true
					summary.AbortErr = res.Err
				}
				mu.Unlock()

				if res.Err != nil && fatal(res.Err) {
					p.log.WithField("mosque", src.Key).WithError(res.Err).Error("aborting run")
					cancel()
				}
			}
		}()
	}

feeding:
	for i, src := range sources {
		select {
		case jobs <- src:
		case <-runCtx.Done():
			mu.Lock()
			for _, rest := range sources[i:] {
				summary.Results = append(summary.Results, MosqueResult{
					Key:    rest.Key,
					URL:    rest.URL,
					Status: StatusSkipped,
					Stage:  "queued",
				})
			}
			mu.Unlock()
			break feeding
		}
	}
	close(jobs)
	wg.Wait()

	// Results arrive in completion order; report them in input order.
	order := make(map[string]int, len(sources))
	for i, src := range sources {
		order[src.Key] = i
	}
	sort.SliceStable(summary.Results, func(a, b int) bool {
		return order[summary.Results[a].Key] < order[summary.Results[b].Key]
	})

	if err := p.writeMetadata(summary); err != nil {
		p.log.WithError(err).Error("writing metadata file")
		summary.MetadataErr = err
	}

	return summary
}

// processMosque runs the stages for one mosque. Each stage's failure is
// recorded with the stage name so the summary can say where it broke.
func (p *Pipeline) processMosque(ctx context.Context, src Source) MosqueResult {
	res := MosqueResult{Key: src.Key, URL: src.URL, Status: StatusFailed}
	log := p.log.WithField("mosque", src.Key)

	if ctx.Err() != nil {
		res.Status = StatusSkipped
		res.Stage = "queued"
		return res
	}

	res.Stage = "fetch"
	var raw *scraper.Raw
	err := p.withRetry(ctx, src.Key, res.Stage, &res.Attempts, func() error {
		var ferr error
		raw, ferr = p.fetcher.Fetch(ctx, src.URL)
		return ferr
	})
	if err != nil {
		return failed(res, err)
	}

	res.Stage = "validate"
	sched, err := validate.Schedule(raw, validate.Options{Key: src.Key, Year: p.opts.Year})
	if err != nil {
		return failed(res, err)
	}
	res.Key = sched.Mosque.Key
	res.Schedule = sched

	res.Stage = "generate"
	events, err := ics.Generate(sched, p.template)
	if err != nil {
		return failed(res, err)
	}
	res.Events = len(events)
	log.WithField("events", len(events)).Debug("events generated")

	res.Stage = "stage"
	if p.store != nil {
		if err := p.store.SetJSON(sched.Mosque.Key, sched); err != nil {
			return failed(res, fmt.Errorf("staging schedule: %w", err))
		}
		feed, err := ics.Encode(sched, events)
		if err != nil {
			return failed(res, err)
		}
		if err := p.store.SetICS(sched.Mosque.Key, feed); err != nil {
			return failed(res, fmt.Errorf("staging feed: %w", err))
		}
	}

	if p.opts.DryRun || p.syncer == nil {
		log.WithField("events", len(events)).Info("dry run, skipping calendar sync")
		res.Status = StatusSuccess
		res.Stage = ""
		return res
	}

	res.Stage = "sync"
	var syncRes *gcal.Result
	err = p.withRetry(ctx, src.Key, res.Stage, &res.Attempts, func() error {
		var serr error
		syncRes, serr = p.syncer.Sync(ctx, sched, events)
		return serr
	})
	if err != nil {
		return failed(res, err)
	}

	res.CalendarID = syncRes.CalendarID
	res.CalendarURL = syncRes.CalendarURL
	res.ICSURL = syncRes.ICSURL
	res.Status = StatusSuccess
	res.Stage = ""
	return res
}

// withRetry runs fn, retrying transient failures with exponential backoff
// until MaxAttempts. attempts accumulates across stages so the summary
// shows the total work spent on a mosque.
func (p *Pipeline) withRetry(ctx context.Context, key, stage string, attempts *int, fn func() error) error {
	for attempt := 1; ; attempt++ {
		*attempts++
		err := fn()
		if err == nil {
			return nil
		}
		if fatal(err) || !retryable(err) || attempt >= p.opts.MaxAttempts {
			return err
		}
		delay := retryDelay(attempt)
		p.log.WithFields(logrus.Fields{
			"mosque":  key,
			"stage":   stage,
			"attempt": attempt,
			"delay":   delay,
		}).WithError(err).Warn("retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

const (
	baseRetryDelay = time.Second
	maxRetryDelay  = 30 * time.Second
)

// retryDelay doubles per attempt: 1s, 2s, 4s, capped at 30s.
func retryDelay(attempt int) time.Duration {
	delay := time.Duration(1<<uint(attempt-1)) * baseRetryDelay
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}

// retryable reports whether err is worth another attempt. Extraction,
// validation, and template failures are deterministic; retrying them would
// repeat the same outcome.
func retryable(err error) bool {
	var fetchErr *scraper.FetchError
	var rateErr *gcal.RateLimitError
	var writeErr *gcal.RemoteWriteError
	return errors.As(err, &fetchErr) || errors.As(err, &rateErr) || errors.As(err, &writeErr)
}

// fatal reports whether err must abort the whole run: a rejected shared
// credential or a broken event template affects every remaining mosque.
func fatal(err error) bool {
	var authErr *gcal.AuthError
	var tplErr *ics.TemplateError
	return errors.As(err, &authErr) || errors.As(err, &tplErr)
}

// failed finalizes a result. Validation rejections and cancellations count
// as skipped; everything else terminal is a failure.
func failed(res MosqueResult, err error) MosqueResult {
	res.Err = err

	var valErr *validate.ValidationError
	switch {
	case errors.As(err, &valErr):
		res.Status = StatusSkipped
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		res.Status = StatusSkipped
	default:
		res.Status = StatusFailed
	}
	return res
}
