package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"mosquee-agenda/internal/gcal"
	"mosquee-agenda/internal/ics"
	"mosquee-agenda/internal/model"
	"mosquee-agenda/internal/scraper"
	"mosquee-agenda/internal/store"
	"mosquee-agenda/internal/validate"
)

const sixTimes = `["06:02","07:43","12:53","15:45","17:58","19:22"]`

// mosquePayload builds a confData payload with the given number of January
// days, the other months empty.
func mosquePayload(name string, lat float64, days int) string {
	months := make([]string, 12)
	for i := range months {
		months[i] = "{}"
	}
	var b strings.Builder
	b.WriteString("{")
	for d := 1; d <= days; d++ {
		if d > 1 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "\"%d\": %s", d, sixTimes)
	}
	b.WriteString("}")
	months[0] = b.String()

	return fmt.Sprintf(`{
		"name": %q,
		"latitude": %g,
		"longitude": 2.384,
		"timezone": "Europe/Paris",
		"parking": true,
		"calendar": [%s]
	}`, name, lat, strings.Join(months, ", "))
}

func mosquePage(payload string) string {
	return `<!DOCTYPE html><html><head>
<script>var confData = ` + payload + `;</script>
</head><body></body></html>`
}

func serveMosques(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, page := range pages {
		page := page
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, page)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type fakeSyncer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *fakeSyncer) Sync(_ context.Context, sched *model.Schedule, events []model.Event) (*gcal.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	id := "cal-" + sched.Mosque.Key
	return &gcal.Result{
		CalendarID:  id,
		CalendarURL: gcal.CalendarWebURL(id),
		ICSURL:      gcal.PublicICSURL(id),
		Inserted:    len(events),
	}, nil
}

func TestRunEndToEnd(t *testing.T) {
	srv := serveMosques(t, map[string]string{
		"/fr/alpha": mosquePage(mosquePayload("Mosquée Alpha", 48.8, 2)),
		"/fr/beta":  mosquePage(mosquePayload("Mosquée Beta", 999, 2)),
		"/fr/gamma": mosquePage(mosquePayload("Mosquée Gamma", 43.3, 3)),
	})

	storeDir := t.TempDir()
	st, err := store.NewLocal(storeDir)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	metadataPath := filepath.Join(t.TempDir(), "mosques_metadata.json")

	// A previous run published beta; its entry must survive beta failing now.
	if err := WriteMetadata(metadataPath, map[string]Entry{"beta": metadataEntry("beta", "Mosquée Beta")}); err != nil {
		t.Fatalf("seeding metadata failed: %v", err)
	}

	syncer := &fakeSyncer{}
	p := New(scraper.New(srv.Client()), syncer, st, ics.DefaultTemplate(), Options{
		Workers:      2,
		MaxAttempts:  2,
		Year:         2025,
		MetadataPath: metadataPath,
	}, nil)

	summary := p.Run(context.Background(), []Source{
		{Key: "alpha", URL: srv.URL + "/fr/alpha"},
		{Key: "beta", URL: srv.URL + "/fr/beta"},
		{Key: "gamma", URL: srv.URL + "/fr/gamma"},
	})

	if len(summary.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(summary.Results))
	}
	for i, key := range []string{"alpha", "beta", "gamma"} {
		if summary.Results[i].Key != key {
			t.Errorf("result %d key = %q, want input order", i, summary.Results[i].Key)
		}
	}

	alpha, beta, gamma := summary.Results[0], summary.Results[1], summary.Results[2]
	if alpha.Status != StatusSuccess || gamma.Status != StatusSuccess {
		t.Errorf("statuses: alpha=%s gamma=%s, want both success", alpha.Status, gamma.Status)
	}
	if beta.Status != StatusSkipped || beta.Stage != "validate" {
		t.Errorf("beta = %s at %q, want skipped at validate", beta.Status, beta.Stage)
	}
	var valErr *validate.ValidationError
	if !errors.As(beta.Err, &valErr) {
		t.Errorf("beta error = %v, want a validation rejection", beta.Err)
	}

	if alpha.Events != 12 || gamma.Events != 18 {
		t.Errorf("event counts: alpha=%d gamma=%d, want 12 and 18", alpha.Events, gamma.Events)
	}
	if alpha.CalendarID != "cal-alpha" || alpha.CalendarURL != gcal.CalendarWebURL("cal-alpha") {
		t.Errorf("alpha calendar fields mismatch: %+v", alpha)
	}
	if syncer.calls != 2 {
		t.Errorf("sync calls = %d, want 2", syncer.calls)
	}

	if summary.Aborted {
		t.Error("one bad mosque must not abort the run")
	}
	if summary.Ok() {
		t.Error("summary must not be ok with a skipped mosque")
	}
	if got := summary.Count(StatusSuccess); got != 2 {
		t.Errorf("success count = %d, want 2", got)
	}

	var staged model.Schedule
	if !st.GetJSON("alpha", &staged) || staged.Mosque.Name != "Mosquée Alpha" {
		t.Error("alpha schedule not staged")
	}
	if _, err := os.Stat(filepath.Join(storeDir, "alpha.ics")); err != nil {
		t.Errorf("alpha feed not staged: %v", err)
	}

	var meta map[string]Entry
	readMetadata(t, metadataPath, &meta)
	if len(meta) != 3 {
		t.Fatalf("metadata entries = %d, want alpha, beta, gamma", len(meta))
	}
	if meta["alpha"].CalendarURL != gcal.CalendarWebURL("cal-alpha") {
		t.Errorf("alpha metadata calendar URL mismatch: %q", meta["alpha"].CalendarURL)
	}
	if meta["beta"].Name != "Mosquée Beta" {
		t.Error("beta's previous metadata entry was lost")
	}
	if summary.MetadataErr != nil {
		t.Errorf("metadata error: %v", summary.MetadataErr)
	}
}

func TestRunRetriesTransientFetch(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/fr/alpha", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		n := hits
		mu.Unlock()
		if n == 1 {
			http.Error(w, "upstream hiccup", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, mosquePage(mosquePayload("Mosquée Alpha", 48.8, 1)))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := New(scraper.New(srv.Client()), nil, nil, ics.DefaultTemplate(), Options{
		MaxAttempts: 3,
		Year:        2025,
	}, nil)

	summary := p.Run(context.Background(), []Source{{Key: "alpha", URL: srv.URL + "/fr/alpha"}})

	res := summary.Results[0]
	if res.Status != StatusSuccess {
		t.Fatalf("status = %s (%v), want success after a retry", res.Status, res.Err)
	}
	if res.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", res.Attempts)
	}
	mu.Lock()
	defer mu.Unlock()
	if hits != 2 {
		t.Errorf("server hits = %d, want 2", hits)
	}
}

func TestRunExhaustsRetries(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/fr/alpha", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "still broken", http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := New(scraper.New(srv.Client()), nil, nil, ics.DefaultTemplate(), Options{
		MaxAttempts: 2,
		Year:        2025,
	}, nil)

	summary := p.Run(context.Background(), []Source{{Key: "alpha", URL: srv.URL + "/fr/alpha"}})

	res := summary.Results[0]
	if res.Status != StatusFailed || res.Stage != "fetch" {
		t.Errorf("result = %s at %q, want failed at fetch", res.Status, res.Stage)
	}
	if res.Attempts != 2 {
		t.Errorf("attempts = %d, want MaxAttempts", res.Attempts)
	}
	var fetchErr *scraper.FetchError
	if !errors.As(res.Err, &fetchErr) {
		t.Errorf("error = %v, want the last fetch failure", res.Err)
	}
	if summary.Ok() {
		t.Error("summary must not be ok after a failure")
	}
}

func TestRunAbortsOnAuthError(t *testing.T) {
	page := mosquePage(mosquePayload("Mosquée Alpha", 48.8, 1))
	srv := serveMosques(t, map[string]string{"/fr/alpha": page})

	syncer := &fakeSyncer{err: &gcal.AuthError{Op: "insert event", Err: errors.New("invalid credentials")}}
	metadataPath := filepath.Join(t.TempDir(), "mosques_metadata.json")
	p := New(scraper.New(srv.Client()), syncer, nil, ics.DefaultTemplate(), Options{
		Workers:      1,
		MaxAttempts:  3,
		Year:         2025,
		MetadataPath: metadataPath,
	}, nil)

	summary := p.Run(context.Background(), []Source{
		{Key: "a", URL: srv.URL + "/fr/alpha"},
		{Key: "b", URL: srv.URL + "/fr/alpha"},
		{Key: "c", URL: srv.URL + "/fr/alpha"},
	})

	if !summary.Aborted {
		t.Fatal("auth failure must abort the run")
	}
	var authErr *gcal.AuthError
	if !errors.As(summary.AbortErr, &authErr) {
		t.Errorf("abort cause = %v, want the auth failure", summary.AbortErr)
	}

	first := summary.Results[0]
	if first.Status != StatusFailed || first.Stage != "sync" {
		t.Errorf("first = %s at %q, want failed at sync", first.Status, first.Stage)
	}
	// Fatal errors are not retried: one fetch try plus one sync try.
	if first.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", first.Attempts)
	}
	for _, res := range summary.Results[1:] {
		if res.Status != StatusSkipped || res.Stage != "queued" {
			t.Errorf("%s = %s at %q, want skipped while queued", res.Key, res.Status, res.Stage)
		}
	}

	// Nothing succeeded, so the previous metadata must stay untouched.
	if _, err := os.Stat(metadataPath); !os.IsNotExist(err) {
		t.Errorf("metadata file written on an aborted run: %v", err)
	}
}

func TestRunAbortsOnTemplateError(t *testing.T) {
	srv := serveMosques(t, map[string]string{
		"/fr/alpha": mosquePage(mosquePayload("Mosquée Alpha", 48.8, 1)),
	})

	tpl := ics.DefaultTemplate()
	tpl.Title = "{unknown}"
	p := New(scraper.New(srv.Client()), nil, nil, tpl, Options{Year: 2025}, nil)

	summary := p.Run(context.Background(), []Source{{Key: "alpha", URL: srv.URL + "/fr/alpha"}})

	if !summary.Aborted {
		t.Fatal("template failure must abort the run")
	}
	res := summary.Results[0]
	if res.Status != StatusFailed || res.Stage != "generate" {
		t.Errorf("result = %s at %q, want failed at generate", res.Status, res.Stage)
	}
	var tplErr *ics.TemplateError
	if !errors.As(summary.AbortErr, &tplErr) {
		t.Errorf("abort cause = %v, want the template failure", summary.AbortErr)
	}
}

func TestRunDryRun(t *testing.T) {
	srv := serveMosques(t, map[string]string{
		"/fr/alpha": mosquePage(mosquePayload("Mosquée Alpha", 48.8, 1)),
	})

	storeDir := t.TempDir()
	st, err := store.NewLocal(storeDir)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	metadataPath := filepath.Join(t.TempDir(), "mosques_metadata.json")
	syncer := &fakeSyncer{}
	p := New(scraper.New(srv.Client()), syncer, st, ics.DefaultTemplate(), Options{
		Year:         2025,
		DryRun:       true,
		MetadataPath: metadataPath,
	}, nil)

	summary := p.Run(context.Background(), []Source{{Key: "alpha", URL: srv.URL + "/fr/alpha"}})

	res := summary.Results[0]
	if res.Status != StatusSuccess {
		t.Fatalf("status = %s (%v), want success", res.Status, res.Err)
	}
	if syncer.calls != 0 {
		t.Errorf("sync calls = %d, want none in a dry run", syncer.calls)
	}
	if res.CalendarID != "" {
		t.Errorf("calendar id = %q, want none in a dry run", res.CalendarID)
	}
	if _, err := os.Stat(filepath.Join(storeDir, "alpha.ics")); err != nil {
		t.Errorf("dry run should still stage the feed: %v", err)
	}
	if _, err := os.Stat(metadataPath); !os.IsNotExist(err) {
		t.Errorf("dry run wrote the metadata file: %v", err)
	}
	if !summary.Ok() {
		t.Error("dry run summary should be ok")
	}
}

func TestRunNoSources(t *testing.T) {
	p := New(scraper.New(nil), nil, nil, ics.DefaultTemplate(), Options{}, nil)
	summary := p.Run(context.Background(), nil)
	if len(summary.Results) != 0 {
		t.Errorf("results = %d, want none", len(summary.Results))
	}
	if !summary.Ok() {
		t.Error("empty run should be ok")
	}
}
