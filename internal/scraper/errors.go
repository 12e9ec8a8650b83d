package scraper

import "fmt"

// FetchError reports a network or HTTP failure while getting a source page.
// It is transient; the orchestrator may retry it.
type FetchError struct {
	URL    string
	Status int // HTTP status, 0 when the request never completed
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExtractionError means the page was fetched but the embedded payload was
// missing or unparsable. The source changed shape; retrying will not help.
type ExtractionError struct {
	URL    string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %s", e.URL, e.Reason)
}
