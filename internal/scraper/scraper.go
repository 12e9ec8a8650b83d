package scraper

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

const defaultUserAgent = "mosquee-agenda/1.0"

var (
	confDataRe      = regexp.MustCompile(`(?s)var\s+confData\s*=\s*(\{.*?\});`)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// Raw is the payload extracted from one mosque page, before validation.
// Payload holds the embedded confData object verbatim (trailing commas
// already stripped); nothing in it is trusted until the validator has run.
type Raw struct {
	URL       string
	ScrapedAt time.Time
	Payload   string
}

// Client fetches mosque pages and extracts the embedded schedule payload.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// New creates a scraper client. A nil httpClient gets a default with a
// 30-second timeout.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		userAgent:  defaultUserAgent,
	}
}

// Fetch retrieves a mosque page and extracts its confData payload. It is a
// pure fetch and parse: nothing is persisted, and retry policy belongs to
// the caller.
func (c *Client) Fetch(ctx context.Context, url string) (*Raw, error) {
	doc, err := c.fetchDocument(ctx, url)
	if err != nil {
		return nil, err
	}

	payload, err := extractConfData(url, doc)
	if err != nil {
		return nil, err
	}

	return &Raw{
		URL:       url,
		ScrapedAt: time.Now(),
		Payload:   payload,
	}, nil
}

// fetchDocument fetches a URL and parses it as an HTML document.
func (c *Client) fetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, Status: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("reading response: %w", err)}
	}
	return doc, nil
}

// extractConfData scans script elements for the confData assignment. Each
// candidate gets its trailing commas stripped before the syntax check; the
// first one that parses wins. Unrelated scripts and extra payload fields are
// tolerated, but a page without a usable payload fails explicitly.
func extractConfData(url string, doc *goquery.Document) (string, error) {
	sawCandidate := false
	var payload string

	doc.Find("script").EachWithBreak(func(i int, s *goquery.Selection) bool {
		text := s.Text()
		if !strings.Contains(text, "confData") {
			return true
		}
		m := confDataRe.FindStringSubmatch(text)
		if m == nil {
			return true
		}
		sawCandidate = true

		candidate := trailingCommaRe.ReplaceAllString(m[1], "$1")
		if !gjson.Valid(candidate) {
			return true
		}
		payload = candidate
		return false
	})

	if payload == "" {
		reason := "confData payload not found"
		if sawCandidate {
			reason = "confData payload is not valid JSON"
		}
		return "", &ExtractionError{URL: url, Reason: reason}
	}
	return payload, nil
}
