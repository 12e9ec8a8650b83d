package gcal

import (
	"errors"
	"fmt"

	"google.golang.org/api/googleapi"
)

// AuthError means the shared credential was rejected. Fatal for the whole
// run: every mosque publishes under the same credential.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authorization failed: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitError means the backend asked us to slow down. Retryable with
// backoff.
type RateLimitError struct {
	Op  string
	Err error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited: %v", e.Op, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// RemoteWriteError covers transient backend failures. Retryable; when
// retries exhaust, the mosque is marked failed while the run continues.
type RemoteWriteError struct {
	Op    string
	Batch int // batch index for reconciliation writes, -1 otherwise
	Err   error
}

func (e *RemoteWriteError) Error() string {
	if e.Batch >= 0 {
		return fmt.Sprintf("%s: batch %d: %v", e.Op, e.Batch, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteWriteError) Unwrap() error { return e.Err }

// classify maps a Google API failure onto the error taxonomy. 401 and 403
// are credential problems, except the quota reasons Google serves as 403;
// 429 and server-side failures are transient.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return &RateLimitError{Op: op, Err: err}
		case apiErr.Code == 403 && isQuotaReason(apiErr):
			return &RateLimitError{Op: op, Err: err}
		case apiErr.Code == 401 || apiErr.Code == 403:
			return &AuthError{Op: op, Err: err}
		}
		return &RemoteWriteError{Op: op, Batch: -1, Err: err}
	}
	// Transport-level failure: timeout, reset, DNS.
	return &RemoteWriteError{Op: op, Batch: -1, Err: err}
}

func isQuotaReason(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "quotaExceeded", "rateLimitExceeded", "userRateLimitExceeded":
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && (apiErr.Code == 404 || apiErr.Code == 410)
}
