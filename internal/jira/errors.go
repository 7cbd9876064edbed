package jira

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrNotConfigured is returned when the client has no URL or API token.
var ErrNotConfigured = errors.New("jira client not configured")

// ErrSlicesSkipped marks a fetch that skipped result slices after persistent timeouts.
var ErrSlicesSkipped = errors.New("result slices skipped after persistent timeouts")

// RemoteError is a non-2xx response from Jira. It is never retried.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("jira API returned %d: %s", e.StatusCode, e.Body)
}

// IsAuthError reports whether err is a 401 or 403 from Jira.
func IsAuthError(err error) bool {
	var re *RemoteError
	if !errors.As(err, &re) {
		return false
	}
	return re.StatusCode == http.StatusUnauthorized || re.StatusCode == http.StatusForbidden
}

// IsRemoteError reports whether err is a rejection from Jira.
func IsRemoteError(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// IsTimeout reports whether err is a request timeout: an expired per-attempt
// deadline or a network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// FetchError reports why a paginated fetch stopped early. The records fetched
// before the failure are returned alongside it.
type FetchError struct {
	JQL     string
	StartAt int
	Fetched int
	Skipped int
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch stopped at offset %d after %d issues (%d slices skipped): %v",
		e.StartAt, e.Fetched, e.Skipped, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
