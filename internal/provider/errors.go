package provider

import (
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/DmitryBurnaev/tg-housing/internal/schedule"
)

// FetchError is the terminal outcome of a failed document fetch, after the
// client's retry budget is spent. Transient marks failures that were worth
// retrying (timeouts, 5xx, 429); permanent ones (4xx, malformed URLs) fail
// on the first attempt.
type FetchError struct {
	URL       string
	Status    int
	Transient bool
	Err       error
}

func (e *FetchError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Status > 0 {
		return fmt.Sprintf("fetch %s: %s failure: status %d", e.URL, kind, e.Status)
	}
	return fmt.Sprintf("fetch %s: %s failure: %v", e.URL, kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a document that could not be turned into a snapshot.
// Parsing never retries: same input, same output.
type ParseError struct {
	Kind   schedule.Kind
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.Kind, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// transientStatus reports whether an HTTP status is worth retrying.
func transientStatus(status int) bool {
	if status >= 500 {
		return true
	}
	switch status {
	case 408, 429:
		return true
	}
	return false
}

// transientNetErr classifies network-level failures that typically resolve
// on retry: timeouts, refused or reset connections.
func transientNetErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED)
}
