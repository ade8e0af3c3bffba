// ABOUTME: Error taxonomy for the synchronization engine's remote calls.
// ABOUTME: Classifies failures into network, server, parse, and validation errors.

package transport

import (
	"errors"
	"fmt"
)

// NetworkError is a transport-level failure: the request never produced an
// HTTP response (connection refused, DNS failure, timeout).
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-success HTTP status from the remote store.
type ServerError struct {
	URL    string
	Status int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error calling %s: status %d", e.URL, e.Status)
}

// Retryable reports whether the status indicates a transient condition worth
// retrying: server errors, request timeout, and rate limiting. All other
// client errors are terminal.
func (e *ServerError) Retryable() bool {
	return retryableStatus(e.Status)
}

// ParseError is a response body that was not the structured JSON the caller
// expected. Parse failures are terminal: retrying the same request would
// produce the same malformed body.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error from %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError is rejected synchronously at the call boundary; the request
// is never sent over the network.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// retryableStatus reports whether an HTTP status should be retried.
func retryableStatus(status int) bool {
	return status >= 500 || status == 408 || status == 429
}

// IsRetryable reports whether err represents a transient failure that a
// retry might resolve. Network errors are always retryable; server errors
// only for retryable statuses; parse and validation errors never.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var srvErr *ServerError
	if errors.As(err, &srvErr) {
		return srvErr.Retryable()
	}
	return false
}
