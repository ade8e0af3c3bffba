// Package transport wraps HTTP calls to the remote conversation store with a
// request timeout, failure classification, and bounded retry with linear
// backoff.
//
// All retry policy lives here. Callers issue one logical request and receive
// one structured result: success, or an error from the taxonomy in errors.go.
// Retryable failures (5xx, 408, 429, and transport-level network errors) are
// retried up to the configured attempt budget; everything else, including
// malformed response bodies, is terminal on the first occurrence.
package transport
