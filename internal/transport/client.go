// ABOUTME: HTTP JSON client with timeout, bounded retries, and backoff.
// ABOUTME: The single place retry policy lives; callers see one structured result.

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Default retry policy, matching the behavior the server was tuned against.
const (
	DefaultMaxAttempts    = 3
	DefaultRetryDelay     = 1 * time.Second
	DefaultRequestTimeout = 10 * time.Second
)

// csrfHeader carries the anti-forgery token on mutating calls.
const csrfHeader = "X-CSRFToken"

// RetryPolicy bounds how often and how patiently a request is retried.
// The delay between attempts grows linearly: Delay, 2*Delay, 3*Delay, ...
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Client wraps an *http.Client with base-URL joining, JSON encoding, the
// anti-forgery token header, and centralized retry/backoff. It carries no
// business logic; callers decide how to degrade when a call ultimately fails.
type Client struct {
	base      *url.URL
	http      *http.Client
	csrfToken string
	retry     RetryPolicy
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) { c.retry = policy }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.http.Timeout = timeout }
}

// WithLogger sets the logger used for retry and failure reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger.With("component", "transport") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.http = client }
}

// New creates a Client for the remote store at baseURL. csrfToken is sent in
// the X-CSRFToken header on all mutating calls; it may be empty when the
// server does not enforce it.
func New(baseURL, csrfToken string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}

	c := &Client{
		base:      parsed,
		csrfToken: csrfToken,
		http:      &http.Client{Timeout: DefaultRequestTimeout},
		retry: RetryPolicy{
			MaxAttempts: DefaultMaxAttempts,
			Delay:       DefaultRetryDelay,
		},
		logger: slog.Default().With("component", "transport"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PostJSON sends body as JSON to path and decodes the response into out.
// out may be nil when the response body does not matter.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, payload, out)
}

// GetJSON fetches path and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// DeleteJSON issues a DELETE to path and decodes the response into out.
func (c *Client) DeleteJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, out)
}

// healthResponse is the body of GET /chat/health/.
type healthResponse struct {
	Status string `json:"status"`
}

// Health probes the server's health endpoint. Useful as a cheap connectivity
// check before interactive use.
func (c *Client) Health(ctx context.Context) error {
	var resp healthResponse
	if err := c.GetJSON(ctx, "/chat/health/", &resp); err != nil {
		return err
	}
	return nil
}

// do runs one logical request with bounded retries. Retryable failures are
// 5xx, 408, 429, and network errors; everything else surfaces immediately.
func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any) error {
	fullURL := c.resolve(path)

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			// Linear backoff between attempts
			delay := time.Duration(attempt-1) * c.retry.Delay
			c.logger.Warn("retrying request",
				"method", method,
				"url", fullURL,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := c.doOnce(ctx, method, fullURL, payload, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// doOnce performs a single HTTP attempt.
func (c *Client) doOnce(ctx context.Context, method, fullURL string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && c.csrfToken != "" {
		req.Header.Set(csrfHeader, c.csrfToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{URL: fullURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &ServerError{URL: fullURL, Status: resp.StatusCode}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ParseError{URL: fullURL, Err: err}
	}
	return nil
}

// resolve joins path onto the base URL.
func (c *Client) resolve(path string) string {
	ref := &url.URL{Path: strings.TrimPrefix(path, "/")}
	base := *c.base
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return base.ResolveReference(ref).String()
}
