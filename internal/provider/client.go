package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/albapepper/vakit/internal/errs"
)

// Retry policy for transient upstream failures.
const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 700 * time.Millisecond
	DefaultTimeout     = 10 * time.Second
)

// StatusError is a non-200 upstream response.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Path, e.Code, e.Body)
}

// Unwrap lets callers match errs.ErrProviderUnavailable.
func (e *StatusError) Unwrap() error { return errs.ErrProviderUnavailable }

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// ClientOptions tunes the shared HTTP client.
type ClientOptions struct {
	Timeout           time.Duration
	RequestsPerMinute int
	MaxAttempts       int
	Backoff           time.Duration
	UserAgent         string
	HTTPClient        *http.Client
}

// Client is the rate-limited, retrying HTTP client shared by adapters.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	limiter     *rate.Limiter
	maxAttempts int
	backoff     time.Duration
	userAgent   string
	logger      *slog.Logger
}

// NewClient creates a client for baseURL.
func NewClient(baseURL string, opts ClientOptions, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(opts.RequestsPerMinute) / 60.0)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		httpClient:  hc,
		baseURL:     baseURL,
		limiter:     rate.NewLimiter(limit, 1),
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		userAgent:   opts.UserAgent,
		logger:      logger,
	}
}

// Get performs a GET and returns the body of a 200 response. 429 and 5xx
// responses are retried with linear backoff; anything else fails fast.
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		body, err := c.do(ctx, path, params)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var se *StatusError
		if !errors.As(err, &se) || !se.Transient() || attempt == c.maxAttempts {
			break
		}

		wait := c.backoff * time.Duration(attempt)
		c.logger.Warn("Provider request failed, retrying",
			"path", path, "status", se.Code, "attempt", attempt, "backoff", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", errs.ErrProviderUnavailable, ctx.Err())
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", errs.ErrProviderUnavailable, err)
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request %s: %v", errs.ErrProviderUnavailable, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", errs.ErrProviderUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Path: path, Code: resp.StatusCode, Body: Truncate(body, 200)}
	}
	return body, nil
}

// Truncate returns a truncated string representation for error messages.
func Truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
