// Package robusthttp builds outbound HTTP clients with retries, pooled connections, and tracing.
package robusthttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Adapts slog to the retryablehttp leveled logger interface.
type LeveledSlog struct {
	inner *slog.Logger
}

// intermediate failures get retried, so ERROR is logged as WARN
func (l LeveledSlog) Error(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l LeveledSlog) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l LeveledSlog) Info(msg string, keysAndValues ...any) {
	l.inner.Info(msg, keysAndValues...)
}

func (l LeveledSlog) Debug(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

type config struct {
	retry   *retryablehttp.Client
	timeout time.Duration
}

type Option func(*config)

func WithMaxRetries(maxRetries int) Option {
	return func(c *config) {
		c.retry.RetryMax = maxRetries
	}
}

func WithRetryWaitMin(waitMin time.Duration) Option {
	return func(c *config) {
		c.retry.RetryWaitMin = waitMin
	}
}

func WithRetryWaitMax(waitMax time.Duration) Option {
	return func(c *config) {
		c.retry.RetryWaitMax = waitMax
	}
}

// Overall per-request timeout, including all retries.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.retry.Logger = retryablehttp.LeveledLogger(LeveledSlog{inner: logger})
	}
}

// Replaces the pooled, traced default transport.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *config) {
		c.retry.HTTPClient.Transport = transport
	}
}

func WithRetryPolicy(policy retryablehttp.CheckRetry) Option {
	return func(c *config) {
		c.retry.CheckRetry = policy
	}
}

// Generates an HTTP client for calls to lookup services. The returned client has the stdlib http.Client interface, but has Hashicorp retryablehttp logic internally.
//
// Retries on connection errors and 5xx status (except 501), logging intermediate failures at WARN level. Defaults are 3 retries, waits between 1 and 10 seconds, and a 30 second overall timeout.
func NewClient(options ...Option) *http.Client {
	logger := LeveledSlog{inner: slog.Default().With("subsystem", "RobustHTTPClient")}
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = otelhttp.NewTransport(cleanhttp.DefaultPooledTransport())
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(logger)
	retryClient.CheckRetry = DefaultRetryPolicy

	c := config{retry: retryClient, timeout: 30 * time.Second}
	for _, option := range options {
		option(&c)
	}

	client := retryClient.StandardClient()
	client.Timeout = c.timeout
	return client
}

// Wraps retryablehttp.DefaultRetryPolicy, treating `429 Too Many Requests` as non-retryable. Rate limiting of lookups is handled by the caller.
func DefaultRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Like DefaultRetryPolicy, but a plain 500 is not retried either.
func NoInternalServerErrorPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusInternalServerError {
		return false, nil
	}
	return DefaultRetryPolicy(ctx, resp, err)
}
