// Package httpclient is the shared outbound HTTP layer for upstream data
// services. Every request waits on a rate limiter shared across stations and
// runs behind a per-service circuit breaker. Requests are never retried; a
// failed fetch is reported to the caller, which decides how to degrade.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/wx-verification-etl/internal/observability"
)

// maxErrorBody caps how much of an error response is kept for messages.
const maxErrorBody = 512

// StatusError is returned for a non-2xx upstream response.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.StatusCode, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Options configures a Client.
type Options struct {
	Timeout        time.Duration
	BreakerTimeout time.Duration
	// Limiter is shared between clients so all upstream calls draw from one
	// budget. Nil means unlimited.
	Limiter *rate.Limiter
}

// Client performs rate-limited GET requests for one upstream service.
type Client struct {
	service    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// New creates a client for the named upstream service.
func New(service string, opts Options, metrics *observability.Metrics, logger *slog.Logger) *Client {
	logger = logger.With("service", service)
	settings := gobreaker.Settings{
		Name:        service,
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		service:    service,
		httpClient: &http.Client{Timeout: opts.Timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
		limiter:    opts.Limiter,
		metrics:    metrics,
		logger:     logger,
	}
}

type response struct {
	status int
	body   []byte
}

// Get fetches url and returns the response body. Non-2xx responses return a
// *StatusError. Only transport failures and 5xx responses count against the
// circuit breaker.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: rate limit wait: %w", c.service, err)
		}
	}

	start := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, url)
	})
	c.metrics.UpstreamDuration.WithLabelValues(c.service).Observe(time.Since(start).Seconds())

	if err != nil {
		outcome := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "rejected"
		}
		c.metrics.UpstreamRequests.WithLabelValues(c.service, outcome).Inc()
		return nil, fmt.Errorf("%s request: %w", c.service, err)
	}

	resp := out.(*response)
	if resp.status < 200 || resp.status >= 300 {
		c.metrics.UpstreamRequests.WithLabelValues(c.service, "error").Inc()
		return nil, c.statusError(resp)
	}
	c.metrics.UpstreamRequests.WithLabelValues(c.service, "success").Inc()
	c.logger.Debug("upstream request complete", "status", resp.status, "bytes", len(resp.body))
	return resp.body, nil
}

// do performs one request. 4xx responses are returned as values so they do
// not trip the breaker; 5xx responses are returned as errors so they do.
func (c *Client) do(ctx context.Context, url string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	r := &response{status: resp.StatusCode, body: body}
	if resp.StatusCode >= 500 {
		return nil, c.statusError(r)
	}
	return r, nil
}

func (c *Client) statusError(r *response) *StatusError {
	body := r.body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &StatusError{Service: c.service, StatusCode: r.status, Body: string(body)}
}
