// Package transport is the HTTP layer shared by the remote API clients:
// authentication, rate limiting, bounded retries on 429 and uniform
// APIError values for non-2xx responses.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/agentstation/sheetsync/pkg/constants"
	"github.com/agentstation/sheetsync/pkg/errors"
	"github.com/agentstation/sheetsync/pkg/logging"
)

// Client performs authenticated JSON requests against one service.
type Client struct {
	service    string
	http       *http.Client
	auth       Authenticator
	credential string
	limiter    *rate.Limiter
	maxRetries int
	timeout    time.Duration
	logger     *zerolog.Logger
	wait       func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimit caps sustained requests per second. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxRetries sets how many times a rate limited request is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithTimeout bounds each request attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithWaitFunc replaces the retry wait, mainly for tests.
func WithWaitFunc(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.wait = fn
		}
	}
}

// New creates a client for service that authenticates with auth.
func New(service string, auth Authenticator, credential string, opts ...Option) *Client {
	if auth == nil {
		auth = &NoAuth{}
	}
	c := &Client{
		service:    service,
		http:       &http.Client{Timeout: constants.DefaultHTTPTimeout},
		auth:       auth,
		credential: credential,
		limiter:    rate.NewLimiter(rate.Limit(constants.DefaultRateLimit), constants.BurstSize),
		maxRetries: constants.MaxRetries,
		timeout:    constants.DefaultHTTPTimeout,
		wait:       waitWithContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response is a fully read 2xx response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the body into target.
func (r *Response) Decode(target any) error {
	if len(r.Body) == 0 || target == nil {
		return nil
	}
	if err := json.Unmarshal(r.Body, target); err != nil {
		return errors.WrapParse("json", "response", err)
	}
	return nil
}

// Do sends a JSON request. body is marshaled when non-nil. 429 responses are
// retried with Retry-After; 5xx responses are retried only for idempotent
// GETs. Any other non-2xx response becomes an *errors.APIError carrying the
// status and the (truncated) raw body.
func (c *Client) Do(ctx context.Context, method, url string, body any) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, errors.WrapParse("json", "request", err)
		}
	}

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, c.transportError(url, err)
			}
		}

		resp, err := c.once(ctx, method, url, payload)
		if err != nil {
			return nil, c.transportError(url, err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return resp, nil
		}

		retryable := resp.StatusCode == http.StatusTooManyRequests ||
			(method == http.MethodGet && resp.StatusCode >= 500)
		if retryable && attempt < c.maxRetries {
			delay := retryDelay(attempt+1, resp.Header.Get("Retry-After"))
			c.log(ctx).Warn().
				Str("service", c.service).
				Str("method", method).
				Int("status", resp.StatusCode).
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Msg("Retrying request")
			if err := c.wait(ctx, delay); err != nil {
				return nil, c.transportError(url, err)
			}
			continue
		}

		return nil, &errors.APIError{
			Service:    c.service,
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Endpoint:   method + " " + url,
			Body:       string(resp.Body),
		}
	}
}

func (c *Client) once(ctx context.Context, method, url string, payload []byte) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	c.auth.Apply(req, c.credential)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	limit := int64(-1)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		limit = constants.MaxErrorBodySize
	}
	data, err := readBody(resp.Body, limit)
	if err != nil {
		return nil, errors.WrapIO("read", "response body", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (c *Client) transportError(url string, err error) error {
	return &errors.APIError{
		Service:  c.service,
		Message:  err.Error(),
		Endpoint: url,
		Err:      err,
	}
}

func (c *Client) log(ctx context.Context) *zerolog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return logging.FromContext(ctx)
}
