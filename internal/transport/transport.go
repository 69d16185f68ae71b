// Package transport is the blocking HTTP primitive shared by gateway adapters.
// Non-2xx answers are returned as *ResponseError so adapters can decide
// whether a status is a decline to parse or a failure to recover from.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

// ResponseError carries a non-2xx gateway answer.
type ResponseError struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("transport: gateway responded with HTTP %d", e.StatusCode)
}

// Unauthorized reports a 401, the signal for a credential refresh.
func (e *ResponseError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// Client performs gateway HTTP calls.
type Client struct {
	gateway    string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *Metrics
	wiretap    *Transcript
	scrub      func(string) string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger; wire dumps are only logged at debug level and
// only after scrubbing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records request counts and latencies.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTranscript captures raw wire dumps of every exchange.
func WithTranscript(t *Transcript) Option {
	return func(c *Client) { c.wiretap = t }
}

// WithScrubber sets the function applied to wire dumps before they are logged.
func WithScrubber(fn func(string) string) Option {
	return func(c *Client) { c.scrub = fn }
}

// NewClient returns a Client labelled with the gateway name.
func NewClient(gateway string, opts ...Option) *Client {
	c := &Client{
		gateway: gateway,
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Post sends body to url and returns the raw response body.
func (c *Client) Post(ctx context.Context, url string, body []byte, headers map[string]string) ([]byte, error) {
	return c.Request(ctx, http.MethodPost, url, body, headers)
}

// Request sends an arbitrary method. A 2xx answer returns its body; any other
// status returns a *ResponseError with the body attached.
func (c *Client) Request(ctx context.Context, method, url string, body []byte, headers map[string]string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("transport: build %s request: %w", method, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	c.dump("->", func() ([]byte, error) { return httputil.DumpRequestOut(req, true) })

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(method, "error", start)
		c.logger.Warn("gateway request failed",
			zap.String("gateway", c.gateway), zap.String("method", method), zap.Error(err))
		return nil, fmt.Errorf("transport: %s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	c.observe(method, strconv.Itoa(resp.StatusCode), start)
	if err != nil {
		return nil, fmt.Errorf("transport: read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(respBody))
	c.dump("<-", func() ([]byte, error) { return httputil.DumpResponse(resp, true) })

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return respBody, &ResponseError{StatusCode: resp.StatusCode, Body: respBody, Header: resp.Header.Clone()}
	}
	return respBody, nil
}

func (c *Client) observe(method, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.requests.WithLabelValues(c.gateway, method, status).Inc()
	c.metrics.latency.WithLabelValues(c.gateway, method).Observe(time.Since(start).Seconds())
}

func (c *Client) dump(direction string, fn func() ([]byte, error)) {
	if c.wiretap == nil && !c.logger.Core().Enabled(zap.DebugLevel) {
		return
	}
	raw, err := fn()
	if err != nil {
		return
	}
	if c.wiretap != nil {
		c.wiretap.write(direction, raw)
	}
	if c.scrub != nil && c.logger.Core().Enabled(zap.DebugLevel) {
		c.logger.Debug("gateway wire",
			zap.String("gateway", c.gateway),
			zap.String("direction", direction),
			zap.String("dump", c.scrub(string(raw))))
	}
}

// AsResponseError unwraps err into a *ResponseError.
func AsResponseError(err error) (*ResponseError, bool) {
	var re *ResponseError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
