// Package httpx is the outbound HTTP client shared by the gatesync adapters.
// It bounds response sizes and maps transport failures to fault classes.
package httpx

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/roach88/gatesync/internal/fault"
)

const (
	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum response body size (10MB).
	MaxResponseSize = 10 * 1024 * 1024
)

// Observer records one outbound request. *metrics.Metrics implements it.
type Observer interface {
	ObserveHTTP(target string, status int)
}

// Config holds client configuration.
type Config struct {
	Timeout time.Duration
	// InsecureSkipVerify accepts self-signed certificates, which on-premise
	// access-control servers commonly use.
	InsecureSkipVerify bool
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{Timeout: DefaultTimeout}
}

// Client wraps http.Client with logging and size limits.
type Client struct {
	client   *http.Client
	target   string
	observer Observer
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithObserver records every request under the client's target label.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithHTTPClient replaces the underlying client, e.g. with an httptest
// server's client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// New creates a client. target names the remote system in logs, errors and
// metrics ("upstream", "hikcentral", "images").
func New(target string, cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	c := &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		target: target,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Target returns the client's target label.
func (c *Client) Target() string {
	return c.target
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// Do executes req and reads the whole body. Transport failures (connection
// errors, timeouts, oversized or truncated bodies) are returned as
// fault.Transient. HTTP error statuses are not errors here; see CheckStatus.
func (c *Client) Do(ctx context.Context, req *http.Request) (*Response, error) {
	op := c.target + " " + req.Method + " " + req.URL.Path
	start := time.Now()

	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		c.observe(0)
		c.logger.Warn("http request failed",
			"target", c.target,
			"method", req.Method,
			"path", req.URL.Path,
			"error", err,
		)
		return nil, fault.Transient(op, err)
	}
	defer resp.Body.Close()

	c.observe(resp.StatusCode)

	if resp.ContentLength > MaxResponseSize {
		return nil, fault.Transient(op, fmt.Errorf("response too large: %d bytes (max %d)", resp.ContentLength, MaxResponseSize))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fault.Transient(op, fmt.Errorf("read response body: %w", err))
	}
	if len(body) > MaxResponseSize {
		return nil, fault.Transient(op, fmt.Errorf("response body too large: %d bytes (max %d)", len(body), MaxResponseSize))
	}

	duration := time.Since(start)
	c.logger.Debug("http request",
		"target", c.target,
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", duration,
	)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Duration:   duration,
	}, nil
}

func (c *Client) observe(status int) {
	if c.observer != nil {
		c.observer.ObserveHTTP(c.target, status)
	}
}
