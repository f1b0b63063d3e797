// Package upstream is the HTTP client for the worker registry: it fetches
// pending lifecycle events and reports per-worker status back.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/roach88/gatesync/internal/event"
	"github.com/roach88/gatesync/internal/fault"
	"github.com/roach88/gatesync/internal/httpx"
	"github.com/roach88/gatesync/internal/reconcile"
)

// Registry endpoints, relative to the configured base URL.
const (
	PathEvents       = "/admin/workers/events"
	PathUpdateStatus = "/admin/workers/update-status"
)

// Config holds the registry connection settings.
type Config struct {
	BaseURL     string
	BearerToken string
	APIKey      string
}

// Client fetches events and reports status. It implements reconcile.Upstream.
type Client struct {
	base   string
	cfg    Config
	http   *httpx.Client
	logger *slog.Logger
}

// New creates a client.
func New(cfg Config, hc *httpx.Client, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("upstream: base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("upstream: parse base url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		cfg:    cfg,
		http:   hc,
		logger: logger,
	}, nil
}

// eventsResponse is the body of GET /admin/workers/events.
type eventsResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Events  []json.RawMessage `json:"events"`
}

// statusRequest is the body of POST /admin/workers/update-status.
type statusRequest struct {
	WorkerID      string `json:"workerId"`
	Status        string `json:"status"`
	ExternalID    string `json:"externalId,omitempty"`
	BlockedReason string `json:"blockedReason,omitempty"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// FetchPendingEvents returns up to limit pending events. The registry marks
// them consumed on delivery, so the same event may be delivered again if the
// process stops before applying it. An event whose envelope cannot be decoded
// is returned with an invalid kind so it surfaces as malformed downstream
// instead of failing the page.
func (c *Client) FetchPendingEvents(ctx context.Context, limit int) ([]event.Envelope, error) {
	op := "upstream fetch events"
	u := c.base + PathEvents
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fault.Rejected(op, err)
	}
	c.authorize(req)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := httpx.CheckStatus(op, resp); err != nil {
		return nil, err
	}

	var body eventsResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fault.Transient(op, fmt.Errorf("decode response: %w", err))
	}
	if !body.Success {
		return nil, fault.Rejected(op, fmt.Errorf("registry reported failure: %s", body.Error))
	}

	envs, errs := event.DecodeEnvelopes(body.Events)
	for _, err := range errs {
		c.logger.Warn("undecodable event envelope",
			"class", fault.ClassMalformed,
			"error", err,
		)
	}
	return envs, nil
}

// SetStatus reports a worker's status. The downstream person ID travels as
// externalId; the reason as blockedReason.
func (c *Client) SetStatus(ctx context.Context, r reconcile.StatusReport) error {
	op := "upstream set status"
	payload, err := json.Marshal(statusRequest{
		WorkerID:      r.ExternalID,
		Status:        r.Status.String(),
		ExternalID:    r.DownstreamID,
		BlockedReason: r.Reason,
	})
	if err != nil {
		return fault.Rejected(op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+PathUpdateStatus, bytes.NewReader(payload))
	if err != nil {
		return fault.Rejected(op, err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := httpx.CheckStatus(op, resp); err != nil {
		return err
	}

	var body statusResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return fault.Transient(op, fmt.Errorf("decode response: %w", err))
	}
	if !body.Success {
		return fault.Rejected(op, fmt.Errorf("registry refused status %s for %s: %s", r.Status, r.ExternalID, body.Error))
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}
	req.Header.Set("Accept", "application/json")
}

var _ reconcile.Upstream = (*Client)(nil)
