// Package hikcentral is the downstream adapter for a HikCentral access-control
// server reached through its Artemis OpenAPI gateway.
//
// Every request is a signed JSON POST. A response whose code is not "0" is a
// permanent rejection; transport failures and retryable HTTP statuses are
// transient.
package hikcentral

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/gatesync/internal/entity"
	"github.com/roach88/gatesync/internal/fault"
	"github.com/roach88/gatesync/internal/httpx"
	"github.com/roach88/gatesync/internal/reconcile"
)

// Artemis endpoints, relative to the configured base URL.
const (
	PathPersonAdd         = "/api/resource/v1/person/single/add"
	PathPersonUpdate      = "/api/resource/v1/person/single/update"
	PathPersonDelete      = "/api/resource/v1/person/single/delete"
	PathGroupAddPersons   = "/api/acs/v1/privilege/group/single/addPersons"
	PathGroupDelPersons   = "/api/acs/v1/privilege/group/single/deletePersons"
	codeSuccess           = "0"
	groupMemberTypePerson = 1
)

// DefaultOrgIndexCode is the organization new persons are filed under.
const DefaultOrgIndexCode = "1"

// Config holds the Artemis connection settings.
type Config struct {
	// BaseURL includes the gateway prefix, e.g. https://10.0.0.5:443/artemis.
	BaseURL   string
	AppKey    string
	AppSecret string
	// PrivilegeGroupID, when set, is left by persons before they are deleted.
	PrivilegeGroupID string
	OrgIndexCode     string
}

// Client implements reconcile.Downstream.
type Client struct {
	base         *url.URL
	signer       Signer
	http         *httpx.Client
	groupID      string
	orgIndexCode string

	nonce func() string
	now   func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithNonce replaces the nonce source (UUIDv4 by default).
func WithNonce(f func() string) Option {
	return func(c *Client) {
		c.nonce = f
	}
}

// WithNow replaces the clock used for x-ca-timestamp.
func WithNow(f func() time.Time) Option {
	return func(c *Client) {
		c.now = f
	}
}

// New creates a client.
func New(cfg Config, hc *httpx.Client, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("hikcentral: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("hikcentral: parse base url: %w", err)
	}
	if cfg.AppKey == "" || cfg.AppSecret == "" {
		return nil, errors.New("hikcentral: app key and secret are required")
	}
	org := cfg.OrgIndexCode
	if org == "" {
		org = DefaultOrgIndexCode
	}

	c := &Client{
		base:         base,
		signer:       Signer{AppKey: cfg.AppKey, AppSecret: cfg.AppSecret},
		http:         hc,
		groupID:      cfg.PrivilegeGroupID,
		orgIndexCode: org,
		nonce:        func() string { return uuid.NewString() },
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// envelope is the Artemis response wrapper.
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// APIError is a response with a non-success code.
type APIError struct {
	Path string
	Code string
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("artemis %s: code %s: %s", e.Path, e.Code, e.Msg)
}

// post signs and sends body to path and returns the data field.
func (c *Client) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	op := "hikcentral " + path
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fault.Rejected(op, fmt.Errorf("encode request: %w", err))
	}

	u := *c.base
	u.Path = c.base.Path + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fault.Rejected(op, err)
	}
	c.signer.Sign(req, payload, c.nonce(), c.now())

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := httpx.CheckStatus(op, resp); err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, fault.Transient(op, fmt.Errorf("decode response: %w", err))
	}
	if env.Code != codeSuccess {
		return nil, fault.Rejected(op, &APIError{Path: path, Code: env.Code, Msg: env.Msg})
	}
	return env.Data, nil
}

// Create adds a person and returns its person ID.
func (c *Client) Create(ctx context.Context, rec entity.Record) (string, error) {
	p, err := c.buildPerson(rec, "Added")
	if err != nil {
		return "", err
	}
	data, err := c.post(ctx, PathPersonAdd, p)
	if err != nil {
		return "", err
	}
	id, err := personID(data)
	if err != nil {
		return "", fault.Rejected("hikcentral "+PathPersonAdd, err)
	}
	return id, nil
}

// Update rewrites the person stored under id.
func (c *Client) Update(ctx context.Context, id string, rec entity.Record) error {
	p, err := c.buildPerson(rec, "Updated")
	if err != nil {
		return err
	}
	p.PersonID = id
	_, err = c.post(ctx, PathPersonUpdate, p)
	return err
}

// Delete removes the person from the configured privilege group, then
// deletes it. A refused group removal does not stop the delete: a retried
// delete finds the person already out of the group, and deleting the person
// drops its memberships anyway. Other failures still abort.
func (c *Client) Delete(ctx context.Context, id string) error {
	if c.groupID != "" {
		_, err := c.post(ctx, PathGroupDelPersons, groupRequest{
			PrivilegeGroupID: c.groupID,
			Type:             groupMemberTypePerson,
			List:             []groupMember{{ID: id}},
		})
		var apiErr *APIError
		if err != nil && !errors.As(err, &apiErr) {
			return err
		}
	}
	_, err := c.post(ctx, PathPersonDelete, personIDRequest{PersonID: id})
	return err
}

// AssignToGroup adds the person to a privilege group.
func (c *Client) AssignToGroup(ctx context.Context, id, groupID string) error {
	_, err := c.post(ctx, PathGroupAddPersons, groupRequest{
		PrivilegeGroupID: groupID,
		Type:             groupMemberTypePerson,
		List:             []groupMember{{ID: id}},
	})
	return err
}

// personID reads the add-person data field, which is the new ID as a string
// (or, on some firmware, a number).
func personID(data json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil && s != "" {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil && n.String() != "" {
		return n.String(), nil
	}
	return "", fmt.Errorf("add person returned no person id: %s", string(data))
}

var _ reconcile.Downstream = (*Client)(nil)
