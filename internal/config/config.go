// Package config loads gatesync settings from a YAML file, an optional .env
// file and the environment, and validates them against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/gatesync/internal/event"
	"github.com/roach88/gatesync/internal/window"
)

//go:embed schema.cue
var schemaSource string

// Defaults match the deployment the registry was first rolled out with.
const (
	DefaultIntervalSeconds  = 60
	DefaultBatchSize        = 50
	DefaultPrivilegeGroupID = "3"
	DefaultOrgIndexCode     = "1"
	DefaultWindowFrom       = "2025-01-01T00:00:00+02:00"
	DefaultWindowTo         = "2035-12-31T23:59:59+02:00"
	DefaultZone             = "+02:00"
	DefaultLedgerPath       = "gatesync.db"
	DefaultImageDir         = "images"
	DefaultTimeoutSeconds   = 30
)

// Config is the complete runtime configuration.
type Config struct {
	Upstream   Upstream   `yaml:"upstream" json:"upstream"`
	HikCentral HikCentral `yaml:"hikcentral" json:"hikcentral"`
	Sync       Sync       `yaml:"sync" json:"sync"`
	Window     Window     `yaml:"window" json:"window"`
	Ledger     Ledger     `yaml:"ledger" json:"ledger"`
	Images     Images     `yaml:"images" json:"images"`
	Metrics    Metrics    `yaml:"metrics" json:"metrics"`
	HTTP       HTTP       `yaml:"http" json:"http"`
}

type Upstream struct {
	BaseURL     string `yaml:"base_url" json:"base_url"`
	BearerToken string `yaml:"bearer_token" json:"bearer_token"`
	APIKey      string `yaml:"api_key" json:"api_key"`
}

type HikCentral struct {
	BaseURL          string `yaml:"base_url" json:"base_url"`
	AppKey           string `yaml:"app_key" json:"app_key"`
	AppSecret        string `yaml:"app_secret" json:"app_secret"`
	PrivilegeGroupID string `yaml:"privilege_group_id" json:"privilege_group_id"`
	OrgIndexCode     string `yaml:"org_index_code" json:"org_index_code"`
}

type Sync struct {
	IntervalSeconds int `yaml:"interval_seconds" json:"interval_seconds"`
	BatchSize       int `yaml:"batch_size" json:"batch_size"`
}

// Window holds the validity window applied to persons whose payload carries
// no dates. Dates without an offset are read in Zone.
type Window struct {
	DefaultFrom string `yaml:"default_from" json:"default_from"`
	DefaultTo   string `yaml:"default_to" json:"default_to"`
	Zone        string `yaml:"zone" json:"zone"`
}

type Ledger struct {
	Path string `yaml:"path" json:"path"`
}

type Images struct {
	// Dir caches downloaded images. Empty disables image resolution.
	Dir string `yaml:"dir" json:"dir"`
}

type Metrics struct {
	// Addr serves /metrics when set, e.g. ":9090".
	Addr string `yaml:"addr" json:"addr"`
}

type HTTP struct {
	TimeoutSeconds int  `yaml:"timeout_seconds" json:"timeout_seconds"`
	VerifyTLS      bool `yaml:"verify_tls" json:"verify_tls"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		HikCentral: HikCentral{
			PrivilegeGroupID: DefaultPrivilegeGroupID,
			OrgIndexCode:     DefaultOrgIndexCode,
		},
		Sync: Sync{
			IntervalSeconds: DefaultIntervalSeconds,
			BatchSize:       DefaultBatchSize,
		},
		Window: Window{
			DefaultFrom: DefaultWindowFrom,
			DefaultTo:   DefaultWindowTo,
			Zone:        DefaultZone,
		},
		Ledger:  Ledger{Path: DefaultLedgerPath},
		Images:  Images{Dir: DefaultImageDir},
		HTTP:    HTTP{TimeoutSeconds: DefaultTimeoutSeconds},
		Metrics: Metrics{},
	}
}

// Load builds a Config from defaults, then the YAML file at path (skipped
// when path is empty), then the environment. A .env file next to the working
// directory, or at envFile when given, is loaded first; variables already set
// in the environment win over it. Load does not validate; call Validate.
func Load(path, envFile string) (Config, error) {
	if err := loadDotenv(envFile); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadDotenv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		// An empty file decodes as io.EOF and leaves the defaults.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// envBinding maps environment variables onto a field. Names are tried in
// order; the first one set wins.
type envBinding struct {
	names []string
	set   func(*Config, string) error
}

func str(f func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*f(c) = v
		return nil
	}
}

func num(f func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*f(c) = n
		return nil
	}
}

func boolean(f func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*f(c) = b
		return nil
	}
}

var envBindings = []envBinding{
	{[]string{"GATESYNC_UPSTREAM_URL", "SUPABASE_URL"}, str(func(c *Config) *string { return &c.Upstream.BaseURL })},
	{[]string{"GATESYNC_UPSTREAM_BEARER_TOKEN", "SUPABASE_BEARER_TOKEN"}, str(func(c *Config) *string { return &c.Upstream.BearerToken })},
	{[]string{"GATESYNC_UPSTREAM_API_KEY", "SUPABASE_API_KEY"}, str(func(c *Config) *string { return &c.Upstream.APIKey })},
	{[]string{"GATESYNC_HIKCENTRAL_BASE_URL", "HIKCENTRAL_BASE_URL"}, str(func(c *Config) *string { return &c.HikCentral.BaseURL })},
	{[]string{"GATESYNC_HIKCENTRAL_APP_KEY", "HIKCENTRAL_APP_KEY"}, str(func(c *Config) *string { return &c.HikCentral.AppKey })},
	{[]string{"GATESYNC_HIKCENTRAL_APP_SECRET", "HIKCENTRAL_APP_SECRET"}, str(func(c *Config) *string { return &c.HikCentral.AppSecret })},
	{[]string{"GATESYNC_HIKCENTRAL_PRIVILEGE_GROUP_ID", "HIKCENTRAL_PRIVILEGE_GROUP_ID"}, str(func(c *Config) *string { return &c.HikCentral.PrivilegeGroupID })},
	{[]string{"GATESYNC_HIKCENTRAL_ORG_INDEX_CODE", "HIKCENTRAL_ORG_INDEX_CODE"}, str(func(c *Config) *string { return &c.HikCentral.OrgIndexCode })},
	{[]string{"GATESYNC_SYNC_INTERVAL_SECONDS", "SYNC_INTERVAL_SECONDS"}, num(func(c *Config) *int { return &c.Sync.IntervalSeconds })},
	{[]string{"GATESYNC_SYNC_BATCH_SIZE"}, num(func(c *Config) *int { return &c.Sync.BatchSize })},
	{[]string{"GATESYNC_WINDOW_DEFAULT_FROM"}, str(func(c *Config) *string { return &c.Window.DefaultFrom })},
	{[]string{"GATESYNC_WINDOW_DEFAULT_TO"}, str(func(c *Config) *string { return &c.Window.DefaultTo })},
	{[]string{"GATESYNC_WINDOW_ZONE"}, str(func(c *Config) *string { return &c.Window.Zone })},
	{[]string{"GATESYNC_LEDGER_PATH"}, str(func(c *Config) *string { return &c.Ledger.Path })},
	{[]string{"GATESYNC_IMAGE_DIR"}, str(func(c *Config) *string { return &c.Images.Dir })},
	{[]string{"GATESYNC_METRICS_ADDR"}, str(func(c *Config) *string { return &c.Metrics.Addr })},
	{[]string{"GATESYNC_HTTP_TIMEOUT_SECONDS"}, num(func(c *Config) *int { return &c.HTTP.TimeoutSeconds })},
	{[]string{"GATESYNC_HTTP_VERIFY_TLS", "VERIFY_SSL"}, boolean(func(c *Config) *bool { return &c.HTTP.VerifyTLS })},
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		for _, name := range b.names {
			v, ok := lookup(name)
			if !ok || v == "" {
				continue
			}
			if err := b.set(cfg, v); err != nil {
				return fmt.Errorf("environment %s=%q: %w", name, v, err)
			}
			break
		}
	}
	return nil
}

// Validate checks cfg against the embedded CUE schema and parses the default
// window.
func (c Config) Validate() error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	value := ctx.CompileBytes(data, cue.Filename("config.json"))
	if err := value.Err(); err != nil {
		return fmt.Errorf("compile config: %w", err)
	}
	if err := schema.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Err: err}
	}

	if _, err := c.Defaults(); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

// RequireUpstream reports an error when no registry URL is configured.
// Offline commands such as apply run without one.
func (c Config) RequireUpstream() error {
	if c.Upstream.BaseURL == "" {
		return &ValidationError{Err: errors.New("upstream.base_url is required (set SUPABASE_URL)")}
	}
	return nil
}

// ValidationError reports a configuration that does not satisfy the schema.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Defaults returns the normalizer defaults described by the window section.
func (c Config) Defaults() (event.Defaults, error) {
	zone, err := ParseZone(c.Window.Zone)
	if err != nil {
		return event.Defaults{}, err
	}
	from, err := window.Parse(c.Window.DefaultFrom, false, zone)
	if err != nil {
		return event.Defaults{}, fmt.Errorf("window.default_from: %w", err)
	}
	to, err := window.Parse(c.Window.DefaultTo, true, zone)
	if err != nil {
		return event.Defaults{}, fmt.Errorf("window.default_to: %w", err)
	}
	if !window.New(from, to).Valid() {
		return event.Defaults{}, fmt.Errorf("window: default_from %s is after default_to %s", c.Window.DefaultFrom, c.Window.DefaultTo)
	}
	return event.Defaults{Window: window.New(from, to), Zone: zone}, nil
}

// ParseZone turns a "+02:00" style offset into a fixed location.
func ParseZone(s string) (*time.Location, error) {
	t, err := time.Parse("-07:00", s)
	if err != nil {
		return nil, fmt.Errorf("window.zone %q: want an offset like +02:00", s)
	}
	_, offset := t.Zone()
	return time.FixedZone(s, offset), nil
}

// Interval returns the poll interval.
func (c Config) Interval() time.Duration {
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}

// Timeout returns the outbound HTTP timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
