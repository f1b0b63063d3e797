package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Default()
	cfg.Upstream.BaseURL = "https://registry.example.com"
	cfg.HikCentral.BaseURL = "https://10.0.0.5/artemis"
	cfg.HikCentral.AppKey = "ak"
	cfg.HikCentral.AppSecret = "sk"
	return cfg
}

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "3", cfg.HikCentral.PrivilegeGroupID)
	assert.Equal(t, 60*time.Second, cfg.Interval())
	assert.False(t, cfg.HTTP.VerifyTLS)

	d, err := cfg.Defaults()
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01T00:00:00+02:00", d.Window.From.Format(time.RFC3339))
	assert.Equal(t, "2035-12-31T23:59:59+02:00", d.Window.To.Format(time.RFC3339))
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load("testdata/full.yaml", "")
	require.NoError(t, err)

	assert.Equal(t, "https://registry.example.com/functions/v1", cfg.Upstream.BaseURL)
	assert.Equal(t, "7", cfg.HikCentral.PrivilegeGroupID)
	assert.Equal(t, DefaultOrgIndexCode, cfg.HikCentral.OrgIndexCode, "unset fields keep defaults")
	assert.Equal(t, 30*time.Second, cfg.Interval())
	assert.Equal(t, 10*time.Second, cfg.Timeout())
	assert.True(t, cfg.HTTP.VerifyTLS)
	require.NoError(t, cfg.Validate())

	d, err := cfg.Defaults()
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01T00:00:00+03:00", d.Window.From.Format(time.RFC3339))
	assert.Equal(t, "2030-12-31T23:59:59+03:00", d.Window.To.Format(time.RFC3339))
}

func TestLoad_UnknownField(t *testing.T) {
	_, err := Load("testdata/unknown_field.yaml", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batchsize")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)
}

func TestLoad_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("HIKCENTRAL_APP_KEY=from-dotenv\n"), 0o644))
	t.Setenv("HIKCENTRAL_APP_KEY", "")
	os.Unsetenv("HIKCENTRAL_APP_KEY")
	t.Setenv("GATESYNC_HIKCENTRAL_APP_KEY", "")

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.HikCentral.AppKey)
}

func TestApplyEnv_OriginalNames(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, mapLookup(map[string]string{
		"SUPABASE_URL":                  "https://x.supabase.co/functions/v1",
		"SUPABASE_BEARER_TOKEN":         "bearer",
		"SUPABASE_API_KEY":              "apikey",
		"HIKCENTRAL_BASE_URL":           "https://hik/artemis",
		"HIKCENTRAL_APP_KEY":            "ak",
		"HIKCENTRAL_APP_SECRET":         "sk",
		"HIKCENTRAL_PRIVILEGE_GROUP_ID": "9",
		"SYNC_INTERVAL_SECONDS":         "15",
		"VERIFY_SSL":                    "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, "https://x.supabase.co/functions/v1", cfg.Upstream.BaseURL)
	assert.Equal(t, "bearer", cfg.Upstream.BearerToken)
	assert.Equal(t, "apikey", cfg.Upstream.APIKey)
	assert.Equal(t, "9", cfg.HikCentral.PrivilegeGroupID)
	assert.Equal(t, 15, cfg.Sync.IntervalSeconds)
	assert.True(t, cfg.HTTP.VerifyTLS)
}

func TestApplyEnv_PrefixedNamesWin(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, mapLookup(map[string]string{
		"SUPABASE_URL":                "https://old",
		"GATESYNC_UPSTREAM_URL":       "https://new",
		"GATESYNC_SYNC_BATCH_SIZE":    "5",
		"GATESYNC_LEDGER_PATH":        "/tmp/l.db",
		"GATESYNC_METRICS_ADDR":       ":9100",
		"GATESYNC_WINDOW_ZONE":        "+00:00",
		"GATESYNC_HTTP_VERIFY_TLS":    "false",
		"GATESYNC_IMAGE_DIR":          "",
		"GATESYNC_HIKCENTRAL_APP_KEY": "ak",
	}))
	require.NoError(t, err)

	assert.Equal(t, "https://new", cfg.Upstream.BaseURL)
	assert.Equal(t, 5, cfg.Sync.BatchSize)
	assert.Equal(t, "/tmp/l.db", cfg.Ledger.Path)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	assert.Equal(t, "+00:00", cfg.Window.Zone)
	assert.Equal(t, DefaultImageDir, cfg.Images.Dir, "empty values are ignored")
}

func TestApplyEnv_BadValues(t *testing.T) {
	tests := map[string]string{
		"SYNC_INTERVAL_SECONDS": "soon",
		"VERIFY_SSL":            "maybe",
	}
	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			err := applyEnv(&cfg, mapLookup(map[string]string{name: value}))
			require.Error(t, err)
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"offline without upstream", func(c *Config) { c.Upstream.BaseURL = "" }, true},
		{"upstream not a url", func(c *Config) { c.Upstream.BaseURL = "registry" }, false},
		{"missing hikcentral url", func(c *Config) { c.HikCentral.BaseURL = "" }, false},
		{"missing app secret", func(c *Config) { c.HikCentral.AppSecret = "" }, false},
		{"zero interval", func(c *Config) { c.Sync.IntervalSeconds = 0 }, false},
		{"batch too large", func(c *Config) { c.Sync.BatchSize = 5000 }, false},
		{"bad zone", func(c *Config) { c.Window.Zone = "Africa/Cairo" }, false},
		{"empty ledger path", func(c *Config) { c.Ledger.Path = "" }, false},
		{"bad window date", func(c *Config) { c.Window.DefaultFrom = "next year" }, false},
		{"inverted window", func(c *Config) {
			c.Window.DefaultFrom = "2030-01-01"
			c.Window.DefaultTo = "2026-01-01"
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestRequireUpstream(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.RequireUpstream())

	cfg.Upstream.BaseURL = ""
	assert.Error(t, cfg.RequireUpstream())
}

func TestParseZone(t *testing.T) {
	loc, err := ParseZone("-05:30")
	require.NoError(t, err)
	_, offset := time.Date(2025, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, -(5*3600 + 30*60), offset)

	_, err = ParseZone("UTC")
	assert.Error(t, err)
}
