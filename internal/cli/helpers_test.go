package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// configEnv lists every variable config.Load reads, so tests are not
// affected by the developer's shell.
var configEnv = []string{
	"GATESYNC_UPSTREAM_URL", "SUPABASE_URL",
	"GATESYNC_UPSTREAM_BEARER_TOKEN", "SUPABASE_BEARER_TOKEN",
	"GATESYNC_UPSTREAM_API_KEY", "SUPABASE_API_KEY",
	"GATESYNC_HIKCENTRAL_BASE_URL", "HIKCENTRAL_BASE_URL",
	"GATESYNC_HIKCENTRAL_APP_KEY", "HIKCENTRAL_APP_KEY",
	"GATESYNC_HIKCENTRAL_APP_SECRET", "HIKCENTRAL_APP_SECRET",
	"GATESYNC_HIKCENTRAL_PRIVILEGE_GROUP_ID", "HIKCENTRAL_PRIVILEGE_GROUP_ID",
	"GATESYNC_HIKCENTRAL_ORG_INDEX_CODE", "HIKCENTRAL_ORG_INDEX_CODE",
	"GATESYNC_SYNC_INTERVAL_SECONDS", "SYNC_INTERVAL_SECONDS",
	"GATESYNC_SYNC_BATCH_SIZE",
	"GATESYNC_WINDOW_DEFAULT_FROM", "GATESYNC_WINDOW_DEFAULT_TO", "GATESYNC_WINDOW_ZONE",
	"GATESYNC_LEDGER_PATH", "GATESYNC_IMAGE_DIR", "GATESYNC_METRICS_ADDR",
	"GATESYNC_HTTP_TIMEOUT_SECONDS", "GATESYNC_HTTP_VERIFY_TLS", "VERIFY_SSL",
}

// isolateEnv blanks every config variable; config.Load ignores empty values.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, name := range configEnv {
		t.Setenv(name, "")
	}
}

// execute runs the CLI and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := Execute(args, &out, &errOut)
	return out.String(), errOut.String(), err
}

// fakeServers is one httptest server playing both the registry (under /reg)
// and the Artemis gateway (under /artemis).
type fakeServers struct {
	srv *httptest.Server

	mu       sync.Mutex
	paths    []string
	statuses []map[string]any
	events   []string
	nextID   int
}

func newFakeServers(t *testing.T) *fakeServers {
	t.Helper()
	f := &fakeServers{}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServers) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, r.URL.Path)

	switch {
	case r.URL.Path == "/reg/admin/workers/events":
		events := "[" + strings.Join(f.events, ",") + "]"
		f.events = nil
		fmt.Fprintf(w, `{"success":true,"events":%s}`, events)
	case r.URL.Path == "/reg/admin/workers/update-status":
		var m map[string]any
		_ = json.Unmarshal(body, &m)
		f.statuses = append(f.statuses, m)
		fmt.Fprint(w, `{"success":true}`)
	case strings.HasSuffix(r.URL.Path, "/person/single/add"):
		f.nextID++
		fmt.Fprintf(w, `{"code":"0","msg":"Success","data":"%d"}`, 100+f.nextID)
	case strings.HasPrefix(r.URL.Path, "/artemis/"):
		fmt.Fprint(w, `{"code":"0","msg":"Success"}`)
	default:
		http.NotFound(w, r)
	}
}

// queue makes the next events fetch return the given envelopes.
func (f *fakeServers) queue(events ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
}

func (f *fakeServers) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func (f *fakeServers) Statuses() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.statuses...)
}

// writeConfig writes a config pointing at f and returns its path. The ledger
// and image cache live in the test's temp dir.
func writeConfig(t *testing.T, f *fakeServers, withUpstream bool) string {
	t.Helper()
	dir := t.TempDir()

	upstream := ""
	if withUpstream {
		upstream = fmt.Sprintf("upstream:\n  base_url: %s/reg\n  bearer_token: bearer-value-1\n", f.srv.URL)
	}
	content := upstream + fmt.Sprintf(`hikcentral:
  base_url: %s/artemis
  app_key: key
  app_secret: hik-secret-value
  privilege_group_id: "7"
ledger:
  path: %s
images:
  dir: %s
`, f.srv.URL, filepath.Join(dir, "ledger.db"), filepath.Join(dir, "images"))

	path := filepath.Join(dir, "gatesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// decodeData unmarshals the data field of a JSON CLIResponse into v.
func decodeData(t *testing.T, out string, v any) CLIResponse {
	t.Helper()
	var resp struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	if v != nil {
		require.NoError(t, json.Unmarshal(resp.Data, v))
	}
	return resp.CLIResponse
}
