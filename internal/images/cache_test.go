package images

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gatesync/internal/fault"
	"github.com/roach88/gatesync/internal/httpx"
)

func newTestCache(t *testing.T, h http.HandlerFunc) (*Cache, string) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	hc := httpx.New("images", httpx.DefaultConfig(), httpx.WithHTTPClient(srv.Client()))
	c, err := New(t.TempDir(), hc, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return c, srv.URL
}

func TestResolve_DownloadsOnce(t *testing.T) {
	var hits atomic.Int32
	c, base := newTestCache(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	})

	ref := base + "/faces/W1.png"
	p1, err := c.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, c.Dir(), filepath.Dir(p1))
	assert.Equal(t, ".png", filepath.Ext(p1))

	data, err := os.ReadFile(p1)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	p2, err := c.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, int32(1), hits.Load())
}

func TestResolve_ExtensionFromContentType(t *testing.T) {
	c, base := newTestCache(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg"))
	})

	p, err := c.Resolve(context.Background(), base+"/storage/v1/object/face?token=abc")
	require.NoError(t, err)
	assert.Equal(t, ".jpg", filepath.Ext(p))
}

func TestResolve_NoTempFilesLeft(t *testing.T) {
	c, base := newTestCache(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("img"))
	})

	_, err := c.Resolve(context.Background(), base+"/a.jpg")
	require.NoError(t, err)

	entries, err := os.ReadDir(c.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.HasPrefix(entries[0].Name(), ".download-"))
}

func TestResolve_DownloadFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   fault.Class
	}{
		{"not found", http.StatusNotFound, "missing", fault.ClassRejected},
		{"forbidden", http.StatusForbidden, "", fault.ClassRejected},
		{"unavailable", http.StatusServiceUnavailable, "", fault.ClassTransient},
		{"empty body", http.StatusOK, "", fault.ClassRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, base := newTestCache(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Resolve(context.Background(), base+"/x.jpg")
			require.Error(t, err)
			assert.Equal(t, tt.want, fault.ClassOf(err))
		})
	}
}

func TestResolve_LocalPath(t *testing.T) {
	c, _ := newTestCache(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	local := filepath.Join(t.TempDir(), "face.jpg")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0o644))

	got, err := c.Resolve(context.Background(), local)
	require.NoError(t, err)
	assert.Equal(t, local, got)

	got, err = c.Resolve(context.Background(), "file://"+local)
	require.NoError(t, err)
	assert.Equal(t, local, got)
}

func TestResolve_MissingLocalPath(t *testing.T) {
	c, _ := newTestCache(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := c.Resolve(context.Background(), filepath.Join(t.TempDir(), "nope.jpg"))
	require.Error(t, err)
	assert.True(t, fault.IsRejected(err))
}

func TestNew_RequiresDir(t *testing.T) {
	_, err := New("", httpx.New("images", httpx.DefaultConfig()), nil)
	assert.Error(t, err)
}
