// Package images downloads remote person images into a local cache
// directory so the downstream adapter can embed them.
package images

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/roach88/gatesync/internal/canonical"
	"github.com/roach88/gatesync/internal/fault"
	"github.com/roach88/gatesync/internal/httpx"
	"github.com/roach88/gatesync/internal/reconcile"
)

// defaultExt is used when neither the URL nor the response names a type.
const defaultExt = ".jpg"

// Cache resolves image references to files under dir. A remote reference is
// downloaded once and reused on later resolutions; local paths pass through.
type Cache struct {
	dir    string
	http   *httpx.Client
	logger *slog.Logger
}

// New creates a cache rooted at dir, creating it if needed.
func New(dir string, hc *httpx.Client, logger *slog.Logger) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("images: cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("images: create cache dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{dir: dir, http: hc, logger: logger}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Resolve returns a local file path for ref.
//
// Download failures carry the HTTP client's classification: network errors
// and retryable statuses are transient, anything else is rejected. A local
// reference that does not exist is rejected.
func (c *Cache) Resolve(ctx context.Context, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return c.download(ctx, ref, u)
	}

	local := ref
	if err == nil && u.Scheme == "file" {
		local = u.Path
	}
	if _, err := os.Stat(local); err != nil {
		return "", fault.Rejected("images resolve", fmt.Errorf("image %q: %w", ref, err))
	}
	return local, nil
}

func (c *Cache) download(ctx context.Context, ref string, u *url.URL) (string, error) {
	op := "images download"
	key := canonical.ImageKey(ref)

	if existing, ok := c.lookup(key); ok {
		return existing, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", fault.Rejected(op, err)
	}
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return "", err
	}
	if err := httpx.CheckStatus(op, resp); err != nil {
		return "", err
	}
	if len(resp.Body) == 0 {
		return "", fault.Rejected(op, fmt.Errorf("image %q is empty", ref))
	}

	dst := filepath.Join(c.dir, key+extension(u, resp.Header.Get("Content-Type")))
	if err := writeFile(c.dir, dst, resp.Body); err != nil {
		return "", fault.Transient(op, err)
	}

	c.logger.Debug("image cached",
		"ref", ref,
		"path", dst,
		"bytes", len(resp.Body),
		"duration", resp.Duration,
	)
	return dst, nil
}

// lookup finds a previously downloaded file for key regardless of extension.
func (c *Cache) lookup(key string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(c.dir, key+".*"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}

// extension picks a file extension from the URL path, falling back to the
// response content type.
func extension(u *url.URL, contentType string) string {
	if ext := strings.ToLower(path.Ext(u.Path)); ext != "" && len(ext) <= 5 {
		return ext
	}
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			switch mt {
			case "image/jpeg":
				return ".jpg"
			case "image/png":
				return ".png"
			}
			if exts, err := mime.ExtensionsByType(mt); err == nil && len(exts) > 0 {
				return exts[0]
			}
		}
	}
	return defaultExt
}

// writeFile writes data to a temp file in dir and renames it into place so a
// crash never leaves a truncated image under the final name.
func writeFile(dir, dst string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("rename into cache: %w", err)
	}
	return nil
}

var _ reconcile.ImageResolver = (*Cache)(nil)
