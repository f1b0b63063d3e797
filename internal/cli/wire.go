package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/gatesync/internal/config"
	"github.com/roach88/gatesync/internal/event"
	"github.com/roach88/gatesync/internal/hikcentral"
	"github.com/roach88/gatesync/internal/httpx"
	"github.com/roach88/gatesync/internal/images"
	"github.com/roach88/gatesync/internal/ledger"
	"github.com/roach88/gatesync/internal/metrics"
	"github.com/roach88/gatesync/internal/poller"
	"github.com/roach88/gatesync/internal/reconcile"
	"github.com/roach88/gatesync/internal/upstream"
)

const metricsShutdownTimeout = 5 * time.Second

// app is one fully wired process: ledger, clients, engine.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *ledger.Store
	metrics  *metrics.Metrics
	upstream *upstream.Client // nil when offline
	engine   *reconcile.Engine
}

// newApp validates cfg and wires every component. When online is false no
// registry client is built and the engine reports nothing upstream.
func newApp(cfg config.Config, logger *slog.Logger, online bool) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if online {
		if err := cfg.RequireUpstream(); err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
		}
	}
	defaults, err := cfg.Defaults()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	m := metrics.New(prometheus.NewRegistry())
	httpCfg := httpx.Config{
		Timeout:            cfg.Timeout(),
		InsecureSkipVerify: !cfg.HTTP.VerifyTLS,
	}
	client := func(target string) *httpx.Client {
		return httpx.New(target, httpCfg, httpx.WithObserver(m), httpx.WithLogger(logger))
	}

	down, err := hikcentral.New(hikcentral.Config{
		BaseURL:          cfg.HikCentral.BaseURL,
		AppKey:           cfg.HikCentral.AppKey,
		AppSecret:        cfg.HikCentral.AppSecret,
		PrivilegeGroupID: cfg.HikCentral.PrivilegeGroupID,
		OrgIndexCode:     cfg.HikCentral.OrgIndexCode,
	}, client("hikcentral"))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	opts := []reconcile.Option{
		reconcile.WithGroupID(cfg.HikCentral.PrivilegeGroupID),
		reconcile.WithObserver(m),
		reconcile.WithLogger(logger),
	}
	if cfg.Images.Dir != "" {
		cache, err := images.New(cfg.Images.Dir, client("images"), logger)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open image cache", err)
		}
		opts = append(opts, reconcile.WithImageResolver(cache))
	}

	a := &app{cfg: cfg, logger: logger, metrics: m}

	var reporter reconcile.Upstream
	if online {
		up, err := upstream.New(upstream.Config{
			BaseURL:     cfg.Upstream.BaseURL,
			BearerToken: cfg.Upstream.BearerToken,
			APIKey:      cfg.Upstream.APIKey,
		}, client("upstream"), logger)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
		}
		a.upstream = up
		reporter = up
	}

	store, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to open ledger", err)
	}
	a.store = store
	a.engine = reconcile.New(store, down, reporter, event.NewNormalizer(defaults), opts...)
	return a, nil
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// poller returns a poller over the registry. Only valid for an online app.
func (a *app) poller() *poller.Poller {
	return poller.New(a.upstream, a.engine, a.cfg.Interval(),
		poller.WithBatchSize(a.cfg.Sync.BatchSize),
		poller.WithRecorder(a.metrics),
		poller.WithLogger(a.logger),
	)
}

// serveMetrics serves /metrics on the configured address until ctx is done.
// The returned function waits for the server to stop.
func (a *app) serveMetrics(ctx context.Context) (func(), error) {
	if a.cfg.Metrics.Addr == "" {
		return func() {}, nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	// Surface bind errors before the poller starts.
	select {
	case err := <-errCh:
		return nil, fmt.Errorf("metrics server: %w", err)
	case <-time.After(100 * time.Millisecond):
	}
	a.logger.Info("serving metrics", "addr", a.cfg.Metrics.Addr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server stopped", "error", err)
			}
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("metrics server shutdown", "error", err)
		}
	}()
	return func() { <-done }, nil
}
