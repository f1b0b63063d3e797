package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll the registry and reconcile until stopped",
		Long: `Start the sync daemon.

Every sync.interval_seconds the daemon fetches up to sync.batch_size pending
events from the registry, applies them to HikCentral in order, and reports
the resulting worker status back. Each person's state is kept in the SQLite
ledger at ledger.path. When metrics.addr is set, Prometheus metrics are
served on /metrics.

Example:
  gatesync run --config gatesync.yaml
  gatesync run --env-file /etc/gatesync/.env --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(rootOpts, cmd)
		},
	}
}

func runDaemon(opts *RootOptions, cmd *cobra.Command) error {
	logger := opts.logger(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, logger, true)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Error("error closing ledger", "error", closeErr)
		}
	}()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	waitMetrics, err := a.serveMetrics(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start metrics server", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "gatesync started. Polling %s every %s.\n", cfg.Upstream.BaseURL, cfg.Interval())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	runErr := a.poller().Run(ctx)
	cancel()
	waitMetrics()

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "poller error", runErr)
	}
	logger.Info("gatesync stopped")
	return nil
}
