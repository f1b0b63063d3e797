package cli

import (
	"github.com/spf13/cobra"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run a single poll cycle",
		Long: `Fetch one page of pending events, apply it, and print what happened.

Per-person failures are reported in the output and do not change the exit
code; they are retried by the next cycle. A failed fetch or an unwritable
ledger exits with code 1.

Example:
  gatesync sync --config gatesync.yaml
  gatesync sync --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, cmd)
		},
	}
}

func runSync(opts *RootOptions, cmd *cobra.Command) error {
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

	cycle, err := a.poller().RunOnce(cmd.Context())
	if err != nil {
		if len(cycle.Report.Outcomes) > 0 {
			_ = opts.formatter(cmd).SuccessCycle(cycle.ID, newReportView(cycle.Events, cycle.Report))
		}
		return WrapExitError(ExitFailure, "sync cycle failed", err)
	}
	return opts.formatter(cmd).SuccessCycle(cycle.ID, newReportView(cycle.Events, cycle.Report))
}
