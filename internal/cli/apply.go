package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/gatesync/internal/event"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Report bool
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <events.json>",
		Short: "Apply events from a file",
		Long: `Apply a saved list of events to HikCentral and the ledger.

The file holds either a JSON array of events or the registry's response
object ({"events": [...]}). Events go through the same pipeline as the
daemon. Status is only reported to the registry with --report.

Example:
  gatesync apply --config gatesync.yaml backlog.json
  gatesync apply --report --format json backlog.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Report, "report", false, "report resulting status to the registry")

	return cmd
}

func runApply(opts *ApplyOptions, path string, cmd *cobra.Command) error {
	logger := opts.logger(cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	envs, err := decodeEventFile(data)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to parse %s", path), err)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, logger, opts.Report)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Error("error closing ledger", "error", closeErr)
		}
	}()

	opts.formatter(cmd).VerboseLog("applying %d events from %s", len(envs), path)
	report, err := a.engine.ProcessBatch(cmd.Context(), envs)
	if perr := opts.formatter(cmd).Success(newReportView(len(envs), report)); perr != nil {
		return perr
	}
	if err != nil {
		return WrapExitError(ExitFailure, "apply aborted", err)
	}
	return nil
}

// decodeEventFile accepts a bare array of envelopes or an object with an
// "events" array. Individual envelopes that fail to decode are kept and
// surface as malformed outcomes.
func decodeEventFile(data []byte) ([]event.Envelope, error) {
	data = bytes.TrimSpace(data)
	var raws []json.RawMessage
	if len(data) > 0 && data[0] == '{' {
		var body struct {
			Events []json.RawMessage `json:"events"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, err
		}
		raws = body.Events
	} else if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}
	envs, _ := event.DecodeEnvelopes(raws)
	return envs, nil
}
