package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/gatesync/internal/config"
	"github.com/roach88/gatesync/internal/event"
	"github.com/roach88/gatesync/internal/ledger"
	"github.com/roach88/gatesync/internal/reconcile"
	"github.com/roach88/gatesync/internal/testutil"
)

// clockStart is the deterministic wall clock every scenario starts at.
var clockStart = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh SQLite ledger in a temporary directory
// that is removed afterwards. The returned error covers setup problems only;
// assertion failures are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "gatesync-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := ledger.Open(filepath.Join(dir, "ledger.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer st.Close()

	defaults, err := config.Default().Defaults()
	if err != nil {
		return nil, fmt.Errorf("default window: %w", err)
	}

	rec := testutil.NewRecorder()
	down := testutil.NewFakeDownstream(rec)
	up := testutil.NewFakeUpstream(rec)
	for _, f := range scenario.Failures {
		class, err := parseClass(f.Class)
		if err != nil {
			return nil, err
		}
		failure := testutil.Failure{Call: f.Call, Key: f.Key, Class: class, Times: f.Times, Message: f.Message}
		if f.Call == "upstream.status" {
			up.Fail(failure)
		} else {
			down.Fail(failure)
		}
	}

	clock := testutil.NewDeterministicClock(clockStart, time.Second)
	eng := reconcile.New(st, down, up, event.NewNormalizer(defaults),
		reconcile.WithGroupID(scenario.Group()),
		reconcile.WithNow(clock.Now),
		reconcile.WithLogger(slog.New(slog.DiscardHandler)), // Suppress logs in scenarios
	)

	ctx := context.Background()
	result := NewResult()
	for i, b := range scenario.Batches {
		envs, err := b.Envelopes()
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", i+1, err)
		}

		before := len(rec.Calls())
		report, err := eng.ProcessBatch(ctx, envs)
		result.Batches = append(result.Batches, BatchTrace{
			Calls:    rec.Calls()[before:],
			Outcomes: report.Outcomes,
			Err:      err,
		})
	}

	result.Calls = rec.Calls()
	result.Reports = up.Reports()
	if result.Ledger, err = st.List(ctx); err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}
