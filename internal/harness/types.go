package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/gatesync/internal/ledger"
	"github.com/roach88/gatesync/internal/reconcile"
	"github.com/roach88/gatesync/internal/testutil"
)

// BatchTrace is everything one batch produced.
type BatchTrace struct {
	Calls    []testutil.Call
	Outcomes []reconcile.Outcome
	// Err is the error that aborted the batch, if any.
	Err error
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool

	Batches []BatchTrace

	// Calls is the full trace across batches.
	Calls []testutil.Call

	// Reports are the successful upstream status reports, in order.
	Reports []reconcile.StatusReport

	// Ledger is the final ledger, ordered by key.
	Ledger []ledger.Entry

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Entry returns the final ledger entry for key, or nil.
func (r *Result) Entry(key string) *ledger.Entry {
	for i := range r.Ledger {
		if r.Ledger[i].Key == key {
			return &r.Ledger[i]
		}
	}
	return nil
}

// Snapshot renders the trace, outcomes and final ledger as text for golden
// comparison. Timestamps are left out so the output is stable.
func (r *Result) Snapshot(name string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)
	for i, batch := range r.Batches {
		fmt.Fprintf(&b, "batch %d\n", i+1)
		for _, c := range batch.Calls {
			fmt.Fprintf(&b, "  %s\n", c)
		}
		for _, o := range batch.Outcomes {
			fmt.Fprintf(&b, "  outcome %s\n", outcomeLine(o))
		}
		if batch.Err != nil {
			fmt.Fprintf(&b, "  aborted %s\n", batch.Err)
		}
	}
	b.WriteString("ledger\n")
	for _, e := range r.Ledger {
		fmt.Fprintf(&b, "  %s\n", entryLine(e))
	}
	return []byte(b.String())
}

func outcomeLine(o reconcile.Outcome) string {
	class := "ok"
	if !o.OK() {
		class = o.Class.String()
	}
	return strings.Join([]string{dash(o.EventID), dash(o.Key), dash(o.Kind.String()), dash(o.Action.String()), class}, " ")
}

func entryLine(e ledger.Entry) string {
	parts := []string{
		e.Key,
		"state=" + string(ledger.StateOf(&e)),
		"id=" + dash(e.DownstreamIDOrEmpty()),
		"previous=" + dash(e.PreviousDownstreamID),
		fmt.Sprintf("group=%t", e.GroupAssigned),
		"reported=" + dash(e.ReportedStatus),
		"last=" + dash(e.LastAppliedEventKind),
	}
	if e.Rejection != nil {
		parts = append(parts, "rejected")
	}
	if e.SupersededBy != "" {
		parts = append(parts, "superseded_by="+e.SupersededBy)
	}
	return strings.Join(parts, " ")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
