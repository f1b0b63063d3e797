package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/gatesync/internal/ledger"
	"github.com/roach88/gatesync/internal/testutil"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string          // Assertion type for categorization
	Expected string          // Human-readable expected outcome
	Actual   string          // Human-readable actual outcome
	Calls    []testutil.Call // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Calls) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, c := range e.Calls {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, c)
		}
	}
	return buf.String()
}

// assertCallCount checks that a call occurs exactly Count times, optionally
// for one key only. Failed calls count.
func assertCallCount(calls []testutil.Call, a Assertion) error {
	count := 0
	for _, c := range calls {
		if c.Name() == a.Call && (a.Key == "" || c.Key == a.Key) {
			count++
		}
	}
	if count != a.Count {
		what := a.Call
		if a.Key != "" {
			what += " for " + a.Key
		}
		return &AssertionError{
			Type:     AssertCallCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, what),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Calls:    calls,
		}
	}
	return nil
}

// assertCallOrder checks that the calls appear as a subsequence of the trace.
// Intervening calls are allowed and names may repeat.
func assertCallOrder(calls []testutil.Call, a Assertion) error {
	next := 0
	for _, c := range calls {
		if next < len(a.Calls) && c.Name() == a.Calls[next] {
			next++
		}
	}
	if next < len(a.Calls) {
		return &AssertionError{
			Type:     AssertCallOrder,
			Expected: fmt.Sprintf("calls in order: %v", a.Calls),
			Actual:   fmt.Sprintf("matched %d of %d, stuck at %s", next, len(a.Calls), a.Calls[next]),
			Calls:    calls,
		}
	}
	return nil
}

// ledgerFields are the entry fields ledger_state can check.
var ledgerFields = map[string]bool{
	"exists":                 true,
	"state":                  true,
	"downstream_id":          true,
	"previous_downstream_id": true,
	"group_assigned":         true,
	"reported_status":        true,
	"last_event":             true,
	"national_id":            true,
	"superseded_by":          true,
	"rejected":               true,
	"window_from":            true,
	"window_to":              true,
}

// ledgerView renders the checkable fields of e as strings.
func ledgerView(e *ledger.Entry) map[string]string {
	if e == nil {
		return map[string]string{"exists": "false", "state": string(ledger.StateUnknown)}
	}
	from, to := "", ""
	if !e.Window.From.IsZero() {
		from = e.Window.From.Format("2006-01-02T15:04:05Z07:00")
		to = e.Window.To.Format("2006-01-02T15:04:05Z07:00")
	}
	return map[string]string{
		"exists":                 "true",
		"state":                  string(ledger.StateOf(e)),
		"downstream_id":          e.DownstreamIDOrEmpty(),
		"previous_downstream_id": e.PreviousDownstreamID,
		"group_assigned":         fmt.Sprint(e.GroupAssigned),
		"reported_status":        e.ReportedStatus,
		"last_event":             e.LastAppliedEventKind,
		"national_id":            e.NationalID,
		"superseded_by":          e.SupersededBy,
		"rejected":               fmt.Sprint(e.Rejection != nil),
		"window_from":            from,
		"window_to":              to,
	}
}

// assertLedgerState compares the expected fields of one entry (subset match).
// Values compare by their string form, so YAML true and "true" are equal.
func assertLedgerState(result *Result, a Assertion) error {
	view := ledgerView(result.Entry(a.Key))

	fields := make([]string, 0, len(a.Expect))
	for f := range a.Expect {
		fields = append(fields, f)
	}
	slices.Sort(fields)

	for _, f := range fields {
		want := fmt.Sprint(a.Expect[f])
		if a.Expect[f] == nil {
			want = ""
		}
		if got := view[f]; got != want {
			return &AssertionError{
				Type:     AssertLedgerState,
				Expected: fmt.Sprintf("%s.%s = %q", a.Key, f, want),
				Actual:   fmt.Sprintf("%s.%s = %q", a.Key, f, got),
			}
		}
	}
	return nil
}

// assertStatusReports compares the exact sequence of successful reports for
// one external ID.
func assertStatusReports(result *Result, a Assertion) error {
	got := []string{}
	for _, r := range result.Reports {
		if r.ExternalID == a.ExternalID {
			got = append(got, r.Status.String())
		}
	}
	want := a.Statuses
	if want == nil {
		want = []string{}
	}
	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertStatusReports,
			Expected: fmt.Sprintf("statuses for %s: %v", a.ExternalID, want),
			Actual:   fmt.Sprintf("%v", got),
			Calls:    result.Calls,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertCallCount:
			err = assertCallCount(result.Calls, a)
		case AssertCallOrder:
			err = assertCallOrder(result.Calls, a)
		case AssertLedgerState:
			err = assertLedgerState(result, a)
		case AssertStatusReports:
			err = assertStatusReports(result, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
