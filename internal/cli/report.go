package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/roach88/gatesync/internal/fault"
	"github.com/roach88/gatesync/internal/reconcile"
)

// outcomeView is the printable form of one reconcile.Outcome.
type outcomeView struct {
	EventID    string `json:"event_id"`
	ExternalID string `json:"external_id,omitempty"`
	Key        string `json:"key,omitempty"`
	Kind       string `json:"kind"`
	Action     string `json:"action"`
	Class      string `json:"class"`
	Error      string `json:"error,omitempty"`
}

// reportView summarizes one applied batch.
type reportView struct {
	Events    int            `json:"events"`
	Outcomes  []outcomeView  `json:"outcomes"`
	Actions   map[string]int `json:"actions"`
	Transient int            `json:"transient"`
	Rejected  int            `json:"rejected"`
	Malformed int            `json:"malformed"`
}

func newReportView(events int, r reconcile.BatchReport) reportView {
	v := reportView{
		Events:    events,
		Outcomes:  make([]outcomeView, 0, len(r.Outcomes)),
		Actions:   make(map[string]int),
		Transient: r.Count(fault.ClassTransient),
		Rejected:  r.Count(fault.ClassRejected),
		Malformed: r.Count(fault.ClassMalformed),
	}
	for _, o := range r.Outcomes {
		ov := outcomeView{
			EventID:    o.EventID,
			ExternalID: o.ExternalID,
			Key:        o.Key,
			Kind:       o.Kind.String(),
			Action:     o.Action.String(),
			Class:      o.Class.String(),
		}
		if o.Err != nil {
			ov.Error = o.Err.Error()
		}
		v.Outcomes = append(v.Outcomes, ov)
	}
	for action, n := range r.Actions() {
		v.Actions[action.String()] = n
	}
	return v
}

func (v reportView) WriteText(w io.Writer) error {
	if len(v.Outcomes) == 0 {
		_, err := fmt.Fprintf(w, "%d events, nothing to apply\n", v.Events)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT\tKEY\tKIND\tACTION\tRESULT")
	for _, o := range v.Outcomes {
		result := "ok"
		if o.Class != fault.ClassNone.String() {
			result = o.Class + ": " + o.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", o.EventID, dash(o.Key), o.Kind, o.Action, result)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\n%d events, %d outcomes: %d created, %d updated, %d deleted; %d transient, %d rejected, %d malformed\n",
		v.Events, len(v.Outcomes),
		v.Actions[reconcile.ActionCreate.String()],
		v.Actions[reconcile.ActionUpdate.String()],
		v.Actions[reconcile.ActionDelete.String()],
		v.Transient, v.Rejected, v.Malformed,
	)
	return err
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
