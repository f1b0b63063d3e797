package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/gatesync/internal/ledger"
	"github.com/roach88/gatesync/internal/window"
)

// LedgerOptions holds flags for the ledger commands.
type LedgerOptions struct {
	*RootOptions
	Database string
	All      bool
}

// NewLedgerCommand creates the ledger command group.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the reconciliation ledger",
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite ledger (default ledger.path from config)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List ledger entries",
		Long: `List every person in the ledger with its derived state.

Rows superseded by a re-identified person are hidden unless --all is given.

Example:
  gatesync ledger list
  gatesync ledger list --all --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedgerList(opts, cmd)
		},
	}
	list.Flags().BoolVar(&opts.All, "all", false, "include superseded rows")

	show := &cobra.Command{
		Use:   "show <key>",
		Short: "Show one ledger entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedgerShow(opts, args[0], cmd)
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func (o *LedgerOptions) open() (*ledger.Store, error) {
	path := o.Database
	if path == "" {
		cfg, err := o.loadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.Ledger.Path
	}
	st, err := ledger.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open ledger", err)
	}
	return st, nil
}

// entryView is the printable form of a ledger.Entry.
type entryView struct {
	Key                  string            `json:"key"`
	State                string            `json:"state"`
	NationalID           string            `json:"national_id,omitempty"`
	DownstreamID         string            `json:"downstream_id,omitempty"`
	PreviousDownstreamID string            `json:"previous_downstream_id,omitempty"`
	GroupAssigned        bool              `json:"group_assigned"`
	ValidFrom            string            `json:"valid_from,omitempty"`
	ValidTo              string            `json:"valid_to,omitempty"`
	LastEvent            string            `json:"last_event,omitempty"`
	ReportedStatus       string            `json:"reported_status,omitempty"`
	SupersededBy         string            `json:"superseded_by,omitempty"`
	RejectedReason       string            `json:"rejected_reason,omitempty"`
	Images               map[string]string `json:"images,omitempty"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

func newEntryView(e ledger.Entry) entryView {
	v := entryView{
		Key:                  e.Key,
		State:                string(ledger.StateOf(&e)),
		NationalID:           e.NationalID,
		DownstreamID:         e.DownstreamIDOrEmpty(),
		PreviousDownstreamID: e.PreviousDownstreamID,
		GroupAssigned:        e.GroupAssigned,
		LastEvent:            e.LastAppliedEventKind,
		ReportedStatus:       e.ReportedStatus,
		SupersededBy:         e.SupersededBy,
		Images:               e.ImageRefs,
		UpdatedAt:            e.UpdatedAt,
	}
	if !e.Window.From.IsZero() {
		v.ValidFrom = window.Format(e.Window.From)
		v.ValidTo = window.Format(e.Window.To)
	}
	if e.Rejection != nil {
		v.RejectedReason = e.Rejection.Reason
	}
	return v
}

func (v entryView) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	row := func(name, value string) {
		if value != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", name, value)
		}
	}
	row("key", v.Key)
	row("state", v.State)
	row("national id", v.NationalID)
	row("downstream id", v.DownstreamID)
	row("previous id", v.PreviousDownstreamID)
	row("group assigned", fmt.Sprint(v.GroupAssigned))
	if v.ValidFrom != "" {
		row("valid", v.ValidFrom+" .. "+v.ValidTo)
	}
	row("last event", v.LastEvent)
	row("reported", v.ReportedStatus)
	row("superseded by", v.SupersededBy)
	row("rejected", v.RejectedReason)
	refs := make([]string, 0, len(v.Images))
	for ref := range v.Images {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	for _, ref := range refs {
		row("image", ref+" -> "+v.Images[ref])
	}
	row("updated", v.UpdatedAt.UTC().Format(time.RFC3339))
	return tw.Flush()
}

type entryList []entryView

func (l entryList) WriteText(w io.Writer) error {
	if len(l) == 0 {
		_, err := fmt.Fprintln(w, "ledger is empty")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSTATE\tDOWNSTREAM\tREPORTED\tLAST EVENT\tNOTE")
	for _, v := range l {
		var notes []string
		if v.SupersededBy != "" {
			notes = append(notes, "superseded by "+v.SupersededBy)
		}
		if v.RejectedReason != "" {
			notes = append(notes, "rejected")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v.Key, v.State, dash(v.DownstreamID), dash(v.ReportedStatus), dash(v.LastEvent), strings.Join(notes, ", "))
	}
	return tw.Flush()
}

func runLedgerList(opts *LedgerOptions, cmd *cobra.Command) error {
	st, err := opts.open()
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.List(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list ledger", err)
	}
	views := make(entryList, 0, len(entries))
	for _, e := range entries {
		if e.SupersededBy != "" && !opts.All {
			continue
		}
		views = append(views, newEntryView(e))
	}
	return opts.formatter(cmd).Success(views)
}

func runLedgerShow(opts *LedgerOptions, key string, cmd *cobra.Command) error {
	st, err := opts.open()
	if err != nil {
		return err
	}
	defer st.Close()

	e, err := st.Get(cmd.Context(), key)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read ledger", err)
	}
	if e == nil {
		f := opts.formatter(cmd)
		_ = f.Error("E201", fmt.Sprintf("no ledger entry for %q", key), nil)
		return NewExitError(ExitFailure, fmt.Sprintf("no ledger entry for %q", key))
	}
	return opts.formatter(cmd).Success(newEntryView(*e))
}
