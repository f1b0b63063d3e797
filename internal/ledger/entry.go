package ledger

import (
	"time"

	"github.com/roach88/gatesync/internal/window"
)

// State is the reconciliation state derived from a ledger entry.
type State string

const (
	// StateUnknown means no entry exists for the person.
	StateUnknown State = "unknown"
	// StateActive means the person is expected to exist downstream.
	StateActive State = "active"
	// StateDeleted means a delete succeeded (or was never needed) and the
	// person must not exist downstream.
	StateDeleted State = "deleted"
)

// Rejection records an input the downstream system refused permanently.
// Redelivery of the same input (same fingerprint) is not retried.
type Rejection struct {
	Fingerprint string
	Reason      string
	At          time.Time
}

// Entry is the persisted reconciliation state of one person.
type Entry struct {
	Key        string
	NationalID string

	// DownstreamID is nil until the first successful create and is cleared
	// again by a successful delete.
	DownstreamID         *string
	PreviousDownstreamID string
	DownstreamDeleted    bool
	GroupAssigned        bool

	// Window is the merged validity window believed to be in effect downstream.
	Window window.Window

	// LastAppliedEventKind is diagnostic only.
	LastAppliedEventKind string
	ReportedStatus       string

	// ImageRefs maps an upstream image reference to its local cached copy.
	ImageRefs map[string]string

	// SupersededBy is set when the row was re-identified under another key.
	SupersededBy string

	Rejection *Rejection

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StateOf derives the reconciliation state of e. A nil entry, or one that
// never received a downstream ID (for example a rejected create), is Unknown.
func StateOf(e *Entry) State {
	switch {
	case e == nil:
		return StateUnknown
	case e.DownstreamDeleted:
		return StateDeleted
	case !e.HasDownstreamID():
		return StateUnknown
	default:
		return StateActive
	}
}

// HasDownstreamID reports whether a downstream person is recorded.
func (e *Entry) HasDownstreamID() bool {
	return e != nil && e.DownstreamID != nil && *e.DownstreamID != ""
}

// DownstreamIDOrEmpty returns the downstream ID or "".
func (e *Entry) DownstreamIDOrEmpty() string {
	if !e.HasDownstreamID() {
		return ""
	}
	return *e.DownstreamID
}

// Clone returns a deep copy, so callers can build a mutation without touching
// the entry they loaded.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	if e.DownstreamID != nil {
		id := *e.DownstreamID
		c.DownstreamID = &id
	}
	if e.ImageRefs != nil {
		c.ImageRefs = make(map[string]string, len(e.ImageRefs))
		for k, v := range e.ImageRefs {
			c.ImageRefs[k] = v
		}
	}
	if e.Rejection != nil {
		r := *e.Rejection
		c.Rejection = &r
	}
	return &c
}
