package reconcile

import (
	"errors"

	"github.com/roach88/gatesync/internal/event"
	"github.com/roach88/gatesync/internal/fault"
)

// Action is what the engine did for one person.
type Action string

const (
	// ActionCreate provisions a new downstream person.
	ActionCreate Action = "create"
	// ActionUpdate rewrites an existing downstream person.
	ActionUpdate Action = "update"
	// ActionDelete removes the downstream person.
	ActionDelete Action = "delete"
	// ActionRecord touches the ledger only.
	ActionRecord Action = "record"
	// ActionSkip does nothing: malformed input or a previously rejected payload.
	ActionSkip Action = "skip"
)

func (a Action) String() string {
	return string(a)
}

// ErrPreviouslyRejected marks an item whose exact payload was already
// rejected downstream.
var ErrPreviouslyRejected = errors.New("payload previously rejected downstream")

// Outcome is the result of processing one person item.
type Outcome struct {
	EventID    string
	ExternalID string
	Key        string
	Kind       event.Kind
	Action     Action
	// Class is fault.ClassNone on success.
	Class fault.Class
	Err   error
}

// OK reports whether the item completed without a classified failure.
func (o Outcome) OK() bool {
	return o.Class == fault.ClassNone
}

// BatchReport lists one Outcome per item, in processing order.
type BatchReport struct {
	Outcomes []Outcome
}

// Count returns the number of outcomes with the given class.
func (r BatchReport) Count(class fault.Class) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Class == class {
			n++
		}
	}
	return n
}

// Actions returns the number of outcomes per action.
func (r BatchReport) Actions() map[Action]int {
	counts := make(map[Action]int)
	for _, o := range r.Outcomes {
		counts[o.Action]++
	}
	return counts
}

// Failed reports whether any outcome carries a failure class.
func (r BatchReport) Failed() bool {
	for _, o := range r.Outcomes {
		if !o.OK() {
			return true
		}
	}
	return false
}
