package reconcile

import (
	"context"

	"github.com/roach88/gatesync/internal/entity"
	"github.com/roach88/gatesync/internal/ledger"
)

// Downstream is the access-control system persons are provisioned into.
// Implementations return fault.Transient or fault.Rejected errors; anything
// unclassified is treated as transient.
type Downstream interface {
	// Create adds the person and returns the downstream ID.
	Create(ctx context.Context, rec entity.Record) (string, error)
	Update(ctx context.Context, id string, rec entity.Record) error
	Delete(ctx context.Context, id string) error
	AssignToGroup(ctx context.Context, id, groupID string) error
}

// StatusReport is what the engine tells the upstream registry about a person.
type StatusReport struct {
	ExternalID   string
	Status       entity.Status
	DownstreamID string
	Reason       string
}

// Upstream receives status reports.
type Upstream interface {
	SetStatus(ctx context.Context, report StatusReport) error
}

// Ledger is the durable per-person state. *ledger.Store implements it.
type Ledger interface {
	Get(ctx context.Context, key string) (*ledger.Entry, error)
	GetByNationalID(ctx context.Context, nationalID string) (*ledger.Entry, error)
	Put(ctx context.Context, e ledger.Entry) error
	Adopt(ctx context.Context, oldKey string, e ledger.Entry) error
}

// ImageResolver turns an upstream image reference into a local one.
type ImageResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Observer receives one call per processed person. *metrics.Metrics
// implements it.
type Observer interface {
	ObserveOutcome(kind, action, class string)
}

var _ Ledger = (*ledger.Store)(nil)
