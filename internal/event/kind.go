package event

import (
	"fmt"
	"strings"
)

// Kind is the closed set of lifecycle event kinds the upstream registry emits.
type Kind string

const (
	KindCreated          Kind = "created"
	KindBulkCreated      Kind = "bulk_created"
	KindBlocked          Kind = "blocked"
	KindWorkersBlocked   Kind = "workers_blocked"
	KindUnblocked        Kind = "unblocked"
	KindWorkersUnblocked Kind = "workers_unblocked"
	KindDeleted          Kind = "deleted"
	KindWorkersDeleted   Kind = "workers_deleted"
	KindRevoked          Kind = "revoked"
	KindUpdated          Kind = "updated"
)

var kinds = map[Kind]Kind{
	KindCreated:          KindCreated,
	KindBulkCreated:      KindCreated,
	KindBlocked:          KindBlocked,
	KindWorkersBlocked:   KindBlocked,
	KindUnblocked:        KindUnblocked,
	KindWorkersUnblocked: KindUnblocked,
	KindDeleted:          KindDeleted,
	KindWorkersDeleted:   KindDeleted,
	KindRevoked:          KindRevoked,
	KindUpdated:          KindUpdated,
}

// ParseKind resolves a wire event type. Types may be prefixed with "worker."
// or "workers." (e.g. "worker.created", "workers.blocked"); the plural prefix
// selects the bulk variant where one exists.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	bulk := false
	switch {
	case strings.HasPrefix(name, "workers."):
		name = strings.TrimPrefix(name, "workers.")
		bulk = true
	case strings.HasPrefix(name, "worker."):
		name = strings.TrimPrefix(name, "worker.")
	}
	name = strings.ReplaceAll(name, "-", "_")

	k := Kind(name)
	if bulk {
		switch k {
		case KindCreated:
			k = KindBulkCreated
		case KindBlocked, KindUnblocked, KindDeleted:
			k = "workers_" + k
		default:
			return "", fmt.Errorf("unknown bulk event kind %q", s)
		}
	}
	if _, ok := kinds[k]; !ok {
		return "", fmt.Errorf("unknown event kind %q", s)
	}
	return k, nil
}

// Singular collapses a bulk kind to the per-person kind used for decisions.
func (k Kind) Singular() Kind {
	if s, ok := kinds[k]; ok {
		return s
	}
	return k
}

// IsBulk reports whether the kind carries a list of persons.
func (k Kind) IsBulk() bool {
	return k.Singular() != k
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

func (k Kind) String() string {
	return string(k)
}
