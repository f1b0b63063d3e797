package reconcile

import (
	"github.com/roach88/gatesync/internal/entity"
	"github.com/roach88/gatesync/internal/event"
	"github.com/roach88/gatesync/internal/ledger"
)

// decide maps (state, kind) to an action.
//
//	Unknown  created/unblocked/updated  -> create
//	Unknown  blocked/deleted/revoked    -> record (deleted, nothing downstream)
//	Active   created/unblocked/updated  -> update
//	Active   blocked/deleted/revoked    -> delete
//	Deleted  created/unblocked          -> create
//	Deleted  anything else              -> record
func decide(state ledger.State, kind event.Kind) Action {
	switch state {
	case ledger.StateActive:
		if provisions(kind) {
			return ActionUpdate
		}
		return ActionDelete
	case ledger.StateDeleted:
		if kind == event.KindCreated || kind == event.KindUnblocked {
			return ActionCreate
		}
		return ActionRecord
	default:
		if provisions(kind) {
			return ActionCreate
		}
		return ActionRecord
	}
}

// provisions reports whether kind asks for the person to be present downstream.
func provisions(kind event.Kind) bool {
	switch kind {
	case event.KindCreated, event.KindUnblocked, event.KindUpdated:
		return true
	}
	return false
}

// removalReason is the reason sent upstream when a person is removed.
func removalReason(kind event.Kind, rec entity.Record) string {
	switch kind {
	case event.KindDeleted:
		return "deleted"
	case event.KindRevoked:
		return "revoked"
	}
	if rec.BlockedReason != "" {
		return rec.BlockedReason
	}
	return "blocked"
}
