package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/gatesync/internal/fault"
)

const upsertSQL = `
	INSERT INTO ledger_entries (
		key, national_id, downstream_id, previous_downstream_id, downstream_deleted,
		group_assigned, valid_from, valid_to, last_event_kind, reported_status,
		image_refs, superseded_by, rejected_fingerprint, rejected_reason, rejected_at,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		national_id            = excluded.national_id,
		downstream_id          = excluded.downstream_id,
		previous_downstream_id = excluded.previous_downstream_id,
		downstream_deleted     = excluded.downstream_deleted,
		group_assigned         = excluded.group_assigned,
		valid_from             = excluded.valid_from,
		valid_to               = excluded.valid_to,
		last_event_kind        = excluded.last_event_kind,
		reported_status        = excluded.reported_status,
		image_refs             = excluded.image_refs,
		superseded_by          = excluded.superseded_by,
		rejected_fingerprint   = excluded.rejected_fingerprint,
		rejected_reason        = excluded.rejected_reason,
		rejected_at            = excluded.rejected_at,
		updated_at             = excluded.updated_at
`

// ErrEmptyKey is returned when an entry without a key is written.
var ErrEmptyKey = errors.New("ledger entry has empty key")

// Put inserts or replaces the entry stored under e.Key. The write is committed
// and durable when Put returns nil. CreatedAt is kept from the first insert.
func (s *Store) Put(ctx context.Context, e Entry) error {
	if e.Key == "" {
		return fault.LedgerIO("put", ErrEmptyKey)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fault.LedgerIO("put", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() // No-op if committed

	if err := upsert(ctx, tx, e); err != nil {
		return fault.LedgerIO("put", err)
	}

	if err := tx.Commit(); err != nil {
		return fault.LedgerIO("put", fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Adopt stores e under its (new) key and marks oldKey as superseded by it, in
// one transaction. The old row keeps its history but loses its downstream ID,
// so exactly one row refers to the downstream person.
func (s *Store) Adopt(ctx context.Context, oldKey string, e Entry) error {
	if e.Key == "" || oldKey == "" {
		return fault.LedgerIO("adopt", ErrEmptyKey)
	}
	if oldKey == e.Key {
		return s.Put(ctx, e)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fault.LedgerIO("adopt", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() // No-op if committed

	if err := upsert(ctx, tx, e); err != nil {
		return fault.LedgerIO("adopt", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE ledger_entries
		SET superseded_by = ?, downstream_id = NULL, updated_at = ?
		WHERE key = ?
	`, e.Key, formatTime(e.UpdatedAt), oldKey)
	if err != nil {
		return fault.LedgerIO("adopt", fmt.Errorf("retire %s: %w", oldKey, err))
	}
	if n, err := res.RowsAffected(); err != nil {
		return fault.LedgerIO("adopt", fmt.Errorf("rows affected: %w", err))
	} else if n == 0 {
		return fault.LedgerIO("adopt", fmt.Errorf("retire %s: %w", oldKey, sql.ErrNoRows))
	}

	if err := tx.Commit(); err != nil {
		return fault.LedgerIO("adopt", fmt.Errorf("commit: %w", err))
	}
	return nil
}

func upsert(ctx context.Context, tx *sql.Tx, e Entry) error {
	refs, err := marshalImageRefs(e.ImageRefs)
	if err != nil {
		return err
	}

	var rejFingerprint, rejReason, rejAt string
	if e.Rejection != nil {
		rejFingerprint = e.Rejection.Fingerprint
		rejReason = e.Rejection.Reason
		rejAt = formatTime(e.Rejection.At)
	}

	created := e.CreatedAt
	if created.IsZero() {
		created = e.UpdatedAt
	}

	_, err = tx.ExecContext(ctx, upsertSQL,
		e.Key,
		e.NationalID,
		nullString(e.DownstreamID),
		e.PreviousDownstreamID,
		boolToInt(e.DownstreamDeleted),
		boolToInt(e.GroupAssigned),
		formatTime(e.Window.From),
		formatTime(e.Window.To),
		e.LastAppliedEventKind,
		e.ReportedStatus,
		refs,
		e.SupersededBy,
		rejFingerprint,
		rejReason,
		rejAt,
		formatTime(created),
		formatTime(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", e.Key, err)
	}
	return nil
}
