package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/gatesync/internal/fault"
)

const selectColumns = `
	key, national_id, downstream_id, previous_downstream_id, downstream_deleted,
	group_assigned, valid_from, valid_to, last_event_kind, reported_status,
	image_refs, superseded_by, rejected_fingerprint, rejected_reason, rejected_at,
	created_at, updated_at`

// Get returns the entry stored under key, or nil when there is none.
// Superseded rows are returned as stored; callers follow SupersededBy.
func (s *Store) Get(ctx context.Context, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM ledger_entries WHERE key = ?`, key)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.LedgerIO("get", fmt.Errorf("key %s: %w", key, err))
	}
	return e, nil
}

// GetByNationalID returns the live (not superseded) entry with the given
// national ID, or nil. If several exist the most recently updated wins.
func (s *Store) GetByNationalID(ctx context.Context, nationalID string) (*Entry, error) {
	if nationalID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM ledger_entries
		WHERE national_id = ? AND superseded_by = ''
		ORDER BY updated_at DESC, key COLLATE BINARY ASC
		LIMIT 1
	`, nationalID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.LedgerIO("get by national id", fmt.Errorf("national id %s: %w", nationalID, err))
	}
	return e, nil
}

// List returns every entry ordered by key.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM ledger_entries ORDER BY key COLLATE BINARY ASC`)
	if err != nil {
		return nil, fault.LedgerIO("list", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fault.LedgerIO("list", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.LedgerIO("list", fmt.Errorf("iterate entries: %w", err))
	}
	return entries, nil
}

// Count returns the number of rows, superseded rows included.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_entries`).Scan(&n); err != nil {
		return 0, fault.LedgerIO("count", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e                           Entry
		downstreamID                sql.NullString
		deleted, grouped            int
		validFrom, validTo          string
		imageRefs                   string
		rejFingerprint, rejReason   string
		rejAt, createdAt, updatedAt string
	)
	err := row.Scan(
		&e.Key, &e.NationalID, &downstreamID, &e.PreviousDownstreamID, &deleted,
		&grouped, &validFrom, &validTo, &e.LastAppliedEventKind, &e.ReportedStatus,
		&imageRefs, &e.SupersededBy, &rejFingerprint, &rejReason, &rejAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if downstreamID.Valid {
		id := downstreamID.String
		e.DownstreamID = &id
	}
	e.DownstreamDeleted = deleted != 0
	e.GroupAssigned = grouped != 0

	if e.Window.From, err = parseTime(validFrom); err != nil {
		return nil, fmt.Errorf("valid_from: %w", err)
	}
	if e.Window.To, err = parseTime(validTo); err != nil {
		return nil, fmt.Errorf("valid_to: %w", err)
	}
	if e.ImageRefs, err = unmarshalImageRefs(imageRefs); err != nil {
		return nil, err
	}
	if rejFingerprint != "" {
		at, err := parseTime(rejAt)
		if err != nil {
			return nil, fmt.Errorf("rejected_at: %w", err)
		}
		e.Rejection = &Rejection{Fingerprint: rejFingerprint, Reason: rejReason, At: at}
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}
	return &e, nil
}
