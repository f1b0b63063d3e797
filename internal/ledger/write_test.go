package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gatesync/internal/fault"
)

func TestPutGet_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := testEntry("W1")
	e.ImageRefs = map[string]string{"https://img/face.jpg": "/var/cache/face.jpg"}
	e.Rejection = &Rejection{Fingerprint: "abc", Reason: "invalid personCode", At: e.UpdatedAt}

	require.NoError(t, s.Put(ctx, e))

	got, err := s.Get(ctx, "W1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "W1", got.Key)
	assert.Equal(t, "N-W1", got.NationalID)
	require.NotNil(t, got.DownstreamID)
	assert.Equal(t, "hik-W1", *got.DownstreamID)
	assert.False(t, got.DownstreamDeleted)
	assert.True(t, got.GroupAssigned)
	assert.True(t, got.Window.From.Equal(e.Window.From))
	assert.True(t, got.Window.To.Equal(e.Window.To))
	_, offset := got.Window.From.Zone()
	assert.Equal(t, 2*60*60, offset, "fixed offset must survive storage")
	assert.Equal(t, "created", got.LastAppliedEventKind)
	assert.Equal(t, "approved", got.ReportedStatus)
	assert.Equal(t, e.ImageRefs, got.ImageRefs)
	require.NotNil(t, got.Rejection)
	assert.Equal(t, "abc", got.Rejection.Fingerprint)
	assert.Equal(t, "invalid personCode", got.Rejection.Reason)
	assert.Equal(t, StateActive, StateOf(got))
}

func TestGet_Missing(t *testing.T) {
	s := openTestStore(t)

	got, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, StateUnknown, StateOf(got))
}

func TestPut_UpsertKeepsCreatedAt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := testEntry("W1")
	require.NoError(t, s.Put(ctx, e))

	e.DownstreamDeleted = true
	e.PreviousDownstreamID = *e.DownstreamID
	e.DownstreamID = nil
	e.CreatedAt = time.Time{}
	e.UpdatedAt = e.UpdatedAt.Add(time.Hour)
	require.NoError(t, s.Put(ctx, e))

	got, err := s.Get(ctx, "W1")
	require.NoError(t, err)
	assert.Nil(t, got.DownstreamID)
	assert.Equal(t, "hik-W1", got.PreviousDownstreamID)
	assert.True(t, got.DownstreamDeleted)
	assert.Equal(t, StateDeleted, StateOf(got))
	assert.True(t, got.CreatedAt.Before(got.UpdatedAt), "created_at must not move on update")

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPut_EmptyKey(t *testing.T) {
	s := openTestStore(t)
	err := s.Put(context.Background(), Entry{})
	require.Error(t, err)
	assert.True(t, fault.IsLedgerIO(err))
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestPut_ClosedStoreIsLedgerIO(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())

	err := s.Put(context.Background(), testEntry("W1"))
	require.Error(t, err)
	assert.True(t, fault.IsLedgerIO(err))
}

func TestAdopt_MovesRowAndRetiresOldKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := testEntry("W-old")
	old.NationalID = "N1"
	require.NoError(t, s.Put(ctx, old))

	adopted := old.Clone()
	adopted.Key = "W-new"
	adopted.UpdatedAt = old.UpdatedAt.Add(time.Minute)
	require.NoError(t, s.Adopt(ctx, "W-old", *adopted))

	got, err := s.Get(ctx, "W-new")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hik-W-old", got.DownstreamIDOrEmpty())

	retired, err := s.Get(ctx, "W-old")
	require.NoError(t, err)
	require.NotNil(t, retired)
	assert.Equal(t, "W-new", retired.SupersededBy)
	assert.False(t, retired.HasDownstreamID())

	byNational, err := s.GetByNationalID(ctx, "N1")
	require.NoError(t, err)
	require.NotNil(t, byNational)
	assert.Equal(t, "W-new", byNational.Key, "superseded rows are not national-id matches")
}

func TestAdopt_MissingOldKey(t *testing.T) {
	s := openTestStore(t)
	err := s.Adopt(context.Background(), "ghost", testEntry("W1"))
	require.Error(t, err)
	assert.True(t, fault.IsLedgerIO(err))

	got, err := s.Get(context.Background(), "W1")
	require.NoError(t, err)
	assert.Nil(t, got, "failed adopt must roll back the new row")
}
