package reconcile_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/gatesync/internal/event"
	"github.com/roach88/gatesync/internal/ledger"
	"github.com/roach88/gatesync/internal/reconcile"
	"github.com/roach88/gatesync/internal/testutil"
	"github.com/roach88/gatesync/internal/window"
)

var zone = time.FixedZone("+02:00", 2*60*60)

const groupID = "G1"

type fixture struct {
	store      *ledger.Store
	recorder   *testutil.Recorder
	downstream *testutil.FakeDownstream
	upstream   *testutil.FakeUpstream
	clock      *testutil.DeterministicClock
	engine     *reconcile.Engine
}

func normalizer() *event.Normalizer {
	return event.NewNormalizer(event.Defaults{
		Window: window.Window{
			From: time.Date(2025, 1, 1, 0, 0, 0, 0, zone),
			To:   time.Date(2035, 12, 31, 23, 59, 59, 0, zone),
		},
		Zone: zone,
	})
}

func newFixture(t *testing.T, opts ...reconcile.Option) *fixture {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return newFixtureWithLedger(t, store, store, opts...)
}

func newFixtureWithLedger(t *testing.T, store *ledger.Store, l reconcile.Ledger, opts ...reconcile.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    store,
		recorder: testutil.NewRecorder(),
		clock:    testutil.NewDeterministicClock(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC), time.Second),
	}
	f.downstream = testutil.NewFakeDownstream(f.recorder)
	f.upstream = testutil.NewFakeUpstream(f.recorder)

	base := []reconcile.Option{
		reconcile.WithGroupID(groupID),
		reconcile.WithNow(f.clock.Now),
		reconcile.WithLogger(slog.New(slog.DiscardHandler)),
	}
	f.engine = reconcile.New(l, f.downstream, f.upstream, normalizer(), append(base, opts...)...)
	return f
}

func (f *fixture) process(t *testing.T, envs ...event.Envelope) reconcile.BatchReport {
	t.Helper()
	report, err := f.engine.ProcessBatch(context.Background(), envs)
	require.NoError(t, err)
	return report
}

func (f *fixture) entry(t *testing.T, key string) *ledger.Entry {
	t.Helper()
	e, err := f.store.Get(context.Background(), key)
	require.NoError(t, err)
	return e
}

var seq int

// env builds an envelope whose payload is the JSON encoding of data.
func env(kind event.Kind, data any) event.Envelope {
	seq++
	payload, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	return event.Envelope{ID: fmt.Sprintf("evt-%d", seq), Kind: kind, Payload: payload}
}

type person map[string]any

func worker(id, nationalID string) person {
	p := person{"fullName": "Test Worker " + id}
	if id != "" {
		p["id"] = id
	}
	if nationalID != "" {
		p["nationalIdNumber"] = nationalID
	}
	return p
}

func (p person) with(key string, value any) person {
	c := make(person, len(p)+1)
	for k, v := range p {
		c[k] = v
	}
	c[key] = value
	return c
}
