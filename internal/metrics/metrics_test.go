package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveOutcome(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveOutcome("created", "create", "")
	m.ObserveOutcome("created", "create", "")
	m.ObserveOutcome("blocked", "delete", "TRANSIENT")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("created", "create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("blocked", "delete", "TRANSIENT")))
}

func TestObserveCycle(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCycle(250*time.Millisecond, 4)
	m.ObserveCycle(time.Second, 1)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.CycleEvents))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CycleDuration))
}

func TestObserveHTTP(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveHTTP("upstream", 200)
	m.ObserveHTTP("hikcentral", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("upstream", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("hikcentral", "error")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveOutcome("created", "create", "")
	m.ObserveCycle(time.Second, 1)
	m.ObserveHTTP("upstream", 500)
	assert.NotNil(t, m.Handler())
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveOutcome("deleted", "delete", "")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `gatesync_reconcile_outcomes_total{action="delete",class="ok",kind="deleted"} 1`)
}
