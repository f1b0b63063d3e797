package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSync_OneCycle(t *testing.T) {
	isolateEnv(t)
	srv := newFakeServers(t)
	cfg := writeConfig(t, srv, true)
	srv.queue(
		createdW1,
		`{"id":"e2","type":"worker.blocked","data":{"id":"W2","blockedReason":"left site"}}`,
	)

	out, _, err := execute(t, "sync", "--config", cfg, "--format", "json")
	require.NoError(t, err, out)

	var report reportView
	resp := decodeData(t, out, &report)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.CycleID)
	assert.Equal(t, 2, report.Events)
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, "create", report.Outcomes[0].Action)
	assert.Equal(t, "record", report.Outcomes[1].Action, "a never-provisioned worker needs no downstream call")

	statuses := srv.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "W1", statuses[0]["workerId"])

	out, _, err = execute(t, "sync", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "0 events, nothing to apply")
}

func TestSync_RequiresUpstream(t *testing.T) {
	isolateEnv(t)
	srv := newFakeServers(t)
	cfg := writeConfig(t, srv, false)

	_, _, err := execute(t, "sync", "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSync_FetchFailure(t *testing.T) {
	isolateEnv(t)
	srv := newFakeServers(t)
	cfg := writeConfig(t, srv, true)
	srv.srv.Close()

	_, _, err := execute(t, "sync", "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "fetch events")
}
