package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "gatesync", cmd.Use)
	assert.Contains(t, cmd.Long, "HikCentral")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"run"}, {"sync"}, {"apply"}, {"test"}, {"validate-config"},
		{"ledger"}, {"ledger", "list"}, {"ledger", "show"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	require.NotNil(t, cmd.PersistentFlags().Lookup("env-file"))
}

func TestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	tests := []struct {
		path []string
		flag string
	}{
		{[]string{"apply"}, "report"},
		{[]string{"test"}, "update"},
		{[]string{"test"}, "filter"},
		{[]string{"test"}, "golden-dir"},
		{[]string{"validate-config"}, "offline"},
		{[]string{"ledger", "list"}, "all"},
	}
	for _, tt := range tests {
		sub, _, err := cmd.Find(tt.path)
		require.NoError(t, err)
		assert.NotNil(t, sub.Flags().Lookup(tt.flag), "%v --%s", tt.path, tt.flag)
	}

	ledgerCmd, _, err := cmd.Find([]string{"ledger"})
	require.NoError(t, err)
	assert.NotNil(t, ledgerCmd.PersistentFlags().Lookup("db"))
}

func TestInvalidFormat(t *testing.T) {
	isolateEnv(t)

	_, _, err := execute(t, "validate-config", "--format", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestArgumentErrors(t *testing.T) {
	tests := [][]string{
		{"apply"},
		{"ledger", "show"},
		{"sync", "extra"},
		{"run", "--no-such-flag"},
	}
	for _, args := range tests {
		_, _, err := execute(t, args...)
		require.Error(t, err, "%v", args)
		assert.Equal(t, ExitCommandError, GetExitCode(err), "%v", args)
	}
}
