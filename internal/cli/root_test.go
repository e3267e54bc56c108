package cli

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "lpsuspend", cmd.Use)
	assert.Contains(t, cmd.Long, "self-refresh")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"enter", "inspect", "validate", "test", "journal"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
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
}

func TestEnterCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	enterCmd, _, err := cmd.Find([]string{"enter"})
	require.NoError(t, err)

	depthFlag := enterCmd.Flags().Lookup("depth")
	require.NotNil(t, depthFlag)
	assert.Equal(t, "self_refresh", depthFlag.DefValue)

	dbFlag := enterCmd.Flags().Lookup("db")
	require.NotNil(t, dbFlag)
	// Journaling is opt-in
	assert.Equal(t, "", dbFlag.DefValue)

	for _, name := range []string{"platform", "platform-dir", "wake-event", "wake-device", "again", "veto",
		"max-attempts", "poll-limit", "lock-poll-limit", "mem", "mem-base", "mem-size", "mem-offset"} {
		assert.NotNil(t, enterCmd.Flags().Lookup(name), name)
	}
}

func TestInspectCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	inspectCmd, _, err := cmd.Find([]string{"inspect"})
	require.NoError(t, err)

	for _, name := range []string{"platform-dir", "wake", "disasm", "packed"} {
		assert.NotNil(t, inspectCmd.Flags().Lookup(name), name)
	}
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	filterFlag := testCmd.Flags().Lookup("filter")
	require.NotNil(t, filterFlag)

	jobsFlag := testCmd.Flags().Lookup("jobs")
	require.NotNil(t, jobsFlag)
	assert.Equal(t, "j", jobsFlag.Shorthand)
	assert.Equal(t, "1", jobsFlag.DefValue)
}

func TestJournalCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	journalCmd, _, err := cmd.Find([]string{"journal"})
	require.NoError(t, err)

	for _, name := range []string{"db", "tx", "platform", "outcome", "limit", "stats"} {
		assert.NotNil(t, journalCmd.Flags().Lookup(name), name)
	}
}

func TestCommandHelp(t *testing.T) {
	cmd := NewRootCommand()

	assert.Contains(t, cmd.Short, "lpsuspend")
	assert.Contains(t, cmd.Long, "clock tree")
}

func TestFormatValidation(t *testing.T) {
	// Test valid formats
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	// Test invalid formats
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "validate"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootRunsValidate(t *testing.T) {
	cmd := NewRootCommand()
	out, _, err := execute(cmd, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "All platforms valid")
}

func TestVersionFlag(t *testing.T) {
	cmd := NewRootCommand()
	out, _, err := execute(cmd, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "lpsuspend version 0.1.0 (table format 1)")
}

func TestSetupLoggingLevels(t *testing.T) {
	var buf bytes.Buffer
	setupLogging(&buf, false)
	slog.Debug("hidden")
	slog.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	setupLogging(&buf, true)
	slog.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
	t.Cleanup(func() { setupLogging(io.Discard, false) })
}
