package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes content to dir/name and returns the path.
func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "test.yaml", `
name: test_scenario
description: "Test scenario for validation"
platform: stx7111
depth: standby
wake_events: [0x300, 0x5a0]
registers:
  0xfe213014: 0x1
halt_writes:
  - addr: 0xfd000204
    value: 0x8
listener:
  again: 1
limits:
  max_attempts: 3
assertions:
  - type: outcome
    outcome: ok
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Equal(t, "stx7111", scenario.Platform)
	assert.Equal(t, []uint32{0x300, 0x5a0}, scenario.WakeEvents)
	assert.Equal(t, uint32(0x1), scenario.Registers[0xfe213014])
	require.Len(t, scenario.HaltWrites, 1)
	assert.Equal(t, uint32(0xfd000204), scenario.HaltWrites[0].Addr)
	assert.Equal(t, 1, scenario.Listener.Again)
	assert.Equal(t, 3, scenario.Limits.MaxAttempts)
	assert.Len(t, scenario.Assertions, 1)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
description: "x"
platform: stx7111
depth: standby
assertions: [{type: outcome, outcome: ok}]
`,
			wantErr: "name is required",
		},
		{
			name: "missing description",
			content: `
name: x
platform: stx7111
depth: standby
assertions: [{type: outcome, outcome: ok}]
`,
			wantErr: "description is required",
		},
		{
			name: "missing platform",
			content: `
name: x
description: "x"
depth: standby
assertions: [{type: outcome, outcome: ok}]
`,
			wantErr: "platform is required",
		},
		{
			name: "bad depth",
			content: `
name: x
description: "x"
platform: stx7111
depth: hibernate
assertions: [{type: outcome, outcome: ok}]
`,
			wantErr: "depth",
		},
		{
			name: "missing assertions",
			content: `
name: x
description: "x"
platform: stx7111
depth: standby
assertions: []
`,
			wantErr: "assertions list is required",
		},
		{
			name: "negative limits",
			content: `
name: x
description: "x"
platform: stx7111
depth: standby
limits: {poll_limit: -1}
assertions: [{type: outcome, outcome: ok}]
`,
			wantErr: "limits must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseScenario_MalformedYAML(t *testing.T) {
	_, err := ParseScenario([]byte("name: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_UnknownFieldsRejected(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: x
description: "x"
platform: stx7111
depth: standby
wake_event: 0x300
assertions: [{type: outcome, outcome: ok}]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wake_event")
}

func TestParseScenario_AssertionValidation(t *testing.T) {
	tests := []struct {
		name      string
		assertion string
		wantErr   string
	}{
		{"missing type", `{outcome: ok}`, "type is required"},
		{"unknown type", `{type: trace_length}`, "unknown assertion type"},
		{"outcome without value", `{type: outcome}`, "outcome is required"},
		{"unknown outcome", `{type: outcome, outcome: EXPLODED}`, "unknown outcome"},
		{"call out of range", `{type: outcome, outcome: ok, call: 2}`, "call 2 out of range"},
		{"wake cause empty", `{type: wake_cause}`, "raw or logical is required"},
		{"trace_contains without state", `{type: trace_contains}`, "state is required"},
		{"trace_order without states", `{type: trace_order}`, "states list is required"},
		{"trace_count without count", `{type: trace_count, state: done}`, "count must be non-negative"},
		{"trace_count negative", `{type: trace_count, state: done, count: -1}`, "count must be non-negative"},
		{"register_write without addr", `{type: register_write, value: 1}`, "addr is required"},
		{"final_registers empty", `{type: final_registers}`, "registers is required"},
		{"halts without count", `{type: halts}`, "count must be non-negative"},
		{"final_state without table", `{type: final_state, expect: {outcome: ok}}`, "table is required"},
		{"final_state without expect", `{type: final_state, table: transactions}`, "expect is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := `
name: x
description: "x"
platform: stx7111
depth: standby
assertions:
  - ` + tt.assertion + "\n"
			_, err := ParseScenario([]byte(content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseScenario_ErrorCodeOutcomesAccepted(t *testing.T) {
	for _, outcome := range []string{"ok", "VETOED", "POLL_LIMIT", "HARDWARE_TIMEOUT", "NOT_SUPPORTED"} {
		_, err := ParseScenario([]byte(`
name: x
description: "x"
platform: stx7111
depth: standby
assertions: [{type: outcome, outcome: ` + outcome + `}]
`))
		assert.NoError(t, err, outcome)
	}
}

func TestParseScenario_CallRangeFollowsEnter(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: x
description: "x"
platform: stx7111
depth: standby
enter: 3
assertions: [{type: outcome, outcome: ok, call: 3}]
`))
	require.NoError(t, err)
	assert.Equal(t, 3, scenario.calls())
}

func TestParseScenario_TraceCountZeroAllowed(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: x
description: "x"
platform: stx7111
depth: standby
assertions: [{type: trace_count, state: execute_suspend_leg, count: 0}]
`))
	require.NoError(t, err)
	require.NotNil(t, scenario.Assertions[0].Count)
	assert.Equal(t, 0, *scenario.Assertions[0].Count)
}

func TestLoadScenario_PlatformDirRelativeToFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "boards"), 0755))
	path := writeScenario(t, dir, "test.yaml", `
name: x
description: "x"
platform: devboard
platform_dir: boards
depth: self_refresh
assertions: [{type: outcome, outcome: ok}]
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "boards"), scenario.PlatformDir)
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	dir := t.TempDir()
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "boards"), 0755))
	path := writeScenario(t, dir, "test.yaml", `
name: x
description: "x"
platform: devboard
platform_dir: boards
depth: self_refresh
assertions: [{type: outcome, outcome: ok}]
`)

	scenario, err := LoadScenarioWithBasePath(path, base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "boards"), scenario.PlatformDir)
}

func TestLoadScenario_PlatformDirMissing(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "test.yaml", `
name: x
description: "x"
platform: devboard
platform_dir: nowhere
depth: self_refresh
assertions: [{type: outcome, outcome: ok}]
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "platform_dir not found")
}

func TestLoadExampleScenarios(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		t.Run(filepath.Base(f), func(t *testing.T) {
			_, err := LoadScenario(f)
			require.NoError(t, err)
		})
	}
}

func TestAssertionConstants(t *testing.T) {
	assert.Equal(t, "outcome", AssertOutcome)
	assert.Equal(t, "wake_cause", AssertWakeCause)
	assert.Equal(t, "trace_contains", AssertTraceContains)
	assert.Equal(t, "trace_order", AssertTraceOrder)
	assert.Equal(t, "trace_count", AssertTraceCount)
	assert.Equal(t, "register_write", AssertRegisterWrite)
	assert.Equal(t, "final_registers", AssertFinalRegisters)
	assert.Equal(t, "halts", AssertHalts)
	assert.Equal(t, "final_state", AssertFinalState)
}
