package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const harnessScenarios = "../harness/testdata/scenarios"

const vetoScenario = `name: veto
platform: stx7111
depth: standby
listener:
  veto: true
assertions:
  - type: outcome
    outcome: VETOED
`

// testJSON decodes the JSON output of the test command.
func testJSON(t *testing.T, out string) (string, TestResult) {
	t.Helper()
	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	return resp.Status, resp.Data
}

func writeScenarioFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios directory not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	out, _, err := execute(NewTestCommand(&RootOptions{Format: "json"}), t.TempDir())
	require.NoError(t, err)

	status, result := testJSON(t, out)
	assert.Equal(t, "ok", status)
	assert.Equal(t, 0, result.Total)
	assert.Empty(t, result.Scenarios)
}

func TestTestCommandHarnessScenarios(t *testing.T) {
	out, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), harnessScenarios)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ stx7111_veto")
	assert.Contains(t, out, "✓ devboard_self_refresh")
	assert.Contains(t, out, "0 failed")
	assert.Contains(t, out, "All scenarios passed")
}

func TestTestCommandFilter(t *testing.T) {
	out, _, err := execute(NewTestCommand(&RootOptions{Format: "json"}), harnessScenarios, "--filter", "stx7111_*")
	require.NoError(t, err)

	_, result := testJSON(t, out)
	assert.Equal(t, 7, result.Total)
	assert.Equal(t, 7, result.Passed)
	for _, s := range result.Scenarios {
		assert.True(t, strings.HasPrefix(s.Name, "stx7111_"), s.Name)
	}
}

func TestTestCommandInvalidFilter(t *testing.T) {
	_, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), harnessScenarios, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandJobsKeepOrder(t *testing.T) {
	serial, _, err := execute(NewTestCommand(&RootOptions{Format: "json"}), harnessScenarios)
	require.NoError(t, err)
	parallel, _, err := execute(NewTestCommand(&RootOptions{Format: "json"}), harnessScenarios, "--jobs", "4")
	require.NoError(t, err)

	assert.JSONEq(t, serial, parallel)
}

func TestTestCommandInvalidJobs(t *testing.T) {
	_, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), harnessScenarios, "--jobs", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--jobs must be at least 1")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenarioFile(t, dir, "wrong.yaml", strings.Replace(vetoScenario, "outcome: VETOED", "outcome: ok", 1))
	writeScenarioFile(t, dir, "broken.yaml", "name: [")

	out, _, err := execute(NewTestCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	status, result := testJSON(t, out)
	assert.Equal(t, "error", status)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Scenarios, 2)
	assert.Contains(t, result.Scenarios[0].Errors[0], "failed to load scenario")
	assert.Contains(t, result.Scenarios[1].Errors[0], "outcome")
}

func TestTestCommandGoldenUpdateAndCompare(t *testing.T) {
	dir := t.TempDir()
	writeScenarioFile(t, dir, "veto.yaml", vetoScenario)

	out, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "veto (golden updated)")

	goldenPath := filepath.Join(dir, "golden", "veto.golden")
	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"outcomes":["VETOED"]`)

	out, _, err = execute(NewTestCommand(&RootOptions{Format: "json"}), dir)
	require.NoError(t, err)
	_, result := testJSON(t, out)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, "match", result.Scenarios[0].Golden)

	require.NoError(t, os.WriteFile(goldenPath, []byte("{}"), 0644))
	out, _, err = execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ veto")
	assert.Contains(t, out, "does not match golden file")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "b", "golden", "veto.golden"), goldenFilePath(filepath.Join("a", "b", "veto.yaml")))
}
