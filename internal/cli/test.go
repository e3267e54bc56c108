package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/lpsuspend/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
	Jobs   int    // scenarios run concurrently
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match", "updated" or empty when absent
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run YAML conformance scenarios against simulated boards.

Each scenario runs a platform on fresh simulated registers and checks its
assertions. When <scenarios-dir>/golden/<file>.golden exists the run's
trace and register writes must also match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  lpsuspend test ./scenarios
  lpsuspend test ./scenarios --filter "stx7111_*"
  lpsuspend test ./scenarios --update
  lpsuspend test ./scenarios --jobs 4 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 1, "number of scenarios to run concurrently")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	if opts.Jobs < 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--jobs must be at least 1, got %d", opts.Jobs))
	}

	scenarioFiles, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		var notFound *harness.ScenarioNotFoundError
		if errors.As(err, &notFound) {
			return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
		}
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	if len(scenarioFiles) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(cmd, TestResult{
				Scenarios: []ScenarioResult{},
				Total:     0,
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	results := make([]ScenarioResult, len(scenarioFiles))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(opts.Jobs)
	for i, path := range scenarioFiles {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = runScenario(ctx, path, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitCommandError, "test run interrupted", err)
	}

	result := TestResult{
		Scenarios: results,
		Total:     len(results),
	}
	for _, r := range results {
		if r.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, newFormatter(opts.RootOptions, cmd), result)
}

// findScenarioFiles finds all YAML scenario files under dir whose base
// name matches filter.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	files, err := harness.FindScenarios(dir)
	if err != nil || filter == "" {
		return files, err
	}

	var matched []string
	for _, path := range files {
		base := filepath.Base(path)
		ok, err := filepath.Match(filter, strings.TrimSuffix(base, filepath.Ext(base)))
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if ok {
			matched = append(matched, path)
		}
	}
	return matched, nil
}

// runScenario executes a single scenario and returns the result.
func runScenario(ctx context.Context, scenarioFile string, opts *TestOptions) ScenarioResult {
	res := ScenarioResult{Name: filepath.Base(scenarioFile), Path: scenarioFile}

	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return res
	}
	res.Name = scenario.Name

	result, err := harness.RunContext(ctx, scenario)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return res
	}

	data, err := harness.GoldenBytes(scenario, result)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("failed to snapshot trace: %v", err)}
		return res
	}

	goldenPath := goldenFilePath(scenarioFile)
	switch {
	case opts.Update:
		if err := updateGoldenFile(goldenPath, data); err != nil {
			res.Errors = []string{fmt.Sprintf("failed to update golden file: %v", err)}
			return res
		}
		res.Golden = "updated"

	default:
		golden, err := os.ReadFile(goldenPath)
		if os.IsNotExist(err) {
			// No golden file - use assertion-based validation only
			break
		}
		if err != nil {
			res.Errors = []string{fmt.Sprintf("golden comparison failed: %v", err)}
			return res
		}
		if !bytes.Equal(golden, data) {
			res.Errors = append(res.Errors, "trace does not match golden file (run with --update to regenerate)")
		} else {
			res.Golden = "match"
		}
	}

	res.Errors = append(res.Errors, result.Errors...)
	res.Pass = len(res.Errors) == 0
	return res
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// updateGoldenFile writes data as the golden file at path.
func updateGoldenFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	status := "ok"
	if result.Failed > 0 {
		status = "error"
	}

	response := CLIResponse{
		Status: status,
		Data:   result,
	}

	if result.Failed > 0 {
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText prints one line per scenario followed by the summary.
func outputTestText(cmd *cobra.Command, f *OutputFormatter, result TestResult) error {
	w := cmd.OutOrStdout()

	for _, r := range result.Scenarios {
		line := fmt.Sprintf("%s %s", f.Mark(r.Pass), r.Name)
		if r.Golden == "updated" {
			line += " (golden updated)"
		}
		fmt.Fprintln(w, line)
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintf(w, "%s All scenarios passed\n", f.Mark(true))
	return nil
}
