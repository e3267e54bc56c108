package harness

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioNotFoundError is returned when a scenario path doesn't exist.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario path %q does not exist", e.Path)
}

// FindScenarios expands paths into scenario files. A file is taken as is;
// a directory is searched recursively for *.yaml and *.yml files, skipping
// testdata/golden. The result is sorted and free of duplicates.
func FindScenarios(paths ...string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			return nil, &ScenarioNotFoundError{Path: path}
		}
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(path)
			continue
		}

		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == "golden" {
					return filepath.SkipDir
				}
				return nil
			}
			ext := strings.ToLower(filepath.Ext(p))
			if ext == ".yaml" || ext == ".yml" {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", path, err)
		}
	}

	sort.Strings(files)
	return files, nil
}

// SuiteResult summarizes a batch of scenario runs.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure represents one scenario that did not pass.
type ScenarioFailure struct {
	Scenario string   `json:"scenario,omitempty"`
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
}

// OK reports whether every scenario passed.
func (r *SuiteResult) OK() bool {
	return r.Failed == 0
}

// RunSuite loads and runs every scenario file in order.
//
// For each file:
// 1. Load the scenario (platform_dir relative to the file)
// 2. Run it via RunContext
// 3. Record a failure for load errors, run errors and failed assertions
//
// Cancelling ctx stops the suite before the next scenario.
func RunSuite(ctx context.Context, paths []string) (*SuiteResult, error) {
	result := &SuiteResult{}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			result.fail(ScenarioFailure{
				Path:   path,
				Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
			})
			continue
		}

		runResult, err := RunContext(ctx, scenario)
		if err != nil {
			result.fail(ScenarioFailure{
				Scenario: scenario.Name,
				Path:     path,
				Errors:   []string{fmt.Sprintf("scenario execution failed: %v", err)},
			})
			continue
		}

		if !runResult.Pass {
			result.fail(ScenarioFailure{
				Scenario: scenario.Name,
				Path:     path,
				Errors:   runResult.Errors,
			})
			continue
		}

		result.Passed++
	}

	return result, nil
}

func (r *SuiteResult) fail(f ScenarioFailure) {
	r.Failed++
	r.Failures = append(r.Failures, f)
}
