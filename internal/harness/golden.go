package harness

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/lpsuspend/internal/ir"
)

// TraceSnapshot captures the observable behaviour of a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Platform     string       `json:"platform"`
	Depth        string       `json:"depth"`
	Outcomes     []string     `json:"outcomes"`
	Trace        []TraceEvent `json:"trace"`
	Writes       []string     `json:"writes"`
}

// newSnapshot builds the snapshot of a finished run. Register writes are
// rendered as "addr=value" hex strings, since canonical JSON has no
// unsigned 32-bit formatting of its own.
func newSnapshot(scenario *Scenario, result *Result) TraceSnapshot {
	writes := make([]string, len(result.Writes))
	for i, w := range result.Writes {
		writes[i] = fmt.Sprintf("%08x=%08x", w.Addr, w.Value)
	}
	return TraceSnapshot{
		ScenarioName: scenario.Name,
		Platform:     scenario.Platform,
		Depth:        scenario.Depth,
		Outcomes:     result.Outcomes,
		Trace:        result.Trace,
		Writes:       writes,
	}
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles primitives, slices and maps.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"tx":    event.Tx,
			"seq":   event.Seq,
			"state": event.State,
		}
		if event.Detail != "" {
			eventMap["detail"] = event.Detail
		}
		traceList[i] = eventMap
	}

	outcomes := s.Outcomes
	if outcomes == nil {
		outcomes = []string{}
	}
	writes := s.Writes
	if writes == nil {
		writes = []string{}
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"platform":      s.Platform,
		"depth":         s.Depth,
		"outcomes":      outcomes,
		"trace":         traceList,
		"writes":        writes,
	}
}

// MarshalCanonical renders the snapshot as canonical JSON.
func (s *TraceSnapshot) MarshalCanonical() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// GoldenBytes returns the canonical snapshot of a finished run, the
// content of its golden file.
func GoldenBytes(scenario *Scenario, result *Result) ([]byte, error) {
	snapshot := newSnapshot(scenario, result)
	return snapshot.MarshalCanonical()
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario, result)
}

// AssertGolden compares an existing result against the scenario's golden
// file without re-running it.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	data, err := GoldenBytes(scenario, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return nil
}
