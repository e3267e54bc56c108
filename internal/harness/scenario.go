package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/lpsuspend/internal/engine"
	"github.com/roach88/lpsuspend/internal/ir"
	"github.com/roach88/lpsuspend/internal/regs"
	"github.com/roach88/lpsuspend/internal/wakeup"
)

// Scenario defines a conformance test scenario: one platform, one sleep
// depth, the simulated world around the engine and the assertions that
// must hold afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Platform is the platform name: a builtin, or one defined in
	// PlatformDir.
	Platform string `yaml:"platform"`

	// PlatformDir is a CUE package directory, relative to the scenario
	// file. Empty means builtin platforms.
	PlatformDir string `yaml:"platform_dir,omitempty"`

	// Depth is the sleep depth passed to every Enter call.
	Depth string `yaml:"depth"`

	// Enter is how many times Enter is called. Zero means once.
	Enter int `yaml:"enter,omitempty"`

	// WakeEvents are the raw events reported by successive halts.
	WakeEvents []uint32 `yaml:"wake_events,omitempty"`

	// Devices replaces the platform's simulated wake devices when set.
	Devices []wakeup.Device `yaml:"devices,omitempty"`

	// Registers are written, in address order, before the platform is
	// registered.
	Registers map[uint32]uint32 `yaml:"registers,omitempty"`

	// HaltWrites are applied at every halt, before the wake event is
	// latched, the way an interrupt controller raises its status bits.
	HaltWrites []regs.Access `yaml:"halt_writes,omitempty"`

	// Patches overrides labelled operands of the platform's Programs.
	Patches map[string]uint32 `yaml:"patches,omitempty"`

	Listener ListenerScript `yaml:"listener,omitempty"`
	Limits   Limits         `yaml:"limits,omitempty"`
	Faults   Faults         `yaml:"faults,omitempty"`

	// Assertions validate the outcome, trace, registers and journal.
	Assertions []Assertion `yaml:"assertions"`
}

// ListenerScript scripts the single notify-chain listener. Omitted, the
// listener proceeds and accepts the first wake.
type ListenerScript struct {
	Veto  bool `yaml:"veto,omitempty"`
	Again int  `yaml:"again,omitempty"`
}

// Limits are the opt-in bounds of the engine. Zero means unbounded.
type Limits struct {
	MaxAttempts   int `yaml:"max_attempts,omitempty"`
	PollLimit     int `yaml:"poll_limit,omitempty"`
	LockPollLimit int `yaml:"lock_poll_limit,omitempty"`
}

// Faults injects failures into the simulation.
type Faults struct {
	// Alloc makes every snapshot allocation fail.
	Alloc bool `yaml:"alloc,omitempty"`

	// InInterrupt makes Enter run as if called from interrupt context.
	InInterrupt bool `yaml:"in_interrupt,omitempty"`

	// Stuck registers always read the given value.
	Stuck map[uint32]uint32 `yaml:"stuck,omitempty"`
}

// Assertion validates the run.
type Assertion struct {
	// Type specifies the assertion type, see the Assert* constants.
	Type string `yaml:"type"`

	// Call selects an Enter call (1-based) for outcome and wake_cause.
	// Zero means the last call.
	Call int `yaml:"call,omitempty"`

	// Outcome is "ok" or an error code (outcome).
	Outcome string `yaml:"outcome,omitempty"`

	// Raw and Logical are the expected wake cause (wake_cause).
	Raw     *uint32 `yaml:"raw,omitempty"`
	Logical *uint32 `yaml:"logical,omitempty"`

	// State and Detail select a transition (trace_contains, trace_count).
	// Detail is a substring match.
	State  string `yaml:"state,omitempty"`
	Detail string `yaml:"detail,omitempty"`

	// States is the expected relative order (trace_order).
	States []string `yaml:"states,omitempty"`

	// Count is the expected number of occurrences (trace_count, halts).
	Count *int `yaml:"count,omitempty"`

	// Addr and Value name one register write (register_write).
	Addr  uint32 `yaml:"addr,omitempty"`
	Value uint32 `yaml:"value,omitempty"`

	// Registers are expected final values (final_registers).
	Registers map[uint32]uint32 `yaml:"registers,omitempty"`

	// Table, Where and Expect query the journal (final_state).
	// All Where fields must match exactly; Expect is a subset match.
	Table  string                 `yaml:"table,omitempty"`
	Where  map[string]interface{} `yaml:"where,omitempty"`
	Expect map[string]interface{} `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertOutcome        = "outcome"
	AssertWakeCause      = "wake_cause"
	AssertTraceContains  = "trace_contains"
	AssertTraceOrder     = "trace_order"
	AssertTraceCount     = "trace_count"
	AssertRegisterWrite  = "register_write"
	AssertFinalRegisters = "final_registers"
	AssertHalts          = "halts"
	AssertFinalState     = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// PlatformDir is resolved relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving PlatformDir relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.PlatformDir != "" && !filepath.IsAbs(scenario.PlatformDir) && basePath != "" {
		scenario.PlatformDir = filepath.Join(basePath, scenario.PlatformDir)
	}
	if scenario.PlatformDir != "" {
		if _, err := os.Stat(scenario.PlatformDir); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: platform_dir not found: %s", scenario.PlatformDir)
		}
	}

	return scenario, nil
}

// ParseScenario parses scenario YAML. Unknown fields are rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Platform == "" {
		return fmt.Errorf("platform is required")
	}

	if _, err := ir.ParseSleepDepth(s.Depth); err != nil {
		return fmt.Errorf("depth: %w", err)
	}

	if s.Enter < 0 {
		return fmt.Errorf("enter must be non-negative")
	}

	if s.Listener.Again < 0 {
		return fmt.Errorf("listener.again must be non-negative")
	}

	if s.Limits.MaxAttempts < 0 || s.Limits.PollLimit < 0 || s.Limits.LockPollLimit < 0 {
		return fmt.Errorf("limits must be non-negative")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, s.calls()); err != nil {
			return err
		}
	}

	return nil
}

// calls is the number of Enter calls the scenario makes.
func (s *Scenario) calls() int {
	if s.Enter == 0 {
		return 1
	}
	return s.Enter
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, calls int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	if a.Call < 0 || a.Call > calls {
		return fmt.Errorf("assertions[%d]: call %d out of range 1..%d", index, a.Call, calls)
	}

	switch a.Type {
	case AssertOutcome:
		if a.Outcome == "" {
			return fmt.Errorf("assertions[%d]: outcome is required for outcome", index)
		}
		if a.Outcome != engine.OutcomeOK && !engine.IsKnownCode(a.Outcome) {
			return fmt.Errorf("assertions[%d]: unknown outcome %q", index, a.Outcome)
		}
	case AssertWakeCause:
		if a.Raw == nil && a.Logical == nil {
			return fmt.Errorf("assertions[%d]: raw or logical is required for wake_cause", index)
		}
	case AssertTraceContains:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.States) == 0 {
			return fmt.Errorf("assertions[%d]: states list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for trace_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertRegisterWrite:
		if a.Addr == 0 {
			return fmt.Errorf("assertions[%d]: addr is required for register_write", index)
		}
	case AssertFinalRegisters:
		if len(a.Registers) == 0 {
			return fmt.Errorf("assertions[%d]: registers is required for final_registers", index)
		}
	case AssertHalts:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for halts", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
