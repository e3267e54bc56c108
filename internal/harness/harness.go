package harness

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/lpsuspend/internal/clocktree"
	"github.com/roach88/lpsuspend/internal/compiler"
	"github.com/roach88/lpsuspend/internal/cpu"
	"github.com/roach88/lpsuspend/internal/engine"
	"github.com/roach88/lpsuspend/internal/ir"
	"github.com/roach88/lpsuspend/internal/platform"
	"github.com/roach88/lpsuspend/internal/store"
	"github.com/roach88/lpsuspend/internal/testutil"
)

// Run executes a test scenario and returns the result.
//
// Each scenario runs against fresh simulated registers, a fresh CPU and a
// fresh in-memory journal. Assertion failures are reported in the Result;
// the error return is for scenarios that cannot be run at all.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context, passed to every Enter.
//
// Execution flow:
//  1. Resolve and patch the platform
//  2. Build the simulated board, CPU and journal
//  3. Register the platform and listener with a new Manager
//  4. Call Enter the requested number of times
//  5. Read the journal back and evaluate assertions
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	depth, err := ir.ParseSleepDepth(scenario.Depth)
	if err != nil {
		return nil, err
	}

	p, err := resolvePlatform(scenario)
	if err != nil {
		return nil, err
	}
	if len(scenario.Patches) > 0 {
		if p, err = p.WithPatches(scenario.Patches); err != nil {
			return nil, fmt.Errorf("apply patches: %w", err)
		}
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	r := p.NewRegisters()
	for _, addr := range sortedAddrs(scenario.Registers) {
		r.Write(addr, scenario.Registers[addr])
	}
	for addr, v := range scenario.Faults.Stuck {
		r.OnRead(addr, func(uint32, uint32, int) uint32 { return v })
	}

	c := cpu.NewSim(scenario.WakeEvents...)
	c.SetLoopsPerMillisecond(p.Sim.LoopsPerMs)
	c.SetInInterrupt(scenario.Faults.InInterrupt)
	if len(scenario.HaltWrites) > 0 {
		c.OnHalt(func(int) {
			for _, w := range scenario.HaltWrites {
				r.Write(w.Addr, w.Value)
			}
		})
	}

	devices := p.Sim.Devices
	if scenario.Devices != nil {
		devices = scenario.Devices
	}
	var opts []clocktree.Option
	if scenario.Limits.LockPollLimit > 0 {
		opts = append(opts, clocktree.WithLockPollLimit(scenario.Limits.LockPollLimit))
	}
	if scenario.Faults.Alloc {
		opts = append(opts, clocktree.WithArena(clocktree.NewArena(0)))
	}
	desc, err := p.Descriptor(r, p.NewRates(), platform.StaticDevices(devices...), opts...)
	if err != nil {
		return nil, err
	}

	m := engine.NewManager(r, c,
		engine.WithRecorder(st),
		engine.WithIDGenerator(testutil.NewSequentialIDs("tx")),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithMaxAttempts(scenario.Limits.MaxAttempts),
		engine.WithPollLimit(scenario.Limits.PollLimit),
	)
	listener := &testutil.ScriptedListener{Veto: scenario.Listener.Veto, Again: scenario.Listener.Again}
	if _, err := m.Notify().Register(listener); err != nil {
		return nil, err
	}
	if err := m.Register(desc); err != nil {
		return nil, fmt.Errorf("register platform: %w", err)
	}
	r.ResetLog()

	result := NewResult()
	for i := 0; i < scenario.calls(); i++ {
		cause, err := m.Enter(ctx, depth)
		outcome := engine.OutcomeOK
		if err != nil {
			code := engine.CodeOf(err)
			if code == "" {
				return nil, fmt.Errorf("enter %d: %w", i+1, err)
			}
			outcome = string(code)
		}
		result.Outcomes = append(result.Outcomes, outcome)
		result.Causes = append(result.Causes, cause)
	}

	records, err := st.ListTransactions(ctx, store.ListOptions{})
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		full, err := st.ReadTransaction(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		result.addTransaction(full)
	}

	result.Writes = r.Writes()
	result.Registers = r.Values()
	result.Halts = c.Halts()

	slog.Debug("scenario executed",
		"scenario", scenario.Name,
		"platform", p.Name,
		"calls", len(result.Outcomes),
		"transactions", len(result.Transactions),
		"writes", len(result.Writes),
	)

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// resolvePlatform finds the scenario's platform among the builtins or in
// its PlatformDir.
func resolvePlatform(s *Scenario) (*compiler.Platform, error) {
	if s.PlatformDir == "" {
		return compiler.Builtin(s.Platform)
	}

	platforms, errs := compiler.LoadDir(s.PlatformDir)
	if len(errs) > 0 {
		return nil, fmt.Errorf("load platforms from %s: %w", s.PlatformDir, errs[0])
	}
	for _, p := range platforms {
		if p.Name == s.Platform {
			return p, nil
		}
	}
	return nil, fmt.Errorf("platform %q not defined in %s", s.Platform, s.PlatformDir)
}

func sortedAddrs(m map[uint32]uint32) []uint32 {
	addrs := make([]uint32, 0, len(m))
	for a := range m {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}
