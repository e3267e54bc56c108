// Package harness runs sleep transactions against simulated hardware and
// checks them against YAML scenarios.
//
// A scenario names a platform (builtin, or loaded from a CUE directory),
// a sleep depth and the behaviour of everything around the engine: the
// wake events the CPU reports, the devices allowed to wake the system,
// the notify-chain listener and injected faults. The harness registers the
// platform with a fresh engine.Manager journaling to an in-memory store,
// calls Enter, then evaluates the scenario's assertions.
//
// # Scenario Format
//
//	name: stx7111_retry
//	description: "a listener asking for another sleep reruns the tables"
//	platform: stx7111
//	depth: self_refresh
//	wake_events: [0x5a0, 0x5a0, 0x5a0]
//	listener:
//	  again: 2
//	assertions:
//	  - type: outcome
//	    outcome: ok
//	  - type: trace_count
//	    state: execute_suspend_leg
//	    count: 3
//	  - type: final_state
//	    table: transactions
//	    where: { id: tx-1 }
//	    expect: { attempts: 3 }
//
// # Assertion Types
//
//   - outcome: the result of an Enter call ("ok" or an error code)
//   - wake_cause: the raw and logical wake event of an Enter call
//   - trace_contains: a state was entered, optionally with a detail substring
//   - trace_order: states were entered in the given relative order
//   - trace_count: a state was entered exactly N times
//   - register_write: a register write happened during the run
//   - final_registers: register values once the run is over
//   - halts: the number of hardware halts
//   - final_state: a journal row (SQL table query) has the expected columns
//
// # Deterministic Testing
//
// Every run uses testutil.DeterministicClock, sequential transaction ids
// ("tx-1", "tx-2", ...) and a private in-memory journal, so traces are
// byte-identical across runs and can be compared with golden files.
package harness
