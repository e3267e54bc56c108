package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lpsuspend/internal/ir"
	"github.com/roach88/lpsuspend/internal/regs"
	"github.com/roach88/lpsuspend/internal/store"
)

func intPtr(n int) *int { return &n }
func u32Ptr(n uint32) *uint32 { return &n }

// sampleTrace is one successful transaction that needed two attempts.
func sampleTrace() []TraceEvent {
	states := []struct{ state, detail string }{
		{"idle", ""},
		{"begin", ""},
		{"pre_enter", "wake=ir"},
		{"notify_prepare", ""},
		{"execute_suspend_leg", "attempt=1"},
		{"execute_resume_leg", "halts=1"},
		{"notify_post_enter", "raw=0x300 logical=8"},
		{"execute_suspend_leg", "attempt=2"},
		{"execute_resume_leg", "halts=1"},
		{"notify_post_enter", "raw=0x5a0 logical=29"},
		{"post_enter", "snapshot=57"},
		{"done", "outcome=ok"},
	}
	trace := make([]TraceEvent, len(states))
	for i, s := range states {
		trace[i] = TraceEvent{Tx: "tx-1", Seq: int64(i + 1), State: s.state, Detail: s.detail}
	}
	return trace
}

func sampleResult() *Result {
	r := NewResult()
	r.Trace = sampleTrace()
	r.Outcomes = []string{"VETOED", "ok"}
	r.Causes = []ir.WakeCause{{}, {Raw: 0x5a0, Logical: 29}}
	r.Writes = []regs.Access{
		{Addr: 0xfe213014, Value: 0xfffff0ff},
		{Addr: 0xfe213010, Value: 0x3},
		{Addr: 0xfe213014, Value: 0x0},
	}
	r.Registers = map[uint32]uint32{0xfe213014: 0x0, 0xfe213010: 0x0}
	r.Halts = 2
	return r
}

func TestAssertOutcome(t *testing.T) {
	result := sampleResult()

	assert.NoError(t, assertOutcome(result, Assertion{Type: AssertOutcome, Outcome: "ok"}))
	assert.NoError(t, assertOutcome(result, Assertion{Type: AssertOutcome, Outcome: "VETOED", Call: 1}))

	err := assertOutcome(result, Assertion{Type: AssertOutcome, Outcome: "ok", Call: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "call 1 ends with ok")
	assert.Contains(t, err.Error(), "Actual: VETOED")
}

func TestAssertOutcome_NoCalls(t *testing.T) {
	err := assertOutcome(NewResult(), Assertion{Type: AssertOutcome, Outcome: "ok"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no Enter call")
}

func TestAssertOutcome_CallOutOfRange(t *testing.T) {
	err := assertOutcome(sampleResult(), Assertion{Type: AssertOutcome, Outcome: "ok", Call: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestAssertWakeCause(t *testing.T) {
	result := sampleResult()

	assert.NoError(t, assertWakeCause(result, Assertion{Raw: u32Ptr(0x5a0), Logical: u32Ptr(29)}))
	assert.NoError(t, assertWakeCause(result, Assertion{Logical: u32Ptr(29)}))
	assert.NoError(t, assertWakeCause(result, Assertion{Raw: u32Ptr(0), Call: 1}))

	err := assertWakeCause(result, Assertion{Raw: u32Ptr(0x300)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "raw=0x300")
	assert.Contains(t, err.Error(), "raw=0x5a0 logical=29")
}

func TestAssertTraceContains_Found(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{Type: AssertTraceContains, State: "post_enter"})
	assert.NoError(t, err)
}

func TestAssertTraceContains_DetailSubstring(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{Type: AssertTraceContains, State: "pre_enter", Detail: "ir"})
	assert.NoError(t, err)

	err = assertTraceContains(sampleTrace(), Assertion{Type: AssertTraceContains, State: "pre_enter", Detail: "hdmi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `detail containing "hdmi"`)
}

func TestAssertTraceContains_NotFound(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{Type: AssertTraceContains, State: "hibernate"})
	require.Error(t, err)

	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, AssertTraceContains, aerr.Type)
	assert.Equal(t, "not found in trace", aerr.Actual)
	assert.Len(t, aerr.Trace, 12)
}

func TestAssertTraceOrder_Correct(t *testing.T) {
	err := assertTraceOrder(sampleTrace(), Assertion{
		Type:   AssertTraceOrder,
		States: []string{"begin", "pre_enter", "execute_suspend_leg", "post_enter", "done"},
	})
	assert.NoError(t, err)
}

func TestAssertTraceOrder_RepeatedStates(t *testing.T) {
	err := assertTraceOrder(sampleTrace(), Assertion{
		Type:   AssertTraceOrder,
		States: []string{"execute_suspend_leg", "notify_post_enter", "execute_suspend_leg", "notify_post_enter"},
	})
	assert.NoError(t, err)
}

func TestAssertTraceOrder_WrongOrder(t *testing.T) {
	err := assertTraceOrder(sampleTrace(), Assertion{
		Type:   AssertTraceOrder,
		States: []string{"post_enter", "notify_prepare"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify_prepare not found after [post_enter]")
}

func TestAssertTraceOrder_MissingState(t *testing.T) {
	err := assertTraceOrder(sampleTrace(), Assertion{
		Type:   AssertTraceOrder,
		States: []string{"begin", "vetoed"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vetoed not found")
}

func TestAssertTraceCount(t *testing.T) {
	tests := []struct {
		name    string
		state   string
		detail  string
		count   int
		wantErr bool
	}{
		{"exact", "execute_suspend_leg", "", 2, false},
		{"with detail", "execute_suspend_leg", "attempt=2", 1, false},
		{"zero", "notify_abort", "", 0, false},
		{"too few", "notify_post_enter", "", 3, true},
		{"too many", "post_enter", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceCount(sampleTrace(), Assertion{
				Type:   AssertTraceCount,
				State:  tt.state,
				Detail: tt.detail,
				Count:  intPtr(tt.count),
			})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAssertRegisterWrite(t *testing.T) {
	result := sampleResult()

	assert.NoError(t, assertRegisterWrite(result, Assertion{Addr: 0xfe213014, Value: 0xfffff0ff}))
	assert.NoError(t, assertRegisterWrite(result, Assertion{Addr: 0xfe213014, Value: 0x0}))

	err := assertRegisterWrite(result, Assertion{Addr: 0xfe213010, Value: 0x1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "written with 0x3")

	err = assertRegisterWrite(result, Assertion{Addr: 0xfe213844, Value: 31})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register never written")
}

func TestAssertFinalRegisters(t *testing.T) {
	result := sampleResult()

	assert.NoError(t, assertFinalRegisters(result, Assertion{Registers: map[uint32]uint32{0xfe213014: 0}}))

	err := assertFinalRegisters(result, Assertion{Registers: map[uint32]uint32{
		0xfe213010: 0x3,
		0xfe213014: 0x0,
		0xfe213844: 0x1,
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0xfe213010 = 0x0, want 0x3")
	assert.Contains(t, err.Error(), "0xfe213844 = 0x0, want 0x1")
	assert.NotContains(t, err.Error(), "0xfe213014")
}

func TestAssertHalts(t *testing.T) {
	result := sampleResult()
	assert.NoError(t, assertHalts(result, Assertion{Count: intPtr(2)}))

	err := assertHalts(result, Assertion{Count: intPtr(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Actual: 2 halts")
}

func TestEvaluateAssertions_AllPass(t *testing.T) {
	assertions := []Assertion{
		{Type: AssertOutcome, Outcome: "ok"},
		{Type: AssertTraceContains, State: "done", Detail: "outcome=ok"},
		{Type: AssertTraceOrder, States: []string{"begin", "done"}},
		{Type: AssertTraceCount, State: "begin", Count: intPtr(1)},
		{Type: AssertHalts, Count: intPtr(2)},
	}

	errors := EvaluateAssertions(sampleResult(), assertions, nil)
	assert.Empty(t, errors)
}

func TestEvaluateAssertions_SomeFail(t *testing.T) {
	assertions := []Assertion{
		{Type: AssertOutcome, Outcome: "ok"},
		{Type: AssertOutcome, Outcome: "POLL_LIMIT"},
		{Type: AssertHalts, Count: intPtr(0)},
	}

	errors := EvaluateAssertions(sampleResult(), assertions, nil)
	assert.Len(t, errors, 2)
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	errors := EvaluateAssertions(sampleResult(), []Assertion{{Type: "unknown_type"}}, nil)
	require.Len(t, errors, 1)
	assert.Contains(t, errors[0], "unknown assertion type")
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceContains,
		Expected: "post_enter",
		Actual:   "not found in trace",
		Trace: []TraceEvent{
			{Tx: "tx-1", Seq: 1, State: "idle"},
			{Tx: "tx-1", Seq: 2, State: "done", Detail: "outcome=VETOED"},
		},
	}

	errorStr := err.Error()
	assert.Contains(t, errorStr, "Assertion failed: trace_contains")
	assert.Contains(t, errorStr, "Expected: post_enter")
	assert.Contains(t, errorStr, "Actual: not found in trace")
	assert.Contains(t, errorStr, "Full trace:")
	assert.Contains(t, errorStr, "[1] tx-1 idle")
	assert.Contains(t, errorStr, "[2] tx-1 done (outcome=VETOED)")
}

// Final State Assertion Tests

func TestBuildWhereClause_Empty(t *testing.T) {
	sql, args, err := buildWhereClause(nil)
	require.NoError(t, err)
	assert.Equal(t, "", sql)
	assert.Nil(t, args)
}

func TestBuildWhereClause_MultipleKeys_SortedDeterministic(t *testing.T) {
	sql, args, err := buildWhereClause(map[string]interface{}{
		"platform": "stx7111",
		"depth":    "standby",
		"attempts": 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "attempts = ? AND depth = ? AND platform = ?", sql)
	assert.Equal(t, []interface{}{2, "standby", "stx7111"}, args)
}

func TestBuildWhereClause_NoInterpolation(t *testing.T) {
	sql, args, err := buildWhereClause(map[string]interface{}{"id": "x'; DROP TABLE transactions; --"})
	require.NoError(t, err)
	assert.Equal(t, "id = ?", sql)
	assert.Equal(t, []interface{}{"x'; DROP TABLE transactions; --"}, args)
}

func TestBuildWhereClause_InvalidColumnName(t *testing.T) {
	for _, col := range []string{"id; DROP", "1id", "a-b", ""} {
		_, _, err := buildWhereClause(map[string]interface{}{col: 1})
		assert.Error(t, err, col)
	}
}

func TestToSQLValue_Types(t *testing.T) {
	assert.Equal(t, "x", toSQLValue("x"))
	assert.Equal(t, 3, toSQLValue(3))
	assert.Equal(t, int64(3), toSQLValue(int64(3)))
	assert.Equal(t, true, toSQLValue(true))
	assert.Equal(t, int64(0xfe213014), toSQLValue(uint32(0xfe213014)))
	assert.Equal(t, "1.5", toSQLValue(1.5))
}

func TestFormatWhereClause(t *testing.T) {
	assert.Equal(t, "(no conditions)", formatWhereClause(nil))
	assert.Equal(t, "depth=standby AND id=tx-1", formatWhereClause(map[string]interface{}{"id": "tx-1", "depth": "standby"}))
}

func TestStateValuesEqual(t *testing.T) {
	assert.True(t, stateValuesEqual("ok", "ok"))
	assert.True(t, stateValuesEqual("ok", []byte("ok")))
	assert.False(t, stateValuesEqual("ok", "error"))
	assert.True(t, stateValuesEqual(3, int64(3)))
	assert.True(t, stateValuesEqual(int64(3), int64(3)))
	assert.False(t, stateValuesEqual(3, "3"))
	assert.True(t, stateValuesEqual(true, int64(1)))
	assert.True(t, stateValuesEqual(false, int64(0)))
	assert.True(t, stateValuesEqual(nil, nil))
	assert.False(t, stateValuesEqual(nil, int64(0)))
	assert.False(t, stateValuesEqual("x", nil))
}

func setupJournal(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	records := []ir.TransactionRecord{
		{ID: "tx-1", Platform: "stx7111", Depth: "standby", Outcome: "ok", RawEvent: 0x300, WakeCause: 211, Attempts: 1, ProgramHash: "h", Seq: 3,
			Transitions: []ir.Transition{{Seq: 1, State: "idle"}, {Seq: 2, State: "begin"}, {Seq: 3, State: "done", Detail: "outcome=ok"}}},
		{ID: "tx-2", Platform: "stx7111", Depth: "standby", Outcome: "error", Error: "VETOED", ProgramHash: "h", Seq: 5,
			Transitions: []ir.Transition{{Seq: 4, State: "idle"}, {Seq: 5, State: "done", Detail: "outcome=VETOED"}}},
	}
	for _, rec := range records {
		require.NoError(t, st.RecordTransaction(context.Background(), rec))
	}
	return st
}

func TestAssertFinalState_RowFound_Pass(t *testing.T) {
	st := setupJournal(t)

	err := assertFinalState(context.Background(), st, Assertion{
		Type:   AssertFinalState,
		Table:  "transactions",
		Where:  map[string]interface{}{"id": "tx-1"},
		Expect: map[string]interface{}{"outcome": "ok", "wake_cause": 211, "attempts": 1},
	})
	assert.NoError(t, err)
}

func TestAssertFinalState_Transitions(t *testing.T) {
	st := setupJournal(t)

	err := assertFinalState(context.Background(), st, Assertion{
		Type:   AssertFinalState,
		Table:  "transitions",
		Where:  map[string]interface{}{"tx_id": "tx-2", "state": "done"},
		Expect: map[string]interface{}{"detail": "outcome=VETOED", "seq": 5},
	})
	assert.NoError(t, err)
}

func TestAssertFinalState_RowNotFound_Fail(t *testing.T) {
	st := setupJournal(t)

	err := assertFinalState(context.Background(), st, Assertion{
		Table:  "transactions",
		Where:  map[string]interface{}{"id": "tx-9"},
		Expect: map[string]interface{}{"outcome": "ok"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row not found")
}

func TestAssertFinalState_Ambiguous_Fail(t *testing.T) {
	st := setupJournal(t)

	err := assertFinalState(context.Background(), st, Assertion{
		Table:  "transactions",
		Where:  map[string]interface{}{"platform": "stx7111"},
		Expect: map[string]interface{}{"depth": "standby"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple rows matched")
}

func TestAssertFinalState_ValueMismatch_Fail(t *testing.T) {
	st := setupJournal(t)

	err := assertFinalState(context.Background(), st, Assertion{
		Table:  "transactions",
		Where:  map[string]interface{}{"id": "tx-2"},
		Expect: map[string]interface{}{"error": "POLL_LIMIT"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "error" = POLL_LIMIT`)
}

func TestAssertFinalState_MissingColumn_Fail(t *testing.T) {
	st := setupJournal(t)

	err := assertFinalState(context.Background(), st, Assertion{
		Table:  "transactions",
		Where:  map[string]interface{}{"id": "tx-1"},
		Expect: map[string]interface{}{"flow_token": "x"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not present in result columns")
}

func TestAssertFinalState_InvalidTableName(t *testing.T) {
	st := setupJournal(t)

	err := assertFinalState(context.Background(), st, Assertion{
		Table:  "transactions; DROP TABLE transitions",
		Expect: map[string]interface{}{"outcome": "ok"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")
}

func TestAssertFinalState_TableNotFound_Fail(t *testing.T) {
	st := setupJournal(t)

	err := assertFinalState(context.Background(), st, Assertion{
		Table:  "snapshots",
		Expect: map[string]interface{}{"value": 1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query error")
}

func TestEvaluateAssertions_FinalStateWithoutContext_Fail(t *testing.T) {
	errors := EvaluateAssertions(sampleResult(), []Assertion{{
		Type:   AssertFinalState,
		Table:  "transactions",
		Expect: map[string]interface{}{"outcome": "ok"},
	}}, nil)
	require.Len(t, errors, 1)
	assert.Contains(t, errors[0], "requires database context")
}

func TestEvaluateAssertions_FinalStateWithContext_Pass(t *testing.T) {
	st := setupJournal(t)
	actx := &AssertionContext{Store: st, Ctx: context.Background()}

	errors := EvaluateAssertions(sampleResult(), []Assertion{{
		Type:   AssertFinalState,
		Table:  "transactions",
		Where:  map[string]interface{}{"id": "tx-2"},
		Expect: map[string]interface{}{"outcome": "error", "attempts": 0},
	}}, actx)
	assert.Empty(t, errors)
}
