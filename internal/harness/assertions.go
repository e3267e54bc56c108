package harness

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/lpsuspend/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			if event.Detail != "" {
				fmt.Fprintf(&buf, "  [%d] %s %s (%s)\n", event.Seq, event.Tx, event.State, event.Detail)
			} else {
				fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Tx, event.State)
			}
		}
	}

	return buf.String()
}

// callIndex converts a 1-based call number (0 = last) to a slice index.
func callIndex(n, call int) (int, error) {
	if n == 0 {
		return 0, fmt.Errorf("no Enter call was made")
	}
	if call == 0 {
		return n - 1, nil
	}
	if call > n {
		return 0, fmt.Errorf("call %d out of range, %d calls made", call, n)
	}
	return call - 1, nil
}

// assertOutcome checks the result of one Enter call.
func assertOutcome(result *Result, assertion Assertion) error {
	i, err := callIndex(len(result.Outcomes), assertion.Call)
	if err != nil {
		return err
	}
	if got := result.Outcomes[i]; got != assertion.Outcome {
		return &AssertionError{
			Type:     AssertOutcome,
			Expected: fmt.Sprintf("call %d ends with %s", i+1, assertion.Outcome),
			Actual:   got,
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertWakeCause checks the wake cause returned by one Enter call.
func assertWakeCause(result *Result, assertion Assertion) error {
	i, err := callIndex(len(result.Causes), assertion.Call)
	if err != nil {
		return err
	}
	got := result.Causes[i]
	if (assertion.Raw != nil && got.Raw != *assertion.Raw) ||
		(assertion.Logical != nil && got.Logical != *assertion.Logical) {
		return &AssertionError{
			Type:     AssertWakeCause,
			Expected: formatCause(assertion.Raw, assertion.Logical),
			Actual:   formatCause(&got.Raw, &got.Logical),
		}
	}
	return nil
}

func formatCause(raw, logical *uint32) string {
	var parts []string
	if raw != nil {
		parts = append(parts, fmt.Sprintf("raw=0x%x", *raw))
	}
	if logical != nil {
		parts = append(parts, fmt.Sprintf("logical=%d", *logical))
	}
	return strings.Join(parts, " ")
}

func matchesEvent(event TraceEvent, state, detail string) bool {
	return event.State == state && strings.Contains(event.Detail, detail)
}

// assertTraceContains checks that a state was entered, with a detail
// containing assertion.Detail.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if matchesEvent(event, assertion.State, assertion.Detail) {
			return nil
		}
	}

	expected := assertion.State
	if assertion.Detail != "" {
		expected += fmt.Sprintf(" with detail containing %q", assertion.Detail)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the states occur as a subsequence of the
// trace. Intervening states are allowed.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(assertion.States) && event.State == assertion.States[next] {
			next++
		}
	}

	if next < len(assertion.States) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("states in order: %v", assertion.States),
			Actual:   fmt.Sprintf("%s not found after %v", assertion.States[next], assertion.States[:next]),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceCount checks that a state was entered exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if matchesEvent(event, assertion.State, assertion.Detail) {
			count++
		}
	}

	if count != *assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", *assertion.Count, assertion.State),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertRegisterWrite checks that addr was written with value at some
// point during the run.
func assertRegisterWrite(result *Result, assertion Assertion) error {
	var seen []string
	for _, w := range result.Writes {
		if w.Addr != assertion.Addr {
			continue
		}
		if w.Value == assertion.Value {
			return nil
		}
		seen = append(seen, fmt.Sprintf("0x%x", w.Value))
	}

	actual := "register never written"
	if len(seen) > 0 {
		actual = "written with " + strings.Join(seen, ", ")
	}
	return &AssertionError{
		Type:     AssertRegisterWrite,
		Expected: fmt.Sprintf("write 0x%x to 0x%08x", assertion.Value, assertion.Addr),
		Actual:   actual,
	}
}

// assertFinalRegisters checks register values after the run.
func assertFinalRegisters(result *Result, assertion Assertion) error {
	var mismatches []string
	for _, addr := range sortedAddrs(assertion.Registers) {
		want := assertion.Registers[addr]
		if got := result.Registers[addr]; got != want {
			mismatches = append(mismatches, fmt.Sprintf("0x%08x = 0x%x, want 0x%x", addr, got, want))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertFinalRegisters,
			Expected: fmt.Sprintf("%d register values", len(assertion.Registers)),
			Actual:   strings.Join(mismatches, "; "),
		}
	}
	return nil
}

// assertHalts checks the number of hardware halts.
func assertHalts(result *Result, assertion Assertion) error {
	if result.Halts != *assertion.Count {
		return &AssertionError{
			Type:     AssertHalts,
			Expected: fmt.Sprintf("%d halts", *assertion.Count),
			Actual:   fmt.Sprintf("%d halts", result.Halts),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertFinalState queries a journal table and checks that exactly one row
// matches Where and that it carries the Expect values.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	if assertion.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}

	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err // Identifier validation failed
	}

	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.Query(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]interface{})
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	keys := make([]string, 0, len(assertion.Expect))
	for k := range assertion.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}

		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}

	return nil
}

// buildWhereClause builds a parameterized WHERE clause from a map.
// Keys are sorted for deterministic SQL generation.
func buildWhereClause(where map[string]interface{}) (string, []interface{}, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys))

	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(where[key]))
	}

	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML scalar to a SQL parameter.
func toSQLValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string, int, int64, bool:
		return val
	case uint32:
		return int64(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func formatWhereClause(where map[string]interface{}) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares a YAML-decoded expected value with a value
// scanned from SQLite (int64, string or []byte).
func stateValuesEqual(expected, actual interface{}) bool {
	if expected == nil && actual == nil {
		return true
	}
	if expected == nil || actual == nil {
		return false
	}

	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case string:
		actualStr, ok := actual.(string)
		return ok && exp == actualStr
	case int:
		actualInt, ok := actual.(int64)
		return ok && int64(exp) == actualInt
	case int64:
		actualInt, ok := actual.(int64)
		return ok && exp == actualInt
	case uint64:
		actualInt, ok := actual.(int64)
		return ok && actualInt >= 0 && exp == uint64(actualInt)
	case bool:
		if actualBool, ok := actual.(bool); ok {
			return exp == actualBool
		}
		if actualInt, ok := actual.(int64); ok {
			return exp == (actualInt != 0)
		}
		return false
	default:
		return fmt.Sprintf("%v", expected) == fmt.Sprintf("%v", actual)
	}
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides journal access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertOutcome:
			err = assertOutcome(result, assertion)
		case AssertWakeCause:
			err = assertWakeCause(result, assertion)
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertRegisterWrite:
			err = assertRegisterWrite(result, assertion)
		case AssertFinalRegisters:
			err = assertFinalRegisters(result, assertion)
		case AssertHalts:
			err = assertHalts(result, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
