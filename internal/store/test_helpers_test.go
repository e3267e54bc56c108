package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/lpsuspend/internal/ir"
)

// createTestStore creates a journal in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord builds a successful transaction whose transitions take
// seq values start+1 .. start+n, where n is the number of states.
func createTestRecord(id, platform string, start int64) ir.TransactionRecord {
	states := []string{"idle", "begin", "pre_enter", "notify_prepare", "execute_suspend_leg", "execute_resume_leg", "notify_post_enter", "post_enter", "done"}
	rec := ir.TransactionRecord{
		ID:          id,
		Platform:    platform,
		Depth:       "self_refresh",
		Outcome:     "ok",
		RawEvent:    0x5a0,
		WakeCause:   29,
		Attempts:    1,
		ProgramHash: "test-hash",
	}
	for i, st := range states {
		rec.Transitions = append(rec.Transitions, ir.Transition{Seq: start + int64(i) + 1, State: st})
	}
	rec.Seq = start + int64(len(states))
	return rec
}
