package engine

import (
	"fmt"

	"github.com/roach88/lpsuspend/internal/ir"
)

// State names one step of the sleep transaction state machine.
//
//	Idle → Begin → PreEnter → NotifyPrepare → ExecuteSuspendLeg →
//	ExecuteResumeLeg → NotifyPostEnter (Again → ExecuteSuspendLeg) →
//	PostEnter → Done
//
// PreEnter failure and veto jump straight to PostEnter.
type State string

const (
	StateIdle              State = "idle"
	StateBegin             State = "begin"
	StatePreEnter          State = "pre_enter"
	StateNotifyPrepare     State = "notify_prepare"
	StateExecuteSuspendLeg State = "execute_suspend_leg"
	StateExecuteResumeLeg  State = "execute_resume_leg"
	StateNotifyPostEnter   State = "notify_post_enter"
	StatePostEnter         State = "post_enter"
	StateDone              State = "done"
)

// OutcomeOK is the journal outcome of a transaction that returned no error.
const OutcomeOK = "ok"

// txn accumulates the journal record of the transaction in flight.
type txn struct {
	id    string
	depth ir.SleepDepth
	clock Sequencer
	rec   ir.TransactionRecord
}

func newTxn(id, platform string, depth ir.SleepDepth, clock Sequencer) *txn {
	t := &txn{
		id:    id,
		depth: depth,
		clock: clock,
		rec: ir.TransactionRecord{
			ID:          id,
			Platform:    platform,
			Depth:       depth.String(),
			Transitions: make([]ir.Transition, 0, 16),
		},
	}
	t.enter(StateIdle, "")
	return t
}

func (t *txn) enter(s State, detail string) {
	t.rec.Transitions = append(t.rec.Transitions, ir.Transition{
		Seq:    t.clock.Next(),
		State:  string(s),
		Detail: detail,
	})
}

func (t *txn) fail(code SuspendErrorCode, msg string, err error) *SuspendError {
	return &SuspendError{
		Code:    code,
		Message: msg,
		TxID:    t.id,
		Depth:   t.depth.String(),
		Err:     err,
	}
}

// finish enters Done and fills in the outcome fields.
func (t *txn) finish(cause WakeCause, err error) {
	t.rec.RawEvent = cause.Raw
	t.rec.WakeCause = cause.Logical
	t.rec.Outcome = OutcomeOK
	if err != nil {
		t.rec.Outcome = "error"
		t.rec.Error = string(CodeOf(err))
		if t.rec.Error == "" {
			t.rec.Error = err.Error()
		}
	}
	t.enter(StateDone, "outcome="+t.outcomeDetail())
	t.rec.Seq = t.clock.Current()
}

func (t *txn) outcomeDetail() string {
	if t.rec.Outcome == OutcomeOK {
		return OutcomeOK
	}
	return t.rec.Error
}

func wakeDetail(cause WakeCause) string {
	return fmt.Sprintf("raw=0x%x logical=%d", cause.Raw, cause.Logical)
}
