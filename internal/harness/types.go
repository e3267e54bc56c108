package harness

import (
	"github.com/roach88/lpsuspend/internal/ir"
	"github.com/roach88/lpsuspend/internal/regs"
)

// TraceEvent is one state the orchestration state machine entered.
type TraceEvent struct {
	Tx     string `json:"tx"`
	Seq    int64  `json:"seq"`
	State  string `json:"state"`
	Detail string `json:"detail,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace holds the transitions of every journaled transaction, in
	// logical clock order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Outcomes has one entry per Enter call: "ok" or the error code.
	Outcomes []string `json:"outcomes"`

	// Causes has one entry per Enter call.
	Causes []ir.WakeCause `json:"causes"`

	// Transactions are the journaled records, oldest first.
	Transactions []ir.TransactionRecord `json:"transactions"`

	// Writes is the register write log of the whole run.
	Writes []regs.Access `json:"writes"`

	// Registers holds every register value once the run is over.
	Registers map[uint32]uint32 `json:"registers"`

	// Halts counts hardware halts.
	Halts int `json:"halts"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Errors:    []string{},
		Registers: make(map[uint32]uint32),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addTransaction appends a journaled transaction and its transitions.
func (r *Result) addTransaction(rec ir.TransactionRecord) {
	r.Transactions = append(r.Transactions, rec)
	for _, t := range rec.Transitions {
		r.Trace = append(r.Trace, TraceEvent{Tx: rec.ID, Seq: t.Seq, State: t.State, Detail: t.Detail})
	}
}
