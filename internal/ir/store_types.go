package ir

// TransactionRecord is the journal entry for one sleep transaction.
// Outcome is "ok" or the error code that ended the transaction.
type TransactionRecord struct {
	ID          string       `json:"id"`
	Platform    string       `json:"platform"`
	Depth       string       `json:"depth"`
	Outcome     string       `json:"outcome"`
	Error       string       `json:"error,omitempty"`
	RawEvent    uint32       `json:"raw_event"`
	WakeCause   uint32       `json:"wake_cause"`
	Attempts    int          `json:"attempts"`
	ProgramHash string       `json:"program_hash"`
	Seq         int64        `json:"seq"` // Logical clock at Done
	Transitions []Transition `json:"transitions"`
}

// Transition is one state entered by the orchestration state machine.
type Transition struct {
	Seq    int64  `json:"seq"`
	State  string `json:"state"`
	Detail string `json:"detail,omitempty"`
}
