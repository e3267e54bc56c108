package engine

import (
	"errors"
	"fmt"
)

// AttemptBudget counts suspend/resume executions within one transaction and
// enforces WithMaxAttempts. A zero limit never fails: by default listeners
// may ask for as many retries as they like.
type AttemptBudget struct {
	limit   int
	current int
}

// NewAttemptBudget creates a budget allowing limit executions (0 = unbounded).
func NewAttemptBudget(limit int) *AttemptBudget {
	return &AttemptBudget{limit: limit}
}

// Check counts one more execution and fails if it would exceed the limit.
func (b *AttemptBudget) Check(txID string) error {
	if b.limit > 0 && b.current >= b.limit {
		return &AttemptsExceededError{TxID: txID, Attempts: b.current, Limit: b.limit}
	}
	b.current++
	return nil
}

// Current returns the number of executions counted so far.
func (b *AttemptBudget) Current() int {
	return b.current
}

// Limit returns the configured limit (0 = unbounded).
func (b *AttemptBudget) Limit() int {
	return b.limit
}

// AttemptsExceededError is returned when listeners keep answering Again
// beyond the configured limit. The clock tree is still restored.
type AttemptsExceededError struct {
	TxID     string
	Attempts int
	Limit    int
}

func (e *AttemptsExceededError) Error() string {
	return fmt.Sprintf("transaction %s ran %d times, limit %d", e.TxID, e.Attempts, e.Limit)
}

// IsAttemptsExceededError reports whether err is, or wraps, an
// AttemptsExceededError.
func IsAttemptsExceededError(err error) bool {
	var ae *AttemptsExceededError
	return errors.As(err, &ae)
}
