package executor

import (
	"errors"
	"fmt"

	"github.com/roach88/lpsuspend/internal/ir"
)

// ErrInterruptContext is returned when a Program is started from interrupt
// context. The check runs before any register access.
var ErrInterruptContext = errors.New("executor: cannot run a suspend program from interrupt context")

// PollLimitError reports a WaitUntil that did not see its expected value
// within the configured poll limit. Only returned when WithPollLimit is set.
type PollLimitError struct {
	Leg      ir.Leg
	Index    int
	Addr     uint32
	Mask     uint32
	Expected uint32
	Last     uint32
	Polls    int
}

// Error implements the error interface.
func (e *PollLimitError) Error() string {
	return fmt.Sprintf("%s leg instruction %d: register 0x%08x & 0x%08x still 0x%08x after %d polls (want 0x%08x)",
		e.Leg, e.Index, e.Addr, e.Mask, e.Last&e.Mask, e.Polls, e.Expected)
}

// IsPollLimitError returns true if the error is a PollLimitError.
// Uses errors.As to handle wrapped errors.
func IsPollLimitError(err error) bool {
	var pe *PollLimitError
	return errors.As(err, &pe)
}
