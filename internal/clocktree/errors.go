package clocktree

import (
	"errors"
	"fmt"
)

// ErrSnapshotConsumed is returned when PostEnter is handed a snapshot that
// an earlier PostEnter already restored and freed.
var ErrSnapshotConsumed = errors.New("clocktree: snapshot already consumed")

// AllocError reports that no snapshot could be allocated. No register has
// been read or written when it is returned.
type AllocError struct {
	Need int
	Free int
}

// Error implements the error interface.
func (e *AllocError) Error() string {
	return fmt.Sprintf("clocktree: cannot allocate snapshot of %d registers (%d free)", e.Need, e.Free)
}

// HardwareTimeoutError reports a PLL whose lock flag never rose within the
// lock poll limit. Only returned when WithLockPollLimit is set.
type HardwareTimeoutError struct {
	PLL   string
	Addr  uint32
	Mask  uint32
	Polls int
}

// Error implements the error interface.
func (e *HardwareTimeoutError) Error() string {
	return fmt.Sprintf("clocktree: pll %s did not lock after %d polls (0x%08x & 0x%08x)", e.PLL, e.Polls, e.Addr, e.Mask)
}

// IsAllocError returns true if the error is an AllocError.
func IsAllocError(err error) bool {
	var ae *AllocError
	return errors.As(err, &ae)
}

// IsHardwareTimeoutError returns true if the error is a HardwareTimeoutError.
func IsHardwareTimeoutError(err error) bool {
	var he *HardwareTimeoutError
	return errors.As(err, &he)
}
