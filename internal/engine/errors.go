package engine

import (
	"errors"
	"fmt"
)

// SuspendError reports why a sleep transaction did not complete.
//
// Every SuspendError is returned after the orchestration has unwound: if
// PreEnter ran, PostEnter ran too, and interrupts are enabled again.
type SuspendError struct {
	// Code identifies the error category.
	Code SuspendErrorCode

	// Message is a human-readable description.
	Message string

	// TxID identifies the transaction, if one was started.
	TxID string

	// Depth is the requested sleep depth.
	Depth string

	// Err is the underlying cause, if any.
	Err error
}

// SuspendErrorCode categorizes suspend errors.
type SuspendErrorCode string

const (
	// ErrCodeNoPlatform indicates Enter was called with no registered platform.
	ErrCodeNoPlatform SuspendErrorCode = "NO_PLATFORM"

	// ErrCodeNotSupported indicates the platform cannot enter the depth.
	ErrCodeNotSupported SuspendErrorCode = "NOT_SUPPORTED"

	// ErrCodeInterruptContext indicates Enter was called from interrupt context.
	ErrCodeInterruptContext SuspendErrorCode = "INTERRUPT_CONTEXT"

	// ErrCodeBeginFailed indicates the platform Begin hook failed.
	ErrCodeBeginFailed SuspendErrorCode = "BEGIN_FAILED"

	// ErrCodeAllocFailed indicates PreEnter could not take its snapshot.
	ErrCodeAllocFailed SuspendErrorCode = "ALLOC_FAILED"

	// ErrCodePreEnterFailed indicates the PreEnter hook failed for a reason
	// other than snapshot allocation.
	ErrCodePreEnterFailed SuspendErrorCode = "PRE_ENTER_FAILED"

	// ErrCodeVetoed indicates a listener answered Abort.
	ErrCodeVetoed SuspendErrorCode = "VETOED"

	// ErrCodePollLimit indicates a WaitUntil exceeded its bound.
	ErrCodePollLimit SuspendErrorCode = "POLL_LIMIT"

	// ErrCodeAttemptsExceeded indicates listeners asked for too many retries.
	ErrCodeAttemptsExceeded SuspendErrorCode = "ATTEMPTS_EXCEEDED"

	// ErrCodeHardwareTimeout indicates a PLL never locked during PostEnter.
	ErrCodeHardwareTimeout SuspendErrorCode = "HARDWARE_TIMEOUT"

	// ErrCodePostEnterFailed indicates PostEnter failed for another reason.
	ErrCodePostEnterFailed SuspendErrorCode = "POST_ENTER_FAILED"
)

var suspendErrorCodes = []SuspendErrorCode{
	ErrCodeNoPlatform,
	ErrCodeNotSupported,
	ErrCodeInterruptContext,
	ErrCodeBeginFailed,
	ErrCodeAllocFailed,
	ErrCodePreEnterFailed,
	ErrCodeVetoed,
	ErrCodePollLimit,
	ErrCodeAttemptsExceeded,
	ErrCodeHardwareTimeout,
	ErrCodePostEnterFailed,
}

// IsKnownCode reports whether s names a SuspendErrorCode.
func IsKnownCode(s string) bool {
	for _, c := range suspendErrorCodes {
		if string(c) == s {
			return true
		}
	}
	return false
}

// Error implements the error interface.
func (e *SuspendError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.TxID != "" {
		msg = fmt.Sprintf("%s (tx=%s, depth=%s)", msg, e.TxID, e.Depth)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *SuspendError) Unwrap() error {
	return e.Err
}

// CodeOf returns the SuspendErrorCode carried by err, or "" if err is not a
// SuspendError.
func CodeOf(err error) SuspendErrorCode {
	var se *SuspendError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsVetoed reports whether a listener aborted the transaction.
func IsVetoed(err error) bool {
	return CodeOf(err) == ErrCodeVetoed
}

// IsAllocFailed reports whether PreEnter failed to take its snapshot.
func IsAllocFailed(err error) bool {
	return CodeOf(err) == ErrCodeAllocFailed
}

// IsHardwareTimeout reports whether a PLL lock wait timed out.
func IsHardwareTimeout(err error) bool {
	return CodeOf(err) == ErrCodeHardwareTimeout
}

// RegistrationError reports a rejected Register or Unregister call. The
// active platform is unchanged.
type RegistrationError struct {
	Code    RegistrationErrorCode
	Message string
	// Platform names the descriptor involved, if any.
	Platform string
}

// RegistrationErrorCode categorizes registration errors.
type RegistrationErrorCode string

const (
	ErrCodeNilDescriptor     RegistrationErrorCode = "NIL_DESCRIPTOR"
	ErrCodeEmptyDescriptor   RegistrationErrorCode = "EMPTY_DESCRIPTOR"
	ErrCodeAlreadyRegistered RegistrationErrorCode = "ALREADY_REGISTERED"
	ErrCodeNotRegistered     RegistrationErrorCode = "NOT_REGISTERED"
)

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	if e.Platform != "" {
		return fmt.Sprintf("%s: %s (platform=%s)", e.Code, e.Message, e.Platform)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsRegistrationError reports whether err is, or wraps, a RegistrationError.
func IsRegistrationError(err error) bool {
	var re *RegistrationError
	return errors.As(err, &re)
}
