// Package cpu defines the processor services the suspend engine needs:
// interrupt masking, the halt instruction, the wake event register and the
// delay-loop calibration.
package cpu

// State is an opaque saved interrupt mask, returned by DisableInterrupts and
// handed back to RestoreInterrupts.
type State uint32

// CPU is the processor collaborator.
//
// WaitForInterrupt is the only blocking call. It returns once an event
// allowed through the current mask arrives; the event is then available from
// WakeEvent until the next halt.
type CPU interface {
	DisableInterrupts() State
	RestoreInterrupts(State)
	InInterrupt() bool
	WaitForInterrupt()
	WakeEvent() uint32
	LoopsPerMillisecond() uint32
}
