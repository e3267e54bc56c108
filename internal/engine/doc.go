// Package engine runs sleep transactions: the orchestration state machine
// around the hardware halt, and the registration of the platform it runs on.
//
// ARCHITECTURE:
//
// Single transaction at a time:
// A Manager serializes Enter against itself and against registration. One
// transaction walks
//
//	Idle → Begin → PreEnter → NotifyPrepare → ExecuteSuspendLeg →
//	ExecuteResumeLeg → NotifyPostEnter → PostEnter → Done
//
// where a listener answering Again at NotifyPostEnter sends it back to
// ExecuteSuspendLeg. Begin, PreEnter, NotifyPrepare and PostEnter run once
// per transaction however many times the program executes.
//
// Paired save/restore:
// PreEnter hands back a clock-tree Snapshot; PostEnter consumes it. Once
// PreEnter has been called, PostEnter is called on every exit path,
// including PreEnter's own failure (with a nil snapshot) and a veto.
//
// CRITICAL PATTERNS:
//
// Logical clock:
// Every transition is stamped by Clock.Next(). The journal orders
// transitions by seq, never by wall time.
//
// Journal after Done:
// Nothing is written to the Recorder while the hardware is asleep. The
// record is handed over once the transaction has reached Done.
package engine
