package testutil

import (
	"sync"

	"github.com/roach88/lpsuspend/internal/ir"
	"github.com/roach88/lpsuspend/internal/notify"
)

// ScriptedListener answers the notify chain from a script and remembers
// what it was told.
//
// Veto makes Prepare answer Abort. Again is the number of Post calls that
// answer Again before the listener is satisfied.
type ScriptedListener struct {
	Veto  bool
	Again int

	mu       sync.Mutex
	prepares int
	posts    []ir.WakeCause
}

// Prepare implements notify.Listener.
func (l *ScriptedListener) Prepare(ir.SleepDepth) notify.PrepareResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prepares++
	if l.Veto {
		return notify.Abort
	}
	return notify.Proceed
}

// Post implements notify.Listener.
func (l *ScriptedListener) Post(_ ir.SleepDepth, cause ir.WakeCause) notify.PostResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.posts = append(l.posts, cause)
	if len(l.posts) <= l.Again {
		return notify.Again
	}
	return notify.Continue
}

// Prepares returns how many times Prepare was called.
func (l *ScriptedListener) Prepares() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.prepares
}

// Posts returns every wake cause the listener was told about.
func (l *ScriptedListener) Posts() []ir.WakeCause {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ir.WakeCause(nil), l.posts...)
}
