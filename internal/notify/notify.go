// Package notify implements the listener chain consulted around a sleep
// transaction: once before the halt ("may the system sleep now?") and after
// every wake ("the system woke because of X, sleep again?").
package notify

import (
	"errors"
	"sync"

	"github.com/roach88/lpsuspend/internal/ir"
)

// PrepareResult is a listener's answer before sleeping.
type PrepareResult int

const (
	Proceed PrepareResult = iota
	Abort
)

// String returns the result name.
func (r PrepareResult) String() string {
	if r == Abort {
		return "abort"
	}
	return "proceed"
}

// PostResult is a listener's answer after a wake.
type PostResult int

const (
	Continue PostResult = iota
	Again
)

// String returns the result name.
func (r PostResult) String() string {
	if r == Again {
		return "again"
	}
	return "continue"
}

// Listener is told about every sleep transaction.
//
// Prepare runs once per transaction, before any table is executed. Post runs
// after every wake; answering Again puts the system straight back to sleep
// without repeating the clock-tree save.
type Listener interface {
	Prepare(depth ir.SleepDepth) PrepareResult
	Post(depth ir.SleepDepth, cause ir.WakeCause) PostResult
}

// Funcs adapts plain functions to a Listener. Nil fields answer Proceed and
// Continue.
type Funcs struct {
	OnPrepare func(depth ir.SleepDepth) PrepareResult
	OnPost    func(depth ir.SleepDepth, cause ir.WakeCause) PostResult
}

// Prepare implements Listener.
func (f Funcs) Prepare(depth ir.SleepDepth) PrepareResult {
	if f.OnPrepare == nil {
		return Proceed
	}
	return f.OnPrepare(depth)
}

// Post implements Listener.
func (f Funcs) Post(depth ir.SleepDepth, cause ir.WakeCause) PostResult {
	if f.OnPost == nil {
		return Continue
	}
	return f.OnPost(depth, cause)
}

// ErrNilListener is returned when registering a nil Listener.
var ErrNilListener = errors.New("notify: nil listener")

// ID identifies a registration.
type ID uint64

type entry struct {
	id ID
	l  Listener
}

// Chain is an ordered list of listeners. The zero value is an empty chain;
// an empty chain always answers Proceed and Continue.
//
// Thread-safety: Chain is safe for concurrent use. Listeners are called
// without the lock held.
type Chain struct {
	mu      sync.Mutex
	entries []entry
	next    ID
}

// Register appends l to the chain.
func (c *Chain) Register(l Listener) (ID, error) {
	if l == nil {
		return 0, ErrNilListener
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	c.entries = append(c.entries, entry{id: c.next, l: l})
	return c.next, nil
}

// Unregister removes a registration. It reports whether id was registered.
func (c *Chain) Unregister(id ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.entries {
		if e.id == id {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered listeners.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Chain) listeners() []Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Listener, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.l
	}
	return out
}

// Prepare asks each listener in registration order. The first Abort stops
// the walk and is returned.
func (c *Chain) Prepare(depth ir.SleepDepth) PrepareResult {
	for _, l := range c.listeners() {
		if l.Prepare(depth) == Abort {
			return Abort
		}
	}
	return Proceed
}

// Post tells every listener about the wake. The result is Again if any
// listener asked for it.
func (c *Chain) Post(depth ir.SleepDepth, cause ir.WakeCause) PostResult {
	result := Continue
	for _, l := range c.listeners() {
		if l.Post(depth, cause) == Again {
			result = Again
		}
	}
	return result
}
