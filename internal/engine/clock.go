package engine

import "sync/atomic"

// Sequencer hands out strictly increasing sequence numbers.
type Sequencer interface {
	Next() int64
	Current() int64
}

// Clock is the logical clock that stamps every state transition.
//
// Transitions are ordered by seq, never by wall time, so a journal replayed
// from the store lists a transaction in the order the Manager walked it.
// A Manager keeps one Clock for its lifetime; sequence numbers are unique
// across transactions.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific sequence number.
// Used to continue numbering after the last transaction in a journal.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
