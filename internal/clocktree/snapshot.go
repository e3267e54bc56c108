package clocktree

import "sync"

// EntryKind tells which part of the layout a snapshot entry came from.
type EntryKind string

const (
	KindDivider EntryKind = "divider"
	KindSelect  EntryKind = "select"
	KindPower   EntryKind = "power"
)

// Entry is one saved register.
type Entry struct {
	Kind  EntryKind `json:"kind"`
	Name  string    `json:"name"`
	Addr  uint32    `json:"addr"`
	Value uint32    `json:"value"`
}

// Snapshot holds the pre-sleep register values of one transaction, in
// capture order. It is owned by the transaction and consumed by exactly one
// PostEnter.
type Snapshot struct {
	arena      *Arena
	entries    []Entry
	poweredOff []string
	consumed   bool
}

// Entries returns a copy of the saved registers in capture order.
func (s *Snapshot) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// PoweredOff returns the names of the PLLs PreEnter powered down.
func (s *Snapshot) PoweredOff() []string {
	return append([]string(nil), s.poweredOff...)
}

// Consumed reports whether PostEnter has already freed the snapshot.
func (s *Snapshot) Consumed() bool {
	return s.consumed
}

// Arena is a fixed pool of snapshot slots. Allocation never grows it, so the
// capacity bounds how many transactions can hold a snapshot at once.
//
// Slots are handed out in stack order. A snapshot freed while a later one
// is still live keeps its slots reserved until every snapshot above it has
// been freed too, so an Arena may be shared between Trees.
//
// Thread-safety: Arena is safe for concurrent use.
type Arena struct {
	mu    sync.Mutex
	slots []Entry
	used  int
	live  []*Snapshot // allocation order; freed entries wait here until on top
}

// NewArena creates an arena holding capacity register slots.
func NewArena(capacity int) *Arena {
	return &Arena{slots: make([]Entry, capacity)}
}

// Free returns the number of unused slots.
func (a *Arena) Free() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.slots) - a.used
}

// alloc reserves n slots on top of the stack.
func (a *Arena) alloc(n int) (*Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	free := len(a.slots) - a.used
	if n > free {
		return nil, &AllocError{Need: n, Free: free}
	}
	s := &Snapshot{arena: a, entries: a.slots[a.used : a.used : a.used+n]}
	a.used += n
	a.live = append(a.live, s)
	return s, nil
}

// release frees s, then reclaims the slots of every freed snapshot at the
// top of the stack.
func (a *Arena) release(s *Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s.consumed = true
	for len(a.live) > 0 {
		top := a.live[len(a.live)-1]
		if !top.consumed {
			break
		}
		n := cap(top.entries)
		clear(top.entries[:n])
		top.entries = nil
		a.used -= n
		a.live = a.live[:len(a.live)-1]
	}
}
