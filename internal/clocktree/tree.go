package clocktree

import (
	"fmt"
	"log/slog"

	"github.com/roach88/lpsuspend/internal/regs"
	"github.com/roach88/lpsuspend/internal/wakeup"
)

// Tree runs the save/gate/restore algorithm for one Layout.
type Tree struct {
	layout        Layout
	arena         *Arena
	lockPollLimit int
}

// Option configures a Tree.
type Option func(*Tree)

// WithLockPollLimit bounds each PLL lock wait to n reads. Zero (the default)
// spins until the PLL locks.
func WithLockPollLimit(n int) Option {
	return func(t *Tree) {
		t.lockPollLimit = n
	}
}

// WithArena makes the tree allocate snapshots from a, instead of from a
// private arena sized for exactly one snapshot.
func WithArena(a *Arena) Option {
	return func(t *Tree) {
		t.arena = a
	}
}

// New creates a Tree. The layout must be valid.
func New(layout Layout, opts ...Option) (*Tree, error) {
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid clock layout: %w", err)
	}
	t := &Tree{layout: layout}
	for _, opt := range opts {
		opt(t)
	}
	if t.arena == nil {
		t.arena = NewArena(layout.SnapshotSize())
	}
	return t, nil
}

// Layout returns the tree's layout.
func (t *Tree) Layout() *Layout {
	return &t.layout
}

// Arena returns the arena snapshots are allocated from.
func (t *Tree) Arena() *Arena {
	return t.arena
}

// PreEnter saves the clock tree and gates it down to what wake needs.
//
// The snapshot is allocated before any register is read; on *AllocError the
// hardware is untouched. Capture order is dividers, selects, power register.
func (t *Tree) PreEnter(r regs.File, wake wakeup.Set) (*Snapshot, error) {
	snap, err := t.arena.alloc(t.layout.SnapshotSize())
	if err != nil {
		return nil, err
	}

	for _, d := range t.layout.Dividers {
		snap.entries = append(snap.entries, Entry{Kind: KindDivider, Name: d.Name, Addr: d.Addr, Value: r.Read(d.Addr)})
	}
	for _, s := range t.layout.Selects {
		snap.entries = append(snap.entries, Entry{Kind: KindSelect, Name: s.Name, Addr: s.Addr, Value: r.Read(s.Addr)})
	}
	var power uint32
	if len(t.layout.PLLs) > 0 {
		power = r.Read(t.layout.PowerAddr)
		snap.entries = append(snap.entries, Entry{Kind: KindPower, Name: "power", Addr: t.layout.PowerAddr, Value: power})
	}

	plan := t.layout.Plan(wake)
	for _, w := range plan.Dividers {
		r.Write(w.Addr, w.Value)
	}
	for _, w := range plan.Selects {
		r.Write(w.Addr, w.Value)
	}
	if len(t.layout.PLLs) > 0 {
		r.Write(t.layout.PowerAddr, power|plan.PowerOff)
	}
	// PLLs that were already off stay off after restore; no lock to wait for.
	for _, name := range plan.PLLsOff {
		if power&t.pll(name).PowerMask == 0 {
			snap.poweredOff = append(snap.poweredOff, name)
		}
	}

	slog.Debug("clock tree saved",
		"registers", len(snap.entries),
		"wake", wake.String(),
		"running", len(plan.Running),
		"plls_off", snap.poweredOff)

	return snap, nil
}

// PostEnter powers the PLLs back up, waits for lock and restores snapshot
// in reverse capture order, then frees it.
//
// A nil snapshot is accepted and does nothing, so PostEnter can run on every
// exit path. If a lock wait times out the snapshot is still restored and
// freed, and the *HardwareTimeoutError is returned.
func (t *Tree) PostEnter(r regs.File, snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	if snap.consumed {
		return ErrSnapshotConsumed
	}
	if snap.arena != t.arena {
		return fmt.Errorf("clocktree: snapshot belongs to another tree")
	}

	var timeout error
	if len(t.layout.PLLs) > 0 {
		var off uint32
		for _, name := range snap.poweredOff {
			off |= t.pll(name).PowerMask
		}
		r.Write(t.layout.PowerAddr, r.Read(t.layout.PowerAddr)&^off)

		for _, name := range snap.poweredOff {
			if err := t.waitLock(r, t.pll(name)); err != nil && timeout == nil {
				timeout = err
			}
		}
	}

	for i := len(snap.entries) - 1; i >= 0; i-- {
		e := snap.entries[i]
		r.Write(e.Addr, e.Value)
	}
	restored := len(snap.entries)
	t.arena.release(snap)

	slog.Debug("clock tree restored", "registers", restored, "timeout", timeout != nil)
	return timeout
}

func (t *Tree) pll(name string) PLL {
	for _, p := range t.layout.PLLs {
		if p.Name == name {
			return p
		}
	}
	panic(fmt.Sprintf("clocktree: unknown pll %q", name))
}

func (t *Tree) waitLock(r regs.File, p PLL) error {
	polls := 0
	for {
		polls++
		if r.Read(p.LockAddr)&p.LockMask == p.LockMask {
			return nil
		}
		if t.lockPollLimit > 0 && polls >= t.lockPollLimit {
			return &HardwareTimeoutError{PLL: p.Name, Addr: p.LockAddr, Mask: p.LockMask, Polls: polls}
		}
	}
}
