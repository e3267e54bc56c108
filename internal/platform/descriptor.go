// Package platform describes a chip to the suspend engine: its Programs per
// sleep depth, its hooks and its behaviour flags.
package platform

import (
	"fmt"

	"github.com/roach88/lpsuspend/internal/clocktree"
	"github.com/roach88/lpsuspend/internal/ir"
	"github.com/roach88/lpsuspend/internal/wakeup"
)

// DefaultChunkBytes is the residency granularity used when a Descriptor
// leaves ChunkBytes unset: one SH-4 L1 cache line.
const DefaultChunkBytes = 32

// Flags alter how the engine drives a platform.
type Flags uint32

const (
	// FlagNoSleepOnStandby runs the standby tables without halting the CPU.
	FlagNoSleepOnStandby Flags = 1 << iota
	// FlagNoSleepOnSelfRefresh runs the self-refresh tables without halting.
	FlagNoSleepOnSelfRefresh
	// FlagAllowStandby reports Standby as supported even when its Program
	// is empty.
	FlagAllowStandby
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagNoSleepOnStandby, "no_sleep_on_standby"},
	{FlagNoSleepOnSelfRefresh, "no_sleep_on_self_refresh"},
	{FlagAllowStandby, "allow_standby"},
}

// ParseFlag converts a configuration name to a Flag.
func ParseFlag(s string) (Flags, error) {
	for _, f := range flagNames {
		if f.name == s {
			return f.flag, nil
		}
	}
	return 0, fmt.Errorf("unknown platform flag %q", s)
}

// Names returns the names of the set flags.
func (f Flags) Names() []string {
	var names []string
	for _, fl := range flagNames {
		if f&fl.flag != 0 {
			names = append(names, fl.name)
		}
	}
	return names
}

// Sleeps reports whether the CPU should really halt at depth.
func (f Flags) Sleeps(depth ir.SleepDepth) bool {
	switch depth {
	case ir.Standby:
		return f&FlagNoSleepOnStandby == 0
	case ir.SelfRefresh:
		return f&FlagNoSleepOnSelfRefresh == 0
	default:
		return true
	}
}

// Hooks is the per-platform capability set. Embed NopHooks to inherit the
// default for any hook a platform does not need.
//
// PostEnter runs on every exit path after Begin succeeded, including after a
// failed PreEnter, in which case snap is nil.
type Hooks interface {
	Begin(depth ir.SleepDepth) (wakeup.Set, error)
	PreEnter(depth ir.SleepDepth, wake wakeup.Set) (*clocktree.Snapshot, error)
	PostEnter(depth ir.SleepDepth, snap *clocktree.Snapshot) error
	TranslateWakeEvent(raw uint32) uint32
}

// NopHooks is the default capability set: no wake devices, no clock-tree
// work and the generic SH-4 event translation.
type NopHooks struct{}

// Begin implements Hooks.
func (NopHooks) Begin(ir.SleepDepth) (wakeup.Set, error) { return 0, nil }

// PreEnter implements Hooks.
func (NopHooks) PreEnter(ir.SleepDepth, wakeup.Set) (*clocktree.Snapshot, error) { return nil, nil }

// PostEnter implements Hooks.
func (NopHooks) PostEnter(ir.SleepDepth, *clocktree.Snapshot) error { return nil }

// TranslateWakeEvent implements Hooks.
func (NopHooks) TranslateWakeEvent(raw uint32) uint32 { return EvtToIRQ(raw) }

// Descriptor is the registration record of one platform.
type Descriptor struct {
	Name       string
	Programs   map[ir.SleepDepth]*ir.Program
	Hooks      Hooks
	Flags      Flags
	ChunkBytes int
}

// Program returns the Program for depth, or nil.
func (d *Descriptor) Program(depth ir.SleepDepth) *ir.Program {
	if d == nil {
		return nil
	}
	return d.Programs[depth]
}

// HooksOrDefault returns the descriptor's hooks, or NopHooks if none.
func (d *Descriptor) HooksOrDefault() Hooks {
	if d.Hooks == nil {
		return NopHooks{}
	}
	return d.Hooks
}

// Chunks returns the residency size of the Program for depth.
func (d *Descriptor) Chunks(depth ir.SleepDepth) int {
	n := d.ChunkBytes
	if n <= 0 {
		n = DefaultChunkBytes
	}
	return ir.Chunks(d.Program(depth), n)
}

// Supports reports whether the platform can enter depth: its Program is
// non-empty, or depth is Standby and FlagAllowStandby is set.
func (d *Descriptor) Supports(depth ir.SleepDepth) bool {
	if d == nil {
		return false
	}
	if !d.Program(depth).IsEmpty() {
		return true
	}
	return depth == ir.Standby && d.Flags&FlagAllowStandby != 0
}
