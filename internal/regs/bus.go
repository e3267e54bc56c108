package regs

import (
	"fmt"
	"sort"
	"sync/atomic"
)

// Window is an inclusive address range served by one File.
type Window struct {
	Start uint32
	End   uint32
	File  File
}

// Bus routes each access to the Window containing its address.
//
// Windows are attached while the platform is being set up; Seal forbids
// further attachment once a sleep transaction may run.
type Bus struct {
	windows []Window
	sealed  atomic.Bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Attach maps [start, end] to f. Overlapping windows are rejected.
func (b *Bus) Attach(start, end uint32, f File) error {
	if b.sealed.Load() {
		return fmt.Errorf("attach 0x%08x-0x%08x: bus is sealed", start, end)
	}
	if end < start {
		return fmt.Errorf("attach 0x%08x-0x%08x: end before start", start, end)
	}
	if f == nil {
		return fmt.Errorf("attach 0x%08x-0x%08x: nil register file", start, end)
	}
	for _, w := range b.windows {
		if start <= w.End && w.Start <= end {
			return fmt.Errorf("attach 0x%08x-0x%08x: overlaps 0x%08x-0x%08x", start, end, w.Start, w.End)
		}
	}
	b.windows = append(b.windows, Window{Start: start, End: end, File: f})
	sort.Slice(b.windows, func(i, j int) bool { return b.windows[i].Start < b.windows[j].Start })
	return nil
}

// Seal prevents further Attach calls.
func (b *Bus) Seal() {
	b.sealed.Store(true)
}

// Windows returns the attached windows in address order.
func (b *Bus) Windows() []Window {
	out := make([]Window, len(b.windows))
	copy(out, b.windows)
	return out
}

// Contains reports whether addr falls inside an attached window.
func (b *Bus) Contains(addr uint32) bool {
	return b.find(addr) != nil
}

func (b *Bus) find(addr uint32) *Window {
	i := sort.Search(len(b.windows), func(i int) bool { return b.windows[i].End >= addr })
	if i < len(b.windows) && b.windows[i].Start <= addr {
		return &b.windows[i]
	}
	return nil
}

// Read implements File. It panics if addr is unmapped.
func (b *Bus) Read(addr uint32) uint32 {
	w := b.find(addr)
	if w == nil {
		panic(fmt.Sprintf("regs: read of unmapped register 0x%08x", addr))
	}
	return w.File.Read(addr)
}

// Write implements File. It panics if addr is unmapped.
func (b *Bus) Write(addr, value uint32) {
	w := b.find(addr)
	if w == nil {
		panic(fmt.Sprintf("regs: write of unmapped register 0x%08x", addr))
	}
	w.File.Write(addr, value)
}
