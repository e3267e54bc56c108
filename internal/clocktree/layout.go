package clocktree

import (
	"fmt"

	"github.com/roach88/lpsuspend/internal/wakeup"
)

// Divider is a clock divider register.
//
// Safe is written during PreEnter. SaveOnly dividers are captured and
// restored but never rewritten, for registers that source switching can
// disturb.
type Divider struct {
	Name     string `json:"name"`
	Addr     uint32 `json:"addr"`
	Safe     uint32 `json:"safe"`
	SaveOnly bool   `json:"save_only,omitempty"`
}

// Select is a source-select register holding one field per domain.
// Stop is the pattern for bits not owned by any domain, usually all ones.
type Select struct {
	Name string `json:"name"`
	Addr uint32 `json:"addr"`
	Stop uint32 `json:"stop"`
}

// WakeSource keeps a domain running on a specific source while any of
// Classes may wake the system.
type WakeSource struct {
	Classes wakeup.Set `json:"classes"`
	Code    uint32     `json:"code"`
	PLL     string     `json:"pll,omitempty"`
}

// Domain is one clock output, controlled by a Width-bit field at Shift in
// its Select register. The all-ones field value stops the domain.
//
// A domain keeps running during sleep when a WakeSource matches the wake set
// (first match wins) or when it is AlwaysOn, in which case Code and PLL give
// its source.
type Domain struct {
	Name     string       `json:"name"`
	Select   string       `json:"select"`
	Shift    uint32       `json:"shift"`
	Width    uint32       `json:"width"`
	AlwaysOn bool         `json:"always_on,omitempty"`
	Code     uint32       `json:"code,omitempty"`
	PLL      string       `json:"pll,omitempty"`
	Wake     []WakeSource `json:"wake,omitempty"`
}

func (d Domain) fieldMask() uint32 {
	return (uint32(1)<<d.Width - 1) << d.Shift
}

func (d Domain) stopCode() uint32 {
	return uint32(1)<<d.Width - 1
}

// PLL is a phase-locked loop that can be powered down.
//
// PowerMask is the bit in the layout's power register that turns the PLL
// off. LockMask is the bit at LockAddr that reads as one once the PLL has
// locked.
type PLL struct {
	Name      string `json:"name"`
	PowerMask uint32 `json:"power_mask"`
	LockAddr  uint32 `json:"lock_addr"`
	LockMask  uint32 `json:"lock_mask"`
}

// Retune slows a low-priority clock through the ClockRates collaborator,
// unless one of UnlessWake may wake the system.
//
// The clock is reparented to Parent and set to Parent's rate divided by
// Divide. The original parent and rate are put back after wake.
type Retune struct {
	Clock      string     `json:"clock"`
	Parent     string     `json:"parent"`
	Divide     uint64     `json:"divide"`
	UnlessWake wakeup.Set `json:"unless_wake,omitempty"`
}

// Layout is the per-chip description of the clock generator.
type Layout struct {
	Dividers  []Divider `json:"dividers,omitempty"`
	Selects   []Select  `json:"selects,omitempty"`
	Domains   []Domain  `json:"domains,omitempty"`
	PowerAddr uint32    `json:"power_addr,omitempty"`
	PLLs      []PLL     `json:"plls,omitempty"`
	Retunes   []Retune  `json:"retunes,omitempty"`
}

// IsEmpty reports whether the layout saves nothing.
func (l *Layout) IsEmpty() bool {
	return len(l.Dividers) == 0 && len(l.Selects) == 0 && len(l.PLLs) == 0
}

// SnapshotSize is the number of registers a snapshot holds.
func (l *Layout) SnapshotSize() int {
	n := len(l.Dividers) + len(l.Selects)
	if len(l.PLLs) > 0 {
		n++
	}
	return n
}

// Validate checks internal consistency. Register addresses are opaque and
// not checked.
func (l *Layout) Validate() error {
	names := make(map[string]bool)
	unique := func(kind, name string) error {
		if name == "" {
			return fmt.Errorf("%s with empty name", kind)
		}
		if names[name] {
			return fmt.Errorf("duplicate name %q", name)
		}
		names[name] = true
		return nil
	}

	for _, d := range l.Dividers {
		if err := unique("divider", d.Name); err != nil {
			return err
		}
	}

	selects := make(map[string]bool)
	for _, s := range l.Selects {
		if err := unique("select", s.Name); err != nil {
			return err
		}
		selects[s.Name] = true
	}

	plls := make(map[string]bool)
	var power uint32
	for _, p := range l.PLLs {
		if err := unique("pll", p.Name); err != nil {
			return err
		}
		if p.PowerMask == 0 {
			return fmt.Errorf("pll %q: power_mask must not be zero", p.Name)
		}
		if power&p.PowerMask != 0 {
			return fmt.Errorf("pll %q: power_mask 0x%x overlaps another pll", p.Name, p.PowerMask)
		}
		if p.LockMask == 0 {
			return fmt.Errorf("pll %q: lock_mask must not be zero", p.Name)
		}
		power |= p.PowerMask
		plls[p.Name] = true
	}

	fields := make(map[string]uint32)
	for _, d := range l.Domains {
		if err := unique("domain", d.Name); err != nil {
			return err
		}
		if !selects[d.Select] {
			return fmt.Errorf("domain %q: unknown select %q", d.Name, d.Select)
		}
		if d.Width == 0 || d.Width > 8 || d.Shift+d.Width > 32 {
			return fmt.Errorf("domain %q: field [%d+%d] does not fit a 32-bit register", d.Name, d.Shift, d.Width)
		}
		if fields[d.Select]&d.fieldMask() != 0 {
			return fmt.Errorf("domain %q: field overlaps another domain in %q", d.Name, d.Select)
		}
		fields[d.Select] |= d.fieldMask()

		check := func(code uint32, pll, what string) error {
			if code >= d.stopCode() {
				return fmt.Errorf("domain %q: %s code %d is the stop encoding or does not fit %d bits", d.Name, what, code, d.Width)
			}
			if pll != "" && !plls[pll] {
				return fmt.Errorf("domain %q: %s references unknown pll %q", d.Name, what, pll)
			}
			return nil
		}
		if d.AlwaysOn {
			if err := check(d.Code, d.PLL, "always-on"); err != nil {
				return err
			}
		}
		for i, w := range d.Wake {
			if w.Classes == 0 {
				return fmt.Errorf("domain %q: wake source %d names no class", d.Name, i)
			}
			if err := check(w.Code, w.PLL, fmt.Sprintf("wake source %d", i)); err != nil {
				return err
			}
		}
	}

	for _, r := range l.Retunes {
		if r.Clock == "" || r.Parent == "" {
			return fmt.Errorf("retune needs clock and parent")
		}
		if r.Divide == 0 {
			return fmt.Errorf("retune %q: divide must be at least 1", r.Clock)
		}
	}
	return nil
}
