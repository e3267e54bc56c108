package clocktree

import (
	"github.com/roach88/lpsuspend/internal/regs"
	"github.com/roach88/lpsuspend/internal/wakeup"
)

// Plan is the set of writes PreEnter performs for one wake set, before the
// power register is combined with its saved value.
type Plan struct {
	Dividers []regs.Access `json:"dividers"`
	Selects  []regs.Access `json:"selects"`

	// Running maps each domain left running to its source code.
	Running map[string]uint32 `json:"running"`

	// PowerOff is the OR of the power masks of every PLL no running domain
	// depends on; PLLsOff names them in layout order.
	PowerOff uint32   `json:"power_off"`
	PLLsOff  []string `json:"plls_off"`
}

// source reports whether d keeps running under wake and on which source.
func (d Domain) source(wake wakeup.Set) (code uint32, pll string, running bool) {
	for _, w := range d.Wake {
		if wake.Intersects(w.Classes) {
			return w.Code, w.PLL, true
		}
	}
	if d.AlwaysOn {
		return d.Code, d.PLL, true
	}
	return 0, "", false
}

// Plan computes the PreEnter writes for wake without touching hardware.
func (l *Layout) Plan(wake wakeup.Set) Plan {
	p := Plan{Running: make(map[string]uint32)}

	for _, d := range l.Dividers {
		if d.SaveOnly {
			continue
		}
		p.Dividers = append(p.Dividers, regs.Access{Addr: d.Addr, Value: d.Safe})
	}

	needed := make(map[string]bool)
	for _, s := range l.Selects {
		pattern := s.Stop
		for _, d := range l.Domains {
			if d.Select != s.Name {
				continue
			}
			pattern |= d.fieldMask()
			code, pll, running := d.source(wake)
			if !running {
				continue
			}
			pattern = pattern&^d.fieldMask() | code<<d.Shift
			p.Running[d.Name] = code
			if pll != "" {
				needed[pll] = true
			}
		}
		p.Selects = append(p.Selects, regs.Access{Addr: s.Addr, Value: pattern})
	}

	for _, pll := range l.PLLs {
		if needed[pll.Name] {
			continue
		}
		p.PowerOff |= pll.PowerMask
		p.PLLsOff = append(p.PLLsOff, pll.Name)
	}
	return p
}

// Stopped reports whether the select pattern encodes domain d as stopped.
func (l *Layout) Stopped(plan Plan, domain string) bool {
	for _, d := range l.Domains {
		if d.Name != domain {
			continue
		}
		for i, s := range l.Selects {
			if s.Name == d.Select {
				return plan.Selects[i].Value&d.fieldMask() == d.fieldMask()
			}
		}
	}
	return false
}
