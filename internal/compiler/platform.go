package compiler

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue"

	"github.com/roach88/lpsuspend/internal/clocktree"
	"github.com/roach88/lpsuspend/internal/ir"
	"github.com/roach88/lpsuspend/internal/platform"
	"github.com/roach88/lpsuspend/internal/regs"
	"github.com/roach88/lpsuspend/internal/wakeup"
)

// Platform is a compiled platform definition.
type Platform struct {
	Name          string
	Description   string
	Programs      map[ir.SleepDepth]*ir.Program
	Flags         platform.Flags
	ChunkBytes    int
	MaxChunks     int
	Patches       map[string]uint32
	Clocks        clocktree.Layout
	LockPollLimit int
	Events        platform.EventMap
	Sim           SimConfig

	// Source is the file the definition was read from, or "<builtin>".
	Source string
}

// SimConfig describes the simulated board a platform runs on when no real
// register window is mapped.
type SimConfig struct {
	LoopsPerMs uint32
	Registers  map[uint32]uint32
	Links      []regs.Link
	Devices    []wakeup.Device
	Clocks     []SimClock
}

// SimClock seeds one clock of the simulated ClockRates.
type SimClock struct {
	Name   string
	Rate   uint64
	Parent string
}

// platformSpec mirrors #Platform for decoding; programs are parsed
// separately so that instruction errors keep their positions.
type platformSpec struct {
	Description string            `json:"description"`
	Flags       []string          `json:"flags"`
	ChunkBytes  int               `json:"chunk_bytes"`
	MaxChunks   int               `json:"max_chunks"`
	Patches     map[string]uint32 `json:"patches"`
	Clocks      clocksSpec        `json:"clocks"`
	Events      platform.EventMap `json:"events"`
	Sim         simSpec           `json:"sim"`
}

type clocksSpec struct {
	Dividers      []clocktree.Divider `json:"dividers"`
	Selects       []clocktree.Select  `json:"selects"`
	Domains       []domainSpec        `json:"domains"`
	PowerAddr     uint32              `json:"power_addr"`
	PLLs          []clocktree.PLL     `json:"plls"`
	Retunes       []retuneSpec        `json:"retunes"`
	LockPollLimit int                 `json:"lock_poll_limit"`
}

type domainSpec struct {
	Name     string           `json:"name"`
	Select   string           `json:"select"`
	Shift    uint32           `json:"shift"`
	Width    uint32           `json:"width"`
	AlwaysOn bool             `json:"always_on"`
	Code     uint32           `json:"code"`
	PLL      string           `json:"pll"`
	Wake     []wakeSourceSpec `json:"wake"`
}

type wakeSourceSpec struct {
	Classes []string `json:"classes"`
	Code    uint32   `json:"code"`
	PLL     string   `json:"pll"`
}

type retuneSpec struct {
	Clock      string   `json:"clock"`
	Parent     string   `json:"parent"`
	Divide     uint64   `json:"divide"`
	UnlessWake []string `json:"unless_wake"`
}

type simSpec struct {
	LoopsPerMs uint32 `json:"loops_per_ms"`
	Registers  []struct {
		Addr  uint32 `json:"addr"`
		Value uint32 `json:"value"`
	} `json:"registers"`
	Links   []regs.Link     `json:"links"`
	Devices []wakeup.Device `json:"devices"`
	Clocks  []struct {
		Name   string `json:"name"`
		Rate   uint64 `json:"rate"`
		Parent string `json:"parent"`
	} `json:"clocks"`
}

// CompilePlatform compiles the definition v of the platform called name.
// v must come from the same cue.Context as schema.
//
//	ctx := cuecontext.New()
//	schema := ctx.CompileString(schemaSource)
//	v := ctx.CompileString(src).LookupPath(cue.ParsePath("platform.stx7111"))
//	p, err := CompilePlatform("stx7111", schema, v)
func CompilePlatform(name string, schema, v cue.Value) (*Platform, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	field := "platform." + name

	def := schema.LookupPath(cue.ParsePath("#Platform"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	v = def.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var spec platformSpec
	if err := v.Decode(&spec); err != nil {
		return nil, formatCUEError(err)
	}

	p := &Platform{
		Name:          name,
		Description:   spec.Description,
		ChunkBytes:    spec.ChunkBytes,
		MaxChunks:     spec.MaxChunks,
		Patches:       spec.Patches,
		LockPollLimit: spec.Clocks.LockPollLimit,
		Events:        spec.Events,
	}

	for i, f := range spec.Flags {
		flag, err := platform.ParseFlag(f)
		if err != nil {
			return nil, &CompileError{
				Field:   fmt.Sprintf("%s.flags[%d]", field, i),
				Message: err.Error(),
				Pos:     v.LookupPath(cue.ParsePath("flags")).Pos(),
			}
		}
		p.Flags |= flag
	}

	programs, err := parsePrograms(v, field)
	if err != nil {
		return nil, err
	}
	p.Programs, err = applyPatches(programs, p.Patches, field)
	if err != nil {
		return nil, &CompileError{Field: field + ".patches", Message: err.Error(), Pos: v.LookupPath(cue.ParsePath("patches")).Pos()}
	}

	p.Clocks, err = spec.Clocks.layout()
	if err != nil {
		return nil, &CompileError{Field: field + ".clocks", Message: err.Error(), Pos: v.LookupPath(cue.ParsePath("clocks")).Pos()}
	}

	p.Sim = spec.Sim.config()
	return p, nil
}

// applyPatches substitutes every patch value into the Programs carrying its
// label. A label that appears in no Program is an error.
func applyPatches(programs map[ir.SleepDepth]*ir.Program, patches map[string]uint32, field string) (map[ir.SleepDepth]*ir.Program, error) {
	labels := make([]string, 0, len(patches))
	for label := range patches {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		used := false
		for depth, prog := range programs {
			if !hasLabel(prog, label) {
				continue
			}
			patched, err := prog.Patched(label, patches[label])
			if err != nil {
				return nil, err
			}
			programs[depth] = patched
			used = true
		}
		if !used {
			return nil, fmt.Errorf("label %q is not used by any program of %s", label, field)
		}
	}
	return programs, nil
}

func hasLabel(p *ir.Program, label string) bool {
	for _, l := range p.Labels() {
		if l == label {
			return true
		}
	}
	return false
}

func (c clocksSpec) layout() (clocktree.Layout, error) {
	l := clocktree.Layout{
		Dividers:  c.Dividers,
		Selects:   c.Selects,
		PowerAddr: c.PowerAddr,
		PLLs:      c.PLLs,
	}
	for _, d := range c.Domains {
		dom := clocktree.Domain{
			Name:     d.Name,
			Select:   d.Select,
			Shift:    d.Shift,
			Width:    d.Width,
			AlwaysOn: d.AlwaysOn,
			Code:     d.Code,
			PLL:      d.PLL,
		}
		for _, w := range d.Wake {
			set, err := parseClasses(w.Classes)
			if err != nil {
				return l, fmt.Errorf("domain %q: %w", d.Name, err)
			}
			dom.Wake = append(dom.Wake, clocktree.WakeSource{Classes: set, Code: w.Code, PLL: w.PLL})
		}
		l.Domains = append(l.Domains, dom)
	}
	for _, r := range c.Retunes {
		set, err := parseClasses(r.UnlessWake)
		if err != nil {
			return l, fmt.Errorf("retune %q: %w", r.Clock, err)
		}
		l.Retunes = append(l.Retunes, clocktree.Retune{
			Clock:      r.Clock,
			Parent:     r.Parent,
			Divide:     r.Divide,
			UnlessWake: set,
		})
	}
	return l, nil
}

func parseClasses(names []string) (wakeup.Set, error) {
	var set wakeup.Set
	for _, n := range names {
		c, err := wakeup.ParseClass(n)
		if err != nil {
			return 0, err
		}
		set = set.With(c)
	}
	return set, nil
}

func (s simSpec) config() SimConfig {
	cfg := SimConfig{
		LoopsPerMs: s.LoopsPerMs,
		Registers:  make(map[uint32]uint32, len(s.Registers)),
		Links:      s.Links,
		Devices:    s.Devices,
	}
	for _, r := range s.Registers {
		cfg.Registers[r.Addr] = r.Value
	}
	for _, c := range s.Clocks {
		cfg.Clocks = append(cfg.Clocks, SimClock{Name: c.Name, Rate: c.Rate, Parent: c.Parent})
	}
	return cfg
}

// Descriptor builds the registration record of p over the register file r.
// The hooks run the clock-tree algorithm of p's layout with the given
// ClockRates and wake device source.
func (p *Platform) Descriptor(r regs.File, rates clocktree.ClockRates, devices platform.DeviceSource, opts ...clocktree.Option) (*platform.Descriptor, error) {
	if p.LockPollLimit > 0 {
		opts = append([]clocktree.Option{clocktree.WithLockPollLimit(p.LockPollLimit)}, opts...)
	}
	tree, err := clocktree.New(p.Clocks, opts...)
	if err != nil {
		return nil, fmt.Errorf("platform %s: %w", p.Name, err)
	}

	programs := make(map[ir.SleepDepth]*ir.Program, len(p.Programs))
	for depth, prog := range p.Programs {
		programs[depth] = prog
	}

	return &platform.Descriptor{
		Name:     p.Name,
		Programs: programs,
		Hooks: &platform.ClockTreeHooks{
			Tree:    tree,
			Regs:    r,
			Rates:   rates,
			Devices: devices,
			Events:  p.Events,
		},
		Flags:      p.Flags,
		ChunkBytes: p.ChunkBytes,
	}, nil
}

// NewRegisters returns a simulated register file seeded with p's initial
// register values and status links.
func (p *Platform) NewRegisters() *regs.Sim {
	s := regs.NewSim(p.Sim.Registers)
	s.Link(p.Sim.Links...)
	return s
}

// NewRates returns an in-memory ClockRates holding p's simulated clocks.
func (p *Platform) NewRates() *clocktree.StaticRates {
	rates := clocktree.NewStaticRates()
	for _, c := range p.Sim.Clocks {
		rates.Rates[c.Name] = c.Rate
		if c.Parent != "" {
			rates.Parents[c.Name] = c.Parent
		}
	}
	return rates
}

// Depths returns the depths p has a Program for, in declaration order.
func (p *Platform) Depths() []ir.SleepDepth {
	var out []ir.SleepDepth
	for _, d := range ir.Depths {
		if _, ok := p.Programs[d]; ok {
			out = append(out, d)
		}
	}
	return out
}

// WithPatches returns a copy of p whose Programs carry the given operand
// values. p itself is left untouched.
func (p *Platform) WithPatches(patches map[string]uint32) (*Platform, error) {
	programs := make(map[ir.SleepDepth]*ir.Program, len(p.Programs))
	for depth, prog := range p.Programs {
		programs[depth] = prog
	}
	programs, err := applyPatches(programs, patches, "platform."+p.Name)
	if err != nil {
		return nil, err
	}

	q := *p
	q.Programs = programs
	q.Patches = make(map[string]uint32, len(p.Patches)+len(patches))
	for label, v := range p.Patches {
		q.Patches[label] = v
	}
	for label, v := range patches {
		q.Patches[label] = v
	}
	return &q, nil
}
