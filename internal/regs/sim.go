package regs

import (
	"maps"
	"slices"
	"sync"
)

// Link makes a status bit follow a control bit, the way hardware raises an
// acknowledge or lock flag after a request.
//
// After every write to From, the ToMask bits of To are set when
// (value & FromMask) != 0, and cleared otherwise. Invert swaps the two cases,
// which models "PLL powered down" clearing "PLL locked".
type Link struct {
	From     uint32 `json:"from" yaml:"from"`
	FromMask uint32 `json:"from_mask" yaml:"from_mask"`
	To       uint32 `json:"to" yaml:"to"`
	ToMask   uint32 `json:"to_mask" yaml:"to_mask"`
	Invert   bool   `json:"invert,omitempty" yaml:"invert,omitempty"`

	// Delay is the number of reads of To that still return the old value
	// after the triggering write.
	Delay int `json:"delay,omitempty" yaml:"delay,omitempty"`
}

// ReadHook can replace the value returned by a Read. It receives the stored
// value and the number of earlier reads of addr.
type ReadHook func(addr, stored uint32, reads int) uint32

// Sim is a simulated register file. Unwritten registers read as zero.
//
// Thread-safety: Sim is safe for concurrent use.
type Sim struct {
	mu      sync.Mutex
	values  map[uint32]uint32
	links   []Link
	hooks   map[uint32]ReadHook
	reads   map[uint32]int
	writes  []Access
	pending map[uint32]pendingLink
}

type pendingLink struct {
	value     uint32
	remaining int
}

// NewSim creates a register file holding the given initial values.
func NewSim(initial map[uint32]uint32) *Sim {
	s := &Sim{
		values:  make(map[uint32]uint32, len(initial)),
		hooks:   make(map[uint32]ReadHook),
		reads:   make(map[uint32]int),
		pending: make(map[uint32]pendingLink),
	}
	maps.Copy(s.values, initial)
	return s
}

// Link installs status-bit links. Links are applied in installation order.
func (s *Sim) Link(links ...Link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links = append(s.links, links...)
}

// OnRead installs a read hook for addr, replacing any previous one.
func (s *Sim) OnRead(addr uint32, hook ReadHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[addr] = hook
}

// Read implements File.
func (s *Sim) Read(addr uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.reads[addr]
	s.reads[addr] = n + 1

	if p, ok := s.pending[addr]; ok {
		if p.remaining > 0 {
			p.remaining--
			s.pending[addr] = p
		} else {
			s.values[addr] = p.value
			delete(s.pending, addr)
		}
	}

	v := s.values[addr]
	if hook, ok := s.hooks[addr]; ok {
		v = hook(addr, v, n)
	}
	return v
}

// Write implements File.
func (s *Sim) Write(addr, value uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[addr] = value
	s.writes = append(s.writes, Access{Addr: addr, Value: value})

	for _, l := range s.links {
		if l.From != addr {
			continue
		}
		on := value&l.FromMask != 0
		if l.Invert {
			on = !on
		}
		cur := s.values[l.To]
		if p, ok := s.pending[l.To]; ok {
			cur = p.value
		}
		next := cur &^ l.ToMask
		if on {
			next |= l.ToMask
		}
		if l.Delay > 0 {
			if p, ok := s.pending[l.To]; ok {
				s.values[l.To] = p.value
			}
			s.pending[l.To] = pendingLink{value: next, remaining: l.Delay}
			continue
		}
		delete(s.pending, l.To)
		s.values[l.To] = next
	}
}

// Peek returns the stored value of addr without counting a read or running
// hooks.
func (s *Sim) Peek(addr uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[addr]
}

// Values returns a copy of every register that has been set.
func (s *Sim) Values() map[uint32]uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.values)
}

// Addrs returns the set registers in ascending address order.
func (s *Sim) Addrs() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.values))
}

// Writes returns every write in program order.
func (s *Sim) Writes() []Access {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.writes)
}

// Reads returns how many times addr has been read.
func (s *Sim) Reads(addr uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[addr]
}

// ResetLog clears the write log and read counters, keeping register values.
func (s *Sim) ResetLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = nil
	clear(s.reads)
}
