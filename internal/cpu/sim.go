package cpu

import "sync"

// DefaultWakeEvent is reported by Sim when no wake event was scripted.
// It is the SH-4 INTEVT code of the first on-chip interrupt source.
const DefaultWakeEvent uint32 = 0x200

// Sim is a scripted CPU for tests and the harness.
//
// Each WaitForInterrupt consumes the next scripted wake event. When the
// script runs out DefaultWakeEvent is used, so a Sim never blocks.
//
// Thread-safety: Sim is safe for concurrent use.
type Sim struct {
	mu          sync.Mutex
	masked      bool
	inInterrupt bool
	events      []uint32
	current     uint32
	halts       int
	maskedHalts int
	loopsPerMs  uint32
	onHalt      func(halt int)
}

// NewSim creates a simulated CPU that wakes with the given events in order.
func NewSim(events ...uint32) *Sim {
	return &Sim{
		events:     append([]uint32(nil), events...),
		loopsPerMs: 1,
	}
}

// SetLoopsPerMillisecond sets the delay calibration factor.
func (c *Sim) SetLoopsPerMillisecond(n uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loopsPerMs = n
}

// SetInInterrupt marks the caller as running in interrupt context.
func (c *Sim) SetInInterrupt(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inInterrupt = v
}

// OnHalt installs a callback run at each halt, before the wake event is
// latched. halt counts from 1.
func (c *Sim) OnHalt(fn func(halt int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onHalt = fn
}

// DisableInterrupts implements CPU.
func (c *Sim) DisableInterrupts() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := State(0)
	if c.masked {
		prev = 1
	}
	c.masked = true
	return prev
}

// RestoreInterrupts implements CPU.
func (c *Sim) RestoreInterrupts(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.masked = s != 0
}

// InInterrupt implements CPU.
func (c *Sim) InInterrupt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inInterrupt
}

// WaitForInterrupt implements CPU.
func (c *Sim) WaitForInterrupt() {
	c.mu.Lock()
	c.halts++
	if c.masked {
		c.maskedHalts++
	}
	n, hook := c.halts, c.onHalt
	c.mu.Unlock()

	if hook != nil {
		hook(n)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = DefaultWakeEvent
	if len(c.events) > 0 {
		c.current = c.events[0]
		c.events = c.events[1:]
	}
}

// WakeEvent implements CPU.
func (c *Sim) WakeEvent() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// LoopsPerMillisecond implements CPU.
func (c *Sim) LoopsPerMillisecond() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loopsPerMs
}

// Masked reports whether interrupts are currently disabled.
func (c *Sim) Masked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.masked
}

// Halts returns the number of WaitForInterrupt calls.
func (c *Sim) Halts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.halts
}

// MaskedHalts returns how many halts happened with interrupts disabled.
func (c *Sim) MaskedHalts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maskedHalts
}
