package clocktree

import (
	"fmt"

	"github.com/roach88/lpsuspend/internal/wakeup"
)

// ClockRates is the clock framework collaborator used for retuning. The
// numeric PLL and synthesizer math lives behind it.
type ClockRates interface {
	Rate(clock string) (uint64, error)
	Parent(clock string) (string, error)
	SetParent(clock, parent string) error
	SetRate(clock string, rate uint64) error
}

type retuned struct {
	clock  string
	parent string
	rate   uint64
}

// RetuneLog records the clocks changed by ApplyRetunes so that Undo can put
// them back.
type RetuneLog struct {
	done []retuned
}

// Len returns the number of retuned clocks.
func (l *RetuneLog) Len() int {
	if l == nil {
		return 0
	}
	return len(l.done)
}

// ApplyRetunes slows every retune clock whose UnlessWake classes are not in
// wake. Clocks already retuned when an error occurs stay in the log.
func (t *Tree) ApplyRetunes(rates ClockRates, wake wakeup.Set) (*RetuneLog, error) {
	log := &RetuneLog{}
	for _, rt := range t.layout.Retunes {
		if wake.Intersects(rt.UnlessWake) {
			continue
		}
		if rates == nil {
			return log, fmt.Errorf("retune %s: no clock framework", rt.Clock)
		}
		parent, err := rates.Parent(rt.Clock)
		if err != nil {
			return log, fmt.Errorf("retune %s: %w", rt.Clock, err)
		}
		rate, err := rates.Rate(rt.Clock)
		if err != nil {
			return log, fmt.Errorf("retune %s: %w", rt.Clock, err)
		}
		ref, err := rates.Rate(rt.Parent)
		if err != nil {
			return log, fmt.Errorf("retune %s: parent %s: %w", rt.Clock, rt.Parent, err)
		}
		if err := rates.SetParent(rt.Clock, rt.Parent); err != nil {
			return log, fmt.Errorf("retune %s: %w", rt.Clock, err)
		}
		log.done = append(log.done, retuned{clock: rt.Clock, parent: parent, rate: rate})
		if err := rates.SetRate(rt.Clock, ref/rt.Divide); err != nil {
			return log, fmt.Errorf("retune %s: %w", rt.Clock, err)
		}
	}
	return log, nil
}

// Undo restores every retuned clock, last first. All clocks are attempted;
// the first error is returned.
func (l *RetuneLog) Undo(rates ClockRates) error {
	if l == nil {
		return nil
	}
	var first error
	for i := len(l.done) - 1; i >= 0; i-- {
		r := l.done[i]
		if err := rates.SetParent(r.clock, r.parent); err != nil && first == nil {
			first = fmt.Errorf("restore %s parent: %w", r.clock, err)
		}
		if err := rates.SetRate(r.clock, r.rate); err != nil && first == nil {
			first = fmt.Errorf("restore %s rate: %w", r.clock, err)
		}
	}
	l.done = nil
	return first
}

// StaticRates is an in-memory ClockRates, used by simulations and tests.
type StaticRates struct {
	Rates   map[string]uint64
	Parents map[string]string
}

// NewStaticRates creates an empty StaticRates.
func NewStaticRates() *StaticRates {
	return &StaticRates{Rates: make(map[string]uint64), Parents: make(map[string]string)}
}

// Rate implements ClockRates.
func (s *StaticRates) Rate(clock string) (uint64, error) {
	r, ok := s.Rates[clock]
	if !ok {
		return 0, fmt.Errorf("unknown clock %q", clock)
	}
	return r, nil
}

// Parent implements ClockRates.
func (s *StaticRates) Parent(clock string) (string, error) {
	if _, ok := s.Rates[clock]; !ok {
		return "", fmt.Errorf("unknown clock %q", clock)
	}
	return s.Parents[clock], nil
}

// SetParent implements ClockRates.
func (s *StaticRates) SetParent(clock, parent string) error {
	if _, ok := s.Rates[clock]; !ok {
		return fmt.Errorf("unknown clock %q", clock)
	}
	s.Parents[clock] = parent
	return nil
}

// SetRate implements ClockRates.
func (s *StaticRates) SetRate(clock string, rate uint64) error {
	if _, ok := s.Rates[clock]; !ok {
		return fmt.Errorf("unknown clock %q", clock)
	}
	s.Rates[clock] = rate
	return nil
}
