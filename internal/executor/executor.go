package executor

import (
	"sync/atomic"

	"github.com/roach88/lpsuspend/internal/cpu"
	"github.com/roach88/lpsuspend/internal/ir"
	"github.com/roach88/lpsuspend/internal/regs"
)

// spinSink keeps the delay loop from being optimised away.
var spinSink atomic.Uint32

// Stats counts the work done by one leg.
type Stats struct {
	Instructions int    `json:"instructions"`
	Writes       int    `json:"writes"`
	Polls        int    `json:"polls"`
	Spins        uint64 `json:"spins"`
	Halts        int    `json:"halts"`
}

// Report holds the statistics of a full suspend/halt/resume run.
type Report struct {
	Suspend Stats `json:"suspend"`
	Resume  Stats `json:"resume"`
}

// Halted reports whether the CPU actually halted during the run.
func (r Report) Halted() bool {
	return r.Suspend.Halts+r.Resume.Halts > 0
}

// Executor runs Programs against a register file.
type Executor struct {
	regs      regs.File
	cpu       cpu.CPU
	pollLimit int
}

// Option configures an Executor.
type Option func(*Executor)

// WithPollLimit bounds every WaitUntil to n reads. Zero (the default) means
// unbounded.
func WithPollLimit(n int) Option {
	return func(e *Executor) {
		e.pollLimit = n
	}
}

// New creates an executor over the given register file and CPU.
func New(r regs.File, c cpu.CPU, opts ...Option) *Executor {
	e := &Executor{regs: r, cpu: c}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PollLimit returns the configured WaitUntil bound (0 = unbounded).
func (e *Executor) PollLimit() int {
	return e.pollLimit
}

// Execute runs one leg of p. timeUnit is the number of spin iterations per
// Delay cycle, normally the CPU's loops-per-millisecond calibration.
//
// Halt instructions in the leg block in cpu.WaitForInterrupt. The caller is
// responsible for masking interrupts; RunTransaction does this.
//
// Without a poll limit the only possible error is ErrInterruptContext.
func (e *Executor) Execute(p *ir.Program, leg ir.Leg, timeUnit uint32) (Stats, error) {
	if e.cpu.InInterrupt() {
		return Stats{}, ErrInterruptContext
	}
	return e.run(p, leg, timeUnit, true)
}

// Transaction is one hardware sleep in progress: interrupts are disabled
// from Begin until End.
type Transaction struct {
	e     *Executor
	state cpu.State
	done  bool
}

// Begin checks the calling context and disables interrupts.
func (e *Executor) Begin() (*Transaction, error) {
	if e.cpu.InInterrupt() {
		return nil, ErrInterruptContext
	}
	return &Transaction{e: e, state: e.cpu.DisableInterrupts()}, nil
}

// Suspend runs the suspend-leg of p. If sleep is set and the leg carries no
// explicit Halt, the CPU halts after the leg; when it returns a wake event
// has arrived. If sleep is false every Halt is skipped.
//
// A failed leg does not halt.
func (tx *Transaction) Suspend(p *ir.Program, timeUnit uint32, sleep bool) (Stats, error) {
	st, err := tx.e.run(p, ir.Suspend, timeUnit, sleep)
	if err != nil {
		return st, err
	}
	if sleep && !p.HasHalt(ir.Suspend) {
		tx.e.cpu.WaitForInterrupt()
		st.Halts++
	}
	return st, nil
}

// Resume runs the resume-leg of p.
func (tx *Transaction) Resume(p *ir.Program, timeUnit uint32, sleep bool) (Stats, error) {
	return tx.e.run(p, ir.Resume, timeUnit, sleep)
}

// End restores the interrupt mask saved by Begin. Calling it twice is a no-op.
func (tx *Transaction) End() {
	if tx.done {
		return
	}
	tx.done = true
	tx.e.cpu.RestoreInterrupts(tx.state)
}

// RunTransaction runs the whole hardware side of a sleep: suspend-leg, halt,
// resume-leg, with interrupts disabled throughout and restored afterwards.
//
// A PollLimitError in the suspend-leg skips the halt but still runs the
// resume-leg, since that is the only way to unwind the hardware; the first
// error is returned.
func (e *Executor) RunTransaction(p *ir.Program, timeUnit uint32, sleep bool) (Report, error) {
	tx, err := e.Begin()
	if err != nil {
		return Report{}, err
	}
	defer tx.End()

	var report Report
	report.Suspend, err = tx.Suspend(p, timeUnit, sleep)
	st, rerr := tx.Resume(p, timeUnit, sleep)
	report.Resume = st
	if err == nil {
		err = rerr
	}
	return report, err
}

func (e *Executor) run(p *ir.Program, leg ir.Leg, timeUnit uint32, sleep bool) (Stats, error) {
	var st Stats
	for pc := 0; ; pc++ {
		ins := p.At(leg, pc)
		if ins.Op == ir.OpEnd {
			return st, nil
		}
		st.Instructions++

		switch ins.Op {
		case ir.OpWrite:
			e.regs.Write(ins.Addr, ins.Value)
			st.Writes++

		case ir.OpOrInto:
			e.regs.Write(ins.Addr, e.regs.Read(ins.Addr)|ins.Value)
			st.Writes++

		case ir.OpUpdateMasked:
			e.regs.Write(ins.Addr, e.regs.Read(ins.Addr)&ins.Mask | ins.Value)
			st.Writes++

		case ir.OpCopyMasked:
			v := (e.regs.Read(ins.Src)&ins.Mask)<<ins.Shift | ins.Value
			e.regs.Write(ins.Addr, v)
			st.Writes++

		case ir.OpWaitUntil:
			if err := e.wait(leg, pc, ins, &st); err != nil {
				return st, err
			}

		case ir.OpDelay:
			n := uint64(ins.Value) * uint64(timeUnit)
			for i := uint64(0); i < n; i++ {
				spinSink.Add(1)
			}
			st.Spins += n

		case ir.OpHalt:
			if sleep {
				e.cpu.WaitForInterrupt()
				st.Halts++
			}
		}
	}
}

func (e *Executor) wait(leg ir.Leg, pc int, ins ir.Instruction, st *Stats) error {
	polls := 0
	for {
		v := e.regs.Read(ins.Addr)
		polls++
		st.Polls++
		if v&ins.Mask == ins.Value {
			return nil
		}
		if e.pollLimit > 0 && polls >= e.pollLimit {
			return &PollLimitError{
				Leg:      leg,
				Index:    pc,
				Addr:     ins.Addr,
				Mask:     ins.Mask,
				Expected: ins.Value,
				Last:     v,
				Polls:    polls,
			}
		}
	}
}
