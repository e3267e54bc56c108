package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lpsuspend/internal/cpu"
	"github.com/roach88/lpsuspend/internal/ir"
	"github.com/roach88/lpsuspend/internal/regs"
)

func scenarioProgram() *ir.Program {
	return ir.Build(
		[]ir.Instruction{ir.Write(0x10, 0x5), ir.OrInto(0x10, 0x2)},
		[]ir.Instruction{ir.UpdateMasked(0x10, ^uint32(0x2), 0x8)},
	)
}

func TestExecuteConcreteScenario(t *testing.T) {
	r := regs.NewSim(map[uint32]uint32{0x10: 0x0})
	e := New(r, cpu.NewSim())
	p := scenarioProgram()

	st, err := e.Execute(p, ir.Suspend, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x7), r.Peek(0x10))
	assert.Equal(t, 2, st.Instructions)
	assert.Equal(t, 2, st.Writes)

	_, err = e.Execute(p, ir.Resume, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xD), r.Peek(0x10))
}

func TestExecuteCopyMasked(t *testing.T) {
	r := regs.NewSim(map[uint32]uint32{0x20: 0xabcd})
	e := New(r, cpu.NewSim())
	p := ir.Build([]ir.Instruction{ir.CopyMasked(0x24, 0x20, 0xff, 8, 0x1)}, nil)

	_, err := e.Execute(p, ir.Suspend, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xcd01), r.Peek(0x24))
}

func TestExecuteEmptyLeg(t *testing.T) {
	r := regs.NewSim(nil)
	e := New(r, cpu.NewSim())

	st, err := e.Execute(ir.Build(nil, nil), ir.Suspend, 1)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, st)
	assert.Empty(t, r.Writes())
}

func TestWaitUntilReturnsExactlyWhenSatisfied(t *testing.T) {
	for _, readyAt := range []int{0, 1, 5, 40} {
		r := regs.NewSim(map[uint32]uint32{0x30: 0x100})
		r.OnRead(0x30, func(addr, stored uint32, reads int) uint32 {
			if reads >= readyAt {
				return stored | 0x1
			}
			return stored
		})
		e := New(r, cpu.NewSim())
		p := ir.Build([]ir.Instruction{
			ir.WaitUntil(0x30, 0x1, 0x1),
			ir.Write(0x34, 1),
		}, nil)

		st, err := e.Execute(p, ir.Suspend, 1)
		require.NoError(t, err)

		// One poll per unsatisfied read plus the satisfying one, never more.
		assert.Equal(t, readyAt+1, st.Polls, "readyAt=%d", readyAt)
		assert.Equal(t, readyAt+1, r.Reads(0x30))
		assert.Equal(t, uint32(1), r.Peek(0x34))
	}
}

func TestWaitUntilComparesMaskedValue(t *testing.T) {
	// Bits outside the mask must not matter, expected value zero is legal.
	r := regs.NewSim(map[uint32]uint32{0x30: 0xf0})
	e := New(r, cpu.NewSim(), WithPollLimit(1))

	_, err := e.Execute(ir.Build([]ir.Instruction{ir.WaitUntil(0x30, 0x0f, 0x0)}, nil), ir.Suspend, 1)
	assert.NoError(t, err)
}

func TestWaitUntilPollLimit(t *testing.T) {
	r := regs.NewSim(nil)
	e := New(r, cpu.NewSim(), WithPollLimit(10))
	p := ir.Build([]ir.Instruction{
		ir.Write(0x0, 1),
		ir.WaitUntil(0x30, 0x1, 0x1),
		ir.Write(0x34, 1),
	}, nil)

	st, err := e.Execute(p, ir.Suspend, 1)
	require.Error(t, err)
	assert.True(t, IsPollLimitError(err))

	var pe *PollLimitError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.Index)
	assert.Equal(t, uint32(0x30), pe.Addr)
	assert.Equal(t, 10, pe.Polls)
	assert.Equal(t, 10, st.Polls)
	assert.Equal(t, uint32(0), r.Peek(0x34), "instructions after the wait must not run")
	assert.Equal(t, 10, e.PollLimit())
}

func TestDelayProportionalToCyclesTimesUnit(t *testing.T) {
	e := New(regs.NewSim(nil), cpu.NewSim())

	spins := func(n, k uint32) uint64 {
		st, err := e.Execute(ir.Build([]ir.Instruction{ir.Delay(n)}, nil), ir.Suspend, k)
		require.NoError(t, err)
		return st.Spins
	}

	assert.Equal(t, uint64(0), spins(0, 100))
	assert.Equal(t, uint64(0), spins(100, 0))
	assert.Equal(t, uint64(12), spins(3, 4))

	prev := uint64(0)
	for n := uint32(1); n <= 8; n++ {
		got := spins(n, 5)
		assert.Greater(t, got, prev, "monotonic in n")
		prev = got
	}

	prev = 0
	for k := uint32(1); k <= 8; k++ {
		got := spins(5, k)
		assert.Greater(t, got, prev, "monotonic in k")
		prev = got
	}
}

func TestExecuteRefusesInterruptContext(t *testing.T) {
	r := regs.NewSim(nil)
	c := cpu.NewSim()
	c.SetInInterrupt(true)
	e := New(r, c)

	_, err := e.Execute(scenarioProgram(), ir.Suspend, 1)
	assert.ErrorIs(t, err, ErrInterruptContext)

	_, err = e.RunTransaction(scenarioProgram(), 1, true)
	assert.ErrorIs(t, err, ErrInterruptContext)

	assert.Empty(t, r.Writes())
	assert.Equal(t, 0, c.Halts())
}

func TestRunTransactionImplicitHalt(t *testing.T) {
	r := regs.NewSim(map[uint32]uint32{0x10: 0x0})
	c := cpu.NewSim(0x5a0)

	var atHalt uint32
	c.OnHalt(func(int) { atHalt = r.Peek(0x10) })

	report, err := New(r, c).RunTransaction(scenarioProgram(), 1, true)
	require.NoError(t, err)

	assert.Equal(t, uint32(0x7), atHalt, "halt happens between the legs")
	assert.Equal(t, uint32(0xD), r.Peek(0x10))
	assert.Equal(t, 1, c.Halts())
	assert.Equal(t, 1, c.MaskedHalts(), "halt with interrupts disabled")
	assert.False(t, c.Masked(), "mask restored afterwards")
	assert.True(t, report.Halted())
	assert.Equal(t, uint32(0x5a0), c.WakeEvent())
}

func TestRunTransactionExplicitHalt(t *testing.T) {
	r := regs.NewSim(nil)
	c := cpu.NewSim()
	p := ir.Build(
		[]ir.Instruction{ir.Write(0x10, 1), ir.Halt(), ir.Write(0x14, 1)},
		[]ir.Instruction{ir.Write(0x18, 1)},
	)

	var order []uint32
	c.OnHalt(func(int) { order = append(order, r.Peek(0x10), r.Peek(0x14)) })

	report, err := New(r, c).RunTransaction(p, 1, true)
	require.NoError(t, err)

	assert.Equal(t, 1, c.Halts(), "no implicit halt when the leg carries one")
	assert.Equal(t, []uint32{1, 0}, order)
	assert.Equal(t, 1, report.Suspend.Halts)
	assert.Equal(t, uint32(1), r.Peek(0x18))
}

func TestRunTransactionWithoutSleep(t *testing.T) {
	r := regs.NewSim(nil)
	c := cpu.NewSim()
	p := ir.Build([]ir.Instruction{ir.Halt(), ir.Write(0x10, 1)}, []ir.Instruction{ir.Write(0x14, 1)})

	report, err := New(r, c).RunTransaction(p, 1, false)
	require.NoError(t, err)

	assert.Equal(t, 0, c.Halts())
	assert.False(t, report.Halted())
	assert.Equal(t, uint32(1), r.Peek(0x10))
	assert.Equal(t, uint32(1), r.Peek(0x14))
}

func TestRunTransactionPollLimitStillResumes(t *testing.T) {
	r := regs.NewSim(nil)
	c := cpu.NewSim()
	p := ir.Build(
		[]ir.Instruction{ir.WaitUntil(0x30, 1, 1)},
		[]ir.Instruction{ir.Write(0x14, 1)},
	)

	_, err := New(r, c, WithPollLimit(3)).RunTransaction(p, 1, true)
	require.Error(t, err)
	assert.True(t, IsPollLimitError(err))

	assert.Equal(t, 0, c.Halts(), "no halt after a failed suspend-leg")
	assert.Equal(t, uint32(1), r.Peek(0x14), "resume-leg still unwinds")
	assert.False(t, c.Masked())
}

func TestTransactionStepwise(t *testing.T) {
	r := regs.NewSim(map[uint32]uint32{0x10: 0x0})
	c := cpu.NewSim(0x1200)
	e := New(r, c)
	p := scenarioProgram()

	tx, err := e.Begin()
	require.NoError(t, err)
	assert.True(t, c.Masked())

	st, err := tx.Suspend(p, 1, true)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Halts)
	assert.Equal(t, uint32(0x7), r.Peek(0x10))
	assert.Equal(t, uint32(0x1200), c.WakeEvent())

	_, err = tx.Resume(p, 1, true)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xD), r.Peek(0x10))

	tx.End()
	tx.End()
	assert.False(t, c.Masked())
}

func TestBeginRefusesInterruptContext(t *testing.T) {
	c := cpu.NewSim()
	c.SetInInterrupt(true)

	tx, err := New(regs.NewSim(nil), c).Begin()
	assert.Nil(t, tx)
	assert.ErrorIs(t, err, ErrInterruptContext)
	assert.False(t, c.Masked())
}
