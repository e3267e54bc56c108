package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimScriptedWakeEvents(t *testing.T) {
	c := NewSim(0x5a0, 0x1200)

	c.WaitForInterrupt()
	assert.Equal(t, uint32(0x5a0), c.WakeEvent())

	c.WaitForInterrupt()
	assert.Equal(t, uint32(0x1200), c.WakeEvent())

	c.WaitForInterrupt()
	assert.Equal(t, DefaultWakeEvent, c.WakeEvent())
	assert.Equal(t, 3, c.Halts())
}

func TestSimInterruptMaskNesting(t *testing.T) {
	c := NewSim()
	assert.False(t, c.Masked())

	outer := c.DisableInterrupts()
	inner := c.DisableInterrupts()
	assert.True(t, c.Masked())

	c.RestoreInterrupts(inner)
	assert.True(t, c.Masked(), "inner restore keeps outer mask")

	c.RestoreInterrupts(outer)
	assert.False(t, c.Masked())
}

func TestSimMaskedHalts(t *testing.T) {
	c := NewSim()
	c.WaitForInterrupt()

	s := c.DisableInterrupts()
	c.WaitForInterrupt()
	c.RestoreInterrupts(s)

	assert.Equal(t, 2, c.Halts())
	assert.Equal(t, 1, c.MaskedHalts())
}

func TestSimOnHalt(t *testing.T) {
	c := NewSim()
	var seen []int
	c.OnHalt(func(halt int) { seen = append(seen, halt) })

	c.WaitForInterrupt()
	c.WaitForInterrupt()

	assert.Equal(t, []int{1, 2}, seen)
}

func TestSimCalibrationAndContext(t *testing.T) {
	c := NewSim()
	assert.Equal(t, uint32(1), c.LoopsPerMillisecond())
	c.SetLoopsPerMillisecond(250)
	assert.Equal(t, uint32(250), c.LoopsPerMillisecond())

	assert.False(t, c.InInterrupt())
	c.SetInInterrupt(true)
	assert.True(t, c.InInterrupt())
}
