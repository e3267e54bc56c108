package platform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lpsuspend/internal/clocktree"
	"github.com/roach88/lpsuspend/internal/ir"
	"github.com/roach88/lpsuspend/internal/regs"
	"github.com/roach88/lpsuspend/internal/wakeup"
)

const (
	selAddr   = 0x1014
	powerAddr = 0x1010
	lockAddr  = 0x1000
)

func newHooks(t *testing.T, devices ...wakeup.Device) (*ClockTreeHooks, *regs.Sim, *clocktree.StaticRates) {
	t.Helper()
	tree, err := clocktree.New(clocktree.Layout{
		Selects: []clocktree.Select{{Name: "sel", Addr: selAddr, Stop: 0xffffffff}},
		Domains: []clocktree.Domain{
			{Name: "ic_if_100", Select: "sel", Shift: 10, Width: 2, AlwaysOn: true,
				Wake: []clocktree.WakeSource{{Classes: wakeup.Of(wakeup.HDMI), Code: 2, PLL: "pll1"}}},
		},
		PowerAddr: powerAddr,
		PLLs:      []clocktree.PLL{{Name: "pll1", PowerMask: 0x2, LockAddr: lockAddr, LockMask: 1 << 31}},
		Retunes:   []clocktree.Retune{{Clock: "ic_if_100", Parent: "ref", Divide: 2, UnlessWake: wakeup.Of(wakeup.HDMI)}},
	})
	require.NoError(t, err)

	r := regs.NewSim(map[uint32]uint32{selAddr: 0x800, lockAddr: 1 << 31})
	r.Link(regs.Link{From: powerAddr, FromMask: 0x2, To: lockAddr, ToMask: 1 << 31, Invert: true})

	rates := clocktree.NewStaticRates()
	rates.Rates["ref"] = 30
	rates.Rates["ic_if_100"] = 100
	rates.Parents["ic_if_100"] = "pll1"

	return &ClockTreeHooks{
		Tree:    tree,
		Regs:    r,
		Rates:   rates,
		Devices: StaticDevices(devices...),
		Events:  EventMap{ILCBelow: 0x400, ILCFirstIRQ: 176},
	}, r, rates
}

func TestClockTreeHooksFullCycle(t *testing.T) {
	h, r, rates := newHooks(t)

	wake, err := h.Begin(ir.SelfRefresh)
	require.NoError(t, err)
	assert.Equal(t, wakeup.Set(0), wake)
	assert.Equal(t, uint64(15), rates.Rates["ic_if_100"])

	snap, err := h.PreEnter(ir.SelfRefresh, wake)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xfffff3ff), r.Peek(selAddr))
	assert.Equal(t, uint32(0x2), r.Peek(powerAddr))

	require.NoError(t, h.PostEnter(ir.SelfRefresh, snap))
	assert.Equal(t, uint32(0x800), r.Peek(selAddr))
	assert.Equal(t, uint32(0), r.Peek(powerAddr))
	assert.Equal(t, uint64(100), rates.Rates["ic_if_100"])
	assert.Equal(t, "pll1", rates.Parents["ic_if_100"])
}

func TestClockTreeHooksHDMIWake(t *testing.T) {
	h, r, rates := newHooks(t, wakeup.Device{Name: "hdmi", MayWakeup: true})

	wake, err := h.Begin(ir.Standby)
	require.NoError(t, err)
	assert.Equal(t, wakeup.Of(wakeup.HDMI), wake)
	assert.Equal(t, uint64(100), rates.Rates["ic_if_100"], "hdmi keeps the interconnect at speed")

	snap, err := h.PreEnter(ir.Standby, wake)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xfffffbff), r.Peek(selAddr))
	assert.Equal(t, uint32(0), r.Peek(powerAddr), "pll1 stays powered")
	require.NoError(t, h.PostEnter(ir.Standby, snap))
}

func TestClockTreeHooksPostEnterNilUndoesRetune(t *testing.T) {
	h, r, rates := newHooks(t)

	_, err := h.Begin(ir.Standby)
	require.NoError(t, err)
	r.ResetLog()

	require.NoError(t, h.PostEnter(ir.Standby, nil))
	assert.Empty(t, r.Writes())
	assert.Equal(t, uint64(100), rates.Rates["ic_if_100"])
}

type brokenRates struct{ *clocktree.StaticRates }

func (brokenRates) SetParent(string, string) error { return errors.New("clock busy") }

func TestClockTreeHooksBeginError(t *testing.T) {
	h, _, rates := newHooks(t)
	h.Rates = brokenRates{rates}

	_, err := h.Begin(ir.Standby)
	assert.Error(t, err)
	assert.Equal(t, uint64(100), rates.Rates["ic_if_100"])
}

func TestClockTreeHooksTranslate(t *testing.T) {
	h, _, _ := newHooks(t)
	assert.Equal(t, uint32(28), h.TranslateWakeEvent(0x580))
}
