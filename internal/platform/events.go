package platform

import "github.com/roach88/lpsuspend/internal/regs"

// EvtToIRQ converts an SH-4 INTEVT code to an interrupt number. Codes below
// 0x200 are exceptions and are returned shifted but otherwise untranslated.
func EvtToIRQ(evt uint32) uint32 {
	irq := evt >> 5
	if irq < 16 {
		return irq
	}
	return irq - 16
}

// EventMap translates wake events on chips where low INTEVT codes are
// demultiplexed by an interrupt level controller (ILC).
type EventMap struct {
	// ILCBelow is the first INTEVT code not routed through the ILC.
	ILCBelow uint32 `json:"ilc_below,omitempty"`
	// ILCFirstIRQ is the interrupt number of ILC input 0.
	ILCFirstIRQ uint32 `json:"ilc_first_irq,omitempty"`
	// ILCStatus lists the ILC status registers, 32 inputs each.
	ILCStatus []uint32 `json:"ilc_status,omitempty"`
}

// Translate maps a raw INTEVT code to a logical interrupt number. For ILC
// events the first pending input found in the status registers wins; with
// nothing pending the generic translation is used.
func (m EventMap) Translate(r regs.File, evt uint32) uint32 {
	if evt < m.ILCBelow && r != nil {
		for i, addr := range m.ILCStatus {
			status := r.Read(addr)
			for bit := uint32(0); bit < 32; bit++ {
				if status&(1<<bit) != 0 {
					return m.ILCFirstIRQ + uint32(i)*32 + bit
				}
			}
		}
	}
	return EvtToIRQ(evt)
}
