package platform

import (
	"fmt"
	"log/slog"

	"github.com/roach88/lpsuspend/internal/clocktree"
	"github.com/roach88/lpsuspend/internal/ir"
	"github.com/roach88/lpsuspend/internal/regs"
	"github.com/roach88/lpsuspend/internal/wakeup"
)

// DeviceSource lists the devices scanned for wake capability.
type DeviceSource func() []wakeup.Device

// StaticDevices returns a DeviceSource that always reports devices.
func StaticDevices(devices ...wakeup.Device) DeviceSource {
	return func() []wakeup.Device { return devices }
}

// ClockTreeHooks is the Hooks implementation shared by every clock-generator
// based chip: Begin scans wake devices and retunes slow clocks, PreEnter and
// PostEnter run the clock-tree algorithm, and wake events go through the
// chip's EventMap.
type ClockTreeHooks struct {
	Tree    *clocktree.Tree
	Regs    regs.File
	Rates   clocktree.ClockRates
	Devices DeviceSource
	Events  EventMap

	retunes *clocktree.RetuneLog
}

// Begin implements Hooks.
func (h *ClockTreeHooks) Begin(depth ir.SleepDepth) (wakeup.Set, error) {
	var devices []wakeup.Device
	if h.Devices != nil {
		devices = h.Devices()
	}
	wake := wakeup.Scan(devices)

	log, err := h.Tree.ApplyRetunes(h.Rates, wake)
	if err != nil {
		if uerr := log.Undo(h.Rates); uerr != nil {
			slog.Error("undo partial retune failed", "error", uerr)
		}
		return 0, fmt.Errorf("retune clocks: %w", err)
	}
	h.retunes = log

	slog.Debug("wakeup devices analysed", "depth", depth.String(), "wake", wake.String(), "retuned", log.Len())
	return wake, nil
}

// PreEnter implements Hooks.
func (h *ClockTreeHooks) PreEnter(_ ir.SleepDepth, wake wakeup.Set) (*clocktree.Snapshot, error) {
	return h.Tree.PreEnter(h.Regs, wake)
}

// PostEnter implements Hooks. Retuned clocks are restored after the clock
// tree, even when the lock wait timed out.
func (h *ClockTreeHooks) PostEnter(_ ir.SleepDepth, snap *clocktree.Snapshot) error {
	err := h.Tree.PostEnter(h.Regs, snap)
	if h.retunes != nil {
		if uerr := h.retunes.Undo(h.Rates); uerr != nil && err == nil {
			err = fmt.Errorf("restore retuned clocks: %w", uerr)
		}
		h.retunes = nil
	}
	return err
}

// TranslateWakeEvent implements Hooks.
func (h *ClockTreeHooks) TranslateWakeEvent(raw uint32) uint32 {
	return h.Events.Translate(h.Regs, raw)
}
