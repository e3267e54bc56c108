//go:build linux

package cli

import (
	"fmt"
	"io"

	"github.com/roach88/lpsuspend/internal/regs"
)

// mapRegisters maps cfg and routes every other address to sim.
func mapRegisters(sim *regs.Sim, cfg regs.MapConfig) (*regs.Bus, io.Closer, error) {
	if cfg.Size == 0 || uint64(cfg.Base)+uint64(cfg.Size) > 1<<32 {
		return nil, nil, fmt.Errorf("window 0x%08x+0x%x does not fit the 32-bit register space", cfg.Base, cfg.Size)
	}
	mapped, err := regs.Map(cfg)
	if err != nil {
		return nil, nil, err
	}

	end := cfg.Base + (cfg.Size - 1)
	bus := regs.NewBus()
	attach := func(start, end uint32, f regs.File) {
		if err == nil {
			err = bus.Attach(start, end, f)
		}
	}
	if cfg.Base > 0 {
		attach(0, cfg.Base-1, sim)
	}
	attach(cfg.Base, end, mapped)
	if end < 0xffffffff {
		attach(end+1, 0xffffffff, sim)
	}
	if err != nil {
		mapped.Close()
		return nil, nil, err
	}
	bus.Seal()
	return bus, mapped, nil
}
