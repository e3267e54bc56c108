//go:build !linux

package cli

import (
	"errors"
	"io"

	"github.com/roach88/lpsuspend/internal/regs"
)

func mapRegisters(*regs.Sim, regs.MapConfig) (*regs.Bus, io.Closer, error) {
	return nil, nil, errors.New("--mem is only supported on linux")
}
