// Package regs provides 32-bit register access for the suspend engine.
//
// Everything that touches hardware goes through the File interface. Three
// implementations exist:
//
//   - Sim: an in-memory register file with read hooks and "links" that model
//     status bits following control bits (PLL lock after power-up, clock
//     acknowledge after a gate request). Used by tests, the harness and
//     `lpsuspend enter` without --mem.
//   - Mapped: a memory-mapped window onto /dev/mem or a register image file
//     (linux only).
//   - Bus: routes address ranges to other Files, so one Program can span
//     several register blocks.
//
// Register access is never cancelled and never fails at run time. An access
// outside every mapped window is a configuration error and panics.
package regs
