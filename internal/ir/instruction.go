package ir

import "fmt"

// Opcode identifies an instruction in the packed table format.
//
// The numbering matches the firmware poke-table layout so that a packed
// Program can be handed to a pre-existing sequencing loop unchanged. The
// 8- and 16-bit variants and the assembler-only conditionals of that format
// are not produced by this package.
type Opcode uint32

const (
	OpEnd          Opcode = 0
	OpWrite        Opcode = 3  // POKE32
	OpOrInto       Opcode = 6  // OR32
	OpUpdateMasked Opcode = 9  // UPDATE32
	OpCopyMasked   Opcode = 10 // POKE_UPDATE32
	OpWaitUntil    Opcode = 13 // WHILE_NE32
	OpDelay        Opcode = 17
	OpHalt         Opcode = 20
)

// operandCount is the number of operand words following each opcode.
var operandCount = map[Opcode]int{
	OpEnd:          0,
	OpWrite:        2,
	OpOrInto:       2,
	OpUpdateMasked: 3,
	OpCopyMasked:   5,
	OpWaitUntil:    3,
	OpDelay:        1,
	OpHalt:         0,
}

// String returns the mnemonic.
func (op Opcode) String() string {
	switch op {
	case OpEnd:
		return "end"
	case OpWrite:
		return "write"
	case OpOrInto:
		return "or"
	case OpUpdateMasked:
		return "update"
	case OpCopyMasked:
		return "copy"
	case OpWaitUntil:
		return "wait"
	case OpDelay:
		return "delay"
	case OpHalt:
		return "halt"
	default:
		return fmt.Sprintf("op(%d)", uint32(op))
	}
}

// ParseOpcode converts a mnemonic to an Opcode.
func ParseOpcode(s string) (Opcode, error) {
	for op := range operandCount {
		if op.String() == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown opcode %q", s)
}

// Instruction is one register operation.
//
// Field use per opcode:
//
//	Write        Addr, Value
//	OrInto       Addr, Value (mask)
//	UpdateMasked Addr, Mask (clear mask, ANDed), Value (set mask, ORed)
//	CopyMasked   Addr (destination), Src, Mask, Shift, Value
//	WaitUntil    Addr, Mask, Value (expected)
//	Delay        Value (cycles)
//	Halt, End    none
//
// Value is always the patchable operand; Label names it for Program.Patched.
type Instruction struct {
	Op    Opcode `json:"op"`
	Addr  uint32 `json:"addr,omitempty"`
	Src   uint32 `json:"src,omitempty"`
	Mask  uint32 `json:"mask,omitempty"`
	Shift uint32 `json:"shift,omitempty"`
	Value uint32 `json:"value,omitempty"`
	Label string `json:"label,omitempty"`
}

// Write stores val at addr.
func Write(addr, val uint32) Instruction {
	return Instruction{Op: OpWrite, Addr: addr, Value: val}
}

// OrInto stores read(addr) | mask at addr.
func OrInto(addr, mask uint32) Instruction {
	return Instruction{Op: OpOrInto, Addr: addr, Value: mask}
}

// UpdateMasked stores (read(addr) & clearMask) | setMask at addr.
// clearMask is the set of bits to KEEP, as in the firmware table format.
func UpdateMasked(addr, clearMask, setMask uint32) Instruction {
	return Instruction{Op: OpUpdateMasked, Addr: addr, Mask: clearMask, Value: setMask}
}

// CopyMasked stores ((read(src) & mask) << shift) | set at dst.
func CopyMasked(dst, src, mask, shift, set uint32) Instruction {
	return Instruction{Op: OpCopyMasked, Addr: dst, Src: src, Mask: mask, Shift: shift, Value: set}
}

// WaitUntil spins until (read(addr) & mask) == expected.
func WaitUntil(addr, mask, expected uint32) Instruction {
	return Instruction{Op: OpWaitUntil, Addr: addr, Mask: mask, Value: expected}
}

// Delay busy-waits for cycles calibrated time units.
func Delay(cycles uint32) Instruction {
	return Instruction{Op: OpDelay, Value: cycles}
}

// Halt stops the CPU until an unmasked wake event arrives.
func Halt() Instruction {
	return Instruction{Op: OpHalt}
}

// End terminates a leg.
func End() Instruction {
	return Instruction{Op: OpEnd}
}

// WithLabel returns a copy of the instruction whose Value operand is named label.
func (in Instruction) WithLabel(label string) Instruction {
	in.Label = label
	return in
}

// Operands returns the operand words in packed order.
func (in Instruction) Operands() []uint32 {
	switch in.Op {
	case OpWrite, OpOrInto:
		return []uint32{in.Addr, in.Value}
	case OpUpdateMasked:
		return []uint32{in.Addr, in.Mask, in.Value}
	case OpCopyMasked:
		return []uint32{in.Addr, in.Src, in.Mask, in.Shift, in.Value}
	case OpWaitUntil:
		return []uint32{in.Addr, in.Mask, in.Value}
	case OpDelay:
		return []uint32{in.Value}
	default:
		return nil
	}
}

// String renders the instruction in assembler-like form.
func (in Instruction) String() string {
	var s string
	switch in.Op {
	case OpWrite:
		s = fmt.Sprintf("write  0x%08x, 0x%08x", in.Addr, in.Value)
	case OpOrInto:
		s = fmt.Sprintf("or     0x%08x, 0x%08x", in.Addr, in.Value)
	case OpUpdateMasked:
		s = fmt.Sprintf("update 0x%08x, and=0x%08x, or=0x%08x", in.Addr, in.Mask, in.Value)
	case OpCopyMasked:
		s = fmt.Sprintf("copy   0x%08x <- 0x%08x, and=0x%08x, shl=%d, or=0x%08x", in.Addr, in.Src, in.Mask, in.Shift, in.Value)
	case OpWaitUntil:
		s = fmt.Sprintf("wait   0x%08x, and=0x%08x, eq=0x%08x", in.Addr, in.Mask, in.Value)
	case OpDelay:
		s = fmt.Sprintf("delay  %d", in.Value)
	default:
		s = in.Op.String()
	}
	if in.Label != "" {
		s += " ; " + in.Label
	}
	return s
}
