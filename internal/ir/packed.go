package ir

import (
	"encoding/binary"
	"fmt"
)

// WordBytes is the width of one packed table word.
const WordBytes = 4

// Encode packs a Program into table words: for each instruction the opcode
// followed by its operands, with an End word closing each leg.
func Encode(p *Program) []uint32 {
	var words []uint32
	for _, ins := range p.Instructions() {
		words = append(words, uint32(ins.Op))
		words = append(words, ins.Operands()...)
	}
	return words
}

// EncodeBytes packs a Program and serializes the words in the given byte order.
func EncodeBytes(p *Program, order binary.ByteOrder) []byte {
	words := Encode(p)
	buf := make([]byte, len(words)*WordBytes)
	for i, w := range words {
		order.PutUint32(buf[i*WordBytes:], w)
	}
	return buf
}

// Decode unpacks table words produced by Encode (or by firmware tooling using
// the same layout). Labels are not part of the packed form and are lost.
func Decode(words []uint32) (*Program, error) {
	var list []Instruction
	for pc := 0; pc < len(words); {
		op := Opcode(words[pc])
		n, ok := operandCount[op]
		if !ok {
			return nil, fmt.Errorf("word %d: unknown opcode %d", pc, words[pc])
		}
		if pc+1+n > len(words) {
			return nil, fmt.Errorf("word %d: %s needs %d operands, %d words left", pc, op, n, len(words)-pc-1)
		}
		ops := words[pc+1 : pc+1+n]
		ins := Instruction{Op: op}
		switch op {
		case OpWrite, OpOrInto:
			ins.Addr, ins.Value = ops[0], ops[1]
		case OpUpdateMasked, OpWaitUntil:
			ins.Addr, ins.Mask, ins.Value = ops[0], ops[1], ops[2]
		case OpCopyMasked:
			ins.Addr, ins.Src, ins.Mask, ins.Shift, ins.Value = ops[0], ops[1], ops[2], ops[3], ops[4]
		case OpDelay:
			ins.Value = ops[0]
		}
		list = append(list, ins)
		pc += 1 + n
	}
	return FromInstructions(list)
}

// DecodeBytes is Decode for a byte image in the given byte order.
func DecodeBytes(b []byte, order binary.ByteOrder) (*Program, error) {
	if len(b)%WordBytes != 0 {
		return nil, fmt.Errorf("image length %d is not a multiple of %d", len(b), WordBytes)
	}
	words := make([]uint32, len(b)/WordBytes)
	for i := range words {
		words[i] = order.Uint32(b[i*WordBytes:])
	}
	return Decode(words)
}

// Chunks reports the packed size of p in units of the residency granularity
// (typically a cache line of chunkBytes), rounded up. An empty Program still
// occupies its two End words.
func Chunks(p *Program, chunkBytes int) int {
	if chunkBytes <= 0 {
		return 0
	}
	size := len(Encode(p)) * WordBytes
	return (size + chunkBytes - 1) / chunkBytes
}
