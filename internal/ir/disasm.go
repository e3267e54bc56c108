package ir

import (
	"fmt"
	"strings"
)

// Disassemble renders a Program as an annotated listing with word offsets.
func Disassemble(p *Program) string {
	var b strings.Builder
	offset := 0
	leg := Suspend
	fmt.Fprintf(&b, "; %s leg\n", leg)
	for _, ins := range p.Instructions() {
		fmt.Fprintf(&b, "%04x  %s\n", offset*WordBytes, ins)
		offset += 1 + len(ins.Operands())
		if ins.Op == OpEnd && leg == Suspend {
			leg = Resume
			fmt.Fprintf(&b, "; %s leg\n", leg)
		}
	}
	return b.String()
}
