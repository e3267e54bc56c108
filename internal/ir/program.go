package ir

import "fmt"

// Program is an immutable two-leg instruction table.
//
// Layout: suspend-leg, End, resume-leg, End. A nil or zero Program is the
// empty Program; a platform may register an empty Program for Standby.
//
// INVARIANTS:
//   - Neither leg contains End; the sentinels are implicit
//   - No method mutates the receiver
type Program struct {
	suspend []Instruction
	resume  []Instruction
}

// Build creates a Program from the two legs. It never fails.
//
// The slices are copied. A leg is cut at its first End instruction, matching
// how the executor would have stopped there anyway.
func Build(suspend, resume []Instruction) *Program {
	return &Program{
		suspend: copyLeg(suspend),
		resume:  copyLeg(resume),
	}
}

func copyLeg(in []Instruction) []Instruction {
	out := make([]Instruction, 0, len(in))
	for _, ins := range in {
		if ins.Op == OpEnd {
			break
		}
		out = append(out, ins)
	}
	return out
}

// FromInstructions rebuilds a Program from its flat layout.
// The list must contain exactly two End sentinels and finish with the second.
func FromInstructions(list []Instruction) (*Program, error) {
	var ends []int
	for i, ins := range list {
		if ins.Op == OpEnd {
			ends = append(ends, i)
		}
	}
	if len(ends) != 2 {
		return nil, fmt.Errorf("program must contain exactly 2 end markers, found %d", len(ends))
	}
	if ends[1] != len(list)-1 {
		return nil, fmt.Errorf("instructions after final end marker at index %d", ends[1])
	}
	return Build(list[:ends[0]], list[ends[0]+1:ends[1]]), nil
}

// Leg returns a copy of the instructions of one leg, without the End sentinel.
func (p *Program) Leg(l Leg) []Instruction {
	if p == nil {
		return nil
	}
	src := p.suspend
	if l == Resume {
		src = p.resume
	}
	out := make([]Instruction, len(src))
	copy(out, src)
	return out
}

// At returns the i-th instruction of a leg. Past the end of the leg it
// returns End, so a program counter walking the leg always terminates.
func (p *Program) At(l Leg, i int) Instruction {
	if p == nil {
		return End()
	}
	src := p.suspend
	if l == Resume {
		src = p.resume
	}
	if i < 0 || i >= len(src) {
		return End()
	}
	return src[i]
}

// Len returns the number of instructions in both legs, excluding sentinels.
func (p *Program) Len() int {
	if p == nil {
		return 0
	}
	return len(p.suspend) + len(p.resume)
}

// IsEmpty reports whether both legs are empty.
func (p *Program) IsEmpty() bool {
	return p.Len() == 0
}

// Instructions returns the flat layout including both End sentinels.
func (p *Program) Instructions() []Instruction {
	out := make([]Instruction, 0, p.Len()+2)
	out = append(out, p.Leg(Suspend)...)
	out = append(out, End())
	out = append(out, p.Leg(Resume)...)
	out = append(out, End())
	return out
}

// HasHalt reports whether the leg carries an explicit Halt.
func (p *Program) HasHalt(l Leg) bool {
	for _, ins := range p.Leg(l) {
		if ins.Op == OpHalt {
			return true
		}
	}
	return false
}

// Labels returns the distinct operand labels in layout order.
func (p *Program) Labels() []string {
	seen := make(map[string]bool)
	var labels []string
	for _, ins := range p.Instructions() {
		if ins.Label != "" && !seen[ins.Label] {
			seen[ins.Label] = true
			labels = append(labels, ins.Label)
		}
	}
	return labels
}

// Patched returns a copy of p with the Value operand of every instruction
// labelled label replaced by value. Patching happens before a sleep
// transaction begins; the receiver is left untouched.
func (p *Program) Patched(label string, value uint32) (*Program, error) {
	if label == "" {
		return nil, fmt.Errorf("patch label must not be empty")
	}
	found := false
	patch := func(leg []Instruction) []Instruction {
		out := make([]Instruction, len(leg))
		for i, ins := range leg {
			if ins.Label == label {
				ins.Value = value
				found = true
			}
			out[i] = ins
		}
		return out
	}
	if p == nil {
		return nil, fmt.Errorf("label %q not found in empty program", label)
	}
	q := &Program{suspend: patch(p.suspend), resume: patch(p.resume)}
	if !found {
		return nil, fmt.Errorf("label %q not found in program", label)
	}
	return q, nil
}
