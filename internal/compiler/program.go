package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/lpsuspend/internal/ir"
)

// instructionSpec is one instruction as written in CUE, after the schema
// has filled in defaults.
type instructionSpec struct {
	Op    string `json:"op"`
	Addr  uint32 `json:"addr"`
	Src   uint32 `json:"src"`
	Mask  uint32 `json:"mask"`
	Shift uint32 `json:"shift"`
	Value uint32 `json:"value"`
	Label string `json:"label"`
}

// parsePrograms extracts the Program of every depth present under
// programs.
func parsePrograms(v cue.Value, field string) (map[ir.SleepDepth]*ir.Program, error) {
	programs := make(map[ir.SleepDepth]*ir.Program)

	for _, depth := range ir.Depths {
		pv := v.LookupPath(cue.ParsePath("programs." + depth.String()))
		if !pv.Exists() {
			continue
		}
		path := fmt.Sprintf("%s.programs.%s", field, depth)

		suspend, err := parseLeg(pv.LookupPath(cue.ParsePath("suspend")), path+".suspend")
		if err != nil {
			return nil, err
		}
		resume, err := parseLeg(pv.LookupPath(cue.ParsePath("resume")), path+".resume")
		if err != nil {
			return nil, err
		}
		programs[depth] = ir.Build(suspend, resume)
	}

	return programs, nil
}

func parseLeg(v cue.Value, field string) ([]ir.Instruction, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var leg []ir.Instruction
	for i := 0; iter.Next(); i++ {
		ins, err := parseInstruction(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		leg = append(leg, ins)
	}
	return leg, nil
}

func parseInstruction(v cue.Value, field string) (ir.Instruction, error) {
	var spec instructionSpec
	if err := v.Decode(&spec); err != nil {
		return ir.Instruction{}, formatCUEError(err)
	}

	op, err := ir.ParseOpcode(spec.Op)
	if err != nil || op == ir.OpEnd {
		return ir.Instruction{}, &CompileError{
			Field:   field + ".op",
			Message: fmt.Sprintf("unknown instruction %q", spec.Op),
			Pos:     v.Pos(),
		}
	}

	return ir.Instruction{
		Op:    op,
		Addr:  spec.Addr,
		Src:   spec.Src,
		Mask:  spec.Mask,
		Shift: spec.Shift,
		Value: spec.Value,
		Label: spec.Label,
	}, nil
}
