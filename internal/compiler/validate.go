package compiler

import (
	"fmt"

	"github.com/roach88/lpsuspend/internal/ir"
	"github.com/roach88/lpsuspend/internal/platform"
)

// Validation error codes (E100-E199)
const (
	// Platform errors (E101-E109)
	ErrNoPrograms       = "E101" // no depth can be entered
	ErrChunkBudget      = "E102" // program larger than max_chunks
	ErrInvalidLayout    = "E103" // clock layout inconsistent
	ErrUnreachableWait  = "E104" // wait expects bits outside its mask
	ErrHaltInResume     = "E105" // halt in a resume leg
	ErrMultipleHalts    = "E106" // more than one halt in a suspend leg
	ErrNoResumeLeg      = "E107" // self-refresh without a resume leg
	ErrUnknownSimClock  = "E108" // retune names a clock the simulation lacks
	ErrEventMapNoStatus = "E109" // ILC routing without status registers
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled platform for definitions that compile but
// cannot work on hardware.
// Returns all errors found (does not fail-fast).
func Validate(p *Platform) []ValidationError {
	var errs []ValidationError

	// E101: something must be enterable
	desc := &platform.Descriptor{Name: p.Name, Programs: p.Programs, Flags: p.Flags}
	supported := false
	for _, d := range ir.Depths {
		if desc.Supports(d) {
			supported = true
		}
	}
	if !supported {
		errs = append(errs, ValidationError{
			Field:   "programs",
			Message: "no sleep depth has a program and allow_standby is not set",
			Code:    ErrNoPrograms,
		})
	}

	for _, depth := range p.Depths() {
		errs = append(errs, validateProgram(p, depth)...)
	}

	// E103: layout consistency
	if err := p.Clocks.Validate(); err != nil {
		errs = append(errs, ValidationError{
			Field:   "clocks",
			Message: err.Error(),
			Code:    ErrInvalidLayout,
		})
	}

	// E108: retunes need simulated clocks
	if len(p.Sim.Clocks) > 0 {
		known := make(map[string]bool, len(p.Sim.Clocks))
		for _, c := range p.Sim.Clocks {
			known[c.Name] = true
		}
		for i, r := range p.Clocks.Retunes {
			for _, name := range []string{r.Clock, r.Parent} {
				if !known[name] {
					errs = append(errs, ValidationError{
						Field:   fmt.Sprintf("clocks.retunes[%d]", i),
						Message: fmt.Sprintf("clock %q is not defined in sim.clocks", name),
						Code:    ErrUnknownSimClock,
					})
				}
			}
		}
	}

	// E109
	if p.Events.ILCBelow > 0 && len(p.Events.ILCStatus) == 0 {
		errs = append(errs, ValidationError{
			Field:   "events.ilc_status",
			Message: fmt.Sprintf("events below 0x%x are routed through the ILC but no status register is listed", p.Events.ILCBelow),
			Code:    ErrEventMapNoStatus,
		})
	}

	return errs
}

func validateProgram(p *Platform, depth ir.SleepDepth) []ValidationError {
	var errs []ValidationError
	prog := p.Programs[depth]
	field := "programs." + depth.String()

	// E102: residency budget
	if p.MaxChunks > 0 {
		chunkBytes := p.ChunkBytes
		if chunkBytes <= 0 {
			chunkBytes = platform.DefaultChunkBytes
		}
		if n := ir.Chunks(prog, chunkBytes); n > p.MaxChunks {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("program needs %d chunks of %d bytes, max_chunks is %d", n, chunkBytes, p.MaxChunks),
				Code:    ErrChunkBudget,
			})
		}
	}

	// E107: DRAM must be brought back
	if depth == ir.SelfRefresh && len(prog.Leg(ir.Suspend)) > 0 && len(prog.Leg(ir.Resume)) == 0 {
		errs = append(errs, ValidationError{
			Field:   field + ".resume",
			Message: "self_refresh program has a suspend leg but no resume leg",
			Code:    ErrNoResumeLeg,
		})
	}

	for _, leg := range []ir.Leg{ir.Suspend, ir.Resume} {
		halts := 0
		for i, ins := range prog.Leg(leg) {
			at := fmt.Sprintf("%s.%s[%d]", field, leg, i)
			switch ins.Op {
			case ir.OpWaitUntil:
				// E104: (read & mask) can never equal value
				if ins.Value&^ins.Mask != 0 {
					errs = append(errs, ValidationError{
						Field:   at,
						Message: fmt.Sprintf("wait for 0x%x under mask 0x%x can never succeed", ins.Value, ins.Mask),
						Code:    ErrUnreachableWait,
					})
				}
			case ir.OpHalt:
				halts++
				if leg == ir.Resume {
					errs = append(errs, ValidationError{
						Field:   at,
						Message: "halt is only allowed in the suspend leg",
						Code:    ErrHaltInResume,
					})
				} else if halts == 2 {
					errs = append(errs, ValidationError{
						Field:   at,
						Message: "suspend leg halts more than once",
						Code:    ErrMultipleHalts,
					})
				}
			}
		}
	}

	return errs
}
