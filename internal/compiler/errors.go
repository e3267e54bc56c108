package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileError is a compilation error with source position.
type CompileError struct {
	// Field is the path of the offending value, e.g.
	// "platform.stx7111.programs.self_refresh.suspend[3]", or "cue" for
	// errors reported by the CUE evaluator.
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if !e.Pos.IsValid() {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
}

// formatCUEError turns the first positioned CUE error into a CompileError.
// The message names the CUE value path and how many further errors the
// evaluator reported.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) == 0 {
		return err
	}

	msg := first.Error()
	if path := errors.Path(first); len(path) > 0 && !strings.Contains(msg, strings.Join(path, ".")) {
		msg = strings.Join(path, ".") + ": " + msg
	}
	if n := len(errs) - 1; n > 0 {
		msg = fmt.Sprintf("%s (and %d more error(s))", msg, n)
	}
	return &CompileError{Field: "cue", Message: msg, Pos: positions[0]}
}
