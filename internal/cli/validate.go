package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/roach88/lpsuspend/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool                       `json:"valid"`
	Platforms []string                   `json:"platforms,omitempty"`
	Errors    []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [platform-dir]",
		Short: "Validate platform definitions",
		Long: `Compile and check CUE platform definitions.

Reports schema errors, unknown instructions and flags, unused patches,
programs over their chunk budget, waits that can never succeed and
inconsistent clock layouts. Without a directory the builtin platforms
are checked.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(rootOpts, dir, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loadResult, loadErrors := LoadPlatforms(dir, LoadModeCollectAll)

	// Handle load errors (directory not found, no files, etc.)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, loadResult.Source)

	var validationErrors []compiler.ValidationError
	for _, err := range loadErrors {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			validationErrors = append(validationErrors, compiler.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    getLineFromCuePos(loadErr.Pos),
			})
		}
	}
	validationErrors = append(validationErrors, validateAll(loadResult.Platforms, formatter)...)

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	return outputValidateSuccess(formatter, loadResult)
}

// validateAll runs compiler.Validate on every platform. Fields are
// prefixed with the platform name.
func validateAll(platforms []*compiler.Platform, formatter *OutputFormatter) []compiler.ValidationError {
	var allErrors []compiler.ValidationError
	for _, p := range platforms {
		formatter.VerboseLog("Validating platform: %s", p.Name)
		for _, verr := range compiler.Validate(p) {
			verr.Field = p.Name + "." + verr.Field
			allErrors = append(allErrors, verr)
		}
	}
	return allErrors
}

// getLineFromCuePos extracts line number from a token.Pos.
func getLineFromCuePos(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result *LoadResult) error {
	names := make([]string, 0, len(result.Platforms))
	for _, p := range result.Platforms {
		names = append(names, p.Name)
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Platforms: names})
	}

	fmt.Fprintf(formatter.Writer, "%s All platforms valid (%d)\n", formatter.Mark(true), len(names))
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		result := ValidationResult{
			Valid:  false,
			Errors: errs,
		}

		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintf(formatter.Writer, "%s Validation failed\n", formatter.Mark(false))
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
