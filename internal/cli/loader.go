package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/lpsuspend/internal/compiler"
)

// LoadMode controls how errors are handled during platform loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the platforms loaded from a directory or the
// builtin set.
type LoadResult struct {
	Platforms []*compiler.Platform
	Source    string // directory, or compiler.BuiltinSource
	FileCount int    // Number of CUE files found (0 for builtins)
}

// LoadError represents an error that occurred during platform loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadPlatforms compiles the platforms defined in dir. An empty dir loads
// the builtin platforms.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, returns every compile error alongside the
// platforms that did compile.
func LoadPlatforms(dir string, mode LoadMode) (*LoadResult, []error) {
	if dir == "" {
		return loadBuiltins()
	}

	// Verify directory exists
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("platform directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing platform directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	platforms, compileErrs := compiler.LoadDir(dir)
	result := &LoadResult{
		Platforms: platforms,
		Source:    dir,
		FileCount: len(cueFiles),
	}

	var errs []error
	for _, cerr := range compileErrs {
		errs = append(errs, convertCompileError(cerr))
		if mode == LoadModeFailFast {
			break
		}
	}
	if len(platforms) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no platforms found in " + dir})
	}
	return result, errs
}

func loadBuiltins() (*LoadResult, []error) {
	result := &LoadResult{Source: compiler.BuiltinSource}
	for _, name := range compiler.BuiltinNames() {
		p, err := compiler.Builtin(name)
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: err.Error()}}
		}
		result.Platforms = append(result.Platforms, p)
	}
	if len(result.Platforms) == 0 {
		// BuiltinNames is empty when the embedded files failed to compile.
		if _, err := compiler.Builtin(""); err != nil {
			return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: err.Error()}}
		}
	}
	return result, nil
}

// FindPlatform loads dir (or the builtins) and returns the platform called
// name.
func FindPlatform(dir, name string) (*compiler.Platform, error) {
	if dir == "" {
		p, err := compiler.Builtin(name)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeUnknownPlatform, Message: err.Error()}
		}
		return p, nil
	}

	result, errs := LoadPlatforms(dir, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	for _, p := range result.Platforms {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, &LoadError{Code: ErrCodeUnknownPlatform, Message: fmt.Sprintf("platform %q not defined in %s", name, dir)}
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: err.Error(),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric         = "E001" // Generic/unknown error
	ErrCodeScanError       = "E002" // Directory scan error
	ErrCodeNoFiles         = "E003" // No CUE files found
	ErrCodeLoadFailed      = "E004" // CUE load failed
	ErrCodeNotFound        = "E005" // Path not found
	ErrCodeBuildFailed     = "E006" // CUE build failed
	ErrCodeJournal         = "E007" // Journal open/read error
	ErrCodeUnknownPlatform = "E008" // Platform not defined
	ErrCodeBadFlag         = "E009" // Flag value cannot be used

	// Platform compile errors
	ErrCodeInvalidInstruction = "E010" // Unknown op or bad operands
	ErrCodeInvalidPatch       = "E011" // Patch label not in any program
	ErrCodeInvalidClocks      = "E012" // Clock layout does not decode
	ErrCodeInvalidFlag        = "E013" // Unknown platform flag
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "cue":
		return ErrCodeBuildFailed
	case field == "platform":
		return ErrCodeGeneric
	case strings.HasSuffix(field, ".op"):
		return ErrCodeInvalidInstruction
	case strings.HasSuffix(field, ".patches"):
		return ErrCodeInvalidPatch
	case strings.HasSuffix(field, ".clocks"):
		return ErrCodeInvalidClocks
	case strings.Contains(field, ".flags["):
		return ErrCodeInvalidFlag
	default:
		return ErrCodeGeneric
	}
}
