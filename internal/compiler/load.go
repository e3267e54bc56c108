package compiler

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

//go:embed schema.cue
var schemaSource []byte

//go:embed platforms/*.cue
var builtinFS embed.FS

// BuiltinSource is the Source of platforms compiled from embedded files.
const BuiltinSource = "<builtin>"

// newSchema compiles the embedded schema into ctx.
func newSchema(ctx *cue.Context) (cue.Value, error) {
	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// CompileSource compiles every platform defined under the top-level
// "platform" field of a single CUE file. Errors are collected per
// platform; the platforms that compiled are returned alongside them.
func CompileSource(filename string, src []byte) ([]*Platform, []error) {
	ctx := cuecontext.New()
	schema, err := newSchema(ctx)
	if err != nil {
		return nil, []error{err}
	}
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}
	return compileAll(schema, v, filename)
}

// LoadDir loads the CUE package in dir and compiles every platform it
// defines.
func LoadDir(dir string) ([]*Platform, []error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{fmt.Errorf("no CUE instances loaded from %s", dir)}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{fmt.Errorf("loading CUE files: %w", inst.Err)}
	}

	ctx := cuecontext.New()
	schema, err := newSchema(ctx)
	if err != nil {
		return nil, []error{err}
	}
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}
	return compileAll(schema, v, dir)
}

func compileAll(schema, v cue.Value, source string) ([]*Platform, []error) {
	pv := v.LookupPath(cue.ParsePath("platform"))
	if !pv.Exists() {
		return nil, []error{&CompileError{Field: "platform", Message: "no platform definitions found", Pos: v.Pos()}}
	}
	iter, err := pv.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var (
		platforms []*Platform
		errs      []error
	)
	for iter.Next() {
		p, err := CompilePlatform(iter.Label(), schema, iter.Value())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		p.Source = source
		platforms = append(platforms, p)
	}
	return platforms, errs
}

var (
	builtinOnce sync.Once
	builtins    map[string]*Platform
	builtinErr  error
)

func loadBuiltins() {
	builtins = make(map[string]*Platform)
	files, err := fs.Glob(builtinFS, "platforms/*.cue")
	if err != nil {
		builtinErr = err
		return
	}
	for _, f := range files {
		src, err := builtinFS.ReadFile(f)
		if err != nil {
			builtinErr = err
			return
		}
		platforms, errs := CompileSource(path.Base(f), src)
		if len(errs) > 0 {
			builtinErr = fmt.Errorf("builtin %s: %w", f, errs[0])
			return
		}
		for _, p := range platforms {
			p.Source = BuiltinSource
			builtins[p.Name] = p
		}
	}
}

// Builtin returns the embedded platform called name.
func Builtin(name string) (*Platform, error) {
	builtinOnce.Do(loadBuiltins)
	if builtinErr != nil {
		return nil, builtinErr
	}
	p, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown builtin platform %q (have %v)", name, BuiltinNames())
	}
	return p, nil
}

// BuiltinNames lists the embedded platforms in name order.
func BuiltinNames() []string {
	builtinOnce.Do(loadBuiltins)
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
