package rules

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.cue
var defaultsCUE []byte

// Defaults returns the built-in rules for the bundled arXiv and Crossref
// sources.
func Defaults() (*RuleSet, error) {
	return LoadCUE("defaults.cue", defaultsCUE)
}

// LoadPath loads a rule file or a directory holding a CUE package. The
// encoding is chosen by extension.
func LoadPath(path string) (*RuleSet, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Path: path, Message: "rule file not found"}
	}
	if err != nil {
		return nil, &LoadError{Path: path, Message: fmt.Sprintf("error accessing rule file: %v", err)}
	}
	if info.IsDir() {
		return LoadCUEDir(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Message: fmt.Sprintf("read: %v", err)}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return LoadCUE(path, data)
	case ".yaml", ".yml":
		return LoadYAML(path, data)
	default:
		return nil, &LoadError{Path: path, Message: "unsupported rule file extension (want .cue, .yaml or .yml)"}
	}
}

// LoadCUE compiles CUE source, unifies it with the rule schema and decodes
// the result.
func LoadCUE(filename string, data []byte) (*RuleSet, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(filename, err)
	}
	return decodeCUE(ctx, filename, v)
}

// LoadCUEDir loads the CUE package in dir.
func LoadCUEDir(dir string) (*RuleSet, error) {
	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Path: dir, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Path: dir, Message: "no CUE files found"}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Path: dir, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Path: dir, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(dir, err)
	}
	return decodeCUE(ctx, dir, v)
}

func decodeCUE(ctx *cue.Context, path string, v cue.Value) (*RuleSet, error) {
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile rule schema: %w", err)
	}

	unified := schema.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(path, err)
	}

	var f File
	sourcesVal := unified.LookupPath(cue.ParsePath("source"))
	if sourcesVal.Exists() {
		if err := sourcesVal.Decode(&f.Sources); err != nil {
			return nil, formatCUEError(path, err)
		}
	}
	return finish(path, &f)
}

// LoadYAML decodes a YAML rule file. Unknown keys are rejected.
func LoadYAML(path string, data []byte) (*RuleSet, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, &LoadError{Path: path, Message: fmt.Sprintf("parse yaml: %v", err)}
	}
	return finish(path, &f)
}

func finish(path string, f *File) (*RuleSet, error) {
	if len(f.Sources) == 0 {
		return nil, &LoadError{Path: path, Message: "no sources defined"}
	}
	rs := f.Flatten()
	if errs := Validate(rs); len(errs) > 0 {
		return nil, &LoadError{Path: path, Message: errs[0].Error()}
	}
	return rs, nil
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

// formatCUEError extracts position info from CUE errors.
func formatCUEError(path string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Path: path, Message: err.Error()}
	}

	// Return first error with position info
	first := errs[0]
	le := &LoadError{Path: path, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
