package rules

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue/token"

	"github.com/roach88/irts/internal/ir"
)

// File is the decoded form of a rule file.
type File struct {
	Sources map[string]SourceRules `json:"source" yaml:"source"`
}

// SourceRules holds the rules of one source.
type SourceRules struct {
	Mappings        []MappingEntry        `json:"mappings" yaml:"mappings"`
	Transformations []TransformationEntry `json:"transformations" yaml:"transformations"`
}

// MappingEntry is one mapping as written in a rule file.
type MappingEntry struct {
	Field    string `json:"field" yaml:"field"`
	Parent   string `json:"parent" yaml:"parent"`
	Standard string `json:"standard" yaml:"standard"`
}

// TransformationEntry is one transformation as written in a rule file.
type TransformationEntry struct {
	Field     string `json:"field" yaml:"field"`
	Type      string `json:"type" yaml:"type"`
	Parameter string `json:"parameter" yaml:"parameter"`
	Value     string `json:"value" yaml:"value"`
	Priority  int    `json:"priority" yaml:"priority"`
}

// RuleSet is a flattened, store-ready set of rules.
type RuleSet struct {
	Mappings        []ir.MappingRule
	Transformations []ir.TransformationRule
}

// Sources returns the sorted names of sources that carry any rule.
func (rs *RuleSet) Sources() []string {
	seen := make(map[string]bool)
	for _, m := range rs.Mappings {
		seen[m.Source] = true
	}
	for _, t := range rs.Transformations {
		seen[t.Source] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Flatten converts a decoded file into a RuleSet. Sources are emitted in
// name order, entries in file order.
func (f *File) Flatten() *RuleSet {
	names := make([]string, 0, len(f.Sources))
	for name := range f.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	rs := &RuleSet{}
	for _, name := range names {
		src := f.Sources[name]
		for _, m := range src.Mappings {
			rs.Mappings = append(rs.Mappings, ir.MappingRule{
				Source:              name,
				SourceField:         m.Field,
				ParentFieldInSource: m.Parent,
				StandardField:       m.Standard,
			})
		}
		for _, t := range src.Transformations {
			rs.Transformations = append(rs.Transformations, ir.TransformationRule{
				Source:    name,
				Field:     t.Field,
				Type:      ir.TransformType(t.Type),
				Parameter: t.Parameter,
				Value:     t.Value,
				Priority:  t.Priority,
			})
		}
	}
	return rs
}

// LoadError represents a rule file that could not be loaded.
type LoadError struct {
	Path    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}
