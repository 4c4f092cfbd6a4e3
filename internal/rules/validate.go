package rules

import (
	"fmt"

	"github.com/roach88/irts/internal/ir"
)

// ValidationError describes one invalid rule.
type ValidationError struct {
	Source  string `json:"source"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Source, e.Field, e.Message)
}

// Validate checks a rule set before it is written.
// Returns all errors found (does not fail-fast).
func Validate(rs *RuleSet) []ValidationError {
	var errs []ValidationError

	type mkey struct{ source, parent, field string }
	seen := make(map[mkey]string)
	for _, m := range rs.Mappings {
		if m.Source == "" || m.SourceField == "" {
			errs = append(errs, ValidationError{Source: m.Source, Field: m.SourceField, Message: "mapping needs a source and a field"})
			continue
		}
		if m.StandardField == "" {
			errs = append(errs, ValidationError{Source: m.Source, Field: m.SourceField, Message: "mapping needs a standard field"})
			continue
		}
		k := mkey{m.Source, m.ParentFieldInSource, m.SourceField}
		if prev, dup := seen[k]; dup && prev != m.StandardField {
			errs = append(errs, ValidationError{Source: m.Source, Field: m.SourceField,
				Message: fmt.Sprintf("mapped twice under parent %q (%s, %s)", m.ParentFieldInSource, prev, m.StandardField)})
			continue
		}
		seen[k] = m.StandardField
	}

	for _, t := range rs.Transformations {
		if t.Source == "" || t.Field == "" {
			errs = append(errs, ValidationError{Source: t.Source, Field: t.Field, Message: "transformation needs a source and a field"})
			continue
		}
		if !ir.ValidTransformTypes[t.Type] {
			errs = append(errs, ValidationError{Source: t.Source, Field: t.Field,
				Message: fmt.Sprintf("unknown transformation type %q", t.Type)})
			continue
		}
		if t.Type == ir.TransformRegex {
			if _, err := t.CompileRegex(); err != nil {
				errs = append(errs, ValidationError{Source: t.Source, Field: t.Field, Message: err.Error()})
			}
		}
	}

	return errs
}
