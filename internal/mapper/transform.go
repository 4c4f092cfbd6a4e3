package mapper

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/irts/internal/ir"
)

// compiledRule is a transformation rule ready to apply. A rule whose
// pattern is empty or does not compile, or whose type is unknown, keeps err
// set and is skipped.
type compiledRule struct {
	rule ir.TransformationRule
	re   *regexp.Regexp
	err  *ir.Error
}

func compileRule(r ir.TransformationRule) compiledRule {
	c := compiledRule{rule: r}
	if !ir.ValidTransformTypes[r.Type] {
		c.err = ir.NewConfigurationError("apply transforms",
			fmt.Sprintf("unknown transformation type %q", r.Type), nil)
		return c
	}
	if r.Type == ir.TransformRegex {
		re, err := r.CompileRegex()
		if err != nil {
			c.err = ir.NewConfigurationError("apply transforms", err.Error(), nil)
			return c
		}
		c.re = re
	}
	return c
}

// apply runs one step. Steps with a missing needle or affix leave the value
// as is.
func (c compiledRule) apply(value string) string {
	r := c.rule
	switch r.Type {
	case ir.TransformReplace:
		if r.Parameter == "" {
			return value
		}
		return strings.ReplaceAll(value, r.Parameter, r.Value)
	case ir.TransformRegex:
		return c.re.ReplaceAllString(value, r.Value)
	case ir.TransformUppercase:
		return strings.ToUpper(value)
	case ir.TransformLowercase:
		return strings.ToLower(value)
	case ir.TransformStrip:
		if r.Parameter == "" {
			return strings.TrimSpace(value)
		}
		return strings.Trim(value, r.Parameter)
	case ir.TransformPrefix:
		return affix(r) + value
	case ir.TransformSuffix:
		return value + affix(r)
	}
	return value
}

// affix is the text a prefix or suffix rule adds: the rule value, or the
// parameter for rules written with the parameter column only.
func affix(r ir.TransformationRule) string {
	if r.Value != "" {
		return r.Value
	}
	return r.Parameter
}

// ApplyTransforms runs the rules configured for (source, field) over raw in
// ascending priority. Each step consumes the previous output. Rules that
// cannot be applied are reported and skipped; the function only fails when
// the rule list cannot be read.
func (m *Mapper) ApplyTransforms(ctx context.Context, source, field, raw string) (string, error) {
	rules, err := m.rulesFor(ctx, source, field)
	if err != nil {
		return raw, err
	}

	value := raw
	for _, c := range rules {
		if c.err != nil {
			m.reportConfigError(ctx, source, c.rule, c.err)
			continue
		}
		value = c.apply(value)
	}
	return value, nil
}

func (m *Mapper) rulesFor(ctx context.Context, source, field string) ([]compiledRule, error) {
	key := transformKey{source: source, field: field}

	m.mu.RLock()
	rules, cached := m.transforms[key]
	m.mu.RUnlock()
	if cached {
		m.metrics.CacheHit("transform")
		return rules, nil
	}
	m.metrics.CacheMiss("transform")

	raw, err := m.rules.TransformationsFor(ctx, source, field)
	if err != nil {
		return nil, fmt.Errorf("transformations for %s/%s: %w", source, field, err)
	}

	rules = make([]compiledRule, 0, len(raw))
	for _, r := range raw {
		rules = append(rules, compileRule(r))
	}

	m.mu.Lock()
	m.transforms[key] = rules
	m.mu.Unlock()
	return rules, nil
}
