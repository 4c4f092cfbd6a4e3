package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/irts/internal/identity"
	"github.com/roach88/irts/internal/ir"
	"github.com/roach88/irts/internal/mapper"
	"github.com/roach88/irts/internal/reconcile"
	"github.com/roach88/irts/internal/rules"
	"github.com/roach88/irts/internal/store"
	"github.com/roach88/irts/internal/testutil"
)

// Harness runs scenario steps against one store.
type Harness struct {
	store      *store.Store
	mapper     *mapper.Mapper
	reconciler *reconcile.Reconciler
	resolver   *identity.Resolver
	logger     *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a step clock, so
// row IDs and timestamps are identical across runs.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Seed the rule file (or the built-in rules) and inline rule rows
// 3. Run each step: plan, then reconcile (or resolve), checking expect
// 4. Evaluate assertions against the final store
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:", store.WithClock(testutil.NewStepClock()))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := seedRules(ctx, st, scenario); err != nil {
		return nil, err
	}

	policy := mapper.UnmappedPassthrough
	if scenario.Unmapped != "" {
		if policy, err = mapper.ParseUnmappedPolicy(scenario.Unmapped); err != nil {
			return nil, err
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &Harness{
		store: st,
		mapper: mapper.New(st,
			mapper.WithLogger(logger),
			mapper.WithMessages(st),
			mapper.WithUnmappedPolicy(policy)),
		reconciler: reconcile.New(st, reconcile.WithLogger(logger)),
		resolver:   identity.NewResolver(st),
		logger:     logger,
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.runStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	for _, msg := range EvaluateAssertions(ctx, st, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func seedRules(ctx context.Context, st *store.Store, scenario *Scenario) error {
	var (
		rs  *rules.RuleSet
		err error
	)
	if scenario.Rules != "" {
		rs, err = rules.LoadPath(scenario.Rules)
	} else {
		rs, err = rules.Defaults()
	}
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	if _, err := rules.Seed(ctx, st, rs); err != nil {
		return fmt.Errorf("failed to seed rules: %w", err)
	}

	for _, m := range scenario.Mappings {
		if err := st.UpsertMapping(ctx, ir.MappingRule{
			Source:              m.Source,
			SourceField:         m.Field,
			ParentFieldInSource: m.Parent,
			StandardField:       m.Standard,
		}); err != nil {
			return fmt.Errorf("failed to add mapping: %w", err)
		}
	}
	for _, t := range scenario.Transformations {
		if _, err := st.AddTransformation(ctx, ir.TransformationRule{
			Source:    t.Source,
			Field:     t.Field,
			Type:      ir.TransformType(t.Type),
			Parameter: t.Parameter,
			Value:     t.Value,
			Priority:  t.Priority,
		}); err != nil {
			return fmt.Errorf("failed to add transformation: %w", err)
		}
	}
	return nil
}

// runStep executes one step. Step failures are recorded in the trace and
// checked against the expect clause; only harness failures are returned.
func (h *Harness) runStep(ctx context.Context, index int, step Step, result *Result) error {
	ev := TraceEvent{Step: index + 1, Name: step.Name, Source: step.Source, ID: step.ID}

	var stepErr error
	if step.Resolve != nil {
		stepErr = h.resolve(ctx, step, &ev)
	} else {
		stepErr = h.reconcile(ctx, step, &ev)
	}
	if stepErr != nil {
		ev.Error = stepErr.Error()
	}
	result.AddTrace(ev)

	label := fmt.Sprintf("steps[%d]", index)
	if step.Name != "" {
		label = fmt.Sprintf("steps[%d] %s", index, step.Name)
	}
	for _, msg := range checkExpect(step.Expect, ev, stepErr) {
		result.AddError(label + ": " + msg)
	}

	h.logger.Info("scenario step completed",
		"step", index,
		"source", step.Source,
		"id", step.ID,
		"error", ev.Error)
	return nil
}

func (h *Harness) reconcile(ctx context.Context, step Step, ev *TraceEvent) error {
	tree := buildTree(step.Tree)
	if len(step.Fields) > 0 {
		mapped, stats, err := h.mapper.BuildTree(ctx, step.Source, rawFields(step.Fields))
		if err != nil {
			return err
		}
		tree = mapped
		ev.Mapping = &stats
	}

	rec, _, err := h.reconciler.Plan(ctx, step.Source, step.ID, tree)
	if err != nil {
		return err
	}
	if rendered := strings.TrimSuffix(rec.Render(), "\n"); rendered != "" {
		ev.Plan = strings.Split(rendered, "\n")
	}

	res, err := h.reconciler.Reconcile(ctx, step.Source, step.ID, tree, step.Payload, ir.Format(step.Format))
	if err != nil {
		return err
	}
	ev.Result = &res
	return nil
}

func (h *Harness) resolve(ctx context.Context, step Step, ev *TraceEvent) error {
	match, err := h.resolver.Resolve(ctx, identity.Candidate{
		Source:     step.Source,
		IDInSource: step.ID,
		IDField:    step.Resolve.IDField,
		DOI:        step.Resolve.DOI,
		Title:      step.Resolve.Title,
		Type:       step.Resolve.Type,
	})
	if err != nil {
		return err
	}
	ev.Match = &match
	return nil
}

func checkExpect(exp *Expect, ev TraceEvent, stepErr error) []string {
	if exp == nil {
		if stepErr != nil {
			return []string{fmt.Sprintf("unexpected error: %v", stepErr)}
		}
		return nil
	}

	if exp.Error != "" {
		switch {
		case stepErr == nil:
			return []string{fmt.Sprintf("expected error containing %q, got none", exp.Error)}
		case !strings.Contains(stepErr.Error(), exp.Error):
			return []string{fmt.Sprintf("expected error containing %q, got %q", exp.Error, stepErr.Error())}
		}
		return nil
	}
	if stepErr != nil {
		return []string{fmt.Sprintf("unexpected error: %v", stepErr)}
	}

	var errs []string
	check := func(what, want, got string) {
		if want != "" && want != got {
			errs = append(errs, fmt.Sprintf("%s: expected %q, got %q", what, want, got))
		}
	}
	checkInt := func(what string, want *int, got int) {
		if want != nil && *want != got {
			errs = append(errs, fmt.Sprintf("%s: expected %d, got %d", what, *want, got))
		}
	}

	if r := ev.Result; r != nil {
		check("record", exp.Record, string(r.Record))
		check("document", exp.Document, string(r.Document))
		checkInt("created", exp.Created, r.Created)
		checkInt("superseded", exp.Superseded, r.Superseded)
		checkInt("retired", exp.Retired, r.Retired)
		checkInt("relinked", exp.Relinked, r.Relinked)
		checkInt("unchanged", exp.Unchanged, r.Unchanged)
	}
	if m := ev.Match; m != nil {
		check("match", exp.Match, string(m.Kind))
		if m.Existing() {
			check("ref", exp.Ref, m.Ref.String())
		} else {
			check("ref", exp.Ref, "")
		}
		check("reason", exp.Reason, string(m.Reason))
	}
	return errs
}

// rawFields converts scenario fields to parser output. Parent names are
// left empty; the mapper takes them from the enclosing field.
func rawFields(specs []FieldSpec) []ir.RawField {
	if len(specs) == 0 {
		return nil
	}
	out := make([]ir.RawField, 0, len(specs))
	for _, s := range specs {
		out = append(out, ir.RawField{
			Name:     s.Name,
			Value:    s.Value,
			Children: rawFields(s.Children),
		})
	}
	return out
}

func buildTree(specs []NodeSpec) ir.Tree {
	var tree ir.Tree
	for _, s := range specs {
		var n *ir.Node
		if s.Value == nil {
			n = tree.AddContainer(s.Field)
		} else {
			n = tree.Add(s.Field, *s.Value)
		}
		n.Children = buildTree(s.Children)
	}
	return tree
}
