package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/irts/internal/ir"
	"github.com/roach88/irts/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Subject  string // Record or table the assertion looked at
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion failed: %s", e.Type)
	if e.Subject != "" {
		fmt.Fprintf(&buf, " (%s)", e.Subject)
	}
	fmt.Fprintf(&buf, ": expected %s, actual %s", e.Expected, e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion against the store and returns
// the failure messages.
func EvaluateAssertions(ctx context.Context, st *store.Store, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(ctx, st, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluateAssertion(ctx context.Context, st *store.Store, a Assertion) error {
	switch a.Type {
	case AssertActiveValue:
		return assertActiveValue(ctx, st, a)
	case AssertHistory:
		return assertHistory(ctx, st, a)
	case AssertActiveCount:
		return assertActiveCount(ctx, st, a)
	case AssertNoDangling:
		return assertNoDangling(ctx, st)
	case AssertMessageCount:
		return assertMessageCount(ctx, st, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertActiveValue looks for the field at any depth of the active tree.
func assertActiveValue(ctx context.Context, st *store.Store, a Assertion) error {
	nodes, err := st.ActiveTreeFor(ctx, a.Source, a.ID)
	if err != nil {
		return err
	}

	var found []string
	walkActive(nodes, func(n *ir.StoredNode) {
		if n.Field != a.Field {
			return
		}
		if a.Place != nil && n.Place != *a.Place {
			return
		}
		found = append(found, n.ValueString())
	})

	subject := fmt.Sprintf("%s:%s %s", a.Source, a.ID, a.Field)
	if a.Place != nil {
		subject = fmt.Sprintf("%s[%d]", subject, *a.Place)
	}

	if a.Absent {
		if len(found) > 0 {
			return &AssertionError{Type: a.Type, Subject: subject,
				Expected: "no active row", Actual: fmt.Sprintf("%q", found)}
		}
		return nil
	}
	if !slices.Contains(found, *a.Value) {
		return &AssertionError{Type: a.Type, Subject: subject,
			Expected: fmt.Sprintf("%q", *a.Value), Actual: fmt.Sprintf("%q", found)}
	}
	return nil
}

func assertHistory(ctx context.Context, st *store.Store, a Assertion) error {
	history, err := st.HistoryFor(ctx, a.Source, a.ID, a.Field)
	if err != nil {
		return err
	}

	values := make([]string, 0, len(history))
	for _, r := range history {
		values = append(values, r.ValueString())
	}

	subject := fmt.Sprintf("%s:%s %s", a.Source, a.ID, a.Field)
	if a.Values != nil && !slices.Equal(values, a.Values) {
		return &AssertionError{Type: a.Type, Subject: subject,
			Expected: fmt.Sprintf("%q", a.Values), Actual: fmt.Sprintf("%q", values)}
	}
	if a.Count != nil && len(values) != *a.Count {
		return &AssertionError{Type: a.Type, Subject: subject,
			Expected: fmt.Sprintf("%d rows", *a.Count), Actual: fmt.Sprintf("%d rows", len(values))}
	}
	return nil
}

func assertActiveCount(ctx context.Context, st *store.Store, a Assertion) error {
	nodes, err := st.ActiveTreeFor(ctx, a.Source, a.ID)
	if err != nil {
		return err
	}
	count := 0
	walkActive(nodes, func(*ir.StoredNode) { count++ })

	if count != *a.Count {
		return &AssertionError{Type: a.Type, Subject: a.Source + ":" + a.ID,
			Expected: fmt.Sprintf("%d active rows", *a.Count), Actual: fmt.Sprintf("%d active rows", count)}
	}
	return nil
}

func assertNoDangling(ctx context.Context, st *store.Store) error {
	dangling, err := st.DanglingChildren(ctx)
	if err != nil {
		return err
	}
	if len(dangling) > 0 {
		ids := make([]string, 0, len(dangling))
		for _, r := range dangling {
			ids = append(ids, fmt.Sprintf("#%d", r.RowID))
		}
		return &AssertionError{Type: AssertNoDangling,
			Expected: "no active child of a closed parent", Actual: strings.Join(ids, ", ")}
	}
	return nil
}

func assertMessageCount(ctx context.Context, st *store.Store, a Assertion) error {
	msgs, err := st.Messages(ctx, a.Process, 0)
	if err != nil {
		return err
	}
	count := 0
	for _, m := range msgs {
		if a.MessageType == "" || m.Type == a.MessageType {
			count++
		}
	}
	if count != *a.Count {
		subject := strings.TrimSpace(a.Process + " " + a.MessageType)
		return &AssertionError{Type: a.Type, Subject: subject,
			Expected: fmt.Sprintf("%d messages", *a.Count), Actual: fmt.Sprintf("%d messages", count)}
	}
	return nil
}

func walkActive(nodes []*ir.StoredNode, fn func(*ir.StoredNode)) {
	for _, n := range nodes {
		fn(n)
		walkActive(n.Children, fn)
	}
}
