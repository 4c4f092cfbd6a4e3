package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/irts/internal/ir"
	"github.com/roach88/irts/internal/reconcile"
	"github.com/roach88/irts/internal/store"
	"github.com/roach88/irts/internal/testutil"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:", store.WithClock(testutil.NewStepClock()))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	var tree ir.Tree
	tree.Add(ir.FieldTitle, "Deep Nets")
	tree.Add(ir.FieldAuthor, "Doe, Jane").AddChild("dc.contributor.affiliation", "KAUST")
	_, err = reconcile.New(st).Reconcile(context.Background(), "crossref", "10.1/x", tree, "", "")
	require.NoError(t, err)
	return st
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{Type: "history", Subject: "a:1 dc.title", Expected: `["A"]`, Actual: `["B"]`}
	assert.Equal(t, `assertion failed: history (a:1 dc.title): expected ["A"], actual ["B"]`, err.Error())

	err = &AssertionError{Type: "no_dangling", Expected: "x", Actual: "y"}
	assert.Equal(t, "assertion failed: no_dangling: expected x, actual y", err.Error())
}

func TestEvaluateAssertions_Passing(t *testing.T) {
	st := seededStore(t)

	errs := EvaluateAssertions(context.Background(), st, []Assertion{
		{Type: AssertActiveValue, Source: "crossref", ID: "10.1/x", Field: "dc.contributor.affiliation", Value: strPtr("KAUST")},
		{Type: AssertActiveValue, Source: "crossref", ID: "10.1/x", Field: ir.FieldTitle, Place: intPtr(0), Value: strPtr("Deep Nets")},
		{Type: AssertActiveValue, Source: "crossref", ID: "10.1/x", Field: ir.FieldDOI, Absent: true},
		{Type: AssertHistory, Source: "crossref", ID: "10.1/x", Field: ir.FieldTitle, Values: []string{"Deep Nets"}, Count: intPtr(1)},
		{Type: AssertActiveCount, Source: "crossref", ID: "10.1/x", Count: intPtr(3)},
		{Type: AssertNoDangling},
		{Type: AssertMessageCount, Count: intPtr(0)},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failing(t *testing.T) {
	st := seededStore(t)

	errs := EvaluateAssertions(context.Background(), st, []Assertion{
		{Type: AssertActiveValue, Source: "crossref", ID: "10.1/x", Field: ir.FieldTitle, Value: strPtr("Other")},
		{Type: AssertActiveValue, Source: "crossref", ID: "10.1/x", Field: ir.FieldTitle, Absent: true},
		{Type: AssertActiveValue, Source: "crossref", ID: "10.1/x", Field: ir.FieldTitle, Place: intPtr(1), Value: strPtr("Deep Nets")},
		{Type: AssertHistory, Source: "crossref", ID: "10.1/x", Field: ir.FieldTitle, Count: intPtr(2)},
		{Type: AssertActiveCount, Source: "crossref", ID: "10.1/x", Count: intPtr(1)},
		{Type: AssertMessageCount, Process: "harvest", Count: intPtr(1)},
	})
	require.Len(t, errs, 6)
	assert.Equal(t, `assertions[0]: assertion failed: active_value (crossref:10.1/x dc.title): expected "Other", actual ["Deep Nets"]`, errs[0])
	assert.Equal(t, `assertions[1]: assertion failed: active_value (crossref:10.1/x dc.title): expected no active row, actual ["Deep Nets"]`, errs[1])
	assert.Equal(t, `assertions[2]: assertion failed: active_value (crossref:10.1/x dc.title[1]): expected "Deep Nets", actual []`, errs[2])
	assert.Equal(t, `assertions[3]: assertion failed: history (crossref:10.1/x dc.title): expected 2 rows, actual 1 rows`, errs[3])
	assert.Equal(t, `assertions[4]: assertion failed: active_count (crossref:10.1/x): expected 1 active rows, actual 3 active rows`, errs[4])
	assert.Equal(t, `assertions[5]: assertion failed: message_count (harvest): expected 1 messages, actual 0 messages`, errs[5])
}
