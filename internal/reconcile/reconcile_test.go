package reconcile

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/irts/internal/ir"
	"github.com/roach88/irts/internal/store"
	"github.com/roach88/irts/internal/testutil"
)

func setup(t *testing.T) (*store.Store, *Reconciler) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.WithClock(testutil.NewStepClock()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, New(s)
}

func reconcileTree(t *testing.T, r *Reconciler, id string, tree ir.Tree) Result {
	t.Helper()
	res, err := r.Reconcile(context.Background(), "crossref", id, tree, "", ir.FormatJSON)
	require.NoError(t, err)
	return res
}

func assertNoDangling(t *testing.T, s *store.Store) {
	t.Helper()
	dangling, err := s.DanglingChildren(context.Background())
	require.NoError(t, err)
	assert.Empty(t, dangling)
}

func sampleTree() ir.Tree {
	var tree ir.Tree
	tree.Add(ir.FieldTitle, "Deep Nets")
	doe := tree.Add(ir.FieldAuthor, "Doe, Jane")
	doe.AddChild("dc.contributor.affiliation", "KAUST")
	tree.Add(ir.FieldAuthor, "Roe, Rick")
	tree.Add(ir.FieldType, "Article")
	return tree
}

func TestReconcile_NewRecord(t *testing.T) {
	s, r := setup(t)

	res := reconcileTree(t, r, "10.1/x", sampleTree())
	assert.Equal(t, RecordNew, res.Record)
	assert.Equal(t, 5, res.Created)

	tree, err := s.ActiveTreeFor(context.Background(), "crossref", "10.1/x")
	require.NoError(t, err)
	assert.Equal(t, 5, ir.ToTree(tree).Size())
}

func TestReconcile_Idempotent(t *testing.T) {
	s, r := setup(t)
	reconcileTree(t, r, "10.1/x", sampleTree())

	before, err := s.HistoryFor(context.Background(), "crossref", "10.1/x", ir.FieldAuthor)
	require.NoError(t, err)

	res := reconcileTree(t, r, "10.1/x", sampleTree())
	assert.Equal(t, RecordUnchanged, res.Record)
	assert.False(t, res.Changed())
	assert.Equal(t, 5, res.Unchanged)

	after, err := s.HistoryFor(context.Background(), "crossref", "10.1/x", ir.FieldAuthor)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

// A changed title supersedes the old row; the old row stays in history.
func TestReconcile_ChangedValueSupersedes(t *testing.T) {
	s, r := setup(t)
	ctx := context.Background()

	var v1 ir.Tree
	v1.Add(ir.FieldTitle, "Old Title")
	reconcileTree(t, r, "10.1/x", v1)

	var v2 ir.Tree
	v2.Add(ir.FieldTitle, "New Title")
	res := reconcileTree(t, r, "10.1/x", v2)
	assert.Equal(t, RecordModified, res.Record)
	assert.Equal(t, 1, res.Superseded)

	history, err := s.HistoryFor(ctx, "crossref", "10.1/x", ir.FieldTitle)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Old Title", history[0].ValueString())
	require.NotNil(t, history[0].ReplacedByRowID)
	assert.Equal(t, history[1].RowID, *history[0].ReplacedByRowID)
	assert.Equal(t, "New Title", history[1].ValueString())
	assert.True(t, history[1].Active())
}

// Dropping the second author retires it and leaves the first untouched.
func TestReconcile_DroppedAuthorRetired(t *testing.T) {
	s, r := setup(t)
	ctx := context.Background()

	var v1 ir.Tree
	v1.Add(ir.FieldAuthor, "Doe, Jane")
	v1.Add(ir.FieldAuthor, "Roe, Rick")
	reconcileTree(t, r, "10.1/x", v1)

	var v2 ir.Tree
	v2.Add(ir.FieldAuthor, "Doe, Jane")
	res := reconcileTree(t, r, "10.1/x", v2)
	assert.Equal(t, Counts{Retired: 1, Unchanged: 1}, res.Counts)

	history, err := s.HistoryFor(ctx, "crossref", "10.1/x", ir.FieldAuthor)
	require.NoError(t, err)
	require.Len(t, history, 2, "no new row written")

	assert.Equal(t, 0, history[0].Place)
	assert.True(t, history[0].Active())

	assert.Equal(t, 1, history[1].Place)
	assert.NotNil(t, history[1].Deleted)
	assert.Nil(t, history[1].ReplacedByRowID)
}

func TestReconcile_RetiresSubtreeDescendantsFirst(t *testing.T) {
	s, r := setup(t)
	reconcileTree(t, r, "10.1/x", sampleTree())

	var v2 ir.Tree
	v2.Add(ir.FieldTitle, "Deep Nets")
	v2.Add(ir.FieldType, "Article")
	res := reconcileTree(t, r, "10.1/x", v2)
	assert.Equal(t, 3, res.Retired)

	assertNoDangling(t, s)
}

func TestReconcile_SupersededParentRelinksChild(t *testing.T) {
	s, r := setup(t)
	ctx := context.Background()
	reconcileTree(t, r, "10.1/x", sampleTree())

	before, err := s.ActiveTreeFor(ctx, "crossref", "10.1/x")
	require.NoError(t, err)
	affiliationID := before[0].Children[0].RowID

	v2 := sampleTree()
	*v2.Find(ir.FieldAuthor, 0).Value = "Doe, J."
	res := reconcileTree(t, r, "10.1/x", v2)
	assert.Equal(t, 1, res.Superseded)
	assert.Equal(t, 1, res.Relinked)
	assert.Equal(t, 0, res.Created)

	after, err := s.ActiveTreeFor(ctx, "crossref", "10.1/x")
	require.NoError(t, err)
	require.Len(t, after[0].Children, 1)
	assert.Equal(t, "Doe, J.", after[0].ValueString())
	assert.Equal(t, affiliationID, after[0].Children[0].RowID, "child re-linked, not duplicated")
	assertNoDangling(t, s)
}

func TestReconcile_SupersededParentWithChangedChild(t *testing.T) {
	s, r := setup(t)
	reconcileTree(t, r, "10.1/x", sampleTree())

	v2 := sampleTree()
	author := v2.Find(ir.FieldAuthor, 0)
	*author.Value = "Doe, J."
	*author.Children[0].Value = "MIT"
	res := reconcileTree(t, r, "10.1/x", v2)
	assert.Equal(t, 2, res.Superseded)
	assert.Equal(t, 0, res.Relinked)
	assertNoDangling(t, s)
}

func TestReconcile_RoundTrip(t *testing.T) {
	s, r := setup(t)

	// Built in field/place order so it compares equal to the stored form.
	var incoming ir.Tree
	incoming.AddContainer("crossref.funder").AddChild("crossref.funder.name", "NSF")
	doe := incoming.Add(ir.FieldAuthor, "Doe, Jane")
	doe.AddChild("dc.contributor.affiliation", "KAUST")
	doe.AddChild("dc.contributor.affiliation", "MIT")
	incoming.Add(ir.FieldAuthor, "Roe, Rick")
	incoming.Add(ir.FieldTitle, "Deep Nets")

	reconcileTree(t, r, "10.1/x", incoming)

	stored, err := s.ActiveTreeFor(context.Background(), "crossref", "10.1/x")
	require.NoError(t, err)
	assert.Equal(t, incoming, ir.ToTree(stored))
}

// Equal value at a different place is a change at each key.
func TestReconcile_ReorderIsValueChange(t *testing.T) {
	_, r := setup(t)

	var v1 ir.Tree
	v1.Add(ir.FieldAuthor, "A")
	v1.Add(ir.FieldAuthor, "B")
	reconcileTree(t, r, "10.1/x", v1)

	var v2 ir.Tree
	v2.Add(ir.FieldAuthor, "B")
	v2.Add(ir.FieldAuthor, "A")
	res := reconcileTree(t, r, "10.1/x", v2)
	assert.Equal(t, Counts{Superseded: 2}, res.Counts)
}

func TestReconcile_ContainerDiffersFromEmptyString(t *testing.T) {
	_, r := setup(t)

	var v1 ir.Tree
	v1.AddContainer("crossref.funder")
	reconcileTree(t, r, "10.1/x", v1)

	var v2 ir.Tree
	v2.Add("crossref.funder", "")
	res := reconcileTree(t, r, "10.1/x", v2)
	assert.Equal(t, 1, res.Superseded)
}

func TestReconcile_DuplicateIncomingKeyRollsBack(t *testing.T) {
	s, r := setup(t)
	ctx := context.Background()

	v := "x"
	tree := ir.Tree{
		{Field: ir.FieldTitle, Place: 0, Value: &v},
		{Field: ir.FieldTitle, Place: 0, Value: &v},
	}
	_, err := r.Reconcile(ctx, "crossref", "10.1/x", tree, `{"a":1}`, ir.FormatJSON)
	require.Error(t, err)
	assert.True(t, ir.IsIntegrity(err))

	// The payload save rolled back with the tree.
	_, found, err := s.ActiveSourceDocument(ctx, "crossref", "10.1/x")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestReconcile_SavesSourceDocument(t *testing.T) {
	_, r := setup(t)
	ctx := context.Background()

	res, err := r.Reconcile(ctx, "crossref", "10.1/x", sampleTree(), `{"DOI":"10.1/x"}`, ir.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, ir.DocumentNew, res.Document)

	res, err = r.Reconcile(ctx, "crossref", "10.1/x", sampleTree(), `{ "DOI": "10.1/x" }`, ir.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, ir.DocumentUnchanged, res.Document)
	assert.Equal(t, RecordUnchanged, res.Record)
}

func TestPlan_DoesNotWrite(t *testing.T) {
	s, r := setup(t)
	ctx := context.Background()

	_, res, err := r.Plan(ctx, "crossref", "10.1/x", sampleTree())
	require.NoError(t, err)
	assert.Equal(t, RecordNew, res.Record)
	assert.Equal(t, 5, res.Created)

	exists, err := s.RecordExists(ctx, "crossref", "10.1/x")
	require.NoError(t, err)
	assert.False(t, exists)
}
