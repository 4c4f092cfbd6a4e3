package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/irts/internal/ir"
	"github.com/roach88/irts/internal/testutil"
)

func strPtr(s string) *string { return &s }

func appendOne(t *testing.T, s *Store, v NewValue) int64 {
	t.Helper()
	var id int64
	err := s.WithTx(context.Background(), func(tx *Tx) error {
		var err error
		id, err = tx.AppendValue(context.Background(), v)
		return err
	})
	require.NoError(t, err)
	return id
}

func TestAppendValue_ReadBack(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	var authorID int64
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.AppendValue(ctx, NewValue{Source: "arxiv", IDInSource: "2401.00001",
			Field: ir.FieldTitle, Value: strPtr("A title")}); err != nil {
			return err
		}
		var err error
		authorID, err = tx.AppendValue(ctx, NewValue{Source: "arxiv", IDInSource: "2401.00001",
			Field: ir.FieldAuthor, Value: strPtr("Doe, Jane")})
		if err != nil {
			return err
		}
		_, err = tx.AppendValue(ctx, NewValue{Source: "arxiv", IDInSource: "2401.00001",
			ParentRowID: &authorID, Field: "dc.contributor.affiliation", Value: strPtr("KAUST")})
		return err
	})
	require.NoError(t, err)

	tree, err := s.ActiveTreeFor(ctx, "arxiv", "2401.00001")
	require.NoError(t, err)
	require.Len(t, tree, 2)

	// Siblings ordered by field: dc.contributor.author < dc.title.
	assert.Equal(t, ir.FieldAuthor, tree[0].Field)
	assert.Equal(t, authorID, tree[0].RowID)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, "KAUST", tree[0].Children[0].ValueString())
	assert.Equal(t, ir.FieldTitle, tree[1].Field)
	assert.Equal(t, testutil.Epoch, tree[1].Added)
	assert.True(t, tree[1].Active())
}

func TestAppendValue_SlotTakenIsIntegrityError(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	v := NewValue{Source: "arxiv", IDInSource: "x", Field: ir.FieldTitle, Value: strPtr("A")}
	appendOne(t, s, v)

	err := s.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.AppendValue(ctx, v)
		return err
	})
	require.Error(t, err)
	assert.True(t, ir.IsIntegrity(err), "got %v", err)

	// A different place is a different slot.
	v.Place = 1
	appendOne(t, s, v)
}

func TestAppendValue_InactiveParentIsIntegrityError(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	missing := int64(999)

	err := s.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.AppendValue(ctx, NewValue{Source: "arxiv", IDInSource: "x",
			ParentRowID: &missing, Field: "dc.contributor.affiliation", Value: strPtr("KAUST")})
		return err
	})
	assert.True(t, ir.IsIntegrity(err), "got %v", err)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.AppendValue(ctx, NewValue{Source: "arxiv", IDInSource: "x",
			Field: ir.FieldTitle, Value: strPtr("A")}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	tree, err := s.ActiveTreeFor(ctx, "arxiv", "x")
	require.NoError(t, err)
	assert.Empty(t, tree)
}

func TestWithTx_SharedTimestamp(t *testing.T) {
	s, clock := createTestStore(t)
	ctx := context.Background()
	want := clock.Peek()

	err := s.WithTx(ctx, func(tx *Tx) error {
		assert.Equal(t, want, tx.Now())
		for _, f := range []string{"a", "b", "c"} {
			if _, err := tx.AppendValue(ctx, NewValue{Source: "s", IDInSource: "1", Field: f, Value: strPtr(f)}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	tree, err := s.ActiveTreeFor(ctx, "s", "1")
	require.NoError(t, err)
	for _, n := range tree {
		assert.Equal(t, want, n.Added)
	}
}

func TestSupersede_PreservesHistory(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	oldID := appendOne(t, s, NewValue{Source: "crossref", IDInSource: "10.1/x", Field: ir.FieldTitle, Value: strPtr("A")})

	var newID int64
	err := s.WithTx(ctx, func(tx *Tx) error {
		var err error
		newID, err = tx.Supersede(ctx, oldID, NewValue{Source: "crossref", IDInSource: "10.1/x",
			Field: ir.FieldTitle, Value: strPtr("B")})
		return err
	})
	require.NoError(t, err)

	history, err := s.HistoryFor(ctx, "crossref", "10.1/x", ir.FieldTitle)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, oldID, history[0].RowID)
	assert.Equal(t, "A", history[0].ValueString())
	require.NotNil(t, history[0].Deleted)
	assert.Equal(t, testutil.Epoch.Add(1e9), *history[0].Deleted)
	require.NotNil(t, history[0].ReplacedByRowID)
	assert.Equal(t, newID, *history[0].ReplacedByRowID)

	assert.Equal(t, "B", history[1].ValueString())
	assert.True(t, history[1].Active())
	assert.Nil(t, history[1].ReplacedByRowID)
}

func TestSupersede_ClosedRowIsIntegrityError(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	id := appendOne(t, s, NewValue{Source: "s", IDInSource: "1", Field: ir.FieldTitle, Value: strPtr("A")})

	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error { return tx.Retire(ctx, id) }))

	err := s.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.Supersede(ctx, id, NewValue{Source: "s", IDInSource: "1", Field: ir.FieldTitle, Value: strPtr("B")})
		return err
	})
	assert.True(t, ir.IsIntegrity(err), "got %v", err)

	err = s.WithTx(ctx, func(tx *Tx) error { return tx.Retire(ctx, id) })
	assert.True(t, ir.IsIntegrity(err), "got %v", err)
}

func TestRetire_NoReplacement(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	id := appendOne(t, s, NewValue{Source: "s", IDInSource: "1", Field: ir.FieldTitle, Value: strPtr("A")})

	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error { return tx.Retire(ctx, id) }))

	row, found, err := s.ValueRow(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.NotNil(t, row.Deleted)
	assert.Nil(t, row.ReplacedByRowID)

	tree, err := s.ActiveTreeFor(ctx, "s", "1")
	require.NoError(t, err)
	assert.Empty(t, tree)

	// The slot is free again.
	appendOne(t, s, NewValue{Source: "s", IDInSource: "1", Field: ir.FieldTitle, Value: strPtr("A")})
}

func TestRelink_MovesChildToNewParent(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	var parentID, childID int64
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		var err error
		parentID, err = tx.AppendValue(ctx, NewValue{Source: "s", IDInSource: "1", Field: ir.FieldAuthor, Value: strPtr("Doe, J")})
		if err != nil {
			return err
		}
		childID, err = tx.AppendValue(ctx, NewValue{Source: "s", IDInSource: "1", ParentRowID: &parentID,
			Field: "dc.contributor.affiliation", Value: strPtr("KAUST")})
		return err
	}))

	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		newParent, err := tx.Supersede(ctx, parentID, NewValue{Source: "s", IDInSource: "1",
			Field: ir.FieldAuthor, Value: strPtr("Doe, Jane")})
		if err != nil {
			return err
		}
		return tx.Relink(ctx, childID, newParent)
	}))

	dangling, err := s.DanglingChildren(ctx)
	require.NoError(t, err)
	assert.Empty(t, dangling)

	tree, err := s.ActiveTreeFor(ctx, "s", "1")
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Equal(t, "Doe, Jane", tree[0].ValueString())
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, childID, tree[0].Children[0].RowID)
}

func TestDanglingChildren_DetectsClosedParent(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	parentID := appendOne(t, s, NewValue{Source: "s", IDInSource: "1", Field: ir.FieldAuthor, Value: strPtr("Doe")})
	childID := appendOne(t, s, NewValue{Source: "s", IDInSource: "1", ParentRowID: &parentID,
		Field: "dc.contributor.affiliation", Value: strPtr("KAUST")})

	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error { return tx.Retire(ctx, parentID) }))

	dangling, err := s.DanglingChildren(ctx)
	require.NoError(t, err)
	require.Len(t, dangling, 1)
	assert.Equal(t, childID, dangling[0].RowID)
}

func TestHistoryFor_UnknownRecordIsEmpty(t *testing.T) {
	s, _ := createTestStore(t)

	history, err := s.HistoryFor(context.Background(), "s", "nope", ir.FieldTitle)
	require.NoError(t, err)
	assert.Empty(t, history)
}
