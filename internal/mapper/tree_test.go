package mapper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/irts/internal/ir"
)

func TestBuildTree(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	for _, m := range []ir.MappingRule{
		{Source: "crossref", SourceField: "title", StandardField: ir.FieldTitle},
		{Source: "crossref", SourceField: "author", StandardField: ir.FieldAuthor},
		{Source: "crossref", SourceField: "affiliation", ParentFieldInSource: "author", StandardField: "dc.contributor.affiliation"},
		{Source: "crossref", SourceField: "funder", StandardField: "crossref.funder"},
		{Source: "crossref", SourceField: "name", ParentFieldInSource: "funder", StandardField: "crossref.funder.name"},
	} {
		require.NoError(t, s.UpsertMapping(ctx, m))
	}
	_, err := s.AddTransformation(ctx, ir.TransformationRule{Source: "crossref", Field: ir.FieldTitle, Type: ir.TransformStrip})
	require.NoError(t, err)

	raw := []ir.RawField{
		{Name: "title", Value: "  Deep Nets "},
		{Name: "author", Value: "Doe, Jane", Children: []ir.RawField{{Name: "affiliation", Value: "KAUST"}}},
		{Name: "author", Value: "Roe, Rick"},
		{Name: "funder", Children: []ir.RawField{{Name: "name", Value: "NSF"}}},
		{Name: "reference-count", Value: "12"},
		{Name: "title", Value: "   "},
	}

	m := New(s, WithUnmappedPolicy(UnmappedDrop))
	tree, stats, err := m.BuildTree(ctx, "crossref", raw)
	require.NoError(t, err)

	assert.Equal(t, MapStats{Mapped: 6, Skipped: 1, Empty: 1}, stats)
	assert.Equal(t, "Deep Nets", tree.First(ir.FieldTitle))

	second := tree.Find(ir.FieldAuthor, 1)
	require.NotNil(t, second)
	assert.Equal(t, "Roe, Rick", second.ValueString())

	first := tree.Find(ir.FieldAuthor, 0)
	require.NotNil(t, first)
	require.Len(t, first.Children, 1)
	assert.Equal(t, "dc.contributor.affiliation", first.Children[0].Field)

	funder := tree.Find("crossref.funder", 0)
	require.NotNil(t, funder)
	assert.Nil(t, funder.Value)
	assert.Equal(t, "NSF", funder.Children[0].ValueString())
}

func TestBuildTree_BlankValuesAreEmpty(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertMapping(ctx, ir.MappingRule{Source: "arxiv", SourceField: "title", StandardField: ir.FieldTitle}))
	require.NoError(t, s.UpsertMapping(ctx, ir.MappingRule{Source: "arxiv", SourceField: "author", StandardField: ir.FieldAuthor}))
	require.NoError(t, s.UpsertMapping(ctx, ir.MappingRule{Source: "arxiv", SourceField: "affiliation", ParentFieldInSource: "author", StandardField: "dc.contributor.affiliation"}))

	raw := []ir.RawField{
		{Name: "title", Value: "   "},
		{Name: "author", Value: " \t", Children: []ir.RawField{{Name: "affiliation", Value: "KAUST"}}},
	}

	tree, stats, err := New(s).BuildTree(ctx, "arxiv", raw)
	require.NoError(t, err)
	assert.Equal(t, MapStats{Mapped: 2, Empty: 1}, stats)
	assert.Nil(t, tree.Find(ir.FieldTitle, 0))

	author := tree.Find(ir.FieldAuthor, 0)
	require.NotNil(t, author)
	assert.Nil(t, author.Value)
	require.Len(t, author.Children, 1)
}

func TestBuildTree_PassthroughNamespacesUnmapped(t *testing.T) {
	s := setupStore(t)

	tree, stats, err := New(s).BuildTree(context.Background(), "arxiv", []ir.RawField{
		{Name: "comment", Value: "12 pages"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Mapped)
	assert.Equal(t, "12 pages", tree.First("arxiv.comment"))
}
