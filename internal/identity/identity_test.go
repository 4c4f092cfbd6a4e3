package identity

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/irts/internal/ir"
	"github.com/roach88/irts/internal/store"
)

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *store.Store, source, id string, fields map[string]string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(tx *store.Tx) error {
		for field, value := range fields {
			v := value
			if _, err := tx.AppendValue(ctx, store.NewValue{Source: source, IDInSource: id, Field: field, Value: &v}); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestResolve_OwnRecordExists(t *testing.T) {
	s := setupStore(t)
	seed(t, s, "arxiv", "2401.00001", map[string]string{ir.FieldTitle: "A"})

	m, err := NewResolver(s).Resolve(context.Background(), Candidate{Source: "arxiv", IDInSource: "2401.00001"})
	require.NoError(t, err)
	assert.Equal(t, Match{Kind: KindExisting, Ref: ir.RecordRef{Source: "arxiv", IDInSource: "2401.00001"}, Reason: ReasonRecord}, m)
}

func TestResolve_IDFieldInOtherSource(t *testing.T) {
	s := setupStore(t)
	seed(t, s, "repository", "10754/42", map[string]string{ir.FieldArxivID: "2401.00001"})

	m, err := NewResolver(s).Resolve(context.Background(), Candidate{
		Source: "arxiv", IDInSource: "2401.00001", IDField: ir.FieldArxivID,
	})
	require.NoError(t, err)
	assert.True(t, m.Existing())
	assert.Equal(t, ReasonIDField, m.Reason)
	assert.Equal(t, "repository", m.Ref.Source)
}

// A DOI already held by another source resolves to that record.
func TestResolve_DOIAcrossSources(t *testing.T) {
	s := setupStore(t)
	seed(t, s, "repository", "10754/7", map[string]string{ir.FieldDOI: "10.1/x"})

	m, err := NewResolver(s).Resolve(context.Background(), Candidate{
		Source: "crossref", IDInSource: "10.1/X", IDField: ir.FieldDOI, DOI: "10.1/X",
	})
	require.NoError(t, err)
	assert.Equal(t, KindExisting, m.Kind)
	assert.Equal(t, ir.RecordRef{Source: "repository", IDInSource: "10754/7"}, m.Ref)
}

func TestResolve_DOIMissIsNewEvenWithMatchingTitle(t *testing.T) {
	s := setupStore(t)
	seed(t, s, "repository", "1", map[string]string{ir.FieldTitle: "Deep Nets", ir.FieldType: "Article"})

	m, err := NewResolver(s).Resolve(context.Background(), Candidate{
		Source: "crossref", IDInSource: "10.1/y", DOI: "10.1/y", Title: "Deep Nets", Type: "Article",
	})
	require.NoError(t, err)
	assert.Equal(t, KindNew, m.Kind)
}

func TestResolve_NormalizedTitleAndType(t *testing.T) {
	s := setupStore(t)
	seed(t, s, "repository", "1", map[string]string{ir.FieldTitle: "Deep-Learning for  Cats!", ir.FieldType: "Preprint"})
	seed(t, s, "repository", "2", map[string]string{ir.FieldTitle: "Deep Learning for Dogs", ir.FieldType: "Preprint"})
	r := NewResolver(s)
	ctx := context.Background()

	m, err := r.Resolve(ctx, Candidate{Source: "arxiv", IDInSource: "x", Title: "deep learning FOR cats", Type: "Preprint"})
	require.NoError(t, err)
	assert.Equal(t, ReasonTitle, m.Reason)
	assert.Equal(t, "1", m.Ref.IDInSource)

	m, err = r.Resolve(ctx, Candidate{Source: "arxiv", IDInSource: "x", Title: "deep learning for cats", Type: "Article"})
	require.NoError(t, err)
	assert.Equal(t, KindNew, m.Kind, "type must match too")
}

func TestResolve_New(t *testing.T) {
	s := setupStore(t)

	m, err := NewResolver(s).Resolve(context.Background(), Candidate{Source: "arxiv", IDInSource: "x", IDField: ir.FieldArxivID})
	require.NoError(t, err)
	assert.Equal(t, Match{Kind: KindNew}, m)
}

func TestResolve_RequiresSourceAndID(t *testing.T) {
	_, err := NewResolver(setupStore(t)).Resolve(context.Background(), Candidate{Source: "arxiv"})
	assert.Error(t, err)
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Deep   Nets ", "deep nets"},
		{"Deep-Nets: A Survey", "deep nets a survey"},
		{"Straße", "strasse"},
		{"Café Society", "café society"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTitle(tt.in), "input %q", tt.in)
	}
}
