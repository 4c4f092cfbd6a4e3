package crossref

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/irts/internal/harvest"
	"github.com/roach88/irts/internal/ir"
	"github.com/roach88/irts/internal/source"
)

const work = `{
  "status": "ok",
  "message-type": "work",
  "message": {
    "DOI": "10.1000/ABC",
    "type": "journal-article",
    "title": ["Deep Nets for Cats"],
    "container-title": ["Journal of Cats"],
    "publisher": "Cat Press",
    "URL": "https://doi.org/10.1000/abc",
    "volume": "12",
    "issue": "3",
    "page": "1-10",
    "ISSN": ["1234-5678", "8765-4321"],
    "published": {"date-parts": [[2024, 3, 5]]},
    "author": [
      {"given": "Jane", "family": "Doe", "ORCID": "https://orcid.org/0000-0001-2345-6789",
       "affiliation": [{"name": "KAUST"}, {"name": "Thuwal"}]},
      {"given": "Rick", "family": "Roe", "affiliation": []},
      {"name": "Cat Consortium"}
    ],
    "funder": [
      {"DOI": "10.13039/501100004052", "name": "KAUST", "award": ["OSR-1", "OSR-2"]}
    ]
  }
}`

type lookup struct {
	values map[string][]string
	docs   []string
}

func (l lookup) ActiveValues(_ context.Context, src, _, field string) ([]string, error) {
	return l.values[src+"/"+field], nil
}

func (l lookup) ActiveDocumentIDs(context.Context, string) ([]string, error) {
	return l.docs, nil
}

func newSource(t *testing.T, handler http.HandlerFunc, cfg Config) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.APIURL = srv.URL
	cfg.Now = func() time.Time { return time.Date(2024, 6, 8, 12, 0, 0, 0, time.UTC) }
	return New(cfg, source.NewFetcher(Name), nil)
}

func TestParse_Work(t *testing.T) {
	s := New(Config{}, source.NewFetcher(Name), nil)

	p, err := s.Parse(work)
	require.NoError(t, err)
	assert.Equal(t, "10.1000/abc", p.ID)
	assert.Equal(t, ir.FormatJSON, p.Format)
	assert.True(t, strings.HasPrefix(p.Payload, `{"DOI":"10.1000/ABC"`), p.Payload)

	byName := map[string][]ir.RawField{}
	for _, f := range p.Fields {
		byName[f.Name] = append(byName[f.Name], f)
	}
	assert.Equal(t, "10.1000/ABC", byName["DOI"][0].Value)
	assert.Equal(t, "journal-article", byName["type"][0].Value)
	assert.Equal(t, "Deep Nets for Cats", byName["title"][0].Value)
	assert.Equal(t, "Journal of Cats", byName["container-title"][0].Value)
	assert.Equal(t, "2024-03-05", byName["issued"][0].Value)
	assert.Len(t, byName["ISSN"], 2)

	authors := byName["author"]
	require.Len(t, authors, 3)
	assert.Equal(t, "Doe, Jane", authors[0].Value)
	assert.Equal(t, []ir.RawField{
		{Name: "ORCID", Parent: "author", Value: "https://orcid.org/0000-0001-2345-6789"},
		{Name: "affiliation", Parent: "author", Value: "KAUST"},
		{Name: "affiliation", Parent: "author", Value: "Thuwal"},
	}, authors[0].Children)
	assert.Equal(t, "Roe, Rick", authors[1].Value)
	assert.Equal(t, "Cat Consortium", authors[2].Value)

	require.Len(t, byName["funder"], 1)
	funder := byName["funder"][0]
	assert.Equal(t, "10.13039/501100004052", funder.Value)
	assert.Len(t, funder.Children, 3)
}

func TestParse_BareWorkRoundTrips(t *testing.T) {
	s := New(Config{}, source.NewFetcher(Name), nil)
	first, err := s.Parse(work)
	require.NoError(t, err)

	again, err := s.Parse(first.Payload)
	require.NoError(t, err)
	assert.Equal(t, first.Payload, again.Payload)
	assert.Equal(t, first.Fields, again.Fields)
}

func TestParse_Errors(t *testing.T) {
	s := New(Config{}, source.NewFetcher(Name), nil)

	_, err := s.Parse(`{"status":"ok","message":{"title":["no doi"]}}`)
	assert.Error(t, err)

	_, err = s.Parse(`[1,2]`)
	assert.Error(t, err)
}

func TestIssued(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"full", `{"published":{"date-parts":[[2024,1,9]]}}`, "2024-01-09"},
		{"year month", `{"published-print":{"date-parts":[[2023,11]]}}`, "2023-11"},
		{"fallback issued", `{"issued":{"date-parts":[[2022]]}}`, "2022"},
		{"null parts", `{"published":{"date-parts":[[null]]}}`, ""},
		{"missing", `{}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := unwrap([]byte(tt.json))
			require.NoError(t, err)
			assert.Equal(t, tt.want, issued(w))
		})
	}
}

func TestDiscover_New(t *testing.T) {
	var filters []string
	s := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/works", r.URL.Path)
		assert.Equal(t, "ir@example.org", q.Get("mailto"))
		filters = append(filters, q.Get("filter"))
		if len(q["query.affiliation"]) > 0 {
			assert.Equal(t, []string{"KAUST", "Thuwal"}, q["query.affiliation"])
			w.Write([]byte(`{"status":"ok","message":{"total-results":2,"items":[{"DOI":"10.1/AFF"},{"DOI":"10.1/done"}]}}`))
			return
		}
		w.Write([]byte(`{"status":"ok","message":{"total-results":1,"items":[{"DOI":"10.1/orcid"}]}}`))
	}, Config{Email: "ir@example.org", Affiliations: []string{"KAUST", "Thuwal"}})

	items, err := s.Discover(context.Background(), harvest.TypeNew, lookup{
		values: map[string][]string{
			"/" + ir.FieldDOI:                {"10.1/Repo", "10.1/done", "10.1/repo"},
			PeopleSource + "/" + FieldORCID: {"0000-0001"},
		},
		docs: []string{"10.1/done"},
	})
	require.NoError(t, err)

	assert.Equal(t, []harvest.Item{
		{ID: "10.1/repo", Basis: BasisAnySource},
		{ID: "10.1/orcid", Basis: BasisORCID},
		{ID: "10.1/aff", Basis: BasisAffiliation},
	}, items)
	assert.Equal(t, []string{"orcid:0000-0001,from-created-date:2024-06-01", "from-created-date:2024-06-01"}, filters)
}

func TestDiscover_RequeryIncludesHarvested(t *testing.T) {
	s := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no search expected")
	}, Config{})

	items, err := s.Discover(context.Background(), harvest.TypeRequery, lookup{
		values: map[string][]string{"/" + ir.FieldDOI: {"10.1/done"}},
		docs:   []string{"10.1/done"},
	})
	require.NoError(t, err)
	assert.Equal(t, []harvest.Item{{ID: "10.1/done", Basis: BasisAnySource}}, items)
}

func TestDiscover_Reharvest(t *testing.T) {
	s := New(Config{}, source.NewFetcher(Name), nil)

	items, err := s.Discover(context.Background(), harvest.TypeReharvest, lookup{docs: []string{"10.1/a", "10.1/b"}})
	require.NoError(t, err)
	assert.Equal(t, []harvest.Item{{ID: "10.1/a", Basis: BasisReharvest}, {ID: "10.1/b", Basis: BasisReharvest}}, items)
}

func TestDiscover_SearchFailure(t *testing.T) {
	s := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, Config{Affiliations: []string{"KAUST"}})

	_, err := s.Discover(context.Background(), harvest.TypeNew, lookup{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "affiliation")
}

func TestFetch(t *testing.T) {
	s := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works/10.1000/abc", r.URL.Path)
		w.Write([]byte(work))
	}, Config{Email: "ir@example.org"})

	payload, err := s.Fetch(context.Background(), "10.1000/abc")
	require.NoError(t, err)
	p, err := s.Parse(payload)
	require.NoError(t, err)
	assert.Equal(t, "10.1000/abc", p.ID)
}
