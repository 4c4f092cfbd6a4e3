// Package arxiv harvests preprints from the arXiv Atom API.
package arxiv

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/irts/internal/harvest"
	"github.com/roach88/irts/internal/ir"
	"github.com/roach88/irts/internal/source"
)

// Name is the source column value for arXiv records.
const Name = "arxiv"

// Defaults used when Config leaves a field empty.
const (
	DefaultAPIURL     = "http://export.arxiv.org/api/query"
	DefaultMaxResults = 100
)

// Fields read from other sources during discovery.
const (
	RepositorySource = "repository"
	PeopleSource     = "local"
	FieldPersonName  = "local.person.name"
)

// Harvest bases recorded on queued items.
const (
	BasisAuthor    = "Harvested based on author name"
	BasisReharvest = "Reharvest"
)

// Config configures the arXiv source.
type Config struct {
	APIURL     string
	MaxResults int

	// Authors are searched with au:"name" in addition to the names held by
	// local person records.
	Authors []string

	// SkipNames are too common to search.
	SkipNames []string

	// Now reports the current time for the current-year filter.
	Now func() time.Time
}

// Source implements harvest.Source for arXiv.
type Source struct {
	cfg     Config
	fetcher *source.Fetcher
	logger  *slog.Logger
}

// New creates the arXiv source.
func New(cfg Config, fetcher *source.Fetcher, logger *slog.Logger) *Source {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Source{cfg: cfg, fetcher: fetcher, logger: logger}
}

func (s *Source) Name() string    { return Name }
func (s *Source) IDField() string { return ir.FieldArxivID }

// Discover searches by author name, or lists known arXiv ids for a
// reharvest. Entries not published in the current year are skipped unless
// the run is a requery.
func (s *Source) Discover(ctx context.Context, t harvest.Type, lookup harvest.Lookup) ([]harvest.Item, error) {
	if t == harvest.TypeReharvest {
		return s.known(ctx, lookup)
	}

	names, err := s.authorNames(ctx, lookup)
	if err != nil {
		return nil, err
	}

	year := strconv.Itoa(s.cfg.Now().Year())
	var items []harvest.Item
	for _, name := range names {
		s.logger.Debug("querying arxiv", "author", name)
		body, err := s.fetcher.Get(ctx, s.cfg.APIURL, url.Values{
			"search_query": {fmt.Sprintf("au:%q", name)},
			"start":        {"0"},
			"max_results":  {strconv.Itoa(s.cfg.MaxResults)},
			"sortBy":       {"lastUpdatedDate"},
			"sortOrder":    {"descending"},
		})
		if err != nil {
			return nil, fmt.Errorf("arxiv discover %q: %w", name, err)
		}

		docs, err := splitEntries(body)
		if err != nil {
			return nil, fmt.Errorf("arxiv discover %q: %w", name, err)
		}
		for _, doc := range docs {
			e, err := decodeEntry(doc)
			if err != nil {
				return nil, fmt.Errorf("arxiv discover %q: %w", name, err)
			}
			item := harvest.Item{ID: e.id, Basis: BasisAuthor, Payload: e.xml}
			if t != harvest.TypeRequery && !strings.HasPrefix(e.published, year) {
				item.Skip = "not from current year"
			}
			items = append(items, item)
		}
	}
	return items, nil
}

func (s *Source) authorNames(ctx context.Context, lookup harvest.Lookup) ([]string, error) {
	local, err := lookup.ActiveValues(ctx, PeopleSource, "", FieldPersonName)
	if err != nil {
		return nil, fmt.Errorf("arxiv discover: %w", err)
	}
	var names []string
	for _, n := range append(slices.Clone(s.cfg.Authors), local...) {
		n = strings.TrimSpace(n)
		if n == "" || slices.Contains(names, n) {
			continue
		}
		if slices.Contains(s.cfg.SkipNames, n) {
			s.logger.Debug("skipping common author name", "author", n)
			continue
		}
		names = append(names, n)
	}
	return names, nil
}

func (s *Source) known(ctx context.Context, lookup harvest.Lookup) ([]harvest.Item, error) {
	fromRepo, err := lookup.ActiveValues(ctx, RepositorySource, "", ir.FieldArxivID)
	if err != nil {
		return nil, fmt.Errorf("arxiv reharvest: %w", err)
	}
	harvested, err := lookup.ActiveDocumentIDs(ctx, Name)
	if err != nil {
		return nil, fmt.Errorf("arxiv reharvest: %w", err)
	}

	ids := append(fromRepo, harvested...)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	items := make([]harvest.Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, harvest.Item{ID: id, Basis: BasisReharvest})
	}
	return items, nil
}

// Fetch retrieves the feed for a single id.
func (s *Source) Fetch(ctx context.Context, id string) (string, error) {
	body, err := s.fetcher.Get(ctx, s.cfg.APIURL, url.Values{"id_list": {id}})
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Parse accepts a feed or a single entry. The stored payload is the first
// entry as a standalone document.
func (s *Source) Parse(payload string) (harvest.Parsed, error) {
	docs, err := splitEntries([]byte(payload))
	if err != nil {
		return harvest.Parsed{}, err
	}
	if len(docs) == 0 {
		return harvest.Parsed{}, fmt.Errorf("arxiv: feed has no entries")
	}
	e, err := decodeEntry(docs[0])
	if err != nil {
		return harvest.Parsed{}, err
	}
	return harvest.Parsed{
		ID:      e.id,
		Payload: e.xml,
		Format:  ir.FormatXML,
		Fields:  e.fields(),
	}, nil
}
