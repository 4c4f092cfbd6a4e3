// Package crossref harvests works metadata from the Crossref REST API.
package crossref

import (
	"context"
	"encoding/json"
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

// Name is the source column value for Crossref records.
const Name = "crossref"

// Defaults used when Config leaves a field empty.
const (
	DefaultAPIURL = "https://api.crossref.org/"
	DefaultRows   = 50
	DefaultWindow = 7 * 24 * time.Hour
)

// Source and field read for ORCID discovery.
const (
	PeopleSource = "local"
	FieldORCID   = "dc.identifier.orcid"
)

// Harvest bases recorded on queued items.
const (
	BasisAnySource   = "New DOI from any source"
	BasisORCID       = "DOI from faculty ORCID"
	BasisAffiliation = "DOI from affiliation query"
	BasisReharvest   = "Reharvest"
)

// Config configures the Crossref source.
type Config struct {
	APIURL string

	// Email is sent as mailto on every request.
	Email string

	// Affiliations are sent as query.affiliation terms; no affiliation
	// query runs when empty.
	Affiliations []string

	Rows int

	// Window bounds discovery queries to works created since Now-Window.
	Window time.Duration

	Now func() time.Time
}

// Source implements harvest.Source for Crossref.
type Source struct {
	cfg     Config
	fetcher *source.Fetcher
	logger  *slog.Logger
}

// New creates the Crossref source.
func New(cfg Config, fetcher *source.Fetcher, logger *slog.Logger) *Source {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if !strings.HasSuffix(cfg.APIURL, "/") {
		cfg.APIURL += "/"
	}
	if cfg.Rows <= 0 {
		cfg.Rows = DefaultRows
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
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
func (s *Source) IDField() string { return ir.FieldDOI }

// Discover collects DOIs from the store and from Crossref searches. For
// TypeNew, DOIs that already have a Crossref document are left out.
func (s *Source) Discover(ctx context.Context, t harvest.Type, lookup harvest.Lookup) ([]harvest.Item, error) {
	harvested, err := lookup.ActiveDocumentIDs(ctx, Name)
	if err != nil {
		return nil, fmt.Errorf("crossref discover: %w", err)
	}
	if t == harvest.TypeReharvest {
		items := make([]harvest.Item, 0, len(harvested))
		for _, doi := range harvested {
			items = append(items, harvest.Item{ID: doi, Basis: BasisReharvest})
		}
		return items, nil
	}

	known := make(map[string]bool, len(harvested))
	if t == harvest.TypeNew {
		for _, doi := range harvested {
			known[doi] = true
		}
	}

	var items []harvest.Item
	collect := func(basis string, dois []string) {
		for _, doi := range dois {
			doi = strings.ToLower(strings.TrimSpace(doi))
			if doi == "" || known[doi] {
				continue
			}
			known[doi] = true
			items = append(items, harvest.Item{ID: doi, Basis: basis})
		}
	}

	stored, err := lookup.ActiveValues(ctx, "", "", ir.FieldDOI)
	if err != nil {
		return nil, fmt.Errorf("crossref discover: %w", err)
	}
	collect(BasisAnySource, stored)

	since := s.cfg.Now().Add(-s.cfg.Window).Format("2006-01-02")

	orcids, err := lookup.ActiveValues(ctx, PeopleSource, "", FieldORCID)
	if err != nil {
		return nil, fmt.Errorf("crossref discover: %w", err)
	}
	for _, orcid := range slices.Compact(slices.Sorted(slices.Values(orcids))) {
		dois, err := s.search(ctx, url.Values{"filter": {"orcid:" + orcid + ",from-created-date:" + since}})
		if err != nil {
			return nil, fmt.Errorf("crossref discover orcid %s: %w", orcid, err)
		}
		collect(BasisORCID, dois)
	}

	if len(s.cfg.Affiliations) > 0 {
		dois, err := s.search(ctx, url.Values{
			"query.affiliation": s.cfg.Affiliations,
			"filter":            {"from-created-date:" + since},
		})
		if err != nil {
			return nil, fmt.Errorf("crossref discover affiliation: %w", err)
		}
		collect(BasisAffiliation, dois)
	}
	return items, nil
}

// search runs a works query and returns the DOIs of the result page.
func (s *Source) search(ctx context.Context, q url.Values) ([]string, error) {
	q.Set("rows", strconv.Itoa(s.cfg.Rows))
	q.Set("select", "DOI")
	body, err := s.fetcher.Get(ctx, s.cfg.APIURL+"works", s.withMailto(q))
	if err != nil {
		return nil, err
	}

	var resp struct {
		Message struct {
			TotalResults int `json:"total-results"`
			Items        []struct {
				DOI string `json:"DOI"`
			} `json:"items"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode works query: %w", err)
	}
	s.logger.Debug("crossref query", "query", q.Encode(), "total", resp.Message.TotalResults)

	dois := make([]string, 0, len(resp.Message.Items))
	for _, it := range resp.Message.Items {
		dois = append(dois, it.DOI)
	}
	return dois, nil
}

func (s *Source) withMailto(q url.Values) url.Values {
	if s.cfg.Email != "" {
		q.Set("mailto", s.cfg.Email)
	}
	return q
}

// Fetch retrieves one work by DOI.
func (s *Source) Fetch(ctx context.Context, doi string) (string, error) {
	body, err := s.fetcher.Get(ctx, s.cfg.APIURL+"works/"+doi, s.withMailto(url.Values{}))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Parse accepts an API envelope or a bare work. The stored payload is the
// bare work; the record id is the lowercased DOI.
func (s *Source) Parse(payload string) (harvest.Parsed, error) {
	work, err := unwrap([]byte(payload))
	if err != nil {
		return harvest.Parsed{}, err
	}
	doi := strings.ToLower(str(work["DOI"]))
	if doi == "" {
		return harvest.Parsed{}, fmt.Errorf("crossref work has no DOI")
	}
	stored, err := encode(work)
	if err != nil {
		return harvest.Parsed{}, err
	}
	return harvest.Parsed{
		ID:      doi,
		Payload: stored,
		Format:  ir.FormatJSON,
		Fields:  workFields(work),
	}, nil
}
