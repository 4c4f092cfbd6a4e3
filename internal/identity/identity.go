// Package identity decides whether a harvested item is already known.
//
// Checks run in a fixed order and the first hit wins:
//  1. the logical record (source, idInSource) exists, or some record holds
//     the id in the source's primary identifier field
//  2. a record carries the same DOI (case-insensitive), in any source
//  3. for items without a DOI, a record of the same type carries the same
//     normalized title
//
// Anything else is new.
package identity

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/irts/internal/ir"
	"github.com/roach88/irts/internal/store"
)

// Lookup is the read side the resolver needs. *store.Store satisfies it.
type Lookup interface {
	RecordExists(ctx context.Context, source, idInSource string) (bool, error)
	FindActive(ctx context.Context, field, value string, caseInsensitive bool) ([]ir.RecordRef, error)
	TitlesWithType(ctx context.Context, recordType string) ([]store.TitledRecord, error)
}

// Candidate describes a harvested item before it is written.
type Candidate struct {
	Source     string
	IDInSource string
	IDField    string // primary identifier field of the source, e.g. dc.identifier.arxivid
	DOI        string
	Title      string
	Type       string
}

// Ref returns the candidate's own logical record reference.
func (c Candidate) Ref() ir.RecordRef {
	return ir.RecordRef{Source: c.Source, IDInSource: c.IDInSource}
}

// Kind is the verdict of a resolution.
type Kind string

const (
	KindExisting Kind = "existing"
	KindNew      Kind = "new"
)

// Reason names the check that matched.
type Reason string

const (
	ReasonRecord  Reason = "record"
	ReasonIDField Reason = "id-field"
	ReasonDOI     Reason = "doi"
	ReasonTitle   Reason = "title"
)

// Match is the outcome of Resolve. Ref is set when Kind is KindExisting.
type Match struct {
	Kind   Kind         `json:"kind"`
	Ref    ir.RecordRef `json:"ref,omitempty"`
	Reason Reason       `json:"reason,omitempty"`
}

// Existing reports whether the candidate matched a known record.
func (m Match) Existing() bool {
	return m.Kind == KindExisting
}

// Resolver runs identity checks against the store.
type Resolver struct {
	lookup Lookup
}

// NewResolver creates a Resolver.
func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Resolve classifies a candidate.
func (r *Resolver) Resolve(ctx context.Context, c Candidate) (Match, error) {
	if c.Source == "" || c.IDInSource == "" {
		return Match{}, fmt.Errorf("resolve identity: candidate needs a source and an id")
	}

	exists, err := r.lookup.RecordExists(ctx, c.Source, c.IDInSource)
	if err != nil {
		return Match{}, fmt.Errorf("resolve identity: %w", err)
	}
	if exists {
		return Match{Kind: KindExisting, Ref: c.Ref(), Reason: ReasonRecord}, nil
	}

	if c.IDField != "" {
		refs, err := r.lookup.FindActive(ctx, c.IDField, c.IDInSource, c.IDField == ir.FieldDOI)
		if err != nil {
			return Match{}, fmt.Errorf("resolve identity: %w", err)
		}
		if ref, ok := firstOther(refs, c.Ref()); ok {
			return Match{Kind: KindExisting, Ref: ref, Reason: ReasonIDField}, nil
		}
	}

	if doi := strings.TrimSpace(c.DOI); doi != "" {
		refs, err := r.lookup.FindActive(ctx, ir.FieldDOI, doi, true)
		if err != nil {
			return Match{}, fmt.Errorf("resolve identity: %w", err)
		}
		if ref, ok := firstOther(refs, c.Ref()); ok {
			return Match{Kind: KindExisting, Ref: ref, Reason: ReasonDOI}, nil
		}
		return Match{Kind: KindNew}, nil
	}

	if c.Title != "" && c.Type != "" {
		want := NormalizeTitle(c.Title)
		titled, err := r.lookup.TitlesWithType(ctx, c.Type)
		if err != nil {
			return Match{}, fmt.Errorf("resolve identity: %w", err)
		}
		for _, tr := range titled {
			if tr.Ref != c.Ref() && NormalizeTitle(tr.Title) == want {
				return Match{Kind: KindExisting, Ref: tr.Ref, Reason: ReasonTitle}, nil
			}
		}
	}

	return Match{Kind: KindNew}, nil
}

func firstOther(refs []ir.RecordRef, self ir.RecordRef) (ir.RecordRef, bool) {
	for _, ref := range refs {
		if ref != self {
			return ref, true
		}
	}
	return ir.RecordRef{}, false
}

// NormalizeTitle folds a title for comparison: NFC, Unicode case folding,
// punctuation and symbols treated as spaces, whitespace collapsed.
func NormalizeTitle(title string) string {
	folded := cases.Fold().String(norm.NFC.String(title))
	spaced := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, folded)
	return strings.Join(strings.Fields(spaced), " ")
}
