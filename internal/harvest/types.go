package harvest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/irts/internal/ir"
)

// Type selects how items are discovered and whether payloads are fetched.
type Type string

const (
	// TypeNew runs discovery with the "already harvested" filter and skips
	// mapping work for records whose payload did not change.
	TypeNew Type = "new"

	// TypeReprocess re-maps the stored payloads of a source. No network.
	TypeReprocess Type = "reprocess"

	// TypeReharvest re-fetches every identifier already known for a source.
	TypeReharvest Type = "reharvest"

	// TypeRequery re-runs discovery without the "already harvested" filter.
	TypeRequery Type = "requery"
)

// ParseType validates a harvest type name.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeNew, TypeReprocess, TypeReharvest, TypeRequery:
		return t, nil
	default:
		return "", ir.NewConfigurationError("parse harvest type",
			fmt.Sprintf("unknown harvest type %q (want new, reprocess, reharvest or requery)", s), nil)
	}
}

// Item is one record found by discovery.
type Item struct {
	// ID is the record's idInSource.
	ID string

	// Basis explains why the item was harvested. It is stored on queued
	// records as irts.harvest.basis.
	Basis string

	// Payload is set when discovery already returned the full record;
	// otherwise the runner calls Source.Fetch.
	Payload string

	// Skip, when non-empty, is the reason the item is counted as skipped.
	Skip string
}

// Parsed is a payload split into source-vocabulary fields.
type Parsed struct {
	ID      string
	Payload string
	Format  ir.Format
	Fields  []ir.RawField
}

// Lookup is the store read side available to discovery. *store.Store
// satisfies it.
type Lookup interface {
	ActiveValues(ctx context.Context, source, idInSource, field string) ([]string, error)
	ActiveDocumentIDs(ctx context.Context, source string) ([]string, error)
}

// Source is a harvestable external system.
type Source interface {
	// Name is the source column value, e.g. "arxiv".
	Name() string

	// IDField is the standard field holding the source identifier.
	IDField() string

	// Discover lists the items to process for a harvest type other than
	// TypeReprocess.
	Discover(ctx context.Context, t Type, lookup Lookup) ([]Item, error)

	// Fetch retrieves the payload of one record.
	Fetch(ctx context.Context, id string) (string, error)

	// Parse splits a payload into raw fields. The returned Payload is what
	// gets stored as the record's source document.
	Parse(payload string) (Parsed, error)
}

// RunIDGenerator creates harvest run identifiers. Implemented by
// UUIDv7Generator and, in tests, testutil.SequentialRunIDs.
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable run identifiers.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
