package ir

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Format identifies the encoding of a raw source payload.
type Format string

const (
	FormatXML  Format = "XML"
	FormatJSON Format = "JSON"
)

// ParseFormat validates a payload format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatXML, FormatJSON:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown payload format %q: must be XML or JSON", s)
	}
}

// ValueRecord is a single stored fact (one row of the metadata table).
//
// A record is active while Deleted is nil. When a later harvest observes a
// different value for the same slot the row is superseded: Deleted is set and
// ReplacedByRowID points at the new row. When the slot disappears the row is
// retired: Deleted is set and ReplacedByRowID stays nil.
type ValueRecord struct {
	RowID           int64      `json:"row_id"`
	Source          string     `json:"source"`
	IDInSource      string     `json:"id_in_source"`
	ParentRowID     *int64     `json:"parent_row_id,omitempty"`
	Field           string     `json:"field"`
	Place           int        `json:"place"`
	Value           *string    `json:"value,omitempty"`
	Added           time.Time  `json:"added"`
	Deleted         *time.Time `json:"deleted,omitempty"`
	ReplacedByRowID *int64     `json:"replaced_by_row_id,omitempty"`
}

// Active reports whether the record is part of the current truth.
func (r ValueRecord) Active() bool {
	return r.Deleted == nil
}

// ValueString returns the value or "" for container-only rows.
func (r ValueRecord) ValueString() string {
	if r.Value == nil {
		return ""
	}
	return *r.Value
}

// SlotKey addresses one position in the value tree of a logical record.
type SlotKey struct {
	ParentRowID int64 // 0 for top-level rows
	Field       string
	Place       int
}

// Slot returns the slot the record occupies.
func (r ValueRecord) Slot() SlotKey {
	var parent int64
	if r.ParentRowID != nil {
		parent = *r.ParentRowID
	}
	return SlotKey{ParentRowID: parent, Field: r.Field, Place: r.Place}
}

// SourceDocument is a raw payload as received from a source (sourceData table).
type SourceDocument struct {
	RowID           int64      `json:"row_id"`
	Source          string     `json:"source"`
	IDInSource      string     `json:"id_in_source"`
	Payload         string     `json:"payload"`
	Format          Format     `json:"format"`
	Added           time.Time  `json:"added"`
	Deleted         *time.Time `json:"deleted,omitempty"`
	ReplacedByRowID *int64     `json:"replaced_by_row_id,omitempty"`
}

// DocumentStatus is the outcome of saving a source document.
type DocumentStatus string

const (
	DocumentNew       DocumentStatus = "new"
	DocumentModified  DocumentStatus = "modified"
	DocumentUnchanged DocumentStatus = "unchanged"
)

// MappingRule maps a source field name to a standardized field name.
// Unique on (Source, SourceField, ParentFieldInSource).
type MappingRule struct {
	RowID               int64  `json:"row_id,omitempty" yaml:"-"`
	Source              string `json:"source" yaml:"source"`
	SourceField         string `json:"source_field" yaml:"source_field"`
	ParentFieldInSource string `json:"parent_field_in_source" yaml:"parent_field_in_source"`
	StandardField       string `json:"standard_field" yaml:"standard_field"`
}

// TransformType names a value transformation step.
type TransformType string

const (
	TransformReplace   TransformType = "replace"
	TransformRegex     TransformType = "regex"
	TransformUppercase TransformType = "uppercase"
	TransformLowercase TransformType = "lowercase"
	TransformStrip     TransformType = "strip"
	TransformPrefix    TransformType = "prefix"
	TransformSuffix    TransformType = "suffix"
)

// ValidTransformTypes defines the allowed transformation types.
var ValidTransformTypes = map[TransformType]bool{
	TransformReplace:   true,
	TransformRegex:     true,
	TransformUppercase: true,
	TransformLowercase: true,
	TransformStrip:     true,
	TransformPrefix:    true,
	TransformSuffix:    true,
}

// TransformationRule is one step of the value pipeline for (Source, Field).
// Rules apply in ascending Priority order.
type TransformationRule struct {
	RowID     int64         `json:"row_id,omitempty" yaml:"-"`
	Source    string        `json:"source" yaml:"source"`
	Field     string        `json:"field" yaml:"field"`
	Type      TransformType `json:"type" yaml:"type"`
	Parameter string        `json:"parameter,omitempty" yaml:"parameter,omitempty"`
	Value     string        `json:"value,omitempty" yaml:"value,omitempty"`
	Priority  int           `json:"priority" yaml:"priority"`
}

var backslashGroupRef = regexp.MustCompile(`\\[0-9]`)

// CompileRegex compiles the pattern of a regex rule. An empty pattern is
// rejected, as is a replacement that refers to groups as \N; groups are
// written $N.
func (r TransformationRule) CompileRegex() (*regexp.Regexp, error) {
	if r.Parameter == "" {
		return nil, errors.New("regex rule has an empty pattern")
	}
	if ref := backslashGroupRef.FindString(r.Value); ref != "" {
		return nil, fmt.Errorf("regex replacement %q uses %s; write $%s", r.Value, ref, ref[1:])
	}
	re, err := regexp.Compile(r.Parameter)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern %q: %w", r.Parameter, err)
	}
	return re, nil
}

// HarvestMessage is one append-only line of the messages table.
type HarvestMessage struct {
	RowID   int64     `json:"row_id"`
	Process string    `json:"process"`
	Type    string    `json:"type"`
	Message string    `json:"message"`
	Added   time.Time `json:"added"`
}

// Standard field names the harvest system relies on.
const (
	FieldTitle      = "dc.title"
	FieldType       = "dc.type"
	FieldDOI        = "dc.identifier.doi"
	FieldArxivID    = "dc.identifier.arxivid"
	FieldDateIssued = "dc.date.issued"
	FieldAuthor     = "dc.contributor.author"
)

// RecordRef identifies a logical record.
type RecordRef struct {
	Source     string `json:"source"`
	IDInSource string `json:"id_in_source"`
}

// String renders the reference as "source:id".
func (r RecordRef) String() string {
	return r.Source + ":" + r.IDInSource
}
