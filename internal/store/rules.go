package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/roach88/irts/internal/ir"
)

// UpsertMapping creates or replaces the mapping for
// (source, sourceField, parentFieldInSource).
func (s *Store) UpsertMapping(ctx context.Context, m ir.MappingRule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mappings (source, sourceField, parentFieldInSource, standardField)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (source, sourceField, parentFieldInSource)
		DO UPDATE SET standardField = excluded.standardField
	`, m.Source, m.SourceField, m.ParentFieldInSource, m.StandardField)
	if err != nil {
		return ir.NewStorageError("upsert mapping", err)
	}
	return nil
}

// LookupMapping returns the standard field configured for a source field
// under the given parent (use "" for top level).
func (s *Store) LookupMapping(ctx context.Context, source, sourceField, parentFieldInSource string) (string, bool, error) {
	var standard string
	err := s.db.QueryRowContext(ctx, `
		SELECT standardField FROM mappings
		WHERE source = ? AND sourceField = ? AND parentFieldInSource = ?
	`, source, sourceField, parentFieldInSource).Scan(&standard)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, ir.NewStorageError("lookup mapping", err)
	}
	return standard, true, nil
}

// ListMappings returns the mappings of a source, or of every source when
// source is empty.
func (s *Store) ListMappings(ctx context.Context, source string) ([]ir.MappingRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rowID, source, sourceField, parentFieldInSource, standardField
		FROM mappings
		WHERE ? = '' OR source = ?
		ORDER BY source ASC, parentFieldInSource ASC, sourceField ASC
	`, source, source)
	if err != nil {
		return nil, ir.NewStorageError("list mappings", err)
	}
	defer rows.Close()

	var out []ir.MappingRule
	for rows.Next() {
		var m ir.MappingRule
		if err := rows.Scan(&m.RowID, &m.Source, &m.SourceField, &m.ParentFieldInSource, &m.StandardField); err != nil {
			return nil, ir.NewStorageError("list mappings", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, ir.NewStorageError("list mappings", err)
	}
	return out, nil
}

// AddTransformation appends a transformation rule and returns its rowID.
// Rule validity (type, regex pattern) is checked when the rule is applied.
func (s *Store) AddTransformation(ctx context.Context, r ir.TransformationRule) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transformations
			(source, field, transformationType, transformationParameter, transformationValue, priority)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.Source, r.Field, string(r.Type), r.Parameter, r.Value, r.Priority)
	if err != nil {
		return 0, ir.NewStorageError("add transformation", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, ir.NewStorageError("add transformation", err)
	}
	return id, nil
}

// TransformationsFor returns the rules for (source, field) in ascending
// priority; ties keep insertion order.
func (s *Store) TransformationsFor(ctx context.Context, source, field string) ([]ir.TransformationRule, error) {
	return s.queryTransformations(ctx, `
		SELECT rowID, source, field, transformationType, transformationParameter, transformationValue, priority
		FROM transformations
		WHERE source = ? AND field = ?
		ORDER BY priority ASC, rowID ASC
	`, source, field)
}

// ListTransformations returns the rules of a source, or of every source
// when source is empty.
func (s *Store) ListTransformations(ctx context.Context, source string) ([]ir.TransformationRule, error) {
	return s.queryTransformations(ctx, `
		SELECT rowID, source, field, transformationType, transformationParameter, transformationValue, priority
		FROM transformations
		WHERE ? = '' OR source = ?
		ORDER BY source ASC, field ASC, priority ASC, rowID ASC
	`, source, source)
}

// ClearTransformations removes every rule of a source. Rule files replace
// the rule set of a source wholesale.
func (s *Store) ClearTransformations(ctx context.Context, source string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transformations WHERE source = ?`, source); err != nil {
		return ir.NewStorageError("clear transformations", err)
	}
	return nil
}

func (s *Store) queryTransformations(ctx context.Context, query string, args ...any) ([]ir.TransformationRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ir.NewStorageError("transformations", err)
	}
	defer rows.Close()

	var out []ir.TransformationRule
	for rows.Next() {
		var (
			r  ir.TransformationRule
			tt string
		)
		if err := rows.Scan(&r.RowID, &r.Source, &r.Field, &tt, &r.Parameter, &r.Value, &r.Priority); err != nil {
			return nil, ir.NewStorageError("transformations", err)
		}
		r.Type = ir.TransformType(tt)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ir.NewStorageError("transformations", err)
	}
	return out, nil
}
