package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/irts/internal/ir"
)

// TitledRecord is a logical record with its active title.
type TitledRecord struct {
	Ref   ir.RecordRef
	Title string
}

// RecordExists reports whether the logical record has any active row.
func (s *Store) RecordExists(ctx context.Context, source, idInSource string) (bool, error) {
	return recordExists(ctx, s.db, source, idInSource)
}

// RecordExists reports whether the logical record has any active row.
func (t *Tx) RecordExists(ctx context.Context, source, idInSource string) (bool, error) {
	return recordExists(ctx, t.tx, source, idInSource)
}

func recordExists(ctx context.Context, q queryer, source, idInSource string) (bool, error) {
	var exists int
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM metadata
			WHERE source = ? AND idInSource = ? AND deleted IS NULL
		)
	`, source, idInSource).Scan(&exists)
	if err != nil {
		return false, ir.NewStorageError("record exists", err)
	}
	return exists == 1, nil
}

// FindActive returns the records holding an active row with field = value,
// across all sources, ordered by source then idInSource.
func (s *Store) FindActive(ctx context.Context, field, value string, caseInsensitive bool) ([]ir.RecordRef, error) {
	return findActive(ctx, s.db, field, value, caseInsensitive)
}

// FindActive is Store.FindActive inside the transaction.
func (t *Tx) FindActive(ctx context.Context, field, value string, caseInsensitive bool) ([]ir.RecordRef, error) {
	return findActive(ctx, t.tx, field, value, caseInsensitive)
}

func findActive(ctx context.Context, q queryer, field, value string, caseInsensitive bool) ([]ir.RecordRef, error) {
	cond := "value = ?"
	if caseInsensitive {
		cond = "LOWER(value) = LOWER(?)"
	}
	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT source, idInSource FROM metadata
		WHERE field = ? AND `+cond+` AND deleted IS NULL
		ORDER BY source ASC, idInSource ASC
	`, field, value)
	if err != nil {
		return nil, ir.NewStorageError("find active", err)
	}
	defer rows.Close()

	var refs []ir.RecordRef
	for rows.Next() {
		var r ir.RecordRef
		if err := rows.Scan(&r.Source, &r.IDInSource); err != nil {
			return nil, ir.NewStorageError("find active", err)
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ir.NewStorageError("find active", err)
	}
	return refs, nil
}

// TitlesWithType returns the active top-level titles of records whose
// active top-level dc.type equals recordType.
func (s *Store) TitlesWithType(ctx context.Context, recordType string) ([]TitledRecord, error) {
	return titlesWithType(ctx, s.db, recordType)
}

// TitlesWithType is Store.TitlesWithType inside the transaction.
func (t *Tx) TitlesWithType(ctx context.Context, recordType string) ([]TitledRecord, error) {
	return titlesWithType(ctx, t.tx, recordType)
}

func titlesWithType(ctx context.Context, q queryer, recordType string) ([]TitledRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT t.source, t.idInSource, t.value
		FROM metadata t
		JOIN metadata ty
		  ON ty.source = t.source AND ty.idInSource = t.idInSource
		WHERE t.field = ? AND t.parentRowID IS NULL AND t.deleted IS NULL AND t.value IS NOT NULL
		  AND ty.field = ? AND ty.parentRowID IS NULL AND ty.deleted IS NULL AND ty.value = ?
		ORDER BY t.source ASC, t.idInSource ASC, t.place ASC
	`, ir.FieldTitle, ir.FieldType, recordType)
	if err != nil {
		return nil, ir.NewStorageError("titles with type", err)
	}
	defer rows.Close()

	var out []TitledRecord
	for rows.Next() {
		var tr TitledRecord
		if err := rows.Scan(&tr.Ref.Source, &tr.Ref.IDInSource, &tr.Title); err != nil {
			return nil, ir.NewStorageError("titles with type", err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, ir.NewStorageError("titles with type", err)
	}
	return out, nil
}

// ActiveValues returns the active values of a field across a source (every
// source when source is empty), or of a single record when idInSource is
// non-empty, ordered by record then place. Container rows are skipped.
func (s *Store) ActiveValues(ctx context.Context, source, idInSource, field string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT value FROM metadata
		WHERE (? = '' OR source = ?) AND (? = '' OR idInSource = ?) AND field = ?
		  AND deleted IS NULL AND value IS NOT NULL
		ORDER BY source ASC, idInSource ASC, place ASC, rowID ASC
	`, source, source, idInSource, idInSource, field)
	if err != nil {
		return nil, ir.NewStorageError("active values", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, ir.NewStorageError("active values", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, ir.NewStorageError("active values", err)
	}
	return out, nil
}

// NextSequentialID allocates "<prefix>_<n>" for records of source, where n
// is one more than the largest numeric suffix ever used (closed rows
// included, so identifiers are never reused).
func (t *Tx) NextSequentialID(ctx context.Context, source, prefix string) (string, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT DISTINCT idInSource FROM metadata
		WHERE source = ? AND substr(idInSource, 1, ?) = ?
	`, source, len(prefix)+1, prefix+"_")
	if err != nil {
		return "", ir.NewStorageError("next sequential id", err)
	}
	defer rows.Close()

	max := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", ir.NewStorageError("next sequential id", err)
		}
		n, err := strconv.Atoi(strings.TrimPrefix(id, prefix+"_"))
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	if err := rows.Err(); err != nil {
		return "", ir.NewStorageError("next sequential id", err)
	}
	return fmt.Sprintf("%s_%d", prefix, max+1), nil
}
