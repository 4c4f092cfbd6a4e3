package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/irts/internal/ir"
)

const valueColumns = `rowID, source, idInSource, parentRowID, field, place, value, added, deleted, replacedByRowID`

// ActiveTreeFor returns the active rows of a logical record arranged as a
// forest. Siblings are ordered by field then place. An unknown record yields
// an empty forest.
func (s *Store) ActiveTreeFor(ctx context.Context, source, idInSource string) ([]*ir.StoredNode, error) {
	return activeTree(ctx, s.db, source, idInSource)
}

func activeTree(ctx context.Context, q queryer, source, idInSource string) ([]*ir.StoredNode, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+valueColumns+`
		FROM metadata
		WHERE source = ? AND idInSource = ? AND deleted IS NULL
		ORDER BY field ASC, place ASC, rowID ASC
	`, source, idInSource)
	if err != nil {
		return nil, ir.NewStorageError("active tree", err)
	}
	defer rows.Close()

	records, err := scanValues(rows)
	if err != nil {
		return nil, ir.NewStorageError("active tree", err)
	}
	return buildForest(records), nil
}

// buildForest links records into parent/child nodes. Rows whose parent is
// not in the active set are treated as roots so that they stay visible.
func buildForest(records []ir.ValueRecord) []*ir.StoredNode {
	nodes := make(map[int64]*ir.StoredNode, len(records))
	for _, r := range records {
		nodes[r.RowID] = &ir.StoredNode{ValueRecord: r}
	}

	var roots []*ir.StoredNode
	for _, r := range records {
		n := nodes[r.RowID]
		if r.ParentRowID != nil {
			if parent, ok := nodes[*r.ParentRowID]; ok {
				parent.Children = append(parent.Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}

	var sortAll func([]*ir.StoredNode)
	sortAll = func(ns []*ir.StoredNode) {
		ir.SortNodes(ns)
		for _, n := range ns {
			sortAll(n.Children)
		}
	}
	sortAll(roots)
	return roots
}

// HistoryFor returns every row (active and closed) ever stored for a field of
// a logical record, ordered by added then rowID. Following replacedByRowID
// from any entry leads to the current active row or to a retirement.
func (s *Store) HistoryFor(ctx context.Context, source, idInSource, field string) ([]ir.ValueRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+valueColumns+`
		FROM metadata
		WHERE source = ? AND idInSource = ? AND field = ?
		ORDER BY added ASC, rowID ASC
	`, source, idInSource, field)
	if err != nil {
		return nil, ir.NewStorageError("history", err)
	}
	defer rows.Close()

	records, err := scanValues(rows)
	if err != nil {
		return nil, ir.NewStorageError("history", err)
	}
	return records, nil
}

// ValueRow reads a single row by rowID regardless of its state.
func (s *Store) ValueRow(ctx context.Context, rowID int64) (ir.ValueRecord, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+valueColumns+` FROM metadata WHERE rowID = ?`, rowID)
	if err != nil {
		return ir.ValueRecord{}, false, ir.NewStorageError("value row", err)
	}
	defer rows.Close()

	records, err := scanValues(rows)
	if err != nil {
		return ir.ValueRecord{}, false, ir.NewStorageError("value row", err)
	}
	if len(records) == 0 {
		return ir.ValueRecord{}, false, nil
	}
	return records[0], true, nil
}

// DanglingChildren returns active rows whose parent row is closed. A
// consistent store always returns none.
func (s *Store) DanglingChildren(ctx context.Context) ([]ir.ValueRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.rowID, c.source, c.idInSource, c.parentRowID, c.field, c.place,
		       c.value, c.added, c.deleted, c.replacedByRowID
		FROM metadata c
		JOIN metadata p ON p.rowID = c.parentRowID
		WHERE c.deleted IS NULL AND p.deleted IS NOT NULL
		ORDER BY c.rowID ASC
	`)
	if err != nil {
		return nil, ir.NewStorageError("dangling children", err)
	}
	defer rows.Close()

	records, err := scanValues(rows)
	if err != nil {
		return nil, ir.NewStorageError("dangling children", err)
	}
	return records, nil
}

func scanValues(rows *sql.Rows) ([]ir.ValueRecord, error) {
	var out []ir.ValueRecord
	for rows.Next() {
		var (
			r          ir.ValueRecord
			parent     sql.NullInt64
			value      sql.NullString
			added      string
			deleted    sql.NullString
			replacedBy sql.NullInt64
		)
		if err := rows.Scan(&r.RowID, &r.Source, &r.IDInSource, &parent, &r.Field,
			&r.Place, &value, &added, &deleted, &replacedBy); err != nil {
			return nil, fmt.Errorf("scan metadata row: %w", err)
		}

		t, err := parseTime(added)
		if err != nil {
			return nil, err
		}
		r.Added = t
		if r.Deleted, err = parseNullTime(deleted); err != nil {
			return nil, err
		}
		r.ParentRowID = nullInt64Ptr(parent)
		r.Value = nullStringPtr(value)
		r.ReplacedByRowID = nullInt64Ptr(replacedBy)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metadata rows: %w", err)
	}
	return out, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
