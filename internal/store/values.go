package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/irts/internal/ir"
)

// NewValue is the input for appending or superseding a value row.
type NewValue struct {
	Source      string
	IDInSource  string
	ParentRowID *int64
	Field       string
	Place       int
	Value       *string
}

func (v NewValue) slot() string {
	parent := int64(0)
	if v.ParentRowID != nil {
		parent = *v.ParentRowID
	}
	return fmt.Sprintf("%s:%s parent=%d %s[%d]", v.Source, v.IDInSource, parent, v.Field, v.Place)
}

// AppendValue inserts a new active row and returns its rowID.
//
// Returns an integrity error if the slot already holds an active row or if
// the parent row is not active.
func (t *Tx) AppendValue(ctx context.Context, v NewValue) (int64, error) {
	if v.Place < 0 {
		return 0, ir.NewIntegrityError("append value", fmt.Sprintf("negative place for %s", v.slot()))
	}

	taken, err := t.slotTaken(ctx, v)
	if err != nil {
		return 0, err
	}
	if taken {
		return 0, ir.NewIntegrityError("append value", fmt.Sprintf("slot already active: %s", v.slot()))
	}

	if v.ParentRowID != nil {
		ok, err := t.rowActive(ctx, *v.ParentRowID)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, ir.NewIntegrityError("append value", fmt.Sprintf("parent row %d is not active", *v.ParentRowID))
		}
	}

	return t.insertValue(ctx, v)
}

// Supersede closes the active row oldRowID and inserts its replacement in the
// same step. The old row keeps its data; deleted is set to the transaction
// time and replacedByRowID points at the new row.
//
// The replacement carries the old row's (source, idInSource, field, place)
// unless overridden in v; callers normally pass the same slot with a new
// value and, possibly, a new parent.
func (t *Tx) Supersede(ctx context.Context, oldRowID int64, v NewValue) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE metadata SET deleted = ? WHERE rowID = ? AND deleted IS NULL`,
		formatTime(t.now), oldRowID)
	if err != nil {
		return 0, ir.NewStorageError("supersede", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, ir.NewStorageError("supersede", err)
	}
	if n == 0 {
		return 0, ir.NewIntegrityError("supersede", fmt.Sprintf("row %d is not active", oldRowID))
	}

	newID, err := t.insertValue(ctx, v)
	if err != nil {
		return 0, err
	}

	if _, err := t.tx.ExecContext(ctx,
		`UPDATE metadata SET replacedByRowID = ? WHERE rowID = ?`, newID, oldRowID); err != nil {
		return 0, ir.NewStorageError("supersede", err)
	}
	return newID, nil
}

// Retire closes an active row without a replacement.
func (t *Tx) Retire(ctx context.Context, rowID int64) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE metadata SET deleted = ? WHERE rowID = ? AND deleted IS NULL`,
		formatTime(t.now), rowID)
	if err != nil {
		return ir.NewStorageError("retire", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ir.NewStorageError("retire", err)
	}
	if n == 0 {
		return ir.NewIntegrityError("retire", fmt.Sprintf("row %d is not active", rowID))
	}
	return nil
}

// Relink moves an unchanged active row under a new parent. Used when the
// parent was superseded but the child value stayed the same, so the child
// must not dangle from a closed row.
func (t *Tx) Relink(ctx context.Context, rowID, newParentRowID int64) error {
	ok, err := t.rowActive(ctx, newParentRowID)
	if err != nil {
		return err
	}
	if !ok {
		return ir.NewIntegrityError("relink", fmt.Sprintf("parent row %d is not active", newParentRowID))
	}

	res, err := t.tx.ExecContext(ctx,
		`UPDATE metadata SET parentRowID = ? WHERE rowID = ? AND deleted IS NULL`,
		newParentRowID, rowID)
	if err != nil {
		return ir.NewStorageError("relink", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ir.NewStorageError("relink", err)
	}
	if n == 0 {
		return ir.NewIntegrityError("relink", fmt.Sprintf("row %d is not active", rowID))
	}
	return nil
}

// ActiveTreeFor reads the active tree inside the transaction.
func (t *Tx) ActiveTreeFor(ctx context.Context, source, idInSource string) ([]*ir.StoredNode, error) {
	return activeTree(ctx, t.tx, source, idInSource)
}

func (t *Tx) insertValue(ctx context.Context, v NewValue) (int64, error) {
	var parent sql.NullInt64
	if v.ParentRowID != nil {
		parent = sql.NullInt64{Int64: *v.ParentRowID, Valid: true}
	}
	var value sql.NullString
	if v.Value != nil {
		value = sql.NullString{String: *v.Value, Valid: true}
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO metadata (source, idInSource, parentRowID, field, place, value, added)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, v.Source, v.IDInSource, parent, v.Field, v.Place, value, formatTime(t.now))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ir.NewIntegrityError("insert value", fmt.Sprintf("slot already active: %s", v.slot()))
		}
		return 0, ir.NewStorageError("insert value", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, ir.NewStorageError("insert value", err)
	}
	return id, nil
}

func (t *Tx) slotTaken(ctx context.Context, v NewValue) (bool, error) {
	var parent int64
	if v.ParentRowID != nil {
		parent = *v.ParentRowID
	}
	var exists int
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM metadata
			WHERE source = ? AND idInSource = ? AND IFNULL(parentRowID, 0) = ?
			  AND field = ? AND place = ? AND deleted IS NULL
		)
	`, v.Source, v.IDInSource, parent, v.Field, v.Place).Scan(&exists)
	if err != nil {
		return false, ir.NewStorageError("check slot", err)
	}
	return exists == 1, nil
}

func (t *Tx) rowActive(ctx context.Context, rowID int64) (bool, error) {
	var exists int
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM metadata WHERE rowID = ? AND deleted IS NULL)`, rowID).Scan(&exists)
	if err != nil {
		return false, ir.NewStorageError("check row", err)
	}
	return exists == 1, nil
}
