package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/irts/internal/ir"
)

const documentColumns = `rowID, source, idInSource, sourceData, format, added, deleted, replacedByRowID`

// SaveSourceDocument stores a raw payload for (source, idInSource).
//
// The payload is compared with the active document by digest (canonical JSON
// or trimmed XML). An equal payload leaves the store untouched and reports
// DocumentUnchanged. A different payload supersedes the active document.
// Returns the rowID of the active document after the call.
func (t *Tx) SaveSourceDocument(ctx context.Context, source, idInSource, payload string, format ir.Format) (ir.DocumentStatus, int64, error) {
	if _, err := ir.ParseFormat(string(format)); err != nil {
		return "", 0, ir.NewConfigurationError("save source document", err.Error(), nil)
	}
	digest, err := ir.PayloadDigest(format, payload)
	if err != nil {
		return "", 0, ir.NewConfigurationError("save source document", "payload is not well formed", err)
	}

	current, found, err := activeDocument(ctx, t.tx, source, idInSource)
	if err != nil {
		return "", 0, err
	}

	if found {
		currentDigest, err := ir.PayloadDigest(current.Format, current.Payload)
		if err == nil && current.Format == format && currentDigest == digest {
			return ir.DocumentUnchanged, current.RowID, nil
		}

		if _, err := t.tx.ExecContext(ctx,
			`UPDATE sourceData SET deleted = ? WHERE rowID = ? AND deleted IS NULL`,
			formatTime(t.now), current.RowID); err != nil {
			return "", 0, ir.NewStorageError("save source document", err)
		}
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO sourceData (source, idInSource, sourceData, format, added)
		VALUES (?, ?, ?, ?, ?)
	`, source, idInSource, payload, string(format), formatTime(t.now))
	if err != nil {
		return "", 0, ir.NewStorageError("save source document", err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return "", 0, ir.NewStorageError("save source document", err)
	}

	if !found {
		return ir.DocumentNew, newID, nil
	}

	if _, err := t.tx.ExecContext(ctx,
		`UPDATE sourceData SET replacedByRowID = ? WHERE rowID = ?`, newID, current.RowID); err != nil {
		return "", 0, ir.NewStorageError("save source document", err)
	}
	return ir.DocumentModified, newID, nil
}

// ActiveSourceDocument returns the current payload for a record, if any.
func (s *Store) ActiveSourceDocument(ctx context.Context, source, idInSource string) (ir.SourceDocument, bool, error) {
	return activeDocument(ctx, s.db, source, idInSource)
}

func activeDocument(ctx context.Context, q queryer, source, idInSource string) (ir.SourceDocument, bool, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM sourceData
		WHERE source = ? AND idInSource = ? AND deleted IS NULL
	`, source, idInSource)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.SourceDocument{}, false, nil
	}
	if err != nil {
		return ir.SourceDocument{}, false, ir.NewStorageError("active source document", err)
	}
	return doc, true, nil
}

// SourceDocumentHistory returns every stored payload version of a record,
// oldest first.
func (s *Store) SourceDocumentHistory(ctx context.Context, source, idInSource string) ([]ir.SourceDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM sourceData
		WHERE source = ? AND idInSource = ?
		ORDER BY added ASC, rowID ASC
	`, source, idInSource)
	if err != nil {
		return nil, ir.NewStorageError("source document history", err)
	}
	defer rows.Close()

	var docs []ir.SourceDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, ir.NewStorageError("source document history", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, ir.NewStorageError("source document history", err)
	}
	return docs, nil
}

// ActiveDocumentIDs lists the idInSource of every record of source that has
// an active payload, in ascending order.
func (s *Store) ActiveDocumentIDs(ctx context.Context, source string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idInSource FROM sourceData
		WHERE source = ? AND deleted IS NULL
		ORDER BY idInSource ASC
	`, source)
	if err != nil {
		return nil, ir.NewStorageError("active document ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, ir.NewStorageError("active document ids", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, ir.NewStorageError("active document ids", err)
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (ir.SourceDocument, error) {
	var (
		doc        ir.SourceDocument
		format     string
		added      string
		deleted    sql.NullString
		replacedBy sql.NullInt64
	)
	if err := row.Scan(&doc.RowID, &doc.Source, &doc.IDInSource, &doc.Payload,
		&format, &added, &deleted, &replacedBy); err != nil {
		return ir.SourceDocument{}, err
	}

	doc.Format = ir.Format(format)
	t, err := parseTime(added)
	if err != nil {
		return ir.SourceDocument{}, fmt.Errorf("source document %d: %w", doc.RowID, err)
	}
	doc.Added = t
	if doc.Deleted, err = parseNullTime(deleted); err != nil {
		return ir.SourceDocument{}, fmt.Errorf("source document %d: %w", doc.RowID, err)
	}
	doc.ReplacedByRowID = nullInt64Ptr(replacedBy)
	return doc, nil
}
