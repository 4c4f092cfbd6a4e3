package store

import (
	"context"

	"github.com/roach88/irts/internal/ir"
)

// AppendMessage writes one line to the harvest log.
func (s *Store) AppendMessage(ctx context.Context, process, msgType, message string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (process, type, message, added)
		VALUES (?, ?, ?, ?)
	`, process, msgType, message, formatTime(s.now()))
	if err != nil {
		return ir.NewStorageError("append message", err)
	}
	return nil
}

// Messages returns log lines in insertion order, filtered by process when
// process is non-empty. A positive limit keeps only the most recent lines.
func (s *Store) Messages(ctx context.Context, process string, limit int) ([]ir.HarvestMessage, error) {
	query := `
		SELECT rowID, process, type, message, added FROM (
			SELECT rowID, process, type, message, added FROM messages
			WHERE ? = '' OR process = ?
			ORDER BY rowID DESC
			LIMIT ?
		) ORDER BY rowID ASC
	`
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, query, process, process, limit)
	if err != nil {
		return nil, ir.NewStorageError("messages", err)
	}
	defer rows.Close()

	var out []ir.HarvestMessage
	for rows.Next() {
		var (
			m     ir.HarvestMessage
			added string
		)
		if err := rows.Scan(&m.RowID, &m.Process, &m.Type, &m.Message, &added); err != nil {
			return nil, ir.NewStorageError("messages", err)
		}
		t, err := parseTime(added)
		if err != nil {
			return nil, ir.NewStorageError("messages", err)
		}
		m.Added = t
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, ir.NewStorageError("messages", err)
	}
	return out, nil
}
