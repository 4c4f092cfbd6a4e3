package harvest

import (
	"context"

	"github.com/roach88/irts/internal/identity"
	"github.com/roach88/irts/internal/ir"
	"github.com/roach88/irts/internal/store"
)

// Processing queue record layout.
const (
	QueueSource = "irts"

	FieldQueueSource = "irts.source"
	FieldQueueID     = "irts.idInSource"
	FieldStatus      = "irts.status"
	FieldBasis       = "irts.harvest.basis"

	StatusInProcess = "inProcess"
)

// QueueTree builds the processing queue entry for a record that is new to
// the institution. The entry points back at the source record and copies
// the fields reviewers triage on.
func QueueTree(c identity.Candidate, record ir.Tree, basis string) ir.Tree {
	var t ir.Tree
	t.Add(FieldQueueSource, c.Source).AddChild(FieldQueueID, c.IDInSource)
	t.Add(FieldStatus, StatusInProcess)
	if c.IDField != "" {
		t.Add(c.IDField, c.IDInSource)
	}
	if c.DOI != "" && c.IDField != ir.FieldDOI {
		t.Add(ir.FieldDOI, c.DOI)
	}
	for _, field := range []string{ir.FieldType, ir.FieldTitle, ir.FieldDateIssued} {
		if v := record.First(field); v != "" {
			t.Add(field, v)
		}
	}
	if basis != "" {
		t.Add(FieldBasis, basis)
	}
	return t
}

// enqueue writes a queue entry "<source>_<n>" inside tx and returns its id.
func (r *Runner) enqueue(ctx context.Context, tx *store.Tx, c identity.Candidate, record ir.Tree, basis string) (string, error) {
	id, err := tx.NextSequentialID(ctx, QueueSource, c.Source)
	if err != nil {
		return "", err
	}
	if _, err := r.reconciler.ReconcileTree(ctx, tx, QueueSource, id, QueueTree(c, record, basis)); err != nil {
		return "", err
	}
	return id, nil
}
