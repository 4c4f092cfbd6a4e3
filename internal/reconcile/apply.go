package reconcile

import (
	"context"
	"fmt"

	"github.com/roach88/irts/internal/ir"
	"github.com/roach88/irts/internal/store"
)

// Writer receives the writes of a reconciliation. *store.Tx satisfies it;
// Recorder captures them in memory.
type Writer interface {
	AppendValue(ctx context.Context, v store.NewValue) (int64, error)
	Supersede(ctx context.Context, oldRowID int64, v store.NewValue) (int64, error)
	Retire(ctx context.Context, rowID int64) error
	Relink(ctx context.Context, rowID, newParentRowID int64) error
}

// Counts tallies the writes of one reconciliation.
type Counts struct {
	Created    int `json:"created"`
	Superseded int `json:"superseded"`
	Retired    int `json:"retired"`
	Relinked   int `json:"relinked"`
	Unchanged  int `json:"unchanged"`
}

// Changed reports whether any write was issued.
func (c Counts) Changed() bool {
	return c.Created+c.Superseded+c.Retired+c.Relinked > 0
}

// Add accumulates other into c.
func (c *Counts) Add(other Counts) {
	c.Created += other.Created
	c.Superseded += other.Superseded
	c.Retired += other.Retired
	c.Relinked += other.Relinked
	c.Unchanged += other.Unchanged
}

type walker struct {
	w          Writer
	source, id string
	counts     Counts
}

// Apply reconciles current (the active stored forest) with incoming and
// sends the resulting writes to w.
func Apply(ctx context.Context, w Writer, source, idInSource string, current []*ir.StoredNode, incoming ir.Tree) (Counts, error) {
	wk := &walker{w: w, source: source, id: idInSource}
	if err := wk.level(ctx, nil, current, incoming); err != nil {
		return wk.counts, err
	}
	return wk.counts, nil
}

func (wk *walker) level(ctx context.Context, parent *int64, existing []*ir.StoredNode, incoming ir.Tree) error {
	// First row wins a key; later rows at the same key are retired below.
	byKey := make(map[ir.Key]*ir.StoredNode, len(existing))
	for _, n := range existing {
		if _, dup := byKey[n.Key()]; !dup {
			byKey[n.Key()] = n
		}
	}

	seen := make(map[ir.Key]bool, len(incoming))
	for _, in := range incoming {
		key := in.Key()
		if seen[key] {
			return ir.NewIntegrityError("reconcile",
				fmt.Sprintf("duplicate incoming node %s[%d] for %s:%s", key.Field, key.Place, wk.source, wk.id))
		}
		seen[key] = true

		cur, ok := byKey[key]
		switch {
		case !ok:
			if err := wk.appendSubtree(ctx, parent, in); err != nil {
				return err
			}

		case sameValue(cur.Value, in.Value) && (parent != nil || cur.ParentRowID == nil):
			if !sameParent(cur.ParentRowID, parent) {
				if err := wk.w.Relink(ctx, cur.RowID, *parent); err != nil {
					return fmt.Errorf("relink row %d: %w", cur.RowID, err)
				}
				wk.counts.Relinked++
			} else {
				wk.counts.Unchanged++
			}
			if err := wk.level(ctx, &cur.RowID, cur.Children, in.Children); err != nil {
				return err
			}

		default:
			newID, err := wk.w.Supersede(ctx, cur.RowID, wk.newValue(parent, in))
			if err != nil {
				return fmt.Errorf("supersede row %d: %w", cur.RowID, err)
			}
			wk.counts.Superseded++
			if err := wk.level(ctx, &newID, cur.Children, in.Children); err != nil {
				return err
			}
		}
	}

	for _, n := range existing {
		if seen[n.Key()] && byKey[n.Key()] == n {
			continue
		}
		if err := wk.retireSubtree(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (wk *walker) appendSubtree(ctx context.Context, parent *int64, n *ir.Node) error {
	id, err := wk.w.AppendValue(ctx, wk.newValue(parent, n))
	if err != nil {
		return fmt.Errorf("append %s[%d]: %w", n.Field, n.Place, err)
	}
	wk.counts.Created++
	for _, child := range n.Children {
		if err := wk.appendSubtree(ctx, &id, child); err != nil {
			return err
		}
	}
	return nil
}

// retireSubtree retires descendants before the node itself.
func (wk *walker) retireSubtree(ctx context.Context, n *ir.StoredNode) error {
	for _, child := range n.Children {
		if err := wk.retireSubtree(ctx, child); err != nil {
			return err
		}
	}
	if err := wk.w.Retire(ctx, n.RowID); err != nil {
		return fmt.Errorf("retire row %d: %w", n.RowID, err)
	}
	wk.counts.Retired++
	return nil
}

func (wk *walker) newValue(parent *int64, n *ir.Node) store.NewValue {
	var value *string
	if n.Value != nil {
		v := *n.Value
		value = &v
	}
	return store.NewValue{
		Source:      wk.source,
		IDInSource:  wk.id,
		ParentRowID: parent,
		Field:       n.Field,
		Place:       n.Place,
		Value:       value,
	}
}

func sameValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
