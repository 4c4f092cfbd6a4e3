package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/irts/internal/store"
)

// OpKind names a planned write.
type OpKind string

const (
	OpAppend    OpKind = "append"
	OpSupersede OpKind = "supersede"
	OpRetire    OpKind = "retire"
	OpRelink    OpKind = "relink"
)

// Op is one write captured by a Recorder. Rows created by the plan get
// negative IDs (-1, -2, ...) so they never collide with stored rows.
type Op struct {
	Kind     OpKind         `json:"kind"`
	RowID    int64          `json:"row_id"`
	NewRowID int64          `json:"new_row_id,omitempty"`
	Value    store.NewValue `json:"value"`
}

// Recorder is an in-memory Writer. It performs no checks; it is used for
// dry runs and to snapshot reconciliation plans.
type Recorder struct {
	Ops  []Op
	next int64
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) allocate() int64 {
	r.next--
	return r.next
}

// AppendValue records an append.
func (r *Recorder) AppendValue(_ context.Context, v store.NewValue) (int64, error) {
	id := r.allocate()
	r.Ops = append(r.Ops, Op{Kind: OpAppend, NewRowID: id, Value: v})
	return id, nil
}

// Supersede records a supersession.
func (r *Recorder) Supersede(_ context.Context, oldRowID int64, v store.NewValue) (int64, error) {
	id := r.allocate()
	r.Ops = append(r.Ops, Op{Kind: OpSupersede, RowID: oldRowID, NewRowID: id, Value: v})
	return id, nil
}

// Retire records a retirement.
func (r *Recorder) Retire(_ context.Context, rowID int64) error {
	r.Ops = append(r.Ops, Op{Kind: OpRetire, RowID: rowID})
	return nil
}

// Relink records a parent change.
func (r *Recorder) Relink(_ context.Context, rowID, newParentRowID int64) error {
	parent := newParentRowID
	r.Ops = append(r.Ops, Op{Kind: OpRelink, RowID: rowID, Value: store.NewValue{ParentRowID: &parent}})
	return nil
}

// Render prints one line per recorded write:
//
//	append    #new1 dc.title[0] parent=- value="A"
//	supersede #3 -> #new2 dc.title[0] parent=- value="B"
//	retire    #4
//	relink    #5 parent=#new2
func (r *Recorder) Render() string {
	var b strings.Builder
	for _, op := range r.Ops {
		switch op.Kind {
		case OpAppend:
			fmt.Fprintf(&b, "append    %s %s[%d] parent=%s value=%s\n",
				rowRef(op.NewRowID), op.Value.Field, op.Value.Place, parentRef(op.Value.ParentRowID), valueText(op.Value.Value))
		case OpSupersede:
			fmt.Fprintf(&b, "supersede %s -> %s %s[%d] parent=%s value=%s\n",
				rowRef(op.RowID), rowRef(op.NewRowID), op.Value.Field, op.Value.Place,
				parentRef(op.Value.ParentRowID), valueText(op.Value.Value))
		case OpRetire:
			fmt.Fprintf(&b, "retire    %s\n", rowRef(op.RowID))
		case OpRelink:
			fmt.Fprintf(&b, "relink    %s parent=%s\n", rowRef(op.RowID), parentRef(op.Value.ParentRowID))
		}
	}
	return b.String()
}

func rowRef(id int64) string {
	if id < 0 {
		return fmt.Sprintf("#new%d", -id)
	}
	return fmt.Sprintf("#%d", id)
}

func parentRef(id *int64) string {
	if id == nil {
		return "-"
	}
	return rowRef(*id)
}

func valueText(v *string) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%q", *v)
}
