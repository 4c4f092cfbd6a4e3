package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/irts/internal/ir"
	"github.com/roach88/irts/internal/metrics"
	"github.com/roach88/irts/internal/store"
)

// RecordStatus summarizes what a reconciliation did to a logical record.
type RecordStatus string

const (
	RecordNew       RecordStatus = "new"
	RecordModified  RecordStatus = "modified"
	RecordUnchanged RecordStatus = "unchanged"
)

// Result is the outcome of Reconcile.
type Result struct {
	Counts
	Document ir.DocumentStatus `json:"document,omitempty"`
	Record   RecordStatus      `json:"record"`
}

// Reconciler writes incoming record trees into the store.
type Reconciler struct {
	store   *store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithMetrics enables write counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// New creates a Reconciler over s.
func New(s *store.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:  s,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile saves the raw payload (when non-empty) and reconciles the tree
// of (source, idInSource) in one transaction. Any failure rolls back both.
func (r *Reconciler) Reconcile(ctx context.Context, source, idInSource string, tree ir.Tree, payload string, format ir.Format) (Result, error) {
	var res Result
	err := r.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		res, err = r.ReconcileIn(ctx, tx, source, idInSource, tree, payload, format)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("reconcile %s:%s: %w", source, idInSource, err)
	}
	return res, nil
}

// ReconcileIn is Reconcile inside a caller-owned transaction, for callers
// that combine the write with other work (identity checks, queueing).
func (r *Reconciler) ReconcileIn(ctx context.Context, tx *store.Tx, source, idInSource string, tree ir.Tree, payload string, format ir.Format) (Result, error) {
	var res Result
	if payload != "" {
		status, _, err := tx.SaveSourceDocument(ctx, source, idInSource, payload, format)
		if err != nil {
			return Result{}, err
		}
		res.Document = status
	}

	existed, err := tx.RecordExists(ctx, source, idInSource)
	if err != nil {
		return Result{}, err
	}

	counts, err := r.ReconcileTree(ctx, tx, source, idInSource, tree)
	if err != nil {
		return Result{}, err
	}
	res.Counts = counts
	res.Record = recordStatus(existed, counts)

	r.logger.Debug("record reconciled",
		"source", source,
		"id", idInSource,
		"record", string(res.Record),
		"document", string(res.Document),
		"created", res.Created,
		"superseded", res.Superseded,
		"retired", res.Retired,
		"relinked", res.Relinked)
	return res, nil
}

// ReconcileTree reconciles inside a caller-owned transaction.
func (r *Reconciler) ReconcileTree(ctx context.Context, tx *store.Tx, source, idInSource string, tree ir.Tree) (Counts, error) {
	current, err := tx.ActiveTreeFor(ctx, source, idInSource)
	if err != nil {
		return Counts{}, err
	}

	counts, err := Apply(ctx, tx, source, idInSource, current, tree)
	if err != nil {
		return Counts{}, err
	}

	r.metrics.AddWrites(string(OpAppend), counts.Created)
	r.metrics.AddWrites(string(OpSupersede), counts.Superseded)
	r.metrics.AddWrites(string(OpRetire), counts.Retired)
	r.metrics.AddWrites(string(OpRelink), counts.Relinked)
	return counts, nil
}

// Plan computes the writes Reconcile would issue without touching the
// store.
func (r *Reconciler) Plan(ctx context.Context, source, idInSource string, tree ir.Tree) (*Recorder, Result, error) {
	current, err := r.store.ActiveTreeFor(ctx, source, idInSource)
	if err != nil {
		return nil, Result{}, fmt.Errorf("plan %s:%s: %w", source, idInSource, err)
	}

	rec := NewRecorder()
	counts, err := Apply(ctx, rec, source, idInSource, current, tree)
	if err != nil {
		return nil, Result{}, fmt.Errorf("plan %s:%s: %w", source, idInSource, err)
	}
	return rec, Result{Counts: counts, Record: recordStatus(len(current) > 0, counts)}, nil
}

func recordStatus(existed bool, c Counts) RecordStatus {
	switch {
	case !existed && c.Created > 0:
		return RecordNew
	case c.Changed():
		return RecordModified
	default:
		return RecordUnchanged
	}
}
