package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/irts/internal/identity"
	"github.com/roach88/irts/internal/ir"
	"github.com/roach88/irts/internal/mapper"
	"github.com/roach88/irts/internal/metrics"
	"github.com/roach88/irts/internal/reconcile"
	"github.com/roach88/irts/internal/store"
)

// DefaultWorkers is the number of records processed concurrently.
const DefaultWorkers = 4

// Runner executes harvest runs.
type Runner struct {
	store      *store.Store
	mapper     *mapper.Mapper
	reconciler *reconcile.Reconciler
	messages   *MessageLog
	logger     *slog.Logger
	metrics    *metrics.Metrics
	runIDs     RunIDGenerator
	clock      store.Clock
	workers    int
	dryRun     bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMetrics enables record counters and timings.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithWorkers bounds record concurrency. Values below 1 mean 1.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n < 1 {
			n = 1
		}
		r.workers = n
	}
}

// WithRunIDs replaces the UUIDv7 run identifier generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(r *Runner) { r.runIDs = g }
}

// WithClock sets the clock used for report timestamps.
func WithClock(c store.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithDryRun makes the runner plan writes instead of issuing them. Reports
// are still produced but not written to the message log.
func WithDryRun(dryRun bool) Option {
	return func(r *Runner) { r.dryRun = dryRun }
}

// NewRunner creates a Runner.
func NewRunner(s *store.Store, m *mapper.Mapper, rec *reconcile.Reconciler, opts ...Option) *Runner {
	r := &Runner{
		store:      s,
		mapper:     m,
		reconciler: rec,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		runIDs:     UUIDv7Generator{},
		clock:      store.SystemClock{},
		workers:    DefaultWorkers,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.messages = NewMessageLog(s, r.logger)
	return r
}

// Run harvests each source in order. A source that cannot be harvested
// does not stop the others: the reports of the sources that completed are
// returned together with the joined errors. Cancellation stops the run.
func (r *Runner) Run(ctx context.Context, sources []Source, t Type) ([]*Report, error) {
	var (
		reports []*Report
		errs    []error
	)
	for _, src := range sources {
		rep, err := r.RunSource(ctx, src, t)
		if err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		reports = append(reports, rep)
	}
	return reports, errors.Join(errs...)
}

// RunSource harvests one source.
func (r *Runner) RunSource(ctx context.Context, src Source, t Type) (*Report, error) {
	rep := &Report{
		RunID:   r.runIDs.Generate(),
		Source:  src.Name(),
		Type:    t,
		DryRun:  r.dryRun,
		Started: r.clock.Now(),
	}
	log := r.logger.With("source", src.Name(), "run", rep.RunID)
	log.Info("harvest started", "type", string(t), "dry_run", r.dryRun)

	items, err := r.discover(ctx, src, t)
	if err != nil {
		r.messages.Log(ctx, ProcessHarvest, MessageError, fmt.Sprintf("%s discovery failed: %v", src.Name(), err))
		return nil, fmt.Errorf("harvest %s: %w", src.Name(), err)
	}
	log.Info("items discovered", "count", len(items))

	results := make([]ItemResult, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, item := range items {
		g.Go(func() error {
			results[i] = r.processItem(gctx, src, t, item)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("harvest %s: %w", src.Name(), err)
	}

	for _, res := range results {
		rep.Add(res)
		r.metrics.IncrementRecord(src.Name(), string(res.Outcome))
		if res.Outcome == OutcomeFailed {
			r.messages.Log(ctx, ProcessHarvest, MessageError,
				fmt.Sprintf("%s %s: %s", src.Name(), res.ID, res.Detail))
		}
	}
	rep.Finished = r.clock.Now()

	if !r.dryRun {
		r.messages.Log(ctx, ProcessHarvest, MessageReport, rep.Text())
	}
	log.Info("harvest complete",
		"all", rep.All,
		"new", rep.New,
		"modified", rep.Modified,
		"unchanged", rep.Unchanged,
		"skipped", rep.Skipped,
		"failed", rep.Failed,
		"duplicates", rep.Duplicates,
		"queued", rep.Queued)
	return rep, nil
}

// discover lists items, dropping repeated ids (the first basis wins).
func (r *Runner) discover(ctx context.Context, src Source, t Type) ([]Item, error) {
	var items []Item
	if t == TypeReprocess {
		ids, err := r.store.ActiveDocumentIDs(ctx, src.Name())
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			items = append(items, Item{ID: id, Basis: "Reprocess"})
		}
		return items, nil
	}

	found, err := src.Discover(ctx, t, r.store)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(found))
	for _, it := range found {
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		items = append(items, it)
	}
	return items, nil
}

func (r *Runner) processItem(ctx context.Context, src Source, t Type, item Item) ItemResult {
	defer r.metrics.ObserveRecord(time.Now())

	res := ItemResult{ID: item.ID}
	if item.Skip != "" {
		res.Outcome = OutcomeSkipped
		res.Detail = item.Skip
		return res
	}

	fail := func(err error) ItemResult {
		r.logger.Warn("record failed", "source", src.Name(), "id", item.ID, "error", err)
		res.Outcome = OutcomeFailed
		res.Detail = err.Error()
		return res
	}

	payload, err := r.payloadFor(ctx, src, t, item)
	if err != nil {
		return fail(err)
	}

	parsed, err := src.Parse(payload)
	if err != nil {
		return fail(fmt.Errorf("parse: %w", err))
	}
	if parsed.ID == "" {
		parsed.ID = item.ID
	}
	if parsed.Payload == "" {
		parsed.Payload = payload
	}
	res.ID = parsed.ID

	if t == TypeNew {
		same, err := r.unchangedPayload(ctx, src.Name(), parsed)
		if err != nil {
			return fail(err)
		}
		if same {
			res.Outcome = OutcomeUnchanged
			res.Match = identity.Match{Kind: identity.KindExisting, Ref: ir.RecordRef{Source: src.Name(), IDInSource: parsed.ID}, Reason: identity.ReasonRecord}
			return res
		}
	}

	tree, _, err := r.mapper.BuildTree(ctx, src.Name(), parsed.Fields)
	if err != nil {
		return fail(fmt.Errorf("map: %w", err))
	}

	cand := identity.Candidate{
		Source:     src.Name(),
		IDInSource: parsed.ID,
		IDField:    src.IDField(),
		DOI:        tree.First(ir.FieldDOI),
		Title:      tree.First(ir.FieldTitle),
		Type:       tree.First(ir.FieldType),
	}

	if r.dryRun {
		return r.planItem(ctx, cand, tree, res)
	}

	err = r.store.WithTx(ctx, func(tx *store.Tx) error {
		match, err := identity.NewResolver(tx).Resolve(ctx, cand)
		if err != nil {
			return err
		}
		res.Match = match

		result, err := r.reconciler.ReconcileIn(ctx, tx, src.Name(), parsed.ID, tree, parsed.Payload, parsed.Format)
		if err != nil {
			return err
		}
		res.Outcome = Outcome(result.Record)

		if match.Kind == identity.KindNew {
			queueID, err := r.enqueue(ctx, tx, cand, tree, item.Basis)
			if err != nil {
				return fmt.Errorf("enqueue: %w", err)
			}
			res.QueueID = queueID
		}
		return nil
	})
	if err != nil {
		res.Match = identity.Match{}
		res.QueueID = ""
		return fail(err)
	}
	return res
}

func (r *Runner) planItem(ctx context.Context, cand identity.Candidate, tree ir.Tree, res ItemResult) ItemResult {
	match, err := identity.NewResolver(r.store).Resolve(ctx, cand)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Detail = err.Error()
		return res
	}
	res.Match = match

	plan, result, err := r.reconciler.Plan(ctx, cand.Source, cand.IDInSource, tree)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Detail = err.Error()
		return res
	}
	res.Outcome = Outcome(result.Record)
	r.logger.Debug("planned writes", "source", cand.Source, "id", cand.IDInSource, "plan", plan.Render())
	if match.Kind == identity.KindNew {
		res.Detail = "would queue"
	}
	return res
}

func (r *Runner) payloadFor(ctx context.Context, src Source, t Type, item Item) (string, error) {
	if t == TypeReprocess {
		doc, found, err := r.store.ActiveSourceDocument(ctx, src.Name(), item.ID)
		if err != nil {
			return "", err
		}
		if !found {
			return "", fmt.Errorf("no stored payload for %s", item.ID)
		}
		return doc.Payload, nil
	}
	if item.Payload != "" {
		return item.Payload, nil
	}
	payload, err := src.Fetch(ctx, item.ID)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	return payload, nil
}

// unchangedPayload reports whether the record's active document already
// holds an equal payload.
func (r *Runner) unchangedPayload(ctx context.Context, source string, p Parsed) (bool, error) {
	doc, found, err := r.store.ActiveSourceDocument(ctx, source, p.ID)
	if err != nil || !found || doc.Format != p.Format {
		return false, err
	}
	current, err := ir.PayloadDigest(doc.Format, doc.Payload)
	if err != nil {
		return false, nil
	}
	incoming, err := ir.PayloadDigest(p.Format, p.Payload)
	if err != nil {
		return false, nil
	}
	return current == incoming, nil
}
