package mapper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/irts/internal/ir"
	"github.com/roach88/irts/internal/metrics"
)

// Rules is the configuration the mapper reads. *store.Store satisfies it.
type Rules interface {
	LookupMapping(ctx context.Context, source, sourceField, parentFieldInSource string) (string, bool, error)
	TransformationsFor(ctx context.Context, source, field string) ([]ir.TransformationRule, error)
}

// MessageSink receives harvest log lines. *store.Store satisfies it.
type MessageSink interface {
	AppendMessage(ctx context.Context, process, msgType, message string) error
}

// UnmappedPolicy decides what happens to a field without a mapping.
type UnmappedPolicy string

const (
	// UnmappedDrop skips the field (and its children).
	UnmappedDrop UnmappedPolicy = "drop"

	// UnmappedPassthrough keeps the field under a namespaced name:
	// "<source>.<field>" when the name has no dot, the name itself otherwise.
	UnmappedPassthrough UnmappedPolicy = "passthrough"
)

// ParseUnmappedPolicy validates a policy name.
func ParseUnmappedPolicy(s string) (UnmappedPolicy, error) {
	switch UnmappedPolicy(s) {
	case UnmappedDrop, UnmappedPassthrough:
		return UnmappedPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown unmapped policy %q: must be drop or passthrough", s)
	}
}

// MessageProcess is the process name used for mapper log lines.
const MessageProcess = "mapper"

type mappingKey struct {
	source, parent, field string
}

type mappingEntry struct {
	standard string
	ok       bool
}

type transformKey struct {
	source, field string
}

// Mapper resolves field names and applies value transformations.
// Safe for concurrent use.
type Mapper struct {
	rules    Rules
	messages MessageSink
	logger   *slog.Logger
	metrics  *metrics.Metrics
	policy   UnmappedPolicy

	mu         sync.RWMutex
	mappings   map[mappingKey]mappingEntry
	transforms map[transformKey][]compiledRule
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mapper) { m.logger = l }
}

// WithMessages routes configuration errors to the harvest message log.
func WithMessages(sink MessageSink) Option {
	return func(m *Mapper) { m.messages = sink }
}

// WithMetrics enables cache and error counters.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Mapper) { m.metrics = mt }
}

// WithUnmappedPolicy sets the unmapped field policy (default passthrough).
func WithUnmappedPolicy(p UnmappedPolicy) Option {
	return func(m *Mapper) { m.policy = p }
}

// New creates a Mapper over the given rule configuration.
func New(rules Rules, opts ...Option) *Mapper {
	m := &Mapper{
		rules:      rules,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		policy:     UnmappedPassthrough,
		mappings:   make(map[mappingKey]mappingEntry),
		transforms: make(map[transformKey][]compiledRule),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ResolveField returns the standard field for a source field. ok is false
// when no mapping is configured; the miss is cached like a hit.
func (m *Mapper) ResolveField(ctx context.Context, source, sourceField, parentFieldInSource string) (string, bool, error) {
	key := mappingKey{source: source, parent: parentFieldInSource, field: sourceField}

	m.mu.RLock()
	entry, cached := m.mappings[key]
	m.mu.RUnlock()
	if cached {
		m.metrics.CacheHit("mapping")
		return entry.standard, entry.ok, nil
	}
	m.metrics.CacheMiss("mapping")

	standard, ok, err := m.rules.LookupMapping(ctx, source, sourceField, parentFieldInSource)
	if err != nil {
		return "", false, fmt.Errorf("resolve field %s/%s: %w", source, sourceField, err)
	}

	m.mu.Lock()
	m.mappings[key] = mappingEntry{standard: standard, ok: ok}
	m.mu.Unlock()
	return standard, ok, nil
}

// MapField resolves a field and applies the unmapped policy. ok is false
// when the field must be skipped.
func (m *Mapper) MapField(ctx context.Context, source, sourceField, parentFieldInSource string) (string, bool, error) {
	standard, ok, err := m.ResolveField(ctx, source, sourceField, parentFieldInSource)
	if err != nil || ok {
		return standard, ok, err
	}

	m.metrics.IncrementUnmapped(source)
	m.logger.Debug("unmapped field",
		"source", source,
		"field", sourceField,
		"parent", parentFieldInSource,
		"policy", string(m.policy))

	if m.policy != UnmappedPassthrough {
		return "", false, nil
	}
	return PassthroughName(source, sourceField), true, nil
}

// PassthroughName namespaces an unmapped field name.
func PassthroughName(source, sourceField string) string {
	if strings.Contains(sourceField, ".") {
		return sourceField
	}
	return source + "." + sourceField
}

// ClearCache drops every cached mapping and transformation list. Call it
// after changing the rule tables.
func (m *Mapper) ClearCache() {
	m.mu.Lock()
	m.mappings = make(map[mappingKey]mappingEntry)
	m.transforms = make(map[transformKey][]compiledRule)
	m.mu.Unlock()
	m.logger.Info("mapper cache cleared")
}

// reportConfigError logs a rule that could not be used and mirrors it to
// the message log. It never fails.
func (m *Mapper) reportConfigError(ctx context.Context, source string, rule ir.TransformationRule, cerr *ir.Error) {
	m.metrics.IncrementTransformError(source, string(rule.Type))
	m.logger.Warn("transformation skipped",
		"source", source,
		"field", rule.Field,
		"type", string(rule.Type),
		"rule_id", rule.RowID,
		"error", cerr.Error())

	if m.messages == nil {
		return
	}
	msg := fmt.Sprintf("%s %s rule %d (%s): %s", source, rule.Field, rule.RowID, rule.Type, cerr.Error())
	if err := m.messages.AppendMessage(ctx, MessageProcess, "error", msg); err != nil {
		m.logger.Error("append message failed", "error", err)
	}
}
