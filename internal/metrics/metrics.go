// Package metrics exposes harvest counters and timings for Prometheus.
//
// A Metrics value owns its registry so that every harvest run (and every
// test) starts from zero. All methods are safe on a nil *Metrics, which
// components use when metrics are disabled.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for mapping, reconciliation and harvesting.
type Metrics struct {
	registry *prometheus.Registry

	CacheLookups    *prometheus.CounterVec
	UnmappedFields  *prometheus.CounterVec
	TransformErrors *prometheus.CounterVec
	Records         *prometheus.CounterVec
	Writes          *prometheus.CounterVec
	RecordDuration  prometheus.Histogram
	FetchDuration   *prometheus.HistogramVec
}

// New creates a Metrics instance with all harvest metrics registered on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "irts_rule_cache_lookups_total",
			Help: "Mapping and transformation cache lookups by cache and result",
		}, []string{"cache", "result"}),
		UnmappedFields: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "irts_unmapped_fields_total",
			Help: "Source fields without a configured mapping",
		}, []string{"source"}),
		TransformErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "irts_transform_errors_total",
			Help: "Transformation rules skipped because they failed to apply",
		}, []string{"source", "type"}),
		Records: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "irts_records_total",
			Help: "Harvested records by source and outcome",
		}, []string{"source", "outcome"}),
		Writes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "irts_reconcile_writes_total",
			Help: "Fact store writes issued by the tree reconciler",
		}, []string{"op"}),
		RecordDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "irts_record_duration_seconds",
			Help:    "Duration of processing one record (map, resolve, reconcile)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "irts_fetch_duration_seconds",
			Help:    "Duration of source HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
	}
}

// Registry returns the registry backing this instance.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// CacheHit records a cache hit for cache ("mapping" or "transform").
func (m *Metrics) CacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(cache, "hit").Inc()
}

// CacheMiss records a cache miss for cache.
func (m *Metrics) CacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(cache, "miss").Inc()
}

// IncrementUnmapped records a source field that had no mapping.
func (m *Metrics) IncrementUnmapped(source string) {
	if m == nil {
		return
	}
	m.UnmappedFields.WithLabelValues(source).Inc()
}

// IncrementTransformError records a skipped transformation rule.
func (m *Metrics) IncrementTransformError(source, transformType string) {
	if m == nil {
		return
	}
	m.TransformErrors.WithLabelValues(source, transformType).Inc()
}

// IncrementRecord records the outcome of one harvested record.
func (m *Metrics) IncrementRecord(source, outcome string) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(source, outcome).Inc()
}

// AddWrites records n reconciler writes of kind op.
func (m *Metrics) AddWrites(op string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Writes.WithLabelValues(op).Add(float64(n))
}

// ObserveRecord records the duration of processing one record.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRecord(start time.Time) {
	if m == nil {
		return
	}
	m.RecordDuration.Observe(time.Since(start).Seconds())
}

// ObserveFetch records the duration of one source request.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveFetch(source string, start time.Time) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
}

// WriteTextfile writes the current values in the Prometheus text format,
// for pickup by a node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
