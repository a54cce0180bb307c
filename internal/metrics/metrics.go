// Package metrics provides Prometheus collectors for the wrapped pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricRecordsDroppedTotal    = "wrapped_records_dropped_total"
	MetricDuplicatesRemovedTotal = "wrapped_duplicates_removed_total"
	MetricEnrichLookupsTotal     = "wrapped_enrich_lookups_total"
	MetricEnrichRateLimitedTotal = "wrapped_enrich_rate_limited_total"
	MetricEnrichBatchDuration    = "wrapped_enrich_batch_duration_seconds"
	MetricPipelineRunsTotal      = "wrapped_pipeline_runs_total"
)

// Lookup results for MetricEnrichLookupsTotal.
const (
	LookupCacheHit = "cache_hit"
	LookupStoreHit = "store_hit"
	LookupFetched  = "fetched"
	LookupNotFound = "not_found"
	LookupFailed   = "failed"
	LookupSkipped  = "skipped"
)

// Run statuses for MetricPipelineRunsTotal.
const (
	StatusSuccess = "success"
	StatusEmpty   = "empty"
	StatusFailure = "failure"
)

// Metrics contains the pipeline collectors. A nil *Metrics is valid and
// records nothing, so components can take it as an optional dependency.
type Metrics struct {
	recordsDropped    *prometheus.CounterVec
	duplicatesRemoved prometheus.Counter
	enrichLookups     *prometheus.CounterVec
	enrichRateLimited prometheus.Counter
	batchDuration     prometheus.Histogram
	pipelineRuns      *prometheus.CounterVec
}

// NewMetrics creates the collectors without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		recordsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRecordsDroppedTotal,
				Help: "Export records dropped during normalization, by reason",
			},
			[]string{"reason"},
		),
		duplicatesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricDuplicatesRemovedTotal,
			Help: "Play events removed as duplicates of overlapping exports",
		}),
		enrichLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricEnrichLookupsTotal,
				Help: "Feature lookups by result",
			},
			[]string{"result"},
		),
		enrichRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEnrichRateLimitedTotal,
			Help: "Rate-limit signals received from the feature service",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricEnrichBatchDuration,
			Help:    "Duration of feature batch lookups including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		pipelineRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricPipelineRunsTotal,
				Help: "Pipeline runs by status",
			},
			[]string{"status"},
		),
	}
}

// Collectors returns every collector, for registration and tests.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.recordsDropped,
		m.duplicatesRemoved,
		m.enrichLookups,
		m.enrichRateLimited,
		m.batchDuration,
		m.pipelineRuns,
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// AddDropped counts records dropped for reason.
func (m *Metrics) AddDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsDropped.WithLabelValues(reason).Add(float64(n))
}

// AddDuplicates counts removed duplicate events.
func (m *Metrics) AddDuplicates(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.duplicatesRemoved.Add(float64(n))
}

// AddLookups counts n feature lookups with the given result.
func (m *Metrics) AddLookups(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.enrichLookups.WithLabelValues(result).Add(float64(n))
}

// IncRateLimited counts one rate-limit signal.
func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.enrichRateLimited.Inc()
}

// ObserveBatch records the duration of one batch lookup in seconds.
func (m *Metrics) ObserveBatch(seconds float64) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(seconds)
}

// IncRuns counts one pipeline run with status.
func (m *Metrics) IncRuns(status string) {
	if m == nil {
		return
	}
	m.pipelineRuns.WithLabelValues(status).Inc()
}
