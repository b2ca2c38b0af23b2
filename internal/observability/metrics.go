// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	TouchpointsIngested *prometheus.CounterVec
	ConversionsIngested prometheus.Counter
	DuplicatesSkipped   *prometheus.CounterVec
	IngestErrors        *prometheus.CounterVec
	SourceMessages      *prometheus.CounterVec
	SourceReconnects    *prometheus.CounterVec
	CacheInvalidations  prometheus.Counter

	// Attribution metrics
	ReportsComputed   *prometheus.CounterVec
	ReportDuration    *prometheus.HistogramVec
	JourneysBuilt     prometheus.Counter
	JourneyLength     prometheus.Histogram
	AllocationErrors  *prometheus.CounterVec
	CacheLookups      *prometheus.CounterVec
	RollupRowsWritten prometheus.Counter

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulIngestion prometheus.Gauge
	LastSuccessfulReport    prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg registers with the default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "attribution_engine"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		// Ingestion metrics
		TouchpointsIngested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "touchpoints_total",
			Help:      "Total number of touchpoints stored by channel",
		}, []string{"channel"}),
		ConversionsIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "conversions_total",
			Help:      "Total number of conversion touchpoints stored",
		}),
		DuplicatesSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "duplicates_total",
			Help:      "Total number of idempotent re-submissions by key",
		}, []string{"key"}),
		IngestErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "errors_total",
			Help:      "Total number of ingestion errors by type",
		}, []string{"error_type"}),
		SourceMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "source_messages_total",
			Help:      "Total number of messages received by source",
		}, []string{"source"}),
		SourceReconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "source_reconnects_total",
			Help:      "Total number of source reconnects",
		}, []string{"source"}),
		CacheInvalidations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidated_entries_total",
			Help:      "Total number of cached reports invalidated by ingestion",
		}),

		// Attribution metrics
		ReportsComputed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attribution",
			Name:      "reports_total",
			Help:      "Total number of reports by kind and model",
		}, []string{"kind", "model"}),
		ReportDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "attribution",
			Name:      "report_duration_seconds",
			Help:      "Report computation duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"kind"}),
		JourneysBuilt: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attribution",
			Name:      "journeys_built_total",
			Help:      "Total number of journeys reconstructed",
		}),
		JourneyLength: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "attribution",
			Name:      "journey_length",
			Help:      "Number of steps per journey after collapse",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
		}),
		AllocationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attribution",
			Name:      "allocation_errors_total",
			Help:      "Total number of failed allocations by model",
		}, []string{"model"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of cache lookups by result",
		}, []string{"result"}),
		RollupRowsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rollup",
			Name:      "rows_written_total",
			Help:      "Total number of rollup rows written",
		}),

		// HTTP metrics
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		// Database metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulIngestion: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix timestamp of last successful ingestion",
		}),
		LastSuccessfulReport: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_report_timestamp",
			Help:      "Unix timestamp of last successful report computation",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordTouchpoint records a stored touchpoint.
func RecordTouchpoint(channel string, conversion bool, unixSeconds float64) {
	DefaultMetrics.TouchpointsIngested.WithLabelValues(channel).Inc()
	if conversion {
		DefaultMetrics.ConversionsIngested.Inc()
	}
	DefaultMetrics.LastSuccessfulIngestion.Set(unixSeconds)
}

// RecordDuplicate records an idempotent re-submission.
// key is "touchpoint_id" or "order_id".
func RecordDuplicate(key string) {
	DefaultMetrics.DuplicatesSkipped.WithLabelValues(key).Inc()
}

// RecordIngestError records an ingestion error.
func RecordIngestError(errorType string) {
	DefaultMetrics.IngestErrors.WithLabelValues(errorType).Inc()
}

// RecordSourceMessage records a message received from a streaming source.
func RecordSourceMessage(source string) {
	DefaultMetrics.SourceMessages.WithLabelValues(source).Inc()
}

// RecordSourceReconnect records a streaming source reconnect.
func RecordSourceReconnect(source string) {
	DefaultMetrics.SourceReconnects.WithLabelValues(source).Inc()
}

// RecordCacheInvalidation records cached entries dropped by an ingest.
func RecordCacheInvalidation(n int) {
	DefaultMetrics.CacheInvalidations.Add(float64(n))
}

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.CacheLookups.WithLabelValues(result).Inc()
}

// RecordReport records a computed report.
func RecordReport(kind, model string, durationSeconds, unixSeconds float64) {
	DefaultMetrics.ReportsComputed.WithLabelValues(kind, model).Inc()
	DefaultMetrics.ReportDuration.WithLabelValues(kind).Observe(durationSeconds)
	DefaultMetrics.LastSuccessfulReport.Set(unixSeconds)
}

// RecordJourney records a reconstructed journey.
func RecordJourney(steps int) {
	DefaultMetrics.JourneysBuilt.Inc()
	DefaultMetrics.JourneyLength.Observe(float64(steps))
}

// RecordAllocationError records a failed allocation.
func RecordAllocationError(model string) {
	DefaultMetrics.AllocationErrors.WithLabelValues(model).Inc()
}

// RecordRollupRows records rollup rows written.
func RecordRollupRows(n int) {
	DefaultMetrics.RollupRowsWritten.Add(float64(n))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, route, status string, seconds float64) {
	DefaultMetrics.HTTPRequests.WithLabelValues(method, route, status).Inc()
	DefaultMetrics.HTTPDuration.WithLabelValues(method, route).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
