// Package metrics provides Prometheus metrics for the trending score engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Recalculation job
	recalculations        *prometheus.CounterVec
	recalculationDuration *prometheus.HistogramVec
	itemsScored           *prometheus.CounterVec
	itemFailures          *prometheus.CounterVec
	snapshotsRemoved      *prometheus.CounterVec
	snapshotRows          *prometheus.GaugeVec

	// Read path
	rankingQueries   *prometheus.CounterVec
	rankingLatency   *prometheus.HistogramVec
	fallbackComputes prometheus.Counter
	fallbackShared   prometheus.Counter
	fallbackErrors   prometheus.Counter
	storeRetries     *prometheus.CounterVec

	// Builder fan-out
	queueSize          prometheus.Gauge
	queueRejected      *prometheus.CounterVec
	workerBusy         prometheus.Gauge
	workerTaskDuration prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// Process
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "trendscore",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.recalculations = m.counterVec("recalculations_total",
		"Window recalculations by outcome (success, partial, skipped, failed)", "window", "outcome")
	m.recalculationDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "recalculation_duration_seconds",
		Help:        "Duration of one window recalculation",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"window"})
	m.itemsScored = m.counterVec("items_scored_total", "Items scored by recalculation runs", "window")
	m.itemFailures = m.counterVec("item_failures_total", "Items whose scoring failed and kept their previous snapshot", "window")
	m.snapshotsRemoved = m.counterVec("snapshots_removed_total", "Snapshot rows removed because their item no longer exists", "window")
	m.snapshotRows = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "snapshot_rows",
		Help:        "Snapshot rows per window after the last write",
		ConstLabels: m.customLabels,
	}, []string{"window"})

	m.rankingQueries = m.counterVec("ranking_queries_total", "Ranking queries by lens, window and source", "lens", "window", "source")
	m.rankingLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "ranking_query_duration_seconds",
		Help:        "Ranking query latency by source",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"source"})
	m.fallbackComputes = m.counter("fallback_computations_total", "Live fallback computations executed")
	m.fallbackShared = m.counter("fallback_shared_total", "Fallback requests answered by an in-flight computation")
	m.fallbackErrors = m.counter("fallback_errors_total", "Fallback computations that failed")
	m.storeRetries = m.counterVec("store_retries_total", "Store calls retried after a transient failure", "operation")

	m.queueSize = m.gauge("queue_size", "Scoring tasks waiting in the builder queue")
	m.queueRejected = m.counterVec("queue_rejected_total", "Scoring tasks refused by the builder queue", "reason")
	m.workerBusy = m.gauge("worker_busy", "Workers currently scoring an item")
	m.workerTaskDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "worker_task_duration_seconds",
		Help:        "Time to read and score one item",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	})

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_seconds",
		Help:        "HTTP request duration in seconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_gc_pause_time_milliseconds",
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: m.customLabels,
	})
}

// Recalculation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Ranking query sources.
const (
	SourceSnapshot = "snapshot"
	SourceFallback = "fallback"
	SourceError    = "error"
)

// RecordRecalculation counts one window recalculation.
func RecordRecalculation(window, outcome string) {
	globalManager.recalculations.WithLabelValues(window, outcome).Inc()
}

// RecordRecalculationDuration observes a window recalculation in seconds.
func RecordRecalculationDuration(window string, seconds float64) {
	globalManager.recalculationDuration.WithLabelValues(window).Observe(seconds)
}

// RecordItemsScored adds scored items for a window.
func RecordItemsScored(window string, n int) {
	globalManager.itemsScored.WithLabelValues(window).Add(float64(n))
}

// RecordItemFailures adds failed items for a window.
func RecordItemFailures(window string, n int) {
	globalManager.itemFailures.WithLabelValues(window).Add(float64(n))
}

// RecordSnapshotsRemoved adds removed snapshot rows for a window.
func RecordSnapshotsRemoved(window string, n int) {
	globalManager.snapshotsRemoved.WithLabelValues(window).Add(float64(n))
}

// UpdateSnapshotRows sets the snapshot row count of a window.
func UpdateSnapshotRows(window string, n int) {
	globalManager.snapshotRows.WithLabelValues(window).Set(float64(n))
}

// RecordRankingQuery counts one ranking query.
func RecordRankingQuery(lens, window, source string) {
	globalManager.rankingQueries.WithLabelValues(lens, window, source).Inc()
}

// RecordRankingLatency observes a ranking query in seconds.
func RecordRankingLatency(source string, seconds float64) {
	globalManager.rankingLatency.WithLabelValues(source).Observe(seconds)
}

// RecordFallbackComputation counts an executed fallback computation.
func RecordFallbackComputation() {
	globalManager.fallbackComputes.Inc()
}

// RecordFallbackShared counts a fallback request served by a shared computation.
func RecordFallbackShared() {
	globalManager.fallbackShared.Inc()
}

// RecordFallbackError counts a failed fallback computation.
func RecordFallbackError() {
	globalManager.fallbackErrors.Inc()
}

// RecordStoreRetry counts a retried store operation.
func RecordStoreRetry(operation string) {
	globalManager.storeRetries.WithLabelValues(operation).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// RecordQueueRejected counts a refused enqueue.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// AddWorkerBusy moves the busy worker gauge by delta.
func AddWorkerBusy(delta int) {
	globalManager.workerBusy.Add(float64(delta))
}

// RecordWorkerTaskDuration observes one worker task in seconds.
func RecordWorkerTaskDuration(seconds float64) {
	globalManager.workerTaskDuration.Observe(seconds)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent counts an error of errorType in component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
