// Package metrics provides Prometheus metrics for the extension host.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the extension host.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec
	errorRateByType     *prometheus.CounterVec

	// Upstream platform calls
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec

	// Visitor/session caches
	cacheEvents *prometheus.CounterVec
	cacheSize   *prometheus.GaugeVec

	// Kill queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueDequeue       prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Kill workers
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	jobKills                *prometheus.CounterVec

	// Extension outcomes
	dagOperations *prometheus.CounterVec
	healthChecks  *prometheus.CounterVec
	chatStreams   *prometheus.CounterVec
	mcpToolCalls  *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "connect",
		subsystem:        "extensions",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		constLabels:      prometheus.Labels{},
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
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

//nolint:funlen // one place for every metric definition
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Total number of errors by endpoint", "endpoint", "method", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total",
		"Total number of errors by type", "error_type", "severity")

	m.upstreamRequests = m.counterVec("upstream_requests_total",
		"Calls made to the platform API by operation and status", "operation", "status_code")
	m.upstreamLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "upstream_latency_milliseconds",
		Help:        "Platform API call latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"operation"})

	m.cacheEvents = m.counterVec("cache_events_total",
		"Cache hits, misses and expirations", "cache", "event")
	m.cacheSize = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "cache_entries",
		Help:        "Live entries per cache",
		ConstLabels: m.constLabels,
	}, []string{"cache"})

	m.queueSize = m.gauge("kill_queue_size", "Pending job kill requests")
	m.queueCapacity = m.gauge("kill_queue_capacity", "Maximum pending job kill requests")
	m.queueEnqueue = m.counter("kill_queue_enqueue_total", "Job kill requests enqueued")
	m.queueDequeue = m.counter("kill_queue_dequeue_total", "Job kill requests dequeued")
	m.queueEnqueueErrors = m.counter("kill_queue_enqueue_errors_total", "Job kill requests rejected by a full queue")

	m.workerActiveCount = m.gauge("worker_active_count", "Number of running kill workers")
	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "worker_processing_latency_milliseconds",
		Help:        "Time from destroy request to terminal job state",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})
	m.jobKills = m.counterVec("job_kills_total", "Job kill outcomes", "outcome")

	m.dagOperations = m.counterVec("dag_operations_total", "DAG builder operations", "operation", "outcome")
	m.healthChecks = m.counterVec("health_checks_total", "Content health check results", "status")
	m.chatStreams = m.counterVec("chat_streams_total", "Chat completions streamed", "outcome")
	m.mcpToolCalls = m.counterVec("mcp_tool_calls_total", "MCP tool invocations", "tool", "outcome")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_gc_pause_time_milliseconds",
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: m.constLabels,
	})
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordUpstreamRequest records one platform API call.
func RecordUpstreamRequest(operation, statusCode string, latencyMs float64) {
	globalManager.upstreamRequests.WithLabelValues(operation, statusCode).Inc()
	globalManager.upstreamLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordCacheHit counts a cache lookup that found a live entry.
func RecordCacheHit(cache string) {
	globalManager.cacheEvents.WithLabelValues(cache, "hit").Inc()
}

// RecordCacheMiss counts a cache lookup that found nothing.
func RecordCacheMiss(cache string) {
	globalManager.cacheEvents.WithLabelValues(cache, "miss").Inc()
}

// RecordCacheExpired counts entries dropped after their TTL.
func RecordCacheExpired(cache string) {
	globalManager.cacheEvents.WithLabelValues(cache, "expired").Inc()
}

// UpdateCacheSize sets the live entry count of a cache.
func UpdateCacheSize(cache string, size int) {
	globalManager.cacheSize.WithLabelValues(cache).Set(float64(size))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueue.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeue.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordJobKill records the outcome of a job kill: "terminated", "timeout", "failed".
func RecordJobKill(outcome string) {
	globalManager.jobKills.WithLabelValues(outcome).Inc()
}

// RecordDAGOperation records a DAG builder operation outcome.
func RecordDAGOperation(operation, outcome string) {
	globalManager.dagOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordHealthCheck records a content health check status (PASS/FAIL).
func RecordHealthCheck(status string) {
	globalManager.healthChecks.WithLabelValues(status).Inc()
}

// RecordChatStream records a chat completion outcome.
func RecordChatStream(outcome string) {
	globalManager.chatStreams.WithLabelValues(outcome).Inc()
}

// RecordMCPToolCall records an MCP tool invocation.
func RecordMCPToolCall(tool, outcome string) {
	globalManager.mcpToolCalls.WithLabelValues(tool, outcome).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
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
