// Package metrics provides Prometheus metrics for the proctoring service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// riskScoreBuckets spread the [0,100] risk range into deciles.
var riskScoreBuckets = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100} //nolint:gochecknoglobals // constant bucket layout

// Manager manages all Prometheus metrics for the proctoring service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Telemetry ingestion
	eventsReceived     *prometheus.CounterVec
	eventsDecodeErrors prometheus.Counter
	eventsDuplicate    prometheus.Counter
	eventsRejected     *prometheus.CounterVec
	eventsRecorded     prometheus.Counter

	// Risk scoring
	scoringLatency        *prometheus.HistogramVec
	scoringFallbacks      prometheus.Counter
	scoringUpstreamErrors *prometheus.CounterVec
	riskScore             prometheus.Histogram

	// Session lifecycle
	sessionsCreated   prometheus.Counter
	sessionsEnded     prometheus.Counter
	consentRejections prometheus.Counter
	sessionsTotal     prometheus.Gauge
	sessionsActive    prometheus.Gauge

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// WebSocket transport
	wsClients     prometheus.Gauge
	wsConnections prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "proctor",
		subsystem:        "monitor",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.eventsReceived = m.counterVec("events_received_total", "Telemetry events received by source (ws, http)", "source")
	m.eventsDecodeErrors = m.counter("events_decode_errors_total", "Telemetry messages dropped because they could not be decoded")
	m.eventsDuplicate = m.counter("events_duplicate_total", "Telemetry events dropped as duplicates by event id")
	m.eventsRejected = m.counterVec("events_rejected_total", "Telemetry events rejected by the lifecycle controller", "reason")
	m.eventsRecorded = m.counter("events_recorded_total", "Telemetry events appended to a session and scored")

	m.scoringLatency = m.histogramVec("scoring_latency_milliseconds", "Risk scoring latency in milliseconds by strategy", "strategy")
	m.scoringFallbacks = m.counter("scoring_fallback_total", "Scores computed by the local fallback heuristic")
	m.scoringUpstreamErrors = m.counterVec("scoring_upstream_errors_total", "External scoring failures by reason", "reason")
	m.riskScore = m.histogram("risk_score", "Distribution of risk scores written to sessions", riskScoreBuckets)

	m.sessionsCreated = m.counter("sessions_created_total", "Monitored sessions created")
	m.sessionsEnded = m.counter("sessions_ended_total", "Monitored sessions ended")
	m.consentRejections = m.counter("consent_rejections_total", "Session creations rejected for missing consent")
	m.sessionsTotal = m.gauge("sessions", "Sessions held in memory")
	m.sessionsActive = m.gauge("sessions_active", "Sessions without an end time")

	m.queueSize = m.gauge("queue_size", "Current number of queued telemetry events")
	m.queueCapacity = m.gauge("queue_capacity", "Total capacity of the telemetry queue")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Telemetry events enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Telemetry events dequeued")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Telemetry enqueue failures by reason", "reason")

	m.workerCount = m.gauge("worker_count", "Number of telemetry workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Per-event processing latency in milliseconds", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Events a worker failed to record")

	m.wsClients = m.gauge("websocket_clients", "Connected telemetry WebSocket clients")
	m.wsConnections = m.counter("websocket_connections_total", "Accepted telemetry WebSocket connections")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordEventReceived counts an inbound telemetry event from source.
func RecordEventReceived(source string) {
	globalManager.eventsReceived.WithLabelValues(source).Inc()
}

// RecordEventDecodeError counts a dropped, undecodable telemetry message.
func RecordEventDecodeError() {
	globalManager.eventsDecodeErrors.Inc()
}

// RecordEventDuplicate increments the duplicate events counter.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// RecordEventRejected counts an event refused by the lifecycle controller.
func RecordEventRejected(reason string) {
	globalManager.eventsRejected.WithLabelValues(reason).Inc()
}

// RecordEventRecorded counts an event appended and scored.
func RecordEventRecorded() {
	globalManager.eventsRecorded.Inc()
}

// RecordScoringLatency records scoring latency in milliseconds for a strategy.
func RecordScoringLatency(strategy string, latencyMs float64) {
	globalManager.scoringLatency.WithLabelValues(strategy).Observe(latencyMs)
}

// RecordScoringFallback counts a score computed by the fallback heuristic.
func RecordScoringFallback() {
	globalManager.scoringFallbacks.Inc()
}

// RecordScoringUpstreamError counts an external scoring failure.
func RecordScoringUpstreamError(reason string) {
	globalManager.scoringUpstreamErrors.WithLabelValues(reason).Inc()
}

// ObserveRiskScore records a risk score written to a session.
func ObserveRiskScore(score int) {
	globalManager.riskScore.Observe(float64(score))
}

// RecordSessionCreated counts a created session.
func RecordSessionCreated() {
	globalManager.sessionsCreated.Inc()
}

// RecordSessionEnded counts an ended session.
func RecordSessionEnded() {
	globalManager.sessionsEnded.Inc()
}

// RecordConsentRejection counts a session refused for missing consent.
func RecordConsentRejection() {
	globalManager.consentRejections.Inc()
}

// UpdateSessions sets the total and active session gauges.
func UpdateSessions(total, active int) {
	globalManager.sessionsTotal.Set(float64(total))
	globalManager.sessionsActive.Set(float64(active))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an enqueued event.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue counts a dequeued event.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts an enqueue failure.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records per-event worker latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts an event a worker failed to record.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// UpdateWebSocketClients sets the connected client gauge.
func UpdateWebSocketClients(count int) {
	globalManager.wsClients.Set(float64(count))
}

// RecordWebSocketConnection counts an accepted connection.
func RecordWebSocketConnection() {
	globalManager.wsConnections.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records errors by component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets memory usage in bytes.
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
