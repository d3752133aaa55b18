// Package metrics provides Prometheus metrics for the picup uploader.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for picup.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Upload outcomes
	uploads        *prometheus.CounterVec
	uploadLatency  *prometheus.HistogramVec
	uploadBytes    *prometheus.CounterVec
	blobFailures   prometheus.Counter
	duplicatePaths prometheus.Counter

	// Remote API calls (GitHub, Alist)
	apiRequests        *prometheus.CounterVec
	apiRequestDuration *prometheus.HistogramVec

	// Directory listing
	storedImages prometheus.Gauge
	storedDirs   prometheus.Gauge

	// Queue
	queueCapacity      prometheus.Gauge
	queueSize          prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueDequeue       prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP API
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "picup",
		subsystem:        "uploader",
		histogramBuckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
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
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
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

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.uploads = m.counterVec("uploads_total", "Total number of image uploads by backend and outcome", "backend", "status")
	m.uploadLatency = m.histogramVec("upload_latency_milliseconds", "End-to-end upload latency in milliseconds", "backend")
	m.uploadBytes = m.counterVec("upload_bytes_total", "Total number of image bytes sent", "backend")
	m.blobFailures = m.counter("blob_failures_total", "Images skipped in a batch because their blob could not be created")
	m.duplicatePaths = m.counter("duplicate_paths_total", "Uploads rejected because another upload claimed the same path")

	m.apiRequests = m.counterVec("api_requests_total", "Remote API requests by backend, endpoint and status code", "backend", "endpoint", "status_code")
	m.apiRequestDuration = m.histogramVec("api_request_duration_milliseconds", "Remote API request duration in milliseconds", "backend", "endpoint")

	m.storedImages = m.gauge("stored_images", "Images recorded in the directory listing")
	m.storedDirs = m.gauge("stored_dirs", "Directories recorded in the directory listing")

	m.queueCapacity = m.gauge("queue_capacity", "Maximum capacity of the upload job queue")
	m.queueSize = m.gauge("queue_size", "Current number of queued upload jobs")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (0.0 to 1.0)")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Total number of jobs enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Total number of jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of rejected enqueue attempts")

	m.workerActiveCount = m.gauge("worker_active_count", "Number of running upload workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Job processing latency in milliseconds")
	m.workerErrors = m.counter("worker_errors_total", "Total number of failed jobs")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by HTTP endpoint", "endpoint", "method", "error_type")
}

// RecordUpload counts one upload attempt with its outcome ("success" or "failure").
func RecordUpload(backend, status string) {
	globalManager.uploads.WithLabelValues(backend, status).Inc()
}

// RecordUploadLatency records upload latency in milliseconds.
func RecordUploadLatency(backend string, latencyMs float64) {
	globalManager.uploadLatency.WithLabelValues(backend).Observe(latencyMs)
}

// RecordUploadBytes adds n bytes to the uploaded bytes counter.
func RecordUploadBytes(backend string, n int64) {
	if n > 0 {
		globalManager.uploadBytes.WithLabelValues(backend).Add(float64(n))
	}
}

// RecordBlobFailure increments the blob failure counter.
func RecordBlobFailure() {
	globalManager.blobFailures.Inc()
}

// RecordDuplicatePath increments the duplicate path counter.
func RecordDuplicatePath() {
	globalManager.duplicatePaths.Inc()
}

// RecordAPIRequest records a remote API call.
func RecordAPIRequest(backend, endpoint, statusCode string, durationMs float64) {
	globalManager.apiRequests.WithLabelValues(backend, endpoint, statusCode).Inc()
	globalManager.apiRequestDuration.WithLabelValues(backend, endpoint).Observe(durationMs)
}

// UpdateStoredImages sets the number of images in the directory listing.
func UpdateStoredImages(count int) {
	globalManager.storedImages.Set(float64(count))
}

// UpdateStoredDirs sets the number of directories in the directory listing.
func UpdateStoredDirs(count int) {
	globalManager.storedDirs.Set(float64(count))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueSize sets the current queue size and derived utilization.
func UpdateQueueSize(size, capacity int) {
	globalManager.queueSize.Set(float64(size))
	if capacity > 0 {
		globalManager.queueUtilization.Set(float64(size) / float64(capacity))
	}
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

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records job processing latency in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByComponent records an error for a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error for an HTTP endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// GetRegistry returns the custom registry that holds picup metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
