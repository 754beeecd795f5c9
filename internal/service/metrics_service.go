package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/plan-export-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	documents       *prometheus.CounterVec
	batches         *prometheus.CounterVec
	batchDuration   *prometheus.HistogramVec
	archiveSize     prometheus.Histogram

	requestCount         uint64
	requestDurationTotal uint64
	documentsOK          uint64
	documentsFailed      uint64
	batchCount           uint64
	batchDurationTotal   uint64
	archivedBytes        uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "export_kind", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "export_kind", "status"})

	documents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plan_export_documents_total",
		Help: "Generated student documents by outcome",
	}, []string{"outcome"})

	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plan_export_runs_total",
		Help: "Export runs by kind and outcome",
	}, []string{"kind", "outcome"})

	batchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "plan_export_run_duration_seconds",
		Help:    "Duration of export runs",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"kind"})

	archiveSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "plan_export_archive_bytes",
		Help:    "Size of assembled class archives",
		Buckets: prometheus.ExponentialBuckets(16*1024, 4, 8),
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, documents, batches, batchDuration, archiveSize, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		documents:       documents,
		batches:         batches,
		batchDuration:   batchDuration,
		archiveSize:     archiveSize,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path, exportKind string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, exportKind, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, exportKind, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordDocument counts one generated (or failed) student document.
func (m *MetricsService) RecordDocument(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.documents.WithLabelValues("success").Inc()
		atomic.AddUint64(&m.documentsOK, 1)
		return
	}
	m.documents.WithLabelValues("failure").Inc()
	atomic.AddUint64(&m.documentsFailed, 1)
}

// RecordRun tracks the outcome and duration of a single or class export.
func (m *MetricsService) RecordRun(kind models.ExportKind, outcome models.ExportOutcome, duration time.Duration) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(string(kind), string(outcome)).Inc()
	m.batchDuration.WithLabelValues(string(kind)).Observe(duration.Seconds())
	atomic.AddUint64(&m.batchCount, 1)
	atomic.AddUint64(&m.batchDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveArchive records the size of an assembled archive.
func (m *MetricsService) ObserveArchive(size int64) {
	if m == nil || size < 0 {
		return
	}
	m.archiveSize.Observe(float64(size))
	atomic.AddUint64(&m.archivedBytes, uint64(size))
}

// Snapshot returns aggregated metrics suitable for the stats endpoint.
func (m *MetricsService) Snapshot() models.ExportMetrics {
	if m == nil {
		return models.ExportMetrics{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	batches := atomic.LoadUint64(&m.batchCount)
	batchDuration := atomic.LoadUint64(&m.batchDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}
	var avgBatchMs float64
	if batches > 0 {
		avgBatchMs = float64(batchDuration) / float64(batches) / float64(time.Millisecond)
	}

	return models.ExportMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		DocumentsSucceeded:       atomic.LoadUint64(&m.documentsOK),
		DocumentsFailed:          atomic.LoadUint64(&m.documentsFailed),
		BatchesTotal:             batches,
		AverageBatchDurationMs:   avgBatchMs,
		ArchivedBytes:            atomic.LoadUint64(&m.archivedBytes),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
