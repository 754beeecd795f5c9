package models

import "time"

// ExportMetrics is a point-in-time summary of export activity.
type ExportMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DocumentsSucceeded       uint64    `json:"documents_succeeded"`
	DocumentsFailed          uint64    `json:"documents_failed"`
	BatchesTotal             uint64    `json:"batches_total"`
	AverageBatchDurationMs   float64   `json:"average_batch_duration_ms"`
	ArchivedBytes            uint64    `json:"archived_bytes"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
