package dto

import (
	"time"

	"github.com/noah-isme/plan-export-api/internal/models"
)

// PlanExportRequest captures the POST /plans/export payload. A studentId
// selects a single export scoped by classId (empty or "all" for every term);
// without it the whole class identified by classId is exported.
type PlanExportRequest struct {
	StudentID string `json:"studentId" validate:"max=64"`
	ClassID   string `json:"classId" validate:"required_without=StudentID,max=64"`
}

// PlanExportResponse references the produced artifact.
type PlanExportResponse struct {
	Kind      models.ExportKind      `json:"kind"`
	Filename  string                 `json:"filename"`
	URL       string                 `json:"url"`
	ExpiresAt time.Time              `json:"expiresAt"`
	Total     int                    `json:"total,omitempty"`
	Failures  []models.ExportFailure `json:"failures,omitempty"`
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID     string                 `json:"id"`
	Kind   models.ExportKind      `json:"kind"`
	Status models.ExportJobStatus `json:"status"`
}

// ExportJobStatusResponse exposes job progress metadata.
type ExportJobStatusResponse struct {
	ID         string                 `json:"id"`
	Kind       models.ExportKind      `json:"kind"`
	Status     models.ExportJobStatus `json:"status"`
	ResultURL  *string                `json:"resultUrl,omitempty"`
	Failures   []models.ExportFailure `json:"failures,omitempty"`
	Error      *string                `json:"error,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
	FinishedAt *time.Time             `json:"finishedAt,omitempty"`
}
