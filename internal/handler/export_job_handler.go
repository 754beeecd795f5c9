package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/plan-export-api/internal/dto"
	"github.com/noah-isme/plan-export-api/internal/middleware"
	appErrors "github.com/noah-isme/plan-export-api/pkg/errors"
	"github.com/noah-isme/plan-export-api/pkg/response"
)

type exportJobService interface {
	CreateJob(ctx context.Context, req dto.PlanExportRequest) (*dto.ExportJobResponse, error)
	GetStatus(ctx context.Context, id string) (*dto.ExportJobStatusResponse, error)
}

// ExportJobHandler exposes asynchronous export endpoints.
type ExportJobHandler struct {
	jobs exportJobService
}

// NewExportJobHandler constructs the handler.
func NewExportJobHandler(jobs exportJobService) *ExportJobHandler {
	return &ExportJobHandler{jobs: jobs}
}

// Create godoc
// @Summary Queue a plan export
// @Tags Plans
// @Accept json
// @Produce json
// @Param payload body dto.PlanExportRequest true "Export scope"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /plans/export/jobs [post]
func (h *ExportJobHandler) Create(c *gin.Context) {
	var req dto.PlanExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid export payload"))
		return
	}
	middleware.TagExportKind(c, requestedKind(req))
	job, err := h.jobs.CreateJob(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// Status godoc
// @Summary Export job status
// @Tags Plans
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /plans/export/jobs/{id} [get]
func (h *ExportJobHandler) Status(c *gin.Context) {
	status, err := h.jobs.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status)
}
