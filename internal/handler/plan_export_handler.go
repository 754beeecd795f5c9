package handler

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/plan-export-api/internal/dto"
	"github.com/noah-isme/plan-export-api/internal/middleware"
	"github.com/noah-isme/plan-export-api/internal/models"
	"github.com/noah-isme/plan-export-api/internal/service"
	appErrors "github.com/noah-isme/plan-export-api/pkg/errors"
	"github.com/noah-isme/plan-export-api/pkg/response"
)

var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".zip":  "application/zip",
}

type planExportService interface {
	Export(ctx context.Context, req dto.PlanExportRequest) (*service.ExportResult, error)
	ResolveDownload(token string) (*service.Download, error)
}

type metricsSnapshotter interface {
	Snapshot() models.ExportMetrics
}

// PlanExportHandler exposes synchronous plan export endpoints.
type PlanExportHandler struct {
	exports planExportService
	metrics metricsSnapshotter
}

// NewPlanExportHandler constructs the handler. metrics may be nil.
func NewPlanExportHandler(exports planExportService, metrics metricsSnapshotter) *PlanExportHandler {
	return &PlanExportHandler{exports: exports, metrics: metrics}
}

// Export godoc
// @Summary Export student plans
// @Description Exports one student's document when studentId is set (classId then selects the class, "all" or empty for every term). Without studentId every student of classId is exported and archived.
// @Tags Plans
// @Accept json
// @Produce json
// @Param payload body dto.PlanExportRequest true "Export scope"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /plans/export [post]
func (h *PlanExportHandler) Export(c *gin.Context) {
	var req dto.PlanExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid export payload"))
		return
	}
	middleware.TagExportKind(c, requestedKind(req))
	result, err := h.exports.Export(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.PlanExportResponse{
		Kind:      result.Kind,
		Filename:  result.Filename,
		URL:       result.URL,
		ExpiresAt: result.ExpiresAt,
		Total:     result.Total,
		Failures:  result.Failures,
	})
}

func requestedKind(req dto.PlanExportRequest) models.ExportKind {
	if strings.TrimSpace(req.StudentID) != "" {
		return models.ExportKindSingle
	}
	return models.ExportKindClass
}

// Download godoc
// @Summary Download an exported document or archive
// @Tags Plans
// @Produce application/octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /plans/download/{token} [get]
func (h *PlanExportHandler) Download(c *gin.Context) {
	download, err := h.exports.ResolveDownload(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to stat export file"))
		return
	}
	contentType, ok := contentTypes[strings.ToLower(filepath.Ext(download.Filename))]
	if !ok {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	c.Header("Cache-Control", "no-store")
	c.Header("X-Expires-At", download.ExpiresAt.UTC().Format(time.RFC3339))
	c.DataFromReader(http.StatusOK, info.Size(), contentType, download.File, nil)
}

// Stats godoc
// @Summary Export activity summary
// @Tags Plans
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /plans/export/stats [get]
func (h *PlanExportHandler) Stats(c *gin.Context) {
	if h.metrics == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "metrics disabled"))
		return
	}
	response.JSON(c, http.StatusOK, h.metrics.Snapshot())
}
