package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/plan-export-api/internal/dto"
	"github.com/noah-isme/plan-export-api/internal/models"
	"github.com/noah-isme/plan-export-api/internal/repository"
	appErrors "github.com/noah-isme/plan-export-api/pkg/errors"
	"github.com/noah-isme/plan-export-api/pkg/jobs"
)

const markFailedTimeout = 5 * time.Second

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type planExporter interface {
	ExportSingle(ctx context.Context, schoolID string, scope models.ClassScope) (*ExportResult, error)
	ExportClass(ctx context.Context, classID string) (*ExportResult, error)
}

// ExportJobService manages the lifecycle of asynchronous export jobs.
type ExportJobService struct {
	repo     exportJobStore
	queue    jobDispatcher
	validate *validator.Validate
	logger   *zap.Logger
}

// NewExportJobService constructs the service.
func NewExportJobService(repo exportJobStore, queue jobDispatcher, logger *zap.Logger) *ExportJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportJobService{repo: repo, queue: queue, validate: validator.New(), logger: logger}
}

// CreateJob validates the request, persists a queued job and enqueues it.
func (s *ExportJobService) CreateJob(ctx context.Context, req dto.PlanExportRequest) (*dto.ExportJobResponse, error) {
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.ClassID = strings.TrimSpace(req.ClassID)
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentId or classId is required")
	}

	job := &models.ExportJob{Status: models.ExportJobQueued}
	if req.StudentID != "" {
		job.Kind = models.ExportKindSingle
		job.Params = models.ExportJobParams{SchoolID: req.StudentID, Scope: models.ClassScope(req.ClassID)}
	} else {
		job.Kind = models.ExportKindClass
		job.Params = models.ExportJobParams{ClassID: req.ClassID}
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Kind)}); err != nil {
		status := models.ExportJobFailed
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		if updateErr := s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
			Status:       &status,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		}); updateErr != nil {
			s.logger.Sugar().Warnw("failed to mark job failed", "job_id", job.ID, "error", updateErr)
		}
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to enqueue export job")
	}
	return &dto.ExportJobResponse{ID: job.ID, Kind: job.Kind, Status: job.Status}, nil
}

// GetStatus exposes job metadata to clients.
func (s *ExportJobService) GetStatus(ctx context.Context, id string) (*dto.ExportJobStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to load export job")
	}
	resp := &dto.ExportJobStatusResponse{
		ID:         job.ID,
		Kind:       job.Kind,
		Status:     job.Status,
		ResultURL:  job.ResultURL,
		Failures:   job.Failures,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// RecoverPendingJobs replays queued jobs (e.g. after process restart).
func (s *ExportJobService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued export jobs", "error", err)
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Kind)}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending job", "job_id", job.ID, "error", err)
		}
	}
}

// IsRetryable reports whether a failed export may succeed on another
// attempt. Missing records and per-student failures are final.
func IsRetryable(err error) bool {
	for _, final := range []*appErrors.Error{
		appErrors.ErrValidation,
		appErrors.ErrNotFound,
		appErrors.ErrProfileNotFound,
		appErrors.ErrClassEmpty,
		appErrors.ErrBatchExportFailed,
	} {
		if errors.Is(err, final) {
			return false
		}
	}
	return true
}

// ExportJobWorker bridges queue jobs to the export coordinator.
type ExportJobWorker struct {
	repo     exportJobStore
	exporter planExporter
	logger   *zap.Logger
}

// NewExportJobWorker constructs a worker.
func NewExportJobWorker(repo exportJobStore, exporter planExporter, logger *zap.Logger) *ExportJobWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportJobWorker{repo: repo, exporter: exporter, logger: logger}
}

// Handle processes a queue job. Failures leave the job queued with the last
// error; the queue decides whether it is retried or given up via MarkFailed.
func (w *ExportJobWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	processing := models.ExportJobProcessing
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{Status: &processing}); err != nil {
		return err
	}

	var result *ExportResult
	switch record.Kind {
	case models.ExportKindSingle:
		result, err = w.exporter.ExportSingle(ctx, record.Params.SchoolID, record.Params.Scope)
	case models.ExportKindClass:
		result, err = w.exporter.ExportClass(ctx, record.Params.ClassID)
	default:
		err = appErrors.Clone(appErrors.ErrValidation, "unsupported export kind "+string(record.Kind))
	}
	if err != nil {
		queued := models.ExportJobQueued
		msg := err.Error()
		if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
			Status:       &queued,
			ErrorMessage: &msg,
		}); updateErr != nil {
			w.logger.Sugar().Warnw("failed to mark job queued", "job_id", job.ID, "error", updateErr)
		}
		return err
	}

	finished := models.ExportJobFinished
	now := time.Now().UTC()
	url := result.URL
	cleared := ""
	failures := models.ExportFailures(result.Failures)
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:       &finished,
		ResultURL:    &url,
		Failures:     &failures,
		ErrorMessage: &cleared,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark job finished", "job_id", job.ID, "error", err)
		return err
	}
	return nil
}

// MarkFailed records a job as failed for good. A partial class archive
// reported with the failure is kept as the job result.
func (w *ExportJobWorker) MarkFailed(job jobs.Job, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), markFailedTimeout)
	defer cancel()

	failed := models.ExportJobFailed
	now := time.Now().UTC()
	msg := cause.Error()
	params := repository.UpdateExportJobParams{
		Status:       &failed,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}
	if partial, ok := appErrors.FromError(cause).Details.(PartialExport); ok {
		failures := models.ExportFailures(partial.Failures)
		params.Failures = &failures
		if partial.Archive != nil {
			url := partial.Archive.URL
			params.ResultURL = &url
		}
	}
	if err := w.repo.Update(ctx, job.ID, params); err != nil {
		w.logger.Sugar().Warnw("failed to mark job failed", "job_id", job.ID, "error", err)
	}
}
