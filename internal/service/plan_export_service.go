package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/plan-export-api/internal/dto"
	"github.com/noah-isme/plan-export-api/internal/models"
	appErrors "github.com/noah-isme/plan-export-api/pkg/errors"
	"github.com/noah-isme/plan-export-api/pkg/jobs"
)

// Artifact kinds embedded in signed download tokens.
const (
	ArtifactDocument = "plans"
	ArtifactArchive  = "finals"
)

const notifyTimeout = 3 * time.Second

type studentAggregator interface {
	FetchForStudent(ctx context.Context, schoolID string) (*models.StudentAggregate, error)
	FetchForClass(ctx context.Context, classID string) ([]models.StudentAggregate, error)
}

type documentRunner interface {
	NewJob(agg models.StudentAggregate, scope models.ClassScope) DocumentJob
	Run(ctx context.Context, job DocumentJob, onDone DoneFunc)
}

type archiveAssembler interface {
	Assemble(ctx context.Context, archiveName string) (*ArchiveResult, error)
}

type artifactStore interface {
	Clear() ([]string, error)
	Open(filename string) (*os.File, error)
}

type downloadSigner interface {
	Generate(kind, filename string) (string, time.Time, error)
	Parse(token string) (kind, filename string, expiresAt time.Time, err error)
}

type exportNotifier interface {
	Publish(ctx context.Context, event models.ExportEvent) error
}

// PlanExportConfig tunes the coordinator.
type PlanExportConfig struct {
	APIPrefix    string
	Concurrency  int
	JobTimeout   time.Duration
	BatchTimeout time.Duration
}

// ExportResult references the artifact produced by an export.
type ExportResult struct {
	Kind      models.ExportKind      `json:"kind"`
	Filename  string                 `json:"filename"`
	URL       string                 `json:"url"`
	ExpiresAt time.Time              `json:"expiresAt"`
	Total     int                    `json:"total,omitempty"`
	Failures  []models.ExportFailure `json:"failures,omitempty"`
}

// PartialExport is attached as details to ErrBatchExportFailed. Archive is
// set when the successful documents were still archived.
type PartialExport struct {
	Total    int                    `json:"total"`
	Failures []models.ExportFailure `json:"failures"`
	Archive  *ExportResult          `json:"archive,omitempty"`
}

// Download is an opened artifact ready to be streamed.
type Download struct {
	File      *os.File
	Filename  string
	ExpiresAt time.Time
}

// PlanExportService coordinates single and class-wide plan exports.
type PlanExportService struct {
	aggregator studentAggregator
	runner     documentRunner
	archiver   archiveAssembler
	staging    artifactStore
	output     artifactStore
	signer     downloadSigner
	notifier   exportNotifier
	metrics    *MetricsService
	validate   *validator.Validate
	logger     *zap.Logger
	cfg        PlanExportConfig

	// runMu serializes runs that touch the staging area.
	runMu sync.Mutex
}

// NewPlanExportService wires the coordinator. notifier and metrics may be nil.
func NewPlanExportService(
	aggregator studentAggregator,
	runner documentRunner,
	archiver archiveAssembler,
	staging, output artifactStore,
	signer downloadSigner,
	notifier exportNotifier,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg PlanExportConfig,
) *PlanExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 5 * time.Minute
	}
	cfg.APIPrefix = strings.TrimRight(cfg.APIPrefix, "/")
	return &PlanExportService{
		aggregator: aggregator,
		runner:     runner,
		archiver:   archiver,
		staging:    staging,
		output:     output,
		signer:     signer,
		notifier:   notifier,
		metrics:    metrics,
		validate:   validator.New(),
		logger:     logger,
		cfg:        cfg,
	}
}

// Export validates the request and dispatches to a single or class export.
func (s *PlanExportService) Export(ctx context.Context, req dto.PlanExportRequest) (*ExportResult, error) {
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.ClassID = strings.TrimSpace(req.ClassID)
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentId or classId is required")
	}
	if req.StudentID != "" {
		return s.ExportSingle(ctx, req.StudentID, models.ClassScope(req.ClassID))
	}
	return s.ExportClass(ctx, req.ClassID)
}

// ExportSingle renders one student's document into the staging area and
// returns a signed reference to it.
func (s *PlanExportService) ExportSingle(ctx context.Context, schoolID string, scope models.ClassScope) (*ExportResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := time.Now()
	event := models.ExportEvent{Kind: models.ExportKindSingle, SchoolID: schoolID, ClassID: string(scope), Total: 1}

	agg, err := s.aggregator.FetchForStudent(ctx, schoolID)
	if err != nil {
		return nil, s.fail(ctx, event, start, err)
	}

	job := s.runner.NewJob(*agg, scope)
	jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	var runErr error
	s.runner.Run(jobCtx, job, func(err error, _ string) { runErr = err })
	s.metrics.RecordDocument(runErr == nil)
	if runErr != nil {
		event.Failed = 1
		return nil, s.fail(ctx, event, start, runErr)
	}

	result, err := s.sign(models.ExportKindSingle, ArtifactDocument, job.Filename)
	if err != nil {
		return nil, s.fail(ctx, event, start, err)
	}
	result.Total = 1

	event.Filename = job.Filename
	s.succeed(ctx, event, start, models.ExportOutcomeSuccess)
	return result, nil
}

// ExportClass exports every student of classID and archives the documents.
// Per-student failures do not stop the batch: the successful documents are
// archived and ErrBatchExportFailed carries the failures plus the archive.
func (s *PlanExportService) ExportClass(ctx context.Context, classID string) (*ExportResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := time.Now()
	event := models.ExportEvent{Kind: models.ExportKindClass, ClassID: classID}
	state := &BatchState{}

	if err := s.clearAreas(); err != nil {
		return nil, s.fail(ctx, event, start, err)
	}

	aggregates, err := s.aggregator.FetchForClass(ctx, classID)
	if err != nil {
		state.transition(BatchFailed)
		return nil, s.fail(ctx, event, start, err)
	}
	event.Total = len(aggregates)

	// Once fanned out the batch runs until its own deadline, even if the
	// caller goes away.
	runCtx := context.WithoutCancel(ctx)
	batchCtx, cancel := context.WithTimeout(runCtx, s.cfg.BatchTimeout)
	defer cancel()

	var cutOff atomic.Int32
	state.begin(len(aggregates))
	tasks := make([]jobs.Task, len(aggregates))
	for i := range aggregates {
		profile := aggregates[i].Profile
		job := s.runner.NewJob(aggregates[i], models.ClassScope(classID))
		tasks[i] = func(ctx context.Context) {
			jobCtx, cancelJob := context.WithTimeout(ctx, s.cfg.JobTimeout)
			defer cancelJob()
			s.runner.Run(jobCtx, job, func(err error, filename string) {
				if err != nil && batchCtx.Err() != nil {
					cutOff.Add(1)
				}
				s.metrics.RecordDocument(err == nil)
				state.Complete(profile, filename, err)
			})
		}
	}
	skipped := jobs.RunAll(batchCtx, s.cfg.Concurrency, tasks)
	for _, idx := range skipped {
		state.Complete(aggregates[idx].Profile, "", fmt.Errorf("not started: %w", batchCtx.Err()))
	}

	completed, total, failures := state.Snapshot()
	event.Failed = len(failures)
	if completed != total {
		state.transition(BatchFailed)
		return nil, s.fail(ctx, event, start, appErrors.WrapAs(appErrors.ErrInternal,
			fmt.Errorf("%d of %d jobs reported", completed, total), "batch did not complete"))
	}
	if len(skipped) > 0 || cutOff.Load() > 0 {
		state.transition(BatchFailed)
		return nil, s.fail(ctx, event, start, interrupted(batchCtx.Err(), PartialExport{Total: total, Failures: failures}))
	}
	if len(failures) == total {
		state.transition(BatchFailed)
		return nil, s.fail(ctx, event, start, batchFailed(total, failures, nil))
	}

	state.transition(BatchArchiving)
	archive, err := s.archiver.Assemble(runCtx, ArchiveFilename(classID))
	if err != nil {
		state.transition(BatchFailed)
		return nil, s.fail(ctx, event, start, err)
	}
	s.metrics.ObserveArchive(archive.Size)

	result, err := s.sign(models.ExportKindClass, ArtifactArchive, archive.Filename)
	if err != nil {
		state.transition(BatchFailed)
		return nil, s.fail(ctx, event, start, err)
	}
	result.Total = total
	result.Failures = failures
	state.transition(BatchDone)

	event.Filename = archive.Filename
	if len(failures) > 0 {
		s.succeed(ctx, event, start, models.ExportOutcomePartial)
		return nil, batchFailed(total, failures, result)
	}
	s.succeed(ctx, event, start, models.ExportOutcomeSuccess)
	return result, nil
}

// ResolveDownload validates a signed token and opens the referenced file.
func (s *PlanExportService) ResolveDownload(token string) (*Download, error) {
	kind, filename, expiresAt, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	var store artifactStore
	switch kind {
	case ArtifactDocument:
		store = s.staging
	case ArtifactArchive:
		store = s.output
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "unknown artifact kind")
	}
	file, err := store.Open(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
		}
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to open export file")
	}
	return &Download{File: file, Filename: filename, ExpiresAt: expiresAt}, nil
}

func (s *PlanExportService) clearAreas() error {
	if _, err := s.staging.Clear(); err != nil {
		return appErrors.WrapAs(appErrors.ErrArchive, err, "failed to clear staging area")
	}
	if _, err := s.output.Clear(); err != nil {
		return appErrors.WrapAs(appErrors.ErrArchive, err, "failed to clear output area")
	}
	return nil
}

func (s *PlanExportService) sign(kind models.ExportKind, artifact, filename string) (*ExportResult, error) {
	token, expiresAt, err := s.signer.Generate(artifact, filename)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to sign download link")
	}
	return &ExportResult{
		Kind:      kind,
		Filename:  filename,
		URL:       fmt.Sprintf("%s/plans/download/%s", s.cfg.APIPrefix, token),
		ExpiresAt: expiresAt,
	}, nil
}

// interrupted reports a batch stopped before every job ran. Only the batch
// deadline is a timeout.
func interrupted(cause error, details PartialExport) error {
	if errors.Is(cause, context.DeadlineExceeded) {
		return appErrors.WithDetails(appErrors.WrapAs(appErrors.ErrBatchTimeout, cause, ""), details)
	}
	return appErrors.WithDetails(appErrors.WrapAs(appErrors.ErrInternal, cause, "batch export interrupted"), details)
}

func batchFailed(total int, failures []models.ExportFailure, archive *ExportResult) error {
	msg := fmt.Sprintf("%d of %d student documents failed to export", len(failures), total)
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrBatchExportFailed, msg),
		PartialExport{Total: total, Failures: failures, Archive: archive})
}

func (s *PlanExportService) succeed(ctx context.Context, event models.ExportEvent, start time.Time, outcome models.ExportOutcome) {
	event.Outcome = outcome
	s.metrics.RecordRun(event.Kind, outcome, time.Since(start))
	s.logger.Sugar().Infow("plan export finished",
		"kind", event.Kind,
		"class_id", event.ClassID,
		"school_id", event.SchoolID,
		"outcome", outcome,
		"file", event.Filename,
		"total", event.Total,
		"failed", event.Failed,
		"duration", time.Since(start),
	)
	s.notify(ctx, event)
}

func (s *PlanExportService) fail(ctx context.Context, event models.ExportEvent, start time.Time, err error) error {
	event.Outcome = models.ExportOutcomeFailed
	event.Error = err.Error()
	s.metrics.RecordRun(event.Kind, models.ExportOutcomeFailed, time.Since(start))
	s.logger.Sugar().Warnw("plan export failed",
		"kind", event.Kind,
		"class_id", event.ClassID,
		"school_id", event.SchoolID,
		"failed", event.Failed,
		"error", err,
	)
	s.notify(ctx, event)
	return err
}

func (s *PlanExportService) notify(ctx context.Context, event models.ExportEvent) {
	if s.notifier == nil {
		return
	}
	event.OccurredAt = time.Now().UTC()
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.notifier.Publish(notifyCtx, event); err != nil {
		s.logger.Sugar().Warnw("failed to publish export event", "kind", event.Kind, "error", err)
	}
}

// BatchPhase is the lifecycle state of one class export.
type BatchPhase string

const (
	BatchIdle      BatchPhase = "idle"
	BatchFannedOut BatchPhase = "fanned_out"
	BatchArchiving BatchPhase = "archiving"
	BatchDone      BatchPhase = "done"
	BatchFailed    BatchPhase = "failed"
)

// BatchState tracks completion of one class export. Each job reports once
// through Complete; all access is mutex guarded.
type BatchState struct {
	mu        sync.Mutex
	phase     BatchPhase
	total     int
	completed int
	files     []string
	failures  []models.ExportFailure
}

func (b *BatchState) begin(total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total = total
	b.phase = BatchFannedOut
}

func (b *BatchState) transition(phase BatchPhase) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.phase = phase
}

// Phase returns the current lifecycle state.
func (b *BatchState) Phase() BatchPhase {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.phase == "" {
		return BatchIdle
	}
	return b.phase
}

// Complete records one finished job.
func (b *BatchState) Complete(profile models.StudentProfile, filename string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completed++
	if err != nil {
		b.failures = append(b.failures, models.ExportFailure{
			SchoolID: profile.SchoolID,
			Name:     profile.Name,
			Error:    err.Error(),
		})
		return
	}
	b.files = append(b.files, filename)
}

// Snapshot returns the counters and a copy of the failures.
func (b *BatchState) Snapshot() (completed, total int, failures []models.ExportFailure) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.failures) > 0 {
		failures = append([]models.ExportFailure(nil), b.failures...)
	}
	return b.completed, b.total, failures
}
