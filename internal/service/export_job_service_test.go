package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/plan-export-api/internal/dto"
	"github.com/noah-isme/plan-export-api/internal/models"
	"github.com/noah-isme/plan-export-api/internal/repository"
	appErrors "github.com/noah-isme/plan-export-api/pkg/errors"
	"github.com/noah-isme/plan-export-api/pkg/jobs"
)

type exportJobRepoStub struct {
	mu        sync.Mutex
	jobs      map[string]*models.ExportJob
	seq       int
	updateErr error
}

func newExportJobRepoStub() *exportJobRepoStub {
	return &exportJobRepoStub{jobs: make(map[string]*models.ExportJob)}
}

func (r *exportJobRepoStub) Create(ctx context.Context, job *models.ExportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	job.ID = fmt.Sprintf("job-%d", r.seq)
	job.CreatedAt = time.Now()
	clone := *job
	r.jobs[job.ID] = &clone
	return nil
}

func (r *exportJobRepoStub) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *job
	return &clone, nil
}

func (r *exportJobRepoStub) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	job, ok := r.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.Failures != nil {
		job.Failures = *params.Failures
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (r *exportJobRepoStub) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ExportJob
	for _, job := range r.jobs {
		if job.Status == models.ExportJobQueued {
			out = append(out, *job)
		}
	}
	return out, nil
}

type dispatcherStub struct {
	jobs []jobs.Job
	err  error
}

func (d *dispatcherStub) Enqueue(job jobs.Job) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

type plannerStub struct {
	result *ExportResult
	err    error
	single []string
	class  []string
}

func (p *plannerStub) ExportSingle(ctx context.Context, schoolID string, scope models.ClassScope) (*ExportResult, error) {
	p.single = append(p.single, schoolID+"/"+string(scope))
	return p.result, p.err
}

func (p *plannerStub) ExportClass(ctx context.Context, classID string) (*ExportResult, error) {
	p.class = append(p.class, classID)
	return p.result, p.err
}

func TestCreateJobSingleAndClass(t *testing.T) {
	repo := newExportJobRepoStub()
	queue := &dispatcherStub{}
	svc := NewExportJobService(repo, queue, nil)

	single, err := svc.CreateJob(context.Background(), dto.PlanExportRequest{StudentID: "s1", ClassID: "all"})
	require.NoError(t, err)
	assert.Equal(t, models.ExportKindSingle, single.Kind)
	assert.Equal(t, models.ExportJobQueued, single.Status)

	class, err := svc.CreateJob(context.Background(), dto.PlanExportRequest{ClassID: "C1"})
	require.NoError(t, err)
	assert.Equal(t, models.ExportKindClass, class.Kind)

	require.Len(t, queue.jobs, 2)
	assert.Equal(t, single.ID, queue.jobs[0].ID)
	assert.Equal(t, string(models.ExportKindClass), queue.jobs[1].Type)

	stored, err := repo.GetByID(context.Background(), single.ID)
	require.NoError(t, err)
	assert.Equal(t, "s1", stored.Params.SchoolID)
	assert.Equal(t, models.ScopeAll, stored.Params.Scope)
}

func TestCreateJobValidation(t *testing.T) {
	svc := NewExportJobService(newExportJobRepoStub(), &dispatcherStub{}, nil)

	_, err := svc.CreateJob(context.Background(), dto.PlanExportRequest{StudentID: "  "})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestCreateJobEnqueueFailureMarksFailed(t *testing.T) {
	repo := newExportJobRepoStub()
	svc := NewExportJobService(repo, &dispatcherStub{err: errors.New("queue stopped")}, nil)

	_, err := svc.CreateJob(context.Background(), dto.PlanExportRequest{ClassID: "C1"})
	require.Error(t, err)

	stored, err := repo.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportJobFailed, stored.Status)
	assert.NotNil(t, stored.FinishedAt)
}

func TestCreateJobEnqueueFailureLogsUpdateError(t *testing.T) {
	repo := newExportJobRepoStub()
	repo.updateErr = errors.New("connection reset")
	core, logs := observer.New(zap.WarnLevel)
	svc := NewExportJobService(repo, &dispatcherStub{err: errors.New("queue stopped")}, zap.New(core))

	_, err := svc.CreateJob(context.Background(), dto.PlanExportRequest{ClassID: "C1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))

	entries := logs.FilterMessage("failed to mark job failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "job-1", entries[0].ContextMap()["job_id"])
	assert.Equal(t, "connection reset", entries[0].ContextMap()["error"])
}

func TestGetStatus(t *testing.T) {
	repo := newExportJobRepoStub()
	svc := NewExportJobService(repo, &dispatcherStub{}, nil)

	_, err := svc.GetStatus(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	created, err := svc.CreateJob(context.Background(), dto.PlanExportRequest{ClassID: "C1"})
	require.NoError(t, err)
	empty := ""
	require.NoError(t, repo.Update(context.Background(), created.ID, repository.UpdateExportJobParams{ErrorMessage: &empty}))

	status, err := svc.GetStatus(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportJobQueued, status.Status)
	assert.Nil(t, status.Error)
}

func TestRecoverPendingJobs(t *testing.T) {
	repo := newExportJobRepoStub()
	queue := &dispatcherStub{}
	svc := NewExportJobService(repo, queue, nil)
	_, err := svc.CreateJob(context.Background(), dto.PlanExportRequest{ClassID: "C1"})
	require.NoError(t, err)

	svc.RecoverPendingJobs(context.Background())
	assert.Len(t, queue.jobs, 2)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("connection reset")))
	assert.True(t, IsRetryable(appErrors.WrapAs(appErrors.ErrArchive, errors.New("disk"), "")))
	assert.False(t, IsRetryable(appErrors.Clone(appErrors.ErrClassEmpty, "none")))
	assert.False(t, IsRetryable(fmt.Errorf("wrapped: %w", appErrors.ErrProfileNotFound)))
	assert.False(t, IsRetryable(batchFailed(2, []models.ExportFailure{{SchoolID: "s1"}}, nil)))
}

func TestWorkerHandleSuccess(t *testing.T) {
	repo := newExportJobRepoStub()
	job := &models.ExportJob{Kind: models.ExportKindClass, Params: models.ExportJobParams{ClassID: "C1"}, Status: models.ExportJobQueued}
	require.NoError(t, repo.Create(context.Background(), job))
	planner := &plannerStub{result: &ExportResult{URL: "/api/v1/plans/download/tok"}}
	worker := NewExportJobWorker(repo, planner, nil)

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: job.ID}))
	assert.Equal(t, []string{"C1"}, planner.class)

	stored, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportJobFinished, stored.Status)
	require.NotNil(t, stored.ResultURL)
	assert.Equal(t, "/api/v1/plans/download/tok", *stored.ResultURL)
	assert.NotNil(t, stored.FinishedAt)
}

func TestWorkerHandleFailureRequeues(t *testing.T) {
	repo := newExportJobRepoStub()
	job := &models.ExportJob{Kind: models.ExportKindSingle, Params: models.ExportJobParams{SchoolID: "s1", Scope: "C1"}, Status: models.ExportJobQueued}
	require.NoError(t, repo.Create(context.Background(), job))
	worker := NewExportJobWorker(repo, &plannerStub{err: errors.New("db timeout")}, nil)

	err := worker.Handle(context.Background(), jobs.Job{ID: job.ID})
	require.Error(t, err)

	stored, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportJobQueued, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "db timeout")
}

func TestWorkerMarkFailedKeepsPartialArchive(t *testing.T) {
	repo := newExportJobRepoStub()
	job := &models.ExportJob{Kind: models.ExportKindClass, Params: models.ExportJobParams{ClassID: "C1"}, Status: models.ExportJobQueued}
	require.NoError(t, repo.Create(context.Background(), job))
	worker := NewExportJobWorker(repo, &plannerStub{}, nil)

	failures := []models.ExportFailure{{SchoolID: "s2", Error: "boom"}}
	cause := batchFailed(3, failures, &ExportResult{URL: "/api/v1/plans/download/partial"})
	worker.MarkFailed(jobs.Job{ID: job.ID}, cause)

	stored, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportJobFailed, stored.Status)
	assert.Len(t, stored.Failures, 1)
	require.NotNil(t, stored.ResultURL)
	assert.Equal(t, "/api/v1/plans/download/partial", *stored.ResultURL)
}

func TestQueueGivesUpOnPermanentExportError(t *testing.T) {
	repo := newExportJobRepoStub()
	job := &models.ExportJob{Kind: models.ExportKindClass, Params: models.ExportJobParams{ClassID: "C9"}, Status: models.ExportJobQueued}
	require.NoError(t, repo.Create(context.Background(), job))
	planner := &plannerStub{err: appErrors.Clone(appErrors.ErrClassEmpty, "no students")}
	worker := NewExportJobWorker(repo, planner, nil)

	done := make(chan struct{})
	queue := jobs.NewQueue("plan-exports", worker.Handle, jobs.QueueConfig{
		Workers:    1,
		MaxRetries: 3,
		Retryable:  IsRetryable,
		OnGiveUp: func(j jobs.Job, err error) {
			worker.MarkFailed(j, err)
			close(done)
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()

	require.NoError(t, queue.Enqueue(jobs.Job{ID: job.ID}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not given up")
	}

	assert.Len(t, planner.class, 1)
	stored, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportJobFailed, stored.Status)
}
