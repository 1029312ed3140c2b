package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-contrib-api/internal/models"
	appErrors "github.com/noah-isme/uni-contrib-api/pkg/errors"
	"github.com/noah-isme/uni-contrib-api/pkg/jobs"
)

const cascadeRetryJobType = "faculty.cascade.retry"

type cascadeRunner interface {
	Retry(ctx context.Context, next *models.Faculty, branches []models.CascadeBranch) (*models.CascadeResult, error)
}

// facultyLoader must return soft-deleted faculties too.
type facultyLoader interface {
	FindAnyByID(ctx context.Context, id string) (*models.Faculty, error)
}

// cascadeRetryPayload is mutated in place so a requeued job only carries the
// branches that are still failing.
type cascadeRetryPayload struct {
	Faculty  *models.Faculty
	Branches []models.CascadeBranch
}

// CascadeRetrier re-applies failed cascade branches in the background.
type CascadeRetrier struct {
	queue   *jobs.Queue
	runner  cascadeRunner
	loader  facultyLoader
	metrics *MetricsService
	logger  *zap.Logger
}

// NewCascadeRetrier wires a retry queue around the cascade engine.
func NewCascadeRetrier(runner cascadeRunner, loader facultyLoader, metrics *MetricsService, logger *zap.Logger, cfg jobs.QueueConfig) *CascadeRetrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &CascadeRetrier{runner: runner, loader: loader, metrics: metrics, logger: logger}
	cfg.Logger = logger
	cfg.OnExhausted = r.exhausted
	r.queue = jobs.NewQueue("faculty-cascade-retry", r.handle, cfg)
	return r
}

// Start launches the retry workers.
func (r *CascadeRetrier) Start(ctx context.Context) {
	r.queue.Start(ctx)
}

// Stop waits for the workers to exit; pending retries are dropped.
func (r *CascadeRetrier) Stop() {
	r.queue.Stop()
}

// Schedule queues the failed branches of result for another attempt.
func (r *CascadeRetrier) Schedule(next *models.Faculty, result *models.CascadeResult) error {
	if result.OK() {
		return nil
	}
	payload := &cascadeRetryPayload{Faculty: next.Clone(), Branches: result.FailedBranches()}
	if err := r.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: cascadeRetryJobType, Payload: payload}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule cascade retry")
	}
	return nil
}

func (r *CascadeRetrier) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(*cascadeRetryPayload)
	if !ok {
		r.logger.Error("unexpected cascade retry payload", zap.String("job_id", job.ID))
		return nil
	}

	current, err := r.current(ctx, payload.Faculty)
	if err != nil {
		r.metrics.RecordCascadeRetry(outcomeFailure)
		return err
	}
	if current == nil {
		r.logger.Info("cascade retry dropped; faculty no longer exists", zap.String("faculty_id", payload.Faculty.ID))
		return nil
	}
	pending := pendingBranches(payload.Faculty, current, payload.Branches)
	if len(pending) == 0 {
		r.logger.Info("cascade retry superseded by newer faculty write",
			zap.String("faculty_id", current.ID), zap.Any("branches", payload.Branches))
		return nil
	}
	payload.Faculty = current
	payload.Branches = pending

	result, err := r.runner.Retry(ctx, current, pending)
	if err != nil {
		r.metrics.RecordCascadeRetry(outcomeFailure)
		return err
	}
	if !result.OK() {
		payload.Branches = result.FailedBranches()
		r.metrics.RecordCascadeRetry(outcomeFailure)
		return fmt.Errorf("cascade branches still failing: %v", payload.Branches)
	}
	r.metrics.RecordCascadeRetry(outcomeSuccess)
	r.logger.Info("cascade retry succeeded", zap.String("faculty_id", current.ID), zap.Any("branches", result.Succeeded))
	return nil
}

// current loads the faculty as it is now. A nil faculty without error means
// the row is gone.
func (r *CascadeRetrier) current(ctx context.Context, captured *models.Faculty) (*models.Faculty, error) {
	if r.loader == nil {
		return captured, nil
	}
	f, err := r.loader.FindAnyByID(ctx, captured.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || appErrors.IsCode(err, appErrors.ErrNotFound.Code) {
			return nil, nil
		}
		return nil, err
	}
	return f, nil
}

// pendingBranches keeps the failed branches whose inputs still hold on the
// current faculty. Name branches depend on the name only, so they always
// re-run with the current name; coordinator branches need the same
// coordinator; deletion branches need the faculty to still be deleted.
// Branches a later write planned for itself are dropped.
func pendingBranches(captured, current *models.Faculty, failed []models.CascadeBranch) []models.CascadeBranch {
	deleted := current.IsDeleted()
	sameMC := captured.MC != nil && current.MC != nil && captured.MC.ID == current.MC.ID

	out := make([]models.CascadeBranch, 0, len(failed))
	for _, branch := range failed {
		keep := false
		switch branch {
		case models.BranchNameUsers:
			keep = !deleted
		case models.BranchNameEvents, models.BranchNameContributions:
			keep = true
		case models.BranchMCAssignUser:
			keep = sameMC && !deleted
		case models.BranchMCAssignEvents, models.BranchMCReleasePrevious:
			keep = sameMC
		case models.BranchMCRemoveUsers:
			keep = current.MC == nil && !deleted
		case models.BranchMCRemoveEvents:
			keep = current.MC == nil
		case models.BranchDeleteUsers, models.BranchDeleteEvents, models.BranchDeleteContributions:
			keep = deleted
		}
		if keep {
			out = append(out, branch)
		}
	}
	return out
}

func (r *CascadeRetrier) exhausted(job jobs.Job, err error) {
	r.metrics.RecordCascadeRetry(outcomeExhausted)
	fields := []zap.Field{zap.String("job_id", job.ID), zap.Error(err)}
	if payload, ok := job.Payload.(*cascadeRetryPayload); ok {
		fields = append(fields, zap.String("faculty_id", payload.Faculty.ID), zap.Any("branches", payload.Branches))
	}
	r.logger.Error("faculty cascade retries exhausted; snapshots remain inconsistent", fields...)
}
