package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/uni-contrib-api/internal/models"
	"github.com/noah-isme/uni-contrib-api/internal/repository"
	appErrors "github.com/noah-isme/uni-contrib-api/pkg/errors"
)

// DocumentStore is the bulk update surface the cascade writes through.
type DocumentStore interface {
	UpdateOne(ctx context.Context, collection models.Collection, filter models.Filter, patch models.Patch) (int64, error)
	UpdateMany(ctx context.Context, collection models.Collection, filter models.Filter, patch models.Patch) (int64, error)
}

// cascadeOp is one filtered update; a branch is a short sequence of them.
type cascadeOp struct {
	collection models.Collection
	filter     models.Filter
	patch      models.Patch
	single     bool
}

// FacultyCascade keeps the faculty snapshots embedded in users, events and
// contributions consistent with the faculty row. It holds no mutable state.
type FacultyCascade struct {
	store     DocumentStore
	metrics   *MetricsService
	logger    *zap.Logger
	exclusive bool
}

// NewFacultyCascade constructs the cascade engine. With exclusive set, assigning
// a coordinator also releases them from any other faculty they were recorded on.
func NewFacultyCascade(store DocumentStore, metrics *MetricsService, logger *zap.Logger, exclusive bool) *FacultyCascade {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FacultyCascade{store: store, metrics: metrics, logger: logger, exclusive: exclusive}
}

// Plan returns the branches required to move dependents from previous to next.
// A nil previous describes a faculty being created.
func (c *FacultyCascade) Plan(previous, next *models.Faculty) []models.CascadeBranch {
	if next == nil {
		return nil
	}
	var prevMC *models.McRef
	prevName := ""
	prevDeleted := false
	if previous != nil {
		prevMC = previous.MC
		prevName = previous.Name
		prevDeleted = previous.DeletedAt != nil
	}
	deleting := !prevDeleted && next.DeletedAt != nil

	var branches []models.CascadeBranch
	switch {
	case next.MC != nil && (prevMC == nil || prevMC.ID != next.MC.ID):
		if !deleting {
			branches = append(branches, models.BranchMCAssignUser)
		}
		branches = append(branches, models.BranchMCAssignEvents)
		if c.exclusive {
			branches = append(branches, models.BranchMCReleasePrevious)
		}
	case next.MC != nil && !next.MC.Equal(prevMC):
		// same coordinator, refreshed profile snapshot
		branches = append(branches, models.BranchMCAssignEvents)
	case next.MC == nil && prevMC != nil:
		if !deleting {
			branches = append(branches, models.BranchMCRemoveUsers)
		}
		branches = append(branches, models.BranchMCRemoveEvents)
	}

	if previous != nil && prevName != next.Name {
		if !deleting {
			branches = append(branches, models.BranchNameUsers)
		}
		branches = append(branches, models.BranchNameEvents, models.BranchNameContributions)
	}

	if deleting {
		branches = append(branches, models.BranchDeleteUsers, models.BranchDeleteEvents, models.BranchDeleteContributions)
	}
	return branches
}

// ReconcilePlan returns the branches that rewrite every snapshot of f from
// its current state. Users are only written by one branch at a time.
func (c *FacultyCascade) ReconcilePlan(f *models.Faculty) []models.CascadeBranch {
	if f == nil {
		return nil
	}
	if f.DeletedAt != nil {
		return []models.CascadeBranch{models.BranchDeleteUsers, models.BranchDeleteEvents, models.BranchDeleteContributions}
	}
	branches := []models.CascadeBranch{models.BranchNameUsers, models.BranchNameEvents, models.BranchNameContributions}
	if f.MC == nil {
		return append(branches, models.BranchMCRemoveEvents)
	}
	branches = append(branches, models.BranchMCAssignUser, models.BranchMCAssignEvents)
	if c.exclusive {
		branches = append(branches, models.BranchMCReleasePrevious)
	}
	return branches
}

// Reconcile re-applies every snapshot of f, repairing drift left by
// cascades whose retries were exhausted.
func (c *FacultyCascade) Reconcile(ctx context.Context, f *models.Faculty) (*models.CascadeResult, error) {
	return c.Retry(ctx, f, c.ReconcilePlan(f))
}

// Apply plans and executes the cascade for one faculty mutation. Every branch
// runs and is awaited; per-branch outcomes are reported in the result. The
// returned error is non-nil only when the store was unreachable.
func (c *FacultyCascade) Apply(ctx context.Context, previous, next *models.Faculty) (*models.CascadeResult, error) {
	if next == nil || next.ID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "faculty cascade requires a persisted faculty")
	}
	return c.execute(ctx, next, c.Plan(previous, next))
}

// Retry re-executes the given branches against next. Branches are idempotent.
func (c *FacultyCascade) Retry(ctx context.Context, next *models.Faculty, branches []models.CascadeBranch) (*models.CascadeResult, error) {
	if next == nil || next.ID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "faculty cascade requires a persisted faculty")
	}
	return c.execute(ctx, next, branches)
}

type branchOutcome struct {
	updated int64
	err     error
}

func (c *FacultyCascade) execute(ctx context.Context, next *models.Faculty, branches []models.CascadeBranch) (*models.CascadeResult, error) {
	result := &models.CascadeResult{
		FacultyID: next.ID,
		Succeeded: []models.CascadeBranch{},
		Failed:    []models.BranchFailure{},
		Updated:   map[models.CascadeBranch]int64{},
	}
	if len(branches) == 0 {
		return result, nil
	}

	outcomes := make([]branchOutcome, len(branches))
	// branches report through outcomes and never return an error, so one
	// failure does not cancel the others
	var g errgroup.Group
	for i, branch := range branches {
		i, branch := i, branch
		g.Go(func() error {
			start := time.Now()
			n, err := c.runBranch(ctx, branch, next)
			outcomes[i] = branchOutcome{updated: n, err: err}
			c.metrics.ObserveCascadeBranch(branch, err == nil, time.Since(start))
			return nil
		})
	}
	_ = g.Wait()

	unavailable := false
	for i, branch := range branches {
		out := outcomes[i]
		if out.err == nil {
			result.Succeeded = append(result.Succeeded, branch)
			result.Updated[branch] = out.updated
			continue
		}
		down := errors.Is(out.err, repository.ErrUnavailable)
		unavailable = unavailable || down
		result.Failed = append(result.Failed, models.BranchFailure{Branch: branch, Error: out.err.Error(), Unavailable: down})
	}

	if len(result.Failed) > 0 {
		c.logger.Warn("faculty cascade incomplete",
			zap.String("faculty_id", next.ID),
			zap.Any("failed", result.FailedBranches()),
			zap.Any("succeeded", result.Succeeded))
	} else {
		c.logger.Debug("faculty cascade applied", zap.String("faculty_id", next.ID), zap.Any("updated", result.Updated))
	}

	if unavailable {
		return result, appErrors.Wrap(fmt.Errorf("faculty %s cascade: %w", next.ID, repository.ErrUnavailable), appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	return result, nil
}

func (c *FacultyCascade) runBranch(ctx context.Context, branch models.CascadeBranch, next *models.Faculty) (int64, error) {
	ops, err := c.operations(branch, next)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, op := range ops {
		var n int64
		if op.single {
			n, err = c.store.UpdateOne(ctx, op.collection, op.filter, op.patch)
		} else {
			n, err = c.store.UpdateMany(ctx, op.collection, op.filter, op.patch)
		}
		if err != nil {
			return total, fmt.Errorf("%s: %w", branch, err)
		}
		total += n
	}
	return total, nil
}

var (
	clearFacultyRef = models.Patch{}.SetNull(models.FieldFacultyID).SetNull(models.FieldFacultyName)
	clearEventMC    = models.Patch{}.
			SetNull(models.FieldFacultyMCID).
			SetNull(models.FieldFacultyMCName).
			SetNull(models.FieldFacultyMCEmail).
			SetNull(models.FieldFacultyMCAvatar)
	clearFacultyMC = models.Patch{}.
			SetNull(models.FieldMCID).
			SetNull(models.FieldMCName).
			SetNull(models.FieldMCEmail).
			SetNull(models.FieldMCAvatar)
)

func (c *FacultyCascade) operations(branch models.CascadeBranch, f *models.Faculty) ([]cascadeOp, error) {
	ofFaculty := models.Filter{}.Eq(models.FieldFacultyID, f.ID)

	switch branch {
	case models.BranchMCAssignUser, models.BranchMCAssignEvents, models.BranchMCReleasePrevious:
		if f.MC == nil {
			return nil, fmt.Errorf("%s: faculty %s has no coordinator", branch, f.ID)
		}
	case models.BranchDeleteEvents, models.BranchDeleteContributions:
		if f.DeletedAt == nil {
			return nil, fmt.Errorf("%s: faculty %s is not deleted", branch, f.ID)
		}
	}

	switch branch {
	case models.BranchMCAssignUser:
		return []cascadeOp{{
			collection: models.CollectionUsers,
			filter:     models.Filter{}.Eq(models.FieldID, f.MC.ID),
			patch:      models.Patch{}.Set(models.FieldFacultyID, f.ID).Set(models.FieldFacultyName, f.Name),
			single:     true,
		}}, nil
	case models.BranchMCAssignEvents:
		return []cascadeOp{{
			collection: models.CollectionEvents,
			filter:     ofFaculty,
			patch: models.Patch{}.
				Set(models.FieldFacultyMCID, f.MC.ID).
				Set(models.FieldFacultyMCName, f.MC.Name).
				Set(models.FieldFacultyMCEmail, f.MC.Email).
				Set(models.FieldFacultyMCAvatar, f.MC.AvatarURL),
		}}, nil
	case models.BranchMCReleasePrevious:
		return []cascadeOp{
			{
				collection: models.CollectionFaculties,
				filter:     models.Filter{}.Eq(models.FieldMCID, f.MC.ID).Ne(models.FieldID, f.ID),
				patch:      clearFacultyMC,
			},
			{
				collection: models.CollectionEvents,
				filter:     models.Filter{}.Eq(models.FieldFacultyMCID, f.MC.ID).Ne(models.FieldFacultyID, f.ID),
				patch:      clearEventMC,
			},
		}, nil
	case models.BranchMCRemoveUsers:
		return []cascadeOp{{
			collection: models.CollectionUsers,
			filter:     ofFaculty.Eq(models.FieldRole, string(models.RoleMarketingCoordinator)),
			patch:      clearFacultyRef,
		}}, nil
	case models.BranchMCRemoveEvents:
		return []cascadeOp{{collection: models.CollectionEvents, filter: ofFaculty, patch: clearEventMC}}, nil
	case models.BranchNameUsers:
		return []cascadeOp{{collection: models.CollectionUsers, filter: ofFaculty, patch: models.Patch{}.Set(models.FieldFacultyName, f.Name)}}, nil
	case models.BranchNameEvents:
		return []cascadeOp{{collection: models.CollectionEvents, filter: ofFaculty, patch: models.Patch{}.Set(models.FieldFacultyName, f.Name)}}, nil
	case models.BranchNameContributions:
		return []cascadeOp{{collection: models.CollectionContributions, filter: ofFaculty, patch: models.Patch{}.Set(models.FieldFacultyName, f.Name)}}, nil
	case models.BranchDeleteUsers:
		return []cascadeOp{{collection: models.CollectionUsers, filter: ofFaculty, patch: clearFacultyRef}}, nil
	case models.BranchDeleteEvents:
		return []cascadeOp{{
			collection: models.CollectionEvents,
			filter:     ofFaculty.IsNull(models.FieldDeletedAt),
			patch:      models.Patch{}.Set(models.FieldDeletedAt, *f.DeletedAt),
		}}, nil
	case models.BranchDeleteContributions:
		return []cascadeOp{{
			collection: models.CollectionContributions,
			filter:     ofFaculty.IsNull(models.FieldDeletedAt),
			patch:      models.Patch{}.Set(models.FieldDeletedAt, *f.DeletedAt),
		}}, nil
	}
	return nil, fmt.Errorf("unknown cascade branch %q", branch)
}
