package service

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-contrib-api/internal/models"
	appErrors "github.com/noah-isme/uni-contrib-api/pkg/errors"
	"github.com/noah-isme/uni-contrib-api/pkg/media"
)

const (
	facultyCachePrefix = "faculties:"
	eventCachePrefix   = "events:"
	bannerFolder       = "banners"
)

type facultyRepository interface {
	List(ctx context.Context, filter models.FacultyFilter) ([]models.FacultySummary, int, error)
	FindByID(ctx context.Context, id string) (*models.Faculty, error)
	ExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	Create(ctx context.Context, faculty *models.Faculty) error
	Update(ctx context.Context, faculty *models.Faculty) error
}

type userFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type facultyCascader interface {
	Apply(ctx context.Context, previous, next *models.Faculty) (*models.CascadeResult, error)
}

type cascadeScheduler interface {
	Schedule(next *models.Faculty, result *models.CascadeResult) error
}

// CreateFacultyRequest captures creation payload.
type CreateFacultyRequest struct {
	Name           string  `json:"name" validate:"required,max=120"`
	Description    string  `json:"description" validate:"max=2000"`
	BannerImageURL string  `json:"banner_image_url" validate:"omitempty,max=512"`
	MCID           *string `json:"mc_id"`
}

// UpdateFacultyRequest modifies faculty fields; omitted fields are kept and
// an explicit "mc_id": null removes the coordinator.
type UpdateFacultyRequest struct {
	Name           *string        `json:"name" validate:"omitempty,min=1,max=120"`
	Description    *string        `json:"description" validate:"omitempty,max=2000"`
	BannerImageURL *string        `json:"banner_image_url" validate:"omitempty,max=512"`
	MCID           OptionalString `json:"mc_id" swaggertype:"string"`
}

type facultyListCache struct {
	Items []models.FacultySummary `json:"items"`
	Total int                     `json:"total"`
}

// FacultyService manages faculties and routes every change of name,
// coordinator or deletion through the cascade engine.
type FacultyService struct {
	repo          facultyRepository
	users         userFinder
	cascade       facultyCascader
	retrier       cascadeScheduler
	cache         *CacheService
	uploader      *Uploader
	audit         AuditRecorder
	bannerBaseURL string
	validator     *validator.Validate
	logger        *zap.Logger
}

// FacultyServiceDeps groups the collaborators of FacultyService.
type FacultyServiceDeps struct {
	Repo          facultyRepository
	Users         userFinder
	Cascade       facultyCascader
	Retrier       cascadeScheduler
	Cache         *CacheService
	Uploader      *Uploader
	Audit         AuditRecorder
	BannerBaseURL string
	Validator     *validator.Validate
	Logger        *zap.Logger
}

// NewFacultyService constructs FacultyService.
func NewFacultyService(deps FacultyServiceDeps) *FacultyService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &FacultyService{
		repo:          deps.Repo,
		users:         deps.Users,
		cascade:       deps.Cascade,
		retrier:       deps.Retrier,
		cache:         deps.Cache,
		uploader:      deps.Uploader,
		audit:         deps.Audit,
		bannerBaseURL: strings.TrimSuffix(deps.BannerBaseURL, "/"),
		validator:     deps.Validator,
		logger:        deps.Logger,
	}
}

// List returns live faculties with counts.
func (s *FacultyService) List(ctx context.Context, filter models.FacultyFilter) ([]models.FacultySummary, *models.Pagination, error) {
	key := cacheKey(facultyCachePrefix, "list", filter.Search, strconv.Itoa(filter.Page), strconv.Itoa(filter.PageSize), filter.SortBy, filter.SortOrder)
	var cached facultyListCache
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached.Items, newPagination(filter.Page, filter.PageSize, cached.Total), nil
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, storageError(err, "failed to list faculties")
	}
	_ = s.cache.Set(ctx, key, facultyListCache{Items: items, Total: total}, 0)
	return items, newPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a live faculty.
func (s *FacultyService) Get(ctx context.Context, id string) (*models.Faculty, error) {
	faculty, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "faculty not found", "failed to load faculty")
	}
	return faculty, nil
}

// Create adds a faculty, optionally with its initial coordinator.
func (s *FacultyService) Create(ctx context.Context, req CreateFacultyRequest, actor models.Actor, meta models.RequestMeta) (*models.Faculty, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid create faculty payload")
	}
	name := strings.TrimSpace(req.Name)
	if err := s.ensureUniqueName(ctx, name, ""); err != nil {
		return nil, err
	}

	faculty := &models.Faculty{Name: name, Description: req.Description, BannerImageURL: req.BannerImageURL}
	if req.MCID != nil && *req.MCID != "" {
		mc, err := s.resolveCoordinator(ctx, *req.MCID)
		if err != nil {
			return nil, err
		}
		faculty.MC = mc
	}

	if err := s.repo.Create(ctx, faculty); err != nil {
		return nil, storageError(err, "failed to create faculty")
	}
	if err := s.propagate(ctx, nil, faculty); err != nil {
		return nil, err
	}

	recordAudit(ctx, s.audit, s.logger, actor.ID, meta, auditEntry{
		action: models.AuditActionFacultyCreate, resource: "faculties", resourceID: faculty.ID,
		new: map[string]interface{}{"name": faculty.Name, "mc": faculty.MC},
	})
	return faculty, nil
}

// Update changes faculty fields and cascades the snapshot changes.
func (s *FacultyService) Update(ctx context.Context, id string, req UpdateFacultyRequest, actor models.Actor, meta models.RequestMeta) (*models.Faculty, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid update faculty payload")
	}
	previous, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := previous.Clone()

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if !strings.EqualFold(name, previous.Name) {
			if err := s.ensureUniqueName(ctx, name, id); err != nil {
				return nil, err
			}
		}
		next.Name = name
	}
	if req.Description != nil {
		next.Description = *req.Description
	}
	if req.BannerImageURL != nil {
		next.BannerImageURL = *req.BannerImageURL
	}
	if req.MCID.Set {
		if req.MCID.IsNull() || *req.MCID.Value == "" {
			next.MC = nil
		} else {
			mc, err := s.resolveCoordinator(ctx, *req.MCID.Value)
			if err != nil {
				return nil, err
			}
			next.MC = mc
		}
	}

	if err := s.repo.Update(ctx, next); err != nil {
		return nil, storageError(err, "failed to update faculty")
	}
	if err := s.propagate(ctx, previous, next); err != nil {
		return nil, err
	}

	recordAudit(ctx, s.audit, s.logger, actor.ID, meta, auditEntry{
		action: models.AuditActionFacultyUpdate, resource: "faculties", resourceID: id,
		old: map[string]interface{}{"name": previous.Name, "mc": previous.MC},
		new: map[string]interface{}{"name": next.Name, "mc": next.MC},
	})
	return next, nil
}

// Delete soft-deletes a faculty and its dependents.
func (s *FacultyService) Delete(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta) error {
	previous, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	next := previous.Clone()
	now := time.Now().UTC()
	next.DeletedAt = &now

	if err := s.repo.Update(ctx, next); err != nil {
		return storageError(err, "failed to delete faculty")
	}
	if err := s.propagate(ctx, previous, next); err != nil {
		return err
	}

	recordAudit(ctx, s.audit, s.logger, actor.ID, meta, auditEntry{
		action: models.AuditActionFacultyDelete, resource: "faculties", resourceID: id,
		new: map[string]interface{}{"deleted_at": now},
	})
	return nil
}

// UploadBanner stores an image and points the faculty banner at it.
func (s *FacultyService) UploadBanner(ctx context.Context, id string, upload models.Upload, actor models.Actor, meta models.RequestMeta) (*models.Faculty, error) {
	if s.uploader == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "file storage not configured")
	}
	faculty, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	file, err := s.uploader.Store(bannerFolder, upload)
	if err != nil {
		return nil, err
	}
	if !media.IsImage(file.MIMEType) {
		s.uploader.Remove(file)
		return nil, appErrors.Clone(appErrors.ErrUnsupportedMedia, "banner must be an image")
	}

	faculty.BannerImageURL = s.bannerBaseURL + "/" + path.Base(file.Path)
	if err := s.repo.Update(ctx, faculty); err != nil {
		s.uploader.Remove(file)
		return nil, storageError(err, "failed to update faculty banner")
	}
	s.invalidate(ctx)

	recordAudit(ctx, s.audit, s.logger, actor.ID, meta, auditEntry{
		action: models.AuditActionFacultyUpdate, resource: "faculties", resourceID: id,
		new: map[string]interface{}{"banner_image_url": faculty.BannerImageURL},
	})
	return faculty, nil
}

// propagate runs the cascade after the faculty row is written. Partial
// failures are queued for retry; an unreachable store fails the request.
func (s *FacultyService) propagate(ctx context.Context, previous, next *models.Faculty) error {
	defer s.invalidate(ctx)

	result, err := s.cascade.Apply(ctx, previous, next)
	if result != nil && !result.OK() {
		s.logger.Warn("faculty snapshot cascade partially failed",
			zap.String("faculty_id", next.ID),
			zap.Any("failed_branches", result.FailedBranches()))
		if s.retrier != nil {
			if schedErr := s.retrier.Schedule(next, result); schedErr != nil {
				s.logger.Error("failed to schedule cascade retry", zap.String("faculty_id", next.ID), zap.Error(schedErr))
				if err == nil {
					return appErrors.Wrap(schedErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update faculty dependents")
				}
			}
		}
	}
	if err != nil {
		return storageError(err, "failed to update faculty dependents")
	}
	return nil
}

func (s *FacultyService) invalidate(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, facultyCachePrefix+"*", eventCachePrefix+"*")
}

func (s *FacultyService) ensureUniqueName(ctx context.Context, name, excludeID string) error {
	exists, err := s.repo.ExistsByName(ctx, name, excludeID)
	if err != nil {
		return storageError(err, "failed to check faculty name")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "faculty name already exists")
	}
	return nil
}

// resolveCoordinator loads the user and captures their snapshot; the user
// must be an active marketing coordinator.
func (s *FacultyService) resolveCoordinator(ctx context.Context, userID string) (*models.McRef, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, lookupError(err, "coordinator user not found", "failed to load coordinator")
	}
	if user.Role != models.RoleMarketingCoordinator {
		return nil, appErrors.Clone(appErrors.ErrInvalidCoordinator, fmt.Sprintf("user %s is not a marketing coordinator", user.ID))
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInvalidCoordinator, fmt.Sprintf("user %s is inactive", user.ID))
	}
	return models.McRefFromUser(user), nil
}
