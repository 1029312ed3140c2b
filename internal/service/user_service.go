package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/uni-contrib-api/internal/models"
	appErrors "github.com/noah-isme/uni-contrib-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type coordinatorFaculties interface {
	FindByID(ctx context.Context, id string) (*models.Faculty, error)
	Update(ctx context.Context, faculty *models.Faculty) error
	ListByMC(ctx context.Context, userID string) ([]models.Faculty, error)
}

// CreateUserRequest represents payload for creating users.
type CreateUserRequest struct {
	Email     string          `json:"email" validate:"required,email"`
	FullName  string          `json:"full_name" validate:"required,max=120"`
	Role      models.UserRole `json:"role" validate:"required,oneof=GUEST STUDENT MARKETING_COORDINATOR MARKETING_MANAGER ADMIN"`
	FacultyID string          `json:"faculty_id"`
	Active    bool            `json:"active"`
	Password  string          `json:"password" validate:"required,min=8"`
}

// UpdateUserRequest payload for updating users.
type UpdateUserRequest struct {
	FullName  string          `json:"full_name" validate:"required,max=120"`
	Role      models.UserRole `json:"role" validate:"required,oneof=GUEST STUDENT MARKETING_COORDINATOR MARKETING_MANAGER ADMIN"`
	FacultyID *string         `json:"faculty_id"`
	Active    *bool           `json:"active"`
}

// UpdateProfileRequest is the self-service profile payload.
type UpdateProfileRequest struct {
	FullName  *string `json:"full_name" validate:"omitempty,min=1,max=120"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,max=512"`
}

// UserService handles user management workflows and keeps the copies of a
// user's name, email and avatar on faculties, events and contributions current.
type UserService struct {
	repo      userRepository
	faculties coordinatorFaculties
	cascade   facultyCascader
	retrier   cascadeScheduler
	store     DocumentStore
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// UserServiceDeps groups the collaborators of UserService.
type UserServiceDeps struct {
	Repo      userRepository
	Faculties coordinatorFaculties
	Cascade   facultyCascader
	Retrier   cascadeScheduler
	Store     DocumentStore
	Cache     *CacheService
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(deps UserServiceDeps) *UserService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	return &UserService{
		repo:      deps.Repo,
		faculties: deps.Faculties,
		cascade:   deps.Cascade,
		retrier:   deps.Retrier,
		store:     deps.Store,
		cache:     deps.Cache,
		validator: deps.Validator,
		logger:    deps.Logger,
	}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, storageError(err, "failed to list users")
	}
	return users, newPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "user not found", "failed to load user")
	}
	return user, nil
}

// Create adds a new user. Students and guests must name a faculty;
// coordinators are attached to a faculty through the faculty itself.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest, actorID string, meta models.RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid create user payload")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, storageError(err, "failed to check email uniqueness")
	}

	faculty, err := s.facultyFor(ctx, req.Role, req.FacultyID)
	if err != nil {
		return nil, err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(req.Email),
		FullName:     req.FullName,
		Role:         req.Role,
		Active:       req.Active,
		Faculty:      faculty,
		PasswordHash: string(passwordHash),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, storageError(err, "failed to create user")
	}

	recordAudit(ctx, s.repo, s.logger, actorID, meta, auditEntry{
		action: models.AuditActionUserCreate, resource: "users", resourceID: user.ID,
		new: map[string]interface{}{"id": user.ID, "email": user.Email, "role": user.Role, "faculty_id": user.FacultyID()},
	})
	return user, nil
}

// Update modifies the user attributes. A user who is some faculty's current
// coordinator cannot lose the role or move faculty until unassigned.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest, actorID string, meta models.RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid update payload")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := *user

	facultyChanged := req.FacultyID != nil && *req.FacultyID != user.FacultyID()
	if user.Role == models.RoleMarketingCoordinator && (req.Role != models.RoleMarketingCoordinator || facultyChanged) {
		if err := s.ensureNotCoordinating(ctx, id); err != nil {
			return nil, err
		}
	}

	user.FullName = req.FullName
	user.Role = req.Role
	if req.Active != nil {
		user.Active = *req.Active
	}
	if facultyChanged {
		faculty, err := s.facultyFor(ctx, req.Role, *req.FacultyID)
		if err != nil {
			return nil, err
		}
		user.Faculty = faculty
	} else if req.Role == models.RoleMarketingCoordinator && previous.Role != models.RoleMarketingCoordinator {
		user.Faculty = nil
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, storageError(err, "failed to update user")
	}
	if err := s.refreshSnapshots(ctx, &previous, user); err != nil {
		return nil, err
	}

	recordAudit(ctx, s.repo, s.logger, actorID, meta, auditEntry{
		action: models.AuditActionUserUpdate, resource: "users", resourceID: id,
		old: map[string]interface{}{"role": previous.Role, "active": previous.Active, "faculty_id": previous.FacultyID()},
		new: map[string]interface{}{"role": user.Role, "active": user.Active, "faculty_id": user.FacultyID()},
	})
	return user, nil
}

// UpdateProfile lets users change their own name and avatar.
func (s *UserService) UpdateProfile(ctx context.Context, id string, req UpdateProfileRequest, meta models.RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid profile payload")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := *user
	if req.FullName != nil {
		user.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.AvatarURL != nil {
		user.AvatarURL = *req.AvatarURL
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, storageError(err, "failed to update profile")
	}
	if err := s.refreshSnapshots(ctx, &previous, user); err != nil {
		return nil, err
	}

	recordAudit(ctx, s.repo, s.logger, id, meta, auditEntry{
		action: models.AuditActionUserUpdate, resource: "users", resourceID: id,
		old: map[string]interface{}{"full_name": previous.FullName, "avatar_url": previous.AvatarURL},
		new: map[string]interface{}{"full_name": user.FullName, "avatar_url": user.AvatarURL},
	})
	return user, nil
}

// Delete performs a soft delete (inactive) on a user.
func (s *UserService) Delete(ctx context.Context, id string, actorID string, meta models.RequestMeta) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if user.Role == models.RoleMarketingCoordinator {
		if err := s.ensureNotCoordinating(ctx, id); err != nil {
			return err
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return storageError(err, "failed to delete user")
	}

	recordAudit(ctx, s.repo, s.logger, actorID, meta, auditEntry{
		action: models.AuditActionUserDelete, resource: "users", resourceID: id,
		old: map[string]interface{}{"active": user.Active},
		new: map[string]interface{}{"active": false},
	})
	return nil
}

// refreshSnapshots rewrites copies of the user's identity held elsewhere:
// the author snapshot on contributions and, for coordinators, the mc
// snapshot on their faculty, which the cascade carries to its events.
func (s *UserService) refreshSnapshots(ctx context.Context, previous, next *models.User) error {
	if previous.FullName == next.FullName && previous.Email == next.Email && previous.AvatarURL == next.AvatarURL {
		return nil
	}

	if s.store != nil {
		filter := models.Filter{}.Eq(models.FieldAuthorID, next.ID)
		patch := models.Patch{}.
			Set(models.FieldAuthorName, next.FullName).
			Set(models.FieldAuthorEmail, next.Email).
			Set(models.FieldAuthorAvatar, next.AvatarURL)
		if _, err := s.store.UpdateMany(ctx, models.CollectionContributions, filter, patch); err != nil {
			return storageError(err, "failed to refresh author snapshots")
		}
	}

	if next.Role != models.RoleMarketingCoordinator || s.faculties == nil {
		return nil
	}
	faculties, err := s.faculties.ListByMC(ctx, next.ID)
	if err != nil {
		return storageError(err, "failed to load coordinated faculties")
	}
	for i := range faculties {
		before := faculties[i].Clone()
		after := before.Clone()
		after.MC = models.McRefFromUser(next)
		if err := s.faculties.Update(ctx, after); err != nil {
			return storageError(err, "failed to refresh coordinator snapshot")
		}
		if s.cascade == nil {
			continue
		}
		result, err := s.cascade.Apply(ctx, before, after)
		if result != nil && !result.OK() && s.retrier != nil {
			if schedErr := s.retrier.Schedule(after, result); schedErr != nil {
				s.logger.Error("failed to schedule cascade retry", zap.String("faculty_id", after.ID), zap.Error(schedErr))
			}
		}
		if err != nil {
			return storageError(err, "failed to refresh coordinator snapshot on events")
		}
	}
	_ = s.cache.Invalidate(ctx, facultyCachePrefix+"*", eventCachePrefix+"*")
	return nil
}

func (s *UserService) ensureNotCoordinating(ctx context.Context, id string) error {
	if s.faculties == nil {
		return nil
	}
	faculties, err := s.faculties.ListByMC(ctx, id)
	if err != nil {
		return storageError(err, "failed to check coordinator assignments")
	}
	if len(faculties) > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "user is the coordinator of "+faculties[0].Name+"; unassign first")
	}
	return nil
}

// facultyFor resolves the faculty snapshot a new or moved user should carry.
func (s *UserService) facultyFor(ctx context.Context, role models.UserRole, facultyID string) (*models.FacultyRef, error) {
	switch role {
	case models.RoleStudent, models.RoleGuest:
		if facultyID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "faculty_id is required for students and guests")
		}
	case models.RoleMarketingCoordinator:
		if facultyID != "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "coordinators are assigned through the faculty")
		}
		return nil, nil
	default:
		if facultyID == "" {
			return nil, nil
		}
	}
	faculty, err := s.faculties.FindByID(ctx, facultyID)
	if err != nil {
		return nil, lookupError(err, "faculty not found", "failed to load faculty")
	}
	return models.FacultyRefOf(faculty), nil
}
