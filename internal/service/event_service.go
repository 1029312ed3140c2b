package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-contrib-api/internal/dto"
	"github.com/noah-isme/uni-contrib-api/internal/models"
	appErrors "github.com/noah-isme/uni-contrib-api/pkg/errors"
)

type eventRepository interface {
	List(ctx context.Context, filter models.EventFilter) ([]models.EventWithCount, int, error)
	FindByID(ctx context.Context, id string) (*models.Event, error)
	CountContributions(ctx context.Context, eventID string) (int, error)
	Create(ctx context.Context, event *models.Event) error
	Update(ctx context.Context, event *models.Event) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

type facultyFinder interface {
	FindByID(ctx context.Context, id string) (*models.Faculty, error)
}

// CreateEventRequest captures event creation payload.
type CreateEventRequest struct {
	Name             string    `json:"name" validate:"required,max=200"`
	Description      string    `json:"description" validate:"max=2000"`
	ClosureDate      time.Time `json:"closure_date" validate:"required"`
	FinalClosureDate time.Time `json:"final_closure_date" validate:"required,gtfield=ClosureDate"`
	FacultyID        string    `json:"faculty_id" validate:"required"`
}

// UpdateEventRequest modifies event fields; nil fields are kept.
type UpdateEventRequest struct {
	Name             *string    `json:"name" validate:"omitempty,min=1,max=200"`
	Description      *string    `json:"description" validate:"omitempty,max=2000"`
	ClosureDate      *time.Time `json:"closure_date"`
	FinalClosureDate *time.Time `json:"final_closure_date"`
	FacultyID        *string    `json:"faculty_id" validate:"omitempty,min=1"`
}

type eventListCache struct {
	Items []models.EventWithCount `json:"items"`
	Total int                     `json:"total"`
}

// EventService manages submission windows. Events carry a faculty snapshot
// taken at write time and own the event snapshot on contributions.
type EventService struct {
	repo      eventRepository
	faculties facultyFinder
	store     DocumentStore
	cache     *CacheService
	audit     AuditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewEventService constructs EventService.
func NewEventService(repo eventRepository, faculties facultyFinder, store DocumentStore, cache *CacheService, audit AuditRecorder, validate *validator.Validate, logger *zap.Logger) *EventService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{
		repo:      repo,
		faculties: faculties,
		store:     store,
		cache:     cache,
		audit:     audit,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns live events with their closure flags evaluated now.
func (s *EventService) List(ctx context.Context, filter models.EventFilter) ([]dto.EventView, *models.Pagination, error) {
	key := cacheKey(eventCachePrefix, "list", filter.Search, filter.FacultyID, formatTimePtr(filter.ClosureFrom), formatTimePtr(filter.ClosureTo),
		strconv.Itoa(filter.Page), strconv.Itoa(filter.PageSize), filter.SortBy, filter.SortOrder)

	var cached eventListCache
	if hit, _ := s.cache.Get(ctx, key, &cached); !hit {
		items, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, nil, storageError(err, "failed to list events")
		}
		cached = eventListCache{Items: items, Total: total}
		_ = s.cache.Set(ctx, key, cached, 0)
	}

	now := s.now()
	views := make([]dto.EventView, 0, len(cached.Items))
	for _, item := range cached.Items {
		views = append(views, dto.NewEventView(item.Event, item.ContributionCount, now))
	}
	return views, newPagination(filter.Page, filter.PageSize, cached.Total), nil
}

// Get returns a live event.
func (s *EventService) Get(ctx context.Context, id string) (*dto.EventView, error) {
	event, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := s.repo.CountContributions(ctx, id)
	if err != nil {
		return nil, storageError(err, "failed to count contributions")
	}
	view := dto.NewEventView(*event, count, s.now())
	return &view, nil
}

// Create adds an event under a faculty the actor may manage.
func (s *EventService) Create(ctx context.Context, req CreateEventRequest, actor models.Actor, meta models.RequestMeta) (*dto.EventView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid create event payload")
	}
	if err := authorizeFaculty(actor, req.FacultyID); err != nil {
		return nil, err
	}
	faculty, err := s.faculty(ctx, req.FacultyID)
	if err != nil {
		return nil, err
	}

	event := &models.Event{
		Name:             strings.TrimSpace(req.Name),
		Description:      req.Description,
		ClosureDate:      req.ClosureDate.UTC(),
		FinalClosureDate: req.FinalClosureDate.UTC(),
		Faculty:          models.EventFacultyOf(faculty),
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, storageError(err, "failed to create event")
	}
	_ = s.cache.Invalidate(ctx, eventCachePrefix+"*", facultyCachePrefix+"*")

	recordAudit(ctx, s.audit, s.logger, actor.ID, meta, auditEntry{
		action: models.AuditActionEventCreate, resource: "events", resourceID: event.ID,
		new: map[string]interface{}{"name": event.Name, "faculty_id": event.Faculty.ID},
	})
	view := dto.NewEventView(*event, 0, s.now())
	return &view, nil
}

// Update changes event fields. Moving the event re-snapshots the faculty on
// the event and its contributions; renaming it refreshes the event snapshot
// on its contributions.
func (s *EventService) Update(ctx context.Context, id string, req UpdateEventRequest, actor models.Actor, meta models.RequestMeta) (*dto.EventView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid update event payload")
	}
	event, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeFaculty(actor, event.Faculty.ID); err != nil {
		return nil, err
	}
	previousName := event.Name
	previousFaculty := event.Faculty.ID

	if req.Name != nil {
		event.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		event.Description = *req.Description
	}
	if req.ClosureDate != nil {
		event.ClosureDate = req.ClosureDate.UTC()
	}
	if req.FinalClosureDate != nil {
		event.FinalClosureDate = req.FinalClosureDate.UTC()
	}
	if !event.FinalClosureDate.After(event.ClosureDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "final_closure_date must be after closure_date")
	}
	if req.FacultyID != nil && *req.FacultyID != event.Faculty.ID {
		if err := authorizeFaculty(actor, *req.FacultyID); err != nil {
			return nil, err
		}
		faculty, err := s.faculty(ctx, *req.FacultyID)
		if err != nil {
			return nil, err
		}
		event.Faculty = models.EventFacultyOf(faculty)
	}

	if err := s.repo.Update(ctx, event); err != nil {
		return nil, storageError(err, "failed to update event")
	}
	patch := models.Patch{}
	if event.Name != previousName {
		patch = patch.Set(models.FieldEventName, event.Name)
	}
	moved := event.Faculty.ID != previousFaculty
	if moved {
		// contributions take their faculty from the event
		patch = patch.Set(models.FieldFacultyID, event.Faculty.ID).Set(models.FieldFacultyName, event.Faculty.Name)
	}
	if len(patch) > 0 {
		filter := models.Filter{}.Eq(models.FieldEventID, id)
		if _, err := s.store.UpdateMany(ctx, models.CollectionContributions, filter, patch); err != nil {
			return nil, storageError(err, "failed to refresh event snapshot on contributions")
		}
	}
	if moved {
		_ = s.cache.Invalidate(ctx, eventCachePrefix+"*", facultyCachePrefix+"*")
	} else {
		_ = s.cache.Invalidate(ctx, eventCachePrefix+"*")
	}

	recordAudit(ctx, s.audit, s.logger, actor.ID, meta, auditEntry{
		action: models.AuditActionEventUpdate, resource: "events", resourceID: id,
		old: map[string]interface{}{"name": previousName, "faculty_id": previousFaculty},
		new: map[string]interface{}{"name": event.Name, "faculty_id": event.Faculty.ID},
	})
	count, err := s.repo.CountContributions(ctx, id)
	if err != nil {
		return nil, storageError(err, "failed to count contributions")
	}
	view := dto.NewEventView(*event, count, s.now())
	return &view, nil
}

// Delete soft-deletes the event and its live contributions.
func (s *EventService) Delete(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta) error {
	event, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := authorizeFaculty(actor, event.Faculty.ID); err != nil {
		return err
	}
	now := s.now()
	if err := s.repo.SoftDelete(ctx, id, now); err != nil {
		return storageError(err, "failed to delete event")
	}
	filter := models.Filter{}.Eq(models.FieldEventID, id).IsNull(models.FieldDeletedAt)
	patch := models.Patch{}.Set(models.FieldDeletedAt, now)
	if _, err := s.store.UpdateMany(ctx, models.CollectionContributions, filter, patch); err != nil {
		return storageError(err, "failed to delete event contributions")
	}
	_ = s.cache.Invalidate(ctx, eventCachePrefix+"*", facultyCachePrefix+"*")

	recordAudit(ctx, s.audit, s.logger, actor.ID, meta, auditEntry{
		action: models.AuditActionEventDelete, resource: "events", resourceID: id,
		new: map[string]interface{}{"deleted_at": now},
	})
	return nil
}

func (s *EventService) load(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "event not found", "failed to load event")
	}
	return event, nil
}

func (s *EventService) faculty(ctx context.Context, id string) (*models.Faculty, error) {
	faculty, err := s.faculties.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "faculty not found", "failed to load faculty")
	}
	return faculty, nil
}

// authorizeFaculty restricts marketing coordinators to their own faculty.
func authorizeFaculty(actor models.Actor, facultyID string) error {
	if actor.Is(models.RoleMarketingCoordinator) && actor.FacultyID != facultyID {
		return appErrors.Clone(appErrors.ErrForbidden, "coordinators may only manage their own faculty")
	}
	return nil
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
