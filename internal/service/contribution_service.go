package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-contrib-api/internal/dto"
	"github.com/noah-isme/uni-contrib-api/internal/models"
	appErrors "github.com/noah-isme/uni-contrib-api/pkg/errors"
	"github.com/noah-isme/uni-contrib-api/pkg/export"
	mailer "github.com/noah-isme/uni-contrib-api/pkg/mail"
)

const contributionFolder = "contributions"

type contributionRepository interface {
	List(ctx context.Context, filter models.ContributionFilter) ([]models.Contribution, int, error)
	FindByID(ctx context.Context, id string) (*models.Contribution, error)
	Create(ctx context.Context, c *models.Contribution) error
	Update(ctx context.Context, c *models.Contribution) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	Stats(ctx context.Context, filter models.ContributionStatsFilter) ([]models.ContributionStat, error)
}

type eventFinder interface {
	FindByID(ctx context.Context, id string) (*models.Event, error)
}

type urlSigner interface {
	Generate(ownerID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (ownerID, relPath string, expiresAt time.Time, err error)
}

type fileOpener interface {
	Open(filename string) (io.ReadCloser, error)
}

// SubmitContributionRequest captures the metadata of a new contribution.
type SubmitContributionRequest struct {
	Title       string `json:"title" form:"title" validate:"required,max=200"`
	Description string `json:"description" form:"description" validate:"max=5000"`
	EventID     string `json:"event_id" form:"event_id" validate:"required"`
}

// UpdateContributionRequest modifies an author's contribution.
type UpdateContributionRequest struct {
	Title       *string `json:"title" form:"title" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" form:"description" validate:"omitempty,max=5000"`
}

// ReviewContributionRequest records a coordinator decision.
type ReviewContributionRequest struct {
	Status  models.ContributionStatus `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	Comment string                    `json:"comment" validate:"max=2000"`
}

// VisibilityRequest toggles publication of an approved contribution.
type VisibilityRequest struct {
	IsPublic bool `json:"is_public"`
}

// DownloadedFile is a resolved signed download.
type DownloadedFile struct {
	Content  io.ReadCloser
	Name     string
	MIMEType string
	Size     int64
}

// ContributionServiceDeps groups the collaborators of ContributionService.
type ContributionServiceDeps struct {
	Repo            contributionRepository
	Events          eventFinder
	Users           userFinder
	Uploader        *Uploader
	Files           fileOpener
	Signer          urlSigner
	Mailer          mailer.Sender
	Audit           AuditRecorder
	DownloadBaseURL string
	Validator       *validator.Validate
	Logger          *zap.Logger
}

// ContributionService handles submission, moderation and reporting of contributions.
type ContributionService struct {
	repo            contributionRepository
	events          eventFinder
	users           userFinder
	uploader        *Uploader
	files           fileOpener
	signer          urlSigner
	mailer          mailer.Sender
	audit           AuditRecorder
	downloadBaseURL string
	validator       *validator.Validate
	logger          *zap.Logger
	now             func() time.Time
}

// NewContributionService constructs ContributionService.
func NewContributionService(deps ContributionServiceDeps) *ContributionService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ContributionService{
		repo:            deps.Repo,
		events:          deps.Events,
		users:           deps.Users,
		uploader:        deps.Uploader,
		files:           deps.Files,
		signer:          deps.Signer,
		mailer:          deps.Mailer,
		audit:           deps.Audit,
		downloadBaseURL: deps.DownloadBaseURL,
		validator:       deps.Validator,
		logger:          deps.Logger,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Submit stores a student's files and creates a pending contribution with
// author, event and faculty snapshots taken now.
func (s *ContributionService) Submit(ctx context.Context, actor models.Actor, req SubmitContributionRequest, uploads []models.Upload, meta models.RequestMeta) (*models.Contribution, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid contribution payload")
	}
	if len(uploads) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one file is required")
	}
	if !actor.Is(models.RoleStudent) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can submit contributions")
	}
	author, err := s.users.FindByID(ctx, actor.ID)
	if err != nil {
		return nil, lookupError(err, "user not found", "failed to load user")
	}
	event, err := s.event(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if author.FacultyID() == "" || author.FacultyID() != event.Faculty.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "event belongs to another faculty")
	}
	if event.IsFirstClosed(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrEventClosed, "event no longer accepts submissions")
	}

	files, err := s.uploader.StoreAll(contributionFolder+"/"+event.ID, uploads)
	if err != nil {
		return nil, err
	}
	contribution := &models.Contribution{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Status:      models.ContributionPending,
		Author:      models.AuthorRefFromUser(author),
		Event:       models.EventRef{ID: event.ID, Name: event.Name},
		Faculty:     models.FacultyRef{ID: event.Faculty.ID, Name: event.Faculty.Name},
		Files:       files,
	}
	if err := s.repo.Create(ctx, contribution); err != nil {
		s.uploader.Remove(files...)
		return nil, storageError(err, "failed to create contribution")
	}

	if mc := event.Faculty.MC; mc != nil && mc.Email != "" {
		s.notify(ctx, mailer.Message{
			To:      []mail.Address{{Name: mc.Name, Address: mc.Email}},
			Subject: fmt.Sprintf("New contribution for %s", event.Name),
			Text:    fmt.Sprintf("%s submitted %q to %s. Please review it within 14 days.", author.FullName, contribution.Title, event.Name),
		})
	}
	recordAudit(ctx, s.audit, s.logger, actor.ID, meta, auditEntry{
		action: models.AuditActionContributionSubmit, resource: "contributions", resourceID: contribution.ID,
		new: map[string]interface{}{"title": contribution.Title, "event_id": event.ID, "files": len(files)},
	})
	return contribution, nil
}

// Update lets the author edit metadata and attach more files until the
// event's final closure date.
func (s *ContributionService) Update(ctx context.Context, id string, actor models.Actor, req UpdateContributionRequest, uploads []models.Upload, meta models.RequestMeta) (*models.Contribution, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid contribution payload")
	}
	contribution, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if contribution.Author.ID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the author can edit a contribution")
	}
	event, err := s.event(ctx, contribution.Event.ID)
	if err != nil {
		return nil, err
	}
	if event.IsFinalClosed(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrEventClosed, "event is closed for edits")
	}

	if req.Title != nil {
		contribution.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		contribution.Description = *req.Description
	}
	var added models.ContributionFiles
	if len(uploads) > 0 {
		added, err = s.uploader.StoreAll(contributionFolder+"/"+event.ID, uploads)
		if err != nil {
			return nil, err
		}
		contribution.Files = append(contribution.Files, added...)
	}
	if err := s.repo.Update(ctx, contribution); err != nil {
		s.uploader.Remove(added...)
		return nil, storageError(err, "failed to update contribution")
	}

	recordAudit(ctx, s.audit, s.logger, actor.ID, meta, auditEntry{
		action: models.AuditActionContributionUpdate, resource: "contributions", resourceID: id,
		new: map[string]interface{}{"title": contribution.Title, "files_added": len(added)},
	})
	return contribution, nil
}

// Delete soft-deletes a contribution. Authors may delete until the closure
// date; admins at any time.
func (s *ContributionService) Delete(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta) error {
	contribution, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !actor.Is(models.RoleAdmin) {
		if contribution.Author.ID != actor.ID {
			return appErrors.Clone(appErrors.ErrForbidden, "only the author can delete a contribution")
		}
		event, err := s.event(ctx, contribution.Event.ID)
		if err != nil {
			return err
		}
		if event.IsFirstClosed(s.now()) {
			return appErrors.Clone(appErrors.ErrEventClosed, "event is closed")
		}
	}
	now := s.now()
	if err := s.repo.SoftDelete(ctx, id, now); err != nil {
		return storageError(err, "failed to delete contribution")
	}
	recordAudit(ctx, s.audit, s.logger, actor.ID, meta, auditEntry{
		action: models.AuditActionContributionDelete, resource: "contributions", resourceID: id,
		new: map[string]interface{}{"deleted_at": now},
	})
	return nil
}

// Review approves or rejects a contribution of the coordinator's faculty and
// informs the author.
func (s *ContributionService) Review(ctx context.Context, id string, actor models.Actor, req ReviewContributionRequest, meta models.RequestMeta) (*models.Contribution, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid review payload")
	}
	contribution, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeCoordinator(ctx, actor, contribution); err != nil {
		return nil, err
	}
	previous := contribution.Status
	contribution.Status = req.Status
	contribution.Comment = req.Comment
	if req.Status == models.ContributionRejected {
		contribution.IsPublic = false
	}
	if err := s.repo.Update(ctx, contribution); err != nil {
		return nil, storageError(err, "failed to review contribution")
	}

	if contribution.Author.Email != "" {
		s.notify(ctx, mailer.Message{
			To:      []mail.Address{{Name: contribution.Author.Name, Address: contribution.Author.Email}},
			Subject: fmt.Sprintf("Your contribution was %s", strings.ToLower(string(req.Status))),
			Text:    fmt.Sprintf("%q for %s was %s.\n\n%s", contribution.Title, contribution.Event.Name, strings.ToLower(string(req.Status)), req.Comment),
		})
	}
	recordAudit(ctx, s.audit, s.logger, actor.ID, meta, auditEntry{
		action: models.AuditActionContributionReview, resource: "contributions", resourceID: id,
		old: map[string]interface{}{"status": previous},
		new: map[string]interface{}{"status": req.Status, "comment": req.Comment},
	})
	return contribution, nil
}

// SetPublic publishes or hides an approved contribution.
func (s *ContributionService) SetPublic(ctx context.Context, id string, actor models.Actor, req VisibilityRequest, meta models.RequestMeta) (*models.Contribution, error) {
	contribution, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeCoordinator(ctx, actor, contribution); err != nil {
		return nil, err
	}
	if req.IsPublic && contribution.Status != models.ContributionApproved {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only approved contributions can be published")
	}
	contribution.IsPublic = req.IsPublic
	if err := s.repo.Update(ctx, contribution); err != nil {
		return nil, storageError(err, "failed to update contribution visibility")
	}
	recordAudit(ctx, s.audit, s.logger, actor.ID, meta, auditEntry{
		action: models.AuditActionContributionPublic, resource: "contributions", resourceID: id,
		new: map[string]interface{}{"is_public": req.IsPublic},
	})
	return contribution, nil
}

// List returns contributions visible to the actor.
func (s *ContributionService) List(ctx context.Context, actor models.Actor, filter models.ContributionFilter) ([]models.Contribution, *models.Pagination, error) {
	scoped, ok := scopeContributionFilter(actor, filter)
	if !ok {
		return []models.Contribution{}, newPagination(filter.Page, filter.PageSize, 0), nil
	}
	items, total, err := s.repo.List(ctx, scoped)
	if err != nil {
		return nil, nil, storageError(err, "failed to list contributions")
	}
	return items, newPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns one contribution if the actor may see it.
func (s *ContributionService) Get(ctx context.Context, id string, actor models.Actor) (*models.Contribution, error) {
	contribution, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canViewContribution(actor, contribution) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "contribution not found")
	}
	return contribution, nil
}

// FileURL issues a signed download link for the file at index.
func (s *ContributionService) FileURL(ctx context.Context, id string, index int, actor models.Actor) (*dto.FileURL, error) {
	contribution, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(contribution.Files) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
	}
	file := contribution.Files[index]
	token, expiresAt, err := s.signer.Generate(contribution.ID, file.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign file url")
	}
	return &dto.FileURL{
		URL:       s.downloadBaseURL + "?token=" + url.QueryEscape(token),
		Name:      file.Name,
		MIMEType:  file.MIMEType,
		ExpiresAt: expiresAt.UTC(),
	}, nil
}

// Download resolves a signed token to the stored file. The contribution must
// still be live and still list the file.
func (s *ContributionService) Download(ctx context.Context, token string) (*DownloadedFile, error) {
	ownerID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired download link")
	}
	contribution, err := s.load(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, file := range contribution.Files {
		if file.Path != relPath {
			continue
		}
		content, err := s.files.Open(file.Path)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "file not found")
		}
		return &DownloadedFile{Content: content, Name: file.Name, MIMEType: file.MIMEType, Size: file.Size}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
}

// Stats aggregates contribution counts per faculty and status.
func (s *ContributionService) Stats(ctx context.Context, filter models.ContributionStatsFilter) (*dto.ContributionStats, error) {
	rows, err := s.repo.Stats(ctx, filter)
	if err != nil {
		return nil, storageError(err, "failed to load contribution statistics")
	}
	stats := dto.NewContributionStats(rows, s.now())
	return &stats, nil
}

// Export renders the statistics report in the requested format.
func (s *ContributionService) Export(ctx context.Context, rawFormat string, filter models.ContributionStatsFilter) ([]byte, export.Format, error) {
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, "", validationError(err, "invalid export format")
	}
	stats, err := s.Stats(ctx, filter)
	if err != nil {
		return nil, "", err
	}

	table := export.Table{
		Title:   "Contributions by faculty",
		Columns: []string{"Faculty", "Total", "Pending", "Approved", "Rejected", "Contributors", "Share %"},
	}
	for _, f := range stats.Faculties {
		table.AddRow(
			f.FacultyName,
			strconv.Itoa(f.Total),
			strconv.Itoa(f.ByStatus.Pending),
			strconv.Itoa(f.ByStatus.Approved),
			strconv.Itoa(f.ByStatus.Rejected),
			strconv.Itoa(f.Contributors),
			strconv.FormatFloat(f.Share*100, 'f', 1, 64),
		)
	}
	table.AddRow("Total", strconv.Itoa(stats.Total))

	data, err := export.Render(format, table)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return data, format, nil
}

func (s *ContributionService) load(ctx context.Context, id string) (*models.Contribution, error) {
	contribution, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "contribution not found", "failed to load contribution")
	}
	return contribution, nil
}

func (s *ContributionService) event(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.events.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "event not found", "failed to load event")
	}
	return event, nil
}

// authorizeCoordinator checks the coordinator's current faculty rather than
// the token claim, which outlives a release from the faculty.
func (s *ContributionService) authorizeCoordinator(ctx context.Context, actor models.Actor, c *models.Contribution) error {
	forbidden := appErrors.Clone(appErrors.ErrForbidden, "only the faculty coordinator can moderate this contribution")
	if !actor.Is(models.RoleMarketingCoordinator) || actor.FacultyID != c.Faculty.ID {
		return forbidden
	}
	user, err := s.users.FindByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return forbidden
		}
		return storageError(err, "failed to load coordinator")
	}
	if user.Role != models.RoleMarketingCoordinator || user.FacultyID() != c.Faculty.ID {
		return forbidden
	}
	return nil
}

// notify sends mail on a best effort basis.
func (s *ContributionService) notify(ctx context.Context, msg mailer.Message) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Warn("failed to send notification", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

// scopeContributionFilter narrows filter to what actor may see. It returns
// false when the actor can see nothing.
func scopeContributionFilter(actor models.Actor, filter models.ContributionFilter) (models.ContributionFilter, bool) {
	public := true
	switch actor.Role {
	case models.RoleAdmin, models.RoleMarketingManager:
	case models.RoleMarketingCoordinator:
		if actor.FacultyID == "" {
			return filter, false
		}
		filter.FacultyID = actor.FacultyID
	case models.RoleStudent:
		if filter.AuthorID != actor.ID {
			filter.IsPublic = &public
			filter.VisibleToAuthorID = actor.ID
		}
	case models.RoleGuest:
		if actor.FacultyID == "" {
			return filter, false
		}
		filter.FacultyID = actor.FacultyID
		filter.IsPublic = &public
	default:
		return filter, false
	}
	return filter, true
}

func canViewContribution(actor models.Actor, c *models.Contribution) bool {
	switch actor.Role {
	case models.RoleAdmin, models.RoleMarketingManager:
		return true
	case models.RoleMarketingCoordinator:
		return actor.FacultyID != "" && actor.FacultyID == c.Faculty.ID
	case models.RoleStudent:
		return c.Author.ID == actor.ID || c.IsPublic
	case models.RoleGuest:
		return c.IsPublic && actor.FacultyID != "" && actor.FacultyID == c.Faculty.ID
	}
	return false
}
