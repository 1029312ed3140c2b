package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-contrib-api/internal/models"
	"github.com/noah-isme/uni-contrib-api/internal/repository"
	appErrors "github.com/noah-isme/uni-contrib-api/pkg/errors"
)

// AuditRecorder persists audit trail entries.
type AuditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// storageError maps a repository failure onto the API error taxonomy.
func storageError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, repository.ErrUnavailable) {
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, message)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// lookupError is storageError with sql.ErrNoRows mapped to not found.
func lookupError(err error, notFound, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return storageError(err, message)
}

func validationError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

func newPagination(page, size, total int) *models.Pagination {
	p := models.NewPage(page, size)
	return &models.Pagination{Page: p.Page, PageSize: p.PageSize, TotalCount: total}
}

type auditEntry struct {
	action     string
	resource   string
	resourceID string
	old        interface{}
	new        interface{}
}

// recordAudit writes an audit entry; failures are logged and never surface.
func recordAudit(ctx context.Context, recorder AuditRecorder, logger *zap.Logger, actorID string, meta models.RequestMeta, entry auditEntry) {
	if recorder == nil {
		return
	}
	log := &models.AuditLog{
		Action:    entry.action,
		Resource:  entry.resource,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}
	if actorID != "" {
		log.UserID = &actorID
	}
	if entry.resourceID != "" {
		id := entry.resourceID
		log.ResourceID = &id
	}
	if entry.old != nil {
		log.OldValues, _ = json.Marshal(entry.old)
	}
	if entry.new != nil {
		log.NewValues, _ = json.Marshal(entry.new)
	}
	if err := recorder.CreateAuditLog(ctx, log); err != nil {
		logger.Warn("failed to record audit log", zap.String("action", entry.action), zap.Error(err))
	}
}
