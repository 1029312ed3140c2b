package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-contrib-api/internal/models"
)

// EventRepository provides database access for events.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository creates a new instance of EventRepository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// List returns live events with their live contribution counts.
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter) ([]models.EventWithCount, int, error) {
	b := mustQueryBuilder(models.CollectionEvents).withAlias("e")
	conds := models.Filter{}.IsNull(models.FieldDeletedAt)
	if s := strings.TrimSpace(filter.Search); s != "" {
		conds = conds.ILike(models.FieldName, s)
	}
	if filter.FacultyID != "" {
		conds = conds.Eq(models.FieldFacultyID, filter.FacultyID)
	}
	if filter.ClosureFrom != nil {
		conds = conds.Gte("closure_date", *filter.ClosureFrom)
	}
	if filter.ClosureTo != nil {
		conds = conds.Lte("closure_date", *filter.ClosureTo)
	}
	where, err := b.where(conds)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}

	page := models.NewPage(filter.Page, filter.PageSize)
	sort := models.NewSort(filter.SortBy, filter.SortOrder, "closure_date")
	if filter.SortBy == "" {
		sort.Desc = true
	}

	listQuery := fmt.Sprintf(`SELECT e.id, e.name, e.description, e.closure_date, e.final_closure_date, e.faculty_id, e.faculty_name, e.faculty_mc_id, e.faculty_mc_name, e.faculty_mc_email, e.faculty_mc_avatar_url, e.created_at, e.updated_at, e.deleted_at,
(SELECT COUNT(*) FROM contributions c WHERE c.event_id = e.id AND c.deleted_at IS NULL) AS contribution_count
FROM events e WHERE %s %s %s`, where, b.orderBy(sort, "closure_date"), b.limit(page))

	var rows []eventCountRow
	if err := r.db.SelectContext(ctx, &rows, listQuery, b.args...); err != nil {
		return nil, 0, classify(fmt.Errorf("list events: %w", err))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM events e WHERE %s", where), b.args...); err != nil {
		return nil, 0, classify(fmt.Errorf("count events: %w", err))
	}

	out := make([]models.EventWithCount, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.EventWithCount{Event: row.toModel(), ContributionCount: row.ContributionCount})
	}
	return out, total, nil
}

// FindByID returns a live event by identifier.
func (r *EventRepository) FindByID(ctx context.Context, id string) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1 AND deleted_at IS NULL LIMIT 1`
	var row eventRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, classify(fmt.Errorf("find event by id: %w", err))
	}
	e := row.toModel()
	return &e, nil
}

// CountContributions returns the number of live contributions of an event.
func (r *EventRepository) CountContributions(ctx context.Context, eventID string) (int, error) {
	const query = `SELECT COUNT(*) FROM contributions WHERE event_id = $1 AND deleted_at IS NULL`
	var total int
	if err := r.db.GetContext(ctx, &total, query, eventID); err != nil {
		return 0, classify(fmt.Errorf("count event contributions: %w", err))
	}
	return total, nil
}

// Create inserts a new event.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	const query = `INSERT INTO events (id, name, description, closure_date, final_closure_date, faculty_id, faculty_name, faculty_mc_id, faculty_mc_name, faculty_mc_email, faculty_mc_avatar_url, created_at, updated_at) VALUES (:id, :name, :description, :closure_date, :final_closure_date, :faculty_id, :faculty_name, :faculty_mc_id, :faculty_mc_name, :faculty_mc_email, :faculty_mc_avatar_url, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, eventRowOf(event)); err != nil {
		return classify(fmt.Errorf("create event: %w", err))
	}
	return nil
}

// Update persists the mutable fields and the faculty snapshot of an event.
func (r *EventRepository) Update(ctx context.Context, event *models.Event) error {
	event.UpdatedAt = time.Now().UTC()
	const query = `UPDATE events SET name = :name, description = :description, closure_date = :closure_date, final_closure_date = :final_closure_date, faculty_id = :faculty_id, faculty_name = :faculty_name, faculty_mc_id = :faculty_mc_id, faculty_mc_name = :faculty_mc_name, faculty_mc_email = :faculty_mc_email, faculty_mc_avatar_url = :faculty_mc_avatar_url, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, eventRowOf(event)); err != nil {
		return classify(fmt.Errorf("update event: %w", err))
	}
	return nil
}

// SoftDelete marks an event as deleted.
func (r *EventRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE events SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return classify(fmt.Errorf("delete event: %w", err))
	}
	return nil
}
