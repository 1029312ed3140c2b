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

// ContributionRepository provides database access for contributions.
type ContributionRepository struct {
	db *sqlx.DB
}

// NewContributionRepository creates a new instance of ContributionRepository.
func NewContributionRepository(db *sqlx.DB) *ContributionRepository {
	return &ContributionRepository{db: db}
}

// List returns live contributions matching the filter.
func (r *ContributionRepository) List(ctx context.Context, filter models.ContributionFilter) ([]models.Contribution, int, error) {
	b := mustQueryBuilder(models.CollectionContributions)
	conds := models.Filter{}.IsNull(models.FieldDeletedAt)
	if filter.EventID != "" {
		conds = conds.Eq(models.FieldEventID, filter.EventID)
	}
	if filter.FacultyID != "" {
		conds = conds.Eq(models.FieldFacultyID, filter.FacultyID)
	}
	if filter.AuthorID != "" {
		conds = conds.Eq(models.FieldAuthorID, filter.AuthorID)
	}
	if filter.Status != nil {
		conds = conds.Eq("status", string(*filter.Status))
	}
	if filter.IsPublic != nil && filter.VisibleToAuthorID == "" {
		conds = conds.Eq("is_public", *filter.IsPublic)
	}
	where, err := b.where(conds)
	if err != nil {
		return nil, 0, fmt.Errorf("list contributions: %w", err)
	}
	if filter.IsPublic != nil && filter.VisibleToAuthorID != "" {
		where += fmt.Sprintf(" AND (is_public = %s OR author_id = %s)", b.bind(*filter.IsPublic), b.bind(filter.VisibleToAuthorID))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		placeholder := b.bind("%" + s + "%")
		where += fmt.Sprintf(" AND (title ILIKE %s OR author_name ILIKE %s)", placeholder, placeholder)
	}

	page := models.NewPage(filter.Page, filter.PageSize)
	sort := models.NewSort(filter.SortBy, filter.SortOrder, "created_at")
	if filter.SortBy == "" {
		sort.Desc = true
	}

	listQuery := fmt.Sprintf("SELECT %s FROM contributions WHERE %s %s %s", contributionColumns, where, b.orderBy(sort, "created_at"), b.limit(page))
	var rows []contributionRow
	if err := r.db.SelectContext(ctx, &rows, listQuery, b.args...); err != nil {
		return nil, 0, classify(fmt.Errorf("list contributions: %w", err))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM contributions WHERE "+where, b.args...); err != nil {
		return nil, 0, classify(fmt.Errorf("count contributions: %w", err))
	}

	out := make([]models.Contribution, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, total, nil
}

// FindByID returns a live contribution by identifier.
func (r *ContributionRepository) FindByID(ctx context.Context, id string) (*models.Contribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM contributions WHERE id = $1 AND deleted_at IS NULL LIMIT 1`
	var row contributionRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, classify(fmt.Errorf("find contribution by id: %w", err))
	}
	c := row.toModel()
	return &c, nil
}

// Create inserts a new contribution.
func (r *ContributionRepository) Create(ctx context.Context, c *models.Contribution) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = models.ContributionPending
	}

	const query = `INSERT INTO contributions (id, title, description, status, is_public, author_id, author_name, author_email, author_avatar_url, event_id, event_name, faculty_id, faculty_name, files, comment, created_at, updated_at) VALUES (:id, :title, :description, :status, :is_public, :author_id, :author_name, :author_email, :author_avatar_url, :event_id, :event_name, :faculty_id, :faculty_name, :files, :comment, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, contributionRowOf(c)); err != nil {
		return classify(fmt.Errorf("create contribution: %w", err))
	}
	return nil
}

// Update persists the content and moderation fields of a contribution.
func (r *ContributionRepository) Update(ctx context.Context, c *models.Contribution) error {
	c.UpdatedAt = time.Now().UTC()
	const query = `UPDATE contributions SET title = :title, description = :description, status = :status, is_public = :is_public, files = :files, comment = :comment, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, contributionRowOf(c)); err != nil {
		return classify(fmt.Errorf("update contribution: %w", err))
	}
	return nil
}

// SoftDelete marks a contribution as deleted.
func (r *ContributionRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE contributions SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return classify(fmt.Errorf("delete contribution: %w", err))
	}
	return nil
}

// Stats aggregates live contributions per faculty and status.
func (r *ContributionRepository) Stats(ctx context.Context, filter models.ContributionStatsFilter) ([]models.ContributionStat, error) {
	b := mustQueryBuilder(models.CollectionContributions)
	conds := models.Filter{}.IsNull(models.FieldDeletedAt)
	if filter.EventID != "" {
		conds = conds.Eq(models.FieldEventID, filter.EventID)
	}
	if filter.FacultyID != "" {
		conds = conds.Eq(models.FieldFacultyID, filter.FacultyID)
	}
	where, err := b.where(conds)
	if err != nil {
		return nil, fmt.Errorf("contribution stats: %w", err)
	}
	query := fmt.Sprintf(`SELECT faculty_id, faculty_name, status, COUNT(*) AS total, COUNT(DISTINCT author_id) AS contributors FROM contributions WHERE %s GROUP BY faculty_id, faculty_name, status ORDER BY faculty_name, status`, where)

	var stats []models.ContributionStat
	if err := r.db.SelectContext(ctx, &stats, query, b.args...); err != nil {
		return nil, classify(fmt.Errorf("contribution stats: %w", err))
	}
	return stats, nil
}
