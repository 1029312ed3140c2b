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

// FacultyRepository provides database access for faculties. Every read
// excludes soft-deleted rows.
type FacultyRepository struct {
	db *sqlx.DB
}

// NewFacultyRepository creates a new instance of FacultyRepository.
func NewFacultyRepository(db *sqlx.DB) *FacultyRepository {
	return &FacultyRepository{db: db}
}

// List returns live faculties with event, contribution and user counts.
func (r *FacultyRepository) List(ctx context.Context, filter models.FacultyFilter) ([]models.FacultySummary, int, error) {
	b := mustQueryBuilder(models.CollectionFaculties).withAlias("f")
	conds := models.Filter{}.IsNull(models.FieldDeletedAt)
	if s := strings.TrimSpace(filter.Search); s != "" {
		conds = conds.ILike(models.FieldName, s)
	}
	where, err := b.where(conds)
	if err != nil {
		return nil, 0, fmt.Errorf("list faculties: %w", err)
	}

	page := models.NewPage(filter.Page, filter.PageSize)
	order := b.orderBy(models.NewSort(filter.SortBy, filter.SortOrder, models.FieldName), models.FieldName)

	listQuery := fmt.Sprintf(`SELECT f.id, f.name, f.description, f.banner_image_url, f.mc_id, f.mc_name, f.mc_email, f.mc_avatar_url, f.created_at, f.updated_at, f.deleted_at,
(SELECT COUNT(*) FROM events e WHERE e.faculty_id = f.id AND e.deleted_at IS NULL) AS event_count,
(SELECT COUNT(*) FROM contributions c WHERE c.faculty_id = f.id AND c.deleted_at IS NULL) AS contribution_count,
(SELECT COUNT(*) FROM users u WHERE u.faculty_id = f.id) AS user_count
FROM faculties f WHERE %s %s %s`, where, order, b.limit(page))

	var rows []facultySummaryRow
	if err := r.db.SelectContext(ctx, &rows, listQuery, b.args...); err != nil {
		return nil, 0, classify(fmt.Errorf("list faculties: %w", err))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM faculties f WHERE %s", where), b.args...); err != nil {
		return nil, 0, classify(fmt.Errorf("count faculties: %w", err))
	}

	out := make([]models.FacultySummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.FacultySummary{
			Faculty:           row.toModel(),
			EventCount:        row.EventCount,
			ContributionCount: row.ContributionCount,
			UserCount:         row.UserCount,
		})
	}
	return out, total, nil
}

// FindByID returns a live faculty by identifier.
func (r *FacultyRepository) FindByID(ctx context.Context, id string) (*models.Faculty, error) {
	query := `SELECT ` + facultyColumns + ` FROM faculties WHERE id = $1 AND deleted_at IS NULL LIMIT 1`
	var row facultyRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, classify(fmt.Errorf("find faculty by id: %w", err))
	}
	f := row.toModel()
	return &f, nil
}

// FindAnyByID returns the faculty whether or not it is soft-deleted.
func (r *FacultyRepository) FindAnyByID(ctx context.Context, id string) (*models.Faculty, error) {
	query := `SELECT ` + facultyColumns + ` FROM faculties WHERE id = $1 LIMIT 1`
	var row facultyRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, classify(fmt.Errorf("find faculty by id: %w", err))
	}
	f := row.toModel()
	return &f, nil
}

// ExistsByName checks for a live faculty with the same case-insensitive name.
func (r *FacultyRepository) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM faculties WHERE LOWER(name) = LOWER($1) AND deleted_at IS NULL AND id <> $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, name, excludeID); err != nil {
		return false, classify(fmt.Errorf("check faculty name: %w", err))
	}
	return exists, nil
}

// Create inserts a new faculty.
func (r *FacultyRepository) Create(ctx context.Context, faculty *models.Faculty) error {
	if faculty.ID == "" {
		faculty.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if faculty.CreatedAt.IsZero() {
		faculty.CreatedAt = now
	}
	faculty.UpdatedAt = now

	const query = `INSERT INTO faculties (id, name, description, banner_image_url, mc_id, mc_name, mc_email, mc_avatar_url, created_at, updated_at) VALUES (:id, :name, :description, :banner_image_url, :mc_id, :mc_name, :mc_email, :mc_avatar_url, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, facultyRowOf(faculty)); err != nil {
		return classify(fmt.Errorf("create faculty: %w", err))
	}
	return nil
}

// Update persists name, description, banner, coordinator snapshot and deletion marker.
func (r *FacultyRepository) Update(ctx context.Context, faculty *models.Faculty) error {
	faculty.UpdatedAt = time.Now().UTC()
	const query = `UPDATE faculties SET name = :name, description = :description, banner_image_url = :banner_image_url, mc_id = :mc_id, mc_name = :mc_name, mc_email = :mc_email, mc_avatar_url = :mc_avatar_url, deleted_at = :deleted_at, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, facultyRowOf(faculty)); err != nil {
		return classify(fmt.Errorf("update faculty: %w", err))
	}
	return nil
}

// ListByMC returns live faculties whose coordinator snapshot points at userID.
func (r *FacultyRepository) ListByMC(ctx context.Context, userID string) ([]models.Faculty, error) {
	query := `SELECT ` + facultyColumns + ` FROM faculties WHERE mc_id = $1 AND deleted_at IS NULL`
	var rows []facultyRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, classify(fmt.Errorf("list faculties by mc: %w", err))
	}
	out := make([]models.Faculty, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

// ListForReconcile returns faculties ordered by id, optionally including
// soft-deleted rows so their dependents can be re-checked.
func (r *FacultyRepository) ListForReconcile(ctx context.Context, includeDeleted bool) ([]models.Faculty, error) {
	query := `SELECT ` + facultyColumns + ` FROM faculties`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY id`
	var rows []facultyRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, classify(fmt.Errorf("list faculties for reconcile: %w", err))
	}
	out := make([]models.Faculty, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}
