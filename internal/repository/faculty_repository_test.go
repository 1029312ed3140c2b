package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-contrib-api/internal/models"
)

var facultyRowColumns = []string{"id", "name", "description", "banner_image_url", "mc_id", "mc_name", "mc_email", "mc_avatar_url", "created_at", "updated_at", "deleted_at"}

func TestFacultyFindByIDExcludesDeleted(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFacultyRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(facultyRowColumns).
		AddRow("f1", "Engineering", "", "", "u1", "Ann", "a@x.com", "/a.png", now, now, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM faculties WHERE id = $1 AND deleted_at IS NULL LIMIT 1")).
		WithArgs("f1").
		WillReturnRows(rows)

	faculty, err := repo.FindByID(context.Background(), "f1")
	require.NoError(t, err)
	require.NotNil(t, faculty.MC)
	assert.Equal(t, models.McRef{ID: "u1", Name: "Ann", Email: "a@x.com", AvatarURL: "/a.png"}, *faculty.MC)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFacultyFindAnyByIDReturnsDeleted(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFacultyRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(facultyRowColumns).
		AddRow("f1", "Engineering", "", "", nil, nil, nil, nil, now, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM faculties WHERE id = $1 LIMIT 1")).
		WithArgs("f1").
		WillReturnRows(rows)

	faculty, err := repo.FindAnyByID(context.Background(), "f1")
	require.NoError(t, err)
	assert.True(t, faculty.IsDeleted())
	assert.Nil(t, faculty.MC)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFacultyListWithCounts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFacultyRepository(db)

	now := time.Now()
	cols := append(append([]string{}, facultyRowColumns...), "event_count", "contribution_count", "user_count")
	rows := sqlmock.NewRows(cols).
		AddRow("f1", "Engineering", "", "", nil, nil, nil, nil, now, now, nil, 2, 9, 30)
	mock.ExpectQuery(regexp.QuoteMeta("FROM faculties f WHERE f.deleted_at IS NULL AND f.name ILIKE $1 ORDER BY f.name ASC LIMIT 20 OFFSET 0")).
		WithArgs("%eng%").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM faculties f WHERE f.deleted_at IS NULL AND f.name ILIKE $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.FacultyFilter{Search: "eng"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, total)
	assert.Nil(t, items[0].MC)
	assert.Equal(t, 2, items[0].EventCount)
	assert.Equal(t, 9, items[0].ContributionCount)
	assert.Equal(t, 30, items[0].UserCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFacultyExistsByName(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFacultyRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM faculties WHERE LOWER(name) = LOWER($1) AND deleted_at IS NULL AND id <> $2)")).
		WithArgs("Engineering", "").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByName(context.Background(), "Engineering", "")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFacultyCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFacultyRepository(db)

	mock.ExpectExec("INSERT INTO faculties").WillReturnResult(sqlmock.NewResult(0, 1))

	faculty := &models.Faculty{Name: "Engineering"}
	require.NoError(t, repo.Create(context.Background(), faculty))
	assert.NotEmpty(t, faculty.ID)
	assert.False(t, faculty.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFacultyListForReconcileIncludesDeleted(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFacultyRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM faculties ORDER BY id")).
		WillReturnRows(sqlmock.NewRows(facultyRowColumns).
			AddRow("f1", "Engineering", "", "", nil, nil, nil, nil, now, now, nil).
			AddRow("f2", "Closed", "", "", nil, nil, nil, nil, now, now, now))

	items, err := repo.ListForReconcile(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.NotNil(t, items[1].DeletedAt)

	mock.ExpectQuery(regexp.QuoteMeta("FROM faculties WHERE deleted_at IS NULL ORDER BY id")).
		WillReturnRows(sqlmock.NewRows(facultyRowColumns))
	items, err = repo.ListForReconcile(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}
