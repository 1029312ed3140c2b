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

var eventRowColumns = []string{"id", "name", "description", "closure_date", "final_closure_date", "faculty_id", "faculty_name", "faculty_mc_id", "faculty_mc_name", "faculty_mc_email", "faculty_mc_avatar_url", "created_at", "updated_at", "deleted_at"}

func TestEventListByFaculty(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	now := time.Now()
	cols := append(append([]string{}, eventRowColumns...), "contribution_count")
	rows := sqlmock.NewRows(cols).
		AddRow("e1", "Spring issue", "", now, now.Add(time.Hour), "f1", "Engineering", "u1", "Ann", "a@x.com", "/a.png", now, now, nil, 3)
	mock.ExpectQuery(regexp.QuoteMeta("FROM events e WHERE e.deleted_at IS NULL AND e.faculty_id = $1 ORDER BY e.closure_date DESC LIMIT 20 OFFSET 0")).
		WithArgs("f1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM events e WHERE e.deleted_at IS NULL AND e.faculty_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	events, total, err := repo.List(context.Background(), models.EventFilter{FacultyID: "f1"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, 3, events[0].ContributionCount)
	require.NotNil(t, events[0].Faculty.MC)
	assert.Equal(t, "Ann", events[0].Faculty.MC.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventSoftDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE events SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL")).
		WithArgs("e1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SoftDelete(context.Background(), "e1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}
