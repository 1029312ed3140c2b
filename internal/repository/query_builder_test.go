package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-contrib-api/internal/models"
)

func TestQueryBuilderWhere(t *testing.T) {
	b := mustQueryBuilder(models.CollectionEvents)
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	where, err := b.where(models.Filter{}.
		Eq(models.FieldFacultyID, "f1").
		IsNull(models.FieldDeletedAt).
		Ne(models.FieldFacultyMCID, "u1").
		ILike(models.FieldName, "fair").
		Gte("closure_date", since))
	require.NoError(t, err)

	assert.Equal(t, "faculty_id = $1 AND deleted_at IS NULL AND faculty_mc_id IS DISTINCT FROM $2 AND name ILIKE $3 AND closure_date >= $4", where)
	assert.Equal(t, []interface{}{"f1", "u1", "%fair%", since}, b.args)
}

func TestQueryBuilderRejectsUnknownField(t *testing.T) {
	b := mustQueryBuilder(models.CollectionUsers)
	_, err := b.where(models.Filter{}.Eq("password_hash", "x"))
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = b.set(models.Patch{}.Set("faculty.mc.id", "u1"))
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestQueryBuilderSetContinuesPlaceholders(t *testing.T) {
	b := mustQueryBuilder(models.CollectionFaculties)
	set, err := b.set(models.Patch{}.SetNull(models.FieldMCID).SetNull(models.FieldMCName).Set(models.FieldName, "Arts"))
	require.NoError(t, err)
	where, err := b.where(models.Filter{}.Eq(models.FieldID, "f1"))
	require.NoError(t, err)

	assert.Equal(t, "mc_id = NULL, mc_name = NULL, name = $1", set)
	assert.Equal(t, "id = $2", where)
}

func TestQueryBuilderOrderByFallsBack(t *testing.T) {
	b := mustQueryBuilder(models.CollectionContributions).withAlias("c")
	assert.Equal(t, "ORDER BY c.created_at DESC", b.orderBy(models.Sort{Field: "drop table", Desc: true}, "created_at"))
	assert.Equal(t, "ORDER BY c.title ASC", b.orderBy(models.NewSort("title", "asc", "created_at"), "created_at"))
}

func TestPageClamping(t *testing.T) {
	p := models.NewPage(0, 500)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, models.MaxPageSize, p.PageSize)
	assert.Equal(t, 0, p.Offset())

	p = models.NewPage(3, 0)
	assert.Equal(t, models.DefaultPageSize, p.PageSize)
	assert.Equal(t, 40, p.Offset())
}
