package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-contrib-api/internal/models"
	"github.com/noah-isme/uni-contrib-api/internal/repository"
	appErrors "github.com/noah-isme/uni-contrib-api/pkg/errors"
)

var ann = &models.McRef{ID: "u1", Name: "Ann", Email: "a@x.com", AvatarURL: "/a.png"}

func seedFaculty(store *memStore, id, name string) {
	store.put(models.CollectionFaculties, memDoc{models.FieldID: id, models.FieldName: name})
}

func seedUser(store *memStore, id string, role models.UserRole, facultyID, facultyName string) {
	doc := memDoc{models.FieldID: id, models.FieldRole: string(role)}
	if facultyID != "" {
		doc[models.FieldFacultyID] = facultyID
		doc[models.FieldFacultyName] = facultyName
	}
	store.put(models.CollectionUsers, doc)
}

func seedEvent(store *memStore, id, facultyID, facultyName string) {
	store.put(models.CollectionEvents, memDoc{models.FieldID: id, models.FieldFacultyID: facultyID, models.FieldFacultyName: facultyName})
}

func seedContribution(store *memStore, id, facultyID, facultyName string) {
	store.put(models.CollectionContributions, memDoc{models.FieldID: id, models.FieldFacultyID: facultyID, models.FieldFacultyName: facultyName})
}

// seedWorld builds two faculties with a user, an MC, an event and a contribution each.
func seedWorld(store *memStore) {
	for _, f := range []struct{ id, name string }{{"f1", "Engineering"}, {"f2", "Arts"}} {
		seedFaculty(store, f.id, f.name)
		seedUser(store, "s-"+f.id, models.RoleStudent, f.id, f.name)
		seedUser(store, "mc-"+f.id, models.RoleMarketingCoordinator, f.id, f.name)
		seedEvent(store, "e-"+f.id, f.id, f.name)
		seedContribution(store, "c-"+f.id, f.id, f.name)
	}
	seedUser(store, "u1", models.RoleMarketingCoordinator, "", "")
}

func newCascade(store *memStore, exclusive bool) *FacultyCascade {
	return NewFacultyCascade(store, NewMetricsService(), nil, exclusive)
}

func TestFacultyCascadePlan(t *testing.T) {
	c := newCascade(newMemStore(), true)
	deletedAt := time.Now()
	base := &models.Faculty{ID: "f1", Name: "Engineering"}

	tests := []struct {
		name     string
		previous *models.Faculty
		next     *models.Faculty
		want     []models.CascadeBranch
	}{
		{"no change", base, base.Clone(), nil},
		{"create without mc", nil, base, nil},
		{"create with mc", nil, &models.Faculty{ID: "f1", Name: "Engineering", MC: ann},
			[]models.CascadeBranch{models.BranchMCAssignUser, models.BranchMCAssignEvents, models.BranchMCReleasePrevious}},
		{"rename", base, &models.Faculty{ID: "f1", Name: "Eng & CS"},
			[]models.CascadeBranch{models.BranchNameUsers, models.BranchNameEvents, models.BranchNameContributions}},
		{"remove mc", &models.Faculty{ID: "f1", Name: "Engineering", MC: ann}, base,
			[]models.CascadeBranch{models.BranchMCRemoveUsers, models.BranchMCRemoveEvents}},
		{"refresh mc snapshot", &models.Faculty{ID: "f1", Name: "Engineering", MC: ann},
			&models.Faculty{ID: "f1", Name: "Engineering", MC: &models.McRef{ID: "u1", Name: "Ann B", Email: "a@x.com"}},
			[]models.CascadeBranch{models.BranchMCAssignEvents}},
		{"soft delete", base, &models.Faculty{ID: "f1", Name: "Engineering", DeletedAt: &deletedAt},
			[]models.CascadeBranch{models.BranchDeleteUsers, models.BranchDeleteEvents, models.BranchDeleteContributions}},
		{"rename and delete", base, &models.Faculty{ID: "f1", Name: "Old Eng", DeletedAt: &deletedAt},
			[]models.CascadeBranch{models.BranchNameEvents, models.BranchNameContributions, models.BranchDeleteUsers, models.BranchDeleteEvents, models.BranchDeleteContributions}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Plan(tt.previous, tt.next))
		})
	}
}

func TestFacultyCascadePlanNonExclusive(t *testing.T) {
	c := newCascade(newMemStore(), false)
	got := c.Plan(&models.Faculty{ID: "f1", Name: "Engineering"}, &models.Faculty{ID: "f1", Name: "Engineering", MC: ann})
	assert.Equal(t, []models.CascadeBranch{models.BranchMCAssignUser, models.BranchMCAssignEvents}, got)
}

func TestFacultyCascadeScenario(t *testing.T) {
	store := newMemStore()
	seedFaculty(store, "f1", "Engineering")
	seedEvent(store, "e1", "f1", "Engineering")
	seedUser(store, "u1", models.RoleMarketingCoordinator, "", "")
	c := newCascade(store, true)
	ctx := context.Background()

	f0 := &models.Faculty{ID: "f1", Name: "Engineering"}
	f1 := &models.Faculty{ID: "f1", Name: "Eng & CS"}
	res, err := c.Apply(ctx, f0, f1)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "Eng & CS", store.get(models.CollectionEvents, "e1")[models.FieldFacultyName])

	f2 := f1.Clone()
	f2.MC = ann.Clone()
	res, err = c.Apply(ctx, f1, f2)
	require.NoError(t, err)
	assert.True(t, res.OK())
	user := store.get(models.CollectionUsers, "u1")
	assert.Equal(t, "f1", user[models.FieldFacultyID])
	assert.Equal(t, "Eng & CS", user[models.FieldFacultyName])
	event := store.get(models.CollectionEvents, "e1")
	assert.Equal(t, "u1", event[models.FieldFacultyMCID])
	assert.Equal(t, "Ann", event[models.FieldFacultyMCName])
	assert.Equal(t, "a@x.com", event[models.FieldFacultyMCEmail])
	assert.Equal(t, "/a.png", event[models.FieldFacultyMCAvatar])

	deletedAt := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	f3 := f2.Clone()
	f3.DeletedAt = &deletedAt
	res, err = c.Apply(ctx, f2, f3)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, deletedAt, store.get(models.CollectionEvents, "e1")[models.FieldDeletedAt])
	user = store.get(models.CollectionUsers, "u1")
	assert.NotContains(t, user, models.FieldFacultyID)
	assert.NotContains(t, user, models.FieldFacultyName)
}

func TestFacultyCascadeNameCascade(t *testing.T) {
	store := newMemStore()
	seedWorld(store)
	c := newCascade(store, true)

	_, err := c.Apply(context.Background(), &models.Faculty{ID: "f1", Name: "Engineering"}, &models.Faculty{ID: "f1", Name: "Eng & CS"})
	require.NoError(t, err)

	for coll, id := range map[models.Collection]string{
		models.CollectionUsers:         "s-f1",
		models.CollectionEvents:        "e-f1",
		models.CollectionContributions: "c-f1",
	} {
		assert.Equal(t, "Eng & CS", store.get(coll, id)[models.FieldFacultyName], coll)
	}
	assert.Equal(t, "Eng & CS", store.get(models.CollectionUsers, "mc-f1")[models.FieldFacultyName])
}

func TestFacultyCascadeMCAssignment(t *testing.T) {
	store := newMemStore()
	seedWorld(store)
	c := newCascade(store, true)

	res, err := c.Apply(context.Background(), &models.Faculty{ID: "f1", Name: "Engineering"}, &models.Faculty{ID: "f1", Name: "Engineering", MC: ann})
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.CascadeBranch{models.BranchMCAssignUser, models.BranchMCAssignEvents, models.BranchMCReleasePrevious}, res.Succeeded)
	assert.Equal(t, int64(1), res.Updated[models.BranchMCAssignUser])

	user := store.get(models.CollectionUsers, "u1")
	assert.Equal(t, "f1", user[models.FieldFacultyID])
	assert.Equal(t, "Engineering", user[models.FieldFacultyName])
	assert.Equal(t, "u1", store.get(models.CollectionEvents, "e-f1")[models.FieldFacultyMCID])
}

func TestFacultyCascadeMCRemoval(t *testing.T) {
	store := newMemStore()
	seedWorld(store)
	store.put(models.CollectionEvents, memDoc{
		models.FieldID: "e-f1", models.FieldFacultyID: "f1", models.FieldFacultyName: "Engineering",
		models.FieldFacultyMCID: "mc-f1", models.FieldFacultyMCName: "Mo",
	})
	c := newCascade(store, true)

	_, err := c.Apply(context.Background(),
		&models.Faculty{ID: "f1", Name: "Engineering", MC: &models.McRef{ID: "mc-f1", Name: "Mo"}},
		&models.Faculty{ID: "f1", Name: "Engineering"})
	require.NoError(t, err)

	assert.NotContains(t, store.get(models.CollectionUsers, "mc-f1"), models.FieldFacultyID)
	assert.Equal(t, "f1", store.get(models.CollectionUsers, "s-f1")[models.FieldFacultyID], "non-coordinators keep their faculty")
	event := store.get(models.CollectionEvents, "e-f1")
	assert.NotContains(t, event, models.FieldFacultyMCID)
	assert.NotContains(t, event, models.FieldFacultyMCName)
	assert.Equal(t, "f2", store.get(models.CollectionUsers, "mc-f2")[models.FieldFacultyID])
}

func TestFacultyCascadeSoftDelete(t *testing.T) {
	store := newMemStore()
	seedWorld(store)
	c := newCascade(store, true)
	deletedAt := time.Now().UTC()

	_, err := c.Apply(context.Background(), &models.Faculty{ID: "f1", Name: "Engineering"}, &models.Faculty{ID: "f1", Name: "Engineering", DeletedAt: &deletedAt})
	require.NoError(t, err)

	assert.Equal(t, deletedAt, store.get(models.CollectionEvents, "e-f1")[models.FieldDeletedAt])
	assert.Equal(t, deletedAt, store.get(models.CollectionContributions, "c-f1")[models.FieldDeletedAt])
	assert.NotContains(t, store.get(models.CollectionUsers, "s-f1"), models.FieldFacultyID)
	assert.NotContains(t, store.get(models.CollectionUsers, "mc-f1"), models.FieldFacultyID)
}

func TestFacultyCascadeIdempotent(t *testing.T) {
	deletedAt := time.Now().UTC()
	pairs := []struct {
		previous, next *models.Faculty
	}{
		{&models.Faculty{ID: "f1", Name: "Engineering"}, &models.Faculty{ID: "f1", Name: "Eng & CS"}},
		{&models.Faculty{ID: "f1", Name: "Engineering"}, &models.Faculty{ID: "f1", Name: "Engineering", MC: ann}},
		{&models.Faculty{ID: "f1", Name: "Engineering", MC: ann}, &models.Faculty{ID: "f1", Name: "Engineering"}},
		{&models.Faculty{ID: "f1", Name: "Engineering"}, &models.Faculty{ID: "f1", Name: "Gone", DeletedAt: &deletedAt}},
	}
	for i, pair := range pairs {
		t.Run(fmt.Sprintf("pair %d", i), func(t *testing.T) {
			once := newMemStore()
			seedWorld(once)
			_, err := newCascade(once, true).Apply(context.Background(), pair.previous, pair.next)
			require.NoError(t, err)

			twice := newMemStore()
			seedWorld(twice)
			c := newCascade(twice, true)
			_, err = c.Apply(context.Background(), pair.previous, pair.next)
			require.NoError(t, err)
			_, err = c.Apply(context.Background(), pair.previous, pair.next)
			require.NoError(t, err)

			assert.Equal(t, once.snapshot(), twice.snapshot())
		})
	}
}

func TestFacultyCascadeIsolation(t *testing.T) {
	deletedAt := time.Now().UTC()
	mutations := []*models.Faculty{
		{ID: "f1", Name: "Eng & CS"},
		{ID: "f1", Name: "Engineering", MC: ann},
		{ID: "f1", Name: "Engineering", DeletedAt: &deletedAt},
	}
	for _, next := range mutations {
		store := newMemStore()
		seedWorld(store)
		before := store.snapshot()

		_, err := newCascade(store, true).Apply(context.Background(), &models.Faculty{ID: "f1", Name: "Engineering"}, next)
		require.NoError(t, err)

		after := store.snapshot()
		for coll, docs := range before {
			for id, doc := range docs {
				if doc[models.FieldFacultyID] == "f2" || (coll == models.CollectionFaculties && id == "f2") {
					assert.Equal(t, doc, after[coll][id], "%s/%s changed", coll, id)
				}
			}
		}
	}
}

func TestFacultyCascadeReleasesPreviousFaculty(t *testing.T) {
	store := newMemStore()
	seedWorld(store)
	store.put(models.CollectionFaculties, memDoc{models.FieldID: "f2", models.FieldName: "Arts", models.FieldMCID: "u1", models.FieldMCName: "Ann"})
	store.put(models.CollectionEvents, memDoc{models.FieldID: "e-f2", models.FieldFacultyID: "f2", models.FieldFacultyName: "Arts", models.FieldFacultyMCID: "u1"})

	_, err := newCascade(store, true).Apply(context.Background(), &models.Faculty{ID: "f1", Name: "Engineering"}, &models.Faculty{ID: "f1", Name: "Engineering", MC: ann})
	require.NoError(t, err)

	assert.NotContains(t, store.get(models.CollectionFaculties, "f2"), models.FieldMCID)
	assert.NotContains(t, store.get(models.CollectionEvents, "e-f2"), models.FieldFacultyMCID)
	assert.Equal(t, "u1", store.get(models.CollectionEvents, "e-f1")[models.FieldFacultyMCID])
}

func TestFacultyCascadeWithoutExclusivityKeepsPreviousFaculty(t *testing.T) {
	store := newMemStore()
	seedWorld(store)
	store.put(models.CollectionFaculties, memDoc{models.FieldID: "f2", models.FieldName: "Arts", models.FieldMCID: "u1"})

	_, err := newCascade(store, false).Apply(context.Background(), &models.Faculty{ID: "f1", Name: "Engineering"}, &models.Faculty{ID: "f1", Name: "Engineering", MC: ann})
	require.NoError(t, err)
	assert.Equal(t, "u1", store.get(models.CollectionFaculties, "f2")[models.FieldMCID])
}

func TestFacultyCascadeReportsPartialFailure(t *testing.T) {
	store := newMemStore()
	seedWorld(store)
	store.fail[models.CollectionContributions] = errors.New("write conflict")

	res, err := newCascade(store, true).Apply(context.Background(), &models.Faculty{ID: "f1", Name: "Engineering"}, &models.Faculty{ID: "f1", Name: "Eng & CS"})
	require.NoError(t, err)
	require.False(t, res.OK())
	assert.Equal(t, []models.CascadeBranch{models.BranchNameContributions}, res.FailedBranches())
	assert.False(t, res.Failed[0].Unavailable)
	assert.ElementsMatch(t, []models.CascadeBranch{models.BranchNameUsers, models.BranchNameEvents}, res.Succeeded)
	assert.Equal(t, "Eng & CS", store.get(models.CollectionEvents, "e-f1")[models.FieldFacultyName])
}

func TestFacultyCascadePropagatesUnavailable(t *testing.T) {
	store := newMemStore()
	seedWorld(store)
	store.fail[models.CollectionUsers] = fmt.Errorf("%w: dial tcp: connection refused", repository.ErrUnavailable)

	res, err := newCascade(store, true).Apply(context.Background(), &models.Faculty{ID: "f1", Name: "Engineering"}, &models.Faculty{ID: "f1", Name: "Eng & CS"})
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrUnavailable.Code))
	require.NotNil(t, res)
	assert.True(t, res.Failed[0].Unavailable)
	assert.Len(t, res.Succeeded, 2)
}

func TestFacultyCascadeRetryRunsSubset(t *testing.T) {
	store := newMemStore()
	seedWorld(store)
	c := newCascade(store, true)

	res, err := c.Retry(context.Background(), &models.Faculty{ID: "f1", Name: "Eng & CS"}, []models.CascadeBranch{models.BranchNameContributions})
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "Eng & CS", store.get(models.CollectionContributions, "c-f1")[models.FieldFacultyName])
	assert.Equal(t, "Engineering", store.get(models.CollectionEvents, "e-f1")[models.FieldFacultyName])
}

func TestFacultyCascadeRejectsUnsavedFaculty(t *testing.T) {
	_, err := newCascade(newMemStore(), true).Apply(context.Background(), nil, &models.Faculty{Name: "x"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
}

func TestFacultyCascadeReconcileRepairsDrift(t *testing.T) {
	store := newMemStore()
	seedWorld(store)
	seedEvent(store, "e-stale", "f1", "Old Engineering")
	seedContribution(store, "c-stale", "f1", "Old Engineering")
	c := newCascade(store, true)

	faculty := &models.Faculty{ID: "f1", Name: "Engineering", MC: ann}
	res, err := c.Reconcile(context.Background(), faculty)
	require.NoError(t, err)
	assert.True(t, res.OK())

	assert.Equal(t, "Engineering", store.get(models.CollectionEvents, "e-stale")[models.FieldFacultyName])
	assert.Equal(t, "Engineering", store.get(models.CollectionContributions, "c-stale")[models.FieldFacultyName])
	assert.Equal(t, "u1", store.get(models.CollectionEvents, "e-stale")[models.FieldFacultyMCID])
	assert.Equal(t, "f1", store.get(models.CollectionUsers, "u1")[models.FieldFacultyID])

	before := store.snapshot()
	_, err = c.Reconcile(context.Background(), faculty)
	require.NoError(t, err)
	assert.Equal(t, before, store.snapshot())
}

func TestFacultyCascadeReconcilePlan(t *testing.T) {
	c := newCascade(newMemStore(), false)
	deletedAt := time.Now()

	assert.Equal(t,
		[]models.CascadeBranch{models.BranchDeleteUsers, models.BranchDeleteEvents, models.BranchDeleteContributions},
		c.ReconcilePlan(&models.Faculty{ID: "f1", DeletedAt: &deletedAt}))
	assert.Equal(t,
		[]models.CascadeBranch{models.BranchNameUsers, models.BranchNameEvents, models.BranchNameContributions, models.BranchMCRemoveEvents},
		c.ReconcilePlan(&models.Faculty{ID: "f1", Name: "Engineering"}))
	assert.NotContains(t, c.ReconcilePlan(&models.Faculty{ID: "f1", MC: ann}), models.BranchMCReleasePrevious)
}
