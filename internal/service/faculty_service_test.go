package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-contrib-api/internal/models"
	appErrors "github.com/noah-isme/uni-contrib-api/pkg/errors"
)

type mockFacultyRepo struct {
	faculties map[string]*models.Faculty
	updateErr error
}

func newMockFacultyRepo(items ...*models.Faculty) *mockFacultyRepo {
	repo := &mockFacultyRepo{faculties: map[string]*models.Faculty{}}
	for _, f := range items {
		repo.faculties[f.ID] = f.Clone()
	}
	return repo
}

func (m *mockFacultyRepo) List(ctx context.Context, filter models.FacultyFilter) ([]models.FacultySummary, int, error) {
	var out []models.FacultySummary
	for _, f := range m.faculties {
		if f.IsDeleted() {
			continue
		}
		out = append(out, models.FacultySummary{Faculty: *f.Clone()})
	}
	return out, len(out), nil
}

func (m *mockFacultyRepo) FindByID(ctx context.Context, id string) (*models.Faculty, error) {
	f, ok := m.faculties[id]
	if !ok || f.IsDeleted() {
		return nil, sql.ErrNoRows
	}
	return f.Clone(), nil
}

func (m *mockFacultyRepo) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	for id, f := range m.faculties {
		if id != excludeID && !f.IsDeleted() && strings.EqualFold(f.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockFacultyRepo) Create(ctx context.Context, faculty *models.Faculty) error {
	if faculty.ID == "" {
		faculty.ID = "f-new"
	}
	m.faculties[faculty.ID] = faculty.Clone()
	return nil
}

func (m *mockFacultyRepo) Update(ctx context.Context, faculty *models.Faculty) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.faculties[faculty.ID] = faculty.Clone()
	return nil
}

func (m *mockFacultyRepo) ListByMC(ctx context.Context, userID string) ([]models.Faculty, error) {
	var out []models.Faculty
	for _, f := range m.faculties {
		if !f.IsDeleted() && f.MC != nil && f.MC.ID == userID {
			out = append(out, *f.Clone())
		}
	}
	return out, nil
}

type stubUserFinder map[string]*models.User

func (s stubUserFinder) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type recordingScheduler struct {
	scheduled []models.CascadeBranch
	err       error
}

func (r *recordingScheduler) Schedule(next *models.Faculty, result *models.CascadeResult) error {
	if result.OK() {
		return nil
	}
	r.scheduled = append(r.scheduled, result.FailedBranches()...)
	return r.err
}

type memAudit struct {
	logs []*models.AuditLog
}

func (m *memAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

type facultyFixture struct {
	svc       *FacultyService
	repo      *mockFacultyRepo
	store     *memStore
	scheduler *recordingScheduler
	audit     *memAudit
}

func newFacultyFixture(t *testing.T) facultyFixture {
	t.Helper()
	store := newMemStore()
	seedWorld(store)
	repo := newMockFacultyRepo(
		&models.Faculty{ID: "f1", Name: "Engineering"},
		&models.Faculty{ID: "f2", Name: "Arts"},
	)
	users := stubUserFinder{
		"u1":   {ID: "u1", FullName: "Ann", Email: "a@x.com", AvatarURL: "/a.png", Role: models.RoleMarketingCoordinator, Active: true},
		"s-f1": {ID: "s-f1", FullName: "Sam", Role: models.RoleStudent, Active: true},
		"u9":   {ID: "u9", FullName: "Idle", Role: models.RoleMarketingCoordinator},
	}
	scheduler := &recordingScheduler{}
	audit := &memAudit{}
	svc := NewFacultyService(FacultyServiceDeps{
		Repo:    repo,
		Users:   users,
		Cascade: newCascade(store, true),
		Retrier: scheduler,
		Audit:   audit,
	})
	return facultyFixture{svc: svc, repo: repo, store: store, scheduler: scheduler, audit: audit}
}

func strPtr(s string) *string { return &s }

func TestFacultyServiceUpdateCascadesNameAndMC(t *testing.T) {
	fx := newFacultyFixture(t)
	req := UpdateFacultyRequest{Name: strPtr("Eng & CS"), MCID: OptionalString{Set: true, Value: strPtr("u1")}}

	faculty, err := fx.svc.Update(context.Background(), "f1", req, models.Actor{ID: "admin"}, models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "Eng & CS", faculty.Name)
	require.NotNil(t, faculty.MC)
	assert.Equal(t, "Ann", faculty.MC.Name)

	user := fx.store.get(models.CollectionUsers, "u1")
	assert.Equal(t, "f1", user[models.FieldFacultyID])
	assert.Equal(t, "Eng & CS", user[models.FieldFacultyName])
	event := fx.store.get(models.CollectionEvents, "e-f1")
	assert.Equal(t, "Eng & CS", event[models.FieldFacultyName])
	assert.Equal(t, "u1", event[models.FieldFacultyMCID])
	assert.Equal(t, "Eng & CS", fx.store.get(models.CollectionContributions, "c-f1")[models.FieldFacultyName])
	assert.Equal(t, "Arts", fx.store.get(models.CollectionEvents, "e-f2")[models.FieldFacultyName])

	require.Len(t, fx.audit.logs, 1)
	assert.Equal(t, models.AuditActionFacultyUpdate, fx.audit.logs[0].Action)
	assert.Empty(t, fx.scheduler.scheduled)
}

func TestFacultyServiceUpdateRemovesMCWithExplicitNull(t *testing.T) {
	fx := newFacultyFixture(t)
	fx.repo.faculties["f1"].MC = &models.McRef{ID: "mc-f1", Name: "Mia"}

	var req UpdateFacultyRequest
	require.NoError(t, json.Unmarshal([]byte(`{"mc_id": null}`), &req))

	faculty, err := fx.svc.Update(context.Background(), "f1", req, models.Actor{ID: "admin"}, models.RequestMeta{})
	require.NoError(t, err)
	assert.Nil(t, faculty.MC)
	_, assigned := fx.store.get(models.CollectionUsers, "mc-f1")[models.FieldFacultyID]
	assert.False(t, assigned)
	assert.Equal(t, "f1", fx.store.get(models.CollectionUsers, "s-f1")[models.FieldFacultyID])
}

func TestFacultyServiceUpdateKeepsMCWhenFieldAbsent(t *testing.T) {
	fx := newFacultyFixture(t)
	fx.repo.faculties["f1"].MC = &models.McRef{ID: "mc-f1", Name: "Mia"}

	var req UpdateFacultyRequest
	require.NoError(t, json.Unmarshal([]byte(`{"description": "new"}`), &req))

	faculty, err := fx.svc.Update(context.Background(), "f1", req, models.Actor{ID: "admin"}, models.RequestMeta{})
	require.NoError(t, err)
	require.NotNil(t, faculty.MC)
	assert.Equal(t, "mc-f1", faculty.MC.ID)
	assert.Equal(t, "new", faculty.Description)
}

func TestFacultyServiceRejectsInvalidCoordinator(t *testing.T) {
	fx := newFacultyFixture(t)
	cases := map[string]string{"student": "s-f1", "inactive": "u9"}
	for name, id := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := fx.svc.Update(context.Background(), "f1", UpdateFacultyRequest{MCID: OptionalString{Set: true, Value: strPtr(id)}}, models.Actor{}, models.RequestMeta{})
			assert.True(t, appErrors.IsCode(err, appErrors.ErrInvalidCoordinator.Code))
		})
	}

	_, err := fx.svc.Update(context.Background(), "f1", UpdateFacultyRequest{MCID: OptionalString{Set: true, Value: strPtr("ghost")}}, models.Actor{}, models.RequestMeta{})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
	assert.Nil(t, fx.repo.faculties["f1"].MC)
}

func TestFacultyServiceCreateRejectsDuplicateName(t *testing.T) {
	fx := newFacultyFixture(t)
	_, err := fx.svc.Create(context.Background(), CreateFacultyRequest{Name: " arts "}, models.Actor{}, models.RequestMeta{})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrConflict.Code))

	_, err = fx.svc.Create(context.Background(), CreateFacultyRequest{}, models.Actor{}, models.RequestMeta{})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
}

func TestFacultyServiceCreateAssignsCoordinator(t *testing.T) {
	fx := newFacultyFixture(t)
	faculty, err := fx.svc.Create(context.Background(), CreateFacultyRequest{Name: "Law", MCID: strPtr("u1")}, models.Actor{ID: "admin"}, models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "f-new", faculty.ID)
	assert.Equal(t, "f-new", fx.store.get(models.CollectionUsers, "u1")[models.FieldFacultyID])
	assert.Equal(t, "Law", fx.store.get(models.CollectionUsers, "u1")[models.FieldFacultyName])
}

func TestFacultyServiceDeleteSoftDeletesDependents(t *testing.T) {
	fx := newFacultyFixture(t)
	require.NoError(t, fx.svc.Delete(context.Background(), "f1", models.Actor{ID: "admin"}, models.RequestMeta{}))

	assert.True(t, fx.repo.faculties["f1"].IsDeleted())
	assert.NotNil(t, fx.store.get(models.CollectionEvents, "e-f1")[models.FieldDeletedAt])
	assert.NotNil(t, fx.store.get(models.CollectionContributions, "c-f1")[models.FieldDeletedAt])
	_, linked := fx.store.get(models.CollectionUsers, "s-f1")[models.FieldFacultyID]
	assert.False(t, linked)
	assert.Nil(t, fx.store.get(models.CollectionEvents, "e-f2")[models.FieldDeletedAt])

	_, err := fx.svc.Get(context.Background(), "f1")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
}

func TestFacultyServiceSchedulesRetryOnPartialFailure(t *testing.T) {
	fx := newFacultyFixture(t)
	fx.store.fail[models.CollectionContributions] = errors.New("write conflict")

	faculty, err := fx.svc.Update(context.Background(), "f1", UpdateFacultyRequest{Name: strPtr("Eng & CS")}, models.Actor{}, models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "Eng & CS", faculty.Name)
	assert.Equal(t, []models.CascadeBranch{models.BranchNameContributions}, fx.scheduler.scheduled)
}

func TestFacultyServiceFailsWhenRetryCannotBeScheduled(t *testing.T) {
	fx := newFacultyFixture(t)
	fx.store.fail[models.CollectionContributions] = errors.New("write conflict")
	fx.scheduler.err = errors.New("queue full")

	_, err := fx.svc.Update(context.Background(), "f1", UpdateFacultyRequest{Name: strPtr("Eng & CS")}, models.Actor{}, models.RequestMeta{})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrInternal.Code))
}

func TestFacultyServiceList(t *testing.T) {
	fx := newFacultyFixture(t)
	items, pagination, err := fx.svc.List(context.Background(), models.FacultyFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 2, pagination.TotalCount)
}
