package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-contrib-api/internal/models"
	appErrors "github.com/noah-isme/uni-contrib-api/pkg/errors"
)

type mockUserRepo struct {
	users          map[string]*models.User
	listUsers      []models.User
	listCount      int
	listErr        error
	findByIDErr    error
	findByEmailErr error
	auditLogs      []*models.AuditLog
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	if m.listUsers != nil {
		return m.listUsers, m.listCount, nil
	}
	var users []models.User
	for _, u := range m.users {
		users = append(users, *u)
	}
	return users, len(users), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	if user, ok := m.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	for _, u := range m.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	if user, ok := m.users[id]; ok {
		user.Active = false
		m.users[id] = user
		return nil
	}
	return sql.ErrNoRows
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

type userFixture struct {
	svc   *UserService
	repo  *mockUserRepo
	facs  *mockFacultyRepo
	store *memStore
}

func newUserFixture(t *testing.T) userFixture {
	t.Helper()
	repo := &mockUserRepo{users: map[string]*models.User{
		"u1":   {ID: "u1", Email: "a@x.com", FullName: "Ann", AvatarURL: "/a.png", Role: models.RoleMarketingCoordinator, Active: true, Faculty: &models.FacultyRef{ID: "f1", Name: "Engineering"}},
		"s-f1": {ID: "s-f1", Email: "s@x.com", FullName: "Sam", Role: models.RoleStudent, Active: true, Faculty: &models.FacultyRef{ID: "f1", Name: "Engineering"}},
		"u2":   {ID: "u2", Email: "b@x.com", FullName: "Bob", Role: models.RoleMarketingCoordinator, Active: true},
	}}
	facs := newMockFacultyRepo(
		&models.Faculty{ID: "f1", Name: "Engineering", MC: ann},
		&models.Faculty{ID: "f2", Name: "Arts"},
	)
	store := newMemStore()
	seedWorld(store)
	store.put(models.CollectionEvents, memDoc{models.FieldID: "e-f1", models.FieldFacultyID: "f1", models.FieldFacultyName: "Engineering",
		models.FieldFacultyMCID: "u1", models.FieldFacultyMCName: "Ann", models.FieldFacultyMCEmail: "a@x.com", models.FieldFacultyMCAvatar: "/a.png"})
	store.put(models.CollectionContributions, memDoc{models.FieldID: "c-s", models.FieldAuthorID: "s-f1", models.FieldAuthorName: "Sam"})

	svc := NewUserService(UserServiceDeps{
		Repo:      repo,
		Faculties: facs,
		Cascade:   newCascade(store, true),
		Retrier:   &recordingScheduler{},
		Store:     store,
	})
	return userFixture{svc: svc, repo: repo, facs: facs, store: store}
}

func TestUserServiceList(t *testing.T) {
	repo := &mockUserRepo{listUsers: []models.User{{ID: "1", Email: "a@example.com"}}, listCount: 1}
	svc := NewUserService(UserServiceDeps{Repo: repo})
	users, pagination, err := svc.List(context.Background(), models.UserFilter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestUserServiceCreate(t *testing.T) {
	fx := newUserFixture(t)
	user, err := fx.svc.Create(context.Background(), CreateUserRequest{Email: "NEW@EXAMPLE.COM", FullName: "New", Password: "secret123", Role: models.RoleStudent, FacultyID: "f2", Active: true}, "actor", models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.Equal(t, &models.FacultyRef{ID: "f2", Name: "Arts"}, user.Faculty)
	assert.NotEmpty(t, fx.repo.auditLogs)
}

func TestUserServiceCreateValidatesFaculty(t *testing.T) {
	fx := newUserFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Create(ctx, CreateUserRequest{Email: "x@example.com", FullName: "X", Password: "secret123", Role: models.RoleStudent}, "actor", models.RequestMeta{})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	_, err = fx.svc.Create(ctx, CreateUserRequest{Email: "y@example.com", FullName: "Y", Password: "secret123", Role: models.RoleMarketingCoordinator, FacultyID: "f1"}, "actor", models.RequestMeta{})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	_, err = fx.svc.Create(ctx, CreateUserRequest{Email: "z@example.com", FullName: "Z", Password: "secret123", Role: models.RoleGuest, FacultyID: "nope"}, "actor", models.RequestMeta{})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))

	_, err = fx.svc.Create(ctx, CreateUserRequest{Email: "a@x.com", FullName: "Dup", Password: "secret123", Role: models.RoleAdmin}, "actor", models.RequestMeta{})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrConflict.Code))
}

func TestUserServiceUpdateMovesStudent(t *testing.T) {
	fx := newUserFixture(t)
	active := false
	user, err := fx.svc.Update(context.Background(), "s-f1", UpdateUserRequest{FullName: "Sam", Role: models.RoleStudent, FacultyID: strPtr("f2"), Active: &active}, "actor", models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "f2", user.FacultyID())
	assert.False(t, user.Active)
	assert.NotEmpty(t, fx.repo.auditLogs)
}

func TestUserServiceRejectsDemotingAssignedCoordinator(t *testing.T) {
	fx := newUserFixture(t)
	_, err := fx.svc.Update(context.Background(), "u1", UpdateUserRequest{FullName: "Ann", Role: models.RoleStudent}, "actor", models.RequestMeta{})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrPreconditionFailed.Code))
	assert.Equal(t, models.RoleMarketingCoordinator, fx.repo.users["u1"].Role)

	err = fx.svc.Delete(context.Background(), "u1", "actor", models.RequestMeta{})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrPreconditionFailed.Code))

	user, err := fx.svc.Update(context.Background(), "u2", UpdateUserRequest{FullName: "Bob", Role: models.RoleMarketingManager}, "actor", models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.RoleMarketingManager, user.Role)
}

func TestUserServiceProfileRefreshesCoordinatorSnapshots(t *testing.T) {
	fx := newUserFixture(t)
	user, err := fx.svc.UpdateProfile(context.Background(), "u1", UpdateProfileRequest{FullName: strPtr("Ann Lee"), AvatarURL: strPtr("/b.png")}, models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", user.FullName)

	faculty := fx.facs.faculties["f1"]
	require.NotNil(t, faculty.MC)
	assert.Equal(t, "Ann Lee", faculty.MC.Name)
	assert.Equal(t, "/b.png", faculty.MC.AvatarURL)

	event := fx.store.get(models.CollectionEvents, "e-f1")
	assert.Equal(t, "Ann Lee", event[models.FieldFacultyMCName])
	assert.Equal(t, "/b.png", event[models.FieldFacultyMCAvatar])
	_, touched := fx.store.get(models.CollectionEvents, "e-f2")[models.FieldFacultyMCName]
	assert.False(t, touched)
}

func TestUserServiceProfileRefreshesAuthorSnapshots(t *testing.T) {
	fx := newUserFixture(t)
	_, err := fx.svc.UpdateProfile(context.Background(), "s-f1", UpdateProfileRequest{FullName: strPtr("Samuel")}, models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "Samuel", fx.store.get(models.CollectionContributions, "c-s")[models.FieldAuthorName])
	assert.Equal(t, "Engineering", fx.facs.faculties["f1"].Name)
}

func TestUserServiceDelete(t *testing.T) {
	fx := newUserFixture(t)
	err := fx.svc.Delete(context.Background(), "s-f1", "actor", models.RequestMeta{})
	require.NoError(t, err)
	assert.False(t, fx.repo.users["s-f1"].Active)
	assert.NotEmpty(t, fx.repo.auditLogs)
}
