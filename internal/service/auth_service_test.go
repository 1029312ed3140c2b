package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/uni-contrib-api/internal/models"
	appErrors "github.com/noah-isme/uni-contrib-api/pkg/errors"
	mailer "github.com/noah-isme/uni-contrib-api/pkg/mail"
)

type mockAuthRepo struct {
	userByEmail         *models.User
	userByID            *models.User
	findByEmailErr      error
	findByIDErr         error
	refreshTokens       map[string]*models.RefreshToken
	refreshTokenErr     error
	createRefreshErr    error
	revokeRefreshErr    error
	revokeUserTokensErr error
	updatePasswordErr   error
	auditLogs           []*models.AuditLog
	created             []*models.User
	lastLoginUpdated    bool
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	if m.userByEmail == nil || m.userByEmail.Email != email {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	m.created = append(m.created, user)
	return nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	if m.userByID != nil {
		return m.userByID, nil
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if m.updatePasswordErr != nil {
		return m.updatePasswordErr
	}
	if m.userByEmail != nil && m.userByEmail.ID == id {
		m.userByEmail.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	return m.revokeUserTokensErr
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.createRefreshErr != nil {
		return m.createRefreshErr
	}
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if m.refreshTokenErr != nil {
		return nil, m.refreshTokenErr
	}
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, errors.New("not found")
	}
	return rt, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	if m.revokeRefreshErr != nil {
		return m.revokeRefreshErr
	}
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

var authTestConfig = AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, RefreshTokenExpiry: 24 * time.Hour}

func newAuthService(repo *mockAuthRepo, sender *recordingMailer) *AuthService {
	faculties := newMockFacultyRepo(&models.Faculty{ID: "f1", Name: "Engineering"})
	var mail mailer.Sender
	if sender != nil {
		mail = sender
	}
	return NewAuthService(repo, faculties, mail, validator.New(), zap.NewNop(), authTestConfig)
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "123", Email: "user@example.com", PasswordHash: string(password), Active: true, Role: models.RoleStudent,
		Faculty: &models.FacultyRef{ID: "f1", Name: "Engineering"}}}
	svc := newAuthService(repo, nil)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "f1", res.User.Faculty.ID)
	assert.True(t, repo.lastLoginUpdated)
	assert.NotEmpty(t, repo.refreshTokens)
	assert.NotEmpty(t, repo.auditLogs)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "f1", claims.FacultyID)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "123", Email: "user@example.com", PasswordHash: string(password), Active: true}}

	_, err := newAuthService(repo, nil).Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "nope"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrInvalidCredentials.Code))

	_, err = newAuthService(repo, nil).Login(context.Background(), models.LoginRequest{Email: "ghost@example.com", Password: "password"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrInvalidCredentials.Code))
}

func TestAuthServiceLoginInactive(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "123", Email: "user@example.com", PasswordHash: string(password), Active: false}}

	_, err := newAuthService(repo, nil).Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErr.Code)
}

func TestAuthServiceRegisterGuest(t *testing.T) {
	repo := &mockAuthRepo{}
	sender := &recordingMailer{}
	svc := newAuthService(repo, sender)

	res, err := svc.RegisterGuest(context.Background(), models.RegisterGuestRequest{Email: "Guest@Example.com", Password: "longenough", FullName: "Gail", FacultyID: "f1"})
	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	guest := repo.created[0]
	assert.Equal(t, "guest@example.com", guest.Email)
	assert.Equal(t, models.RoleGuest, guest.Role)
	assert.True(t, guest.Active)
	assert.Equal(t, &models.FacultyRef{ID: "f1", Name: "Engineering"}, guest.Faculty)
	assert.Equal(t, models.RoleGuest, res.User.Role)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "guest@example.com", sender.sent[0].To[0].Address)
}

func TestAuthServiceRegisterGuestRejects(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "1", Email: "taken@example.com"}}
	svc := newAuthService(repo, nil)

	_, err := svc.RegisterGuest(context.Background(), models.RegisterGuestRequest{Email: "taken@example.com", Password: "longenough", FullName: "T", FacultyID: "f1"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrConflict.Code))

	_, err = svc.RegisterGuest(context.Background(), models.RegisterGuestRequest{Email: "new@example.com", Password: "longenough", FullName: "N", FacultyID: "f9"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))

	_, err = svc.RegisterGuest(context.Background(), models.RegisterGuestRequest{Email: "new@example.com", Password: "short", FullName: "N", FacultyID: "f1"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
	assert.Empty(t, repo.created)
}

func TestAuthServiceRefreshToken(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: make(map[string]*models.RefreshToken)}
	user := &models.User{ID: "u1", Email: "user@example.com", PasswordHash: "hash", Active: true, Role: models.RoleAdmin}
	repo.userByEmail = user
	repo.userByID = user
	token := &models.RefreshToken{ID: "rt1", UserID: user.ID, Token: "token", ExpiresAt: time.Now().Add(time.Hour)}
	repo.refreshTokens[token.Token] = token

	res, err := newAuthService(repo, nil).RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, "token", res.RefreshToken)
	assert.True(t, repo.refreshTokens["token"].Revoked)
}

func TestAuthServiceLogoutRejectsForeignToken(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: map[string]*models.RefreshToken{"token": {ID: "rt1", UserID: "u1", Token: "token"}}}
	svc := newAuthService(repo, nil)

	err := svc.Logout(context.Background(), "token", "u2", models.RequestMeta{})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))

	require.NoError(t, svc.Logout(context.Background(), "token", "u1", models.RequestMeta{}))
	assert.True(t, repo.refreshTokens["token"].Revoked)
}

func TestAuthServiceChangePassword(t *testing.T) {
	oldHash, _ := bcrypt.GenerateFromPassword([]byte("old"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", PasswordHash: string(oldHash), Active: true}}

	err := newAuthService(repo, nil).ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "old", NewPassword: "newpassword"}, models.RequestMeta{})
	require.NoError(t, err)
	assert.NotEqual(t, string(oldHash), repo.userByEmail.PasswordHash)
}

func TestValidateToken(t *testing.T) {
	svc := newAuthService(&mockAuthRepo{}, nil)
	user := &models.User{ID: "u1", Email: "user@example.com", Role: models.RoleAdmin}
	token, _, err := svc.generateAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Empty(t, claims.FacultyID)

	_, err = svc.ValidateToken(token + "x")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrUnauthorized.Code))
}
