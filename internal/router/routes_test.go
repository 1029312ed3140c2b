package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-contrib-api/internal/handler"
	"github.com/noah-isme/uni-contrib-api/internal/models"
	appErrors "github.com/noah-isme/uni-contrib-api/pkg/errors"
)

type tokenStub map[string]*models.JWTClaims

func (s tokenStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.ErrUnauthorized
}

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	Register(r, Handlers{
		Auth:          handler.NewAuthHandler(nil),
		Users:         handler.NewUserHandler(nil),
		Faculties:     handler.NewFacultyHandler(nil),
		Events:        handler.NewEventHandler(nil),
		Contributions: handler.NewContributionHandler(nil),
		Metrics:       handler.NewMetricsHandler(nil, nil),
	}, Options{
		APIPrefix: "/api/v1",
		Tokens: tokenStub{
			"student": {UserID: "s1", Role: models.RoleStudent, FacultyID: "f1"},
			"mc":      {UserID: "u1", Role: models.RoleMarketingCoordinator},
		},
	})
	return r
}

func TestRegisterMountsRoutes(t *testing.T) {
	r := newTestEngine()

	registered := make(map[string]bool)
	for _, route := range r.Routes() {
		registered[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"GET /ready",
		"GET /metrics",
		"POST /api/v1/auth/register",
		"PUT /api/v1/faculties/:id",
		"POST /api/v1/faculties/:id/banner",
		"PATCH /api/v1/contributions/:id/review",
		"GET /api/v1/contributions/:id/files/:index/url",
		"GET /api/v1/contributions/export",
		"GET /api/v1/files/download",
		"PUT /api/v1/users/me/profile",
	} {
		assert.True(t, registered[want], want)
	}
}

func TestRegisterGuardsRoles(t *testing.T) {
	r := newTestEngine()

	cases := []struct {
		method, path, token string
		want                int
	}{
		{http.MethodGet, "/api/v1/faculties", "", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/faculties", "mc", http.StatusForbidden},
		{http.MethodPatch, "/api/v1/contributions/c1/review", "student", http.StatusForbidden},
		{http.MethodGet, "/api/v1/contributions/stats", "student", http.StatusForbidden},
		{http.MethodGet, "/api/v1/users/other", "student", http.StatusForbidden},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if tc.token != "" {
			req.Header.Set("Authorization", "Bearer "+tc.token)
		}
		r.ServeHTTP(w, req)
		require.Equal(t, tc.want, w.Code, tc.method+" "+tc.path)
	}
}
