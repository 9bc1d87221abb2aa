package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	internalmiddleware "github.com/noah-isme/tilawah-live-api/internal/middleware"
	"github.com/noah-isme/tilawah-live-api/internal/models"
)

func TestRoutesEnforceRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		role   models.UserRole
		method string
		path   string
	}{
		{"student lists requests", models.RoleStudent, http.MethodGet, "/api/v1/access/requests"},
		{"parent decides request", models.RoleParent, http.MethodPost, "/api/v1/access/requests/r1/decision"},
		{"scholar starts session", models.RoleScholar, http.MethodPost, "/api/v1/live/batches/b1/sessions"},
		{"scholar pings", models.RoleScholar, http.MethodPost, "/api/v1/live/batches/b1/ping"},
		{"student ends session", models.RoleStudent, http.MethodPost, "/api/v1/live/sessions/s1/end"},
		{"other scholar roster", models.RoleScholar, http.MethodGet, "/api/v1/scholars/scholar-2/live-sessions"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			rt := routes{authorizer: func(c *gin.Context) {
				c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{UserID: "scholar-1", Role: tc.role})
				c.Next()
			}}
			rt.register(r, "/api/v1")

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
			assert.Equal(t, http.StatusForbidden, w.Code)
		})
	}
}
