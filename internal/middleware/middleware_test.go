package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/tilawah-live-api/internal/models"
	appErrors "github.com/noah-isme/tilawah-live-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
	err    error
}

func (v validatorStub) ValidateToken(string) (*models.JWTClaims, error) {
	return v.claims, v.err
}

func newRouter(validator TokenValidator, guard gin.HandlerFunc, path string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET(path, JWT(validator), guard, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func doRequest(r http.Handler, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTRejectsMissingAndInvalidTokens(t *testing.T) {
	r := newRouter(validatorStub{err: appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")}, RequireRoles(models.RoleAdmin), "/x")

	assert.Equal(t, http.StatusUnauthorized, doRequest(r, "/x", "").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, "/x", "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, "/x", "Bearer bad").Code)
}

func TestRBACAllowsRolesAndSelf(t *testing.T) {
	scholar := validatorStub{claims: &models.JWTClaims{UserID: "scholar-1", Role: models.RoleScholar}}
	r := newRouter(scholar, RBAC(string(models.RoleAdmin), RoleSelf), "/scholars/:scholarId")

	assert.Equal(t, http.StatusNoContent, doRequest(r, "/scholars/scholar-1", "Bearer ok").Code)
	assert.Equal(t, http.StatusForbidden, doRequest(r, "/scholars/scholar-2", "Bearer ok").Code)

	admin := validatorStub{claims: &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}}
	r = newRouter(admin, RBAC(string(models.RoleAdmin), RoleSelf), "/scholars/:scholarId")
	assert.Equal(t, http.StatusNoContent, doRequest(r, "/scholars/scholar-2", "Bearer ok").Code)
}

type observerStub struct {
	mu    sync.Mutex
	paths []string
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paths = append(o.paths, method+" "+path)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &observerStub{}
	r := gin.New()
	r.Use(Metrics(observer))
	r.GET("/live/sessions/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	doRequest(r, "/live/sessions/abc", "")
	doRequest(r, "/nope", "")

	assert.Equal(t, []string{"GET /live/sessions/:id", "GET unmatched"}, observer.paths)
}
