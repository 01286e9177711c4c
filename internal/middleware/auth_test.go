package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"exam_platform_backend/internal/config"
	"exam_platform_backend/internal/i18n"
	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "middleware-test-secret-0123456789"

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, i18n.Init("ar"))
	cfg := &config.Config{JWT: config.JWTConfig{Secret: secret}}

	r := gin.New()
	r.Use(LocaleMiddleware())
	api := r.Group("/api", AuthMiddleware(cfg))
	api.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": util.GetUserFromContext(c).UserID})
	})
	api.GET("/teachers", RoleMiddleware(model.Teacher), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/hello", func(c *gin.Context) {
		c.String(http.StatusOK, i18n.T(c.Request.Context(), "ExamNotFound"))
	})
	return r
}

func tokenFor(t *testing.T, id uint, role model.UserRole) string {
	t.Helper()
	token, err := util.GenerateJWT(&model.User{BaseModel: model.BaseModel{ID: id}, Role: role}, secret, time.Hour)
	require.NoError(t, err)
	return token
}

func get(r http.Handler, path, token string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter(t)

	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/me", "garbage").Code)

	expired, err := util.GenerateJWT(&model.User{Role: model.Student}, secret, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/me", expired).Code)

	w := get(r, "/api/me", tokenFor(t, 42, model.Student))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":42}`, w.Body.String())

	// websocket clients pass the token as a query parameter
	w = get(r, "/api/me?token="+tokenFor(t, 7, model.Teacher), "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoleMiddleware(t *testing.T) {
	r := newRouter(t)

	assert.Equal(t, http.StatusForbidden, get(r, "/api/teachers", tokenFor(t, 1, model.Student)).Code)
	assert.Equal(t, http.StatusOK, get(r, "/api/teachers", tokenFor(t, 2, model.Teacher)).Code)
	assert.Equal(t, http.StatusOK, get(r, "/api/teachers", tokenFor(t, 3, model.Admin)).Code)
}

func TestLocaleMiddleware(t *testing.T) {
	r := newRouter(t)

	assert.Equal(t, "الاختبار غير موجود", get(r, "/hello", "").Body.String())
	assert.Equal(t, "Exam not found", get(r, "/hello?lang=en", "").Body.String())
	assert.Equal(t, "Exam not found", get(r, "/hello", "", "Accept-Language", "en-US,en;q=0.9").Body.String())
	assert.Equal(t, "الاختبار غير موجود", get(r, "/hello", "", "Accept-Language", "fr").Body.String())
}
