package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airblackbox/gateway/internal/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	cfg := logger.DefaultConfig()
	cfg.Level = "error"
	log, err := logger.New(cfg)
	require.NoError(t, err)
	return log
}

func TestGenerateAndVerifyAdminToken(t *testing.T) {
	token, err := GenerateAdminToken("secret", "ops@example.com", "admin", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := verifyAdminToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "air-blackbox-gateway", claims.Issuer)
}

func TestVerifyAdminTokenWrongSecret(t *testing.T) {
	token, err := GenerateAdminToken("secret", "ops", "admin", time.Hour)
	require.NoError(t, err)

	_, err = verifyAdminToken("other-secret", token)
	assert.Error(t, err)
}

func TestVerifyAdminTokenExpired(t *testing.T) {
	token, err := GenerateAdminToken("secret", "ops", "admin", -time.Minute)
	require.NoError(t, err)

	_, err = verifyAdminToken("secret", token)
	assert.Error(t, err)
}

func TestExtractBearerToken(t *testing.T) {
	token, err := extractBearerToken("Bearer abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)

	token, err = extractBearerToken("bearer abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)

	_, err = extractBearerToken("Basic dXNlcjpwYXNz")
	assert.Error(t, err)

	_, err = extractBearerToken("abc123")
	assert.Error(t, err)
}

func adminTestRouter(t *testing.T, secret string) *gin.Engine {
	t.Helper()
	r := gin.New()
	r.GET("/admin/ping", AdminAuth(secret, testLogger(t)), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"subject": c.GetString("admin_subject"),
			"role":    c.GetString("admin_role"),
		})
	})
	return r
}

func TestAdminAuthMiddleware(t *testing.T) {
	router := adminTestRouter(t, "secret")

	// No header.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/ping", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Malformed header.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "not-a-bearer")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Garbage token.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer not.a.jwt")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Valid token passes and claims land in the context.
	token, err := GenerateAdminToken("secret", "ops@example.com", "auditor", time.Hour)
	require.NoError(t, err)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ops@example.com")
	assert.Contains(t, w.Body.String(), "auditor")
}
