package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/Dhoini/entitlement-service/pkg/res"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, sub string, role domain.Role, expiresIn time.Duration) string {
	t.Helper()
	claims := TokenClaims{
		Email: sub + "@example.com",
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	m := NewJWTMiddleware(logger.NewNop(), &DefaultTokenValidator{Secret: testSecret})

	router := gin.New()
	router.Use(RequestLogger(logger.NewNop()))
	auth := router.Group("", m.RequireAuth())
	auth.GET("/me", func(c *gin.Context) {
		caller := CallerFrom(c)
		c.JSON(http.StatusOK, gin.H{"user_id": caller.UserID, "role": caller.Role})
	})
	auth.GET("/owner", m.RequireRole(domain.RoleOwner), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func doRequest(router *gin.Engine, path, token string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) res.ErrorResponse {
	t.Helper()
	var body res.ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return body
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	router := newTestRouter()

	recorder := doRequest(router, "/me", signToken(t, "u1", "", time.Hour))

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"user_id":"u1","role":"user"}`, recorder.Body.String())
}

func TestRequireAuthDistinguishesExpiredSession(t *testing.T) {
	router := newTestRouter()

	expired := doRequest(router, "/me", signToken(t, "u1", domain.RoleUser, -time.Minute))
	require.Equal(t, http.StatusUnauthorized, expired.Code)
	assert.Equal(t, res.CodeSessionExpired, decodeError(t, expired).Code)

	missing := doRequest(router, "/me", "")
	require.Equal(t, http.StatusUnauthorized, missing.Code)
	assert.Equal(t, res.CodeUnauthenticated, decodeError(t, missing).Code)

	garbage := doRequest(router, "/me", "not-a-jwt")
	require.Equal(t, http.StatusUnauthorized, garbage.Code)
	assert.Equal(t, res.CodeUnauthenticated, decodeError(t, garbage).Code)
}

func TestRequireAuthRejectsForeignSignature(t *testing.T) {
	router := newTestRouter()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u1"}).SignedString([]byte("other"))
	require.NoError(t, err)

	recorder := doRequest(router, "/me", token)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestRequireRole(t *testing.T) {
	router := newTestRouter()

	forbidden := doRequest(router, "/owner", signToken(t, "u1", domain.RoleAdmin, time.Hour))
	require.Equal(t, http.StatusForbidden, forbidden.Code)
	assert.Equal(t, res.CodeForbidden, decodeError(t, forbidden).Code)

	allowed := doRequest(router, "/owner", signToken(t, "o1", domain.RoleOwner, time.Hour))
	assert.Equal(t, http.StatusNoContent, allowed.Code)
}
