package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestVerifyJWT(t *testing.T) {
	verifier := NewVerifier("secret")

	identity, err := verifier.VerifyJWT(sign(t, "secret", jwt.MapClaims{
		"user_id": 42,
		"name":    "Ana",
		"role":    "teacher",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}))
	require.NoError(t, err)
	assert.Equal(t, "42", identity.UserID)
	assert.Equal(t, "Ana", identity.Name)
	assert.Equal(t, "teacher", identity.Role)

	identity, err = verifier.VerifyJWT(sign(t, "secret", jwt.MapClaims{"sub": "u-7"}))
	require.NoError(t, err)
	assert.Equal(t, "u-7", identity.UserID)
}

func TestVerifyJWTRejects(t *testing.T) {
	verifier := NewVerifier("secret")

	_, err := verifier.VerifyJWT(sign(t, "other", jwt.MapClaims{"sub": "u"}))
	assert.Error(t, err)

	_, err = verifier.VerifyJWT(sign(t, "secret", jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-time.Minute).Unix()}))
	assert.Error(t, err)

	_, err = verifier.VerifyJWT(sign(t, "secret", jwt.MapClaims{"name": "nobody"}))
	assert.Error(t, err)

	_, err = verifier.VerifyJWT("not-a-token")
	assert.Error(t, err)
}

func setupRouter(verifier *Verifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/presence", AuthMiddleWare(verifier), func(c *gin.Context) {
		identity := c.MustGet(IdentityKey).(*Identity)
		c.String(http.StatusOK, identity.UserID)
	})
	router.POST("/internal/sync", InternalAuthMiddleware("internal"), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})
	return router
}

func TestAuthMiddleWare(t *testing.T) {
	router := setupRouter(NewVerifier("secret"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/presence", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/presence", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, "secret", jwt.MapClaims{"sub": "u-1"}))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-1", w.Body.String())

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/presence?token="+sign(t, "secret", jwt.MapClaims{"user_id": 9}), nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "9", w.Body.String())
}

func TestInternalAuthMiddleware(t *testing.T) {
	router := setupRouter(NewVerifier("secret"))

	for secret, code := range map[string]int{"": http.StatusForbidden, "wrong": http.StatusForbidden, "internal": http.StatusAccepted} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/internal/sync", nil)
		if secret != "" {
			req.Header.Set("X-Internal-Secret", secret)
		}
		router.ServeHTTP(w, req)
		assert.Equal(t, code, w.Code, secret)
	}
}
