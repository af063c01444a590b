package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"agent-wallet.backend/pkg/jwt"
)

func authTestRouter(svc *jwt.JWTService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", AuthMiddleware(svc), func(c *gin.Context) {
		walletID, _ := GetWalletID(c)
		agentID, _ := GetAgentID(c)
		token, _ := GetSessionToken(c)
		c.JSON(http.StatusOK, gin.H{
			"walletId": walletID,
			"agentId":  agentID,
			"hasToken": token != "",
		})
	})
	return r
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	svc := jwt.NewJWTService("test-secret", time.Minute, time.Hour)
	walletID := uuid.New()
	pair, err := svc.GenerateTokenPair(walletID, "agent-1", "transactions")
	require.NoError(t, err)

	r := authTestRouter(svc)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(AuthorizationHeader, BearerPrefix+pair.AccessToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), walletID.String())
	assert.Contains(t, w.Body.String(), "agent-1")
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	svc := jwt.NewJWTService("test-secret", time.Minute, time.Hour)
	r := authTestRouter(svc)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc123"},
		{"garbage token", BearerPrefix + "not-a-jwt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set(AuthorizationHeader, tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	svc := jwt.NewJWTService("test-secret", -time.Minute, time.Hour)
	pair, err := svc.GenerateTokenPair(uuid.New(), "agent-1", "")
	require.NoError(t, err)

	r := authTestRouter(svc)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(AuthorizationHeader, BearerPrefix+pair.AccessToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "expired")
}

func TestAuthMiddleware_WrongSecret(t *testing.T) {
	issuer := jwt.NewJWTService("issuer-secret", time.Minute, time.Hour)
	pair, err := issuer.GenerateTokenPair(uuid.New(), "agent-1", "")
	require.NoError(t, err)

	verifier := jwt.NewJWTService("other-secret", time.Minute, time.Hour)
	r := authTestRouter(verifier)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(AuthorizationHeader, BearerPrefix+pair.AccessToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
