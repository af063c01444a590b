package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"agent-wallet.backend/pkg/jwt"
)

const (
	// AuthorizationHeader is the header key for authorization
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer tokens
	BearerPrefix = "Bearer "
	// WalletIDKey is the context key for the token's wallet scope
	WalletIDKey = "walletId"
	// AgentIDKey is the context key for the agent id
	AgentIDKey = "agentId"
	// SessionTokenKey is the context key for the raw bearer token
	SessionTokenKey = "sessionToken"
)

// AuthMiddleware validates the agent's bearer token. The full session
// check (store lookup, wallet scope) happens in the pipeline's Auth
// stage; the middleware rejects garbage early and stashes the claims.
func AuthMiddleware(jwtService *jwt.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthorizationHeader)
		if authHeader == "" {
			log.Printf("[AuthMiddleware] Request to %s failed: Authorization header is missing", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header is required",
			})
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			log.Printf("[AuthMiddleware] Request to %s failed: Invalid authorization format", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization format. Use: Bearer <token>",
			})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, BearerPrefix)
		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			log.Printf("[AuthMiddleware] Request to %s failed: %v", c.Request.URL.Path, err)
			if err == jwt.ErrExpiredToken {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Token has expired",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid token",
			})
			return
		}

		c.Set(WalletIDKey, claims.WalletID)
		c.Set(AgentIDKey, claims.AgentID)
		c.Set(SessionTokenKey, tokenString)

		c.Next()
	}
}

// GetWalletID gets the token's wallet scope from context
func GetWalletID(c *gin.Context) (uuid.UUID, bool) {
	walletID, exists := c.Get(WalletIDKey)
	if !exists {
		return uuid.Nil, false
	}
	return walletID.(uuid.UUID), true
}

// GetAgentID gets the agent id from context
func GetAgentID(c *gin.Context) (string, bool) {
	agentID, exists := c.Get(AgentIDKey)
	if !exists {
		return "", false
	}
	return agentID.(string), true
}

// GetSessionToken gets the raw bearer token from context
func GetSessionToken(c *gin.Context) (string, bool) {
	token, exists := c.Get(SessionTokenKey)
	if !exists {
		return "", false
	}
	return token.(string), true
}
