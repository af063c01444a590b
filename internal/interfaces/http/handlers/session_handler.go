package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	domainerrors "agent-wallet.backend/internal/domain/errors"
	"agent-wallet.backend/internal/domain/repositories"
	"agent-wallet.backend/internal/interfaces/http/response"
	"agent-wallet.backend/internal/usecases"
	"agent-wallet.backend/pkg/jwt"
	"agent-wallet.backend/pkg/redis"
)

// SessionHandler issues and revokes agent sessions. The daemon is
// self-hosted, so session issuance is an operator action on the local
// API surface.
type SessionHandler struct {
	jwtService *jwt.JWTService
	sessions   *redis.SessionStore
	walletRepo repositories.WalletRepository
	sessionTTL time.Duration
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(jwtService *jwt.JWTService, sessions *redis.SessionStore, walletRepo repositories.WalletRepository, sessionTTL time.Duration) *SessionHandler {
	return &SessionHandler{
		jwtService: jwtService,
		sessions:   sessions,
		walletRepo: walletRepo,
		sessionTTL: sessionTTL,
	}
}

type createSessionInput struct {
	AgentID string `json:"agentId" binding:"required"`
	Scope   string `json:"scope"`
}

// CreateSession issues a token pair for an agent on a wallet
// POST /api/v1/wallets/:id/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid wallet ID"))
		return
	}

	var input createSessionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	wallet, err := h.walletRepo.GetByID(c.Request.Context(), walletID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !wallet.CanTransact() {
		response.Error(c, domainerrors.ErrWalletNotActive)
		return
	}

	pair, err := h.jwtService.GenerateTokenPair(walletID, input.AgentID, input.Scope)
	if err != nil {
		response.Error(c, err)
		return
	}

	err = h.sessions.CreateSession(c.Request.Context(), usecases.SessionID(input.AgentID, walletID), &redis.SessionData{
		WalletID:     walletID.String(),
		AgentID:      input.AgentID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, h.sessionTTL)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": pair})
}

type revokeSessionInput struct {
	AgentID string `json:"agentId" binding:"required"`
}

// RevokeSession deletes an agent's session, invalidating its tokens
// DELETE /api/v1/wallets/:id/sessions
func (h *SessionHandler) RevokeSession(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid wallet ID"))
		return
	}

	var input revokeSessionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	if err := h.sessions.DeleteSession(c.Request.Context(), usecases.SessionID(input.AgentID, walletID)); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}
