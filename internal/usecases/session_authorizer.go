package usecases

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	domainerrors "agent-wallet.backend/internal/domain/errors"
	"agent-wallet.backend/pkg/jwt"
	"agent-wallet.backend/pkg/redis"
)

// SessionChecker is the slice of the session store the authorizer needs.
type SessionChecker interface {
	GetSession(ctx context.Context, sessionID string) (*redis.SessionData, error)
}

// SessionAuthorizer validates an agent's bearer token for a wallet: the
// JWT must verify and be scoped to the wallet, and the backing session
// must still exist. Deleting the session revokes every outstanding token.
type SessionAuthorizer struct {
	jwt      *jwt.JWTService
	sessions SessionChecker
}

func NewSessionAuthorizer(jwtService *jwt.JWTService, sessions SessionChecker) *SessionAuthorizer {
	return &SessionAuthorizer{jwt: jwtService, sessions: sessions}
}

// SessionID derives the store key for an agent's wallet session.
func SessionID(agentID string, walletID uuid.UUID) string {
	return agentID + ":" + walletID.String()
}

// Authorize implements the pipeline's Authorizer.
func (a *SessionAuthorizer) Authorize(ctx context.Context, walletID uuid.UUID, token string) error {
	if token == "" {
		return fmt.Errorf("%w: missing session token", domainerrors.ErrUnauthorized)
	}

	claims, err := a.jwt.ValidateForWallet(token, walletID)
	if err != nil {
		return fmt.Errorf("%w: %v", domainerrors.ErrUnauthorized, err)
	}

	session, err := a.sessions.GetSession(ctx, SessionID(claims.AgentID, walletID))
	if err != nil {
		return fmt.Errorf("%w: session not found", domainerrors.ErrUnauthorized)
	}
	if session.AccessToken != token {
		return fmt.Errorf("%w: token superseded", domainerrors.ErrUnauthorized)
	}
	return nil
}
