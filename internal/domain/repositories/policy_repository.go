package repositories

import (
	"context"

	"github.com/google/uuid"
	"agent-wallet.backend/internal/domain/entities"
)

// PolicyRepository defines policy data operations
type PolicyRepository interface {
	Create(ctx context.Context, policy *entities.Policy) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Policy, error)
	// GetEnabledByWalletID returns the wallet's enabled policies together
	// with global defaults (nil WalletID), lowest priority first, then
	// created_at ascending.
	GetEnabledByWalletID(ctx context.Context, walletID uuid.UUID) ([]*entities.Policy, error)
	Update(ctx context.Context, policy *entities.Policy) error
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}
