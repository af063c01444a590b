package repositories

import (
	"context"

	"github.com/google/uuid"
	"agent-wallet.backend/internal/domain/entities"
)

// WalletRepository defines wallet data operations
type WalletRepository interface {
	Create(ctx context.Context, wallet *entities.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Wallet, error)
	List(ctx context.Context, limit, offset int) ([]*entities.Wallet, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status entities.WalletStatus) error
	SetOwner(ctx context.Context, id uuid.UUID, ownerAddress string, verified bool) error
}
