package repositories

import (
	"context"

	"github.com/google/uuid"
	"agent-wallet.backend/internal/domain/entities"
)

// AuditRepository defines audit log operations. Records are append-only.
type AuditRepository interface {
	Create(ctx context.Context, entry *entities.AuditLog) error
	GetByWalletID(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*entities.AuditLog, int, error)
}
