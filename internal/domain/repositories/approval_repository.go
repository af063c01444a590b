package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"agent-wallet.backend/internal/domain/entities"
)

// ApprovalRepository defines pending approval data operations
type ApprovalRepository interface {
	Create(ctx context.Context, approval *entities.PendingApproval) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.PendingApproval, error)
	GetByTransactionID(ctx context.Context, txID uuid.UUID) (*entities.PendingApproval, error)
	ListPending(ctx context.Context, walletID uuid.UUID) ([]*entities.PendingApproval, error)

	// Resolve atomically moves the approval from PENDING to the given
	// status. Returns false when the row was already resolved.
	Resolve(ctx context.Context, id uuid.UUID, status entities.ApprovalStatus, approvedBy *string, at time.Time) (bool, error)

	// ListDue returns PENDING approvals whose release time has passed.
	ListDue(ctx context.Context, now time.Time) ([]*entities.PendingApproval, error)
}
