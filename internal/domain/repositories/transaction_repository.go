package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"agent-wallet.backend/internal/domain/entities"
)

// TransactionRepository defines transaction data operations
type TransactionRepository interface {
	Create(ctx context.Context, tx *entities.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Transaction, error)
	GetByWalletID(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*entities.Transaction, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status entities.TransactionStatus) error
	UpdateTier(ctx context.Context, id uuid.UUID, tier entities.PolicyTier) error
	SetTxHash(ctx context.Context, id uuid.UUID, txHash string) error
	SetError(ctx context.Context, id uuid.UUID, status entities.TransactionStatus, message string, retryable bool) error

	// Claim atomically moves the transaction from QUEUED to EXECUTING.
	// Returns false when the row was not in QUEUED (already claimed,
	// cancelled, or never queued).
	Claim(ctx context.Context, id uuid.UUID) (bool, error)

	// Reserve records the pending spend against the wallet while the
	// transaction is in flight. Must run inside the policy evaluation's
	// database transaction.
	Reserve(ctx context.Context, id uuid.UUID, amount string, amountUSD *float64) error
	// ReleaseReservation clears the reservation on terminal failure.
	ReleaseReservation(ctx context.Context, id uuid.UUID) error
	// SumReserved totals reserved_amount over non-terminal transactions of
	// the wallet, excluding the given transaction.
	SumReserved(ctx context.Context, walletID uuid.UUID, exclude uuid.UUID) (string, float64, error)

	// CountSince counts wallet transactions created on or after the cutoff,
	// excluding terminal failures. Used by RATE_LIMIT.
	CountSince(ctx context.Context, walletID uuid.UUID, cutoff time.Time) (int, error)

	// ListByStatus returns transactions currently in the given status.
	// Used by the crash-recovery sweep.
	ListByStatus(ctx context.Context, status entities.TransactionStatus) ([]*entities.Transaction, error)
}
