package usecases

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"agent-wallet.backend/internal/domain/entities"
	domainerrors "agent-wallet.backend/internal/domain/errors"
	"agent-wallet.backend/internal/domain/repositories"
	"agent-wallet.backend/pkg/utils"
)

// KeyManager is the slice of the keystore the wallet lifecycle needs.
type KeyManager interface {
	GenerateKeyPair(walletID uuid.UUID, chain entities.ChainType) (string, error)
	DeleteKey(walletID uuid.UUID) error
	HasKey(walletID uuid.UUID) bool
}

// WalletUsecase handles wallet lifecycle operations
type WalletUsecase struct {
	walletRepo repositories.WalletRepository
	txRepo     repositories.TransactionRepository
	auditRepo  repositories.AuditRepository
	keys       KeyManager
}

// NewWalletUsecase creates a new wallet usecase
func NewWalletUsecase(
	walletRepo repositories.WalletRepository,
	txRepo repositories.TransactionRepository,
	auditRepo repositories.AuditRepository,
	keys KeyManager,
) *WalletUsecase {
	return &WalletUsecase{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		auditRepo:  auditRepo,
		keys:       keys,
	}
}

// CreateWallet provisions a wallet and its key pair. The row is persisted
// as CREATING first so a crash between the insert and the key generation
// leaves an inert wallet rather than an unkeyed ACTIVE one.
func (u *WalletUsecase) CreateWallet(ctx context.Context, input *entities.CreateWalletInput) (*entities.Wallet, error) {
	chain := entities.ChainType(input.Chain)
	switch chain {
	case entities.ChainSolana, entities.ChainEthereum:
	default:
		return nil, fmt.Errorf("%w: %q", domainerrors.ErrUnsupportedChain, input.Chain)
	}
	if input.Network == "" {
		return nil, fmt.Errorf("%w: missing network", domainerrors.ErrInvalidInput)
	}

	id := utils.GenerateUUIDv7()
	publicKey, err := u.keys.GenerateKeyPair(id, chain)
	if err != nil {
		return nil, fmt.Errorf("failed to generate wallet key: %w", err)
	}

	wallet := &entities.Wallet{
		ID:        id,
		Chain:     chain,
		Network:   input.Network,
		PublicKey: publicKey,
		Status:    entities.WalletStatusCreating,
	}
	if err := u.walletRepo.Create(ctx, wallet); err != nil {
		// Orphan blobs are harmless but tidy up anyway.
		_ = u.keys.DeleteKey(id)
		return nil, err
	}

	// A crash before this point leaves an inert CREATING row.
	if err := u.walletRepo.UpdateStatus(ctx, id, entities.WalletStatusActive); err != nil {
		return nil, err
	}

	return u.walletRepo.GetByID(ctx, id)
}

// GetWallet returns one wallet by id
func (u *WalletUsecase) GetWallet(ctx context.Context, id uuid.UUID) (*entities.Wallet, error) {
	return u.walletRepo.GetByID(ctx, id)
}

// ListWallets returns a page of wallets
func (u *WalletUsecase) ListWallets(ctx context.Context, limit, offset int) ([]*entities.Wallet, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return u.walletRepo.List(ctx, limit, offset)
}

// SuspendWallet pauses a wallet. Suspended wallets reject new transactions
// but in-flight ones run to completion.
func (u *WalletUsecase) SuspendWallet(ctx context.Context, id uuid.UUID) (*entities.Wallet, error) {
	return u.transition(ctx, id, entities.WalletStatusSuspended)
}

// ResumeWallet reactivates a suspended wallet.
func (u *WalletUsecase) ResumeWallet(ctx context.Context, id uuid.UUID) (*entities.Wallet, error) {
	return u.transition(ctx, id, entities.WalletStatusActive)
}

func (u *WalletUsecase) transition(ctx context.Context, id uuid.UUID, next entities.WalletStatus) (*entities.Wallet, error) {
	wallet, err := u.walletRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !wallet.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: cannot move wallet from %s to %s", domainerrors.ErrInvalidInput, wallet.Status, next)
	}
	if err := u.walletRepo.UpdateStatus(ctx, id, next); err != nil {
		return nil, err
	}
	return u.walletRepo.GetByID(ctx, id)
}

// TerminateWallet retires a wallet and destroys its key. Refused while
// transactions are still in flight; the key deletion is irreversible.
func (u *WalletUsecase) TerminateWallet(ctx context.Context, id uuid.UUID) (*entities.Wallet, error) {
	wallet, err := u.walletRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !wallet.CanTransitionTo(entities.WalletStatusTerminating) {
		return nil, fmt.Errorf("%w: cannot terminate wallet in status %s", domainerrors.ErrInvalidInput, wallet.Status)
	}

	for _, status := range []entities.TransactionStatus{
		entities.TxStatusQueued, entities.TxStatusExecuting, entities.TxStatusSubmitted,
	} {
		inFlight, err := u.txRepo.ListByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		for _, tx := range inFlight {
			if tx.WalletID == id {
				return nil, fmt.Errorf("%w: transaction %s is still in flight", domainerrors.ErrBadRequest, tx.ID)
			}
		}
	}

	if err := u.walletRepo.UpdateStatus(ctx, id, entities.WalletStatusTerminating); err != nil {
		return nil, err
	}

	if err := u.keys.DeleteKey(id); err != nil && err != domainerrors.ErrKeyNotFound {
		return nil, err
	}
	u.auditKeyDeleted(ctx, id)

	if err := u.walletRepo.UpdateStatus(ctx, id, entities.WalletStatusTerminated); err != nil {
		return nil, err
	}
	return u.walletRepo.GetByID(ctx, id)
}

// SetOwner records the owner address used for approval decisions.
func (u *WalletUsecase) SetOwner(ctx context.Context, id uuid.UUID, ownerAddress string, verified bool) (*entities.Wallet, error) {
	if ownerAddress == "" {
		return nil, fmt.Errorf("%w: missing owner address", domainerrors.ErrInvalidInput)
	}
	if _, err := u.walletRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := u.walletRepo.SetOwner(ctx, id, ownerAddress, verified); err != nil {
		return nil, err
	}
	return u.walletRepo.GetByID(ctx, id)
}

func (u *WalletUsecase) auditKeyDeleted(ctx context.Context, walletID uuid.UUID) {
	id := walletID
	_ = u.auditRepo.Create(ctx, &entities.AuditLog{
		ID:       utils.GenerateUUIDv7(),
		WalletID: &id,
		Action:   entities.AuditKeyReleased,
		Detail:   "wallet key destroyed on termination",
	})
}
