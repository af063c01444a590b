package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"agent-wallet.backend/internal/domain/entities"
)

func TestUnitOfWork_CommitAndRollback(t *testing.T) {
	db := newTestDB(t)
	createAllTables(t, db)
	uow := NewUnitOfWork(db)
	txRepo := NewTransactionRepository(db)
	ctx := context.Background()

	walletID := uuid.New()

	// Committed work is visible afterwards.
	var committedID uuid.UUID
	err := uow.Do(ctx, func(txCtx context.Context) error {
		tx := &entities.Transaction{
			ID: uuid.New(), WalletID: walletID, Type: entities.TxTypeTransfer,
			Status: entities.TxStatusPending, Amount: "100", ToAddress: "0xa",
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		}
		committedID = tx.ID
		return txRepo.Create(txCtx, tx)
	})
	require.NoError(t, err)

	_, err = txRepo.GetByID(ctx, committedID)
	require.NoError(t, err)

	// A failing fn rolls everything back.
	boom := errors.New("boom")
	var rolledBackID uuid.UUID
	err = uow.Do(ctx, func(txCtx context.Context) error {
		tx := &entities.Transaction{
			ID: uuid.New(), WalletID: walletID, Type: entities.TxTypeTransfer,
			Status: entities.TxStatusPending, Amount: "100", ToAddress: "0xa",
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		}
		rolledBackID = tx.ID
		if err := txRepo.Create(txCtx, tx); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = txRepo.GetByID(ctx, rolledBackID)
	require.Error(t, err)
}

func TestUnitOfWork_NestedDoReusesTransaction(t *testing.T) {
	db := newTestDB(t)
	createAllTables(t, db)
	uow := NewUnitOfWork(db)
	txRepo := NewTransactionRepository(db)
	ctx := context.Background()

	boom := errors.New("outer failure")
	var id uuid.UUID
	err := uow.Do(ctx, func(outer context.Context) error {
		if err := uow.Do(outer, func(inner context.Context) error {
			tx := &entities.Transaction{
				ID: uuid.New(), WalletID: uuid.New(), Type: entities.TxTypeTransfer,
				Status: entities.TxStatusPending, Amount: "100", ToAddress: "0xa",
				CreatedAt: time.Now(), UpdatedAt: time.Now(),
			}
			id = tx.ID
			return txRepo.Create(inner, tx)
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// The inner Do joined the outer transaction, so its write rolled back too.
	_, err = txRepo.GetByID(ctx, id)
	require.Error(t, err)
}
