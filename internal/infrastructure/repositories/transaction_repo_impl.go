package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
	"agent-wallet.backend/internal/domain/entities"
	domainerrors "agent-wallet.backend/internal/domain/errors"
	"agent-wallet.backend/internal/infrastructure/models"
)

// terminalStatuses as stored; rows in these states hold no reservation.
var terminalStatuses = []string{
	string(entities.TxStatusConfirmed),
	string(entities.TxStatusFailed),
	string(entities.TxStatusCancelled),
	string(entities.TxStatusExpired),
	string(entities.TxStatusPartialFailure),
}

// TransactionRepository implements transaction data operations
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create creates a new transaction
func (r *TransactionRepository) Create(ctx context.Context, tx *entities.Transaction) error {
	m := &models.Transaction{
		ID:             tx.ID,
		WalletID:       tx.WalletID,
		Type:           string(tx.Type),
		Status:         string(tx.Status),
		Amount:         tx.Amount,
		ToAddress:      tx.ToAddress,
		TokenAddress:   tx.TokenAddress.Ptr(),
		SpenderAddress: tx.SpenderAddress.Ptr(),
		Selector:       tx.Selector.Ptr(),
		Retryable:      tx.Retryable,
		QueuedAt:       tx.QueuedAt,
		CreatedAt:      tx.CreatedAt,
		UpdatedAt:      tx.UpdatedAt,
	}
	if tx.Tier != "" {
		tier := string(tx.Tier)
		m.Tier = &tier
	}
	if len(tx.BatchItems) > 0 {
		items, err := json.Marshal(tx.BatchItems)
		if err != nil {
			return fmt.Errorf("failed to marshal batch items: %w", err)
		}
		s := string(items)
		m.BatchItems = &s
	}

	db := GetDB(ctx, r.db)
	return db.WithContext(ctx).Create(m).Error
}

// GetByID gets a transaction by ID
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Transaction, error) {
	var m models.Transaction
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return r.toEntity(&m), nil
}

// GetByWalletID gets wallet transactions with pagination
func (r *TransactionRepository) GetByWalletID(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*entities.Transaction, int, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("wallet_id = ?", walletID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ms []models.Transaction
	if err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&ms).Error; err != nil {
		return nil, 0, err
	}

	var txs []*entities.Transaction
	for _, m := range ms {
		model := m
		txs = append(txs, r.toEntity(&model))
	}

	return txs, int(total), nil
}

// UpdateStatus updates the pipeline status
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status entities.TransactionStatus) error {
	updates := map[string]interface{}{
		"status":     string(status),
		"updated_at": time.Now(),
	}
	if status == entities.TxStatusQueued {
		updates["queued_at"] = time.Now()
	}
	if status == entities.TxStatusExecuting {
		updates["executed_at"] = time.Now()
	}

	db := GetDB(ctx, r.db)
	result := db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

// UpdateTier records the tier the policy engine resolved
func (r *TransactionRepository) UpdateTier(ctx context.Context, id uuid.UUID, tier entities.PolicyTier) error {
	db := GetDB(ctx, r.db)
	return db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"tier":       string(tier),
			"updated_at": time.Now(),
		}).Error
}

// SetTxHash records the on-chain hash after submission
func (r *TransactionRepository) SetTxHash(ctx context.Context, id uuid.UUID, txHash string) error {
	db := GetDB(ctx, r.db)
	return db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"tx_hash":    txHash,
			"updated_at": time.Now(),
		}).Error
}

// SetError records a failure status with its message
func (r *TransactionRepository) SetError(ctx context.Context, id uuid.UUID, status entities.TransactionStatus, message string, retryable bool) error {
	db := GetDB(ctx, r.db)
	result := db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        string(status),
			"error_message": message,
			"retryable":     retryable,
			"updated_at":    time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

// Claim atomically moves QUEUED to EXECUTING. The conditional update is
// what guarantees at most one worker proceeds per transaction.
func (r *TransactionRepository) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	db := GetDB(ctx, r.db)
	result := db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, string(entities.TxStatusQueued)).
		Updates(map[string]interface{}{
			"status":      string(entities.TxStatusExecuting),
			"executed_at": time.Now(),
			"updated_at":  time.Now(),
		})

	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Reserve records the pending spend against the wallet
func (r *TransactionRepository) Reserve(ctx context.Context, id uuid.UUID, amount string, amountUSD *float64) error {
	updates := map[string]interface{}{
		"reserved_amount": amount,
		"updated_at":      time.Now(),
	}
	if amountUSD != nil {
		updates["amount_usd"] = *amountUSD
	}

	db := GetDB(ctx, r.db)
	result := db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

// ReleaseReservation clears the reservation on terminal failure
func (r *TransactionRepository) ReleaseReservation(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	return db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"reserved_amount": nil,
			"updated_at":      time.Now(),
		}).Error
}

// SumReserved totals reservations over non-terminal transactions of the
// wallet, excluding the given transaction. Amounts are decimal strings so
// the sum is computed in Go with big.Int.
func (r *TransactionRepository) SumReserved(ctx context.Context, walletID uuid.UUID, exclude uuid.UUID) (string, float64, error) {
	var rows []models.Transaction
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).
		Select("reserved_amount", "amount_usd").
		Where("wallet_id = ? AND id <> ? AND reserved_amount IS NOT NULL AND status NOT IN ?",
			walletID, exclude, terminalStatuses).
		Find(&rows).Error; err != nil {
		return "", 0, err
	}

	total := new(big.Int)
	var totalUSD float64
	for _, row := range rows {
		if row.ReservedAmount == nil {
			continue
		}
		v, ok := new(big.Int).SetString(*row.ReservedAmount, 10)
		if !ok {
			continue
		}
		total.Add(total, v)
		if row.AmountUSD != nil {
			totalUSD += *row.AmountUSD
		}
	}

	return total.String(), totalUSD, nil
}

// CountSince counts wallet transactions created on or after the cutoff,
// excluding terminal failures
func (r *TransactionRepository) CountSince(ctx context.Context, walletID uuid.UUID, cutoff time.Time) (int, error) {
	var count int64
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Model(&models.Transaction{}).
		Where("wallet_id = ? AND created_at >= ? AND status NOT IN ?",
			walletID, cutoff,
			[]string{string(entities.TxStatusFailed), string(entities.TxStatusCancelled), string(entities.TxStatusExpired)}).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// ListByStatus returns transactions currently in the given status
func (r *TransactionRepository) ListByStatus(ctx context.Context, status entities.TransactionStatus) ([]*entities.Transaction, error) {
	var ms []models.Transaction
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("created_at ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}

	var txs []*entities.Transaction
	for _, m := range ms {
		model := m
		txs = append(txs, r.toEntity(&model))
	}
	return txs, nil
}

func (r *TransactionRepository) toEntity(m *models.Transaction) *entities.Transaction {
	t := &entities.Transaction{
		ID:             m.ID,
		WalletID:       m.WalletID,
		Type:           entities.TransactionType(m.Type),
		Status:         entities.TransactionStatus(m.Status),
		Amount:         m.Amount,
		ToAddress:      m.ToAddress,
		TokenAddress:   null.StringFromPtr(m.TokenAddress),
		SpenderAddress: null.StringFromPtr(m.SpenderAddress),
		Selector:       null.StringFromPtr(m.Selector),
		TxHash:         null.StringFromPtr(m.TxHash),
		ErrorMessage:   null.StringFromPtr(m.ErrorMessage),
		Retryable:      m.Retryable,
		ReservedAmount: null.StringFromPtr(m.ReservedAmount),
		AmountUSD:      m.AmountUSD,
		QueuedAt:       m.QueuedAt,
		ExecutedAt:     m.ExecutedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.Tier != nil {
		t.Tier = entities.PolicyTier(*m.Tier)
	}
	if m.BatchItems != nil {
		// The column only ever holds what Create marshalled.
		_ = json.Unmarshal([]byte(*m.BatchItems), &t.BatchItems)
	}
	return t
}
