package repositories

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"agent-wallet.backend/internal/domain/entities"
	"agent-wallet.backend/internal/infrastructure/models"
)

// AuditRepository implements the append-only audit log
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends an audit record
func (r *AuditRepository) Create(ctx context.Context, entry *entities.AuditLog) error {
	m := &models.AuditLog{
		ID:            entry.ID,
		WalletID:      entry.WalletID,
		TransactionID: entry.TransactionID,
		Action:        string(entry.Action),
		Detail:        entry.Detail,
		CreatedAt:     entry.CreatedAt,
	}

	db := GetDB(ctx, r.db)
	return db.WithContext(ctx).Create(m).Error
}

// GetByWalletID returns audit records for a wallet, newest first
func (r *AuditRepository) GetByWalletID(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*entities.AuditLog, int, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.AuditLog{}).
		Where("wallet_id = ?", walletID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ms []models.AuditLog
	if err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&ms).Error; err != nil {
		return nil, 0, err
	}

	var entries []*entities.AuditLog
	for _, m := range ms {
		model := m
		entries = append(entries, &entities.AuditLog{
			ID:            model.ID,
			WalletID:      model.WalletID,
			TransactionID: model.TransactionID,
			Action:        entities.AuditAction(model.Action),
			Detail:        model.Detail,
			CreatedAt:     model.CreatedAt,
		})
	}

	return entries, int(total), nil
}
