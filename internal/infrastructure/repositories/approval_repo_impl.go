package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"agent-wallet.backend/internal/domain/entities"
	domainerrors "agent-wallet.backend/internal/domain/errors"
	"agent-wallet.backend/internal/infrastructure/models"
)

// ApprovalRepository implements pending approval data operations
type ApprovalRepository struct {
	db *gorm.DB
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *gorm.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// Create creates a new pending approval
func (r *ApprovalRepository) Create(ctx context.Context, approval *entities.PendingApproval) error {
	m := &models.PendingApproval{
		ID:            approval.ID,
		TransactionID: approval.TransactionID,
		WalletID:      approval.WalletID,
		Tier:          string(approval.Tier),
		Status:        string(approval.Status),
		Reason:        approval.Reason,
		ReleaseAt:     approval.ReleaseAt,
		CreatedAt:     approval.CreatedAt,
	}

	db := GetDB(ctx, r.db)
	return db.WithContext(ctx).Create(m).Error
}

// GetByID gets an approval by ID
func (r *ApprovalRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.PendingApproval, error) {
	var m models.PendingApproval
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrApprovalNotFound
		}
		return nil, err
	}
	return r.toEntity(&m), nil
}

// GetByTransactionID gets the approval attached to a transaction
func (r *ApprovalRepository) GetByTransactionID(ctx context.Context, txID uuid.UUID) (*entities.PendingApproval, error) {
	var m models.PendingApproval
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Where("transaction_id = ?", txID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrApprovalNotFound
		}
		return nil, err
	}
	return r.toEntity(&m), nil
}

// ListPending returns unresolved approvals for a wallet
func (r *ApprovalRepository) ListPending(ctx context.Context, walletID uuid.UUID) ([]*entities.PendingApproval, error) {
	var ms []models.PendingApproval
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).
		Where("wallet_id = ? AND status = ?", walletID, string(entities.ApprovalStatusPending)).
		Order("created_at ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}

	var approvals []*entities.PendingApproval
	for _, m := range ms {
		model := m
		approvals = append(approvals, r.toEntity(&model))
	}
	return approvals, nil
}

// Resolve atomically moves PENDING to the given status. The conditional
// update makes resolution idempotent under concurrent decisions and the
// sweep: exactly one caller sees true.
func (r *ApprovalRepository) Resolve(ctx context.Context, id uuid.UUID, status entities.ApprovalStatus, approvedBy *string, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status": string(status),
	}
	switch status {
	case entities.ApprovalStatusApproved:
		updates["approved_by"] = approvedBy
		updates["approved_at"] = at
	case entities.ApprovalStatusRejected:
		updates["rejected_at"] = at
	}
	// Expiry leaves approved_at and rejected_at untouched: an expired
	// approval was never decided.

	db := GetDB(ctx, r.db)
	result := db.WithContext(ctx).Model(&models.PendingApproval{}).
		Where("id = ? AND status = ?", id, string(entities.ApprovalStatusPending)).
		Updates(updates)

	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListDue returns PENDING approvals whose release time has passed
func (r *ApprovalRepository) ListDue(ctx context.Context, now time.Time) ([]*entities.PendingApproval, error) {
	var ms []models.PendingApproval
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).
		Where("status = ? AND release_at <= ?", string(entities.ApprovalStatusPending), now).
		Order("release_at ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}

	var approvals []*entities.PendingApproval
	for _, m := range ms {
		model := m
		approvals = append(approvals, r.toEntity(&model))
	}
	return approvals, nil
}

func (r *ApprovalRepository) toEntity(m *models.PendingApproval) *entities.PendingApproval {
	return &entities.PendingApproval{
		ID:            m.ID,
		TransactionID: m.TransactionID,
		WalletID:      m.WalletID,
		Tier:          entities.PolicyTier(m.Tier),
		Status:        entities.ApprovalStatus(m.Status),
		Reason:        m.Reason,
		ReleaseAt:     m.ReleaseAt,
		ApprovedBy:    m.ApprovedBy,
		ApprovedAt:    m.ApprovedAt,
		RejectedAt:    m.RejectedAt,
		CreatedAt:     m.CreatedAt,
	}
}
