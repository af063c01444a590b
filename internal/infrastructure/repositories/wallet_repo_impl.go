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

// WalletRepository implements wallet data operations
type WalletRepository struct {
	db *gorm.DB
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Create creates a new wallet
func (r *WalletRepository) Create(ctx context.Context, wallet *entities.Wallet) error {
	m := &models.Wallet{
		ID:            wallet.ID,
		Chain:         string(wallet.Chain),
		Network:       wallet.Network,
		PublicKey:     wallet.PublicKey,
		Status:        string(wallet.Status),
		OwnerAddress:  wallet.OwnerAddress,
		OwnerVerified: wallet.OwnerVerified,
		CreatedAt:     wallet.CreatedAt,
		UpdatedAt:     wallet.UpdatedAt,
	}

	db := GetDB(ctx, r.db)
	return db.WithContext(ctx).Create(m).Error
}

// GetByID gets a wallet by ID
func (r *WalletRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Wallet, error) {
	var m models.Wallet
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return r.toEntity(&m), nil
}

// List returns wallets with pagination
func (r *WalletRepository) List(ctx context.Context, limit, offset int) ([]*entities.Wallet, int, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Wallet{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ms []models.Wallet
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&ms).Error; err != nil {
		return nil, 0, err
	}

	var wallets []*entities.Wallet
	for _, m := range ms {
		model := m
		wallets = append(wallets, r.toEntity(&model))
	}

	return wallets, int(total), nil
}

// UpdateStatus updates the wallet lifecycle status
func (r *WalletRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status entities.WalletStatus) error {
	db := GetDB(ctx, r.db)
	result := db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     string(status),
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

// SetOwner records the verified owner address
func (r *WalletRepository) SetOwner(ctx context.Context, id uuid.UUID, ownerAddress string, verified bool) error {
	db := GetDB(ctx, r.db)
	result := db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"owner_address":  ownerAddress,
			"owner_verified": verified,
			"updated_at":     time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (r *WalletRepository) toEntity(m *models.Wallet) *entities.Wallet {
	return &entities.Wallet{
		ID:            m.ID,
		Chain:         entities.ChainType(m.Chain),
		Network:       m.Network,
		PublicKey:     m.PublicKey,
		Status:        entities.WalletStatus(m.Status),
		OwnerAddress:  m.OwnerAddress,
		OwnerVerified: m.OwnerVerified,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
