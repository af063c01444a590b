package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"agent-wallet.backend/internal/domain/entities"
	domainerrors "agent-wallet.backend/internal/domain/errors"
	"agent-wallet.backend/internal/infrastructure/models"
)

// PolicyRepository implements policy data operations
type PolicyRepository struct {
	db *gorm.DB
}

// NewPolicyRepository creates a new policy repository
func NewPolicyRepository(db *gorm.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// Create creates a new policy
func (r *PolicyRepository) Create(ctx context.Context, policy *entities.Policy) error {
	rules, err := json.Marshal(policy.Rules)
	if err != nil {
		return fmt.Errorf("failed to marshal policy rules: %w", err)
	}

	m := &models.Policy{
		ID:        policy.ID,
		WalletID:  policy.WalletID,
		Type:      string(policy.Type),
		Rules:     string(rules),
		Priority:  policy.Priority,
		Enabled:   policy.Enabled,
		CreatedAt: policy.CreatedAt,
		UpdatedAt: policy.UpdatedAt,
	}

	db := GetDB(ctx, r.db)
	return db.WithContext(ctx).Create(m).Error
}

// GetByID gets a policy by ID
func (r *PolicyRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Policy, error) {
	var m models.Policy
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return r.toEntity(&m)
}

// GetEnabledByWalletID returns enabled policies scoped to the wallet plus
// global defaults (null wallet_id), lowest priority first, then creation time
func (r *PolicyRepository) GetEnabledByWalletID(ctx context.Context, walletID uuid.UUID) ([]*entities.Policy, error) {
	var ms []models.Policy
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).
		Where("(wallet_id = ? OR wallet_id IS NULL) AND enabled = ?", walletID, true).
		Order("priority ASC").
		Order("created_at ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}

	var policies []*entities.Policy
	for _, m := range ms {
		model := m
		p, err := r.toEntity(&model)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, nil
}

// Update replaces the policy's rules, priority and enabled flag
func (r *PolicyRepository) Update(ctx context.Context, policy *entities.Policy) error {
	rules, err := json.Marshal(policy.Rules)
	if err != nil {
		return fmt.Errorf("failed to marshal policy rules: %w", err)
	}

	db := GetDB(ctx, r.db)
	result := db.WithContext(ctx).Model(&models.Policy{}).
		Where("id = ?", policy.ID).
		Updates(map[string]interface{}{
			"rules":      string(rules),
			"priority":   policy.Priority,
			"enabled":    policy.Enabled,
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

// SetEnabled toggles the policy without touching its rules
func (r *PolicyRepository) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	db := GetDB(ctx, r.db)
	result := db.WithContext(ctx).Model(&models.Policy{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"enabled":    enabled,
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

// Delete soft-deletes the policy
func (r *PolicyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	result := db.WithContext(ctx).Where("id = ?", id).Delete(&models.Policy{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (r *PolicyRepository) toEntity(m *models.Policy) (*entities.Policy, error) {
	var rules entities.PolicyRules
	if err := json.Unmarshal([]byte(m.Rules), &rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal policy rules for %s: %w", m.ID, err)
	}

	return &entities.Policy{
		ID:        m.ID,
		WalletID:  m.WalletID,
		Type:      entities.PolicyType(m.Type),
		Rules:     rules,
		Priority:  m.Priority,
		Enabled:   m.Enabled,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}
