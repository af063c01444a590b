package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Policy struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	// Null wallet_id marks a global default policy.
	WalletID  *uuid.UUID `gorm:"type:uuid;index"`
	Type      string    `gorm:"type:varchar(40);not null;index"`
	Rules     string    `gorm:"type:jsonb;not null;default:'{}'"`
	Priority  int       `gorm:"not null;default:0"`
	Enabled   bool      `gorm:"not null;default:true;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`

	Wallet Wallet `gorm:"foreignKey:WalletID"`
}
