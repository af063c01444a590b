package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Transaction struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	WalletID       uuid.UUID `gorm:"type:uuid;not null;index"`
	Type           string    `gorm:"type:varchar(30);not null"`
	Status         string    `gorm:"type:varchar(30);not null;index"`
	Amount         string    `gorm:"type:varchar(100);not null"` // BigInt
	ToAddress      string    `gorm:"type:varchar(255);not null"`
	TokenAddress   *string   `gorm:"type:varchar(255)"`
	SpenderAddress *string   `gorm:"type:varchar(255)"`
	Selector       *string   `gorm:"type:varchar(12)"`
	BatchItems     *string   `gorm:"type:jsonb"`
	Tier           *string   `gorm:"type:varchar(20)"`
	TxHash         *string   `gorm:"type:varchar(255);index"`
	ErrorMessage   *string   `gorm:"type:text"`
	Retryable      bool      `gorm:"not null;default:false"`
	ReservedAmount *string   `gorm:"type:varchar(100)"` // BigInt
	AmountUSD      *float64
	QueuedAt       *time.Time
	ExecutedAt     *time.Time
	CreatedAt      time.Time `gorm:"index"`
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`

	Wallet Wallet `gorm:"foreignKey:WalletID"`
}
