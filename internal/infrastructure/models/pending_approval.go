package models

import (
	"time"

	"github.com/google/uuid"
)

type PendingApproval struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	TransactionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	WalletID      uuid.UUID `gorm:"type:uuid;not null;index"`
	Tier          string    `gorm:"type:varchar(20);not null"`
	Status        string    `gorm:"type:varchar(20);not null;index"`
	Reason        string    `gorm:"type:text"`
	ReleaseAt     time.Time `gorm:"not null;index"`
	ApprovedBy    *string   `gorm:"type:varchar(255)"`
	ApprovedAt    *time.Time
	RejectedAt    *time.Time
	CreatedAt     time.Time

	Transaction Transaction `gorm:"foreignKey:TransactionID"`
}
