package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Wallet struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	Chain         string    `gorm:"type:varchar(20);not null;index"`
	Network       string    `gorm:"type:varchar(50);not null"`
	PublicKey     string    `gorm:"type:varchar(255);not null;uniqueIndex"`
	Status        string    `gorm:"type:varchar(20);not null;index"`
	OwnerAddress  *string   `gorm:"type:varchar(255)"`
	OwnerVerified bool      `gorm:"not null;default:false"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`
}
