package models

import (
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey"`
	WalletID      *uuid.UUID `gorm:"type:uuid;index"`
	TransactionID *uuid.UUID `gorm:"type:uuid;index"`
	Action        string     `gorm:"type:varchar(40);not null;index"`
	Detail        string     `gorm:"type:text"`
	CreatedAt     time.Time  `gorm:"index"`
}
