package entities

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction enumerates persisted audit events
type AuditAction string

const (
	AuditPolicyDenied AuditAction = "POLICY_DENIED"
	AuditAuthFailed   AuditAction = "AUTH_FAILED"
	AuditApprovalSet  AuditAction = "APPROVAL_RESOLVED"
	AuditKeyReleased  AuditAction = "KEY_RELEASED"
)

// AuditLog is one immutable audit record
type AuditLog struct {
	ID            uuid.UUID   `json:"id"`
	WalletID      *uuid.UUID  `json:"walletId,omitempty"`
	TransactionID *uuid.UUID  `json:"transactionId,omitempty"`
	Action        AuditAction `json:"action"`
	Detail        string      `json:"detail,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}
