package entities

import (
	"time"

	"github.com/google/uuid"
)

// ApprovalStatus represents the resolution state of a pending approval
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
	ApprovalStatusExpired  ApprovalStatus = "EXPIRED"
)

// PendingApproval represents a transaction held in the DELAY or APPROVAL tier
type PendingApproval struct {
	ID            uuid.UUID      `json:"id"`
	TransactionID uuid.UUID      `json:"transactionId"`
	WalletID      uuid.UUID      `json:"walletId"`
	Tier          PolicyTier     `json:"tier"`
	Status        ApprovalStatus `json:"status"`
	Reason        string         `json:"reason,omitempty"`
	ReleaseAt     time.Time      `json:"releaseAt"`
	ApprovedBy    *string        `json:"approvedBy,omitempty"`
	ApprovedAt    *time.Time     `json:"approvedAt,omitempty"`
	RejectedAt    *time.Time     `json:"rejectedAt,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// IsResolved reports whether the approval has already been decided or expired.
func (a *PendingApproval) IsResolved() bool {
	return a.Status != ApprovalStatusPending
}

// ResolveApprovalInput represents an owner's decision on a pending approval
type ResolveApprovalInput struct {
	Approve    bool   `json:"approve"`
	ApprovedBy string `json:"approvedBy,omitempty"`
}
