package entities

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the daemon's notification events
type EventType string

const (
	EventTxRequested     EventType = "tx_requested"
	EventTxQueued        EventType = "tx_queued"
	EventTxSubmitted     EventType = "tx_submitted"
	EventTxConfirmed     EventType = "tx_confirmed"
	EventTxFailed        EventType = "tx_failed"
	EventTxCancelled     EventType = "tx_cancelled"
	EventTxNotify        EventType = "tx_notify"
	EventPolicyViolation EventType = "policy_violation"
	EventApprovalPending EventType = "approval_pending"
)

// Event is one notification emitted by the pipeline
type Event struct {
	Type          EventType  `json:"type"`
	WalletID      uuid.UUID  `json:"walletId"`
	TransactionID uuid.UUID  `json:"transactionId"`
	Tier          PolicyTier `json:"tier,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	TxHash        string     `json:"txHash,omitempty"`
	OccurredAt    time.Time  `json:"occurredAt"`
}
