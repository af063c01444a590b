package entities

import (
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// TransactionType represents the kind of on-chain operation requested
type TransactionType string

const (
	TxTypeTransfer      TransactionType = "TRANSFER"
	TxTypeTokenTransfer TransactionType = "TOKEN_TRANSFER"
	TxTypeContractCall  TransactionType = "CONTRACT_CALL"
	TxTypeApprove       TransactionType = "APPROVE"
	TxTypeBatch         TransactionType = "BATCH"
)

// TransactionStatus represents pipeline state
type TransactionStatus string

const (
	TxStatusPending        TransactionStatus = "PENDING"
	TxStatusQueued         TransactionStatus = "QUEUED"
	TxStatusExecuting      TransactionStatus = "EXECUTING"
	TxStatusSubmitted      TransactionStatus = "SUBMITTED"
	TxStatusConfirmed      TransactionStatus = "CONFIRMED"
	TxStatusFailed         TransactionStatus = "FAILED"
	TxStatusCancelled      TransactionStatus = "CANCELLED"
	TxStatusExpired        TransactionStatus = "EXPIRED"
	TxStatusPartialFailure TransactionStatus = "PARTIAL_FAILURE"
)

// IsTerminal reports whether the status admits no further transitions.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TxStatusConfirmed, TxStatusFailed, TxStatusCancelled, TxStatusExpired, TxStatusPartialFailure:
		return true
	}
	return false
}

// BatchItem is one leg of a BATCH transaction: a native transfer to a
// single recipient.
type BatchItem struct {
	ToAddress string `json:"toAddress"`
	Amount    string `json:"amount"` // smallest unit, decimal string
}

// Transaction represents one trip through the pipeline
type Transaction struct {
	ID             uuid.UUID         `json:"id"`
	WalletID       uuid.UUID         `json:"walletId"`
	Type           TransactionType   `json:"type"`
	Status         TransactionStatus `json:"status"`
	Amount         string            `json:"amount"` // smallest unit, decimal string
	ToAddress      string            `json:"toAddress"`
	TokenAddress   null.String       `json:"tokenAddress,omitempty"`
	SpenderAddress null.String       `json:"spenderAddress,omitempty"`
	Selector       null.String       `json:"selector,omitempty"`
	BatchItems     []BatchItem       `json:"batchItems,omitempty"`
	Tier           PolicyTier        `json:"tier,omitempty"`
	TxHash         null.String       `json:"txHash,omitempty"`
	ErrorMessage   null.String       `json:"error,omitempty"`
	Retryable      bool              `json:"retryable"`
	ReservedAmount null.String       `json:"-"`
	AmountUSD      *float64          `json:"amountUsd,omitempty"`
	QueuedAt       *time.Time        `json:"queuedAt,omitempty"`
	ExecutedAt     *time.Time        `json:"executedAt,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// AmountBig parses the raw amount. Returns false when the stored string is
// not a valid base-10 integer.
func (t *Transaction) AmountBig() (*big.Int, bool) {
	return new(big.Int).SetString(t.Amount, 10)
}

// SendTransactionInput represents an inbound transfer request. Amount and
// ToAddress are required for every type except BATCH, which carries its
// recipients and amounts per item; the pipeline validates per type.
type SendTransactionInput struct {
	Type           string      `json:"type" binding:"required"`
	Amount         string      `json:"amount,omitempty"`
	ToAddress      string      `json:"toAddress,omitempty"`
	TokenAddress   string      `json:"tokenAddress,omitempty"`
	SpenderAddress string      `json:"spenderAddress,omitempty"`
	Selector       string      `json:"selector,omitempty"`
	BatchItems     []BatchItem `json:"batchItems,omitempty"`
}
