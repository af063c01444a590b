package entities

import (
	"time"

	"github.com/google/uuid"
)

// ChainType identifies the chain family a wallet's key belongs to
type ChainType string

const (
	ChainSolana   ChainType = "solana"
	ChainEthereum ChainType = "ethereum"
)

// WalletStatus represents the wallet lifecycle state
type WalletStatus string

const (
	WalletStatusCreating    WalletStatus = "CREATING"
	WalletStatusActive      WalletStatus = "ACTIVE"
	WalletStatusSuspended   WalletStatus = "SUSPENDED"
	WalletStatusTerminating WalletStatus = "TERMINATING"
	WalletStatusTerminated  WalletStatus = "TERMINATED"
)

// Wallet represents an agent-controlled wallet
type Wallet struct {
	ID            uuid.UUID    `json:"id"`
	Chain         ChainType    `json:"chain"`
	Network       string       `json:"network"`
	PublicKey     string       `json:"publicKey"`
	Status        WalletStatus `json:"status"`
	OwnerAddress  *string      `json:"ownerAddress,omitempty"`
	OwnerVerified bool         `json:"ownerVerified"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// CanTransact reports whether new transactions may be created for the wallet.
func (w *Wallet) CanTransact() bool {
	return w.Status == WalletStatusActive
}

// validWalletTransitions encodes the wallet status machine.
var validWalletTransitions = map[WalletStatus][]WalletStatus{
	WalletStatusCreating:    {WalletStatusActive, WalletStatusTerminated},
	WalletStatusActive:      {WalletStatusSuspended, WalletStatusTerminating},
	WalletStatusSuspended:   {WalletStatusActive, WalletStatusTerminating},
	WalletStatusTerminating: {WalletStatusTerminated},
}

// CanTransitionTo reports whether the status change is legal.
func (w *Wallet) CanTransitionTo(next WalletStatus) bool {
	for _, s := range validWalletTransitions[w.Status] {
		if s == next {
			return true
		}
	}
	return false
}

// CreateWalletInput represents input for creating a wallet
type CreateWalletInput struct {
	Chain   string `json:"chain" binding:"required"`
	Network string `json:"network" binding:"required"`
}
