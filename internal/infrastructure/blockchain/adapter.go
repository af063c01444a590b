package blockchain

import (
	"context"

	"agent-wallet.backend/internal/domain/entities"
	"agent-wallet.backend/internal/infrastructure/keystore"
)

// UnsignedTx is a chain-specific transaction prepared for signing. Adapters
// type-assert their own concrete type back out.
type UnsignedTx interface {
	ChainType() entities.ChainType
}

// SignedTx carries the serialized signed transaction and its hash/signature.
type SignedTx struct {
	Chain entities.ChainType
	Raw   []byte
	Hash  string
}

// ChainAdapter abstracts one chain family for the pipeline's Execute and
// Confirm stages. Build fetches live chain state (nonce, blockhash, gas),
// so a stale-state failure means rebuilding from here, never re-signing
// the same bytes.
type ChainAdapter interface {
	Chain() entities.ChainType

	BuildTransaction(ctx context.Context, wallet *entities.Wallet, tx *entities.Transaction) (UnsignedTx, error)
	SimulateTransaction(ctx context.Context, wallet *entities.Wallet, unsigned UnsignedTx) error
	SignTransaction(unsigned UnsignedTx, key *keystore.KeyHandle) (*SignedTx, error)
	SubmitTransaction(ctx context.Context, signed *SignedTx) (string, error)
	// WaitForConfirmation blocks until the transaction is final or ctx
	// expires. A ctx deadline here is ambiguous: the tx may still land.
	WaitForConfirmation(ctx context.Context, txHash string) error
}
