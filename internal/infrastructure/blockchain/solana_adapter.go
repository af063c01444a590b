package blockchain

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
	"agent-wallet.backend/internal/domain/entities"
	domainerrors "agent-wallet.backend/internal/domain/errors"
	"agent-wallet.backend/internal/infrastructure/keystore"
)

const (
	systemProgramID = "11111111111111111111111111111111"
	tokenProgramID  = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

	systemTransferIndex = 2
	tokenTransferIndex  = 3

	signatureStatusPollInterval = 2 * time.Second
)

type solanaUnsignedTx struct {
	message   []byte
	blockhash string
}

func (u *solanaUnsignedTx) ChainType() entities.ChainType { return entities.ChainSolana }

// SolanaAdapter implements ChainAdapter over raw Solana JSON-RPC. Messages
// are serialized by hand in the legacy wire format.
type SolanaAdapter struct {
	rpc *solanaRPC
}

// NewSolanaAdapter creates an adapter against the given RPC endpoint.
func NewSolanaAdapter(rpcURL string) *SolanaAdapter {
	return &SolanaAdapter{rpc: newSolanaRPC(rpcURL)}
}

func (a *SolanaAdapter) Chain() entities.ChainType {
	return entities.ChainSolana
}

// BuildTransaction serializes an unsigned message with a fresh blockhash.
// For TOKEN_TRANSFER the addresses must already be token accounts.
func (a *SolanaAdapter) BuildTransaction(ctx context.Context, wallet *entities.Wallet, tx *entities.Transaction) (UnsignedTx, error) {
	amount, ok := tx.AmountBig()
	if !ok || !amount.IsUint64() {
		return nil, domainerrors.NewChainError(domainerrors.ChainErrorPermanent,
			fmt.Sprintf("invalid amount %q", tx.Amount), nil)
	}

	payer, err := base58.Decode(wallet.PublicKey)
	if err != nil || len(payer) != 32 {
		return nil, domainerrors.NewChainError(domainerrors.ChainErrorPermanent, "invalid wallet public key", err)
	}

	blockhash, err := a.rpc.getLatestBlockhash(ctx)
	if err != nil {
		return nil, domainerrors.ClassifyChainError(err)
	}

	var message []byte
	switch tx.Type {
	case entities.TxTypeTransfer:
		message, err = buildTransferMessage(payer, tx.ToAddress, amount.Uint64(), blockhash)
	case entities.TxTypeTokenTransfer:
		if !tx.TokenAddress.Valid {
			return nil, domainerrors.NewChainError(domainerrors.ChainErrorPermanent, "token transfer without source token account", nil)
		}
		message, err = buildTokenTransferMessage(payer, tx.TokenAddress.String, tx.ToAddress, amount.Uint64(), blockhash)
	default:
		return nil, domainerrors.NewChainError(domainerrors.ChainErrorPermanent,
			fmt.Sprintf("unsupported tx type %s on solana", tx.Type), nil)
	}
	if err != nil {
		return nil, err
	}

	return &solanaUnsignedTx{message: message, blockhash: blockhash}, nil
}

// SimulateTransaction runs the message through simulateTransaction with
// signature checks off.
func (a *SolanaAdapter) SimulateTransaction(ctx context.Context, wallet *entities.Wallet, unsigned UnsignedTx) error {
	u, ok := unsigned.(*solanaUnsignedTx)
	if !ok {
		return domainerrors.NewChainError(domainerrors.ChainErrorPermanent, "not a solana transaction", nil)
	}

	// A placeholder signature keeps the wire format valid for simulation.
	raw := assembleTransaction(make([]byte, 64), u.message)
	if err := a.rpc.simulateTransaction(ctx, raw); err != nil {
		ce := domainerrors.ClassifyChainError(err)
		if ce.Class == domainerrors.ChainErrorPermanent {
			return fmt.Errorf("%w: %v", domainerrors.ErrSimulationFailed, err)
		}
		return ce
	}
	return nil
}

// SignTransaction signs the message with the wallet's ed25519 key.
func (a *SolanaAdapter) SignTransaction(unsigned UnsignedTx, key *keystore.KeyHandle) (*SignedTx, error) {
	u, ok := unsigned.(*solanaUnsignedTx)
	if !ok {
		return nil, domainerrors.NewChainError(domainerrors.ChainErrorPermanent, "not a solana transaction", nil)
	}
	if len(key.Bytes()) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid ed25519 key length %d", len(key.Bytes()))
	}

	signature := ed25519.Sign(ed25519.PrivateKey(key.Bytes()), u.message)

	return &SignedTx{
		Chain: entities.ChainSolana,
		Raw:   assembleTransaction(signature, u.message),
		Hash:  base58.Encode(signature),
	}, nil
}

// SubmitTransaction broadcasts the signed transaction.
func (a *SolanaAdapter) SubmitTransaction(ctx context.Context, signed *SignedTx) (string, error) {
	signature, err := a.rpc.sendTransaction(ctx, signed.Raw)
	if err != nil {
		return "", domainerrors.ClassifyChainError(err)
	}
	return signature, nil
}

// WaitForConfirmation polls signature status until confirmed or ctx expires.
func (a *SolanaAdapter) WaitForConfirmation(ctx context.Context, txHash string) error {
	ticker := time.NewTicker(signatureStatusPollInterval)
	defer ticker.Stop()

	for {
		confirmed, failed, err := a.rpc.getSignatureStatus(ctx, txHash)
		if err == nil {
			if failed != "" {
				return domainerrors.NewChainError(domainerrors.ChainErrorPermanent,
					fmt.Sprintf("transaction failed on chain: %s", failed), nil)
			}
			if confirmed {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// buildTransferMessage serializes a legacy message holding one system
// program transfer. Account order: payer (writable signer), recipient
// (writable), system program (readonly).
func buildTransferMessage(payer []byte, toAddress string, lamports uint64, blockhash string) ([]byte, error) {
	recipient, err := base58.Decode(toAddress)
	if err != nil || len(recipient) != 32 {
		return nil, domainerrors.NewChainError(domainerrors.ChainErrorPermanent, "invalid recipient address", err)
	}
	program, _ := base58.Decode(systemProgramID)

	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], systemTransferIndex)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	return serializeMessage(
		messageHeader{numRequiredSignatures: 1, numReadonlyUnsigned: 1},
		[][]byte{payer, recipient, program},
		blockhash,
		[]instruction{{programIndex: 2, accountIndexes: []byte{0, 1}, data: data}},
	)
}

// buildTokenTransferMessage serializes an SPL token transfer. sourceAccount
// and destAccount are token accounts; the payer signs as their owner.
func buildTokenTransferMessage(payer []byte, sourceAccount, destAccount string, amount uint64, blockhash string) ([]byte, error) {
	source, err := base58.Decode(sourceAccount)
	if err != nil || len(source) != 32 {
		return nil, domainerrors.NewChainError(domainerrors.ChainErrorPermanent, "invalid source token account", err)
	}
	dest, err := base58.Decode(destAccount)
	if err != nil || len(dest) != 32 {
		return nil, domainerrors.NewChainError(domainerrors.ChainErrorPermanent, "invalid destination token account", err)
	}
	program, _ := base58.Decode(tokenProgramID)

	data := make([]byte, 9)
	data[0] = tokenTransferIndex
	binary.LittleEndian.PutUint64(data[1:9], amount)

	return serializeMessage(
		messageHeader{numRequiredSignatures: 1, numReadonlyUnsigned: 1},
		[][]byte{payer, source, dest, program},
		blockhash,
		[]instruction{{programIndex: 3, accountIndexes: []byte{1, 2, 0}, data: data}},
	)
}

type messageHeader struct {
	numRequiredSignatures byte
	numReadonlySigned     byte
	numReadonlyUnsigned   byte
}

type instruction struct {
	programIndex   byte
	accountIndexes []byte
	data           []byte
}

func serializeMessage(header messageHeader, accounts [][]byte, blockhash string, instructions []instruction) ([]byte, error) {
	hash, err := base58.Decode(blockhash)
	if err != nil || len(hash) != 32 {
		return nil, domainerrors.NewChainError(domainerrors.ChainErrorStaleState, "invalid blockhash", err)
	}

	var msg []byte
	msg = append(msg, header.numRequiredSignatures, header.numReadonlySigned, header.numReadonlyUnsigned)
	msg = append(msg, shortvec(len(accounts))...)
	for _, acc := range accounts {
		msg = append(msg, acc...)
	}
	msg = append(msg, hash...)
	msg = append(msg, shortvec(len(instructions))...)
	for _, ins := range instructions {
		msg = append(msg, ins.programIndex)
		msg = append(msg, shortvec(len(ins.accountIndexes))...)
		msg = append(msg, ins.accountIndexes...)
		msg = append(msg, shortvec(len(ins.data))...)
		msg = append(msg, ins.data...)
	}
	return msg, nil
}

func assembleTransaction(signature, message []byte) []byte {
	var tx []byte
	tx = append(tx, shortvec(1)...)
	tx = append(tx, signature...)
	tx = append(tx, message...)
	return tx
}

// shortvec is Solana's compact-u16 length encoding.
func shortvec(n int) []byte {
	var out []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			out = append(out, b)
			return out
		}
		out = append(out, b|0x80)
	}
}
