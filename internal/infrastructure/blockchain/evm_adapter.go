package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"agent-wallet.backend/internal/domain/entities"
	domainerrors "agent-wallet.backend/internal/domain/errors"
	"agent-wallet.backend/internal/infrastructure/keystore"
)

var (
	dialEVMClient    = ethclient.Dial
	getClientChainID = func(client *ethclient.Client, ctx context.Context) (*big.Int, error) {
		return client.ChainID(ctx)
	}
)

const (
	// erc20TransferSelector is transfer(address,uint256)
	erc20TransferSelector = "a9059cbb"
	// erc20ApproveSelector is approve(address,uint256)
	erc20ApproveSelector = "095ea7b3"

	receiptPollInterval = 2 * time.Second
)

type evmUnsignedTx struct {
	tx   *types.Transaction
	from common.Address
	// call mirrors the tx for eth_call simulation.
	call ethereum.CallMsg
}

func (u *evmUnsignedTx) ChainType() entities.ChainType { return entities.ChainEthereum }

// EVMAdapter implements ChainAdapter over go-ethereum's ethclient.
type EVMAdapter struct {
	client  *ethclient.Client
	chainID *big.Int
	rpcURL  string
}

// NewEVMAdapter dials the RPC endpoint and caches its chain ID.
func NewEVMAdapter(rpcURL string) (*EVMAdapter, error) {
	client, err := dialEVMClient(rpcURL)
	if err != nil {
		return nil, err
	}

	chainID, err := getClientChainID(client, context.Background())
	if err != nil {
		return nil, err
	}

	return &EVMAdapter{
		client:  client,
		chainID: chainID,
		rpcURL:  rpcURL,
	}, nil
}

func (a *EVMAdapter) Chain() entities.ChainType {
	return entities.ChainEthereum
}

// ChainID returns the connected network's chain ID.
func (a *EVMAdapter) ChainID() *big.Int {
	return a.chainID
}

// BuildTransaction assembles an unsigned transaction with a fresh nonce and
// gas estimate.
func (a *EVMAdapter) BuildTransaction(ctx context.Context, wallet *entities.Wallet, tx *entities.Transaction) (UnsignedTx, error) {
	amount, ok := tx.AmountBig()
	if !ok {
		return nil, domainerrors.NewChainError(domainerrors.ChainErrorPermanent,
			fmt.Sprintf("invalid amount %q", tx.Amount), nil)
	}

	from := common.HexToAddress(wallet.PublicKey)

	var to common.Address
	var value *big.Int
	var data []byte
	switch tx.Type {
	case entities.TxTypeTransfer:
		to = common.HexToAddress(tx.ToAddress)
		value = amount
	case entities.TxTypeTokenTransfer:
		if !tx.TokenAddress.Valid {
			return nil, domainerrors.NewChainError(domainerrors.ChainErrorPermanent, "token transfer without token address", nil)
		}
		to = common.HexToAddress(tx.TokenAddress.String)
		value = big.NewInt(0)
		data = erc20CallData(erc20TransferSelector, common.HexToAddress(tx.ToAddress), amount)
	case entities.TxTypeApprove:
		if !tx.TokenAddress.Valid || !tx.SpenderAddress.Valid {
			return nil, domainerrors.NewChainError(domainerrors.ChainErrorPermanent, "approve without token or spender", nil)
		}
		to = common.HexToAddress(tx.TokenAddress.String)
		value = big.NewInt(0)
		data = erc20CallData(erc20ApproveSelector, common.HexToAddress(tx.SpenderAddress.String), amount)
	case entities.TxTypeContractCall:
		if !tx.Selector.Valid {
			return nil, domainerrors.NewChainError(domainerrors.ChainErrorPermanent, "contract call without selector", nil)
		}
		to = common.HexToAddress(tx.ToAddress)
		value = amount
		data = common.FromHex(tx.Selector.String)
	default:
		return nil, domainerrors.NewChainError(domainerrors.ChainErrorPermanent,
			fmt.Sprintf("unsupported tx type %s", tx.Type), nil)
	}

	nonce, err := a.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, domainerrors.ClassifyChainError(err)
	}

	gasPrice, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, domainerrors.ClassifyChainError(err)
	}

	call := ethereum.CallMsg{From: from, To: &to, Value: value, Data: data}
	gasLimit, err := a.client.EstimateGas(ctx, call)
	if err != nil {
		return nil, domainerrors.ClassifyChainError(err)
	}

	unsigned := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	return &evmUnsignedTx{tx: unsigned, from: from, call: call}, nil
}

// SimulateTransaction runs the call against latest state. A revert here is
// permanent: the same call would revert on chain.
func (a *EVMAdapter) SimulateTransaction(ctx context.Context, wallet *entities.Wallet, unsigned UnsignedTx) error {
	u, ok := unsigned.(*evmUnsignedTx)
	if !ok {
		return domainerrors.NewChainError(domainerrors.ChainErrorPermanent, "not an EVM transaction", nil)
	}

	if _, err := a.client.CallContract(ctx, u.call, nil); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "revert") {
			return fmt.Errorf("%w: %v", domainerrors.ErrSimulationFailed, err)
		}
		return domainerrors.ClassifyChainError(err)
	}
	return nil
}

// SignTransaction signs with the key handle's secp256k1 key. The private
// key copy is zeroed before returning.
func (a *EVMAdapter) SignTransaction(unsigned UnsignedTx, key *keystore.KeyHandle) (*SignedTx, error) {
	u, ok := unsigned.(*evmUnsignedTx)
	if !ok {
		return nil, domainerrors.NewChainError(domainerrors.ChainErrorPermanent, "not an EVM transaction", nil)
	}

	priv, err := ethcrypto.ToECDSA(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	defer func() { priv.D.SetInt64(0) }()

	signed, err := types.SignTx(u.tx, types.NewEIP155Signer(a.chainID), priv)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, err
	}

	return &SignedTx{
		Chain: entities.ChainEthereum,
		Raw:   raw,
		Hash:  signed.Hash().Hex(),
	}, nil
}

// SubmitTransaction broadcasts the signed bytes.
func (a *EVMAdapter) SubmitTransaction(ctx context.Context, signed *SignedTx) (string, error) {
	var tx types.Transaction
	if err := tx.UnmarshalBinary(signed.Raw); err != nil {
		return "", domainerrors.NewChainError(domainerrors.ChainErrorPermanent, "corrupt signed transaction", err)
	}

	if err := a.client.SendTransaction(ctx, &tx); err != nil {
		return "", domainerrors.ClassifyChainError(err)
	}
	return tx.Hash().Hex(), nil
}

// WaitForConfirmation polls for a receipt until ctx expires.
func (a *EVMAdapter) WaitForConfirmation(ctx context.Context, txHash string) error {
	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := a.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return nil
			}
			return domainerrors.NewChainError(domainerrors.ChainErrorPermanent,
				fmt.Sprintf("transaction %s reverted on chain", txHash), nil)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close closes the underlying RPC connection.
func (a *EVMAdapter) Close() {
	if a.client != nil {
		a.client.Close()
	}
}

func erc20CallData(selector string, addr common.Address, amount *big.Int) []byte {
	data := common.Hex2Bytes(selector)
	data = append(data, common.LeftPadBytes(addr.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}
