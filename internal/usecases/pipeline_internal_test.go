package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"agent-wallet.backend/internal/domain/entities"
	domainerrors "agent-wallet.backend/internal/domain/errors"
	"agent-wallet.backend/internal/infrastructure/blockchain"
	"agent-wallet.backend/internal/infrastructure/keystore"
	"agent-wallet.backend/internal/observability"
	"agent-wallet.backend/pkg/utils"
)

type pipelineFixture struct {
	pipeline  *Pipeline
	wallets   *memWalletRepo
	txRepo    *memTxRepo
	policies  *memPolicyRepo
	approvals *memApprovalRepo
	audit     *memAuditRepo
	adapter   *fakeAdapter
	bus       *EventBus
	wallet    *entities.Wallet
}

type denyAuthorizer struct{ err error }

func (a denyAuthorizer) Authorize(_ context.Context, _ uuid.UUID, _ string) error {
	return a.err
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	ks, err := keystore.New(t.TempDir(), []byte("test-master-password"))
	require.NoError(t, err)

	f := &pipelineFixture{
		wallets:   newMemWalletRepo(),
		txRepo:    newMemTxRepo(),
		policies:  &memPolicyRepo{},
		approvals: newMemApprovalRepo(),
		audit:     &memAuditRepo{},
		adapter:   &fakeAdapter{chain: entities.ChainEthereum},
		bus:       NewEventBus(),
	}

	f.wallet = &entities.Wallet{
		ID:      utils.GenerateUUIDv7(),
		Chain:   entities.ChainEthereum,
		Network: "mainnet",
		Status:  entities.WalletStatusActive,
	}
	require.NoError(t, f.wallets.Create(context.Background(), f.wallet))
	_, err = ks.GenerateKeyPair(f.wallet.ID, entities.ChainEthereum)
	require.NoError(t, err)

	uow := passthroughUOW{}
	engine := NewPolicyEngine(f.policies, f.txRepo, f.audit, uow, nil)
	queue := NewDelayQueue(f.approvals, f.txRepo, f.audit, uow, f.bus, time.Minute, time.Hour)
	metrics, _ := observability.NewMetrics("walletd_test")

	f.pipeline = NewPipeline(
		f.wallets, f.txRepo, f.audit, uow,
		engine, queue,
		fakeAdapterProvider{adapter: f.adapter},
		ks, nil, f.bus, metrics,
		5*time.Second,
	)
	return f
}

func transferInput(amount string) *entities.SendTransactionInput {
	return &entities.SendTransactionInput{
		Type:      string(entities.TxTypeTransfer),
		Amount:    amount,
		ToAddress: "0x1111111111111111111111111111111111111111",
	}
}

func (f *pipelineFixture) submitAndSettle(t *testing.T, input *entities.SendTransactionInput) *entities.Transaction {
	t.Helper()
	tx, err := f.pipeline.Submit(context.Background(), f.wallet.ID, "", input)
	require.NoError(t, err)
	f.pipeline.Wait()
	settled, err := f.txRepo.GetByID(context.Background(), tx.ID)
	require.NoError(t, err)
	return settled
}

func TestPipeline_InstantTransfer_Confirms(t *testing.T) {
	f := newPipelineFixture(t)

	f.adapter.submitFn = func(_ context.Context, signed *blockchain.SignedTx) (string, error) {
		return "0xconfirmedhash", nil
	}

	tx := f.submitAndSettle(t, transferInput("1000"))
	assert.Equal(t, entities.TxStatusConfirmed, tx.Status)
	assert.Equal(t, "0xconfirmedhash", tx.TxHash.String)
	assert.Equal(t, entities.TierInstant, tx.Tier)
}

func TestPipeline_Validation(t *testing.T) {
	f := newPipelineFixture(t)

	cases := []struct {
		name  string
		input *entities.SendTransactionInput
	}{
		{"zero amount", transferInput("0")},
		{"negative amount", transferInput("-5")},
		{"non-integer amount", transferInput("1.5")},
		{"unknown type", &entities.SendTransactionInput{Type: "TELEPORT", Amount: "1", ToAddress: "0x1"}},
		{"missing recipient", &entities.SendTransactionInput{Type: "TRANSFER", Amount: "1"}},
		{"token transfer without token", &entities.SendTransactionInput{Type: "TOKEN_TRANSFER", Amount: "1", ToAddress: "0x1"}},
		{"approve without spender", &entities.SendTransactionInput{Type: "APPROVE", Amount: "1", ToAddress: "0x1"}},
		{"contract call without selector", &entities.SendTransactionInput{Type: "CONTRACT_CALL", Amount: "1", ToAddress: "0x1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.pipeline.Submit(context.Background(), f.wallet.ID, "", tc.input)
			assert.ErrorIs(t, err, domainerrors.ErrInvalidInput)
		})
	}
}

func TestPipeline_AuthFailure_IsAuditedAndRejected(t *testing.T) {
	f := newPipelineFixture(t)
	f.pipeline.authorizer = denyAuthorizer{err: errors.New("session expired")}

	_, err := f.pipeline.Submit(context.Background(), f.wallet.ID, "bad-token", transferInput("10"))
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
	assert.Contains(t, f.audit.actions(), entities.AuditAuthFailed)
}

func TestPipeline_RejectsInactiveWallets(t *testing.T) {
	f := newPipelineFixture(t)

	require.NoError(t, f.wallets.UpdateStatus(context.Background(), f.wallet.ID, entities.WalletStatusSuspended))
	_, err := f.pipeline.Submit(context.Background(), f.wallet.ID, "", transferInput("10"))
	assert.ErrorIs(t, err, domainerrors.ErrWalletNotActive)

	require.NoError(t, f.wallets.UpdateStatus(context.Background(), f.wallet.ID, entities.WalletStatusTerminated))
	_, err = f.pipeline.Submit(context.Background(), f.wallet.ID, "", transferInput("10"))
	assert.ErrorIs(t, err, domainerrors.ErrWalletTerminated)
}

func TestPipeline_PolicyDenial_FailsAndReleases(t *testing.T) {
	f := newPipelineFixture(t)

	f.policies.policies = append(f.policies.policies, enabledPolicy(f.wallet, entities.PolicyWhitelist, entities.PolicyRules{
		Addresses: []string{"0x9999999999999999999999999999999999999999"},
	}))

	tx, err := f.pipeline.Submit(context.Background(), f.wallet.ID, "", transferInput("10"))
	require.NoError(t, err)
	f.pipeline.Wait()

	assert.Equal(t, entities.TxStatusFailed, tx.Status)
	assert.Contains(t, tx.ErrorMessage.String, "not whitelisted")
	assert.False(t, tx.ReservedAmount.Valid)
	assert.Contains(t, f.audit.actions(), entities.AuditPolicyDenied)
}

func TestPipeline_DelayTier_HoldsInsteadOfExecuting(t *testing.T) {
	f := newPipelineFixture(t)

	f.policies.policies = append(f.policies.policies, enabledPolicy(f.wallet, entities.PolicySpendingLimit, entities.PolicyRules{
		InstantMax:   "10",
		DelayMax:     "1000",
		DelaySeconds: 300,
	}))

	tx, err := f.pipeline.Submit(context.Background(), f.wallet.ID, "", transferInput("500"))
	require.NoError(t, err)
	f.pipeline.Wait()

	// Held transactions sit in QUEUED until the hold lifts.
	assert.Equal(t, entities.TxStatusQueued, tx.Status)
	assert.False(t, tx.TxHash.Valid)

	approval, err := f.approvals.GetByTransactionID(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TierDelay, approval.Tier)
	assert.Equal(t, entities.ApprovalStatusPending, approval.Status)
}

func TestPipeline_ApprovalResolution_RunsToConfirmed(t *testing.T) {
	f := newPipelineFixture(t)

	f.policies.policies = append(f.policies.policies, enabledPolicy(f.wallet, entities.PolicySpendingLimit, entities.PolicyRules{
		InstantMax: "10",
	}))

	tx, err := f.pipeline.Submit(context.Background(), f.wallet.ID, "", transferInput("500"))
	require.NoError(t, err)

	approval, err := f.approvals.GetByTransactionID(context.Background(), tx.ID)
	require.NoError(t, err)

	// Owner approves; the release hook re-enters the pipeline.
	queue := f.pipeline.queue
	_, err = queue.Resolve(context.Background(), approval.ID, &entities.ResolveApprovalInput{Approve: true, ApprovedBy: "owner"})
	require.NoError(t, err)
	f.pipeline.Wait()

	settled, err := f.txRepo.GetByID(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TxStatusConfirmed, settled.Status)
}

func TestPipeline_SimulationFailure_IsTerminal(t *testing.T) {
	f := newPipelineFixture(t)

	f.adapter.simFn = func(_ context.Context, _ *entities.Wallet, _ blockchain.UnsignedTx) error {
		return domainerrors.ErrSimulationFailed
	}

	tx := f.submitAndSettle(t, transferInput("10"))
	assert.Equal(t, entities.TxStatusFailed, tx.Status)
	assert.False(t, tx.Retryable)
	assert.False(t, tx.ReservedAmount.Valid, "terminal failure releases the reservation")
}

func TestPipeline_TransientSubmitError_Retries(t *testing.T) {
	f := newPipelineFixture(t)

	var attempts atomic.Int32
	f.adapter.submitFn = func(_ context.Context, signed *blockchain.SignedTx) (string, error) {
		if attempts.Add(1) < 3 {
			return "", errors.New("rpc timeout")
		}
		return "0xretriedhash", nil
	}

	tx := f.submitAndSettle(t, transferInput("10"))
	assert.Equal(t, entities.TxStatusConfirmed, tx.Status)
	assert.Equal(t, "0xretriedhash", tx.TxHash.String)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestPipeline_StaleStateError_Rebuilds(t *testing.T) {
	f := newPipelineFixture(t)

	var builds atomic.Int32
	f.adapter.buildFn = func(_ context.Context, _ *entities.Wallet, _ *entities.Transaction) (blockchain.UnsignedTx, error) {
		builds.Add(1)
		return fakeUnsigned{chain: entities.ChainEthereum}, nil
	}
	var submits atomic.Int32
	f.adapter.submitFn = func(_ context.Context, _ *blockchain.SignedTx) (string, error) {
		if submits.Add(1) == 1 {
			return "", errors.New("nonce too low")
		}
		return "0xrebuilthash", nil
	}

	tx := f.submitAndSettle(t, transferInput("10"))
	assert.Equal(t, entities.TxStatusConfirmed, tx.Status)
	assert.Equal(t, int32(2), builds.Load(), "stale state forces a fresh build")
}

func TestPipeline_PermanentSubmitError_Fails(t *testing.T) {
	f := newPipelineFixture(t)

	f.adapter.submitFn = func(_ context.Context, _ *blockchain.SignedTx) (string, error) {
		return "", errors.New("insufficient funds for gas")
	}

	tx := f.submitAndSettle(t, transferInput("10"))
	assert.Equal(t, entities.TxStatusFailed, tx.Status)
	assert.Contains(t, tx.ErrorMessage.String, "insufficient funds")
}

func TestPipeline_ConfirmationTimeout_IsPartialFailure(t *testing.T) {
	f := newPipelineFixture(t)

	f.adapter.waitFn = func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}
	// Tight timeout so the test does not stall.
	f.pipeline.confirmTimeout = 50 * time.Millisecond

	tx := f.submitAndSettle(t, transferInput("10"))
	assert.Equal(t, entities.TxStatusPartialFailure, tx.Status)
	assert.True(t, tx.TxHash.Valid, "the hash is kept for reconciliation")
}

func TestPipeline_Execute_SecondClaimLoses(t *testing.T) {
	f := newPipelineFixture(t)

	tx := &entities.Transaction{
		ID:       utils.GenerateUUIDv7(),
		WalletID: f.wallet.ID,
		Type:     entities.TxTypeTransfer,
		Status:   entities.TxStatusQueued,
		Amount:   "10",
	}
	require.NoError(t, f.txRepo.Create(context.Background(), tx))

	release := make(chan struct{})
	f.adapter.waitFn = func(_ context.Context, _ string) error {
		<-release
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = f.pipeline.Execute(context.Background(), tx.ID)
	}()

	// Wait for the first executor to take the claim.
	require.Eventually(t, func() bool {
		cur, err := f.txRepo.GetByID(context.Background(), tx.ID)
		return err == nil && cur.Status != entities.TxStatusQueued
	}, time.Second, 5*time.Millisecond)

	_, err := f.pipeline.Execute(context.Background(), tx.ID)
	assert.ErrorIs(t, err, domainerrors.ErrTxAlreadyClaimed)

	close(release)
	wg.Wait()
}

func TestPipeline_Execute_TerminalReturnsStoredResult(t *testing.T) {
	f := newPipelineFixture(t)

	tx := &entities.Transaction{
		ID:       utils.GenerateUUIDv7(),
		WalletID: f.wallet.ID,
		Type:     entities.TxTypeTransfer,
		Status:   entities.TxStatusConfirmed,
		Amount:   "10",
	}
	require.NoError(t, f.txRepo.Create(context.Background(), tx))
	require.NoError(t, f.txRepo.SetTxHash(context.Background(), tx.ID, "0xsettled"))

	var builds atomic.Int32
	f.adapter.buildFn = func(_ context.Context, _ *entities.Wallet, _ *entities.Transaction) (blockchain.UnsignedTx, error) {
		builds.Add(1)
		return fakeUnsigned{chain: entities.ChainEthereum}, nil
	}

	got, err := f.pipeline.Execute(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TxStatusConfirmed, got.Status)
	assert.Equal(t, "0xsettled", got.TxHash.String)
	assert.Equal(t, int32(0), builds.Load(), "a settled transaction never touches the chain again")
}

func batchInput(items ...entities.BatchItem) *entities.SendTransactionInput {
	return &entities.SendTransactionInput{
		Type:       string(entities.TxTypeBatch),
		BatchItems: items,
	}
}

func TestPipeline_Batch_AllLegsConfirm(t *testing.T) {
	f := newPipelineFixture(t)

	var submits atomic.Int32
	f.adapter.submitFn = func(_ context.Context, _ *blockchain.SignedTx) (string, error) {
		return fmt.Sprintf("0xleg%d", submits.Add(1)), nil
	}

	tx := f.submitAndSettle(t, batchInput(
		entities.BatchItem{ToAddress: "0xaaa", Amount: "100"},
		entities.BatchItem{ToAddress: "0xbbb", Amount: "250"},
	))
	assert.Equal(t, entities.TxStatusConfirmed, tx.Status)
	assert.Equal(t, "350", tx.Amount, "batch amount is the sum of its legs")
	assert.Equal(t, "0xleg1,0xleg2", tx.TxHash.String)
	assert.Equal(t, int32(2), submits.Load())
}

func TestPipeline_Batch_LateLegFailure_IsPartialFailure(t *testing.T) {
	f := newPipelineFixture(t)

	var submits atomic.Int32
	f.adapter.submitFn = func(_ context.Context, _ *blockchain.SignedTx) (string, error) {
		if submits.Add(1) == 1 {
			return "0xfirstleg", nil
		}
		return "", errors.New("insufficient funds for gas")
	}

	tx := f.submitAndSettle(t, batchInput(
		entities.BatchItem{ToAddress: "0xaaa", Amount: "100"},
		entities.BatchItem{ToAddress: "0xbbb", Amount: "250"},
	))
	assert.Equal(t, entities.TxStatusPartialFailure, tx.Status)
	assert.Equal(t, "0xfirstleg", tx.TxHash.String, "on-chain legs are kept for reconciliation")
	assert.Contains(t, tx.ErrorMessage.String, "batch leg 1")
}

func TestPipeline_Batch_FirstLegFailure_FailsWholeBatch(t *testing.T) {
	f := newPipelineFixture(t)

	f.adapter.submitFn = func(_ context.Context, _ *blockchain.SignedTx) (string, error) {
		return "", errors.New("insufficient funds for gas")
	}

	tx := f.submitAndSettle(t, batchInput(
		entities.BatchItem{ToAddress: "0xaaa", Amount: "100"},
	))
	assert.Equal(t, entities.TxStatusFailed, tx.Status)
	assert.False(t, tx.TxHash.Valid)
}

func TestPipeline_Batch_Validation(t *testing.T) {
	f := newPipelineFixture(t)

	cases := []struct {
		name  string
		input *entities.SendTransactionInput
	}{
		{"empty batch", batchInput()},
		{"leg missing recipient", batchInput(entities.BatchItem{Amount: "1"})},
		{"leg zero amount", batchInput(entities.BatchItem{ToAddress: "0xaaa", Amount: "0"})},
		{"leg non-integer amount", batchInput(entities.BatchItem{ToAddress: "0xaaa", Amount: "1.5"})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.pipeline.Submit(context.Background(), f.wallet.ID, "", tc.input)
			assert.ErrorIs(t, err, domainerrors.ErrInvalidInput)
		})
	}
}

func TestPipeline_RecoverInFlight(t *testing.T) {
	f := newPipelineFixture(t)

	ctx := context.Background()
	mk := func(status entities.TransactionStatus, hash string) *entities.Transaction {
		tx := &entities.Transaction{
			ID:       utils.GenerateUUIDv7(),
			WalletID: f.wallet.ID,
			Type:     entities.TxTypeTransfer,
			Status:   status,
			Amount:   "10",
		}
		require.NoError(t, f.txRepo.Create(ctx, tx))
		if hash != "" {
			require.NoError(t, f.txRepo.SetTxHash(ctx, tx.ID, hash))
		}
		return tx
	}

	executingWithHash := mk(entities.TxStatusExecuting, "0xambiguous")
	executingNoHash := mk(entities.TxStatusExecuting, "")
	submitted := mk(entities.TxStatusSubmitted, "0xresumed")

	require.NoError(t, f.pipeline.RecoverInFlight(ctx))
	f.pipeline.Wait()

	// Might have hit the chain: parked for reconciliation.
	got, err := f.txRepo.GetByID(ctx, executingWithHash.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TxStatusPartialFailure, got.Status)

	// Never left the box: re-queued and executed to completion.
	got, err = f.txRepo.GetByID(ctx, executingNoHash.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TxStatusConfirmed, got.Status)

	// Submitted before the crash: confirmation resumed.
	got, err = f.txRepo.GetByID(ctx, submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TxStatusConfirmed, got.Status)
}
