package usecases

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"agent-wallet.backend/internal/domain/entities"
	domainerrors "agent-wallet.backend/internal/domain/errors"
	"agent-wallet.backend/internal/domain/repositories"
	"agent-wallet.backend/internal/infrastructure/blockchain"
	"agent-wallet.backend/internal/infrastructure/keystore"
	"agent-wallet.backend/internal/observability"
	"agent-wallet.backend/pkg/utils"
)

const (
	submitAttempts  = 3
	rebuildAttempts = 3
)

// AdapterProvider hands out a chain adapter per chain family.
type AdapterProvider interface {
	GetAdapter(chain entities.ChainType) (blockchain.ChainAdapter, error)
}

// KeyProvider decrypts wallet keys into guarded handles.
type KeyProvider interface {
	DecryptPrivateKey(walletID uuid.UUID) (*keystore.KeyHandle, error)
}

// Authorizer validates the agent's session token for a wallet.
type Authorizer interface {
	Authorize(ctx context.Context, walletID uuid.UUID, token string) error
}

// Pipeline drives a transaction through Validate, Auth, Policy, Wait,
// Execute and Confirm. Each stage either advances the persisted status or
// parks the transaction where a restart can resume it.
type Pipeline struct {
	walletRepo repositories.WalletRepository
	txRepo     repositories.TransactionRepository
	auditRepo  repositories.AuditRepository
	uow        repositories.UnitOfWork

	engine     *PolicyEngine
	queue      *DelayQueue
	adapters   AdapterProvider
	keys       KeyProvider
	authorizer Authorizer
	bus        *EventBus
	metrics    *observability.Metrics

	confirmTimeout time.Duration
	wg             sync.WaitGroup
	now            func() time.Time
}

// NewPipeline wires the pipeline. It registers itself as the queue's
// release hook so approved and delayed transactions resume execution.
func NewPipeline(
	walletRepo repositories.WalletRepository,
	txRepo repositories.TransactionRepository,
	auditRepo repositories.AuditRepository,
	uow repositories.UnitOfWork,
	engine *PolicyEngine,
	queue *DelayQueue,
	adapters AdapterProvider,
	keys KeyProvider,
	authorizer Authorizer,
	bus *EventBus,
	metrics *observability.Metrics,
	confirmTimeout time.Duration,
) *Pipeline {
	p := &Pipeline{
		walletRepo:     walletRepo,
		txRepo:         txRepo,
		auditRepo:      auditRepo,
		uow:            uow,
		engine:         engine,
		queue:          queue,
		adapters:       adapters,
		keys:           keys,
		authorizer:     authorizer,
		bus:            bus,
		metrics:        metrics,
		confirmTimeout: confirmTimeout,
		now:            time.Now,
	}
	queue.SetReleaseFunc(p.resumeAsync)
	return p
}

// Submit runs stages 1-4 synchronously and hands INSTANT/NOTIFY work to a
// background executor. The returned transaction reflects the state after
// routing: queued, held, or already failed.
func (p *Pipeline) Submit(ctx context.Context, walletID uuid.UUID, token string, input *entities.SendTransactionInput) (*entities.Transaction, error) {
	// Stage 1: Validate
	wallet, tx, err := p.validate(ctx, walletID, input)
	if err != nil {
		return nil, err
	}

	// Stage 2: Auth
	if err := p.authorize(ctx, wallet, token); err != nil {
		return nil, err
	}

	if err := p.txRepo.Create(ctx, tx); err != nil {
		return nil, err
	}
	p.metrics.TransactionsSubmitted.Inc()
	p.bus.Publish(entities.Event{Type: entities.EventTxRequested, WalletID: wallet.ID, TransactionID: tx.ID})

	// Stage 3: Policy
	decision, err := p.engine.EvaluateAndReserve(ctx, wallet, tx)
	if err != nil {
		return nil, err
	}

	if !decision.Allowed {
		p.metrics.PolicyDecisions.WithLabelValues("denied").Inc()
		if err := p.failTerminal(ctx, tx.ID, decision.Reason, false); err != nil {
			return nil, err
		}
		p.bus.Publish(entities.Event{
			Type: entities.EventPolicyViolation, WalletID: wallet.ID,
			TransactionID: tx.ID, Reason: decision.Reason,
		})
		return p.txRepo.GetByID(ctx, tx.ID)
	}

	p.metrics.PolicyDecisions.WithLabelValues(string(decision.Tier)).Inc()

	// Stage 4: Wait
	switch decision.Tier {
	case entities.TierDelay, entities.TierApproval:
		if _, err := p.queue.Hold(ctx, tx, decision); err != nil {
			return nil, err
		}
		p.metrics.HoldsCreated.WithLabelValues(string(decision.Tier)).Inc()
		return p.txRepo.GetByID(ctx, tx.ID)
	case entities.TierNotify:
		// The notification fires only for the final combined tier; a
		// transaction escalated past NOTIFY emits the hold event instead.
		p.bus.Publish(entities.Event{
			Type: entities.EventTxNotify, WalletID: wallet.ID,
			TransactionID: tx.ID, Tier: decision.Tier,
		})
	}

	if err := p.setStatus(ctx, tx.ID, entities.TxStatusQueued); err != nil {
		return nil, err
	}
	p.bus.Publish(entities.Event{Type: entities.EventTxQueued, WalletID: wallet.ID, TransactionID: tx.ID})

	p.resumeAsync(context.WithoutCancel(ctx), tx.ID)
	return p.txRepo.GetByID(ctx, tx.ID)
}

func (p *Pipeline) validate(ctx context.Context, walletID uuid.UUID, input *entities.SendTransactionInput) (*entities.Wallet, *entities.Transaction, error) {
	wallet, err := p.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return nil, nil, err
	}
	if wallet.Status == entities.WalletStatusTerminated || wallet.Status == entities.WalletStatusTerminating {
		return nil, nil, domainerrors.ErrWalletTerminated
	}
	if !wallet.CanTransact() {
		return nil, nil, domainerrors.ErrWalletNotActive
	}

	txType := entities.TransactionType(input.Type)
	switch txType {
	case entities.TxTypeTransfer, entities.TxTypeTokenTransfer, entities.TxTypeContractCall,
		entities.TxTypeApprove, entities.TxTypeBatch:
	default:
		return nil, nil, fmt.Errorf("%w: unknown transaction type %q", domainerrors.ErrInvalidInput, input.Type)
	}

	tx := &entities.Transaction{
		ID:        utils.GenerateUUIDv7(),
		WalletID:  wallet.ID,
		Type:      txType,
		Status:    entities.TxStatusPending,
		Amount:    input.Amount,
		ToAddress: input.ToAddress,
		CreatedAt: p.now(),
		UpdatedAt: p.now(),
	}
	if input.TokenAddress != "" {
		tx.TokenAddress = null.StringFrom(input.TokenAddress)
	}
	if input.SpenderAddress != "" {
		tx.SpenderAddress = null.StringFrom(input.SpenderAddress)
	}
	if input.Selector != "" {
		tx.Selector = null.StringFrom(input.Selector)
	}

	if txType == entities.TxTypeBatch {
		if err := validateBatch(tx, input.BatchItems); err != nil {
			return nil, nil, err
		}
		return wallet, tx, nil
	}

	if amount, ok := tx.AmountBig(); !ok || amount.Sign() <= 0 {
		return nil, nil, fmt.Errorf("%w: amount must be a positive integer", domainerrors.ErrInvalidInput)
	}
	if tx.ToAddress == "" {
		return nil, nil, fmt.Errorf("%w: missing recipient", domainerrors.ErrInvalidInput)
	}
	if txType == entities.TxTypeTokenTransfer && !tx.TokenAddress.Valid {
		return nil, nil, fmt.Errorf("%w: token transfer requires tokenAddress", domainerrors.ErrInvalidInput)
	}
	if txType == entities.TxTypeApprove && !tx.SpenderAddress.Valid {
		return nil, nil, fmt.Errorf("%w: approve requires spenderAddress", domainerrors.ErrInvalidInput)
	}
	if txType == entities.TxTypeContractCall && !tx.Selector.Valid {
		return nil, nil, fmt.Errorf("%w: contract call requires selector", domainerrors.ErrInvalidInput)
	}

	return wallet, tx, nil
}

// validateBatch checks every leg and stores the total as the transaction
// amount so spending limits and reservations see the full batch spend.
func validateBatch(tx *entities.Transaction, items []entities.BatchItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: batch requires at least one item", domainerrors.ErrInvalidInput)
	}
	total := new(big.Int)
	for i, item := range items {
		if item.ToAddress == "" {
			return fmt.Errorf("%w: batch item %d missing recipient", domainerrors.ErrInvalidInput, i)
		}
		amount, ok := new(big.Int).SetString(item.Amount, 10)
		if !ok || amount.Sign() <= 0 {
			return fmt.Errorf("%w: batch item %d amount must be a positive integer", domainerrors.ErrInvalidInput, i)
		}
		total.Add(total, amount)
	}
	tx.BatchItems = items
	tx.Amount = total.String()
	return nil
}

func (p *Pipeline) authorize(ctx context.Context, wallet *entities.Wallet, token string) error {
	if p.authorizer == nil {
		return nil
	}
	if err := p.authorizer.Authorize(ctx, wallet.ID, token); err != nil {
		walletID := wallet.ID
		_ = p.auditRepo.Create(ctx, &entities.AuditLog{
			ID:        utils.GenerateUUIDv7(),
			WalletID:  &walletID,
			Action:    entities.AuditAuthFailed,
			Detail:    err.Error(),
			CreatedAt: p.now(),
		})
		return fmt.Errorf("%w: %v", domainerrors.ErrUnauthorized, err)
	}
	return nil
}

// resumeAsync claims and executes a QUEUED transaction in the background.
func (p *Pipeline) resumeAsync(ctx context.Context, txID uuid.UUID) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if _, err := p.Execute(context.WithoutCancel(ctx), txID); err != nil {
			log.Printf("❌ Pipeline execution for %s: %v", txID, err)
		}
	}()
}

// Wait blocks until in-flight executions finish. Used on shutdown.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Execute is stages 5 and 6, returning the transaction as stored after the
// attempt. The atomic QUEUED→EXECUTING claim guarantees at most one active
// attempt per transaction regardless of how many workers, sweeps, or API
// calls race to resume it. Re-entering on an already-terminal transaction
// is idempotent: the stored outcome comes back without touching the chain.
func (p *Pipeline) Execute(ctx context.Context, txID uuid.UUID) (*entities.Transaction, error) {
	claimed, err := p.txRepo.Claim(ctx, txID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		tx, err := p.txRepo.GetByID(ctx, txID)
		if err != nil {
			return nil, err
		}
		if tx.Status.IsTerminal() {
			return tx, nil
		}
		return nil, domainerrors.ErrTxAlreadyClaimed
	}
	p.metrics.StatusTransitions.WithLabelValues(string(entities.TxStatusExecuting)).Inc()

	if err := p.executeClaimed(ctx, txID); err != nil {
		return nil, err
	}
	return p.txRepo.GetByID(ctx, txID)
}

func (p *Pipeline) executeClaimed(ctx context.Context, txID uuid.UUID) error {
	tx, err := p.txRepo.GetByID(ctx, txID)
	if err != nil {
		return err
	}
	wallet, err := p.walletRepo.GetByID(ctx, tx.WalletID)
	if err != nil {
		return err
	}

	adapter, err := p.adapters.GetAdapter(wallet.Chain)
	if err != nil {
		return p.failTerminal(ctx, txID, err.Error(), false)
	}

	if tx.Type == entities.TxTypeBatch {
		return p.executeBatch(ctx, adapter, wallet, tx)
	}

	txHash, err := p.buildSignSubmit(ctx, adapter, wallet, tx)
	if err != nil {
		var ce *domainerrors.ChainError
		if errors.As(err, &ce) && ce.Class != domainerrors.ChainErrorPermanent {
			// Transient exhaustion: terminal for this attempt but flagged
			// retryable so operators can re-queue.
			return p.failRetryable(ctx, txID, ce.Error())
		}
		return p.failTerminal(ctx, txID, err.Error(), false)
	}

	if err := p.txRepo.SetTxHash(ctx, txID, txHash); err != nil {
		return err
	}
	if err := p.setStatus(ctx, txID, entities.TxStatusSubmitted); err != nil {
		return err
	}
	p.bus.Publish(entities.Event{
		Type: entities.EventTxSubmitted, WalletID: wallet.ID,
		TransactionID: txID, TxHash: txHash,
	})

	return p.Confirm(ctx, txID, adapter, txHash)
}

// executeBatch runs the batch legs sequentially as native transfers. A
// failure before any leg reaches the chain fails the whole batch; once one
// leg is on-chain a later failure is PARTIAL_FAILURE, because part of the
// batch spent and part did not.
func (p *Pipeline) executeBatch(ctx context.Context, adapter blockchain.ChainAdapter, wallet *entities.Wallet, tx *entities.Transaction) error {
	var hashes []string
	for i, item := range tx.BatchItems {
		leg := &entities.Transaction{
			ID:        tx.ID,
			WalletID:  tx.WalletID,
			Type:      entities.TxTypeTransfer,
			Amount:    item.Amount,
			ToAddress: item.ToAddress,
		}
		hash, err := p.buildSignSubmit(ctx, adapter, wallet, leg)
		if err != nil {
			reason := fmt.Sprintf("batch leg %d: %v", i, err)
			if len(hashes) > 0 {
				return p.failBatchPartial(ctx, tx.ID, hashes, reason)
			}
			var ce *domainerrors.ChainError
			if errors.As(err, &ce) && ce.Class != domainerrors.ChainErrorPermanent {
				return p.failRetryable(ctx, tx.ID, reason)
			}
			return p.failTerminal(ctx, tx.ID, reason, false)
		}
		hashes = append(hashes, hash)
	}

	joined := strings.Join(hashes, ",")
	if err := p.txRepo.SetTxHash(ctx, tx.ID, joined); err != nil {
		return err
	}
	if err := p.setStatus(ctx, tx.ID, entities.TxStatusSubmitted); err != nil {
		return err
	}
	p.bus.Publish(entities.Event{
		Type: entities.EventTxSubmitted, WalletID: wallet.ID,
		TransactionID: tx.ID, TxHash: joined,
	})

	// One confirmation window covers every leg.
	confirmCtx, cancel := context.WithTimeout(ctx, p.confirmTimeout)
	defer cancel()
	for _, hash := range hashes {
		if err := adapter.WaitForConfirmation(confirmCtx, hash); err != nil {
			reason := fmt.Sprintf("batch confirmation failed for %s: %v", hash, err)
			if setErr := p.txRepo.SetError(ctx, tx.ID, entities.TxStatusPartialFailure, reason, false); setErr != nil {
				return setErr
			}
			p.metrics.StatusTransitions.WithLabelValues(string(entities.TxStatusPartialFailure)).Inc()
			p.bus.Publish(entities.Event{
				Type: entities.EventTxFailed, TransactionID: tx.ID, TxHash: hash, Reason: reason,
			})
			return nil
		}
	}

	if err := p.setStatus(ctx, tx.ID, entities.TxStatusConfirmed); err != nil {
		return err
	}
	p.bus.Publish(entities.Event{Type: entities.EventTxConfirmed, TransactionID: tx.ID, TxHash: joined})
	return nil
}

func (p *Pipeline) failBatchPartial(ctx context.Context, txID uuid.UUID, hashes []string, reason string) error {
	if err := p.txRepo.SetTxHash(ctx, txID, strings.Join(hashes, ",")); err != nil {
		return err
	}
	if err := p.txRepo.SetError(ctx, txID, entities.TxStatusPartialFailure, reason, false); err != nil {
		return err
	}
	p.metrics.StatusTransitions.WithLabelValues(string(entities.TxStatusPartialFailure)).Inc()
	p.bus.Publish(entities.Event{Type: entities.EventTxFailed, TransactionID: txID, Reason: reason})
	return nil
}

// buildSignSubmit runs build → simulate → sign → submit with the error
// taxonomy applied: transient errors retry the submit, stale-state errors
// rebuild from scratch, permanent errors abort.
func (p *Pipeline) buildSignSubmit(ctx context.Context, adapter blockchain.ChainAdapter, wallet *entities.Wallet, tx *entities.Transaction) (string, error) {
	var lastErr error
	for attempt := 0; attempt < rebuildAttempts; attempt++ {
		unsigned, err := adapter.BuildTransaction(ctx, wallet, tx)
		if err != nil {
			return "", err
		}

		if err := adapter.SimulateTransaction(ctx, wallet, unsigned); err != nil {
			if errors.Is(err, domainerrors.ErrSimulationFailed) {
				return "", domainerrors.NewChainError(domainerrors.ChainErrorPermanent, err.Error(), err)
			}
			return "", err
		}

		hash, err := p.signAndSubmit(ctx, adapter, wallet, unsigned)
		if err == nil {
			return hash, nil
		}
		lastErr = err

		ce := domainerrors.ClassifyChainError(err)
		if ce.Class == domainerrors.ChainErrorStaleState {
			// Blockhash or nonce went stale under us: rebuild with fresh
			// chain state. Resubmitting the same bytes can never succeed.
			continue
		}
		return "", err
	}
	return "", lastErr
}

func (p *Pipeline) signAndSubmit(ctx context.Context, adapter blockchain.ChainAdapter, wallet *entities.Wallet, unsigned blockchain.UnsignedTx) (string, error) {
	key, err := p.keys.DecryptPrivateKey(wallet.ID)
	if err != nil {
		return "", err
	}
	p.metrics.KeyDecryptions.Inc()

	signed, err := adapter.SignTransaction(unsigned, key)
	// The key is needed only for the signature; release before touching
	// the network.
	key.Release()
	if err != nil {
		return "", err
	}

	var hash string
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(submitAttempts),
		retry.RetryIf(func(err error) bool {
			ce := domainerrors.ClassifyChainError(err)
			if ce.Class == domainerrors.ChainErrorTransient {
				p.metrics.ExecuteRetries.Inc()
				return true
			}
			return false
		}),
	)
	err = r.Do(func() error {
		var submitErr error
		hash, submitErr = adapter.SubmitTransaction(ctx, signed)
		return submitErr
	})
	if err != nil {
		return "", err
	}
	return hash, nil
}

// Confirm is stage 6. A confirmation timeout is ambiguous: the transaction
// may still land, so the outcome is PARTIAL_FAILURE, never FAILED.
func (p *Pipeline) Confirm(ctx context.Context, txID uuid.UUID, adapter blockchain.ChainAdapter, txHash string) error {
	confirmCtx, cancel := context.WithTimeout(ctx, p.confirmTimeout)
	defer cancel()

	err := adapter.WaitForConfirmation(confirmCtx, txHash)
	if err == nil {
		if err := p.setStatus(ctx, txID, entities.TxStatusConfirmed); err != nil {
			return err
		}
		p.bus.Publish(entities.Event{Type: entities.EventTxConfirmed, TransactionID: txID, TxHash: txHash})
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if setErr := p.txRepo.SetError(ctx, txID, entities.TxStatusPartialFailure,
			"confirmation timed out; on-chain outcome unknown", false); setErr != nil {
			return setErr
		}
		p.metrics.StatusTransitions.WithLabelValues(string(entities.TxStatusPartialFailure)).Inc()
		p.bus.Publish(entities.Event{
			Type: entities.EventTxFailed, TransactionID: txID, TxHash: txHash,
			Reason: "confirmation timed out",
		})
		return nil
	}

	// The chain reported a definite failure.
	return p.failTerminal(ctx, txID, err.Error(), false)
}

// RecoverInFlight is the startup crash-recovery sweep. EXECUTING rows with
// a hash might have hit the chain, so they become PARTIAL_FAILURE for
// reconciliation; rows without a hash never left the box and re-queue.
// SUBMITTED rows resume confirmation.
func (p *Pipeline) RecoverInFlight(ctx context.Context) error {
	executing, err := p.txRepo.ListByStatus(ctx, entities.TxStatusExecuting)
	if err != nil {
		return err
	}
	for _, tx := range executing {
		if tx.TxHash.Valid {
			if err := p.txRepo.SetError(ctx, tx.ID, entities.TxStatusPartialFailure,
				"daemon restarted mid-execution; on-chain outcome unknown", false); err != nil {
				return err
			}
			continue
		}
		if err := p.setStatus(ctx, tx.ID, entities.TxStatusQueued); err != nil {
			return err
		}
		p.resumeAsync(ctx, tx.ID)
	}

	submitted, err := p.txRepo.ListByStatus(ctx, entities.TxStatusSubmitted)
	if err != nil {
		return err
	}
	for _, tx := range submitted {
		if !tx.TxHash.Valid {
			continue
		}
		wallet, err := p.walletRepo.GetByID(ctx, tx.WalletID)
		if err != nil {
			return err
		}
		adapter, err := p.adapters.GetAdapter(wallet.Chain)
		if err != nil {
			continue
		}
		txID, hash := tx.ID, tx.TxHash.String
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := p.Confirm(context.WithoutCancel(ctx), txID, adapter, hash); err != nil {
				log.Printf("❌ Recovery confirmation for %s: %v", txID, err)
			}
		}()
	}

	return nil
}

func (p *Pipeline) setStatus(ctx context.Context, txID uuid.UUID, status entities.TransactionStatus) error {
	if err := p.txRepo.UpdateStatus(ctx, txID, status); err != nil {
		return err
	}
	p.metrics.StatusTransitions.WithLabelValues(string(status)).Inc()
	return nil
}

// failTerminal marks FAILED and releases the reservation atomically.
// Idempotent: an already-terminal row is left alone.
func (p *Pipeline) failTerminal(ctx context.Context, txID uuid.UUID, reason string, retryable bool) error {
	return p.uow.Do(ctx, func(txCtx context.Context) error {
		tx, err := p.txRepo.GetByID(txCtx, txID)
		if err != nil {
			return err
		}
		if tx.Status.IsTerminal() {
			return nil
		}
		if err := p.txRepo.SetError(txCtx, txID, entities.TxStatusFailed, reason, retryable); err != nil {
			return err
		}
		if err := p.txRepo.ReleaseReservation(txCtx, txID); err != nil {
			return err
		}
		p.metrics.StatusTransitions.WithLabelValues(string(entities.TxStatusFailed)).Inc()
		p.bus.Publish(entities.Event{Type: entities.EventTxFailed, TransactionID: txID, Reason: reason})
		return nil
	})
}

func (p *Pipeline) failRetryable(ctx context.Context, txID uuid.UUID, reason string) error {
	return p.failTerminal(ctx, txID, reason, true)
}
