package usecases

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"agent-wallet.backend/internal/domain/entities"
	domainerrors "agent-wallet.backend/internal/domain/errors"
	"agent-wallet.backend/internal/domain/repositories"
	"agent-wallet.backend/pkg/utils"
)

const defaultApprovalTimeout = 3600 * time.Second

// ReleaseFunc is invoked when a held transaction becomes runnable again.
type ReleaseFunc func(ctx context.Context, txID uuid.UUID)

// DelayQueue holds DELAY and APPROVAL tier transactions. For DELAY rows
// ReleaseAt is when the hold lifts; for APPROVAL rows it is the decision
// deadline.
type DelayQueue struct {
	approvalRepo repositories.ApprovalRepository
	txRepo       repositories.TransactionRepository
	auditRepo    repositories.AuditRepository
	uow          repositories.UnitOfWork
	bus          *EventBus

	defaultDelay    time.Duration
	defaultApproval time.Duration
	onRelease       ReleaseFunc
	now             func() time.Time
}

// NewDelayQueue creates the queue. defaultDelay and defaultApproval are the
// config-level fallbacks used when a policy rule carries no explicit value.
func NewDelayQueue(
	approvalRepo repositories.ApprovalRepository,
	txRepo repositories.TransactionRepository,
	auditRepo repositories.AuditRepository,
	uow repositories.UnitOfWork,
	bus *EventBus,
	defaultDelay, defaultApproval time.Duration,
) *DelayQueue {
	if defaultApproval <= 0 {
		defaultApproval = defaultApprovalTimeout
	}
	return &DelayQueue{
		approvalRepo:    approvalRepo,
		txRepo:          txRepo,
		auditRepo:       auditRepo,
		uow:             uow,
		bus:             bus,
		defaultDelay:    defaultDelay,
		defaultApproval: defaultApproval,
		now:             time.Now,
	}
}

// SetReleaseFunc registers the hook that resumes a released transaction.
func (q *DelayQueue) SetReleaseFunc(fn ReleaseFunc) {
	q.onRelease = fn
}

// Hold parks a transaction per its policy decision. The transaction sits
// in QUEUED until released, decided, or expired.
func (q *DelayQueue) Hold(ctx context.Context, tx *entities.Transaction, decision *entities.PolicyDecision) (*entities.PendingApproval, error) {
	var releaseAt time.Time
	switch decision.Tier {
	case entities.TierDelay:
		delay := time.Duration(decision.DelaySeconds) * time.Second
		if delay <= 0 {
			delay = q.defaultDelay
		}
		releaseAt = q.now().Add(delay)
	case entities.TierApproval:
		// Timeout resolution: policy rule, then config, then the baked-in
		// hour.
		timeout := time.Duration(decision.ApprovalTimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = q.defaultApproval
		}
		releaseAt = q.now().Add(timeout)
	default:
		return nil, fmt.Errorf("%w: tier %s is not held", domainerrors.ErrInvalidInput, decision.Tier)
	}

	approval := &entities.PendingApproval{
		ID:            utils.GenerateUUIDv7(),
		TransactionID: tx.ID,
		WalletID:      tx.WalletID,
		Tier:          decision.Tier,
		Status:        entities.ApprovalStatusPending,
		Reason:        decision.Reason,
		ReleaseAt:     releaseAt,
		CreatedAt:     q.now(),
	}
	if err := q.approvalRepo.Create(ctx, approval); err != nil {
		return nil, err
	}
	if err := q.txRepo.UpdateStatus(ctx, tx.ID, entities.TxStatusQueued); err != nil {
		return nil, err
	}

	q.bus.Publish(entities.Event{
		Type:          entities.EventApprovalPending,
		WalletID:      tx.WalletID,
		TransactionID: tx.ID,
		Tier:          decision.Tier,
		Reason:        decision.Reason,
	})
	return approval, nil
}

// Resolve applies an owner's decision. Resolution is idempotent: whichever
// of a decision, a duplicate decision, or the expiry sweep reaches the row
// first wins, and everyone else gets ErrApprovalResolved.
func (q *DelayQueue) Resolve(ctx context.Context, approvalID uuid.UUID, input *entities.ResolveApprovalInput) (*entities.PendingApproval, error) {
	approval, err := q.approvalRepo.GetByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}

	status := entities.ApprovalStatusRejected
	if input.Approve {
		status = entities.ApprovalStatusApproved
	}
	var approvedBy *string
	if input.ApprovedBy != "" {
		approvedBy = &input.ApprovedBy
	}

	won, err := q.approvalRepo.Resolve(ctx, approvalID, status, approvedBy, q.now())
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, domainerrors.ErrApprovalResolved
	}

	q.audit(ctx, approval, fmt.Sprintf("approval %s: %s", approvalID, status))

	if input.Approve {
		if err := q.releaseTransaction(ctx, approval.TransactionID); err != nil {
			return nil, err
		}
	} else {
		if err := q.cancelTransaction(ctx, approval.TransactionID, "rejected by owner"); err != nil {
			return nil, err
		}
	}

	return q.approvalRepo.GetByID(ctx, approvalID)
}

// Sweep processes due rows: DELAY holds are released, APPROVAL holds past
// their deadline expire. Safe to run concurrently; the conditional update
// in Resolve guarantees each row is processed once.
func (q *DelayQueue) Sweep(ctx context.Context) (released, expired int, err error) {
	due, err := q.approvalRepo.ListDue(ctx, q.now())
	if err != nil {
		return 0, 0, err
	}

	for _, approval := range due {
		switch approval.Tier {
		case entities.TierDelay:
			won, err := q.approvalRepo.Resolve(ctx, approval.ID, entities.ApprovalStatusApproved, nil, q.now())
			if err != nil {
				log.Printf("❌ Error releasing delayed transaction %s: %v", approval.TransactionID, err)
				continue
			}
			if !won {
				continue
			}
			if err := q.releaseTransaction(ctx, approval.TransactionID); err != nil {
				log.Printf("❌ Error resuming transaction %s: %v", approval.TransactionID, err)
				continue
			}
			released++
		case entities.TierApproval:
			won, err := q.approvalRepo.Resolve(ctx, approval.ID, entities.ApprovalStatusExpired, nil, q.now())
			if err != nil {
				log.Printf("❌ Error expiring approval %s: %v", approval.ID, err)
				continue
			}
			if !won {
				continue
			}
			if err := q.expireTransaction(ctx, approval.TransactionID); err != nil {
				log.Printf("❌ Error expiring transaction %s: %v", approval.TransactionID, err)
				continue
			}
			expired++
		}
	}
	return released, expired, nil
}

func (q *DelayQueue) releaseTransaction(ctx context.Context, txID uuid.UUID) error {
	if err := q.txRepo.UpdateStatus(ctx, txID, entities.TxStatusQueued); err != nil {
		return err
	}
	q.bus.Publish(entities.Event{Type: entities.EventTxQueued, TransactionID: txID})
	if q.onRelease != nil {
		q.onRelease(ctx, txID)
	}
	return nil
}

func (q *DelayQueue) cancelTransaction(ctx context.Context, txID uuid.UUID, reason string) error {
	return q.uow.Do(ctx, func(txCtx context.Context) error {
		tx, err := q.txRepo.GetByID(txCtx, txID)
		if err != nil {
			return err
		}
		if tx.Status.IsTerminal() {
			return nil
		}
		if err := q.txRepo.SetError(txCtx, txID, entities.TxStatusCancelled, reason, false); err != nil {
			return err
		}
		if err := q.txRepo.ReleaseReservation(txCtx, txID); err != nil {
			return err
		}
		q.bus.Publish(entities.Event{Type: entities.EventTxCancelled, TransactionID: txID, Reason: reason})
		return nil
	})
}

func (q *DelayQueue) expireTransaction(ctx context.Context, txID uuid.UUID) error {
	return q.uow.Do(ctx, func(txCtx context.Context) error {
		tx, err := q.txRepo.GetByID(txCtx, txID)
		if err != nil {
			return err
		}
		if tx.Status.IsTerminal() {
			return nil
		}
		if err := q.txRepo.SetError(txCtx, txID, entities.TxStatusExpired, "approval window expired", false); err != nil {
			return err
		}
		if err := q.txRepo.ReleaseReservation(txCtx, txID); err != nil {
			return err
		}
		q.bus.Publish(entities.Event{Type: entities.EventTxFailed, TransactionID: txID, Reason: "approval window expired"})
		return nil
	})
}

func (q *DelayQueue) audit(ctx context.Context, approval *entities.PendingApproval, detail string) {
	walletID := approval.WalletID
	txID := approval.TransactionID
	_ = q.auditRepo.Create(ctx, &entities.AuditLog{
		ID:            utils.GenerateUUIDv7(),
		WalletID:      &walletID,
		TransactionID: &txID,
		Action:        entities.AuditApprovalSet,
		Detail:        detail,
		CreatedAt:     q.now(),
	})
}
