package usecases

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"agent-wallet.backend/internal/domain/entities"
	domainerrors "agent-wallet.backend/internal/domain/errors"
	"agent-wallet.backend/internal/infrastructure/blockchain"
	"agent-wallet.backend/internal/infrastructure/keystore"
	"agent-wallet.backend/internal/infrastructure/oracle"
)

// In-memory repository fakes. The pipeline drives many stateful transitions
// per test, so stateful fakes beat per-call expectations here.

type memWalletRepo struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*entities.Wallet
}

func newMemWalletRepo(wallets ...*entities.Wallet) *memWalletRepo {
	r := &memWalletRepo{wallets: make(map[uuid.UUID]*entities.Wallet)}
	for _, w := range wallets {
		r.wallets[w.ID] = w
	}
	return r
}

func (r *memWalletRepo) Create(_ context.Context, wallet *entities.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets[wallet.ID] = wallet
	return nil
}

func (r *memWalletRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (r *memWalletRepo) List(_ context.Context, limit, offset int) ([]*entities.Wallet, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Wallet
	for _, w := range r.wallets {
		cp := *w
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (r *memWalletRepo) UpdateStatus(_ context.Context, id uuid.UUID, status entities.WalletStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[id]
	if !ok {
		return domainerrors.ErrNotFound
	}
	w.Status = status
	return nil
}

func (r *memWalletRepo) SetOwner(_ context.Context, id uuid.UUID, ownerAddress string, verified bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[id]
	if !ok {
		return domainerrors.ErrNotFound
	}
	w.OwnerAddress = &ownerAddress
	w.OwnerVerified = verified
	return nil
}

type memTxRepo struct {
	mu  sync.Mutex
	txs map[uuid.UUID]*entities.Transaction
}

func newMemTxRepo() *memTxRepo {
	return &memTxRepo{txs: make(map[uuid.UUID]*entities.Transaction)}
}

func (r *memTxRepo) get(id uuid.UUID) (*entities.Transaction, error) {
	tx, ok := r.txs[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	return tx, nil
}

func (r *memTxRepo) Create(_ context.Context, tx *entities.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *tx
	r.txs[tx.ID] = &cp
	return nil
}

func (r *memTxRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, err := r.get(id)
	if err != nil {
		return nil, err
	}
	cp := *tx
	return &cp, nil
}

func (r *memTxRepo) GetByWalletID(_ context.Context, walletID uuid.UUID, limit, offset int) ([]*entities.Transaction, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Transaction
	for _, tx := range r.txs {
		if tx.WalletID == walletID {
			cp := *tx
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, len(out), nil
}

func (r *memTxRepo) UpdateStatus(_ context.Context, id uuid.UUID, status entities.TransactionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, err := r.get(id)
	if err != nil {
		return err
	}
	tx.Status = status
	return nil
}

func (r *memTxRepo) UpdateTier(_ context.Context, id uuid.UUID, tier entities.PolicyTier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, err := r.get(id)
	if err != nil {
		return err
	}
	tx.Tier = tier
	return nil
}

func (r *memTxRepo) SetTxHash(_ context.Context, id uuid.UUID, txHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, err := r.get(id)
	if err != nil {
		return err
	}
	tx.TxHash.SetValid(txHash)
	return nil
}

func (r *memTxRepo) SetError(_ context.Context, id uuid.UUID, status entities.TransactionStatus, message string, retryable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, err := r.get(id)
	if err != nil {
		return err
	}
	tx.Status = status
	tx.ErrorMessage.SetValid(message)
	tx.Retryable = retryable
	return nil
}

func (r *memTxRepo) Claim(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, err := r.get(id)
	if err != nil {
		return false, err
	}
	if tx.Status != entities.TxStatusQueued {
		return false, nil
	}
	tx.Status = entities.TxStatusExecuting
	return true, nil
}

func (r *memTxRepo) Reserve(_ context.Context, id uuid.UUID, amount string, amountUSD *float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, err := r.get(id)
	if err != nil {
		return err
	}
	tx.ReservedAmount.SetValid(amount)
	tx.AmountUSD = amountUSD
	return nil
}

func (r *memTxRepo) ReleaseReservation(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, err := r.get(id)
	if err != nil {
		return err
	}
	tx.ReservedAmount = null.String{}
	tx.AmountUSD = nil
	return nil
}

func (r *memTxRepo) SumReserved(_ context.Context, walletID uuid.UUID, exclude uuid.UUID) (string, float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := new(big.Int)
	var usd float64
	for _, tx := range r.txs {
		if tx.WalletID != walletID || tx.ID == exclude || tx.Status.IsTerminal() || !tx.ReservedAmount.Valid {
			continue
		}
		if v, ok := new(big.Int).SetString(tx.ReservedAmount.String, 10); ok {
			sum.Add(sum, v)
		}
		if tx.AmountUSD != nil {
			usd += *tx.AmountUSD
		}
	}
	return sum.String(), usd, nil
}

func (r *memTxRepo) CountSince(_ context.Context, walletID uuid.UUID, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, tx := range r.txs {
		if tx.WalletID != walletID || tx.CreatedAt.Before(cutoff) {
			continue
		}
		switch tx.Status {
		case entities.TxStatusFailed, entities.TxStatusCancelled, entities.TxStatusExpired:
			continue
		}
		count++
	}
	return count, nil
}

func (r *memTxRepo) ListByStatus(_ context.Context, status entities.TransactionStatus) ([]*entities.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Transaction
	for _, tx := range r.txs {
		if tx.Status == status {
			cp := *tx
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memPolicyRepo struct {
	mu       sync.Mutex
	policies []*entities.Policy
}

func (r *memPolicyRepo) Create(_ context.Context, policy *entities.Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies = append(r.policies, policy)
	return nil
}

func (r *memPolicyRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.Policy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.policies {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, domainerrors.ErrNotFound
}

func (r *memPolicyRepo) GetEnabledByWalletID(_ context.Context, walletID uuid.UUID) ([]*entities.Policy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Policy
	for _, p := range r.policies {
		if p.Enabled && (p.WalletID == nil || *p.WalletID == walletID) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (r *memPolicyRepo) Update(_ context.Context, policy *entities.Policy) error {
	return nil
}

func (r *memPolicyRepo) SetEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.policies {
		if p.ID == id {
			p.Enabled = enabled
			return nil
		}
	}
	return domainerrors.ErrNotFound
}

func (r *memPolicyRepo) Delete(_ context.Context, id uuid.UUID) error {
	return nil
}

type memApprovalRepo struct {
	mu        sync.Mutex
	approvals map[uuid.UUID]*entities.PendingApproval
}

func newMemApprovalRepo() *memApprovalRepo {
	return &memApprovalRepo{approvals: make(map[uuid.UUID]*entities.PendingApproval)}
}

func (r *memApprovalRepo) Create(_ context.Context, approval *entities.PendingApproval) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *approval
	r.approvals[approval.ID] = &cp
	return nil
}

func (r *memApprovalRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.PendingApproval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.approvals[id]
	if !ok {
		return nil, domainerrors.ErrApprovalNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memApprovalRepo) GetByTransactionID(_ context.Context, txID uuid.UUID) (*entities.PendingApproval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.approvals {
		if a.TransactionID == txID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domainerrors.ErrApprovalNotFound
}

func (r *memApprovalRepo) ListPending(_ context.Context, walletID uuid.UUID) ([]*entities.PendingApproval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.PendingApproval
	for _, a := range r.approvals {
		if a.WalletID == walletID && a.Status == entities.ApprovalStatusPending {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memApprovalRepo) Resolve(_ context.Context, id uuid.UUID, status entities.ApprovalStatus, approvedBy *string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.approvals[id]
	if !ok {
		return false, domainerrors.ErrApprovalNotFound
	}
	if a.Status != entities.ApprovalStatusPending {
		return false, nil
	}
	a.Status = status
	switch status {
	case entities.ApprovalStatusApproved:
		a.ApprovedBy = approvedBy
		a.ApprovedAt = &at
	case entities.ApprovalStatusRejected:
		a.RejectedAt = &at
	}
	return true, nil
}

func (r *memApprovalRepo) ListDue(_ context.Context, now time.Time) ([]*entities.PendingApproval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.PendingApproval
	for _, a := range r.approvals {
		if a.Status == entities.ApprovalStatusPending && !a.ReleaseAt.After(now) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memAuditRepo struct {
	mu      sync.Mutex
	entries []*entities.AuditLog
}

func (r *memAuditRepo) Create(_ context.Context, entry *entities.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memAuditRepo) GetByWalletID(_ context.Context, walletID uuid.UUID, limit, offset int) ([]*entities.AuditLog, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.AuditLog
	for _, e := range r.entries {
		if e.WalletID != nil && *e.WalletID == walletID {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

func (r *memAuditRepo) actions() []entities.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entities.AuditAction
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

// passthroughUOW runs the function directly; repository fakes need no
// transaction scope.
type passthroughUOW struct{}

func (passthroughUOW) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type stubOracle struct {
	result oracle.Result
}

func (s stubOracle) GetPrice(_ context.Context, _ string) oracle.Result {
	return s.result
}

// fakeAdapter lets each test script the chain's behavior per stage.
type fakeAdapter struct {
	chain    entities.ChainType
	buildFn  func(ctx context.Context, wallet *entities.Wallet, tx *entities.Transaction) (blockchain.UnsignedTx, error)
	simFn    func(ctx context.Context, wallet *entities.Wallet, unsigned blockchain.UnsignedTx) error
	signFn   func(unsigned blockchain.UnsignedTx) (*blockchain.SignedTx, error)
	submitFn func(ctx context.Context, signed *blockchain.SignedTx) (string, error)
	waitFn   func(ctx context.Context, txHash string) error
}

type fakeUnsigned struct {
	chain entities.ChainType
}

func (u fakeUnsigned) ChainType() entities.ChainType { return u.chain }

func (a *fakeAdapter) Chain() entities.ChainType { return a.chain }

func (a *fakeAdapter) BuildTransaction(ctx context.Context, wallet *entities.Wallet, tx *entities.Transaction) (blockchain.UnsignedTx, error) {
	if a.buildFn != nil {
		return a.buildFn(ctx, wallet, tx)
	}
	return fakeUnsigned{chain: a.chain}, nil
}

func (a *fakeAdapter) SimulateTransaction(ctx context.Context, wallet *entities.Wallet, unsigned blockchain.UnsignedTx) error {
	if a.simFn != nil {
		return a.simFn(ctx, wallet, unsigned)
	}
	return nil
}

func (a *fakeAdapter) SignTransaction(unsigned blockchain.UnsignedTx, key *keystore.KeyHandle) (*blockchain.SignedTx, error) {
	if a.signFn != nil {
		return a.signFn(unsigned)
	}
	return &blockchain.SignedTx{Chain: a.chain, Raw: []byte{1}, Hash: "0xfake"}, nil
}

func (a *fakeAdapter) SubmitTransaction(ctx context.Context, signed *blockchain.SignedTx) (string, error) {
	if a.submitFn != nil {
		return a.submitFn(ctx, signed)
	}
	return signed.Hash, nil
}

func (a *fakeAdapter) WaitForConfirmation(ctx context.Context, txHash string) error {
	if a.waitFn != nil {
		return a.waitFn(ctx, txHash)
	}
	return nil
}

type fakeAdapterProvider struct {
	adapter blockchain.ChainAdapter
}

func (p fakeAdapterProvider) GetAdapter(_ entities.ChainType) (blockchain.ChainAdapter, error) {
	return p.adapter, nil
}
