package usecases

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"agent-wallet.backend/internal/domain/entities"
	domainerrors "agent-wallet.backend/internal/domain/errors"
	"agent-wallet.backend/internal/domain/repositories"
	"agent-wallet.backend/internal/infrastructure/oracle"
	"agent-wallet.backend/pkg/utils"
)

// PriceOracle is the slice of the oracle chain the policy engine needs.
type PriceOracle interface {
	GetPrice(ctx context.Context, asset string) oracle.Result
}

// nativeAsset maps a chain to its gas token and decimals.
var nativeAsset = map[entities.ChainType]struct {
	symbol   string
	decimals int
}{
	entities.ChainSolana:   {"SOL", 9},
	entities.ChainEthereum: {"ETH", 18},
}

// ruleOutcome is one policy's verdict on a transaction.
type ruleOutcome struct {
	deny                   bool
	reason                 string
	tier                   entities.PolicyTier
	delaySeconds           int
	approvalTimeoutSeconds int
}

// PolicyEngine evaluates a wallet's policies against a transaction and
// reserves the spend. Combination is strictest-wins: any deny rejects, the
// final tier is the maximum severity any rule produced.
type PolicyEngine struct {
	policyRepo  repositories.PolicyRepository
	txRepo      repositories.TransactionRepository
	auditRepo   repositories.AuditRepository
	uow         repositories.UnitOfWork
	priceOracle PriceOracle

	now func() time.Time
}

// NewPolicyEngine creates a policy engine.
func NewPolicyEngine(
	policyRepo repositories.PolicyRepository,
	txRepo repositories.TransactionRepository,
	auditRepo repositories.AuditRepository,
	uow repositories.UnitOfWork,
	priceOracle PriceOracle,
) *PolicyEngine {
	return &PolicyEngine{
		policyRepo:  policyRepo,
		txRepo:      txRepo,
		auditRepo:   auditRepo,
		uow:         uow,
		priceOracle: priceOracle,
		now:         time.Now,
	}
}

// EvaluateAndReserve runs every enabled policy and, when allowed, records
// the spend reservation in the same database transaction. This closes the
// window where two concurrent transactions could each pass a spending limit
// that only one of them fits under.
func (e *PolicyEngine) EvaluateAndReserve(ctx context.Context, wallet *entities.Wallet, tx *entities.Transaction) (*entities.PolicyDecision, error) {
	var decision *entities.PolicyDecision
	err := e.uow.Do(ctx, func(txCtx context.Context) error {
		d, err := e.evaluate(txCtx, wallet, tx)
		if err != nil {
			return err
		}
		decision = d

		if !d.Allowed {
			return nil
		}

		if err := e.txRepo.Reserve(txCtx, tx.ID, tx.Amount, d.AmountUSD); err != nil {
			return err
		}
		return e.txRepo.UpdateTier(txCtx, tx.ID, d.Tier)
	})
	if err != nil {
		return nil, err
	}

	if !decision.Allowed {
		e.recordDenial(ctx, wallet, tx, decision)
	}
	return decision, nil
}

func (e *PolicyEngine) evaluate(ctx context.Context, wallet *entities.Wallet, tx *entities.Transaction) (*entities.PolicyDecision, error) {
	policies, err := e.policyRepo.GetEnabledByWalletID(ctx, wallet.ID)
	if err != nil {
		return nil, err
	}

	amount, ok := tx.AmountBig()
	if !ok || amount.Sign() < 0 {
		return &entities.PolicyDecision{
			Allowed: false,
			Reason:  fmt.Sprintf("invalid amount %q", tx.Amount),
		}, nil
	}

	amountUSD := e.amountUSD(ctx, wallet, tx, amount)

	decision := &entities.PolicyDecision{
		Allowed:   true,
		Tier:      entities.TierInstant,
		AmountUSD: amountUSD,
	}

	// A wallet-scoped policy overrides global defaults of the same type.
	scoped := map[entities.PolicyType]bool{}
	for _, policy := range policies {
		if policy.WalletID != nil {
			scoped[policy.Type] = true
		}
	}

	for _, policy := range policies {
		if policy.WalletID == nil && scoped[policy.Type] {
			continue
		}
		outcome, err := e.applyPolicy(ctx, policy, wallet, tx, amount, amountUSD)
		if err != nil {
			return nil, err
		}
		if outcome == nil {
			continue
		}

		if outcome.deny {
			id := policy.ID
			return &entities.PolicyDecision{
				Allowed:      false,
				Reason:       outcome.reason,
				DenyPolicyID: &id,
				AmountUSD:    amountUSD,
			}, nil
		}

		decision.Tier = entities.MaxTier(decision.Tier, outcome.tier)
		if outcome.tier == entities.TierDelay && outcome.delaySeconds > decision.DelaySeconds {
			decision.DelaySeconds = outcome.delaySeconds
		}
		if outcome.tier == entities.TierApproval && outcome.approvalTimeoutSeconds > decision.ApprovalTimeoutSeconds {
			decision.ApprovalTimeoutSeconds = outcome.approvalTimeoutSeconds
		}
	}

	return decision, nil
}

func (e *PolicyEngine) applyPolicy(ctx context.Context, policy *entities.Policy, wallet *entities.Wallet, tx *entities.Transaction, amount *big.Int, amountUSD *float64) (*ruleOutcome, error) {
	switch policy.Type {
	case entities.PolicySpendingLimit:
		return e.applySpendingLimit(ctx, policy, wallet, tx, amount, amountUSD)
	case entities.PolicyWhitelist:
		if tx.Type == entities.TxTypeBatch {
			return applyBatchAddressList(policy, tx), nil
		}
		return applyAddressList(policy.Rules.Addresses, tx.ToAddress, policy.Rules.UnlistedTier,
			fmt.Sprintf("recipient %s is not whitelisted", tx.ToAddress)), nil
	case entities.PolicyTimeRestriction:
		return e.applyTimeRestriction(policy), nil
	case entities.PolicyRateLimit:
		return e.applyRateLimit(ctx, policy, wallet, tx)
	case entities.PolicyAllowedTokens:
		return applyAllowedTokens(policy, tx), nil
	case entities.PolicyContractWhitelist:
		if tx.Type != entities.TxTypeContractCall {
			return nil, nil
		}
		return applyAddressList(policy.Rules.Addresses, tx.ToAddress, policy.Rules.UnlistedTier,
			fmt.Sprintf("contract %s is not whitelisted", tx.ToAddress)), nil
	case entities.PolicyMethodWhitelist:
		return applyMethodWhitelist(policy, tx), nil
	case entities.PolicyApprovedSpenders:
		if tx.Type != entities.TxTypeApprove {
			return nil, nil
		}
		spender := tx.SpenderAddress.String
		return applyAddressList(policy.Rules.Addresses, spender, policy.Rules.UnlistedTier,
			fmt.Sprintf("spender %s is not approved", spender)), nil
	case entities.PolicyApproveAmountLim:
		if tx.Type != entities.TxTypeApprove {
			return nil, nil
		}
		return e.applySpendingLimit(ctx, policy, wallet, tx, amount, amountUSD)
	case entities.PolicyApproveTierOvr:
		if tx.Type != entities.TxTypeApprove {
			return nil, nil
		}
		if policy.Rules.MinTier == "" {
			return nil, nil
		}
		return &ruleOutcome{tier: policy.Rules.MinTier}, nil
	case entities.PolicyAllowedNetworks:
		for _, n := range policy.Rules.Networks {
			if n == wallet.Network {
				return &ruleOutcome{tier: entities.TierInstant}, nil
			}
		}
		return &ruleOutcome{deny: true, reason: fmt.Sprintf("network %s is not allowed", wallet.Network)}, nil
	default:
		// Unknown policy kinds fail closed: a typo or a rule written by a
		// newer version must never silently allow.
		return &ruleOutcome{deny: true, reason: fmt.Sprintf("unknown policy type %s", policy.Type)}, nil
	}
}

// applySpendingLimit classifies the effective spend (this transaction plus
// everything already reserved) against the tier thresholds. Boundaries are
// inclusive: an amount equal to instantMax is still INSTANT.
func (e *PolicyEngine) applySpendingLimit(ctx context.Context, policy *entities.Policy, wallet *entities.Wallet, tx *entities.Transaction, amount *big.Int, amountUSD *float64) (*ruleOutcome, error) {
	reservedStr, reservedUSD, err := e.txRepo.SumReserved(ctx, wallet.ID, tx.ID)
	if err != nil {
		return nil, err
	}
	reserved, ok := new(big.Int).SetString(reservedStr, 10)
	if !ok {
		reserved = new(big.Int)
	}
	effective := new(big.Int).Add(amount, reserved)

	rules := policy.Rules
	usesUSD := rules.InstantMaxUSD != nil || rules.NotifyMaxUSD != nil || rules.DelayMaxUSD != nil

	if usesUSD {
		if amountUSD == nil {
			if !rules.AllowNativeFallback {
				return &ruleOutcome{deny: true, reason: "price unavailable for USD spending limit"}, nil
			}
			// Fall through to native thresholds.
		} else {
			effectiveUSD := *amountUSD + reservedUSD
			return classifyUSD(effectiveUSD, rules), nil
		}
	}

	return classifyNative(effective, rules)
}

func classifyUSD(effectiveUSD float64, rules entities.PolicyRules) *ruleOutcome {
	out := &ruleOutcome{tier: entities.TierApproval, approvalTimeoutSeconds: rules.ApprovalTimeoutSeconds}
	if rules.DelayMaxUSD != nil && effectiveUSD <= *rules.DelayMaxUSD {
		out = &ruleOutcome{tier: entities.TierDelay, delaySeconds: rules.DelaySeconds}
	}
	if rules.NotifyMaxUSD != nil && effectiveUSD <= *rules.NotifyMaxUSD {
		out = &ruleOutcome{tier: entities.TierNotify}
	}
	if rules.InstantMaxUSD != nil && effectiveUSD <= *rules.InstantMaxUSD {
		out = &ruleOutcome{tier: entities.TierInstant}
	}
	return out
}

func classifyNative(effective *big.Int, rules entities.PolicyRules) (*ruleOutcome, error) {
	within := func(threshold string) (bool, error) {
		if threshold == "" {
			return false, nil
		}
		max, ok := new(big.Int).SetString(threshold, 10)
		if !ok {
			return false, fmt.Errorf("%w: bad spending limit threshold %q", domainerrors.ErrInvalidInput, threshold)
		}
		return effective.Cmp(max) <= 0, nil
	}

	if ok, err := within(rules.InstantMax); err != nil {
		return nil, err
	} else if ok {
		return &ruleOutcome{tier: entities.TierInstant}, nil
	}
	if ok, err := within(rules.NotifyMax); err != nil {
		return nil, err
	} else if ok {
		return &ruleOutcome{tier: entities.TierNotify}, nil
	}
	if ok, err := within(rules.DelayMax); err != nil {
		return nil, err
	} else if ok {
		return &ruleOutcome{tier: entities.TierDelay, delaySeconds: rules.DelaySeconds}, nil
	}
	return &ruleOutcome{tier: entities.TierApproval, approvalTimeoutSeconds: rules.ApprovalTimeoutSeconds}, nil
}

// applyTimeRestriction checks the UTC window [startHour, endHour) and the
// weekday list. Windows may wrap midnight.
func (e *PolicyEngine) applyTimeRestriction(policy *entities.Policy) *ruleOutcome {
	rules := policy.Rules
	now := e.now().UTC()

	inside := true
	if len(rules.Weekdays) > 0 {
		inside = false
		for _, d := range rules.Weekdays {
			if d == int(now.Weekday()) {
				inside = true
				break
			}
		}
	}

	if inside && rules.StartHour != nil && rules.EndHour != nil {
		h := now.Hour()
		start, end := *rules.StartHour, *rules.EndHour
		if start <= end {
			inside = h >= start && h < end
		} else {
			inside = h >= start || h < end
		}
	}

	if inside {
		return &ruleOutcome{tier: entities.TierInstant}
	}
	if rules.OutsideTier != "" {
		return &ruleOutcome{tier: rules.OutsideTier, delaySeconds: rules.DelaySeconds, approvalTimeoutSeconds: rules.ApprovalTimeoutSeconds}
	}
	return &ruleOutcome{deny: true, reason: "transaction outside allowed time window"}
}

func (e *PolicyEngine) applyRateLimit(ctx context.Context, policy *entities.Policy, wallet *entities.Wallet, tx *entities.Transaction) (*ruleOutcome, error) {
	rules := policy.Rules
	if rules.MaxCount <= 0 || rules.WindowSeconds <= 0 {
		return &ruleOutcome{deny: true, reason: "misconfigured rate limit"}, nil
	}

	cutoff := e.now().Add(-time.Duration(rules.WindowSeconds) * time.Second)
	count, err := e.txRepo.CountSince(ctx, wallet.ID, cutoff)
	if err != nil {
		return nil, err
	}

	// The transaction under evaluation is already persisted, so it is part
	// of the count.
	if count > rules.MaxCount {
		return &ruleOutcome{deny: true, reason: fmt.Sprintf("rate limit exceeded: %d transactions in %ds window", count, rules.WindowSeconds)}, nil
	}
	return &ruleOutcome{tier: entities.TierInstant}, nil
}

func applyAllowedTokens(policy *entities.Policy, tx *entities.Transaction) *ruleOutcome {
	if !tx.TokenAddress.Valid {
		return nil
	}
	for _, token := range policy.Rules.Tokens {
		if strings.EqualFold(token, tx.TokenAddress.String) {
			return &ruleOutcome{tier: entities.TierInstant}
		}
	}
	return &ruleOutcome{deny: true, reason: fmt.Sprintf("token %s is not allowed", tx.TokenAddress.String)}
}

func applyMethodWhitelist(policy *entities.Policy, tx *entities.Transaction) *ruleOutcome {
	if tx.Type != entities.TxTypeContractCall {
		return nil
	}
	if !tx.Selector.Valid {
		return &ruleOutcome{deny: true, reason: "contract call without method selector"}
	}
	selector := strings.ToLower(strings.TrimPrefix(tx.Selector.String, "0x"))
	for _, s := range policy.Rules.Selectors {
		if strings.ToLower(strings.TrimPrefix(s, "0x")) == selector {
			return &ruleOutcome{tier: entities.TierInstant}
		}
	}
	return &ruleOutcome{deny: true, reason: fmt.Sprintf("method %s is not whitelisted", tx.Selector.String)}
}

// applyBatchAddressList checks every batch recipient. One unlisted
// recipient denies (or bumps) the whole batch; the strictest per-item
// outcome wins.
func applyBatchAddressList(policy *entities.Policy, tx *entities.Transaction) *ruleOutcome {
	combined := &ruleOutcome{tier: entities.TierInstant}
	for _, item := range tx.BatchItems {
		out := applyAddressList(policy.Rules.Addresses, item.ToAddress, policy.Rules.UnlistedTier,
			fmt.Sprintf("batch recipient %s is not whitelisted", item.ToAddress))
		if out.deny {
			return out
		}
		combined.tier = entities.MaxTier(combined.tier, out.tier)
	}
	return combined
}

// applyAddressList resolves list membership to allow, a tier bump, or deny.
func applyAddressList(addresses []string, candidate string, unlistedTier entities.PolicyTier, denyReason string) *ruleOutcome {
	for _, addr := range addresses {
		if strings.EqualFold(addr, candidate) {
			return &ruleOutcome{tier: entities.TierInstant}
		}
	}
	if unlistedTier != "" {
		return &ruleOutcome{tier: unlistedTier}
	}
	return &ruleOutcome{deny: true, reason: denyReason}
}

// amountUSD converts a native transfer amount to dollars when a usable
// price exists. STALE prices are refused: policy math on a 30-minute-old
// quote is worse than failing closed.
func (e *PolicyEngine) amountUSD(ctx context.Context, wallet *entities.Wallet, tx *entities.Transaction, amount *big.Int) *float64 {
	if tx.Type != entities.TxTypeTransfer {
		return nil
	}
	asset, ok := nativeAsset[wallet.Chain]
	if !ok || e.priceOracle == nil {
		return nil
	}

	result := e.priceOracle.GetPrice(ctx, asset.symbol)
	if !result.Available || result.Freshness == entities.PriceStale {
		return nil
	}

	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(asset.decimals)), nil))
	value := new(big.Float).Quo(new(big.Float).SetInt(amount), scale)
	usd, _ := new(big.Float).Mul(value, big.NewFloat(result.Observation.PriceUSD)).Float64()
	return &usd
}

func (e *PolicyEngine) recordDenial(ctx context.Context, wallet *entities.Wallet, tx *entities.Transaction, decision *entities.PolicyDecision) {
	walletID := wallet.ID
	txID := tx.ID
	entry := &entities.AuditLog{
		ID:            utils.GenerateUUIDv7(),
		WalletID:      &walletID,
		TransactionID: &txID,
		Action:        entities.AuditPolicyDenied,
		Detail:        decision.Reason,
		CreatedAt:     e.now(),
	}
	// Best effort: a failed audit write must not mask the denial.
	_ = e.auditRepo.Create(ctx, entry)
}
