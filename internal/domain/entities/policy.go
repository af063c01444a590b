package entities

import (
	"time"

	"github.com/google/uuid"
)

// PolicyTier represents the action tier a policy evaluation resolves to.
// Severity strictly increases: INSTANT < NOTIFY < DELAY < APPROVAL.
type PolicyTier string

const (
	TierInstant  PolicyTier = "INSTANT"
	TierNotify   PolicyTier = "NOTIFY"
	TierDelay    PolicyTier = "DELAY"
	TierApproval PolicyTier = "APPROVAL"
)

var tierSeverity = map[PolicyTier]int{
	TierInstant:  0,
	TierNotify:   1,
	TierDelay:    2,
	TierApproval: 3,
}

// Severity returns the tier's ordering rank. Unknown tiers rank above
// APPROVAL so a corrupted value can never weaken enforcement.
func (t PolicyTier) Severity() int {
	if s, ok := tierSeverity[t]; ok {
		return s
	}
	return tierSeverity[TierApproval] + 1
}

// MaxTier returns the stricter of two tiers.
func MaxTier(a, b PolicyTier) PolicyTier {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// PolicyType enumerates the supported rule kinds
type PolicyType string

const (
	PolicySpendingLimit     PolicyType = "SPENDING_LIMIT"
	PolicyWhitelist         PolicyType = "WHITELIST"
	PolicyTimeRestriction   PolicyType = "TIME_RESTRICTION"
	PolicyRateLimit         PolicyType = "RATE_LIMIT"
	PolicyAllowedTokens     PolicyType = "ALLOWED_TOKENS"
	PolicyContractWhitelist PolicyType = "CONTRACT_WHITELIST"
	PolicyMethodWhitelist   PolicyType = "METHOD_WHITELIST"
	PolicyApprovedSpenders  PolicyType = "APPROVED_SPENDERS"
	PolicyApproveAmountLim  PolicyType = "APPROVE_AMOUNT_LIMIT"
	PolicyApproveTierOvr    PolicyType = "APPROVE_TIER_OVERRIDE"
	PolicyAllowedNetworks   PolicyType = "ALLOWED_NETWORKS"
)

// Policy represents one configured rule. WalletID scopes it to a single
// wallet; nil means a global default applying to every wallet that has no
// wallet-scoped policy of the same type.
type Policy struct {
	ID        uuid.UUID   `json:"id"`
	WalletID  *uuid.UUID  `json:"walletId,omitempty"`
	Type      PolicyType  `json:"type"`
	Rules     PolicyRules `json:"rules"`
	Priority  int         `json:"priority"`
	Enabled   bool        `json:"enabled"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// PolicyRules is the union of per-type rule payloads. Only the fields
// relevant to the policy's Type are consulted.
type PolicyRules struct {
	// SPENDING_LIMIT / APPROVE_AMOUNT_LIMIT. Native thresholds are decimal
	// strings in the chain's smallest unit; USD thresholds are in dollars.
	InstantMax    string   `json:"instantMax,omitempty"`
	NotifyMax     string   `json:"notifyMax,omitempty"`
	DelayMax      string   `json:"delayMax,omitempty"`
	InstantMaxUSD *float64 `json:"instantMaxUsd,omitempty"`
	NotifyMaxUSD  *float64 `json:"notifyMaxUsd,omitempty"`
	DelayMaxUSD   *float64 `json:"delayMaxUsd,omitempty"`
	// AllowNativeFallback lets a USD-denominated limit fall back to native
	// thresholds when no price is available instead of denying.
	AllowNativeFallback bool `json:"allowNativeFallback,omitempty"`

	// WHITELIST / CONTRACT_WHITELIST / APPROVED_SPENDERS
	Addresses []string `json:"addresses,omitempty"`
	// Tier applied when the counterparty is not listed; empty means deny.
	UnlistedTier PolicyTier `json:"unlistedTier,omitempty"`

	// TIME_RESTRICTION: allowed window in UTC, inclusive start, exclusive end.
	StartHour *int  `json:"startHour,omitempty"`
	EndHour   *int  `json:"endHour,omitempty"`
	Weekdays  []int `json:"weekdays,omitempty"` // 0=Sunday; empty means all days
	// Tier applied outside the window; empty means deny.
	OutsideTier PolicyTier `json:"outsideTier,omitempty"`

	// RATE_LIMIT
	MaxCount      int `json:"maxCount,omitempty"`
	WindowSeconds int `json:"windowSeconds,omitempty"`

	// ALLOWED_TOKENS
	Tokens []string `json:"tokens,omitempty"`

	// METHOD_WHITELIST: 4-byte selectors, 0x-prefixed hex
	Selectors []string `json:"selectors,omitempty"`

	// APPROVE_TIER_OVERRIDE: minimum tier for every APPROVE transaction.
	MinTier PolicyTier `json:"minTier,omitempty"`

	// ALLOWED_NETWORKS
	Networks []string `json:"networks,omitempty"`

	// DELAY / APPROVAL tier tuning
	DelaySeconds           int `json:"delaySeconds,omitempty"`
	ApprovalTimeoutSeconds int `json:"approvalTimeoutSeconds,omitempty"`
}

// PolicyDecision is the combined result of evaluating all enabled policies
// for one transaction.
type PolicyDecision struct {
	Allowed      bool       `json:"allowed"`
	Tier         PolicyTier `json:"tier"`
	Reason       string     `json:"reason,omitempty"`
	DenyPolicyID *uuid.UUID `json:"denyPolicyId,omitempty"`
	DelaySeconds int        `json:"delaySeconds,omitempty"`
	// ApprovalTimeoutSeconds is set when Tier is APPROVAL and a rule
	// carries an explicit timeout.
	ApprovalTimeoutSeconds int      `json:"approvalTimeoutSeconds,omitempty"`
	AmountUSD              *float64 `json:"amountUsd,omitempty"`
}

// CreatePolicyInput represents input for attaching a policy to a wallet
type CreatePolicyInput struct {
	Type     string      `json:"type" binding:"required"`
	Rules    PolicyRules `json:"rules" binding:"required"`
	Priority int         `json:"priority"`
	Enabled  *bool       `json:"enabled"`
}
