package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"agent-wallet.backend/internal/domain/entities"
	domainerrors "agent-wallet.backend/internal/domain/errors"
	"agent-wallet.backend/internal/domain/repositories"
	"agent-wallet.backend/internal/interfaces/http/response"
	"agent-wallet.backend/pkg/utils"
)

// PolicyHandler handles policy CRUD endpoints
type PolicyHandler struct {
	policyRepo repositories.PolicyRepository
	walletRepo repositories.WalletRepository
}

// NewPolicyHandler creates a new policy handler
func NewPolicyHandler(policyRepo repositories.PolicyRepository, walletRepo repositories.WalletRepository) *PolicyHandler {
	return &PolicyHandler{policyRepo: policyRepo, walletRepo: walletRepo}
}

var knownPolicyTypes = map[entities.PolicyType]bool{
	entities.PolicySpendingLimit:     true,
	entities.PolicyWhitelist:         true,
	entities.PolicyTimeRestriction:   true,
	entities.PolicyRateLimit:         true,
	entities.PolicyAllowedTokens:     true,
	entities.PolicyContractWhitelist: true,
	entities.PolicyMethodWhitelist:   true,
	entities.PolicyApprovedSpenders:  true,
	entities.PolicyApproveAmountLim:  true,
	entities.PolicyApproveTierOvr:    true,
	entities.PolicyAllowedNetworks:   true,
}

// CreatePolicy attaches a policy to a wallet
// POST /api/v1/wallets/:id/policies
func (h *PolicyHandler) CreatePolicy(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid wallet ID"))
		return
	}

	if _, err := h.walletRepo.GetByID(c.Request.Context(), walletID); err != nil {
		response.Error(c, err)
		return
	}

	h.createPolicy(c, &walletID)
}

// CreateGlobalPolicy creates a global default policy that applies to every
// wallet without a wallet-scoped policy of the same type
// POST /api/v1/policies
func (h *PolicyHandler) CreateGlobalPolicy(c *gin.Context) {
	h.createPolicy(c, nil)
}

func (h *PolicyHandler) createPolicy(c *gin.Context, walletID *uuid.UUID) {
	var input entities.CreatePolicyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}
	if !knownPolicyTypes[entities.PolicyType(input.Type)] {
		response.Error(c, domainerrors.BadRequest("Unknown policy type"))
		return
	}

	enabled := true
	if input.Enabled != nil {
		enabled = *input.Enabled
	}

	policy := &entities.Policy{
		ID:       utils.GenerateUUIDv7(),
		WalletID: walletID,
		Type:     entities.PolicyType(input.Type),
		Rules:    input.Rules,
		Priority: input.Priority,
		Enabled:  enabled,
	}
	if err := h.policyRepo.Create(c.Request.Context(), policy); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"policy": policy})
}

// ListPolicies lists a wallet's enabled policies
// GET /api/v1/wallets/:id/policies
func (h *PolicyHandler) ListPolicies(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid wallet ID"))
		return
	}

	policies, err := h.policyRepo.GetEnabledByWalletID(c.Request.Context(), walletID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"policies": policies})
}

type setEnabledInput struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetPolicyEnabled toggles a policy
// PUT /api/v1/policies/:id/enabled
func (h *PolicyHandler) SetPolicyEnabled(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid policy ID"))
		return
	}

	var input setEnabledInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	if err := h.policyRepo.SetEnabled(c.Request.Context(), id, *input.Enabled); err != nil {
		response.Error(c, err)
		return
	}

	policy, err := h.policyRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"policy": policy})
}

// DeletePolicy removes a policy
// DELETE /api/v1/policies/:id
func (h *PolicyHandler) DeletePolicy(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid policy ID"))
		return
	}

	if err := h.policyRepo.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
