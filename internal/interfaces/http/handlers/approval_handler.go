package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"agent-wallet.backend/internal/domain/entities"
	domainerrors "agent-wallet.backend/internal/domain/errors"
	"agent-wallet.backend/internal/domain/repositories"
	"agent-wallet.backend/internal/interfaces/http/response"
)

type ApprovalService interface {
	Resolve(ctx context.Context, approvalID uuid.UUID, input *entities.ResolveApprovalInput) (*entities.PendingApproval, error)
}

// ApprovalHandler handles pending approval endpoints
type ApprovalHandler struct {
	queue        ApprovalService
	approvalRepo repositories.ApprovalRepository
}

// NewApprovalHandler creates a new approval handler
func NewApprovalHandler(queue ApprovalService, approvalRepo repositories.ApprovalRepository) *ApprovalHandler {
	return &ApprovalHandler{queue: queue, approvalRepo: approvalRepo}
}

// ListPendingApprovals lists a wallet's pending approvals
// GET /api/v1/wallets/:id/approvals
func (h *ApprovalHandler) ListPendingApprovals(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid wallet ID"))
		return
	}

	approvals, err := h.approvalRepo.ListPending(c.Request.Context(), walletID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"approvals": approvals})
}

// ResolveApproval applies an owner's decision on a pending approval
// POST /api/v1/approvals/:id/resolve
func (h *ApprovalHandler) ResolveApproval(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid approval ID"))
		return
	}

	var input entities.ResolveApprovalInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	approval, err := h.queue.Resolve(c.Request.Context(), id, &input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"approval": approval})
}
