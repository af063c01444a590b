package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"agent-wallet.backend/internal/domain/entities"
	domainerrors "agent-wallet.backend/internal/domain/errors"
	"agent-wallet.backend/internal/domain/repositories"
	"agent-wallet.backend/internal/interfaces/http/middleware"
	"agent-wallet.backend/internal/interfaces/http/response"
)

type TransactionService interface {
	Submit(ctx context.Context, walletID uuid.UUID, token string, input *entities.SendTransactionInput) (*entities.Transaction, error)
}

// TransactionHandler handles transaction submission and queries
type TransactionHandler struct {
	pipeline TransactionService
	txRepo   repositories.TransactionRepository
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(pipeline TransactionService, txRepo repositories.TransactionRepository) *TransactionHandler {
	return &TransactionHandler{pipeline: pipeline, txRepo: txRepo}
}

// SendTransaction submits a transaction into the pipeline
// POST /api/v1/wallets/:id/transactions
func (h *TransactionHandler) SendTransaction(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid wallet ID"))
		return
	}

	var input entities.SendTransactionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	token, _ := middleware.GetSessionToken(c)

	tx, err := h.pipeline.Submit(c.Request.Context(), walletID, token, &input)
	if err != nil {
		response.Error(c, err)
		return
	}

	// The submission itself succeeded even when policy rejected it; the
	// transaction record carries the outcome.
	status := http.StatusAccepted
	if tx.Status == entities.TxStatusFailed {
		status = http.StatusForbidden
	}
	response.Success(c, status, gin.H{"transaction": tx})
}

// GetTransaction gets a transaction by ID
// GET /api/v1/transactions/:id
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid transaction ID"))
		return
	}

	tx, err := h.txRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"transaction": tx})
}

// ListTransactions lists a wallet's transactions
// GET /api/v1/wallets/:id/transactions
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid wallet ID"))
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	txs, total, err := h.txRepo.GetByWalletID(c.Request.Context(), walletID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"transactions": txs,
		"total":        total,
	})
}
