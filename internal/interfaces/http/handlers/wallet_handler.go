package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"agent-wallet.backend/internal/domain/entities"
	domainerrors "agent-wallet.backend/internal/domain/errors"
	"agent-wallet.backend/internal/interfaces/http/response"
)

type WalletService interface {
	CreateWallet(ctx context.Context, input *entities.CreateWalletInput) (*entities.Wallet, error)
	GetWallet(ctx context.Context, id uuid.UUID) (*entities.Wallet, error)
	ListWallets(ctx context.Context, limit, offset int) ([]*entities.Wallet, int, error)
	SuspendWallet(ctx context.Context, id uuid.UUID) (*entities.Wallet, error)
	ResumeWallet(ctx context.Context, id uuid.UUID) (*entities.Wallet, error)
	TerminateWallet(ctx context.Context, id uuid.UUID) (*entities.Wallet, error)
	SetOwner(ctx context.Context, id uuid.UUID, ownerAddress string, verified bool) (*entities.Wallet, error)
}

// WalletHandler handles wallet lifecycle endpoints
type WalletHandler struct {
	walletUsecase WalletService
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(walletUsecase WalletService) *WalletHandler {
	return &WalletHandler{walletUsecase: walletUsecase}
}

// CreateWallet provisions a new wallet and key pair
// POST /api/v1/wallets
func (h *WalletHandler) CreateWallet(c *gin.Context) {
	var input entities.CreateWalletInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	wallet, err := h.walletUsecase.CreateWallet(c.Request.Context(), &input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"wallet": wallet})
}

// GetWallet gets a wallet by ID
// GET /api/v1/wallets/:id
func (h *WalletHandler) GetWallet(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid wallet ID"))
		return
	}

	wallet, err := h.walletUsecase.GetWallet(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"wallet": wallet})
}

// ListWallets lists wallets
// GET /api/v1/wallets
func (h *WalletHandler) ListWallets(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	wallets, total, err := h.walletUsecase.ListWallets(c.Request.Context(), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"wallets": wallets,
		"total":   total,
	})
}

// SuspendWallet pauses a wallet
// POST /api/v1/wallets/:id/suspend
func (h *WalletHandler) SuspendWallet(c *gin.Context) {
	h.transition(c, h.walletUsecase.SuspendWallet)
}

// ResumeWallet reactivates a suspended wallet
// POST /api/v1/wallets/:id/resume
func (h *WalletHandler) ResumeWallet(c *gin.Context) {
	h.transition(c, h.walletUsecase.ResumeWallet)
}

// TerminateWallet retires a wallet and destroys its key
// POST /api/v1/wallets/:id/terminate
func (h *WalletHandler) TerminateWallet(c *gin.Context) {
	h.transition(c, h.walletUsecase.TerminateWallet)
}

func (h *WalletHandler) transition(c *gin.Context, op func(context.Context, uuid.UUID) (*entities.Wallet, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid wallet ID"))
		return
	}

	wallet, err := op(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"wallet": wallet})
}

type setOwnerInput struct {
	OwnerAddress string `json:"ownerAddress" binding:"required"`
	Verified     bool   `json:"verified"`
}

// SetOwner records the wallet's owner address
// PUT /api/v1/wallets/:id/owner
func (h *WalletHandler) SetOwner(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid wallet ID"))
		return
	}

	var input setOwnerInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	wallet, err := h.walletUsecase.SetOwner(c.Request.Context(), id, input.OwnerAddress, input.Verified)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"wallet": wallet})
}
