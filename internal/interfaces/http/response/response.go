package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	domainerrors "agent-wallet.backend/internal/domain/errors"
)

// Success sends a success response
func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// Error sends an error response, mapping domain sentinels onto stable
// HTTP statuses and codes.
func Error(c *gin.Context, err error) {
	var appErr *domainerrors.AppError
	if errors.As(err, &appErr) {
		writeError(c, appErr)
		return
	}

	switch {
	case errors.Is(err, domainerrors.ErrNotFound):
		writeError(c, domainerrors.NotFound(err.Error()))
	case errors.Is(err, domainerrors.ErrInvalidInput), errors.Is(err, domainerrors.ErrBadRequest):
		writeError(c, domainerrors.BadRequest(err.Error()))
	case errors.Is(err, domainerrors.ErrUnauthorized):
		writeError(c, domainerrors.Unauthorized(err.Error()))
	case errors.Is(err, domainerrors.ErrForbidden), errors.Is(err, domainerrors.ErrPolicyViolation):
		writeError(c, domainerrors.Forbidden(err.Error()))
	case errors.Is(err, domainerrors.ErrWalletNotActive), errors.Is(err, domainerrors.ErrWalletTerminated),
		errors.Is(err, domainerrors.ErrAlreadyExists), errors.Is(err, domainerrors.ErrApprovalResolved),
		errors.Is(err, domainerrors.ErrTxTerminal), errors.Is(err, domainerrors.ErrTxAlreadyClaimed):
		writeError(c, domainerrors.NewAppError(http.StatusConflict, "CONFLICT", err.Error(), err))
	default:
		writeError(c, domainerrors.InternalError(err))
	}
}

func writeError(c *gin.Context, appErr *domainerrors.AppError) {
	c.JSON(appErr.Status, gin.H{
		"code":    appErr.Code,
		"message": appErr.Message,
	})
}

// ErrorWithError sends an error response with a specific status and message
func ErrorWithError(c *gin.Context, status int, code string, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}
