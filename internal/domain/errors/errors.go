package errors

import (
	"errors"
	"net/http"
)

// Domain errors
var (
	ErrNotFound              = errors.New("resource not found")
	ErrAlreadyExists         = errors.New("resource already exists")
	ErrInvalidInput          = errors.New("invalid input")
	ErrBadRequest            = errors.New("bad request")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrForbidden             = errors.New("forbidden")
	ErrWalletNotActive       = errors.New("wallet not active")
	ErrWalletTerminated      = errors.New("wallet terminated")
	ErrPolicyViolation       = errors.New("policy violation")
	ErrTxTerminal            = errors.New("transaction already in terminal state")
	ErrTxAlreadyClaimed      = errors.New("transaction already claimed by another executor")
	ErrApprovalNotFound      = errors.New("pending approval not found")
	ErrApprovalResolved      = errors.New("approval already resolved")
	ErrInvalidMasterPassword = errors.New("invalid master password")
	ErrKeyNotFound           = errors.New("key not found")
	ErrKeystoreVersion       = errors.New("unsupported keystore version")
	ErrPriceUnavailable      = errors.New("price unavailable")
	ErrStalePrice            = errors.New("price observation too stale")
	ErrUnsupportedChain      = errors.New("unsupported chain")
	ErrSimulationFailed      = errors.New("transaction simulation failed")
)

// AppError represents an application error with an HTTP status and stable code
type AppError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new app error
func NewAppError(status int, code, message string, err error) *AppError {
	return &AppError{
		Status:  status,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func NotFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, "NOT_FOUND", message, ErrNotFound)
}

func BadRequest(message string) *AppError {
	return NewAppError(http.StatusBadRequest, "VALIDATION_FAILED", message, ErrInvalidInput)
}

func Unauthorized(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, "UNAUTHORIZED", message, ErrUnauthorized)
}

func Forbidden(message string) *AppError {
	return NewAppError(http.StatusForbidden, "FORBIDDEN", message, ErrForbidden)
}

func PolicyDenied(message string) *AppError {
	return NewAppError(http.StatusForbidden, "POLICY_VIOLATION", message, ErrPolicyViolation)
}

func InternalError(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, "INTERNAL", "internal server error", err)
}
