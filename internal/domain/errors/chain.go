package errors

import (
	"errors"
	"strings"
)

// ChainErrorClass partitions chain adapter failures by how the pipeline
// must react to them.
type ChainErrorClass int

const (
	// ChainErrorTransient covers RPC timeouts, rate limiting and nodes that
	// are temporarily behind. Safe to retry with backoff.
	ChainErrorTransient ChainErrorClass = iota
	// ChainErrorStaleState covers expired blockhashes, reused nonces and
	// skipped slots. The transaction must be rebuilt before resubmission;
	// resubmitting the same signed bytes is never valid.
	ChainErrorStaleState
	// ChainErrorPermanent covers insufficient balance, invalid addresses and
	// contract reverts. Terminal, no retry.
	ChainErrorPermanent
)

// ChainError wraps an adapter failure with its classification.
type ChainError struct {
	Class   ChainErrorClass
	Message string
	Err     error
}

func (e *ChainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *ChainError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the pipeline may retry without rebuilding.
func (e *ChainError) Retryable() bool {
	return e.Class == ChainErrorTransient
}

// NewChainError creates a classified chain error.
func NewChainError(class ChainErrorClass, message string, err error) *ChainError {
	return &ChainError{Class: class, Message: message, Err: err}
}

var transientMarkers = []string{
	"timeout",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"429",
	"too many requests",
	"node is behind",
	"service unavailable",
}

var staleStateMarkers = []string{
	"blockhash not found",
	"block height exceeded",
	"nonce too low",
	"already known",
	"replacement transaction underpriced",
	"slot skipped",
}

var permanentMarkers = []string{
	"insufficient funds",
	"insufficient balance",
	"invalid address",
	"execution reverted",
	"instruction error",
}

// ClassifyChainError maps an arbitrary adapter error onto a ChainError.
// Already-classified errors pass through untouched; unknown errors are
// treated as transient so a flaky RPC never turns into a false terminal
// failure.
func ClassifyChainError(err error) *ChainError {
	var ce *ChainError
	if errors.As(err, &ce) {
		return ce
	}

	msg := strings.ToLower(err.Error())
	for _, m := range permanentMarkers {
		if strings.Contains(msg, m) {
			return NewChainError(ChainErrorPermanent, err.Error(), err)
		}
	}
	for _, m := range staleStateMarkers {
		if strings.Contains(msg, m) {
			return NewChainError(ChainErrorStaleState, err.Error(), err)
		}
	}
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return NewChainError(ChainErrorTransient, err.Error(), err)
		}
	}
	return NewChainError(ChainErrorTransient, err.Error(), err)
}
