package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/proofrail/proofrail-agent/pkg/contracts"
	"github.com/proofrail/proofrail-agent/pkg/models"
)

var (
	// ErrBroadcastExhausted is returned when every submission attempt failed
	ErrBroadcastExhausted = errors.New("broadcast attempts exhausted")

	// ErrTxAborted is returned when a transaction was mined but failed
	ErrTxAborted = errors.New("transaction aborted")

	// ErrConfirmationTimeout is returned when a transaction is not confirmed within the block budget
	ErrConfirmationTimeout = errors.New("confirmation timed out")

	// ErrAlreadyRunning is returned by Start when the loop is already active
	ErrAlreadyRunning = errors.New("agent already running")
)

// BroadcastExhaustedError wraps the last error after all submission attempts failed
type BroadcastExhaustedError struct {
	Attempts int
	Last     error
}

func (e *BroadcastExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrBroadcastExhausted, e.Attempts, e.Last)
}

// Unwrap exposes both the sentinel and the last attempt's error
func (e *BroadcastExhaustedError) Unwrap() []error {
	return []error{ErrBroadcastExhausted, e.Last}
}

// TxAbortedError carries the abort status of a mined transaction
type TxAbortedError struct {
	TxID   string
	Status models.TxStatus
}

func (e *TxAbortedError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", ErrTxAborted, e.TxID, e.Status)
}

func (e *TxAbortedError) Unwrap() error {
	return ErrTxAborted
}

// ErrorType is the category a job-level failure is counted under
type ErrorType string

const (
	ErrorTypeBroadcastExhausted  ErrorType = "broadcast_exhausted"
	ErrorTypeTxAborted           ErrorType = "tx_aborted"
	ErrorTypeConfirmationTimeout ErrorType = "confirmation_timeout"
	ErrorTypeAlreadyProcessed    ErrorType = "already_processed"
	ErrorTypeNetwork             ErrorType = "network_error"
	ErrorTypeCanceled            ErrorType = "canceled"
	ErrorTypeUnknown             ErrorType = "unknown_error"
)

// ClassifyError maps a job-level failure to its category
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}

	errStr := err.Error()

	// Check for "already processed" errors first, they can surface through any path
	if code, ok := contracts.ExtractErrorCode(errStr); ok && code == contracts.ErrEscrowFeeAlreadyPaid {
		return ErrorTypeAlreadyProcessed
	}
	if strings.Contains(strings.ToLower(errStr), "already") {
		return ErrorTypeAlreadyProcessed
	}

	switch {
	case errors.Is(err, context.Canceled):
		return ErrorTypeCanceled
	case errors.Is(err, ErrTxAborted):
		return ErrorTypeTxAborted
	case errors.Is(err, ErrConfirmationTimeout):
		return ErrorTypeConfirmationTimeout
	}

	// Network errors inside an exhausted broadcast are still counted as exhaustion
	if errors.Is(err, ErrBroadcastExhausted) {
		return ErrorTypeBroadcastExhausted
	}

	// Network/API errors
	if errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "timed out") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "unexpected status code") ||
		strings.Contains(errStr, "EOF") {
		return ErrorTypeNetwork
	}

	return ErrorTypeUnknown
}

// countsAsFailure reports whether a failure category should feed the circuit breaker
func countsAsFailure(t ErrorType) bool {
	return t != ErrorTypeAlreadyProcessed && t != ErrorTypeCanceled
}
