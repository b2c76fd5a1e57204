package services

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies client-facing errors
type ErrorKind string

const (
	// ErrorKindValidation rejects a request before any side effect
	ErrorKindValidation ErrorKind = "validation"
	// ErrorKindUpstream reports a store or contract read failure during orchestration
	ErrorKindUpstream ErrorKind = "upstream"
)

// ClientError is the uniform client-fault error of the orchestrators
type ClientError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ClientError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// NewClientError creates a validation error
func NewClientError(format string, args ...interface{}) *ClientError {
	return &ClientError{Kind: ErrorKindValidation, Message: fmt.Sprintf(format, args...)}
}

// WrapClientError wraps an upstream failure, keeping err as the cause
func WrapClientError(err error, format string, args ...interface{}) *ClientError {
	return &ClientError{Kind: ErrorKindUpstream, Message: fmt.Sprintf(format, args...), Err: err}
}

// ConfirmationResult is the outcome of one on-chain confirmation
type ConfirmationResult struct {
	SettlementTransactionID string `json:"settlementTransactionId"`
	TransactionID           string `json:"transactionId,omitempty"`
	Error                   string `json:"error,omitempty"`
}

// ConfirmationError reports a partially failed confirmation batch
type ConfirmationError struct {
	PaymentReference string
	Succeeded        []ConfirmationResult
	Failed           []ConfirmationResult
}

func (e *ConfirmationError) Error() string {
	failed := make([]string, len(e.Failed))
	for i, r := range e.Failed {
		failed[i] = r.SettlementTransactionID + " (" + r.Error + ")"
	}
	return fmt.Sprintf("payment reference %s: %d of %d confirmations failed: %s",
		e.PaymentReference, len(e.Failed), len(e.Failed)+len(e.Succeeded), strings.Join(failed, ", "))
}

// ErrSubscriptionNotFound is returned when unsubscribing an unknown notification subscriber
var ErrSubscriptionNotFound = errors.New("subscription not found")
