// Package domainerr provides the typed error taxonomy returned by the ledger core.
package domainerr

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeNotFound          Code = "NOT_FOUND"
	CodeUnavailable       Code = "UNAVAILABLE"
	CodeOutOfStock        Code = "OUT_OF_STOCK"
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeInvalidAmount     Code = "INVALID_AMOUNT"
	CodeInvalidQuantity   Code = "INVALID_QUANTITY"
	CodeRecipientNotFound Code = "RECIPIENT_NOT_FOUND"
	CodeSelfTransfer      Code = "SELF_TRANSFER"
	CodeAlreadyCompleted  Code = "ALREADY_COMPLETED"
	CodeNotReady          Code = "NOT_READY"
	CodeNotPending        Code = "NOT_PENDING"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeAlreadyExists     Code = "ALREADY_EXISTS"

	// CodeEscrowMissing marks a settlement that found no pending hold for a seller.
	CodeEscrowMissing Code = "ESCROW_MISSING"

	// CodeConflict is a retryable write conflict detected by the store.
	CodeConflict Code = "CONFLICT"

	CodeStorage Code = "STORAGE_ERROR"
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Storage wraps an unexpected store failure. Domain errors pass through untouched.
func Storage(message string, cause error) error {
	if cause == nil {
		return nil
	}
	var de *Error
	if errors.As(cause, &de) {
		return cause
	}
	return Wrap(CodeStorage, message, cause)
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound          = New(CodeNotFound, "not found")
	ErrUnavailable       = New(CodeUnavailable, "listing unavailable")
	ErrOutOfStock        = New(CodeOutOfStock, "out of stock")
	ErrInsufficientFunds = New(CodeInsufficientFunds, "insufficient funds")
	ErrUnauthorized      = New(CodeUnauthorized, "unauthorized")
	ErrInvalidAmount     = New(CodeInvalidAmount, "invalid amount")
	ErrInvalidQuantity   = New(CodeInvalidQuantity, "invalid quantity")
	ErrRecipientNotFound = New(CodeRecipientNotFound, "recipient not found")
	ErrSelfTransfer      = New(CodeSelfTransfer, "cannot transfer to self")
	ErrAlreadyCompleted  = New(CodeAlreadyCompleted, "order already completed")
	ErrNotReady          = New(CodeNotReady, "order not ready")
	ErrNotPending        = New(CodeNotPending, "transaction not pending")
	ErrInvalidTransition = New(CodeInvalidTransition, "invalid status transition")
	ErrAlreadyExists     = New(CodeAlreadyExists, "already exists")
	ErrEscrowMissing     = New(CodeEscrowMissing, "escrow hold missing")
	ErrConflict          = New(CodeConflict, "write conflict")
	ErrStorage           = New(CodeStorage, "storage error")
)

// CodeOf extracts the code from err, or CodeStorage for foreign errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeStorage
}
