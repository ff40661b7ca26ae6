package domainerrors

import "errors"

// Code represents a domain error category independent of transport layer.
// These codes describe what went wrong in business logic terms, not HTTP terms.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_failed"
	CodeInternal           Code = "internal_error"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeInvariantViolation Code = "invariant_violation"

	// Credential lifecycle codes.
	CodeQuotaExceeded           Code = "quota_exceeded"            // Free verification quota consumed; terminal until entitlement changes
	CodeExpiredToken            Code = "expired_token"             // Share token was valid once but its TTL elapsed
	CodeLedgerUnavailable       Code = "ledger_unavailable"        // Transient; bounded retry before surfacing
	CodeContentStoreUnavailable Code = "content_store_unavailable" // Transient; bounded retry before surfacing
	CodeIndexWrite              Code = "index_write_failed"        // Non-fatal to the triggering operation; queued for repair
)

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and other layers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsTransient reports whether the error is a retryable availability failure.
// Only these codes are safe to retry; everything else is a terminal outcome.
func IsTransient(err error) bool {
	return HasCode(err, CodeLedgerUnavailable) || HasCode(err, CodeContentStoreUnavailable)
}
