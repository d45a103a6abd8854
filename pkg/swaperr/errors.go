package swaperr

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error classification. User-visible failures
// always carry one of these alongside a human-readable message.
type Code string

const (
	CodeValidation          Code = "validation"
	CodeNotFound            Code = "not_found"
	CodeQuoteExpired        Code = "quote_expired"
	CodeQuoteDrift          Code = "quote_drift"
	CodeInsufficientBalance Code = "insufficient_balance"
	CodeFeeViolation        Code = "fee_violation"
	CodeOracleUnavailable   Code = "oracle_unavailable"
	CodeProvider            Code = "provider"
	CodeTxValidation        Code = "tx_validation"
	CodeConfig              Code = "config"
)

// Error is a coded error with a message safe to show callers. The wrapped
// cause is kept for logs and never rendered across the trust boundary.
type Error struct {
	Code     Code
	Message  string
	Provider string // set for provider-tagged errors
	Err      error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: [%s] %s", e.Code, e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error with a formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and caller-safe message to an underlying cause.
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// FromProvider tags an error with the provider it came from.
func FromProvider(provider string, err error, format string, args ...interface{}) *Error {
	return &Error{Code: CodeProvider, Provider: provider, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the code from an error chain, or empty if uncoded.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}
