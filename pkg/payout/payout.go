// Package payout defines the contract between the wallet ledger and a
// mobile-money disbursement provider.
package payout

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrGatewayUnavailable means the outcome is unknown: network failure,
	// timeout, provider 5xx or an auth failure. The payout may or may not
	// have been sent.
	ErrGatewayUnavailable = errors.New("payout: gateway unavailable")

	// ErrGatewayRejected means the provider definitively refused the payout.
	ErrGatewayRejected = errors.New("payout: gateway rejected request")
)

// Gateway sends money to a mobile wallet. reference is our idempotency
// reference (the withdrawal transaction id); the returned string is the
// provider's reference for the payout.
type Gateway interface {
	RequestPayout(ctx context.Context, phone string, amount int64, reference string) (string, error)
}

// Error carries the provider's code and message while keeping the
// classification reachable through errors.Is.
type Error struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Code != "" {
		msg += fmt.Sprintf(" (code=%s)", e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Unavailable wraps err as an ErrGatewayUnavailable.
func Unavailable(code, message string, err error) error {
	return &Error{Kind: ErrGatewayUnavailable, Code: code, Message: message, Err: err}
}

// Rejected wraps err as an ErrGatewayRejected.
func Rejected(code, message string, err error) error {
	return &Error{Kind: ErrGatewayRejected, Code: code, Message: message, Err: err}
}

// IsUnavailable reports whether the outcome of the payout is unknown.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

// Info extracts the provider code and message, if any.
func Info(err error) (code, message string) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code, pe.Message
	}
	return "", ""
}
