package ledger

import "errors"

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrBelowMinimum        = errors.New("amount is below the minimum withdrawal")
	ErrInvalidDestination  = errors.New("destination phone number is invalid")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidTransition   = errors.New("transaction cannot move to the requested state")
	ErrAlreadyReversed     = errors.New("withdrawal has already been reversed")
	ErrAlreadyCredited     = errors.New("appointment has already been credited")
	ErrInvalidOutcome      = errors.New("outcome must be COMPLETED or FAILED")
	ErrReferenceRequired   = errors.New("a provider reference is required to complete a withdrawal")
	ErrPayoutInFlight      = errors.New("payout request for this withdrawal may still be in flight")
)
