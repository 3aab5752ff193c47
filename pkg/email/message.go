package email

import (
	"errors"
	"fmt"
)

// Kind tags a notification. It is sent as the X-Echo-Notification header and
// used as the log key for delivery failures.
type Kind string

const (
	KindDoctorRegistered  Kind = "doctor_registered"
	KindApprovalChanged   Kind = "approval_changed"
	KindWithdrawalOutcome Kind = "withdrawal_outcome"
)

const headerKind = "X-Echo-Notification"

// Message is one notification. Each address in To gets its own copy, so
// admins never see each other's addresses and one bad address does not
// block the rest.
type Message struct {
	Kind     Kind
	To       []string
	Subject  string
	TextBody string
	HTMLBody string
}

var (
	ErrDisabled       = errors.New("email is disabled")
	ErrInvalidMessage = errors.New("invalid email message")
)

// DeliveryError reports a failed copy of a message.
type DeliveryError struct {
	Kind      Kind
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s to %s: %v", e.Kind, e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidMessage, reason)
}
