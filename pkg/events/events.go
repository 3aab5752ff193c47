// Package events publishes domain events to NATS. Publishing is best-effort:
// callers log failures and never fail a business operation because of them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const prefix = "echo"

// Subjects. Wildcard forms are used by subscribers.
const (
	SubjectDoctorRegistered     = prefix + ".doctor.registered.*"
	SubjectDoctorApproval       = prefix + ".doctor.approval.*"
	SubjectAppointmentCreated   = prefix + ".appointment.created.*"
	SubjectAppointmentCompleted = prefix + ".appointment.completed.*"
	SubjectWithdrawalOutcome    = prefix + ".wallet.withdrawal.*.*"
)

func DoctorRegisteredSubject(id uuid.UUID) string {
	return fmt.Sprintf("%s.doctor.registered.%s", prefix, id)
}

func DoctorApprovalSubject(id uuid.UUID) string {
	return fmt.Sprintf("%s.doctor.approval.%s", prefix, id)
}

func AppointmentCreatedSubject(id uuid.UUID) string {
	return fmt.Sprintf("%s.appointment.created.%s", prefix, id)
}

func AppointmentCompletedSubject(id uuid.UUID) string {
	return fmt.Sprintf("%s.appointment.completed.%s", prefix, id)
}

func WithdrawalSubject(status string, txID uuid.UUID) string {
	return fmt.Sprintf("%s.wallet.withdrawal.%s.%s", prefix, status, txID)
}

// ---------------------------------------------------------------------------
// Payloads
// ---------------------------------------------------------------------------

type DoctorRegistered struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Specialty string    `json:"specialty,omitempty"`
}

type DoctorApprovalChanged struct {
	DoctorID      uuid.UUID `json:"doctor_id"`
	ApprovalState string    `json:"approval_state"`
}

type AppointmentEvent struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	Fee           int64     `json:"fee"`
}

type WithdrawalOutcome struct {
	TransactionID     uuid.UUID `json:"transaction_id"`
	OwnerID           uuid.UUID `json:"owner_id"`
	Amount            int64     `json:"amount"`
	Status            string    `json:"status"`
	ExternalReference string    `json:"external_reference,omitempty"`
}

// ---------------------------------------------------------------------------
// Publisher
// ---------------------------------------------------------------------------

type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

type natsPublisher struct {
	nc *nats.Conn
}

// NewPublisher returns a NATS publisher, or a no-op one when nc is nil.
func NewPublisher(nc *nats.Conn) Publisher {
	if nc == nil {
		return Nop{}
	}
	return &natsPublisher{nc: nc}
}

func (p *natsPublisher) Publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", subject, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("events: publish %s: %w", subject, err)
	}
	return nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

// Emit publishes and logs failures instead of returning them.
func Emit(ctx context.Context, p Publisher, subject string, payload any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, subject, payload); err != nil {
		slog.WarnContext(ctx, "event publish failed", "subject", subject, "err", err)
	}
}

// ---------------------------------------------------------------------------
// Subscriptions
// ---------------------------------------------------------------------------

// Subscribe decodes each message on subject into T and hands it to fn.
// Undecodable messages are logged and dropped.
func Subscribe[T any](nc *nats.Conn, subject string, fn func(context.Context, T)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			slog.Warn("event decode failed", "subject", msg.Subject, "err", err)
			return
		}
		fn(context.Background(), v)
	})
}
