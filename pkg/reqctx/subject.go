package reqctx

import (
	"context"

	"github.com/google/uuid"
)

// SubjectKind names the record an operation acts on.
type SubjectKind string

const (
	SubjectAppointment SubjectKind = "appointment"
	SubjectWithdrawal  SubjectKind = "withdrawal"
)

// Subject is the appointment or withdrawal being worked on. Logged as
// "<kind>_id", which lets a payout retry be followed across log lines that do
// not repeat the id themselves.
type Subject struct {
	Kind SubjectKind
	ID   uuid.UUID
}

// WithSubject replaces any subject already on ctx.
func WithSubject(ctx context.Context, kind SubjectKind, id uuid.UUID) context.Context {
	return context.WithValue(ctx, keySubject, Subject{Kind: kind, ID: id})
}

func SubjectFromContext(ctx context.Context) (Subject, bool) {
	s, ok := ctx.Value(keySubject).(Subject)
	return s, ok
}
