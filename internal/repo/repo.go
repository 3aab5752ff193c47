// Package repo owns persistence for accounts, appointments, wallets and
// ledger transactions. Two Store implementations exist: a PostgreSQL one
// built on ent's SQL dialect layer and an in-memory one for single-process
// deployments and tests.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("repo: record not found")
	ErrDuplicate = errors.New("repo: duplicate record")
	// ErrConflict is returned when a guarded update matched no row, e.g. a
	// status compare-and-swap lost or a balance guard failed.
	ErrConflict = errors.New("repo: conflicting update")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// ---------------------------------------------------------------------------
// Enums
// ---------------------------------------------------------------------------

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RolePatient:
		return true
	}
	return false
}

type ApprovalState string

const (
	ApprovalPending  ApprovalState = "PENDING"
	ApprovalApproved ApprovalState = "APPROVED"
	ApprovalRejected ApprovalState = "REJECTED"
)

type AppointmentStatus string

const (
	AppointmentScheduled   AppointmentStatus = "SCHEDULED"
	AppointmentRescheduled AppointmentStatus = "RESCHEDULED"
	AppointmentCompleted   AppointmentStatus = "COMPLETED"
	AppointmentCancelled   AppointmentStatus = "CANCELLED"
)

type TransactionType string

const (
	TxCredit     TransactionType = "CREDIT"
	TxWithdrawal TransactionType = "WITHDRAWAL"
	TxRefund     TransactionType = "REFUND"
)

type TransactionStatus string

const (
	TxPending   TransactionStatus = "PENDING"
	TxCompleted TransactionStatus = "COMPLETED"
	TxFailed    TransactionStatus = "FAILED"
)

// ---------------------------------------------------------------------------
// Models
// ---------------------------------------------------------------------------

type Account struct {
	ID                uuid.UUID     `json:"id"`
	Email             string        `json:"email"`
	SecretHash        string        `json:"-"`
	Role              Role          `json:"role"`
	ApprovalState     ApprovalState `json:"approval_state"`
	FullName          string        `json:"full_name"`
	Phone             string        `json:"phone,omitempty"`
	Specialty         string        `json:"specialty,omitempty"`
	ConsultationFee   int64         `json:"consultation_fee,omitempty"`
	SessionsCompleted int           `json:"sessions_completed"`
	DocumentKey       string        `json:"-"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

type Appointment struct {
	ID          uuid.UUID         `json:"id"`
	DoctorID    uuid.UUID         `json:"doctor_id"`
	PatientID   uuid.UUID         `json:"patient_id"`
	Date        string            `json:"date"` // YYYY-MM-DD
	Time        string            `json:"time"` // HH:MM
	Status      AppointmentStatus `json:"status"`
	Notes       string            `json:"notes"`
	Fee         int64             `json:"fee"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type Wallet struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MaxDescriptionLen is the column size of transactions.description.
const MaxDescriptionLen = 500

type Transaction struct {
	ID                uuid.UUID         `json:"id"`
	WalletID          uuid.UUID         `json:"wallet_id"`
	Amount            int64             `json:"amount"`
	Type              TransactionType   `json:"type"`
	Status            TransactionStatus `json:"status"`
	Description       string            `json:"description"`
	Destination       string            `json:"destination,omitempty"`
	ExternalReference string            `json:"external_reference,omitempty"`
	// AppointmentID is set only on the CREDIT produced by completing an
	// appointment; it is unique across transactions.
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	// ReversesID links a compensating CREDIT to the FAILED withdrawal it
	// reverses; it is unique across transactions.
	ReversesID *uuid.UUID `json:"reverses_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ---------------------------------------------------------------------------
// Filters
// ---------------------------------------------------------------------------

type AccountFilter struct {
	Role          Role
	ApprovalState ApprovalState
	Limit         int
	Offset        int
}

type AppointmentFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    AppointmentStatus
	Limit     int
	Offset    int
}

type TransactionFilter struct {
	WalletID *uuid.UUID
	Type     TransactionType
	Status   TransactionStatus
	// CreatedBefore restricts to transactions created strictly before it.
	CreatedBefore *time.Time
	ReversesID    *uuid.UUID
	// Limit <= 0 means no limit.
	Limit int
}

// TransactionOutcome is the terminal update applied to a PENDING transaction.
type TransactionOutcome struct {
	Status            TransactionStatus
	Description       string
	ExternalReference string
}

// ---------------------------------------------------------------------------
// Store contract
// ---------------------------------------------------------------------------

// Querier is the set of statements available both inside and outside a
// transaction. Methods taking forUpdate lock the selected row until the
// surrounding transaction ends; outside RunInTx the flag has no effect.
type Querier interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	ListAccounts(ctx context.Context, f AccountFilter) ([]*Account, error)
	UpdateAccountSecret(ctx context.Context, id uuid.UUID, secretHash string) error
	UpdateAccountApproval(ctx context.Context, id uuid.UUID, state ApprovalState) error
	UpdateAccountDocument(ctx context.Context, id uuid.UUID, key string) error
	IncrementSessionsCompleted(ctx context.Context, id uuid.UUID) error

	CreateAppointment(ctx context.Context, a *Appointment) error
	GetAppointment(ctx context.Context, id uuid.UUID, forUpdate bool) (*Appointment, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]*Appointment, error)
	UpdateAppointment(ctx context.Context, a *Appointment) error

	GetWallet(ctx context.Context, ownerID uuid.UUID, forUpdate bool) (*Wallet, error)
	GetWalletByID(ctx context.Context, id uuid.UUID) (*Wallet, error)
	// CreateWallet inserts w unless a wallet already exists for w.OwnerID,
	// in which case it is a no-op.
	CreateWallet(ctx context.Context, w *Wallet) error
	// AdjustBalance adds delta to the wallet balance. It returns ErrConflict
	// when the result would be negative.
	AdjustBalance(ctx context.Context, walletID uuid.UUID, delta int64) error

	CreateTransaction(ctx context.Context, t *Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID, forUpdate bool) (*Transaction, error)
	ListTransactions(ctx context.Context, f TransactionFilter) ([]*Transaction, error)
	// SetTransactionOutcome moves a PENDING transaction to a terminal status.
	// It returns ErrConflict if the transaction is no longer PENDING.
	SetTransactionOutcome(ctx context.Context, id uuid.UUID, o TransactionOutcome) error
}

// TxFunc runs inside a store transaction. Returning an error rolls back.
type TxFunc func(ctx context.Context, q Querier) error

type Store interface {
	Querier
	RunInTx(ctx context.Context, fn TxFunc) error
	Close() error
}

// NewID returns a time-ordered identifier.
func NewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

var (
	_ Store = (*SQLClient)(nil)
	_ Store = (*Memory)(nil)
)
