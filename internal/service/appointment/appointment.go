package appointment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/echohealth/echo_backend/internal/repo"
	"github.com/echohealth/echo_backend/internal/service/ledger"
	"github.com/echohealth/echo_backend/pkg/authorize"
	"github.com/echohealth/echo_backend/pkg/events"
	"github.com/echohealth/echo_backend/pkg/reqctx"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type BookRequest struct {
	DoctorID uuid.UUID
	Date     string
	Time     string
	Notes    string
}

type ListRequest struct {
	Status  repo.AppointmentStatus
	Page    int
	PerPage int
}

// UpdateRequest carries the fields to change; nil fields are left as is.
type UpdateRequest struct {
	Date   *string
	Time   *string
	Status *repo.AppointmentStatus
	Notes  *string
}

func (r UpdateRequest) empty() bool {
	return r.Date == nil && r.Time == nil && r.Status == nil && r.Notes == nil
}

// Crediter is the slice of the wallet ledger used on completion.
type Crediter interface {
	CreditInTx(ctx context.Context, q repo.Querier, ownerID uuid.UUID, amount int64, description string, appointmentID *uuid.UUID) (*repo.Transaction, error)
}

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

type Service interface {
	Book(ctx context.Context, p authorize.Principal, req BookRequest) (*repo.Appointment, error)
	Get(ctx context.Context, p authorize.Principal, id uuid.UUID) (*repo.Appointment, error)
	List(ctx context.Context, p authorize.Principal, req ListRequest) ([]*repo.Appointment, error)
	Update(ctx context.Context, p authorize.Principal, id uuid.UUID, req UpdateRequest) (*repo.Appointment, error)
	// Complete marks the appointment COMPLETED and credits the doctor's
	// wallet with its fee in the same store transaction.
	Complete(ctx context.Context, p authorize.Principal, id uuid.UUID) (*repo.Appointment, error)
	Cancel(ctx context.Context, p authorize.Principal, id uuid.UUID) (*repo.Appointment, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type appointmentService struct {
	store  repo.Store
	ledger Crediter
	events events.Publisher
}

func New(store repo.Store, l Crediter, pub events.Publisher) Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &appointmentService{store: store, ledger: l, events: pub}
}

func (s *appointmentService) Book(ctx context.Context, p authorize.Principal, req BookRequest) (*repo.Appointment, error) {
	if !p.IsPatient() {
		return nil, ErrForbidden
	}
	date, clock, err := parseSchedule(req.Date, req.Time)
	if err != nil {
		return nil, err
	}

	doc, err := s.store.GetAccount(ctx, req.DoctorID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrDoctorUnavailable
		}
		return nil, fmt.Errorf("get doctor: %w", err)
	}
	if doc.Role != repo.RoleDoctor || doc.ApprovalState != repo.ApprovalApproved {
		return nil, ErrDoctorUnavailable
	}

	a := &repo.Appointment{
		DoctorID:  doc.ID,
		PatientID: p.UserID,
		Date:      date,
		Time:      clock,
		Status:    repo.AppointmentScheduled,
		Notes:     strings.TrimSpace(req.Notes),
		Fee:       doc.ConsultationFee,
	}
	if err := s.store.CreateAppointment(ctx, a); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	slog.InfoContext(ctx, "appointment booked", "appointment_id", a.ID, "doctor_id", a.DoctorID, "patient_id", a.PatientID)
	s.emit(ctx, events.AppointmentCreatedSubject(a.ID), a)
	return a, nil
}

func (s *appointmentService) Get(ctx context.Context, p authorize.Principal, id uuid.UUID) (*repo.Appointment, error) {
	a, err := s.get(ctx, s.store, id, false)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && !participant(p, a) {
		return nil, ErrForbidden
	}
	return a, nil
}

func (s *appointmentService) List(ctx context.Context, p authorize.Principal, req ListRequest) ([]*repo.Appointment, error) {
	if req.Status != "" && !validStatus(req.Status) {
		return nil, ErrInvalidStatus
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PerPage < 1 || req.PerPage > 100 {
		req.PerPage = 20
	}

	f := repo.AppointmentFilter{
		Status: req.Status,
		Limit:  req.PerPage,
		Offset: (req.Page - 1) * req.PerPage,
	}
	switch {
	case p.IsAdmin():
	case p.IsDoctor():
		f.DoctorID = &p.UserID
	case p.IsPatient():
		f.PatientID = &p.UserID
	default:
		return nil, ErrForbidden
	}

	out, err := s.store.ListAppointments(ctx, f)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*repo.Appointment{}
	}
	return out, nil
}

// Update changes schedule, status or notes. The assigned doctor may make any
// allowed change; the patient may reschedule or cancel their own booking.
func (s *appointmentService) Update(ctx context.Context, p authorize.Principal, id uuid.UUID, req UpdateRequest) (*repo.Appointment, error) {
	if req.empty() {
		return nil, ErrNothingToUpdate
	}
	if req.Status != nil && !validStatus(*req.Status) {
		return nil, ErrInvalidStatus
	}
	if req.Status != nil && *req.Status == repo.AppointmentCompleted {
		return s.complete(ctx, p, id, req.Notes)
	}

	var out *repo.Appointment
	err := s.store.RunInTx(ctx, func(ctx context.Context, q repo.Querier) error {
		a, err := s.get(ctx, q, id, true)
		if err != nil {
			return err
		}
		if err := canModify(p, a, req); err != nil {
			return err
		}

		next := a.Status
		if req.Date != nil || req.Time != nil {
			date, clock := a.Date, a.Time
			if req.Date != nil {
				date = *req.Date
			}
			if req.Time != nil {
				clock = *req.Time
			}
			if a.Date, a.Time, err = parseSchedule(date, clock); err != nil {
				return err
			}
			next = repo.AppointmentRescheduled
		}
		if req.Status != nil {
			next = *req.Status
		}
		if isTerminal(a.Status) {
			return ErrInvalidTransition
		}
		if (next != a.Status || req.Status != nil) && !CanTransition(a.Status, next) {
			return ErrInvalidTransition
		}

		if req.Notes != nil {
			a.Notes = strings.TrimSpace(*req.Notes)
		}
		if next == repo.AppointmentCancelled {
			now := time.Now().UTC()
			a.CancelledAt = &now
		}
		a.Status = next

		if err := q.UpdateAppointment(ctx, a); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "appointment updated", "appointment_id", out.ID, "status", out.Status, "by", p.UserID)
	return out, nil
}

func (s *appointmentService) Complete(ctx context.Context, p authorize.Principal, id uuid.UUID) (*repo.Appointment, error) {
	return s.complete(ctx, p, id, nil)
}

func (s *appointmentService) Cancel(ctx context.Context, p authorize.Principal, id uuid.UUID) (*repo.Appointment, error) {
	status := repo.AppointmentCancelled
	return s.Update(ctx, p, id, UpdateRequest{Status: &status})
}

// complete runs the status change, the doctor's session counter and the fee
// credit in one transaction. A second completion fails the transition check
// and credits nothing.
func (s *appointmentService) complete(ctx context.Context, p authorize.Principal, id uuid.UUID, notes *string) (*repo.Appointment, error) {
	ctx = reqctx.WithSubject(ctx, reqctx.SubjectAppointment, id)
	var out *repo.Appointment
	err := s.store.RunInTx(ctx, func(ctx context.Context, q repo.Querier) error {
		a, err := s.get(ctx, q, id, true)
		if err != nil {
			return err
		}
		if !p.IsDoctor() || a.DoctorID != p.UserID {
			return ErrForbidden
		}
		if !CanTransition(a.Status, repo.AppointmentCompleted) {
			return ErrInvalidTransition
		}

		now := time.Now().UTC()
		a.Status = repo.AppointmentCompleted
		a.CompletedAt = &now
		if notes != nil {
			a.Notes = strings.TrimSpace(*notes)
		}
		if err := q.UpdateAppointment(ctx, a); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		if err := q.IncrementSessionsCompleted(ctx, a.DoctorID); err != nil {
			return fmt.Errorf("increment sessions: %w", err)
		}

		if a.Fee > 0 {
			desc := fmt.Sprintf("Consultation fee for appointment on %s %s", a.Date, a.Time)
			if _, err := s.ledger.CreditInTx(ctx, q, a.DoctorID, a.Fee, desc, &a.ID); err != nil {
				if errors.Is(err, ledger.ErrAlreadyCredited) {
					return ErrInvalidTransition
				}
				return fmt.Errorf("credit doctor: %w", err)
			}
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "appointment completed", "appointment_id", out.ID, "doctor_id", out.DoctorID, "fee", out.Fee)
	s.emit(ctx, events.AppointmentCompletedSubject(out.ID), out)
	return out, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *appointmentService) get(ctx context.Context, q repo.Querier, id uuid.UUID, forUpdate bool) (*repo.Appointment, error) {
	a, err := q.GetAppointment(ctx, id, forUpdate)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (s *appointmentService) emit(ctx context.Context, subject string, a *repo.Appointment) {
	events.Emit(ctx, s.events, subject, events.AppointmentEvent{
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		Fee:           a.Fee,
	})
}

func participant(p authorize.Principal, a *repo.Appointment) bool {
	return (p.IsDoctor() && a.DoctorID == p.UserID) || (p.IsPatient() && a.PatientID == p.UserID)
}

func canModify(p authorize.Principal, a *repo.Appointment, req UpdateRequest) error {
	switch {
	case p.IsDoctor() && a.DoctorID == p.UserID:
		return nil
	case p.IsPatient() && a.PatientID == p.UserID:
		if req.Status != nil && *req.Status != repo.AppointmentCancelled && *req.Status != repo.AppointmentRescheduled {
			return ErrForbidden
		}
		return nil
	}
	return ErrForbidden
}

func isTerminal(s repo.AppointmentStatus) bool {
	return s == repo.AppointmentCompleted || s == repo.AppointmentCancelled
}

// parseSchedule validates and normalises a YYYY-MM-DD date and HH:MM time.
func parseSchedule(date, clock string) (string, string, error) {
	d, err := time.Parse(dateLayout, strings.TrimSpace(date))
	if err != nil {
		return "", "", ErrInvalidSchedule
	}
	c, err := time.Parse(timeLayout, strings.TrimSpace(clock))
	if err != nil {
		return "", "", ErrInvalidSchedule
	}
	return d.Format(dateLayout), c.Format(timeLayout), nil
}
