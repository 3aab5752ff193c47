package repo

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
)

var appointmentColumns = []string{
	"id", "doctor_id", "patient_id", "date", "time", "status", "notes", "fee",
	"completed_at", "cancelled_at", "created_at", "updated_at",
}

func scanAppointment(rows *sql.Rows) (*Appointment, error) {
	var (
		a                    Appointment
		completed, cancelled stdsql.NullTime
	)
	if err := rows.Scan(
		&a.ID, &a.DoctorID, &a.PatientID, &a.Date, &a.Time, &a.Status, &a.Notes, &a.Fee,
		&completed, &cancelled, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan appointment: %w", err)
	}
	if completed.Valid {
		a.CompletedAt = &completed.Time
	}
	if cancelled.Valid {
		a.CancelledAt = &cancelled.Time
	}
	return &a, nil
}

func (q *sqlQuerier) CreateAppointment(ctx context.Context, a *Appointment) error {
	now := time.Now().UTC()
	if a.ID == uuid.Nil {
		a.ID = NewID()
	}
	if a.Status == "" {
		a.Status = AppointmentScheduled
	}
	a.CreatedAt, a.UpdatedAt = now, now

	_, err := q.exec(ctx, builder().Insert(tableAppointments).
		Columns(appointmentColumns...).
		Values(
			a.ID, a.DoctorID, a.PatientID, a.Date, a.Time, a.Status, a.Notes, a.Fee,
			a.CompletedAt, a.CancelledAt, a.CreatedAt, a.UpdatedAt,
		))
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (q *sqlQuerier) GetAppointment(ctx context.Context, id uuid.UUID, forUpdate bool) (*Appointment, error) {
	b := builder()
	t := b.Table(tableAppointments)
	s := q.lock(b.Select(t.Columns(appointmentColumns...)...).From(t).Where(sql.EQ(t.C("id"), id)), forUpdate)

	var out *Appointment
	err := q.query(ctx, s, func(rows *sql.Rows) (err error) {
		out, err = scanAppointment(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (q *sqlQuerier) ListAppointments(ctx context.Context, f AppointmentFilter) ([]*Appointment, error) {
	b := builder()
	t := b.Table(tableAppointments)

	var ps []*sql.Predicate
	if f.DoctorID != nil {
		ps = append(ps, sql.EQ(t.C("doctor_id"), *f.DoctorID))
	}
	if f.PatientID != nil {
		ps = append(ps, sql.EQ(t.C("patient_id"), *f.PatientID))
	}
	if f.Status != "" {
		ps = append(ps, sql.EQ(t.C("status"), f.Status))
	}

	s := whereAll(b.Select(t.Columns(appointmentColumns...)...).From(t), ps).
		OrderBy(sql.Desc(t.C("date")), sql.Desc(t.C("time")), sql.Desc(t.C("id")))
	if f.Limit > 0 {
		s = s.Limit(f.Limit)
	}
	if f.Offset > 0 {
		s = s.Offset(f.Offset)
	}

	var out []*Appointment
	err := q.query(ctx, s, func(rows *sql.Rows) error {
		a, err := scanAppointment(rows)
		if err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return out, nil
}

// UpdateAppointment persists the mutable fields of a: schedule, status,
// notes and the terminal timestamps.
func (q *sqlQuerier) UpdateAppointment(ctx context.Context, a *Appointment) error {
	a.UpdatedAt = time.Now().UTC()
	u := builder().Update(tableAppointments).
		Set("date", a.Date).
		Set("time", a.Time).
		Set("status", a.Status).
		Set("notes", a.Notes).
		Set("completed_at", a.CompletedAt).
		Set("cancelled_at", a.CancelledAt).
		Set("updated_at", a.UpdatedAt).
		Where(sql.EQ("id", a.ID))
	return expectOne(q.exec(ctx, u))
}
