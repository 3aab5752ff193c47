package appointment

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echohealth/echo_backend/internal/repo"
	"github.com/echohealth/echo_backend/internal/service/ledger"
	"github.com/echohealth/echo_backend/pkg/authorize"
	"github.com/echohealth/echo_backend/pkg/events"
)

type recorder struct {
	mu       sync.Mutex
	subjects []string
}

func (r *recorder) Publish(_ context.Context, subject string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	return nil
}

type fixture struct {
	svc     Service
	ledger  ledger.Service
	store   *repo.Memory
	events  *recorder
	doctor  authorize.Principal
	patient authorize.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := repo.NewMemory()

	doc := &repo.Account{
		Email: "doc@example.com", Role: repo.RoleDoctor, ApprovalState: repo.ApprovalApproved,
		FullName: "Dr. Wanjiru Kamau", ConsultationFee: 1500,
	}
	pat := &repo.Account{Email: "pat@example.com", Role: repo.RolePatient, ApprovalState: repo.ApprovalApproved}
	require.NoError(t, store.CreateAccount(ctx, doc))
	require.NoError(t, store.CreateAccount(ctx, pat))

	rec := &recorder{}
	l := ledger.New(store, nil, nil, ledger.DefaultConfig())
	return &fixture{
		svc:     New(store, l, rec),
		ledger:  l,
		store:   store,
		events:  rec,
		doctor:  authorize.Principal{UserID: doc.ID, Role: authorize.RoleDoctor},
		patient: authorize.Principal{UserID: pat.ID, Role: authorize.RolePatient},
	}
}

func (f *fixture) book(t *testing.T) *repo.Appointment {
	t.Helper()
	a, err := f.svc.Book(context.Background(), f.patient, BookRequest{
		DoctorID: f.doctor.UserID, Date: "2026-11-02", Time: "09:30", Notes: " first visit ",
	})
	require.NoError(t, err)
	return a
}

func statusPtr(s repo.AppointmentStatus) *repo.AppointmentStatus { return &s }
func strPtr(s string) *string                                      { return &s }

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to repo.AppointmentStatus
		want     bool
	}{
		{repo.AppointmentScheduled, repo.AppointmentRescheduled, true},
		{repo.AppointmentScheduled, repo.AppointmentCompleted, true},
		{repo.AppointmentScheduled, repo.AppointmentCancelled, true},
		{repo.AppointmentScheduled, repo.AppointmentScheduled, false},
		{repo.AppointmentRescheduled, repo.AppointmentRescheduled, true},
		{repo.AppointmentRescheduled, repo.AppointmentCompleted, true},
		{repo.AppointmentCompleted, repo.AppointmentCancelled, false},
		{repo.AppointmentCancelled, repo.AppointmentRescheduled, false},
		{repo.AppointmentCancelled, repo.AppointmentCompleted, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.book(t)
	assert.Equal(t, repo.AppointmentScheduled, a.Status)
	assert.Equal(t, int64(1500), a.Fee)
	assert.Equal(t, "first visit", a.Notes)
	assert.Equal(t, []string{events.AppointmentCreatedSubject(a.ID)}, f.events.subjects)

	_, err := f.svc.Book(ctx, f.patient, BookRequest{DoctorID: f.doctor.UserID, Date: "02/11/2026", Time: "09:30"})
	assert.ErrorIs(t, err, ErrInvalidSchedule)
	_, err = f.svc.Book(ctx, f.patient, BookRequest{DoctorID: f.doctor.UserID, Date: "2026-11-02", Time: "25:00"})
	assert.ErrorIs(t, err, ErrInvalidSchedule)
	_, err = f.svc.Book(ctx, f.patient, BookRequest{DoctorID: repo.NewID(), Date: "2026-11-02", Time: "09:30"})
	assert.ErrorIs(t, err, ErrDoctorUnavailable)
	_, err = f.svc.Book(ctx, f.doctor, BookRequest{DoctorID: f.doctor.UserID, Date: "2026-11-02", Time: "09:30"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestBook_PendingDoctorUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := &repo.Account{Email: "new@example.com", Role: repo.RoleDoctor, ApprovalState: repo.ApprovalPending}
	require.NoError(t, f.store.CreateAccount(ctx, pending))

	_, err := f.svc.Book(ctx, f.patient, BookRequest{DoctorID: pending.ID, Date: "2026-11-02", Time: "10:00"})
	assert.ErrorIs(t, err, ErrDoctorUnavailable)
}

func TestGetAndListScopedToParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t)

	stranger := authorize.Principal{UserID: repo.NewID(), Role: authorize.RolePatient}
	_, err := f.svc.Get(ctx, stranger, a.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Get(ctx, f.doctor, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	for _, p := range []authorize.Principal{f.doctor, f.patient, {UserID: repo.NewID(), Role: authorize.RoleAdmin}} {
		got, err := f.svc.Get(ctx, p, a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)

		list, err := f.svc.List(ctx, p, ListRequest{})
		require.NoError(t, err)
		assert.Len(t, list, 1)
	}

	list, err := f.svc.List(ctx, stranger, ListRequest{})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.svc.List(ctx, f.patient, ListRequest{Status: "LATE"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestUpdate_RescheduleAndNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t)

	got, err := f.svc.Update(ctx, f.patient, a.ID, UpdateRequest{Time: strPtr("14:00")})
	require.NoError(t, err)
	assert.Equal(t, repo.AppointmentRescheduled, got.Status)
	assert.Equal(t, "2026-11-02", got.Date)
	assert.Equal(t, "14:00", got.Time)

	got, err = f.svc.Update(ctx, f.doctor, a.ID, UpdateRequest{Notes: strPtr("bring lab results")})
	require.NoError(t, err)
	assert.Equal(t, repo.AppointmentRescheduled, got.Status)
	assert.Equal(t, "bring lab results", got.Notes)

	_, err = f.svc.Update(ctx, f.doctor, a.ID, UpdateRequest{Date: strPtr("tomorrow")})
	assert.ErrorIs(t, err, ErrInvalidSchedule)
	_, err = f.svc.Update(ctx, f.doctor, a.ID, UpdateRequest{})
	assert.ErrorIs(t, err, ErrNothingToUpdate)
	_, err = f.svc.Update(ctx, f.doctor, a.ID, UpdateRequest{Status: statusPtr(repo.AppointmentScheduled)})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdate_PatientCannotComplete(t *testing.T) {
	f := newFixture(t)
	a := f.book(t)

	_, err := f.svc.Update(context.Background(), f.patient, a.ID, UpdateRequest{Status: statusPtr(repo.AppointmentCompleted)})
	assert.ErrorIs(t, err, ErrForbidden)

	admin := authorize.Principal{UserID: repo.NewID(), Role: authorize.RoleAdmin}
	_, err = f.svc.Cancel(context.Background(), admin, a.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCancelledIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t)

	got, err := f.svc.Cancel(ctx, f.patient, a.ID)
	require.NoError(t, err)
	assert.Equal(t, repo.AppointmentCancelled, got.Status)
	assert.NotNil(t, got.CancelledAt)

	_, err = f.svc.Update(ctx, f.doctor, a.ID, UpdateRequest{Status: statusPtr(repo.AppointmentRescheduled)})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.Update(ctx, f.doctor, a.ID, UpdateRequest{Notes: strPtr("late note")})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.Complete(ctx, f.doctor, a.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	l, err := f.ledger.GetLedger(ctx, f.doctor.UserID, 0)
	require.NoError(t, err)
	assert.Zero(t, l.Balance)
}

func TestComplete_CreditsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t)

	_, err := f.svc.Complete(ctx, f.patient, a.ID)
	require.ErrorIs(t, err, ErrForbidden)

	got, err := f.svc.Update(ctx, f.doctor, a.ID, UpdateRequest{Status: statusPtr(repo.AppointmentCompleted)})
	require.NoError(t, err)
	assert.Equal(t, repo.AppointmentCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	_, err = f.svc.Complete(ctx, f.doctor, a.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	l, err := f.ledger.GetLedger(ctx, f.doctor.UserID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), l.Balance)
	require.Len(t, l.Transactions, 1)
	require.NotNil(t, l.Transactions[0].AppointmentID)
	assert.Equal(t, a.ID, *l.Transactions[0].AppointmentID)

	doc, err := f.store.GetAccount(ctx, f.doctor.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.SessionsCompleted)
	assert.Contains(t, f.events.subjects, events.AppointmentCompletedSubject(a.ID))
}

func TestComplete_ConcurrentCreditsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Complete(ctx, f.doctor, a.ID)
		}()
	}
	wg.Wait()

	l, err := f.ledger.GetLedger(ctx, f.doctor.UserID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), l.Balance)
	r, err := f.ledger.Audit(ctx, f.doctor.UserID)
	require.NoError(t, err)
	assert.Zero(t, r.Drift)
}
