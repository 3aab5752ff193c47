package app

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echohealth/echo_backend/internal/repo"
	"github.com/echohealth/echo_backend/pkg/email"
	"github.com/echohealth/echo_backend/pkg/events"
)

type fakeMailer struct {
	enabled bool
	mu      sync.Mutex
	sent    []email.Message
}

func (f *fakeMailer) Enabled() bool { return f.enabled }

func (f *fakeMailer) Send(_ context.Context, m email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
	return nil
}

func newNotifier(t *testing.T, enabled bool) (*notifier, *fakeMailer, *repo.Account) {
	t.Helper()
	store := repo.NewMemory()
	doc := &repo.Account{
		Email: "amina@example.com", Role: repo.RoleDoctor,
		ApprovalState: repo.ApprovalPending, FullName: "Dr. Amina Otieno",
	}
	require.NoError(t, store.CreateAccount(context.Background(), doc))

	m := &fakeMailer{enabled: enabled}
	return &notifier{
		store:    store,
		mail:     m,
		currency: "KES",
		cfg: email.Config{
			AppName: "Echo Health",
			BaseURL: "https://echo.example.com/",
			Admins:  []string{"ops@example.com"},
		},
	}, m, doc
}

func TestNotifier_DoctorRegisteredMailsAdmins(t *testing.T) {
	n, m, doc := newNotifier(t, true)

	n.onDoctorRegistered(context.Background(), events.DoctorRegistered{DoctorID: doc.ID, Email: doc.Email, FullName: doc.FullName})

	require.Len(t, m.sent, 1)
	assert.Equal(t, email.KindDoctorRegistered, m.sent[0].Kind)
	assert.Equal(t, []string{"ops@example.com"}, m.sent[0].To)
	assert.Contains(t, m.sent[0].TextBody, "https://echo.example.com/admin/applications")
}

func TestNotifier_ApprovalChanged(t *testing.T) {
	n, m, doc := newNotifier(t, true)
	ctx := context.Background()

	n.onApprovalChanged(ctx, events.DoctorApprovalChanged{DoctorID: doc.ID, ApprovalState: string(repo.ApprovalPending)})
	assert.Empty(t, m.sent)

	n.onApprovalChanged(ctx, events.DoctorApprovalChanged{DoctorID: repo.NewID(), ApprovalState: string(repo.ApprovalApproved)})
	assert.Empty(t, m.sent)

	n.onApprovalChanged(ctx, events.DoctorApprovalChanged{DoctorID: doc.ID, ApprovalState: string(repo.ApprovalApproved)})
	require.Len(t, m.sent, 1)
	assert.Equal(t, []string{doc.Email}, m.sent[0].To)
}

func TestNotifier_WithdrawalOutcome(t *testing.T) {
	n, m, doc := newNotifier(t, true)

	n.onWithdrawalOutcome(context.Background(), events.WithdrawalOutcome{
		TransactionID: repo.NewID(), OwnerID: doc.ID, Amount: 500,
		Status: string(repo.TxCompleted), ExternalReference: "AG_2026_XYZ",
	})

	require.Len(t, m.sent, 1)
	assert.Equal(t, []string{doc.Email}, m.sent[0].To)
	assert.Contains(t, m.sent[0].TextBody, "KES 500")
}

func TestNotifier_DisabledMailerSendsNothing(t *testing.T) {
	n, m, doc := newNotifier(t, false)

	n.onWithdrawalOutcome(context.Background(), events.WithdrawalOutcome{OwnerID: doc.ID, Amount: 1, Status: string(repo.TxFailed)})
	assert.Empty(t, m.sent)
}
