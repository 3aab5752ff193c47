package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDoctorWallet(t *testing.T, m *Memory, balance int64) (*Account, *Wallet) {
	t.Helper()
	ctx := context.Background()
	doc := &Account{Email: uuid.NewString() + "@example.com", Role: RoleDoctor, ApprovalState: ApprovalApproved}
	require.NoError(t, m.CreateAccount(ctx, doc))
	require.NoError(t, m.CreateWallet(ctx, &Wallet{OwnerID: doc.ID, Balance: balance}))
	w, err := m.GetWallet(ctx, doc.ID, false)
	require.NoError(t, err)
	return doc, w
}

func TestMemory_AccountEmailUnique(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.CreateAccount(ctx, &Account{Email: "Doc@Example.com", Role: RoleDoctor}))
	err := m.CreateAccount(ctx, &Account{Email: "doc@example.com ", Role: RolePatient})
	require.ErrorIs(t, err, ErrDuplicate)

	a, err := m.GetAccountByEmail(ctx, "DOC@example.com")
	require.NoError(t, err)
	assert.Equal(t, RoleDoctor, a.Role)
}

func TestMemory_CreateWalletIsIdempotent(t *testing.T) {
	m := NewMemory()
	doc, w := seedDoctorWallet(t, m, 100)

	require.NoError(t, m.CreateWallet(context.Background(), &Wallet{OwnerID: doc.ID}))
	again, err := m.GetWallet(context.Background(), doc.ID, false)
	require.NoError(t, err)
	assert.Equal(t, w.ID, again.ID)
	assert.Equal(t, int64(100), again.Balance)
}

func TestMemory_AdjustBalanceNeverNegative(t *testing.T) {
	m := NewMemory()
	doc, w := seedDoctorWallet(t, m, 100)
	ctx := context.Background()

	require.ErrorIs(t, m.AdjustBalance(ctx, w.ID, -150), ErrConflict)
	require.NoError(t, m.AdjustBalance(ctx, w.ID, -100))

	got, err := m.GetWallet(ctx, doc.ID, false)
	require.NoError(t, err)
	assert.Zero(t, got.Balance)
}

func TestMemory_RunInTxRollsBack(t *testing.T) {
	m := NewMemory()
	doc, w := seedDoctorWallet(t, m, 500)
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.RunInTx(ctx, func(ctx context.Context, q Querier) error {
		if err := q.AdjustBalance(ctx, w.ID, -200); err != nil {
			return err
		}
		if err := q.CreateTransaction(ctx, &Transaction{
			WalletID: w.ID, Amount: 200, Type: TxWithdrawal, Status: TxPending,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := m.GetWallet(ctx, doc.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.Balance)

	txs, err := m.ListTransactions(ctx, TransactionFilter{WalletID: &w.ID})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestMemory_TransactionUniqueLinks(t *testing.T) {
	m := NewMemory()
	_, w := seedDoctorWallet(t, m, 0)
	ctx := context.Background()
	appt, reversed := NewID(), NewID()

	require.NoError(t, m.CreateTransaction(ctx, &Transaction{WalletID: w.ID, Amount: 10, Type: TxCredit, Status: TxCompleted, AppointmentID: &appt}))
	err := m.CreateTransaction(ctx, &Transaction{WalletID: w.ID, Amount: 10, Type: TxCredit, Status: TxCompleted, AppointmentID: &appt})
	require.ErrorIs(t, err, ErrDuplicate)

	require.NoError(t, m.CreateTransaction(ctx, &Transaction{WalletID: w.ID, Amount: 10, Type: TxCredit, Status: TxCompleted, ReversesID: &reversed}))
	err = m.CreateTransaction(ctx, &Transaction{WalletID: w.ID, Amount: 10, Type: TxCredit, Status: TxCompleted, ReversesID: &reversed})
	require.ErrorIs(t, err, ErrDuplicate)

	err = m.CreateTransaction(ctx, &Transaction{WalletID: w.ID, Amount: 0, Type: TxCredit, Status: TxCompleted})
	require.Error(t, err)
}

func TestMemory_ListTransactionsNewestFirst(t *testing.T) {
	m := NewMemory()
	_, w := seedDoctorWallet(t, m, 0)
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 1; i <= 5; i++ {
		tx := &Transaction{WalletID: w.ID, Amount: int64(i), Type: TxCredit, Status: TxCompleted}
		require.NoError(t, m.CreateTransaction(ctx, tx))
		ids = append(ids, tx.ID)
	}

	txs, err := m.ListTransactions(ctx, TransactionFilter{WalletID: &w.ID, Limit: 3})
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, ids[4], txs[0].ID)
	assert.Equal(t, ids[3], txs[1].ID)
	assert.Equal(t, ids[2], txs[2].ID)
}

func TestMemory_SetTransactionOutcomeOnce(t *testing.T) {
	m := NewMemory()
	_, w := seedDoctorWallet(t, m, 0)
	ctx := context.Background()

	tx := &Transaction{WalletID: w.ID, Amount: 300, Type: TxWithdrawal, Status: TxPending}
	require.NoError(t, m.CreateTransaction(ctx, tx))

	require.NoError(t, m.SetTransactionOutcome(ctx, tx.ID, TransactionOutcome{Status: TxCompleted, ExternalReference: "AG_1"}))
	err := m.SetTransactionOutcome(ctx, tx.ID, TransactionOutcome{Status: TxFailed})
	require.ErrorIs(t, err, ErrConflict)

	got, err := m.GetTransaction(ctx, tx.ID, false)
	require.NoError(t, err)
	assert.Equal(t, TxCompleted, got.Status)
	assert.Equal(t, "AG_1", got.ExternalReference)
}

func TestMemory_AppointmentLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	doc, _ := seedDoctorWallet(t, m, 0)
	pat := &Account{Email: "pat@example.com", Role: RolePatient, ApprovalState: ApprovalApproved}
	require.NoError(t, m.CreateAccount(ctx, pat))

	a := &Appointment{DoctorID: doc.ID, PatientID: pat.ID, Date: "2026-03-01", Time: "09:30", Fee: 1500}
	require.NoError(t, m.CreateAppointment(ctx, a))
	assert.Equal(t, AppointmentScheduled, a.Status)

	a.Status = AppointmentCancelled
	require.NoError(t, m.UpdateAppointment(ctx, a))

	got, err := m.GetAppointment(ctx, a.ID, false)
	require.NoError(t, err)
	assert.Equal(t, AppointmentCancelled, got.Status)

	list, err := m.ListAppointments(ctx, AppointmentFilter{PatientID: &pat.ID})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = m.ListAppointments(ctx, AppointmentFilter{DoctorID: &pat.ID})
	require.NoError(t, err)
	assert.Empty(t, list)
}
