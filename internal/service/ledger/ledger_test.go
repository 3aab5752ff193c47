package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echohealth/echo_backend/internal/repo"
	"github.com/echohealth/echo_backend/pkg/payout"
)

type fakeGateway struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, reference string) (string, error)
}

func (g *fakeGateway) RequestPayout(ctx context.Context, phone string, amount int64, reference string) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, reference)
	g.mu.Unlock()
	if g.fn == nil {
		return "AG_" + reference[:8], nil
	}
	return g.fn(ctx, reference)
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func newLedger(t *testing.T, gw *fakeGateway) (Service, *repo.Memory) {
	t.Helper()
	store := repo.NewMemory()
	cfg := DefaultConfig()
	cfg.PayoutTimeout = 50 * time.Millisecond
	return New(store, gw, nil, cfg), store
}

func seedBalance(t *testing.T, svc Service, amount int64) uuid.UUID {
	t.Helper()
	owner := repo.NewID()
	if amount > 0 {
		_, err := svc.Credit(context.Background(), owner, amount, "seed")
		require.NoError(t, err)
	}
	return owner
}

func balanceOf(t *testing.T, svc Service, owner uuid.UUID) int64 {
	t.Helper()
	l, err := svc.GetLedger(context.Background(), owner, 0)
	require.NoError(t, err)
	return l.Balance
}

func assertNoDrift(t *testing.T, svc Service, owner uuid.UUID) {
	t.Helper()
	r, err := svc.Audit(context.Background(), owner)
	require.NoError(t, err)
	assert.Zero(t, r.Drift, "balance %d expected %d", r.Balance, r.Expected)
}

const phone = "0712345678"

func TestWithdraw_Validation(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newLedger(t, gw)
	owner := seedBalance(t, svc, 1000)
	ctx := context.Background()

	_, err := svc.Withdraw(ctx, owner, 0, phone)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Withdraw(ctx, owner, 199, phone)
	require.ErrorIs(t, err, ErrBelowMinimum)

	_, err = svc.Withdraw(ctx, owner, 500, "12")
	require.ErrorIs(t, err, ErrInvalidDestination)

	assert.Zero(t, gw.count())
	assert.Equal(t, int64(1000), balanceOf(t, svc, owner))
}

func TestWithdraw_InsufficientBalanceLeavesNoTrace(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newLedger(t, gw)
	owner := seedBalance(t, svc, 100)

	_, err := svc.Withdraw(context.Background(), owner, 250, phone)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	l, err := svc.GetLedger(context.Background(), owner, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(100), l.Balance)
	require.Len(t, l.Transactions, 1)
	assert.Equal(t, repo.TxCredit, l.Transactions[0].Type)
	assert.Zero(t, gw.count())
}

func TestWithdraw_InsufficientBelowDefaultMinimum(t *testing.T) {
	gw := &fakeGateway{}
	store := repo.NewMemory()
	cfg := DefaultConfig()
	cfg.MinWithdrawal = 1
	svc := New(store, gw, nil, cfg)
	owner := seedBalance(t, svc, 100)
	ctx := context.Background()

	res, err := svc.Withdraw(ctx, owner, 150, phone)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Nil(t, res)

	l, err := svc.GetLedger(ctx, owner, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(100), l.Balance)

	withdrawals, err := store.ListTransactions(ctx, repo.TransactionFilter{WalletID: &l.WalletID, Type: repo.TxWithdrawal})
	require.NoError(t, err)
	assert.Empty(t, withdrawals)
	assert.Zero(t, gw.count())
	assertNoDrift(t, svc, owner)
}

func TestWithdraw_Completed(t *testing.T) {
	gw := &fakeGateway{fn: func(context.Context, string) (string, error) { return "AG_123", nil }}
	svc, store := newLedger(t, gw)
	owner := seedBalance(t, svc, 2000)

	res, err := svc.Withdraw(context.Background(), owner, 500, phone)
	require.NoError(t, err)
	assert.Equal(t, repo.TxCompleted, res.Status)
	assert.Equal(t, "AG_123", res.ExternalReference)
	assert.Equal(t, int64(1500), balanceOf(t, svc, owner))

	tx, err := store.GetTransaction(context.Background(), res.TransactionID, false)
	require.NoError(t, err)
	assert.Equal(t, repo.TxWithdrawal, tx.Type)
	assert.Equal(t, "254712345678", tx.Destination)
	assert.Contains(t, tx.Description, "AG_123")
	assert.Equal(t, []string{res.TransactionID.String()}, gw.calls)
	assertNoDrift(t, svc, owner)
}

func TestWithdraw_RejectedThenReversedOnce(t *testing.T) {
	gw := &fakeGateway{fn: func(context.Context, string) (string, error) {
		return "", payout.Rejected("2001", "The initiator information is invalid.", nil)
	}}
	svc, _ := newLedger(t, gw)
	owner := seedBalance(t, svc, 1000)
	ctx := context.Background()

	res, err := svc.Withdraw(ctx, owner, 400, phone)
	require.ErrorIs(t, err, payout.ErrGatewayRejected)
	require.NotNil(t, res)
	assert.Equal(t, repo.TxFailed, res.Status)
	assert.Equal(t, int64(600), balanceOf(t, svc, owner))
	assertNoDrift(t, svc, owner)

	_, err = svc.RetryWithdrawal(ctx, res.TransactionID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	credit, err := svc.ReverseWithdrawal(ctx, res.TransactionID)
	require.NoError(t, err)
	require.NotNil(t, credit.ReversesID)
	assert.Equal(t, res.TransactionID, *credit.ReversesID)
	assert.Equal(t, int64(1000), balanceOf(t, svc, owner))

	_, err = svc.ReverseWithdrawal(ctx, res.TransactionID)
	require.ErrorIs(t, err, ErrAlreadyReversed)
	assert.Equal(t, int64(1000), balanceOf(t, svc, owner))
	assertNoDrift(t, svc, owner)
}

func TestWithdraw_TimeoutStaysPendingThenRetry(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	gw := &fakeGateway{fn: func(ctx context.Context, ref string) (string, error) {
		if fail.Load() {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "AG_RETRY", nil
	}}
	svc, _ := newLedger(t, gw)
	owner := seedBalance(t, svc, 1000)
	ctx := context.Background()

	res, err := svc.Withdraw(ctx, owner, 300, phone)
	require.ErrorIs(t, err, payout.ErrGatewayUnavailable)
	assert.Equal(t, repo.TxPending, res.Status)
	assert.Equal(t, int64(700), balanceOf(t, svc, owner))

	pending, err := svc.ListWithdrawals(ctx, WithdrawalFilter{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, res.TransactionID, pending[0].ID)

	_, err = svc.ReverseWithdrawal(ctx, res.TransactionID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	fail.Store(false)
	retried, err := svc.RetryWithdrawal(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, repo.TxCompleted, retried.Status)
	assert.Equal(t, "AG_RETRY", retried.ExternalReference)
	assert.Equal(t, []string{res.TransactionID.String(), res.TransactionID.String()}, gw.calls)
	assert.Equal(t, int64(700), balanceOf(t, svc, owner))
	assertNoDrift(t, svc, owner)
}

func TestRetryWithdrawal_RefusedWhileFirstAttemptMayBeInFlight(t *testing.T) {
	gw := &fakeGateway{fn: func(context.Context, string) (string, error) {
		return "", payout.Unavailable("", "", errors.New("connection reset"))
	}}
	store := repo.NewMemory()
	cfg := DefaultConfig()
	cfg.PayoutTimeout = time.Hour
	svc := New(store, gw, nil, cfg)
	owner := seedBalance(t, svc, 1000)
	ctx := context.Background()

	res, err := svc.Withdraw(ctx, owner, 300, phone)
	require.ErrorIs(t, err, payout.ErrGatewayUnavailable)
	require.Equal(t, repo.TxPending, res.Status)

	_, err = svc.RetryWithdrawal(ctx, res.TransactionID)
	require.ErrorIs(t, err, ErrPayoutInFlight)
	assert.Equal(t, 1, gw.count())

	tx, err := store.GetTransaction(ctx, res.TransactionID, false)
	require.NoError(t, err)
	assert.Equal(t, repo.TxPending, tx.Status)
}

func TestWithdraw_ClientCancellationDoesNotAbortPayout(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newLedger(t, gw)
	owner := seedBalance(t, svc, 1000)

	// The client goes away once the debit has committed.
	ctx, cancel := context.WithCancel(context.Background())
	gw.fn = func(c context.Context, _ string) (string, error) {
		cancel()
		if err := c.Err(); err != nil {
			return "", err
		}
		return "AG_OK", nil
	}

	res, err := svc.Withdraw(ctx, owner, 500, phone)
	require.NoError(t, err)
	assert.Equal(t, repo.TxCompleted, res.Status)
	assertNoDrift(t, svc, owner)
}

func TestWithdraw_ConcurrentNeverOverdraws(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newLedger(t, gw)
	owner := seedBalance(t, svc, 300)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Withdraw(context.Background(), owner, 200, phone)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, ErrInsufficientBalance):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(1), rejected.Load())
	assert.Equal(t, int64(100), balanceOf(t, svc, owner))
	assertNoDrift(t, svc, owner)
}

func TestResolveWithdrawal(t *testing.T) {
	gw := &fakeGateway{fn: func(context.Context, string) (string, error) {
		return "", payout.Unavailable("500", "boom", nil)
	}}
	svc, _ := newLedger(t, gw)
	owner := seedBalance(t, svc, 1000)
	ctx := context.Background()

	res, err := svc.Withdraw(ctx, owner, 300, phone)
	require.ErrorIs(t, err, payout.ErrGatewayUnavailable)

	_, err = svc.ResolveWithdrawal(ctx, res.TransactionID, repo.TxPending, "")
	require.ErrorIs(t, err, ErrInvalidOutcome)
	_, err = svc.ResolveWithdrawal(ctx, res.TransactionID, repo.TxCompleted, "")
	require.ErrorIs(t, err, ErrReferenceRequired)

	tx, err := svc.ResolveWithdrawal(ctx, res.TransactionID, repo.TxCompleted, "AG_MANUAL")
	require.NoError(t, err)
	assert.Equal(t, repo.TxCompleted, tx.Status)
	assert.Equal(t, "AG_MANUAL", tx.ExternalReference)

	_, err = svc.ResolveWithdrawal(ctx, res.TransactionID, repo.TxFailed, "")
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.ResolveWithdrawal(ctx, repo.NewID(), repo.TxFailed, "")
	require.ErrorIs(t, err, ErrTransactionNotFound)
	assertNoDrift(t, svc, owner)
}

func TestCreditInTx_AppointmentOnce(t *testing.T) {
	svc, store := newLedger(t, &fakeGateway{})
	owner := repo.NewID()
	appt := repo.NewID()
	ctx := context.Background()

	credit := func() error {
		return store.RunInTx(ctx, func(ctx context.Context, q repo.Querier) error {
			_, err := svc.CreditInTx(ctx, q, owner, 1500, "Consultation fee", &appt)
			return err
		})
	}
	require.NoError(t, credit())
	require.ErrorIs(t, credit(), ErrAlreadyCredited)
	assert.Equal(t, int64(1500), balanceOf(t, svc, owner))
}

func TestRefund(t *testing.T) {
	svc, _ := newLedger(t, &fakeGateway{})
	owner := seedBalance(t, svc, 1000)
	ctx := context.Background()
	appt := repo.NewID()

	tx, err := svc.Refund(ctx, owner, 400, "", &appt)
	require.NoError(t, err)
	assert.Equal(t, repo.TxRefund, tx.Type)
	assert.Nil(t, tx.AppointmentID)
	assert.Contains(t, tx.Description, appt.String())

	_, err = svc.Refund(ctx, owner, 700, "too much", nil)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, int64(600), balanceOf(t, svc, owner))
	assertNoDrift(t, svc, owner)
}

func TestRefund_LongDescriptionFitsColumn(t *testing.T) {
	svc, _ := newLedger(t, &fakeGateway{})
	owner := seedBalance(t, svc, 1000)
	appt := repo.NewID()

	tx, err := svc.Refund(context.Background(), owner, 100, strings.Repeat("é", repo.MaxDescriptionLen), &appt)
	require.NoError(t, err)
	assert.Equal(t, repo.MaxDescriptionLen, utf8.RuneCountInString(tx.Description))
	assert.True(t, strings.HasSuffix(tx.Description, " (appointment "+appt.String()+")"))

	short, err := svc.Refund(context.Background(), owner, 100, "no show", &appt)
	require.NoError(t, err)
	assert.Equal(t, "no show (appointment "+appt.String()+")", short.Description)
}

func TestGetLedger_CreatesEmptyWalletAndClampsLimit(t *testing.T) {
	svc, _ := newLedger(t, &fakeGateway{})
	owner := repo.NewID()
	ctx := context.Background()

	l, err := svc.GetLedger(ctx, owner, 0)
	require.NoError(t, err)
	assert.Zero(t, l.Balance)
	assert.Equal(t, "KES", l.Currency)
	assert.NotNil(t, l.Transactions)
	assert.Empty(t, l.Transactions)

	for i := 0; i < 120; i++ {
		_, err := svc.Credit(ctx, owner, 1, "tip")
		require.NoError(t, err)
	}
	l, err = svc.GetLedger(ctx, owner, 0)
	require.NoError(t, err)
	assert.Len(t, l.Transactions, 20)
	l, err = svc.GetLedger(ctx, owner, 500)
	require.NoError(t, err)
	assert.Len(t, l.Transactions, 100)
	assert.Equal(t, int64(120), l.Balance)
}

func TestAudit_UnknownOwner(t *testing.T) {
	svc, _ := newLedger(t, &fakeGateway{})
	_, err := svc.Audit(context.Background(), repo.NewID())
	require.ErrorIs(t, err, ErrWalletNotFound)
}
