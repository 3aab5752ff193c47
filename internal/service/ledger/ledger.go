package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/echohealth/echo_backend/internal/repo"
	"github.com/echohealth/echo_backend/pkg/events"
	"github.com/echohealth/echo_backend/pkg/mpesa"
	"github.com/echohealth/echo_backend/pkg/payout"
	"github.com/echohealth/echo_backend/pkg/reqctx"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type WithdrawResult struct {
	TransactionID     uuid.UUID              `json:"transaction_id"`
	Status            repo.TransactionStatus `json:"status"`
	Amount            int64                  `json:"amount"`
	ExternalReference string                 `json:"external_reference,omitempty"`
}

type Ledger struct {
	WalletID     uuid.UUID           `json:"wallet_id"`
	Balance      int64               `json:"balance"`
	Currency     string              `json:"currency"`
	Transactions []*repo.Transaction `json:"transactions"`
}

type WithdrawalFilter struct {
	Status repo.TransactionStatus // defaults to PENDING
	// OlderThan keeps only withdrawals created at least this long ago.
	OlderThan time.Duration
	Limit     int
}

type AuditReport struct {
	OwnerID  uuid.UUID `json:"owner_id"`
	WalletID uuid.UUID `json:"wallet_id"`
	Balance  int64     `json:"balance"`
	Expected int64     `json:"expected"`
	Drift    int64     `json:"drift"`
}

// ---------------------------------------------------------------------------
// Service interface
// ---------------------------------------------------------------------------

type Service interface {
	Credit(ctx context.Context, ownerID uuid.UUID, amount int64, description string) (*repo.Transaction, error)
	// CreditInTx credits within the caller's store transaction.
	CreditInTx(ctx context.Context, q repo.Querier, ownerID uuid.UUID, amount int64, description string, appointmentID *uuid.UUID) (*repo.Transaction, error)

	// Withdraw debits the wallet and requests a payout. When the gateway
	// fails the result is still returned alongside an error wrapping
	// payout.ErrGatewayRejected or payout.ErrGatewayUnavailable.
	Withdraw(ctx context.Context, ownerID uuid.UUID, amount int64, phone string) (*WithdrawResult, error)
	Refund(ctx context.Context, ownerID uuid.UUID, amount int64, description string, appointmentID *uuid.UUID) (*repo.Transaction, error)
	GetLedger(ctx context.Context, ownerID uuid.UUID, limit int) (*Ledger, error)

	RetryWithdrawal(ctx context.Context, txID uuid.UUID) (*WithdrawResult, error)
	ReverseWithdrawal(ctx context.Context, txID uuid.UUID) (*repo.Transaction, error)
	ResolveWithdrawal(ctx context.Context, txID uuid.UUID, outcome repo.TransactionStatus, reference string) (*repo.Transaction, error)
	ListWithdrawals(ctx context.Context, f WithdrawalFilter) ([]*repo.Transaction, error)
	Audit(ctx context.Context, ownerID uuid.UUID) (*AuditReport, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type ledgerService struct {
	store   repo.Store
	gateway payout.Gateway
	events  events.Publisher
	cfg     Config
	metrics *metrics
}

func New(store repo.Store, gateway payout.Gateway, pub events.Publisher, cfg Config) Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &ledgerService{
		store:   store,
		gateway: gateway,
		events:  pub,
		cfg:     cfg,
		metrics: newMetrics(),
	}
}

// ---------------------------------------------------------------------------
// Credits
// ---------------------------------------------------------------------------

func (s *ledgerService) Credit(ctx context.Context, ownerID uuid.UUID, amount int64, description string) (*repo.Transaction, error) {
	var out *repo.Transaction
	err := s.store.RunInTx(ctx, func(ctx context.Context, q repo.Querier) (err error) {
		out, err = s.CreditInTx(ctx, q, ownerID, amount, description, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ledgerService) CreditInTx(ctx context.Context, q repo.Querier, ownerID uuid.UUID, amount int64, description string, appointmentID *uuid.UUID) (*repo.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	w, err := ensureWallet(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}

	tx := &repo.Transaction{
		WalletID:      w.ID,
		Amount:        amount,
		Type:          repo.TxCredit,
		Status:        repo.TxCompleted,
		Description:   description,
		AppointmentID: appointmentID,
	}
	if err := q.CreateTransaction(ctx, tx); err != nil {
		if errors.Is(err, repo.ErrDuplicate) && appointmentID != nil {
			return nil, ErrAlreadyCredited
		}
		return nil, fmt.Errorf("create credit: %w", err)
	}
	if err := q.AdjustBalance(ctx, w.ID, amount); err != nil {
		return nil, fmt.Errorf("credit balance: %w", err)
	}

	s.metrics.credit(ctx, "credit")
	slog.InfoContext(ctx, "wallet credited", "owner_id", ownerID, "amount", amount, "transaction_id", tx.ID)
	return tx, nil
}

// ---------------------------------------------------------------------------
// Withdrawals
// ---------------------------------------------------------------------------

func (s *ledgerService) Withdraw(ctx context.Context, ownerID uuid.UUID, amount int64, phone string) (*WithdrawResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if amount < s.cfg.MinWithdrawal {
		return nil, ErrBelowMinimum
	}
	msisdn, err := mpesa.NormalizeMSISDN(phone)
	if err != nil {
		return nil, ErrInvalidDestination
	}

	var tx *repo.Transaction
	err = s.store.RunInTx(ctx, func(ctx context.Context, q repo.Querier) error {
		w, err := ensureWallet(ctx, q, ownerID)
		if err != nil {
			return err
		}
		if w.Balance < amount {
			return ErrInsufficientBalance
		}
		if err := q.AdjustBalance(ctx, w.ID, -amount); err != nil {
			if errors.Is(err, repo.ErrConflict) {
				return ErrInsufficientBalance
			}
			return fmt.Errorf("debit balance: %w", err)
		}
		tx = &repo.Transaction{
			WalletID:    w.ID,
			Amount:      amount,
			Type:        repo.TxWithdrawal,
			Status:      repo.TxPending,
			Description: "Withdrawal to " + msisdn,
			Destination: msisdn,
		}
		if err := q.CreateTransaction(ctx, tx); err != nil {
			return fmt.Errorf("create withdrawal: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			s.metrics.withdrawal(ctx, "insufficient_balance")
		}
		return nil, err
	}

	slog.InfoContext(ctx, "withdrawal accepted", "owner_id", ownerID, "amount", amount, "transaction_id", tx.ID)
	return s.sendPayout(ctx, ownerID, tx)
}

// sendPayout calls the gateway for a PENDING withdrawal and records the
// outcome. The call and the status update ignore request cancellation so a
// disconnecting client cannot leave a sent payout unrecorded.
func (s *ledgerService) sendPayout(ctx context.Context, ownerID uuid.UUID, tx *repo.Transaction) (*WithdrawResult, error) {
	ctx = reqctx.WithSubject(ctx, reqctx.SubjectWithdrawal, tx.ID)
	detached := context.WithoutCancel(ctx)
	callCtx, cancel := context.WithTimeout(detached, s.cfg.PayoutTimeout)
	ref, gwErr := s.gateway.RequestPayout(callCtx, tx.Destination, tx.Amount, tx.ID.String())
	cancel()

	res := &WithdrawResult{TransactionID: tx.ID, Status: repo.TxPending, Amount: tx.Amount}

	var outcome *repo.TransactionOutcome
	switch {
	case gwErr == nil:
		outcome = &repo.TransactionOutcome{
			Status:            repo.TxCompleted,
			Description:       fmt.Sprintf("Withdrawal to %s (ref: %s)", tx.Destination, ref),
			ExternalReference: ref,
		}
	case errors.Is(gwErr, payout.ErrGatewayRejected):
		desc := "Withdrawal to " + tx.Destination + " rejected"
		if code, msg := payout.Info(gwErr); code != "" || msg != "" {
			desc += fmt.Sprintf(": [%s] %s", code, msg)
		}
		outcome = &repo.TransactionOutcome{Status: repo.TxFailed, Description: desc}
	default:
		// Unknown outcome: leave PENDING for an operator to retry or resolve.
		if !errors.Is(gwErr, payout.ErrGatewayUnavailable) {
			gwErr = payout.Unavailable("", "", gwErr)
		}
		s.metrics.withdrawal(ctx, "pending")
		slog.WarnContext(ctx, "payout outcome unknown, withdrawal left pending",
			"transaction_id", tx.ID, "err", gwErr)
		s.emitWithdrawal(detached, ownerID, tx.ID, res)
		return res, fmt.Errorf("withdrawal %s: %w", tx.ID, gwErr)
	}

	if err := s.store.SetTransactionOutcome(detached, tx.ID, *outcome); err != nil {
		if !errors.Is(err, repo.ErrConflict) {
			slog.ErrorContext(ctx, "record payout outcome failed",
				"transaction_id", tx.ID, "status", outcome.Status, "reference", ref, "err", err)
			return res, fmt.Errorf("record outcome for %s: %w", tx.ID, err)
		}
		// Resolved concurrently by an operator; report what is stored.
		cur, gerr := s.store.GetTransaction(detached, tx.ID, false)
		if gerr != nil {
			return res, fmt.Errorf("reload %s: %w", tx.ID, gerr)
		}
		res.Status, res.ExternalReference = cur.Status, cur.ExternalReference
	} else {
		res.Status, res.ExternalReference = outcome.Status, outcome.ExternalReference
	}

	s.metrics.withdrawal(ctx, string(res.Status))
	s.emitWithdrawal(detached, ownerID, tx.ID, res)

	if gwErr != nil {
		slog.WarnContext(ctx, "payout rejected", "transaction_id", tx.ID, "err", gwErr)
		return res, fmt.Errorf("withdrawal %s: %w", tx.ID, gwErr)
	}
	slog.InfoContext(ctx, "payout completed", "transaction_id", tx.ID, "reference", ref)
	return res, nil
}

func (s *ledgerService) emitWithdrawal(ctx context.Context, ownerID, txID uuid.UUID, res *WithdrawResult) {
	events.Emit(ctx, s.events, events.WithdrawalSubject(string(res.Status), txID), events.WithdrawalOutcome{
		TransactionID:     txID,
		OwnerID:           ownerID,
		Amount:            res.Amount,
		Status:            string(res.Status),
		ExternalReference: res.ExternalReference,
	})
}

// ---------------------------------------------------------------------------
// Refunds
// ---------------------------------------------------------------------------

func (s *ledgerService) Refund(ctx context.Context, ownerID uuid.UUID, amount int64, description string, appointmentID *uuid.UUID) (*repo.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if description == "" {
		description = "Patient refund"
	}
	// appointment_id is reserved for the completion credit, so the link
	// lives in the description.
	if appointmentID != nil {
		suffix := fmt.Sprintf(" (appointment %s)", appointmentID)
		description = truncateRunes(description, repo.MaxDescriptionLen-len(suffix)) + suffix
	}

	var tx *repo.Transaction
	err := s.store.RunInTx(ctx, func(ctx context.Context, q repo.Querier) error {
		w, err := ensureWallet(ctx, q, ownerID)
		if err != nil {
			return err
		}
		if w.Balance < amount {
			return ErrInsufficientBalance
		}
		if err := q.AdjustBalance(ctx, w.ID, -amount); err != nil {
			if errors.Is(err, repo.ErrConflict) {
				return ErrInsufficientBalance
			}
			return fmt.Errorf("debit balance: %w", err)
		}
		tx = &repo.Transaction{
			WalletID:    w.ID,
			Amount:      amount,
			Type:        repo.TxRefund,
			Status:      repo.TxCompleted,
			Description: description,
		}
		if err := q.CreateTransaction(ctx, tx); err != nil {
			return fmt.Errorf("create refund: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "refund issued", "owner_id", ownerID, "amount", amount, "transaction_id", tx.ID)
	return tx, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// GetLedger returns the balance and newest-first history, creating an empty
// wallet on first access.
func (s *ledgerService) GetLedger(ctx context.Context, ownerID uuid.UUID, limit int) (*Ledger, error) {
	if err := s.store.CreateWallet(ctx, &repo.Wallet{OwnerID: ownerID}); err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	w, err := s.store.GetWallet(ctx, ownerID, false)
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	txs, err := s.store.ListTransactions(ctx, repo.TransactionFilter{WalletID: &w.ID, Limit: s.cfg.limit(limit)})
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []*repo.Transaction{}
	}
	return &Ledger{WalletID: w.ID, Balance: w.Balance, Currency: s.cfg.Currency, Transactions: txs}, nil
}

func (s *ledgerService) ListWithdrawals(ctx context.Context, f WithdrawalFilter) ([]*repo.Transaction, error) {
	status := f.Status
	if status == "" {
		status = repo.TxPending
	}
	filter := repo.TransactionFilter{
		Type:   repo.TxWithdrawal,
		Status: status,
		Limit:  s.cfg.limit(f.Limit),
	}
	if f.OlderThan > 0 {
		before := time.Now().UTC().Add(-f.OlderThan)
		filter.CreatedBefore = &before
	}
	return s.store.ListTransactions(ctx, filter)
}

// Audit recomputes the balance from the log. Withdrawals hold their funds
// whatever their status; a FAILED one is released only by its reversal credit.
func (s *ledgerService) Audit(ctx context.Context, ownerID uuid.UUID) (*AuditReport, error) {
	w, err := s.store.GetWallet(ctx, ownerID, false)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	txs, err := s.store.ListTransactions(ctx, repo.TransactionFilter{WalletID: &w.ID})
	if err != nil {
		return nil, err
	}

	var expected int64
	for _, t := range txs {
		switch {
		case t.Type == repo.TxCredit && t.Status == repo.TxCompleted:
			expected += t.Amount
		case t.Type == repo.TxWithdrawal:
			expected -= t.Amount
		case t.Type == repo.TxRefund && t.Status == repo.TxCompleted:
			expected -= t.Amount
		}
	}

	report := &AuditReport{
		OwnerID:  ownerID,
		WalletID: w.ID,
		Balance:  w.Balance,
		Expected: expected,
		Drift:    w.Balance - expected,
	}
	if report.Drift != 0 {
		slog.ErrorContext(ctx, "ledger drift detected", "owner_id", ownerID, "balance", w.Balance, "expected", expected)
	}
	return report, nil
}

// ---------------------------------------------------------------------------
// Operator actions
// ---------------------------------------------------------------------------

// RetryWithdrawal re-sends a PENDING withdrawal with the same reference, so
// a provider that already processed it can deduplicate. Withdrawals younger
// than the payout timeout are refused with ErrPayoutInFlight.
func (s *ledgerService) RetryWithdrawal(ctx context.Context, txID uuid.UUID) (*WithdrawResult, error) {
	tx, err := s.getWithdrawal(ctx, s.store, txID, false)
	if err != nil {
		return nil, err
	}
	if tx.Status != repo.TxPending {
		return nil, ErrInvalidTransition
	}
	// The first attempt may still be waiting on the gateway.
	if time.Since(tx.CreatedAt) < s.cfg.PayoutTimeout {
		return nil, ErrPayoutInFlight
	}
	w, err := s.store.GetWalletByID(ctx, tx.WalletID)
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	slog.InfoContext(ctx, "retrying withdrawal", "transaction_id", tx.ID)
	return s.sendPayout(ctx, w.OwnerID, tx)
}

// ReverseWithdrawal returns the held funds of a FAILED withdrawal with a
// compensating credit. Each withdrawal can be reversed once.
func (s *ledgerService) ReverseWithdrawal(ctx context.Context, txID uuid.UUID) (*repo.Transaction, error) {
	var credit *repo.Transaction
	err := s.store.RunInTx(ctx, func(ctx context.Context, q repo.Querier) error {
		tx, err := s.getWithdrawal(ctx, q, txID, true)
		if err != nil {
			return err
		}
		if tx.Status != repo.TxFailed {
			return ErrInvalidTransition
		}

		existing, err := q.ListTransactions(ctx, repo.TransactionFilter{ReversesID: &tx.ID, Limit: 1})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return ErrAlreadyReversed
		}

		credit = &repo.Transaction{
			WalletID:    tx.WalletID,
			Amount:      tx.Amount,
			Type:        repo.TxCredit,
			Status:      repo.TxCompleted,
			Description: fmt.Sprintf("Reversal of failed withdrawal %s", tx.ID),
			ReversesID:  &tx.ID,
		}
		if err := q.CreateTransaction(ctx, credit); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrAlreadyReversed
			}
			return fmt.Errorf("create reversal: %w", err)
		}
		if err := q.AdjustBalance(ctx, tx.WalletID, tx.Amount); err != nil {
			return fmt.Errorf("credit balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.credit(ctx, "reversal")
	slog.InfoContext(ctx, "withdrawal reversed", "transaction_id", txID, "reversal_id", credit.ID)
	return credit, nil
}

// ResolveWithdrawal records an outcome confirmed out of band for a PENDING
// withdrawal.
func (s *ledgerService) ResolveWithdrawal(ctx context.Context, txID uuid.UUID, outcome repo.TransactionStatus, reference string) (*repo.Transaction, error) {
	if outcome != repo.TxCompleted && outcome != repo.TxFailed {
		return nil, ErrInvalidOutcome
	}
	if outcome == repo.TxCompleted && reference == "" {
		return nil, ErrReferenceRequired
	}

	tx, err := s.getWithdrawal(ctx, s.store, txID, false)
	if err != nil {
		return nil, err
	}
	if tx.Status != repo.TxPending {
		return nil, ErrInvalidTransition
	}

	o := repo.TransactionOutcome{Status: outcome, ExternalReference: reference}
	if outcome == repo.TxCompleted {
		o.Description = fmt.Sprintf("Withdrawal to %s (ref: %s)", tx.Destination, reference)
	} else {
		o.Description = fmt.Sprintf("Withdrawal to %s marked failed by operator", tx.Destination)
	}
	if err := s.store.SetTransactionOutcome(ctx, tx.ID, o); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("resolve withdrawal: %w", err)
	}
	tx.Status, tx.Description, tx.ExternalReference = o.Status, o.Description, o.ExternalReference

	if w, err := s.store.GetWalletByID(ctx, tx.WalletID); err == nil {
		s.emitWithdrawal(ctx, w.OwnerID, tx.ID, &WithdrawResult{
			TransactionID: tx.ID, Status: tx.Status, Amount: tx.Amount, ExternalReference: reference,
		})
	}
	slog.InfoContext(ctx, "withdrawal resolved", "transaction_id", tx.ID, "status", outcome)
	return tx, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// ensureWallet returns the owner's wallet locked for update, creating it
// with a zero balance if it does not exist yet.
func ensureWallet(ctx context.Context, q repo.Querier, ownerID uuid.UUID) (*repo.Wallet, error) {
	w, err := q.GetWallet(ctx, ownerID, true)
	if err == nil {
		return w, nil
	}
	if !repo.IsNotFound(err) {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	if err := q.CreateWallet(ctx, &repo.Wallet{OwnerID: ownerID}); err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	w, err = q.GetWallet(ctx, ownerID, true)
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

func (s *ledgerService) getWithdrawal(ctx context.Context, q repo.Querier, id uuid.UUID, forUpdate bool) (*repo.Transaction, error) {
	tx, err := q.GetTransaction(ctx, id, forUpdate)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if tx.Type != repo.TxWithdrawal {
		return nil, ErrInvalidTransition
	}
	return tx, nil
}
