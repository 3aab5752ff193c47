package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
)

var walletColumns = []string{"id", "owner_id", "balance", "created_at", "updated_at"}

var transactionColumns = []string{
	"id", "wallet_id", "amount", "type", "status", "description", "destination",
	"external_reference", "appointment_id", "reverses_id", "created_at", "updated_at",
}

// ---------------------------------------------------------------------------
// Wallets
// ---------------------------------------------------------------------------

func (q *sqlQuerier) GetWallet(ctx context.Context, ownerID uuid.UUID, forUpdate bool) (*Wallet, error) {
	return q.getWallet(ctx, "owner_id", ownerID, forUpdate)
}

func (q *sqlQuerier) GetWalletByID(ctx context.Context, id uuid.UUID) (*Wallet, error) {
	return q.getWallet(ctx, "id", id, false)
}

func (q *sqlQuerier) getWallet(ctx context.Context, col string, v uuid.UUID, forUpdate bool) (*Wallet, error) {
	b := builder()
	t := b.Table(tableWallets)
	s := q.lock(b.Select(t.Columns(walletColumns...)...).From(t).Where(sql.EQ(t.C(col), v)), forUpdate)

	var out *Wallet
	err := q.query(ctx, s, func(rows *sql.Rows) error {
		var w Wallet
		if err := rows.Scan(&w.ID, &w.OwnerID, &w.Balance, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return fmt.Errorf("scan wallet: %w", err)
		}
		out = &w
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

func (q *sqlQuerier) CreateWallet(ctx context.Context, w *Wallet) error {
	now := time.Now().UTC()
	if w.ID == uuid.Nil {
		w.ID = NewID()
	}
	w.CreatedAt, w.UpdatedAt = now, now

	_, err := q.exec(ctx, builder().Insert(tableWallets).
		Columns(walletColumns...).
		Values(w.ID, w.OwnerID, w.Balance, w.CreatedAt, w.UpdatedAt).
		OnConflict(sql.ConflictColumns("owner_id"), sql.DoNothing()))
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

func (q *sqlQuerier) AdjustBalance(ctx context.Context, walletID uuid.UUID, delta int64) error {
	p := sql.EQ("id", walletID)
	if delta < 0 {
		p = sql.And(p, sql.GTE("balance", -delta))
	}
	u := builder().Update(tableWallets).
		Add("balance", delta).
		Set("updated_at", time.Now().UTC()).
		Where(p)

	n, err := q.exec(ctx, u)
	if err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

func scanTransaction(rows *sql.Rows) (*Transaction, error) {
	var (
		t                Transaction
		appointment, rev uuid.NullUUID
	)
	if err := rows.Scan(
		&t.ID, &t.WalletID, &t.Amount, &t.Type, &t.Status, &t.Description, &t.Destination,
		&t.ExternalReference, &appointment, &rev, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	if appointment.Valid {
		t.AppointmentID = &appointment.UUID
	}
	if rev.Valid {
		t.ReversesID = &rev.UUID
	}
	return &t, nil
}

func nullable(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func (q *sqlQuerier) CreateTransaction(ctx context.Context, tx *Transaction) error {
	if tx.Amount <= 0 {
		return errors.New("repo: transaction amount must be positive")
	}
	now := time.Now().UTC()
	if tx.ID == uuid.Nil {
		tx.ID = NewID()
	}
	tx.CreatedAt, tx.UpdatedAt = now, now

	_, err := q.exec(ctx, builder().Insert(tableTransactions).
		Columns(transactionColumns...).
		Values(
			tx.ID, tx.WalletID, tx.Amount, tx.Type, tx.Status, tx.Description, tx.Destination,
			tx.ExternalReference, nullable(tx.AppointmentID), nullable(tx.ReversesID),
			tx.CreatedAt, tx.UpdatedAt,
		))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (q *sqlQuerier) GetTransaction(ctx context.Context, id uuid.UUID, forUpdate bool) (*Transaction, error) {
	b := builder()
	t := b.Table(tableTransactions)
	s := q.lock(b.Select(t.Columns(transactionColumns...)...).From(t).Where(sql.EQ(t.C("id"), id)), forUpdate)

	var out *Transaction
	err := q.query(ctx, s, func(rows *sql.Rows) (err error) {
		out, err = scanTransaction(rows)
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

// ListTransactions returns matching transactions newest first.
func (q *sqlQuerier) ListTransactions(ctx context.Context, f TransactionFilter) ([]*Transaction, error) {
	b := builder()
	t := b.Table(tableTransactions)

	var ps []*sql.Predicate
	if f.WalletID != nil {
		ps = append(ps, sql.EQ(t.C("wallet_id"), *f.WalletID))
	}
	if f.Type != "" {
		ps = append(ps, sql.EQ(t.C("type"), f.Type))
	}
	if f.Status != "" {
		ps = append(ps, sql.EQ(t.C("status"), f.Status))
	}
	if f.CreatedBefore != nil {
		ps = append(ps, sql.LT(t.C("created_at"), *f.CreatedBefore))
	}
	if f.ReversesID != nil {
		ps = append(ps, sql.EQ(t.C("reverses_id"), *f.ReversesID))
	}

	s := whereAll(b.Select(t.Columns(transactionColumns...)...).From(t), ps).
		OrderBy(sql.Desc(t.C("created_at")), sql.Desc(t.C("id")))
	if f.Limit > 0 {
		s = s.Limit(f.Limit)
	}

	var out []*Transaction
	err := q.query(ctx, s, func(rows *sql.Rows) error {
		tx, err := scanTransaction(rows)
		if err != nil {
			return err
		}
		out = append(out, tx)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

func (q *sqlQuerier) SetTransactionOutcome(ctx context.Context, id uuid.UUID, o TransactionOutcome) error {
	if o.Status == TxPending {
		return fmt.Errorf("repo: outcome status must be terminal, got %s", o.Status)
	}
	u := builder().Update(tableTransactions).
		Set("status", o.Status).
		Set("description", o.Description).
		Set("external_reference", o.ExternalReference).
		Set("updated_at", time.Now().UTC()).
		Where(sql.And(sql.EQ("id", id), sql.EQ("status", TxPending)))

	n, err := q.exec(ctx, u)
	if err != nil {
		return fmt.Errorf("set transaction outcome: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}
