package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
)

var accountColumns = []string{
	"id", "email", "secret_hash", "role", "approval_state", "full_name", "phone",
	"specialty", "consultation_fee", "sessions_completed", "document_key",
	"created_at", "updated_at",
}

func scanAccount(rows *sql.Rows) (*Account, error) {
	var a Account
	if err := rows.Scan(
		&a.ID, &a.Email, &a.SecretHash, &a.Role, &a.ApprovalState, &a.FullName, &a.Phone,
		&a.Specialty, &a.ConsultationFee, &a.SessionsCompleted, &a.DocumentKey,
		&a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

func (q *sqlQuerier) CreateAccount(ctx context.Context, a *Account) error {
	now := time.Now().UTC()
	if a.ID == uuid.Nil {
		a.ID = NewID()
	}
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	a.CreatedAt, a.UpdatedAt = now, now

	_, err := q.exec(ctx, builder().Insert(tableAccounts).
		Columns(accountColumns...).
		Values(
			a.ID, a.Email, a.SecretHash, a.Role, a.ApprovalState, a.FullName, a.Phone,
			a.Specialty, a.ConsultationFee, a.SessionsCompleted, a.DocumentKey,
			a.CreatedAt, a.UpdatedAt,
		))
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (q *sqlQuerier) getAccountWhere(ctx context.Context, p func(t *sql.SelectTable) *sql.Predicate) (*Account, error) {
	b := builder()
	t := b.Table(tableAccounts)
	s := b.Select(t.Columns(accountColumns...)...).From(t).Where(p(t)).Limit(1)

	var out *Account
	err := q.query(ctx, s, func(rows *sql.Rows) (err error) {
		out, err = scanAccount(rows)
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

func (q *sqlQuerier) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	return q.getAccountWhere(ctx, func(t *sql.SelectTable) *sql.Predicate {
		return sql.EQ(t.C("id"), id)
	})
}

func (q *sqlQuerier) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return q.getAccountWhere(ctx, func(t *sql.SelectTable) *sql.Predicate {
		return sql.EQ(t.C("email"), email)
	})
}

func (q *sqlQuerier) ListAccounts(ctx context.Context, f AccountFilter) ([]*Account, error) {
	b := builder()
	t := b.Table(tableAccounts)

	var ps []*sql.Predicate
	if f.Role != "" {
		ps = append(ps, sql.EQ(t.C("role"), f.Role))
	}
	if f.ApprovalState != "" {
		ps = append(ps, sql.EQ(t.C("approval_state"), f.ApprovalState))
	}

	s := whereAll(b.Select(t.Columns(accountColumns...)...).From(t), ps).
		OrderBy(sql.Desc(t.C("created_at")))
	if f.Limit > 0 {
		s = s.Limit(f.Limit)
	}
	if f.Offset > 0 {
		s = s.Offset(f.Offset)
	}

	var out []*Account
	err := q.query(ctx, s, func(rows *sql.Rows) error {
		a, err := scanAccount(rows)
		if err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return out, nil
}

func (q *sqlQuerier) updateAccount(ctx context.Context, id uuid.UUID, set func(u *sql.UpdateBuilder) *sql.UpdateBuilder) error {
	u := builder().Update(tableAccounts).Set("updated_at", time.Now().UTC())
	u = set(u).Where(sql.EQ("id", id))
	return expectOne(q.exec(ctx, u))
}

func (q *sqlQuerier) UpdateAccountSecret(ctx context.Context, id uuid.UUID, secretHash string) error {
	return q.updateAccount(ctx, id, func(u *sql.UpdateBuilder) *sql.UpdateBuilder {
		return u.Set("secret_hash", secretHash)
	})
}

func (q *sqlQuerier) UpdateAccountApproval(ctx context.Context, id uuid.UUID, state ApprovalState) error {
	return q.updateAccount(ctx, id, func(u *sql.UpdateBuilder) *sql.UpdateBuilder {
		return u.Set("approval_state", state)
	})
}

func (q *sqlQuerier) UpdateAccountDocument(ctx context.Context, id uuid.UUID, key string) error {
	return q.updateAccount(ctx, id, func(u *sql.UpdateBuilder) *sql.UpdateBuilder {
		return u.Set("document_key", key)
	})
}

func (q *sqlQuerier) IncrementSessionsCompleted(ctx context.Context, id uuid.UUID) error {
	return q.updateAccount(ctx, id, func(u *sql.UpdateBuilder) *sql.UpdateBuilder {
		return u.Add("sessions_completed", 1)
	})
}
