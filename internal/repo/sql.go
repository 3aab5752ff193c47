package repo

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/lib/pq"
)

// SQLClient is the PostgreSQL Store. Statements are built with ent's SQL
// builder and executed through the ent driver.
type SQLClient struct {
	*sqlQuerier
	drv dialect.Driver
}

func NewSQLClient(drv dialect.Driver) *SQLClient {
	return &SQLClient{
		sqlQuerier: &sqlQuerier{ex: drv},
		drv:        drv,
	}
}

func (c *SQLClient) Driver() dialect.Driver { return c.drv }

func (c *SQLClient) Close() error { return c.drv.Close() }

// RunInTx runs fn in a database transaction, committing on success and
// rolling back on error or panic.
func (c *SQLClient) RunInTx(ctx context.Context, fn TxFunc) error {
	tx, err := c.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback()
			panic(v)
		}
	}()

	if err := fn(ctx, &sqlQuerier{ex: tx, inTx: true}); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = fmt.Errorf("%w: rolling back transaction: %v", err, rerr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Statement plumbing
// ---------------------------------------------------------------------------

type sqlQuerier struct {
	ex   dialect.ExecQuerier
	inTx bool
}

func builder() *sql.DialectBuilder { return sql.Dialect(dialect.Postgres) }

func (q *sqlQuerier) exec(ctx context.Context, b sql.Querier) (int64, error) {
	query, args := b.Query()
	var res stdsql.Result
	if err := q.ex.Exec(ctx, query, args, &res); err != nil {
		return 0, mapSQLError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// query runs b and calls scan once per row.
func (q *sqlQuerier) query(ctx context.Context, b sql.Querier, scan func(*sql.Rows) error) error {
	query, args := b.Query()
	var rows sql.Rows
	if err := q.ex.Query(ctx, query, args, &rows); err != nil {
		return mapSQLError(err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(&rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// lock adds FOR UPDATE when running inside a transaction.
func (q *sqlQuerier) lock(s *sql.Selector, forUpdate bool) *sql.Selector {
	if forUpdate && q.inTx {
		return s.ForUpdate()
	}
	return s
}

func mapSQLError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
	}
	if errors.Is(err, stdsql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func expectOne(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func whereAll(s *sql.Selector, ps []*sql.Predicate) *sql.Selector {
	if len(ps) == 0 {
		return s
	}
	return s.Where(sql.And(ps...))
}
