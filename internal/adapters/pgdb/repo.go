// Package pgdb implements the bookings storage on Postgres with pgx. All
// concurrency correctness lives here: row locks on stocks and users, and
// compare-and-set status transitions on bookings.
package pgdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cultpass/bookings/internal/bookings"
	"github.com/cultpass/bookings/internal/domain"
	"github.com/cultpass/bookings/internal/observability"
)

const (
	serializationFailureCode = "40001"
	deadlockDetectedCode     = "40P01"
	lockNotAvailableCode     = "55P03"
	queryCanceledCode        = "57014"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InTransaction runs fn in one transaction. Lock waits that exceed the
// statement timeout, deadlocks and serialization failures all surface as
// domain.ErrRetryable: the caller reports a booking failure and the client
// retries, the core never retries silently.
func (r *Repository) InTransaction(ctx context.Context, fn func(tx bookings.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&Tx{tx: tx}); err != nil {
		return mapPgError(err)
	}
	return mapPgError(tx.Commit(ctx))
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case serializationFailureCode, deadlockDetectedCode, lockNotAvailableCode, queryCanceledCode:
			return errors.Wrap(domain.ErrRetryable, pgErr.Message)
		}
	}
	return err
}

// Tx wraps one pgx transaction and implements bookings.Tx.
type Tx struct {
	tx pgx.Tx
}

var _ bookings.Tx = (*Tx)(nil)

func scanRowErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}
