package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ai-playground/internal/domain"
	"ai-playground/internal/domain/ports/repository"
)

var _ repository.TransactionManager = (*TxManager)(nil)

// txAttempts bounds reruns of a transaction that lost a serialization race
// or a deadlock.
const txAttempts = 3

// TxManager runs snapshot writes inside pgx transactions. fn receives the
// pgx.Tx as the qx handle repositories take.
type TxManager struct {
	pool *pgxpool.Pool
}

func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// WithTx commits when fn returns nil and rolls back otherwise. fn may run
// more than once, so it must not have effects outside the transaction.
func (m *TxManager) WithTx(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	var err error
	for attempt := 1; attempt <= txAttempts; attempt++ {
		if err = m.once(ctx, opts, fn); err == nil || !retryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return fmt.Errorf("transaction gave up after %d attempts: %w", txAttempts, err)
}

func (m *TxManager) once(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := m.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // no-op after commit

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// retryable reports serialization_failure (40001) and deadlock_detected
// (40P01).
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// querier is what the snapshot queries need; pgx.Tx, *pgxpool.Conn and
// *pgxpool.Pool all satisfy it.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// querierFor turns a repository qx argument into a querier. nil means the
// pool; anything that is not a pgx handle is rejected.
func querierFor(pool *pgxpool.Pool, qx any) (querier, error) {
	if qx == nil {
		if pool == nil {
			return nil, domain.ErrInvalidArgument
		}
		return pool, nil
	}
	switch v := qx.(type) {
	case pgx.Tx:
		return v, nil
	case *pgxpool.Conn:
		return v, nil
	case *pgxpool.Pool:
		return v, nil
	}
	return nil, domain.ErrInvalidExecContext
}
