package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. Its concrete type belongs to the
// storage adapter (pgx.Tx for Postgres); the use case only passes it along.
type Tx = any

// NoTX asks a repository to run outside any transaction.
var NoTX Tx

// TransactionManager groups snapshot writes into one unit:
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, qx Tx) error {
//		if err := snapshots.Save(ctx, qx, snap); err != nil {
//			return err
//		}
//		_, err := snapshots.PruneSession(ctx, qx, snap.SessionID, keep)
//		return err
//	})
//
// fn may be retried, so it should only touch the database through qx.
type TransactionManager interface {
	WithTx(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context, qx Tx) error) error
}
