package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

// NoTX marks the non-transactional path when calling a repository.
var NoTX Tx

// TransactionManager executes a function within a storage transaction,
// passing the transaction handle to the callback. Repository methods accept
// the handle as an opaque `qx` so use-case interfaces stay free of storage
// types; the concrete type is infra-defined (pgx.Tx for Postgres).
// Repositories must gracefully accept a nil handle (non-transactional path).
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
