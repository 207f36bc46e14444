package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TransactionManager manages database transactions.
type TransactionManager struct {
	pool      *pgxpool.Pool
	isolation pgx.TxIsoLevel
}

// NewTransactionManager creates a transaction manager running transactions at
// REPEATABLE READ, so every statement of a migration sees one snapshot.
func NewTransactionManager(pool *pgxpool.Pool) *TransactionManager {
	return &TransactionManager{
		pool:      pool,
		isolation: pgx.RepeatableRead,
	}
}

// WithIsolation returns a copy of the manager using the given isolation level.
func (tm *TransactionManager) WithIsolation(isolation pgx.TxIsoLevel) *TransactionManager {
	return &TransactionManager{pool: tm.pool, isolation: isolation}
}

// Isolation returns the isolation level new transactions are started with.
func (tm *TransactionManager) Isolation() pgx.TxIsoLevel {
	return tm.isolation
}

// WithTransaction executes a function within a database transaction. When ctx
// already carries a transaction, fn joins it.
func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	if GetTx(ctx) != nil {
		return fn(ctx)
	}

	tx, err := tm.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: tm.isolation})
	if err != nil {
		return WrapError(err, fmt.Sprintf("begin transaction (%s)", tm.isolation))
	}

	txCtx := context.WithValue(ctx, txContextKey{}, tx)

	if err := fn(txCtx); err != nil {
		if rollbackErr := tx.Rollback(context.WithoutCancel(ctx)); rollbackErr != nil &&
			!errors.Is(rollbackErr, pgx.ErrTxClosed) {
			return fmt.Errorf("failed to rollback transaction after error %w: %w", err, rollbackErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return WrapError(err, "commit transaction")
	}

	return nil
}

// ParseIsolationLevel maps a configuration value to a pgx isolation level.
func ParseIsolationLevel(level string) (pgx.TxIsoLevel, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(level), " ", "_")) {
	case "read_committed":
		return pgx.ReadCommitted, nil
	case "", "repeatable_read":
		return pgx.RepeatableRead, nil
	case "serializable":
		return pgx.Serializable, nil
	default:
		return "", fmt.Errorf("%w: unsupported isolation level %q", ErrInvalidArgument, level)
	}
}

// txContextKey is used as a key for storing transactions in context.
type txContextKey struct{}

// GetTx retrieves the transaction carried by ctx, or nil.
func GetTx(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// QueryInterface represents either a connection pool or a transaction.
type QueryInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// GetQueryInterface returns the appropriate query interface (tx or pool).
func GetQueryInterface(ctx context.Context, pool *pgxpool.Pool) QueryInterface {
	if tx := GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}
