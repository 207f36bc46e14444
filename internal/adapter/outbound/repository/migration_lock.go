package repository

import (
	"context"

	"rollbook/internal/domain/valueobject"
	"rollbook/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	globalArchiveLockKey = "rollbook.archive.global"
	courseArchiveLockKey = "rollbook.archive.course:"
)

// PostgreSQLMigrationLocker guards archive scopes with transaction-scoped
// advisory locks. A global migration takes the global key exclusively; a course
// migration shares the global key and takes its course key exclusively, so
// course migrations on different courses run side by side.
type PostgreSQLMigrationLocker struct {
	pool *pgxpool.Pool
}

var _ outbound.MigrationLocker = (*PostgreSQLMigrationLocker)(nil)

// NewPostgreSQLMigrationLocker creates a new advisory lock based locker.
func NewPostgreSQLMigrationLocker(pool *pgxpool.Pool) *PostgreSQLMigrationLocker {
	return &PostgreSQLMigrationLocker{pool: pool}
}

// TryLockScope attempts the scope locks without waiting. The locks are released
// when the transaction carried by ctx ends.
func (l *PostgreSQLMigrationLocker) TryLockScope(
	ctx context.Context,
	scope valueobject.ArchiveScope,
	courseID uuid.UUID,
) (bool, error) {
	tx := GetTx(ctx)
	if tx == nil {
		return false, WrapError(ErrNoTransaction, "lock archive scope")
	}

	if !scope.IsCourse() {
		var locked bool
		err := tx.QueryRow(ctx,
			`SELECT pg_try_advisory_xact_lock(hashtextextended($1, 0))`, globalArchiveLockKey,
		).Scan(&locked)
		if err != nil {
			return false, WrapError(err, "lock global archive scope")
		}
		return locked, nil
	}

	var locked bool
	err := tx.QueryRow(ctx, `
		SELECT pg_try_advisory_xact_lock_shared(hashtextextended($1, 0))
		   AND pg_try_advisory_xact_lock(hashtextextended($2, 0))`,
		globalArchiveLockKey, courseArchiveLockKey+courseID.String(),
	).Scan(&locked)
	if err != nil {
		return false, WrapError(err, "lock course archive scope")
	}
	return locked, nil
}
