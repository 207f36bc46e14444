package outbound

import (
	"context"

	"rollbook/internal/application/dto"
	"rollbook/internal/domain/entity"
	"rollbook/internal/domain/valueobject"

	"github.com/google/uuid"
)

// CourseRepository defines the outbound port for reading courses.
// FindByID returns (nil, nil) when the course does not exist.
type CourseRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Course, error)
	FindAll(ctx context.Context) ([]*entity.Course, error)
}

// CourseCounterRepository defines the outbound port for the course-level mutable
// counters zeroed at the end of a cycle.
type CourseCounterRepository interface {
	ResetElapsed(ctx context.Context, courseID uuid.UUID, baseline int) error
	ResetAllCounters(ctx context.Context, baseline, cycleLengthDays int) (int64, error)
}

// AttendeeRepository defines the outbound port for the live attendee store.
type AttendeeRepository interface {
	// DistinctIDsForCourse returns ids of live records referencing the course by
	// id or by its legacy name.
	DistinctIDsForCourse(ctx context.Context, courseID uuid.UUID, legacyName string) ([]uuid.UUID, error)
	AllIDs(ctx context.Context) ([]uuid.UUID, error)
	// OpenCursor streams the records with the given ids, fetching at most pageSize
	// rows from the store at a time.
	OpenCursor(ctx context.Context, ids []uuid.UUID, pageSize int) (AttendeeCursor, error)
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// AttendeeCursor is a forward-only iterator over live attendee records.
type AttendeeCursor interface {
	Next(ctx context.Context) bool
	Record() *entity.AttendeeRecord
	Err() error
	Close(ctx context.Context) error
}

// ArchiveRepository defines the outbound port for the archive store.
type ArchiveRepository interface {
	// BulkUpsert writes the records keyed by original id, inserting missing rows
	// and overwriting existing ones. It returns the number of rows written.
	BulkUpsert(ctx context.Context, records []*entity.ArchivedAttendeeRecord) (int, error)
	CountByOriginalIDs(ctx context.Context, ids []uuid.UUID) (int, error)
}

// TransactionManager runs a function inside one store transaction. Repositories
// called with the context passed to fn take part in that transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(context.Context) error) error
}

// MigrationLocker guards a scope against concurrent migrations. Locks are held
// until the surrounding transaction ends.
type MigrationLocker interface {
	TryLockScope(ctx context.Context, scope valueobject.ArchiveScope, courseID uuid.UUID) (bool, error)
}

// MigrationEventPublisher announces finished migrations to downstream consumers.
type MigrationEventPublisher interface {
	PublishMigrationResult(ctx context.Context, correlationID string, result dto.MigrationResult) error
}
