package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"rollbook/internal/application/common/retry"
	"rollbook/internal/application/service"
	"rollbook/internal/domain/entity"
	domainerrors "rollbook/internal/domain/errors/domain"
	"rollbook/internal/domain/normalization"
	"rollbook/internal/domain/valueobject"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	pool      *pgxpool.Pool
	courses   *PostgreSQLCourseRepository
	attendees *PostgreSQLAttendeeRepository
	archive   *PostgreSQLArchiveRepository
	locker    *PostgreSQLMigrationLocker
	txManager *TransactionManager
}

func newFixture(t *testing.T) *fixture {
	pool := setupTestDB(t)
	return &fixture{
		pool:      pool,
		courses:   NewPostgreSQLCourseRepository(pool),
		attendees: NewPostgreSQLAttendeeRepository(pool),
		archive:   NewPostgreSQLArchiveRepository(pool),
		locker:    NewPostgreSQLMigrationLocker(pool),
		txManager: NewTransactionManager(pool),
	}
}

func (f *fixture) service() *service.ArchiveMigrationService {
	config := service.DefaultArchiveConfig()
	config.RetryInitialDelay = time.Millisecond
	return service.NewArchiveMigrationService(service.ArchiveDependencies{
		Courses:      f.courses,
		Counters:     f.courses,
		Attendees:    f.attendees,
		Archive:      f.archive,
		TxManager:    f.txManager,
		Locker:       f.locker,
		RetryChecker: retry.CheckerFunc(IsRetryableError),
	}, config)
}

func (f *fixture) seedCourse(t *testing.T, name string, elapsed int) *entity.Course {
	t.Helper()
	course := entity.RestoreCourse(uuid.New(), name, 30, elapsed, time.Now().UTC(), time.Now().UTC())
	require.NoError(t, f.courses.Save(context.Background(), course))
	return course
}

func (f *fixture) seedAttendees(t *testing.T, course *entity.Course, n int) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		record := entity.NewAttendeeRecord("NID", "Attendee", course.ID())
		require.NoError(t, f.attendees.Save(context.Background(), record))
		ids = append(ids, record.ID())
	}
	return ids
}

func TestApplySchema_IsIdempotent(t *testing.T) {
	pool := setupTestDB(t)

	applied, err := ApplySchema(context.Background(), pool)
	require.NoError(t, err)
	assert.Equal(t, len(schemaStatements), applied)
}

func TestCourseRepository_FindAndReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seedCourse(t, "Forklift Safety", 12)
	b := f.seedCourse(t, "First Aid", 20)

	found, err := f.courses.FindByID(ctx, a.ID())
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Forklift Safety", found.Name())

	missing, err := f.courses.FindByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, f.courses.ResetElapsed(ctx, a.ID(), 0))
	found, _ = f.courses.FindByID(ctx, a.ID())
	assert.Equal(t, 0, found.ElapsedDays())
	other, _ := f.courses.FindByID(ctx, b.ID())
	assert.Equal(t, 20, other.ElapsedDays())

	err = f.courses.ResetElapsed(ctx, uuid.New(), 0)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := f.courses.ResetAllCounters(ctx, 0, 45)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestAttendeeRepository_CursorRequiresTransactionAndPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	course := f.seedCourse(t, "Forklift Safety", 0)
	ids := f.seedAttendees(t, course, 7)

	_, err := f.attendees.OpenCursor(ctx, ids, 3)
	require.ErrorIs(t, err, ErrNoTransaction)

	err = f.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		cursor, err := f.attendees.OpenCursor(txCtx, ids, 3)
		require.NoError(t, err)

		var seen []uuid.UUID
		for cursor.Next(txCtx) {
			seen = append(seen, cursor.Record().ID())
		}
		require.NoError(t, cursor.Err())
		require.NoError(t, cursor.Close(txCtx))
		assert.ElementsMatch(t, ids, seen)
		return nil
	})
	require.NoError(t, err)
}

func TestAttendeeRepository_SelectsByIDAndLegacyName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	course := f.seedCourse(t, "Forklift Safety", 0)
	ids := f.seedAttendees(t, course, 2)

	legacy := entity.NewAttendeeRecord("L", "Legacy", uuid.Nil)
	legacy.SetLegacyCourseName("Forklift Safety")
	require.NoError(t, f.attendees.Save(ctx, legacy))

	want := append(ids, legacy.ID())
	for _, raw := range []string{
		strings.ToUpper(course.ID().String()),
		"  " + course.ID().String() + "\t",
		"{" + course.ID().String() + "}",
	} {
		spelled := entity.NewAttendeeRecord("S", "Spelled", uuid.Nil)
		spelled.SetLegacyCourseName(raw)
		require.NoError(t, f.attendees.Save(ctx, spelled))
		want = append(want, spelled.ID())
	}

	padded := entity.NewAttendeeRecord("P", "Padded", uuid.Nil)
	padded.SetLegacyCourseName(" Forklift Safety")
	require.NoError(t, f.attendees.Save(ctx, padded))

	selected, err := f.attendees.DistinctIDsForCourse(ctx, course.ID(), course.Name())
	require.NoError(t, err)
	assert.ElementsMatch(t, want, selected)
}

func TestArchiveRepository_BulkUpsertOverwrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	course := f.seedCourse(t, "Forklift Safety", 0)
	live := entity.NewAttendeeRecord("NID", "Attendee", course.ID())
	live.SetContact(nil, nil, nil)

	n, err := f.archive.BulkUpsert(ctx, []*entity.ArchivedAttendeeRecord{live.Archive("old", time.Now().UTC())})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.archive.BulkUpsert(ctx, []*entity.ArchivedAttendeeRecord{live.Archive("Forklift Safety", time.Now().UTC())})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := f.archive.CountByOriginalIDs(ctx, []uuid.UUID{live.ID()})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err := f.archive.FindByOriginalID(ctx, live.ID())
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Forklift Safety", stored.CourseName())
}

func TestMigrationLocker_RejectsConflictingScopes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	courseID := uuid.New()

	holding := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- f.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			locked, err := f.locker.TryLockScope(txCtx, valueobject.ArchiveScopeCourse, courseID)
			if err != nil {
				return err
			}
			if !locked {
				return errors.New("expected to acquire course lock")
			}
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	err := f.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		locked, err := f.locker.TryLockScope(txCtx, valueobject.ArchiveScopeCourse, courseID)
		require.NoError(t, err)
		assert.False(t, locked, "same course is rejected")
		return nil
	})
	require.NoError(t, err)

	err = f.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		locked, err := f.locker.TryLockScope(txCtx, valueobject.ArchiveScopeAll, uuid.Nil)
		require.NoError(t, err)
		assert.False(t, locked, "global migration is rejected while a course migration runs")
		return nil
	})
	require.NoError(t, err)

	err = f.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		locked, err := f.locker.TryLockScope(txCtx, valueobject.ArchiveScopeCourse, uuid.New())
		require.NoError(t, err)
		assert.True(t, locked, "other courses are not blocked")
		return nil
	})
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)
}

func TestArchiveMigration_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := f.seedCourse(t, "Forklift Safety", 14)
	other := f.seedCourse(t, "First Aid", 9)
	targetIDs := f.seedAttendees(t, target, 5)
	otherIDs := f.seedAttendees(t, other, 2)

	svc := f.service()

	result, err := svc.MigrateByCourse(ctx, target.ID().String(), 2)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 5, result.Processed)
	assert.Equal(t, 3, result.Batches)

	remaining, err := f.attendees.AllIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, otherIDs, remaining)

	archived, err := f.archive.CountByOriginalIDs(ctx, targetIDs)
	require.NoError(t, err)
	assert.Equal(t, 5, archived)

	orphan := entity.NewAttendeeRecord("N", "Orphan", uuid.Nil)
	orphan.ClearCourseRef()
	require.NoError(t, f.attendees.Save(ctx, orphan))

	result, err = svc.MigrateAll(ctx, 0)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 3, result.Processed)

	stored, err := f.archive.FindByOriginalID(ctx, orphan.ID())
	require.NoError(t, err)
	assert.Equal(t, normalization.DefaultFallbackCourseName, stored.CourseName())

	_, err = svc.MigrateByCourse(ctx, "bogus", 0)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidScope)
}
