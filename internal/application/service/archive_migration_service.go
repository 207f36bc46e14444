package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rollbook/internal/application/common/logging"
	"rollbook/internal/application/common/retry"
	"rollbook/internal/application/common/slogger"
	"rollbook/internal/application/dto"
	domainerrors "rollbook/internal/domain/errors/domain"
	"rollbook/internal/domain/normalization"
	"rollbook/internal/domain/valueobject"
	"rollbook/internal/port/inbound"
	"rollbook/internal/port/outbound"

	"github.com/google/uuid"
)

// DefaultBatchSize is the number of records per bulk upsert when none is given.
const DefaultBatchSize = 5000

// ArchiveConfig holds the tunables of the archive migration service.
type ArchiveConfig struct {
	DefaultBatchSize   int
	MaxRetries         int
	RetryInitialDelay  time.Duration
	RetryMaxDelay      time.Duration
	FallbackCourseName string
	Counters           CounterPolicy
}

// DefaultArchiveConfig returns the default archive configuration.
func DefaultArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		DefaultBatchSize:   DefaultBatchSize,
		MaxRetries:         2,
		RetryInitialDelay:  100 * time.Millisecond,
		RetryMaxDelay:      2 * time.Second,
		FallbackCourseName: normalization.DefaultFallbackCourseName,
		Counters:           DefaultCounterPolicy(),
	}
}

// ArchiveDependencies groups the outbound ports the service is built from.
// Publisher, Metrics and RetryChecker are optional.
type ArchiveDependencies struct {
	Courses      outbound.CourseRepository
	Counters     outbound.CourseCounterRepository
	Attendees    outbound.AttendeeRepository
	Archive      outbound.ArchiveRepository
	TxManager    outbound.TransactionManager
	Locker       outbound.MigrationLocker
	Publisher    outbound.MigrationEventPublisher
	Metrics      *ArchiveMetrics
	RetryChecker retry.Checker
}

// ArchiveMigrationService moves attendee records from the live store to the
// archive store. Every migration runs in a single transaction: selection, copy,
// verification, delete and counter reset either all commit or none do.
type ArchiveMigrationService struct {
	courses   outbound.CourseRepository
	attendees outbound.AttendeeRepository
	txManager outbound.TransactionManager
	locker    outbound.MigrationLocker
	publisher outbound.MigrationEventPublisher
	metrics   *ArchiveMetrics

	selector *ScopeSelector
	writer   *BatchUpsertWriter
	gate     *VerificationGate
	resetter CounterResetter

	storeRetryable retry.Checker
	config         ArchiveConfig
	now            func() time.Time
}

// NewArchiveMigrationService creates a new archive migration service.
func NewArchiveMigrationService(deps ArchiveDependencies, config ArchiveConfig) *ArchiveMigrationService {
	if config.DefaultBatchSize <= 0 {
		config.DefaultBatchSize = DefaultBatchSize
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	checker := deps.RetryChecker
	if checker == nil {
		checker = retry.DefaultChecker{}
	}

	normalizer := normalization.NewCourseNameNormalizer(&normalization.Config{
		FallbackName: config.FallbackCourseName,
	})

	return &ArchiveMigrationService{
		courses:        deps.Courses,
		attendees:      deps.Attendees,
		txManager:      deps.TxManager,
		locker:         deps.Locker,
		publisher:      deps.Publisher,
		metrics:        deps.Metrics,
		selector:       NewScopeSelector(deps.Attendees, deps.Courses),
		writer:         NewBatchUpsertWriter(deps.Attendees, deps.Archive, normalizer),
		gate:           NewVerificationGate(deps.Archive),
		resetter:       NewCounterResetter(deps.Counters, config.Counters),
		storeRetryable: checker,
		config:         config,
		now:            time.Now,
	}
}

// MigrateByCourse archives every live record of one course and resets its
// elapsed-day counter.
func (s *ArchiveMigrationService) MigrateByCourse(
	ctx context.Context,
	courseID string,
	batchSize int,
) (dto.MigrationResult, error) {
	ctx, correlationID := logging.EnsureCorrelationID(ctx)
	result := dto.MigrationResult{
		Scope:     valueobject.ArchiveScopeCourse,
		CourseID:  courseID,
		StartedAt: s.now(),
	}

	id, err := uuid.Parse(strings.TrimSpace(courseID))
	if err != nil || id == uuid.Nil {
		invalid := NewMigrationErrorWithCause(ErrorTypeValidation, "course id is not a valid identifier",
			fmt.Errorf("%w: %q", domainerrors.ErrInvalidScope, courseID))
		return s.finish(ctx, correlationID, result, invalid)
	}
	result.CourseID = id.String()

	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		return s.finish(ctx, correlationID, result, classifyFailure(err, "lookup_course", s.isStoreRetryable))
	}
	if course == nil {
		notFound := NewMigrationErrorWithCause(ErrorTypeNotFound, "course does not exist",
			domainerrors.ErrScopeNotFound).WithCourse(id)
		return s.finish(ctx, correlationID, result, notFound)
	}
	result.CourseName = course.Name()

	batchSize = s.effectiveBatchSize(batchSize)
	slogger.Info(ctx, "Starting course archive migration", slogger.Fields3(
		"course_id", id.String(),
		"course_name", course.Name(),
		"batch_size", batchSize,
	))

	err = s.runInTransaction(ctx, func(txCtx context.Context) error {
		resetProgress(&result)
		if err := s.lockScope(txCtx, valueobject.ArchiveScopeCourse, id); err != nil {
			return err
		}

		selection, err := s.selector.SelectCourse(txCtx, course)
		if err != nil {
			return classifyFailure(err, "select", s.isStoreRetryable).WithCourse(id)
		}
		result.Total = selection.Count()

		if !selection.IsEmpty() {
			if err := s.archiveSelection(txCtx, &result, selection, batchSize); err != nil {
				return err
			}
		}

		if err := s.resetter.ResetOne(txCtx, id); err != nil {
			return classifyFailure(err, "reset_counters", s.isStoreRetryable).WithCourse(id)
		}
		return nil
	})

	return s.finish(ctx, correlationID, result, err)
}

// MigrateAll archives every live record, resolving each course reference
// against the full course directory, and resets all course counters.
func (s *ArchiveMigrationService) MigrateAll(ctx context.Context, batchSize int) (dto.MigrationResult, error) {
	ctx, correlationID := logging.EnsureCorrelationID(ctx)
	result := dto.MigrationResult{
		Scope:     valueobject.ArchiveScopeAll,
		StartedAt: s.now(),
	}

	batchSize = s.effectiveBatchSize(batchSize)
	slogger.Info(ctx, "Starting global archive migration", slogger.Field("batch_size", batchSize))

	err := s.runInTransaction(ctx, func(txCtx context.Context) error {
		resetProgress(&result)
		if err := s.lockScope(txCtx, valueobject.ArchiveScopeAll, uuid.Nil); err != nil {
			return err
		}

		selection, err := s.selector.SelectAll(txCtx)
		if err != nil {
			return classifyFailure(err, "select", s.isStoreRetryable)
		}
		result.Total = selection.Count()

		if !selection.IsEmpty() {
			if err := s.archiveSelection(txCtx, &result, selection, batchSize); err != nil {
				return err
			}
		}

		if err := s.resetter.ResetAll(txCtx); err != nil {
			return classifyFailure(err, "reset_counters", s.isStoreRetryable)
		}
		return nil
	})

	return s.finish(ctx, correlationID, result, err)
}

// archiveSelection copies, verifies and deletes the selection.
func (s *ArchiveMigrationService) archiveSelection(
	ctx context.Context,
	result *dto.MigrationResult,
	selection *ScopeSelection,
	batchSize int,
) error {
	written, err := s.writer.Write(ctx, selection, batchSize)
	result.Processed = written.Processed
	result.Batches = written.Batches
	if err != nil {
		return classifyFailure(err, "copy", s.isStoreRetryable)
	}

	if _, err := s.gate.Verify(ctx, selection); err != nil {
		if errors.Is(err, domainerrors.ErrVerificationMismatch) {
			s.metrics.RecordVerificationMismatch(ctx, result.Scope.String())
		}
		return classifyFailure(err, "verify", s.isStoreRetryable)
	}

	deleted, err := s.attendees.DeleteByIDs(ctx, selection.IDs)
	if err != nil {
		return classifyFailure(err, "delete", s.isStoreRetryable)
	}
	if int(deleted) != selection.Count() {
		return NewMigrationErrorWithCause(ErrorTypeTransaction, "delete step removed an unexpected number of records",
			fmt.Errorf("%w: deleted %d, selected %d", domainerrors.ErrTransactionFailed, deleted, selection.Count())).
			WithOperation("delete")
	}
	return nil
}

func (s *ArchiveMigrationService) lockScope(ctx context.Context, scope valueobject.ArchiveScope, courseID uuid.UUID) error {
	locked, err := s.locker.TryLockScope(ctx, scope, courseID)
	if err != nil {
		return classifyFailure(err, "lock", s.isStoreRetryable)
	}
	if !locked {
		lockErr := NewMigrationErrorWithCause(ErrorTypeLock, "another migration holds this scope",
			domainerrors.ErrMigrationInProgress).WithOperation("lock")
		if scope.IsCourse() {
			lockErr.WithCourse(courseID)
		}
		return lockErr
	}
	return nil
}

// runInTransaction runs fn in a fresh transaction, re-running it from scratch
// when the store reports a transient failure.
func (s *ArchiveMigrationService) runInTransaction(ctx context.Context, fn func(context.Context) error) error {
	executor := retry.NewExecutor(&retry.Config{
		MaxRetries:    s.config.MaxRetries,
		InitialDelay:  s.config.RetryInitialDelay,
		MaxDelay:      s.config.RetryMaxDelay,
		BackoffFactor: 2.0,
		Jitter:        true,
	}, retry.CheckerFunc(s.isRetryable)).OnRetry(func(ctx context.Context, attempt int, err error) {
		slogger.Warn(ctx, "Retrying archive migration transaction", slogger.Fields2(
			"attempt", attempt,
			"error", err.Error(),
		))
	})

	err := executor.Execute(ctx, func(ctx context.Context) error {
		return s.txManager.WithTransaction(ctx, fn)
	})
	if err == nil {
		return nil
	}

	if s.isRetryable(err) {
		exhausted := NewMigrationErrorWithCause(ErrorTypeRetry, "transaction retries exhausted", err)
		exhausted.Retries = s.config.MaxRetries
		return exhausted
	}
	return classifyFailure(err, "commit", s.isStoreRetryable)
}

func (s *ArchiveMigrationService) isRetryable(err error) bool {
	var migrationErr *MigrationError
	if errors.As(err, &migrationErr) {
		return migrationErr.IsRetryable()
	}
	return s.isStoreRetryable(err)
}

func (s *ArchiveMigrationService) isStoreRetryable(err error) bool {
	return s.storeRetryable.IsRetryable(err)
}

func (s *ArchiveMigrationService) effectiveBatchSize(batchSize int) int {
	if batchSize <= 0 {
		return s.config.DefaultBatchSize
	}
	return batchSize
}

// finish completes the result, records telemetry and announces the outcome.
func (s *ArchiveMigrationService) finish(
	ctx context.Context,
	correlationID string,
	result dto.MigrationResult,
	err error,
) (dto.MigrationResult, error) {
	result.Finish(s.now())
	scope := result.Scope.String()

	if err != nil {
		result.Fail(err)
		s.metrics.RecordMigration(ctx, scope, "failure", result.Duration)
		slogger.ErrorWithError(ctx, err, "Archive migration failed", slogger.Fields{
			"scope":      scope,
			"course_id":  result.CourseID,
			"error_code": string(result.ErrorCode),
			"total":      result.Total,
		})
	} else {
		result.OK = true
		result.Message = successMessage(result)
		s.metrics.RecordMigration(ctx, scope, "success", result.Duration)
		s.metrics.RecordArchived(ctx, scope, result.Processed)
		s.metrics.RecordFlushes(ctx, scope, result.Batches)
		slogger.Info(ctx, "Archive migration completed", slogger.Fields{
			"scope":       scope,
			"course_id":   result.CourseID,
			"course_name": result.CourseName,
			"total":       result.Total,
			"processed":   result.Processed,
			"batches":     result.Batches,
			"duration_ms": result.Duration.Milliseconds(),
		})
	}

	if s.publisher != nil {
		if pubErr := s.publisher.PublishMigrationResult(ctx, correlationID, result); pubErr != nil {
			slogger.ErrorWithError(ctx, pubErr, "Failed to publish archive migration event", slogger.Field("scope", scope))
		}
	}

	return result, err
}

func resetProgress(result *dto.MigrationResult) {
	result.Total = 0
	result.Processed = 0
	result.Batches = 0
}

func successMessage(result dto.MigrationResult) string {
	target := "all courses"
	if result.Scope.IsCourse() {
		target = fmt.Sprintf("course %q", result.CourseName)
	}
	if result.Total == 0 {
		return fmt.Sprintf("no live records for %s; counters reset", target)
	}
	return fmt.Sprintf("archived %d records for %s in %d batches", result.Processed, target, result.Batches)
}

var _ inbound.ArchiveService = (*ArchiveMigrationService)(nil)
