package service

import (
	"context"
	"errors"
	"testing"

	"rollbook/internal/adapter/outbound/memory"
	domainerrors "rollbook/internal/domain/errors/domain"
	"rollbook/internal/domain/normalization"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeSelector_SelectCourse(t *testing.T) {
	store := memory.NewStore()
	course := addCourse(store, "Forklift Safety", 30, 0)
	other := addCourse(store, "First Aid", 30, 0)
	ids := addAttendees(store, course, 2)
	legacy := addLegacyAttendee(store, "Forklift Safety")
	addAttendees(store, other, 3)

	selection, err := NewScopeSelector(store, store).SelectCourse(context.Background(), course)

	require.NoError(t, err)
	assert.Equal(t, 3, selection.Count())
	assert.ElementsMatch(t, append(ids, legacy), selection.IDs)
	assert.Equal(t, 1, selection.Directory.Len())
	name, ok := selection.Directory.Lookup(course.ID())
	assert.True(t, ok)
	assert.Equal(t, "Forklift Safety", name)
}

func TestScopeSelector_SelectAll(t *testing.T) {
	store := memory.NewStore()
	a := addCourse(store, "Forklift Safety", 30, 0)
	b := addCourse(store, "First Aid", 30, 0)
	addAttendees(store, a, 2)
	addAttendees(store, b, 1)
	addUnreferencedAttendee(store)

	selection, err := NewScopeSelector(store, store).SelectAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 4, selection.Count())
	assert.Equal(t, 2, selection.Directory.Len())
	assert.True(t, selection.Directory.IsKnownName("First Aid"))
}

func TestScopeSelector_PropagatesStoreErrors(t *testing.T) {
	store := memory.NewStore()
	course := addCourse(store, "Forklift Safety", 30, 0)
	store.InjectFault(memory.OpSelect, errors.New("connection reset"), 1)

	_, err := NewScopeSelector(store, store).SelectCourse(context.Background(), course)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to select attendees for course")
}

func TestBatchUpsertWriter_FlushesFullBatchesAndRemainder(t *testing.T) {
	store := memory.NewStore()
	course := addCourse(store, "Forklift Safety", 30, 0)
	addAttendees(store, course, 7)

	ctx := context.Background()
	selection, err := NewScopeSelector(store, store).SelectCourse(ctx, course)
	require.NoError(t, err)

	writer := NewBatchUpsertWriter(store, store, nil)
	result, err := writer.Write(ctx, selection, 3)

	require.NoError(t, err)
	assert.Equal(t, 7, result.Processed)
	assert.Equal(t, 3, result.Batches)
	assert.Equal(t, []int{3, 3, 1}, result.FlushSizes)
	assert.Equal(t, 7, store.ArchivedCount())
	assert.Equal(t, 7, store.AttendeeCount(), "the writer only copies")
}

func TestBatchUpsertWriter_ExactMultipleHasNoEmptyFlush(t *testing.T) {
	store := memory.NewStore()
	course := addCourse(store, "Forklift Safety", 30, 0)
	addAttendees(store, course, 6)

	ctx := context.Background()
	selection, err := NewScopeSelector(store, store).SelectCourse(ctx, course)
	require.NoError(t, err)

	result, err := NewBatchUpsertWriter(store, store, nil).Write(ctx, selection, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3}, result.FlushSizes)
}

func TestBatchUpsertWriter_StopsOnFlushError(t *testing.T) {
	store := memory.NewStore()
	course := addCourse(store, "Forklift Safety", 30, 0)
	addAttendees(store, course, 5)

	ctx := context.Background()
	selection, err := NewScopeSelector(store, store).SelectCourse(ctx, course)
	require.NoError(t, err)

	store.InjectFault(memory.OpBulkUpsert, errors.New("disk full"), 1)
	result, err := NewBatchUpsertWriter(store, store, nil).Write(ctx, selection, 2)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to flush batch 1")
	assert.Zero(t, result.Processed)
}

func TestBatchUpsertWriter_RejectsNonPositiveBatch(t *testing.T) {
	store := memory.NewStore()
	_, err := NewBatchUpsertWriter(store, store, nil).Write(context.Background(), &ScopeSelection{IDs: []uuid.UUID{uuid.New()}}, 0)
	assert.Error(t, err)
}

func TestBatchUpsertWriter_NormalizesWithCustomFallback(t *testing.T) {
	store := memory.NewStore()
	orphan := addUnreferencedAttendee(store)

	normalizer := normalization.NewCourseNameNormalizer(&normalization.Config{FallbackName: "unassigned"})
	selection := &ScopeSelection{IDs: []uuid.UUID{orphan}, Directory: normalization.NewCourseDirectory(nil)}

	_, err := NewBatchUpsertWriter(store, store, normalizer).Write(context.Background(), selection, 10)
	require.NoError(t, err)

	archived, ok := store.Archived(orphan)
	require.True(t, ok)
	assert.Equal(t, "unassigned", archived.CourseName())
}

func TestVerificationGate(t *testing.T) {
	store := memory.NewStore()
	course := addCourse(store, "Forklift Safety", 30, 0)
	ids := addAttendees(store, course, 3)
	ctx := context.Background()

	selection := &ScopeSelection{IDs: ids}
	_, err := NewBatchUpsertWriter(store, store, nil).Write(ctx, selection, 10)
	require.NoError(t, err)

	gate := NewVerificationGate(store)
	archived, err := gate.Verify(ctx, selection)
	require.NoError(t, err)
	assert.Equal(t, 3, archived)

	selection.IDs = append(selection.IDs, uuid.New())
	archived, err = gate.Verify(ctx, selection)
	require.ErrorIs(t, err, domainerrors.ErrVerificationMismatch)
	assert.Equal(t, 3, archived)
	assert.Contains(t, err.Error(), "archived 3, selected 4")
}

func TestCounterResetter(t *testing.T) {
	store := memory.NewStore()
	a := addCourse(store, "Forklift Safety", 14, 9)
	b := addCourse(store, "First Aid", 45, 20)
	ctx := context.Background()

	resetter := NewCounterResetter(store, DefaultCounterPolicy())

	require.NoError(t, resetter.ResetOne(ctx, a.ID()))
	resetA, _ := store.Course(a.ID())
	assert.Equal(t, 0, resetA.ElapsedDays())
	assert.Equal(t, 14, resetA.CycleLengthDays(), "single reset keeps the cycle length")
	assert.Equal(t, 20, courseElapsed(store, b.ID()))

	require.NoError(t, resetter.ResetAll(ctx))
	for _, id := range []uuid.UUID{a.ID(), b.ID()} {
		course, _ := store.Course(id)
		assert.Equal(t, 0, course.ElapsedDays())
		assert.Equal(t, 30, course.CycleLengthDays())
	}

	err := resetter.ResetOne(ctx, uuid.New())
	assert.ErrorIs(t, err, domainerrors.ErrScopeNotFound)
}

func TestMigrationError(t *testing.T) {
	courseID := uuid.New()
	err := NewMigrationErrorWithCause(ErrorTypeLock, "another migration holds this scope",
		domainerrors.ErrMigrationInProgress).WithCourse(courseID).WithOperation("lock")

	assert.Contains(t, err.Error(), courseID.String())
	assert.Contains(t, err.Error(), "[lock]")
	assert.ErrorIs(t, err, domainerrors.ErrMigrationInProgress)
	assert.False(t, err.IsRetryable())

	assert.True(t, NewMigrationError(ErrorTypeDatabase, "serialization failure").IsRetryable())
	assert.False(t, NewMigrationError(ErrorTypeRetry, "exhausted").IsRetryable())
}

func TestClassifyFailure(t *testing.T) {
	retryable := func(err error) bool { return errors.Is(err, errTransient) }

	tests := []struct {
		name     string
		err      error
		wantType MigrationErrorType
		wantTx   bool
	}{
		{name: "verification", err: domainerrors.ErrVerificationMismatch, wantType: ErrorTypeVerification},
		{name: "invalid scope", err: domainerrors.ErrInvalidScope, wantType: ErrorTypeValidation},
		{name: "not found", err: domainerrors.ErrScopeNotFound, wantType: ErrorTypeNotFound},
		{name: "transient", err: errTransient, wantType: ErrorTypeDatabase, wantTx: true},
		{name: "permanent", err: errors.New("syntax error"), wantType: ErrorTypeTransaction, wantTx: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyFailure(tt.err, "copy", retryable)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, "copy", got.Operation)
			assert.ErrorIs(t, got, tt.err)
			assert.Equal(t, tt.wantTx, errors.Is(got, domainerrors.ErrTransactionFailed))
		})
	}

	existing := NewMigrationError(ErrorTypeLock, "held")
	assert.Same(t, existing, classifyFailure(existing, "lock", retryable))
}

var errTransient = errors.New("transient")
