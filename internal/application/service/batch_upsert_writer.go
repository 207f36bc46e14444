package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rollbook/internal/application/common/slogger"
	"rollbook/internal/domain/entity"
	"rollbook/internal/domain/normalization"
	"rollbook/internal/port/outbound"
)

// BatchUpsertResult summarizes one copy pass into the archive store.
type BatchUpsertResult struct {
	Processed  int
	Batches    int
	FlushSizes []int
}

// BatchUpsertWriter streams selected live records through the normalizer and
// writes them to the archive store in bulk upserts keyed by original id.
type BatchUpsertWriter struct {
	attendees  outbound.AttendeeRepository
	archive    outbound.ArchiveRepository
	normalizer *normalization.CourseNameNormalizer
	now        func() time.Time
}

// NewBatchUpsertWriter creates a new BatchUpsertWriter.
func NewBatchUpsertWriter(
	attendees outbound.AttendeeRepository,
	archive outbound.ArchiveRepository,
	normalizer *normalization.CourseNameNormalizer,
) *BatchUpsertWriter {
	if normalizer == nil {
		normalizer = normalization.NewCourseNameNormalizer(nil)
	}
	return &BatchUpsertWriter{
		attendees:  attendees,
		archive:    archive,
		normalizer: normalizer,
		now:        time.Now,
	}
}

// Write copies the selected records into the archive store. At most batchSize
// records are held in memory; a flush happens whenever the pending batch is full
// and once more for the remainder after the cursor is exhausted.
func (w *BatchUpsertWriter) Write(
	ctx context.Context,
	selection *ScopeSelection,
	batchSize int,
) (result BatchUpsertResult, err error) {
	if batchSize <= 0 {
		return result, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if selection.IsEmpty() {
		return result, nil
	}

	cursor, err := w.attendees.OpenCursor(ctx, selection.IDs, batchSize)
	if err != nil {
		return result, fmt.Errorf("failed to open attendee cursor: %w", err)
	}
	defer func() {
		if closeErr := cursor.Close(ctx); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close attendee cursor: %w", closeErr))
		}
	}()

	archivedAt := w.now().UTC()
	pending := make([]*entity.ArchivedAttendeeRecord, 0, min(batchSize, selection.Count()))

	flush := func() error {
		written, flushErr := w.archive.BulkUpsert(ctx, pending)
		if flushErr != nil {
			return fmt.Errorf("failed to flush batch %d: %w", result.Batches+1, flushErr)
		}
		result.Processed += written
		result.Batches++
		result.FlushSizes = append(result.FlushSizes, written)

		slogger.Debug(ctx, "Flushed archive batch", slogger.Fields3(
			"batch", result.Batches,
			"size", written,
			"processed", result.Processed,
		))
		pending = pending[:0]
		return nil
	}

	for cursor.Next(ctx) {
		record := cursor.Record()
		courseName := w.normalizer.Resolve(record.CourseRef(), selection.Directory)
		pending = append(pending, record.Archive(courseName, archivedAt))

		if len(pending) >= batchSize {
			if err := flush(); err != nil {
				return result, err
			}
		}
	}
	if err := cursor.Err(); err != nil {
		return result, fmt.Errorf("failed to read attendee cursor: %w", err)
	}

	if len(pending) > 0 {
		if err := flush(); err != nil {
			return result, err
		}
	}

	return result, nil
}
