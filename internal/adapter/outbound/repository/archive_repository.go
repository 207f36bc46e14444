package repository

import (
	"context"
	"fmt"
	"time"

	"rollbook/internal/domain/entity"
	"rollbook/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLArchiveRepository implements the archive store port.
type PostgreSQLArchiveRepository struct {
	pool *pgxpool.Pool
}

var _ outbound.ArchiveRepository = (*PostgreSQLArchiveRepository)(nil)

// NewPostgreSQLArchiveRepository creates a new PostgreSQL archive repository.
func NewPostgreSQLArchiveRepository(pool *pgxpool.Pool) *PostgreSQLArchiveRepository {
	return &PostgreSQLArchiveRepository{pool: pool}
}

const archivedColumns = `original_id, national_id, full_name, course_name, business_name, phone, email,
	metadata, attendance_count, absence_count, registered_at, archived_at`

const upsertArchivedQuery = `
	INSERT INTO rollbook.archived_attendees (` + archivedColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (original_id) DO UPDATE SET
		national_id = EXCLUDED.national_id,
		full_name = EXCLUDED.full_name,
		course_name = EXCLUDED.course_name,
		business_name = EXCLUDED.business_name,
		phone = EXCLUDED.phone,
		email = EXCLUDED.email,
		metadata = EXCLUDED.metadata,
		attendance_count = EXCLUDED.attendance_count,
		absence_count = EXCLUDED.absence_count,
		registered_at = EXCLUDED.registered_at,
		archived_at = EXCLUDED.archived_at`

// BulkUpsert writes records in one pipelined batch keyed by original id.
func (r *PostgreSQLArchiveRepository) BulkUpsert(ctx context.Context, records []*entity.ArchivedAttendeeRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(upsertArchivedQuery,
			rec.OriginalID(),
			rec.NationalID(),
			rec.FullName(),
			rec.CourseName(),
			rec.BusinessName(),
			rec.Phone(),
			rec.Email(),
			rec.Metadata(),
			rec.AttendanceCount(),
			rec.AbsenceCount(),
			rec.RegisteredAt(),
			rec.ArchivedAt(),
		)
	}

	qi := GetQueryInterface(ctx, r.pool)
	results := qi.SendBatch(ctx, batch)

	written := 0
	for i := range records {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return written, WrapError(err, fmt.Sprintf("upsert archived attendee %d of %d", i+1, len(records)))
		}
		written += int(tag.RowsAffected())
	}

	if err := results.Close(); err != nil {
		return written, WrapError(err, "close archive batch")
	}
	return written, nil
}

// CountByOriginalIDs counts archived rows whose original id is in ids.
func (r *PostgreSQLArchiveRepository) CountByOriginalIDs(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var count int
	qi := GetQueryInterface(ctx, r.pool)
	err := qi.QueryRow(ctx,
		`SELECT count(*) FROM rollbook.archived_attendees WHERE original_id = ANY($1)`, ids,
	).Scan(&count)
	if err != nil {
		return 0, WrapError(err, "count archived attendees")
	}
	return count, nil
}

// FindByOriginalID returns one archived record, or (nil, nil) when absent.
func (r *PostgreSQLArchiveRepository) FindByOriginalID(ctx context.Context, id uuid.UUID) (*entity.ArchivedAttendeeRecord, error) {
	qi := GetQueryInterface(ctx, r.pool)
	row := qi.QueryRow(ctx, `SELECT `+archivedColumns+` FROM rollbook.archived_attendees WHERE original_id = $1`, id)

	var (
		originalID                  uuid.UUID
		nationalID, fullName        string
		courseName                  string
		businessName, phone, email  *string
		metadata                    map[string]interface{}
		attendanceCount, absenceCnt int
		registeredAt, archivedAt    time.Time
	)
	err := row.Scan(
		&originalID, &nationalID, &fullName, &courseName, &businessName, &phone, &email,
		&metadata, &attendanceCount, &absenceCnt, &registeredAt, &archivedAt,
	)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, WrapError(err, "find archived attendee")
	}

	return entity.RestoreArchivedAttendeeRecord(
		originalID, nationalID, fullName, courseName, businessName, phone, email,
		metadata, attendanceCount, absenceCnt, registeredAt, archivedAt,
	), nil
}
