package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rollbook/internal/domain/entity"
	"rollbook/internal/domain/valueobject"
	"rollbook/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLAttendeeRepository implements the live attendee store port.
type PostgreSQLAttendeeRepository struct {
	pool *pgxpool.Pool
}

var _ outbound.AttendeeRepository = (*PostgreSQLAttendeeRepository)(nil)

// NewPostgreSQLAttendeeRepository creates a new PostgreSQL attendee repository.
func NewPostgreSQLAttendeeRepository(pool *pgxpool.Pool) *PostgreSQLAttendeeRepository {
	return &PostgreSQLAttendeeRepository{pool: pool}
}

const attendeeColumns = `id, national_id, full_name, course_ref, business_name, phone, email,
	metadata, attendance_count, absence_count, registered_at, updated_at`

// Save inserts or updates a live attendee record.
func (r *PostgreSQLAttendeeRepository) Save(ctx context.Context, record *entity.AttendeeRecord) error {
	if record == nil {
		return ErrInvalidArgument
	}

	query := `
		INSERT INTO rollbook.attendees (` + attendeeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			national_id = EXCLUDED.national_id,
			full_name = EXCLUDED.full_name,
			course_ref = EXCLUDED.course_ref,
			business_name = EXCLUDED.business_name,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			metadata = EXCLUDED.metadata,
			attendance_count = EXCLUDED.attendance_count,
			absence_count = EXCLUDED.absence_count,
			updated_at = EXCLUDED.updated_at`

	qi := GetQueryInterface(ctx, r.pool)
	_, err := qi.Exec(ctx, query,
		record.ID(),
		record.NationalID(),
		record.FullName(),
		record.RawCourseRef(),
		record.BusinessName(),
		record.Phone(),
		record.Email(),
		record.Metadata(),
		record.AttendanceCount(),
		record.AbsenceCount(),
		record.RegisteredAt(),
		record.UpdatedAt(),
	)
	if err != nil {
		return WrapError(err, "save attendee")
	}
	return nil
}

// DistinctIDsForCourse returns ids of live records whose course reference
// spells the course id, in any case and padding, or equals the course's legacy
// name exactly.
func (r *PostgreSQLAttendeeRepository) DistinctIDsForCourse(
	ctx context.Context,
	courseID uuid.UUID,
	legacyName string,
) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT id FROM rollbook.attendees
		WHERE lower(btrim(course_ref, E' \t\n\r\x0B\f')) = ANY($1)
		   OR ($2 <> '' AND course_ref = $2)
		ORDER BY id`

	return r.collectIDs(ctx, "select attendees for course", query, valueobject.IDTextForms(courseID), legacyName)
}

// AllIDs returns the id of every live record.
func (r *PostgreSQLAttendeeRepository) AllIDs(ctx context.Context) ([]uuid.UUID, error) {
	return r.collectIDs(ctx, "select all attendees", `SELECT id FROM rollbook.attendees ORDER BY id`)
}

func (r *PostgreSQLAttendeeRepository) collectIDs(ctx context.Context, operation, query string, args ...any) ([]uuid.UUID, error) {
	qi := GetQueryInterface(ctx, r.pool)
	rows, err := qi.Query(ctx, query, args...)
	if err != nil {
		return nil, WrapError(err, operation)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, WrapError(err, operation)
	}
	return ids, nil
}

// DeleteByIDs removes live records and returns the number of rows deleted.
func (r *PostgreSQLAttendeeRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	qi := GetQueryInterface(ctx, r.pool)
	tag, err := qi.Exec(ctx, `DELETE FROM rollbook.attendees WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, WrapError(err, "delete attendees")
	}
	return tag.RowsAffected(), nil
}

// OpenCursor declares a forward-only server-side cursor over the given ids. The
// cursor lives in the transaction carried by ctx and reads pageSize rows per
// round trip.
func (r *PostgreSQLAttendeeRepository) OpenCursor(
	ctx context.Context,
	ids []uuid.UUID,
	pageSize int,
) (outbound.AttendeeCursor, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("%w: page size must be positive, got %d", ErrInvalidArgument, pageSize)
	}
	tx := GetTx(ctx)
	if tx == nil {
		return nil, WrapError(ErrNoTransaction, "open attendee cursor")
	}

	name := pgx.Identifier{"attendee_cursor_" + strings.ReplaceAll(uuid.NewString(), "-", "")}.Sanitize()
	declare := `DECLARE ` + name + ` NO SCROLL CURSOR FOR
		SELECT ` + attendeeColumns + ` FROM rollbook.attendees
		WHERE id = ANY($1)
		ORDER BY id`

	if _, err := tx.Exec(ctx, declare, ids); err != nil {
		return nil, WrapError(err, "declare attendee cursor")
	}

	return &attendeeCursor{
		tx:       tx,
		name:     name,
		fetchSQL: fmt.Sprintf("FETCH FORWARD %d FROM %s", pageSize, name),
		pageSize: pageSize,
	}, nil
}

type attendeeCursor struct {
	tx       pgx.Tx
	name     string
	fetchSQL string
	pageSize int

	page      []*entity.AttendeeRecord
	current   *entity.AttendeeRecord
	exhausted bool
	closed    bool
	err       error
}

func (c *attendeeCursor) Next(ctx context.Context) bool {
	if c.closed || c.err != nil {
		return false
	}
	if len(c.page) == 0 {
		if c.exhausted {
			c.current = nil
			return false
		}
		if err := c.fetch(ctx); err != nil {
			c.err = err
			return false
		}
		if len(c.page) == 0 {
			c.current = nil
			return false
		}
	}

	c.current = c.page[0]
	c.page[0] = nil
	c.page = c.page[1:]
	return true
}

func (c *attendeeCursor) fetch(ctx context.Context) error {
	rows, err := c.tx.Query(ctx, c.fetchSQL)
	if err != nil {
		return WrapError(err, "fetch attendee cursor")
	}

	page, err := pgx.CollectRows(rows, scanAttendee)
	if err != nil {
		return WrapError(err, "scan attendee cursor")
	}

	c.page = page
	if len(page) < c.pageSize {
		c.exhausted = true
	}
	return nil
}

func (c *attendeeCursor) Record() *entity.AttendeeRecord { return c.current }

func (c *attendeeCursor) Err() error { return c.err }

func (c *attendeeCursor) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.page = nil
	if _, err := c.tx.Exec(ctx, "CLOSE "+c.name); err != nil {
		return WrapError(err, "close attendee cursor")
	}
	return nil
}

func scanAttendee(row pgx.CollectableRow) (*entity.AttendeeRecord, error) {
	var (
		id                          uuid.UUID
		nationalID, fullName        string
		courseRef                   *string
		businessName, phone, email  *string
		metadata                    map[string]interface{}
		attendanceCount, absenceCnt int
		registeredAt, updatedAt     time.Time
	)
	err := row.Scan(
		&id, &nationalID, &fullName, &courseRef, &businessName, &phone, &email,
		&metadata, &attendanceCount, &absenceCnt, &registeredAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	return entity.RestoreAttendeeRecord(
		id, nationalID, fullName, courseRef, businessName, phone, email,
		metadata, attendanceCount, absenceCnt, registeredAt, updatedAt,
	), nil
}
