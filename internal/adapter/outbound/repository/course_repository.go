package repository

import (
	"context"
	"time"

	"rollbook/internal/domain/entity"
	"rollbook/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLCourseRepository implements the course read and counter ports.
type PostgreSQLCourseRepository struct {
	pool *pgxpool.Pool
}

var (
	_ outbound.CourseRepository        = (*PostgreSQLCourseRepository)(nil)
	_ outbound.CourseCounterRepository = (*PostgreSQLCourseRepository)(nil)
)

// NewPostgreSQLCourseRepository creates a new PostgreSQL course repository.
func NewPostgreSQLCourseRepository(pool *pgxpool.Pool) *PostgreSQLCourseRepository {
	return &PostgreSQLCourseRepository{pool: pool}
}

const courseColumns = `id, name, cycle_length_days, elapsed_days, created_at, updated_at`

// Save inserts or updates a course.
func (r *PostgreSQLCourseRepository) Save(ctx context.Context, course *entity.Course) error {
	if course == nil {
		return ErrInvalidArgument
	}

	query := `
		INSERT INTO rollbook.courses (` + courseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			cycle_length_days = EXCLUDED.cycle_length_days,
			elapsed_days = EXCLUDED.elapsed_days,
			updated_at = EXCLUDED.updated_at`

	qi := GetQueryInterface(ctx, r.pool)
	_, err := qi.Exec(ctx, query,
		course.ID(),
		course.Name(),
		course.CycleLengthDays(),
		course.ElapsedDays(),
		course.CreatedAt(),
		course.UpdatedAt(),
	)
	if err != nil {
		return WrapError(err, "save course")
	}
	return nil
}

// FindByID finds a course by its ID. It returns (nil, nil) when no course matches.
func (r *PostgreSQLCourseRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Course, error) {
	if id == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	query := `SELECT ` + courseColumns + ` FROM rollbook.courses WHERE id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	course, err := scanCourse(qi.QueryRow(ctx, query, id))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, WrapError(err, "find course by ID")
	}
	return course, nil
}

// FindAll returns every course ordered by name.
func (r *PostgreSQLCourseRepository) FindAll(ctx context.Context) ([]*entity.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM rollbook.courses ORDER BY name`

	qi := GetQueryInterface(ctx, r.pool)
	rows, err := qi.Query(ctx, query)
	if err != nil {
		return nil, WrapError(err, "find all courses")
	}

	courses, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*entity.Course, error) {
		return scanCourse(row)
	})
	if err != nil {
		return nil, WrapError(err, "scan courses")
	}
	return courses, nil
}

// ResetElapsed sets one course's elapsed days to baseline.
func (r *PostgreSQLCourseRepository) ResetElapsed(ctx context.Context, courseID uuid.UUID, baseline int) error {
	query := `UPDATE rollbook.courses SET elapsed_days = $2, updated_at = now() WHERE id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	tag, err := qi.Exec(ctx, query, courseID, baseline)
	if err != nil {
		return WrapError(err, "reset course elapsed days")
	}
	if tag.RowsAffected() == 0 {
		return WrapError(ErrNotFound, "reset course elapsed days")
	}
	return nil
}

// ResetAllCounters resets every course's elapsed days and cycle length.
func (r *PostgreSQLCourseRepository) ResetAllCounters(ctx context.Context, baseline, cycleLengthDays int) (int64, error) {
	query := `UPDATE rollbook.courses SET elapsed_days = $1, cycle_length_days = $2, updated_at = now()`

	qi := GetQueryInterface(ctx, r.pool)
	tag, err := qi.Exec(ctx, query, baseline, cycleLengthDays)
	if err != nil {
		return 0, WrapError(err, "reset course counters")
	}
	return tag.RowsAffected(), nil
}

func scanCourse(row pgx.Row) (*entity.Course, error) {
	var (
		id                 uuid.UUID
		name               string
		cycleLength, spent int
		createdAt          time.Time
		updatedAt          time.Time
	)
	if err := row.Scan(&id, &name, &cycleLength, &spent, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	return entity.RestoreCourse(id, name, cycleLength, spent, createdAt, updatedAt), nil
}
