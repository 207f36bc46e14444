package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements create the rollbook schema. Every statement is idempotent.
var schemaStatements = []string{
	`CREATE SCHEMA IF NOT EXISTS rollbook`,
	`CREATE TABLE IF NOT EXISTS rollbook.courses (
		id                UUID PRIMARY KEY,
		name              TEXT NOT NULL UNIQUE,
		cycle_length_days INTEGER NOT NULL DEFAULT 30 CHECK (cycle_length_days > 0),
		elapsed_days      INTEGER NOT NULL DEFAULT 0 CHECK (elapsed_days >= 0),
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS rollbook.attendees (
		id               UUID PRIMARY KEY,
		national_id      TEXT NOT NULL,
		full_name        TEXT NOT NULL,
		course_ref       TEXT,
		business_name    TEXT,
		phone            TEXT,
		email            TEXT,
		metadata         JSONB NOT NULL DEFAULT '{}'::jsonb,
		attendance_count INTEGER NOT NULL DEFAULT 0,
		absence_count    INTEGER NOT NULL DEFAULT 0,
		registered_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendees_course_ref ON rollbook.attendees (course_ref)`,
	`CREATE TABLE IF NOT EXISTS rollbook.archived_attendees (
		original_id      UUID PRIMARY KEY,
		national_id      TEXT NOT NULL,
		full_name        TEXT NOT NULL,
		course_name      TEXT NOT NULL,
		business_name    TEXT,
		phone            TEXT,
		email            TEXT,
		metadata         JSONB NOT NULL DEFAULT '{}'::jsonb,
		attendance_count INTEGER NOT NULL DEFAULT 0,
		absence_count    INTEGER NOT NULL DEFAULT 0,
		registered_at    TIMESTAMPTZ NOT NULL,
		archived_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_archived_attendees_course_name ON rollbook.archived_attendees (course_name)`,
	`CREATE INDEX IF NOT EXISTS idx_archived_attendees_national_id ON rollbook.archived_attendees (national_id)`,
}

// ApplySchema creates the tables and indexes used by the archive engine in a
// single transaction.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	applied := 0
	err := NewTransactionManager(pool).WithTransaction(ctx, func(txCtx context.Context) error {
		qi := GetQueryInterface(txCtx, pool)
		for i, stmt := range schemaStatements {
			if _, err := qi.Exec(txCtx, stmt); err != nil {
				return WrapError(err, fmt.Sprintf("apply schema statement %d", i+1))
			}
			applied++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}
