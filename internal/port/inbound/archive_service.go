// Package inbound defines the inbound ports (interfaces) for the application layer.
// These ports represent the entry points into the application's core business logic.
package inbound

import (
	"context"

	"rollbook/internal/application/dto"
)

// ArchiveService defines the inbound port for archive migrations. Both operations
// always return a populated result; the error carries the failure class.
type ArchiveService interface {
	MigrateByCourse(ctx context.Context, courseID string, batchSize int) (dto.MigrationResult, error)
	MigrateAll(ctx context.Context, batchSize int) (dto.MigrationResult, error)
}
