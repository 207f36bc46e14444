package service

import (
	"context"
	"fmt"

	domainerrors "rollbook/internal/domain/errors/domain"
	"rollbook/internal/port/outbound"
)

// VerificationGate confirms that every selected record reached the archive store
// before anything is deleted from the live store.
type VerificationGate struct {
	archive outbound.ArchiveRepository
}

// NewVerificationGate creates a new VerificationGate.
func NewVerificationGate(archive outbound.ArchiveRepository) *VerificationGate {
	return &VerificationGate{archive: archive}
}

// Verify counts archived rows for the selection and fails with
// ErrVerificationMismatch unless the count equals the selection size.
func (g *VerificationGate) Verify(ctx context.Context, selection *ScopeSelection) (int, error) {
	archived, err := g.archive.CountByOriginalIDs(ctx, selection.IDs)
	if err != nil {
		return 0, fmt.Errorf("failed to count archived records: %w", err)
	}

	if archived != selection.Count() {
		return archived, fmt.Errorf("%w: archived %d, selected %d",
			domainerrors.ErrVerificationMismatch, archived, selection.Count())
	}
	return archived, nil
}
