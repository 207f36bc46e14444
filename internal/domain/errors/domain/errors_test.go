package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Test that each sentinel survives wrapping and stays distinct from the others.
func TestArchiveErrorMatchingBehavior(t *testing.T) {
	sentinels := []error{
		ErrInvalidScope,
		ErrScopeNotFound,
		ErrMigrationInProgress,
		ErrVerificationMismatch,
		ErrTransactionFailed,
		ErrInvalidInput,
	}

	for i, sentinel := range sentinels {
		t.Run(sentinel.Error(), func(t *testing.T) {
			wrapped := fmt.Errorf("migrate course 42: %w", sentinel)
			assert.ErrorIs(t, wrapped, sentinel)

			for j, other := range sentinels {
				if i == j {
					continue
				}
				assert.False(t, errors.Is(wrapped, other), "%q must not match %q", sentinel, other)
			}
		})
	}
}
