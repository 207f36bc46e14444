package dto

import (
	"errors"

	domainerrors "rollbook/internal/domain/errors/domain"
)

// ErrorCode represents standard archive failure codes.
type ErrorCode string

const (
	// ErrorCodeInvalidScope indicates that the course identifier is malformed.
	ErrorCodeInvalidScope ErrorCode = "INVALID_SCOPE"
	// ErrorCodeScopeNotFound indicates that the target course does not exist.
	ErrorCodeScopeNotFound ErrorCode = "SCOPE_NOT_FOUND"
	// ErrorCodeVerificationMismatch indicates that the archived count did not match the selection.
	ErrorCodeVerificationMismatch ErrorCode = "VERIFICATION_MISMATCH"
	// ErrorCodeMigrationInProgress indicates that another migration holds the scope.
	ErrorCodeMigrationInProgress ErrorCode = "MIGRATION_IN_PROGRESS"
	// ErrorCodeTransactionFailed indicates any other store failure.
	ErrorCodeTransactionFailed ErrorCode = "TRANSACTION_FAILED"
)

// ErrorCodeFor classifies an archive error. Unclassified errors are reported as
// transaction failures.
func ErrorCodeFor(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domainerrors.ErrInvalidScope):
		return ErrorCodeInvalidScope
	case errors.Is(err, domainerrors.ErrScopeNotFound):
		return ErrorCodeScopeNotFound
	case errors.Is(err, domainerrors.ErrVerificationMismatch):
		return ErrorCodeVerificationMismatch
	case errors.Is(err, domainerrors.ErrMigrationInProgress):
		return ErrorCodeMigrationInProgress
	default:
		return ErrorCodeTransactionFailed
	}
}
