package service

import (
	"errors"
	"fmt"
	"time"

	domainerrors "rollbook/internal/domain/errors/domain"

	"github.com/google/uuid"
)

// MigrationErrorType represents different types of archive migration errors.
type MigrationErrorType string

const (
	// ErrorTypeValidation indicates a malformed request.
	ErrorTypeValidation MigrationErrorType = "validation"
	// ErrorTypeNotFound indicates the target course does not exist.
	ErrorTypeNotFound MigrationErrorType = "not_found"
	// ErrorTypeVerification indicates the archived count did not match the selection.
	ErrorTypeVerification MigrationErrorType = "verification"
	// ErrorTypeLock indicates another migration holds the scope.
	ErrorTypeLock MigrationErrorType = "lock"
	// ErrorTypeDatabase indicates a transient store failure.
	ErrorTypeDatabase MigrationErrorType = "database"
	// ErrorTypeTransaction indicates a permanent store failure.
	ErrorTypeTransaction MigrationErrorType = "transaction"
	// ErrorTypeRetry indicates a retry exhaustion error.
	ErrorTypeRetry MigrationErrorType = "retry_exhausted"
)

// MigrationError represents an archive migration error with context.
type MigrationError struct {
	Type      MigrationErrorType `json:"type"`
	Message   string             `json:"message"`
	CourseID  *uuid.UUID         `json:"course_id,omitempty"`
	Operation string             `json:"operation,omitempty"`
	Retries   int                `json:"retries,omitempty"`
	Cause     error              `json:"cause,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// Error implements the error interface.
func (e *MigrationError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	if e.CourseID != nil {
		return fmt.Sprintf("archive migration error [%s] for course %s: %s", e.Type, e.CourseID, msg)
	}
	return fmt.Sprintf("archive migration error [%s]: %s", e.Type, msg)
}

// Unwrap returns the underlying cause.
func (e *MigrationError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether re-running the whole migration could succeed.
// Lock contention is not retried: a concurrent migration is rejected.
func (e *MigrationError) IsRetryable() bool {
	return e.Type == ErrorTypeDatabase
}

// NewMigrationError creates a new migration error.
func NewMigrationError(errorType MigrationErrorType, message string) *MigrationError {
	return &MigrationError{
		Type:      errorType,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewMigrationErrorWithCause creates a new migration error with an underlying cause.
func NewMigrationErrorWithCause(errorType MigrationErrorType, message string, cause error) *MigrationError {
	return &MigrationError{
		Type:      errorType,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// WithCourse attaches the course id and returns the error for chaining.
func (e *MigrationError) WithCourse(courseID uuid.UUID) *MigrationError {
	e.CourseID = &courseID
	return e
}

// WithOperation attaches the failing step name.
func (e *MigrationError) WithOperation(operation string) *MigrationError {
	e.Operation = operation
	return e
}

// migrationErrorType maps a failure to its migration error type.
func migrationErrorType(err error, retryable func(error) bool) MigrationErrorType {
	var migrationErr *MigrationError
	switch {
	case errors.As(err, &migrationErr):
		return migrationErr.Type
	case errors.Is(err, domainerrors.ErrInvalidScope):
		return ErrorTypeValidation
	case errors.Is(err, domainerrors.ErrScopeNotFound):
		return ErrorTypeNotFound
	case errors.Is(err, domainerrors.ErrVerificationMismatch):
		return ErrorTypeVerification
	case errors.Is(err, domainerrors.ErrMigrationInProgress):
		return ErrorTypeLock
	case retryable != nil && retryable(err):
		return ErrorTypeDatabase
	default:
		return ErrorTypeTransaction
	}
}

// classifyFailure wraps err as a MigrationError. Store failures that are not
// already classified gain ErrTransactionFailed so callers can match them.
func classifyFailure(err error, operation string, retryable func(error) bool) *MigrationError {
	var migrationErr *MigrationError
	if errors.As(err, &migrationErr) {
		if migrationErr.Operation == "" {
			migrationErr.Operation = operation
		}
		return migrationErr
	}

	errType := migrationErrorType(err, retryable)
	cause := err
	if errType == ErrorTypeDatabase || errType == ErrorTypeTransaction {
		cause = fmt.Errorf("%w: %w", domainerrors.ErrTransactionFailed, err)
	}
	return NewMigrationErrorWithCause(errType, operation+" failed", cause).WithOperation(operation)
}
