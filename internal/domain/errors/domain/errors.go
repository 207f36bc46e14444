// Package domain provides domain-specific error definitions and utilities.
package domain

import "errors"

// Scope-related errors.
var (
	ErrInvalidScope        = errors.New("archive scope identifier is malformed")
	ErrScopeNotFound       = errors.New("archive scope course not found")
	ErrMigrationInProgress = errors.New("archive migration already in progress for scope")
)

// Migration pipeline errors.
var (
	ErrVerificationMismatch = errors.New("archived record count does not match selected record count")
	ErrTransactionFailed    = errors.New("archive migration transaction failed")
)

// General domain errors.
var (
	ErrInvalidInput = errors.New("invalid input")
)
