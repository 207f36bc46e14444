package messaging

import (
	"time"

	"rollbook/internal/application/dto"
)

const (
	// DefaultJobProcessingTimeout bounds a single migration started from a message.
	DefaultJobProcessingTimeout = 30 * time.Minute
	// DefaultRequestSubject is the subject archive requests are published on.
	DefaultRequestSubject = "archive.requests"
	// DefaultQueueGroup spreads requests across worker instances.
	DefaultQueueGroup = "rollbook-workers"
)

// ArchiveReply is sent to the request's reply subject when one is set.
type ArchiveReply struct {
	RequestID string              `json:"request_id"`
	Result    dto.MigrationResult `json:"result"`
	Error     string              `json:"error,omitempty"`
}
