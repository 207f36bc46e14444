// Package messaging provides domain types for archive migration messages exchanged
// over the message bus: migration requests consumed by the worker and completion
// events published after each migration.
package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rollbook/internal/domain/valueobject"

	"github.com/google/uuid"
)

// Message validation limits.
const (
	maxRequestIDLength = 255
	maxBatchSize       = 100000
)

// Error messages for validation.
const (
	errorRequestIDRequired = "request_id is required"
	errorRequestIDTooLong  = "request_id too long"
	errorCourseIDRequired  = "course_id is required for course scope"
	errorCourseIDForbidden = "course_id must be empty for all scope"
	errorBatchSizeRange    = "batch_size must be between 0 and 100000"
)

// ArchiveRequestMessage asks the worker to run one archive migration.
type ArchiveRequestMessage struct {
	RequestID   string                   `json:"request_id"`
	Scope       valueobject.ArchiveScope `json:"scope"`
	CourseID    string                   `json:"course_id,omitempty"`
	BatchSize   int                      `json:"batch_size,omitempty"`
	RequestedBy string                   `json:"requested_by,omitempty"`
	Timestamp   time.Time                `json:"timestamp"`
}

// NewCourseArchiveRequest builds a request for a single course.
func NewCourseArchiveRequest(courseID string, batchSize int) ArchiveRequestMessage {
	return ArchiveRequestMessage{
		RequestID: uuid.NewString(),
		Scope:     valueobject.ArchiveScopeCourse,
		CourseID:  courseID,
		BatchSize: batchSize,
		Timestamp: time.Now(),
	}
}

// NewGlobalArchiveRequest builds a request covering every course.
func NewGlobalArchiveRequest(batchSize int) ArchiveRequestMessage {
	return ArchiveRequestMessage{
		RequestID: uuid.NewString(),
		Scope:     valueobject.ArchiveScopeAll,
		BatchSize: batchSize,
		Timestamp: time.Now(),
	}
}

// Validate checks the message shape. Course id well-formedness is left to the
// migration service so that malformed ids surface as an invalid-scope result.
func (m ArchiveRequestMessage) Validate() error {
	if m.RequestID == "" {
		return errors.New(errorRequestIDRequired)
	}
	if len(m.RequestID) > maxRequestIDLength {
		return errors.New(errorRequestIDTooLong)
	}
	if _, err := valueobject.NewArchiveScope(m.Scope.String()); err != nil {
		return err
	}
	if m.Scope.IsCourse() && m.CourseID == "" {
		return errors.New(errorCourseIDRequired)
	}
	if !m.Scope.IsCourse() && m.CourseID != "" {
		return errors.New(errorCourseIDForbidden)
	}
	if m.BatchSize < 0 || m.BatchSize > maxBatchSize {
		return errors.New(errorBatchSizeRange)
	}
	return nil
}

// DecodeArchiveRequest parses and validates a request payload.
func DecodeArchiveRequest(data []byte) (ArchiveRequestMessage, error) {
	var msg ArchiveRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ArchiveRequestMessage{}, fmt.Errorf("failed to decode archive request: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return ArchiveRequestMessage{}, fmt.Errorf("invalid archive request: %w", err)
	}
	return msg, nil
}
