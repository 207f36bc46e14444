package dto

import (
	"time"

	"rollbook/internal/domain/valueobject"
)

// MigrationResult describes the outcome of one archive migration. It is returned
// for every call, successful or not, so callers can render a single outcome view.
type MigrationResult struct {
	OK         bool                     `json:"ok"                    yaml:"ok"`
	Scope      valueobject.ArchiveScope `json:"scope"                 yaml:"scope"`
	CourseID   string                   `json:"course_id,omitempty"   yaml:"course_id,omitempty"`
	CourseName string                   `json:"course_name,omitempty" yaml:"course_name,omitempty"`
	Total      int                      `json:"total"                 yaml:"total"`
	Processed  int                      `json:"processed"             yaml:"processed"`
	Batches    int                      `json:"batches"               yaml:"batches"`
	Message    string                   `json:"message"               yaml:"message"`
	ErrorCode  ErrorCode                `json:"error_code,omitempty"  yaml:"error_code,omitempty"`
	StartedAt  time.Time                `json:"started_at"            yaml:"started_at"`
	FinishedAt time.Time                `json:"finished_at"           yaml:"finished_at"`
	Duration   time.Duration            `json:"duration"              yaml:"duration"`
}

// Fail marks the result as failed with the error's message and code.
func (r *MigrationResult) Fail(err error) {
	r.OK = false
	r.Message = err.Error()
	r.ErrorCode = ErrorCodeFor(err)
}

// Finish stamps the end time and duration.
func (r *MigrationResult) Finish(now time.Time) {
	r.FinishedAt = now
	if !r.StartedAt.IsZero() {
		r.Duration = now.Sub(r.StartedAt)
	}
}
