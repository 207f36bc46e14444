package valueobject

import "fmt"

// ArchiveScope identifies which slice of the live store a migration targets.
type ArchiveScope string

// Archive scope constants.
const (
	ArchiveScopeCourse ArchiveScope = "course"
	ArchiveScopeAll    ArchiveScope = "all"
)

// validArchiveScopes contains all valid archive scopes.
var validArchiveScopes = map[ArchiveScope]bool{
	ArchiveScopeCourse: true,
	ArchiveScopeAll:    true,
}

// NewArchiveScope creates a new ArchiveScope with validation.
func NewArchiveScope(scope string) (ArchiveScope, error) {
	s := ArchiveScope(scope)
	if !validArchiveScopes[s] {
		return "", fmt.Errorf("invalid archive scope: %s", scope)
	}
	return s, nil
}

// String returns the string representation of the scope.
func (s ArchiveScope) String() string {
	return string(s)
}

// IsCourse returns true if the scope targets a single course.
func (s ArchiveScope) IsCourse() bool {
	return s == ArchiveScopeCourse
}
