package service

import (
	"context"
	"fmt"

	"rollbook/internal/domain/entity"
	"rollbook/internal/domain/normalization"
	"rollbook/internal/port/outbound"

	"github.com/google/uuid"
)

// ScopeSelection is the set of live records a migration moves, together with the
// course directory their references are resolved against.
type ScopeSelection struct {
	IDs       []uuid.UUID
	Directory *normalization.CourseDirectory
}

// Count returns the number of selected records.
func (s *ScopeSelection) Count() int {
	if s == nil {
		return 0
	}
	return len(s.IDs)
}

// IsEmpty reports whether nothing was selected.
func (s *ScopeSelection) IsEmpty() bool {
	return s.Count() == 0
}

// ScopeSelector determines which live records belong to a migration scope.
type ScopeSelector struct {
	attendees outbound.AttendeeRepository
	courses   outbound.CourseRepository
}

// NewScopeSelector creates a new ScopeSelector.
func NewScopeSelector(attendees outbound.AttendeeRepository, courses outbound.CourseRepository) *ScopeSelector {
	return &ScopeSelector{attendees: attendees, courses: courses}
}

// SelectCourse returns the live records referencing course either by id or by
// its legacy name. The directory holds only that course.
func (s *ScopeSelector) SelectCourse(ctx context.Context, course *entity.Course) (*ScopeSelection, error) {
	ids, err := s.attendees.DistinctIDsForCourse(ctx, course.ID(), course.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to select attendees for course %s: %w", course.ID(), err)
	}

	return &ScopeSelection{
		IDs:       ids,
		Directory: normalization.NewCourseDirectory(map[uuid.UUID]string{course.ID(): course.Name()}),
	}, nil
}

// SelectAll returns every live record and a directory built from all courses.
func (s *ScopeSelector) SelectAll(ctx context.Context) (*ScopeSelection, error) {
	courses, err := s.courses.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load courses: %w", err)
	}

	directory := normalization.NewCourseDirectory(nil)
	for _, course := range courses {
		directory.Add(course.ID(), course.Name())
	}

	ids, err := s.attendees.AllIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to select attendees: %w", err)
	}

	return &ScopeSelection{IDs: ids, Directory: directory}, nil
}
