package entity

import (
	"maps"
	"time"

	"rollbook/internal/domain/valueobject"

	"github.com/google/uuid"
)

// AttendeeRecord is a live, mutable attendance record for one person in one course.
type AttendeeRecord struct {
	id              uuid.UUID
	nationalID      string
	fullName        string
	courseRef       *string
	businessName    *string
	phone           *string
	email           *string
	metadata        map[string]interface{}
	attendanceCount int
	absenceCount    int
	registeredAt    time.Time
	updatedAt       time.Time
}

// NewAttendeeRecord creates a new live attendee record referencing a course by id.
func NewAttendeeRecord(nationalID, fullName string, courseID uuid.UUID) *AttendeeRecord {
	now := time.Now()
	ref := courseID.String()
	return &AttendeeRecord{
		id:           uuid.New(),
		nationalID:   nationalID,
		fullName:     fullName,
		courseRef:    &ref,
		metadata:     map[string]interface{}{},
		registeredAt: now,
		updatedAt:    now,
	}
}

// RestoreAttendeeRecord creates an AttendeeRecord from stored data.
func RestoreAttendeeRecord(
	id uuid.UUID,
	nationalID string,
	fullName string,
	courseRef *string,
	businessName *string,
	phone *string,
	email *string,
	metadata map[string]interface{},
	attendanceCount int,
	absenceCount int,
	registeredAt time.Time,
	updatedAt time.Time,
) *AttendeeRecord {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return &AttendeeRecord{
		id:              id,
		nationalID:      nationalID,
		fullName:        fullName,
		courseRef:       courseRef,
		businessName:    businessName,
		phone:           phone,
		email:           email,
		metadata:        metadata,
		attendanceCount: attendanceCount,
		absenceCount:    absenceCount,
		registeredAt:    registeredAt,
		updatedAt:       updatedAt,
	}
}

// ID returns the record ID.
func (a *AttendeeRecord) ID() uuid.UUID { return a.id }

// NationalID returns the personal identifier.
func (a *AttendeeRecord) NationalID() string { return a.nationalID }

// FullName returns the display name.
func (a *AttendeeRecord) FullName() string { return a.fullName }

// RawCourseRef returns the stored course reference as written by registration.
func (a *AttendeeRecord) RawCourseRef() *string { return a.courseRef }

// CourseRef returns the parsed course reference.
func (a *AttendeeRecord) CourseRef() valueobject.CourseRef {
	return valueobject.ParseCourseRef(a.courseRef)
}

// BusinessName returns the business the attendee registered under.
func (a *AttendeeRecord) BusinessName() *string { return a.businessName }

// Phone returns the contact phone.
func (a *AttendeeRecord) Phone() *string { return a.phone }

// Email returns the contact email.
func (a *AttendeeRecord) Email() *string { return a.email }

// Metadata returns a copy of the free-form metadata document.
func (a *AttendeeRecord) Metadata() map[string]interface{} { return maps.Clone(a.metadata) }

// AttendanceCount returns the number of attended sessions.
func (a *AttendeeRecord) AttendanceCount() int { return a.attendanceCount }

// AbsenceCount returns the number of missed sessions.
func (a *AttendeeRecord) AbsenceCount() int { return a.absenceCount }

// RegisteredAt returns when the attendee registered.
func (a *AttendeeRecord) RegisteredAt() time.Time { return a.registeredAt }

// UpdatedAt returns the last update timestamp.
func (a *AttendeeRecord) UpdatedAt() time.Time { return a.updatedAt }

// SetLegacyCourseName overwrites the course reference with free text, the way
// rows written before course identifiers existed look.
func (a *AttendeeRecord) SetLegacyCourseName(name string) {
	a.courseRef = &name
	a.updatedAt = time.Now()
}

// ClearCourseRef removes the course reference.
func (a *AttendeeRecord) ClearCourseRef() {
	a.courseRef = nil
	a.updatedAt = time.Now()
}

// SetContact sets the business and contact fields.
func (a *AttendeeRecord) SetContact(businessName, phone, email *string) {
	a.businessName = businessName
	a.phone = phone
	a.email = email
	a.updatedAt = time.Now()
}

// RecordAttendance adds attended and missed sessions.
func (a *AttendeeRecord) RecordAttendance(attended, missed int) {
	a.attendanceCount += attended
	a.absenceCount += missed
	a.updatedAt = time.Now()
}

// Archive produces the archived shape of this record with a resolved course name.
func (a *AttendeeRecord) Archive(courseName string, archivedAt time.Time) *ArchivedAttendeeRecord {
	return &ArchivedAttendeeRecord{
		originalID:      a.id,
		nationalID:      a.nationalID,
		fullName:        a.fullName,
		courseName:      courseName,
		businessName:    a.businessName,
		phone:           a.phone,
		email:           a.email,
		metadata:        maps.Clone(a.metadata),
		attendanceCount: a.attendanceCount,
		absenceCount:    a.absenceCount,
		registeredAt:    a.registeredAt,
		archivedAt:      archivedAt,
	}
}

// ArchivedAttendeeRecord is the immutable historical copy of an AttendeeRecord.
// The course is always stored as a resolved name.
type ArchivedAttendeeRecord struct {
	originalID      uuid.UUID
	nationalID      string
	fullName        string
	courseName      string
	businessName    *string
	phone           *string
	email           *string
	metadata        map[string]interface{}
	attendanceCount int
	absenceCount    int
	registeredAt    time.Time
	archivedAt      time.Time
}

// RestoreArchivedAttendeeRecord creates an ArchivedAttendeeRecord from stored data.
func RestoreArchivedAttendeeRecord(
	originalID uuid.UUID,
	nationalID string,
	fullName string,
	courseName string,
	businessName *string,
	phone *string,
	email *string,
	metadata map[string]interface{},
	attendanceCount int,
	absenceCount int,
	registeredAt time.Time,
	archivedAt time.Time,
) *ArchivedAttendeeRecord {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return &ArchivedAttendeeRecord{
		originalID:      originalID,
		nationalID:      nationalID,
		fullName:        fullName,
		courseName:      courseName,
		businessName:    businessName,
		phone:           phone,
		email:           email,
		metadata:        metadata,
		attendanceCount: attendanceCount,
		absenceCount:    absenceCount,
		registeredAt:    registeredAt,
		archivedAt:      archivedAt,
	}
}

// OriginalID returns the live record ID this archive entry was copied from.
func (r *ArchivedAttendeeRecord) OriginalID() uuid.UUID { return r.originalID }

// NationalID returns the personal identifier.
func (r *ArchivedAttendeeRecord) NationalID() string { return r.nationalID }

// FullName returns the display name.
func (r *ArchivedAttendeeRecord) FullName() string { return r.fullName }

// CourseName returns the resolved course name.
func (r *ArchivedAttendeeRecord) CourseName() string { return r.courseName }

// BusinessName returns the business name.
func (r *ArchivedAttendeeRecord) BusinessName() *string { return r.businessName }

// Phone returns the contact phone.
func (r *ArchivedAttendeeRecord) Phone() *string { return r.phone }

// Email returns the contact email.
func (r *ArchivedAttendeeRecord) Email() *string { return r.email }

// Metadata returns a copy of the metadata document.
func (r *ArchivedAttendeeRecord) Metadata() map[string]interface{} { return maps.Clone(r.metadata) }

// AttendanceCount returns the number of attended sessions.
func (r *ArchivedAttendeeRecord) AttendanceCount() int { return r.attendanceCount }

// AbsenceCount returns the number of missed sessions.
func (r *ArchivedAttendeeRecord) AbsenceCount() int { return r.absenceCount }

// RegisteredAt returns when the attendee originally registered.
func (r *ArchivedAttendeeRecord) RegisteredAt() time.Time { return r.registeredAt }

// ArchivedAt returns when the record was archived.
func (r *ArchivedAttendeeRecord) ArchivedAt() time.Time { return r.archivedAt }
