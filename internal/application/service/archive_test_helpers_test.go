package service

import (
	"context"
	"fmt"
	"time"

	"rollbook/internal/adapter/outbound/memory"
	"rollbook/internal/application/dto"
	"rollbook/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

func testArchiveConfig() ArchiveConfig {
	config := DefaultArchiveConfig()
	config.RetryInitialDelay = time.Millisecond
	config.RetryMaxDelay = 2 * time.Millisecond
	return config
}

func newTestArchiveService(store *memory.Store, config ArchiveConfig) *ArchiveMigrationService {
	return NewArchiveMigrationService(ArchiveDependencies{
		Courses:   store,
		Counters:  store,
		Attendees: store,
		Archive:   store,
		TxManager: store,
		Locker:    store,
	}, config)
}

func addCourse(store *memory.Store, name string, cycleLength, elapsed int) *entity.Course {
	course := entity.RestoreCourse(uuid.New(), name, cycleLength, elapsed, time.Now(), time.Now())
	store.AddCourse(course)
	return course
}

func addAttendees(store *memory.Store, course *entity.Course, n int) []uuid.UUID {
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		record := entity.NewAttendeeRecord(fmt.Sprintf("NID-%06d", i), fmt.Sprintf("Attendee %d", i), course.ID())
		record.RecordAttendance(i%5, i%3)
		store.AddAttendee(record)
		ids = append(ids, record.ID())
	}
	return ids
}

func addLegacyAttendee(store *memory.Store, courseName string) uuid.UUID {
	record := entity.NewAttendeeRecord("LEGACY", "Legacy Attendee", uuid.Nil)
	record.SetLegacyCourseName(courseName)
	store.AddAttendee(record)
	return record.ID()
}

func addUnreferencedAttendee(store *memory.Store) uuid.UUID {
	record := entity.NewAttendeeRecord("NOREF", "No Reference", uuid.Nil)
	record.ClearCourseRef()
	store.AddAttendee(record)
	return record.ID()
}

type mockEventPublisher struct {
	mock.Mock
}

func (m *mockEventPublisher) PublishMigrationResult(ctx context.Context, correlationID string, result dto.MigrationResult) error {
	args := m.Called(ctx, correlationID, result)
	return args.Error(0)
}

func courseElapsed(store *memory.Store, id uuid.UUID) int {
	course, ok := store.Course(id)
	if !ok {
		return -1
	}
	return course.ElapsedDays()
}

func archivedNames(store *memory.Store) map[uuid.UUID]string {
	out := map[uuid.UUID]string{}
	for _, r := range store.ArchivedRecords() {
		out[r.OriginalID()] = r.CourseName()
	}
	return out
}
