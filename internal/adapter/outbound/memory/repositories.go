package memory

import (
	"context"
	"errors"
	"fmt"

	"rollbook/internal/domain/entity"
	domainerrors "rollbook/internal/domain/errors/domain"
	"rollbook/internal/domain/valueobject"
	"rollbook/internal/port/outbound"

	"github.com/google/uuid"
)

var (
	_ outbound.CourseRepository        = (*Store)(nil)
	_ outbound.CourseCounterRepository = (*Store)(nil)
	_ outbound.AttendeeRepository      = (*Store)(nil)
	_ outbound.ArchiveRepository       = (*Store)(nil)
	_ outbound.TransactionManager      = (*Store)(nil)
	_ outbound.MigrationLocker         = (*Store)(nil)
)

// FindByID returns the course or (nil, nil) when it does not exist.
func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*entity.Course, error) {
	var course *entity.Course
	err := s.view(ctx, OpFindCourse, func(st *state) error {
		if c, ok := st.courses[id]; ok {
			course = cloneCourse(c)
		}
		return nil
	})
	return course, err
}

// FindAll returns every course ordered by id.
func (s *Store) FindAll(ctx context.Context) ([]*entity.Course, error) {
	var courses []*entity.Course
	err := s.view(ctx, OpFindCourse, func(st *state) error {
		ids := make([]uuid.UUID, 0, len(st.courses))
		for id := range st.courses {
			ids = append(ids, id)
		}
		sortIDs(ids)
		for _, id := range ids {
			courses = append(courses, cloneCourse(st.courses[id]))
		}
		return nil
	})
	return courses, err
}

// ResetElapsed sets the elapsed days of one course to baseline.
func (s *Store) ResetElapsed(ctx context.Context, courseID uuid.UUID, baseline int) error {
	return s.view(ctx, OpResetCounters, func(st *state) error {
		c, ok := st.courses[courseID]
		if !ok {
			return fmt.Errorf("course %s: %w", courseID, domainerrors.ErrScopeNotFound)
		}
		updated := cloneCourse(c)
		updated.ResetElapsed(baseline)
		st.courses[courseID] = updated
		return nil
	})
}

// ResetAllCounters resets the elapsed days and cycle length of every course.
func (s *Store) ResetAllCounters(ctx context.Context, baseline, cycleLengthDays int) (int64, error) {
	var n int64
	err := s.view(ctx, OpResetCounters, func(st *state) error {
		for id, c := range st.courses {
			updated := cloneCourse(c)
			updated.ResetCycle(baseline, cycleLengthDays)
			st.courses[id] = updated
			n++
		}
		return nil
	})
	return n, err
}

// DistinctIDsForCourse returns ids of live records whose course reference
// parses to the course id or equals its legacy name exactly.
func (s *Store) DistinctIDsForCourse(ctx context.Context, courseID uuid.UUID, legacyName string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.view(ctx, OpSelect, func(st *state) error {
		for id, a := range st.attendees {
			ref := a.RawCourseRef()
			if ref == nil {
				continue
			}
			if refID, ok := valueobject.ParseCourseRef(ref).ID(); ok && refID == courseID {
				ids = append(ids, id)
				continue
			}
			if legacyName != "" && *ref == legacyName {
				ids = append(ids, id)
			}
		}
		return nil
	})
	sortIDs(ids)
	return ids, err
}

// AllIDs returns the id of every live record.
func (s *Store) AllIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.view(ctx, OpSelect, func(st *state) error {
		ids = make([]uuid.UUID, 0, len(st.attendees))
		for id := range st.attendees {
			ids = append(ids, id)
		}
		return nil
	})
	sortIDs(ids)
	return ids, err
}

// OpenCursor returns a forward-only cursor reading pageSize records at a time.
func (s *Store) OpenCursor(ctx context.Context, ids []uuid.UUID, pageSize int) (outbound.AttendeeCursor, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", pageSize)
	}
	if err := s.view(ctx, OpOpenCursor, func(*state) error { return nil }); err != nil {
		return nil, err
	}
	remaining := append([]uuid.UUID(nil), ids...)
	return &cursor{store: s, remaining: remaining, pageSize: pageSize}, nil
}

// DeleteByIDs removes live records and returns how many existed.
func (s *Store) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	var n int64
	err := s.view(ctx, OpDelete, func(st *state) error {
		for _, id := range ids {
			if _, ok := st.attendees[id]; ok {
				delete(st.attendees, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

// BulkUpsert inserts or overwrites archived records keyed by original id.
func (s *Store) BulkUpsert(ctx context.Context, records []*entity.ArchivedAttendeeRecord) (int, error) {
	err := s.view(ctx, OpBulkUpsert, func(st *state) error {
		for _, r := range records {
			st.archived[r.OriginalID()] = r
		}
		s.stats.Flushes = append(s.stats.Flushes, len(records))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// CountByOriginalIDs counts archived records whose original id is in ids.
func (s *Store) CountByOriginalIDs(ctx context.Context, ids []uuid.UUID) (int, error) {
	var n int
	err := s.view(ctx, OpCountArchived, func(st *state) error {
		for _, id := range ids {
			if _, ok := st.archived[id]; ok {
				n++
			}
		}
		n += s.countSkew
		return nil
	})
	return n, err
}

// TryLockScope takes the scope lock for the transaction carried by ctx.
// A global migration needs the global lock exclusively; a course migration
// shares the global lock and holds its course lock exclusively.
func (s *Store) TryLockScope(ctx context.Context, scope valueobject.ArchiveScope, courseID uuid.UUID) (bool, error) {
	tx := txFromContext(ctx)
	if tx == nil {
		return false, errors.New("scope locks require a transaction")
	}

	var acquired bool
	err := s.view(ctx, OpLock, func(*state) error {
		keys, shared, ok := s.acquire(scope, courseID)
		if ok {
			tx.locks = append(tx.locks, keys...)
			tx.shared = tx.shared || shared
		}
		acquired = ok
		return nil
	})
	return acquired, err
}

// HoldLock takes a scope lock as if another session held it, until release is
// called. ok is false when the lock is not available.
func (s *Store) HoldLock(scope valueobject.ArchiveScope, courseID uuid.UUID) (release func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, shared, ok := s.acquire(scope, courseID)
	if !ok {
		return func() {}, false
	}
	holder := &transaction{locks: keys, shared: shared}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.releaseLocks(holder)
	}, true
}

// acquire must be called with s.mu held.
func (s *Store) acquire(scope valueobject.ArchiveScope, courseID uuid.UUID) ([]string, bool, bool) {
	if s.heldLocks[globalLockHolder] {
		return nil, false, false
	}
	if !scope.IsCourse() {
		if s.heldGlobalR > 0 {
			return nil, false, false
		}
		s.heldLocks[globalLockHolder] = true
		return []string{globalLockHolder}, false, true
	}

	key := courseID.String()
	if s.heldLocks[key] {
		return nil, false, false
	}
	s.heldLocks[key] = true
	s.heldGlobalR++
	return []string{key}, true, true
}

// releaseLocks must be called with s.mu held.
func (s *Store) releaseLocks(tx *transaction) {
	for _, key := range tx.locks {
		delete(s.heldLocks, key)
	}
	if tx.shared {
		s.heldGlobalR--
	}
	tx.locks = nil
	tx.shared = false
}

type cursor struct {
	store     *Store
	remaining []uuid.UUID
	pageSize  int
	page      []*entity.AttendeeRecord
	current   *entity.AttendeeRecord
	err       error
	closed    bool
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.closed || c.err != nil {
		return false
	}
	for len(c.page) == 0 {
		if len(c.remaining) == 0 {
			c.current = nil
			return false
		}
		if err := c.fetch(ctx); err != nil {
			c.err = err
			return false
		}
	}
	c.current = c.page[0]
	c.page = c.page[1:]
	return true
}

// fetch loads the next page. Ids deleted since selection are skipped.
func (c *cursor) fetch(ctx context.Context) error {
	n := min(c.pageSize, len(c.remaining))
	batch := c.remaining[:n]
	c.remaining = c.remaining[n:]

	return c.store.view(ctx, "", func(st *state) error {
		for _, id := range batch {
			if a, ok := st.attendees[id]; ok {
				c.page = append(c.page, cloneAttendee(a))
			}
		}
		c.store.stats.CursorPages++
		c.store.stats.MaxPageSize = max(c.store.stats.MaxPageSize, n)
		return nil
	})
}

func (c *cursor) Record() *entity.AttendeeRecord { return c.current }

func (c *cursor) Err() error { return c.err }

func (c *cursor) Close(context.Context) error {
	c.closed = true
	c.page = nil
	c.remaining = nil
	return nil
}
