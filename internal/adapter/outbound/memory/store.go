// Package memory provides an in-memory transactional store implementing the
// archive outbound ports. Transactions run against a cloned state that replaces
// the committed state only when the transaction function succeeds.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"rollbook/internal/domain/entity"

	"github.com/google/uuid"
)

// Operation names a store call that faults can be injected into.
type Operation string

// Operations supporting fault injection.
const (
	OpFindCourse     Operation = "find_course"
	OpSelect         Operation = "select"
	OpOpenCursor     Operation = "open_cursor"
	OpBulkUpsert     Operation = "bulk_upsert"
	OpCountArchived  Operation = "count_archived"
	OpDelete         Operation = "delete"
	OpResetCounters  Operation = "reset_counters"
	OpLock           Operation = "lock"
	OpCommit         Operation = "commit"
	globalLockHolder           = "global"
)

// ErrTransactionClosed is returned when a transaction context is reused after
// the transaction has ended.
var ErrTransactionClosed = errors.New("memory store: transaction already closed")

type state struct {
	courses   map[uuid.UUID]*entity.Course
	attendees map[uuid.UUID]*entity.AttendeeRecord
	archived  map[uuid.UUID]*entity.ArchivedAttendeeRecord
}

func newState() state {
	return state{
		courses:   map[uuid.UUID]*entity.Course{},
		attendees: map[uuid.UUID]*entity.AttendeeRecord{},
		archived:  map[uuid.UUID]*entity.ArchivedAttendeeRecord{},
	}
}

func (s state) clone() state {
	c := state{
		courses:   make(map[uuid.UUID]*entity.Course, len(s.courses)),
		attendees: make(map[uuid.UUID]*entity.AttendeeRecord, len(s.attendees)),
		archived:  make(map[uuid.UUID]*entity.ArchivedAttendeeRecord, len(s.archived)),
	}
	for k, v := range s.courses {
		c.courses[k] = cloneCourse(v)
	}
	// live and archived records are replaced, never mutated, by the store
	for k, v := range s.attendees {
		c.attendees[k] = v
	}
	for k, v := range s.archived {
		c.archived[k] = v
	}
	return c
}

type fault struct {
	err       error
	remaining int
	skip      int
}

// Stats reports store activity for assertions in tests.
type Stats struct {
	Commits     int
	Rollbacks   int
	CursorPages int
	MaxPageSize int
	Flushes     []int
}

// Store is a transactional in-memory implementation of the archive ports.
// Transactions are serialized; at most one runs at a time.
type Store struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	state state

	faults      map[Operation]*fault
	countSkew   int
	heldLocks   map[string]bool
	heldGlobalR int
	stats       Stats
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		state:     newState(),
		faults:    map[Operation]*fault{},
		heldLocks: map[string]bool{},
	}
}

// AddCourse stores a course outside any transaction.
func (s *Store) AddCourse(course *entity.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.courses[course.ID()] = cloneCourse(course)
}

// AddAttendee stores a live record outside any transaction.
func (s *Store) AddAttendee(record *entity.AttendeeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.attendees[record.ID()] = cloneAttendee(record)
}

// AddArchived stores an archived record outside any transaction.
func (s *Store) AddArchived(record *entity.ArchivedAttendeeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.archived[record.OriginalID()] = record
}

// Course returns the committed course.
func (s *Store) Course(id uuid.UUID) (*entity.Course, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.state.courses[id]
	if !ok {
		return nil, false
	}
	return cloneCourse(c), true
}

// Attendee returns the committed live record.
func (s *Store) Attendee(id uuid.UUID) (*entity.AttendeeRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.state.attendees[id]
	if !ok {
		return nil, false
	}
	return cloneAttendee(a), true
}

// Archived returns the committed archived record for a live id.
func (s *Store) Archived(originalID uuid.UUID) (*entity.ArchivedAttendeeRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.state.archived[originalID]
	return r, ok
}

// ArchivedRecords returns every committed archived record ordered by original id.
func (s *Store) ArchivedRecords() []*entity.ArchivedAttendeeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entity.ArchivedAttendeeRecord, 0, len(s.state.archived))
	for _, r := range s.state.archived {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OriginalID().String() < out[j].OriginalID().String()
	})
	return out
}

// AttendeeCount returns the number of committed live records.
func (s *Store) AttendeeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.attendees)
}

// ArchivedCount returns the number of committed archived records.
func (s *Store) ArchivedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.archived)
}

// InjectFault makes the next times calls of op fail with err. A times value of
// zero or less fails every call.
func (s *Store) InjectFault(op Operation, err error, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = &fault{err: err, remaining: times}
}

// InjectFaultAfter lets the next skip calls of op succeed and fails every call
// after them with err.
func (s *Store) InjectFaultAfter(op Operation, err error, skip int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = &fault{err: err, skip: skip}
}

// ClearFaults removes every injected fault and count skew.
func (s *Store) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = map[Operation]*fault{}
	s.countSkew = 0
}

// SkewArchiveCount adds delta to every archived-count answer, simulating an
// archive store that lost or duplicated writes.
func (s *Store) SkewArchiveCount(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countSkew = delta
}

// Stats returns a copy of the activity counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Flushes = append([]int(nil), s.stats.Flushes...)
	return st
}

// ResetStats zeroes the activity counters.
func (s *Store) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = Stats{}
}

// checkFault must be called with s.mu held.
func (s *Store) checkFault(op Operation) error {
	f, ok := s.faults[op]
	if !ok {
		return nil
	}
	if f.skip > 0 {
		f.skip--
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
		if f.remaining == 0 {
			delete(s.faults, op)
		}
	}
	return fmt.Errorf("memory store %s: %w", op, f.err)
}

type txKey struct{}

type transaction struct {
	state  state
	locks  []string
	shared bool
	closed bool
}

func txFromContext(ctx context.Context) *transaction {
	tx, _ := ctx.Value(txKey{}).(*transaction)
	return tx
}

// view runs fn against the transaction state carried by ctx or, outside a
// transaction, against the committed state. Writes outside a transaction are
// applied immediately.
func (s *Store) view(ctx context.Context, op Operation, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if op != "" {
		if err := s.checkFault(op); err != nil {
			return err
		}
	}

	if tx := txFromContext(ctx); tx != nil {
		if tx.closed {
			return ErrTransactionClosed
		}
		return fn(&tx.state)
	}
	return fn(&s.state)
}

// WithTransaction runs fn against a snapshot of the store. The snapshot becomes
// the committed state only when fn returns nil. Scope locks taken through the
// context are released when the transaction ends.
func (s *Store) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	if tx := txFromContext(ctx); tx != nil && !tx.closed {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	tx := &transaction{state: s.state.clone()}
	s.mu.Unlock()

	err := fn(context.WithValue(ctx, txKey{}, tx))

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.releaseLocks(tx)
	tx.closed = true

	if err == nil {
		err = s.checkFault(OpCommit)
	}
	if err != nil {
		s.stats.Rollbacks++
		return err
	}
	s.state = tx.state
	s.stats.Commits++
	return nil
}

func cloneCourse(c *entity.Course) *entity.Course {
	return entity.RestoreCourse(c.ID(), c.Name(), c.CycleLengthDays(), c.ElapsedDays(), c.CreatedAt(), c.UpdatedAt())
}

func cloneAttendee(a *entity.AttendeeRecord) *entity.AttendeeRecord {
	return entity.RestoreAttendeeRecord(
		a.ID(), a.NationalID(), a.FullName(), a.RawCourseRef(),
		a.BusinessName(), a.Phone(), a.Email(), a.Metadata(),
		a.AttendanceCount(), a.AbsenceCount(), a.RegisteredAt(), a.UpdatedAt(),
	)
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
