package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"rollbook/internal/application/common/logging"
	"rollbook/internal/application/dto"
	domainerrors "rollbook/internal/domain/errors/domain"
	"rollbook/internal/domain/messaging"
	"rollbook/internal/domain/valueobject"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// MockArchiveService mocks the archive service for consumer tests.
type MockArchiveService struct {
	mock.Mock
}

func (m *MockArchiveService) MigrateByCourse(ctx context.Context, courseID string, batchSize int) (dto.MigrationResult, error) {
	args := m.Called(ctx, courseID, batchSize)
	return args.Get(0).(dto.MigrationResult), args.Error(1)
}

func (m *MockArchiveService) MigrateAll(ctx context.Context, batchSize int) (dto.MigrationResult, error) {
	args := m.Called(ctx, batchSize)
	return args.Get(0).(dto.MigrationResult), args.Error(1)
}

type fakeSubscription struct {
	mu       sync.Mutex
	subject  string
	queue    string
	handler  nats.MsgHandler
	drained  bool
	drainErr error
	subErr   error
}

func (f *fakeSubscription) subscribe(subject, queue string, cb nats.MsgHandler) (func() error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.subject, f.queue, f.handler = subject, queue, cb
	return func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.drained = true
		return f.drainErr
	}, nil
}

func (f *fakeSubscription) deliver(data []byte) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	handler(&nats.Msg{Subject: DefaultRequestSubject, Data: data})
}

func encode(t *testing.T, msg messaging.ArchiveRequestMessage) []byte {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return data
}

func newTestConsumer(t *testing.T, sub *fakeSubscription, svc *MockArchiveService) *ArchiveRequestConsumer {
	t.Helper()
	consumer, err := NewArchiveRequestConsumer(ConsumerConfig{}, sub.subscribe, svc)
	require.NoError(t, err)
	return consumer
}

func TestNewArchiveRequestConsumer(t *testing.T) {
	sub := &fakeSubscription{}

	consumer, err := NewArchiveRequestConsumer(ConsumerConfig{}, sub.subscribe, &MockArchiveService{})
	require.NoError(t, err)
	assert.Equal(t, DefaultRequestSubject, consumer.Subject())
	assert.Equal(t, DefaultQueueGroup, consumer.QueueGroup())

	_, err = NewArchiveRequestConsumer(ConsumerConfig{}, nil, &MockArchiveService{})
	assert.EqualError(t, err, "queue subscriber cannot be nil")

	_, err = NewArchiveRequestConsumer(ConsumerConfig{}, sub.subscribe, nil)
	assert.EqualError(t, err, "archive service cannot be nil")

	_, err = NewArchiveRequestConsumer(ConsumerConfig{JobTimeout: -time.Second}, sub.subscribe, &MockArchiveService{})
	assert.EqualError(t, err, "job timeout cannot be negative")
}

func TestConsumer_StartSubscribesWithQueueGroup(t *testing.T) {
	sub := &fakeSubscription{}
	consumer := newTestConsumer(t, sub, &MockArchiveService{})
	ctx := context.Background()

	require.NoError(t, consumer.Start(ctx))
	assert.Equal(t, DefaultRequestSubject, sub.subject)
	assert.Equal(t, DefaultQueueGroup, sub.queue)
	assert.True(t, consumer.Health().IsRunning)

	err := consumer.Start(ctx)
	assert.Contains(t, err.Error(), "already running")

	require.NoError(t, consumer.Stop(ctx))
	assert.True(t, sub.drained)
	assert.False(t, consumer.Health().IsRunning)
	require.NoError(t, consumer.Stop(ctx), "stop is idempotent")
}

func TestConsumer_StartFailsWhenSubscribeFails(t *testing.T) {
	sub := &fakeSubscription{subErr: errors.New("nats: connection closed")}
	consumer := newTestConsumer(t, sub, &MockArchiveService{})

	err := consumer.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to subscribe")
	assert.False(t, consumer.Health().IsRunning)
}

func TestConsumer_DispatchesByScope(t *testing.T) {
	sub := &fakeSubscription{}
	svc := &MockArchiveService{}
	consumer := newTestConsumer(t, sub, svc)
	ctx := context.Background()
	courseID := uuid.NewString()

	courseReq := messaging.NewCourseArchiveRequest(courseID, 250)
	globalReq := messaging.NewGlobalArchiveRequest(0)

	svc.On("MigrateByCourse", mock.MatchedBy(func(ctx context.Context) bool {
		return logging.GetCorrelationID(ctx) == courseReq.RequestID
	}), courseID, 250).Return(dto.MigrationResult{OK: true, Scope: valueobject.ArchiveScopeCourse}, nil).Once()
	svc.On("MigrateAll", mock.Anything, 0).
		Return(dto.MigrationResult{OK: true, Scope: valueobject.ArchiveScopeAll}, nil).Once()

	require.NoError(t, consumer.Start(ctx))
	sub.deliver(encode(t, courseReq))
	sub.deliver(encode(t, globalReq))
	require.NoError(t, consumer.Stop(ctx))

	svc.AssertExpectations(t)
	stats := consumer.GetStats()
	assert.EqualValues(t, 2, stats.MessagesReceived)
	assert.EqualValues(t, 2, stats.MessagesProcessed)
}

func TestConsumer_HandleMessage_MalformedRequest(t *testing.T) {
	svc := &MockArchiveService{}
	consumer := newTestConsumer(t, &fakeSubscription{}, svc)

	reply, err := consumer.handleMessage(context.Background(), &nats.Msg{Data: []byte(`{"scope":"all"}`)})
	require.Error(t, err)
	assert.False(t, reply.Result.OK)
	assert.Equal(t, dto.ErrorCodeInvalidScope, reply.Result.ErrorCode)
	assert.NotEmpty(t, reply.Error)
	assert.EqualValues(t, 1, consumer.GetStats().MessagesRejected)
	svc.AssertNotCalled(t, "MigrateAll", mock.Anything, mock.Anything)
}

func TestConsumer_HandleMessage_FailedMigrationIsReported(t *testing.T) {
	svc := &MockArchiveService{}
	consumer := newTestConsumer(t, &fakeSubscription{}, svc)
	req := messaging.NewCourseArchiveRequest(uuid.NewString(), 0)

	failed := dto.MigrationResult{Scope: valueobject.ArchiveScopeCourse}
	failed.Fail(domainerrors.ErrScopeNotFound)
	svc.On("MigrateByCourse", mock.Anything, req.CourseID, 0).Return(failed, domainerrors.ErrScopeNotFound)

	reply, err := consumer.handleMessage(context.Background(), &nats.Msg{Data: encode(t, req)})
	require.ErrorIs(t, err, domainerrors.ErrScopeNotFound)
	assert.Equal(t, req.RequestID, reply.RequestID)
	assert.Equal(t, dto.ErrorCodeScopeNotFound, reply.Result.ErrorCode)
	assert.EqualValues(t, 1, consumer.GetStats().MessagesFailed)
	assert.Equal(t, domainerrors.ErrScopeNotFound.Error(), consumer.Health().LastError)
}

type blockingService struct {
	started chan struct{}
	ctxErr  chan error
}

func (b *blockingService) MigrateByCourse(ctx context.Context, _ string, _ int) (dto.MigrationResult, error) {
	return b.MigrateAll(ctx, 0)
}

func (b *blockingService) MigrateAll(ctx context.Context, _ int) (dto.MigrationResult, error) {
	close(b.started)
	<-ctx.Done()
	b.ctxErr <- ctx.Err()
	return dto.MigrationResult{}, ctx.Err()
}

func TestConsumer_StopCancelsInFlightAfterDeadline(t *testing.T) {
	sub := &fakeSubscription{}
	svc := &blockingService{started: make(chan struct{}), ctxErr: make(chan error, 1)}
	consumer, err := NewArchiveRequestConsumer(ConsumerConfig{}, sub.subscribe, svc)
	require.NoError(t, err)
	require.NoError(t, consumer.Start(context.Background()))

	data := encode(t, messaging.NewGlobalArchiveRequest(0))
	delivered := make(chan struct{})
	go func() {
		defer close(delivered)
		sub.deliver(data)
	}()
	<-svc.started

	stopCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, consumer.Stop(stopCtx))

	<-delivered
	assert.ErrorIs(t, <-svc.ctxErr, context.Canceled)

	sub.deliver(encode(t, messaging.NewGlobalArchiveRequest(0)))
	assert.EqualValues(t, 1, consumer.GetStats().MessagesReceived, "messages after stop are ignored")
}
