package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"rollbook/internal/application/common/logging"
	"rollbook/internal/application/common/slogger"
	"rollbook/internal/application/dto"
	domainerrors "rollbook/internal/domain/errors/domain"
	"rollbook/internal/domain/messaging"
	"rollbook/internal/domain/valueobject"
	"rollbook/internal/port/inbound"

	"github.com/nats-io/nats.go"
)

// ConsumerConfig holds configuration for the archive request consumer.
type ConsumerConfig struct {
	Subject    string
	QueueGroup string
	JobTimeout time.Duration
}

// QueueSubscriber subscribes cb to subject within queue and returns a function
// that drains the subscription.
type QueueSubscriber func(subject, queue string, cb nats.MsgHandler) (drain func() error, err error)

// ConnQueueSubscriber adapts a NATS connection to QueueSubscriber.
func ConnQueueSubscriber(conn *nats.Conn) QueueSubscriber {
	return func(subject, queue string, cb nats.MsgHandler) (func() error, error) {
		sub, err := conn.QueueSubscribe(subject, queue, cb)
		if err != nil {
			return nil, err
		}
		return sub.Drain, nil
	}
}

// ArchiveRequestConsumer runs archive migrations requested over NATS.
type ArchiveRequestConsumer struct {
	config    ConsumerConfig
	subscribe QueueSubscriber
	service   inbound.ArchiveService
	logger    logging.ApplicationLogger

	mu      sync.RWMutex
	running bool
	drain   func() error
	baseCtx context.Context
	cancel  context.CancelFunc
	stats   inbound.ConsumerStats
	health  inbound.ConsumerHealthStatus

	inFlight  sync.WaitGroup
	totalTime time.Duration
}

var _ inbound.Consumer = (*ArchiveRequestConsumer)(nil)

// NewArchiveRequestConsumer creates a consumer. Empty subject and queue group
// fall back to the defaults.
func NewArchiveRequestConsumer(
	config ConsumerConfig,
	subscribe QueueSubscriber,
	service inbound.ArchiveService,
) (*ArchiveRequestConsumer, error) {
	if subscribe == nil {
		return nil, errors.New("queue subscriber cannot be nil")
	}
	if service == nil {
		return nil, errors.New("archive service cannot be nil")
	}
	if config.Subject == "" {
		config.Subject = DefaultRequestSubject
	}
	if config.QueueGroup == "" {
		config.QueueGroup = DefaultQueueGroup
	}
	if config.JobTimeout < 0 {
		return nil, errors.New("job timeout cannot be negative")
	}
	if config.JobTimeout == 0 {
		config.JobTimeout = DefaultJobProcessingTimeout
	}

	return &ArchiveRequestConsumer{
		config:    config,
		subscribe: subscribe,
		service:   service,
		logger:    slogger.WithComponent("archive-request-consumer"),
		health: inbound.ConsumerHealthStatus{
			QueueGroup: config.QueueGroup,
			Subject:    config.Subject,
		},
	}, nil
}

// Start subscribes to the request subject. Migrations started from messages
// run under a context derived from ctx.
func (c *ArchiveRequestConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("consumer already running for subject %s", c.config.Subject)
	}

	baseCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	drain, err := c.subscribe(c.config.Subject, c.config.QueueGroup, c.onMessage)
	if err != nil {
		cancel()
		c.health.LastError = err.Error()
		return fmt.Errorf("failed to subscribe to %s: %w", c.config.Subject, err)
	}

	c.baseCtx = baseCtx
	c.cancel = cancel
	c.drain = drain
	c.running = true
	c.health.IsRunning = true
	c.health.IsConnected = true
	c.stats.ActiveSince = time.Now()

	slogger.Info(ctx, "Archive request consumer started", slogger.Fields2(
		"subject", c.config.Subject,
		"queue_group", c.config.QueueGroup,
	))
	return nil
}

// Stop drains the subscription and waits for in-flight migrations until ctx is
// done, after which they are canceled.
func (c *ArchiveRequestConsumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.health.IsRunning = false
	c.health.IsConnected = false
	drain, cancel := c.drain, c.cancel
	c.mu.Unlock()

	var drainErr error
	if drain != nil {
		drainErr = drain()
	}

	done := make(chan struct{})
	go func() {
		c.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
	case <-ctx.Done():
		cancel()
		<-done
	}

	slogger.Info(ctx, "Archive request consumer stopped", slogger.Field("subject", c.config.Subject))
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}
	return nil
}

// Health returns the current health status of the consumer.
func (c *ArchiveRequestConsumer) Health() inbound.ConsumerHealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.health
}

// GetStats returns consumer statistics.
func (c *ArchiveRequestConsumer) GetStats() inbound.ConsumerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// QueueGroup returns the consumer's queue group.
func (c *ArchiveRequestConsumer) QueueGroup() string {
	return c.config.QueueGroup
}

// Subject returns the consumer's subject.
func (c *ArchiveRequestConsumer) Subject() string {
	return c.config.Subject
}

func (c *ArchiveRequestConsumer) onMessage(msg *nats.Msg) {
	c.mu.RLock()
	if !c.running {
		c.mu.RUnlock()
		return
	}
	baseCtx := c.baseCtx
	c.inFlight.Add(1)
	c.mu.RUnlock()
	defer c.inFlight.Done()

	reply, _ := c.handleMessage(baseCtx, msg)
	if msg.Reply == "" {
		return
	}

	data, marshalErr := json.Marshal(reply)
	if marshalErr != nil {
		slogger.ErrorWithError(baseCtx, marshalErr, "Failed to encode archive reply", nil)
		return
	}
	if respondErr := msg.Respond(data); respondErr != nil {
		slogger.ErrorWithError(baseCtx, respondErr, "Failed to send archive reply",
			slogger.Field("reply", msg.Reply))
	}
}

// handleMessage decodes one request and runs the migration it names. A
// malformed request is rejected with an invalid-scope result.
func (c *ArchiveRequestConsumer) handleMessage(ctx context.Context, msg *nats.Msg) (ArchiveReply, error) {
	start := time.Now()

	request, err := messaging.DecodeArchiveRequest(msg.Data)
	if err != nil {
		result := dto.MigrationResult{StartedAt: start}
		result.Fail(fmt.Errorf("%w: %w", domainerrors.ErrInvalidScope, err))
		result.Finish(time.Now())
		c.record(false, true, time.Since(start), err)
		c.logConsume(ctx, msg, "", time.Since(start), err)
		return ArchiveReply{Result: result, Error: result.Message}, err
	}

	ctx = logging.WithCorrelationID(ctx, request.RequestID)
	ctx, cancel := context.WithTimeout(ctx, c.config.JobTimeout)
	defer cancel()

	var result dto.MigrationResult
	if request.Scope == valueobject.ArchiveScopeCourse {
		result, err = c.service.MigrateByCourse(ctx, request.CourseID, request.BatchSize)
	} else {
		result, err = c.service.MigrateAll(ctx, request.BatchSize)
	}

	elapsed := time.Since(start)
	c.record(err == nil, false, elapsed, err)
	c.logConsume(ctx, msg, request.RequestID, elapsed, err)

	reply := ArchiveReply{RequestID: request.RequestID, Result: result}
	if err != nil {
		reply.Error = err.Error()
	}
	return reply, err
}

func (c *ArchiveRequestConsumer) logConsume(
	ctx context.Context,
	msg *nats.Msg,
	requestID string,
	elapsed time.Duration,
	err error,
) {
	logging.LogNATSConsumeEvent(ctx, c.logger, logging.NATSConsumeEvent{
		Subject:        msg.Subject,
		MessageID:      requestID,
		MessageSize:    int64(len(msg.Data)),
		QueueGroup:     c.config.QueueGroup,
		ProcessingTime: elapsed,
		Success:        err == nil,
		Error:          err,
	})
}

// record updates consumer statistics in a thread-safe manner.
func (c *ArchiveRequestConsumer) record(success, rejected bool, processTime time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.MessagesReceived++
	c.stats.LastProcessTime = processTime
	c.health.LastMessageTime = time.Now()

	switch {
	case success:
		c.stats.MessagesProcessed++
		c.health.MessagesHandled++
	case rejected:
		c.stats.MessagesRejected++
		c.health.ErrorCount++
	default:
		c.stats.MessagesFailed++
		c.health.ErrorCount++
	}
	if err != nil {
		c.health.LastError = err.Error()
	}

	c.totalTime += processTime
	c.stats.AverageProcessTime = c.totalTime / time.Duration(c.stats.MessagesReceived)
}
