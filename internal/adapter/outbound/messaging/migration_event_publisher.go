package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"rollbook/internal/application/common/logging"
	"rollbook/internal/application/common/slogger"
	"rollbook/internal/application/dto"
	"rollbook/internal/config"
	"rollbook/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	// NATS connection timeout.
	natsConnectionTimeoutSeconds = 5

	// Stream configuration.
	streamMaxAgeDays  = 7
	defaultStreamName = "ARCHIVE"

	// Event subjects.
	SubjectMigrationCompleted = "archive.events.completed"
	SubjectMigrationFailed    = "archive.events.failed"

	// HeaderCorrelationID carries the migration's correlation id.
	HeaderCorrelationID = "Correlation-ID"
)

// MigrationEventMessage is the payload published after every migration.
type MigrationEventMessage struct {
	EventID       string              `json:"event_id"`
	CorrelationID string              `json:"correlation_id"`
	Result        dto.MigrationResult `json:"result"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

// PublisherHealthStatus reports the publisher's connection state.
type PublisherHealthStatus struct {
	Connected      bool   `json:"connected"`
	Stream         string `json:"stream"`
	Reconnects     int    `json:"reconnects"`
	LastError      string `json:"last_error,omitempty"`
	CircuitBreaker string `json:"circuit_breaker"`
}

// PublisherMetrics tracks event publishing.
type PublisherMetrics struct {
	PublishedCount    int64         `json:"published_count"`
	FailedCount       int64         `json:"failed_count"`
	AverageLatency    time.Duration `json:"average_latency"`
	LastPublishedTime time.Time     `json:"last_published_time"`
}

// jetStreamPublisher is the slice of nats.JetStreamContext used for publishing.
type jetStreamPublisher interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSMigrationEventPublisher publishes migration outcomes to NATS JetStream.
type NATSMigrationEventPublisher struct {
	config  config.NATSConfig
	stream  string
	conn    *nats.Conn
	js      nats.JetStreamContext
	pub     jetStreamPublisher
	logger  logging.ApplicationLogger
	mutex   sync.RWMutex
	metrics PublisherMetrics

	reconnectCount int
	lastError      error
	// Circuit breaker state
	circuitBreakerOpen bool
	lastFailureTime    time.Time
	failureCount       int
}

var _ outbound.MigrationEventPublisher = (*NATSMigrationEventPublisher)(nil)

// NewNATSMigrationEventPublisher creates a publisher. Call Connect before use.
func NewNATSMigrationEventPublisher(cfg config.NATSConfig) (*NATSMigrationEventPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("NATS URL cannot be empty")
	}
	if !strings.HasPrefix(cfg.URL, "nats://") {
		return nil, errors.New("invalid NATS URL scheme")
	}
	if cfg.MaxReconnects < 0 {
		return nil, errors.New("max reconnects cannot be negative")
	}
	if cfg.ReconnectWait < 0 {
		return nil, errors.New("reconnect wait cannot be negative")
	}

	stream := cfg.Stream
	if stream == "" {
		stream = defaultStreamName
	}

	return &NATSMigrationEventPublisher{
		config: cfg,
		stream: stream,
		logger: slogger.WithComponent("migration-event-publisher"),
	}, nil
}

// Connect establishes the NATS connection and JetStream context.
func (n *NATSMigrationEventPublisher) Connect() error {
	opts := []nats.Option{
		nats.Name("rollbook-publisher"),
		nats.MaxReconnects(n.config.MaxReconnects),
		nats.ReconnectWait(n.config.ReconnectWait),
		nats.Timeout(natsConnectionTimeoutSeconds * time.Second),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			n.mutex.Lock()
			n.reconnectCount++
			n.mutex.Unlock()
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				n.recordError(err)
			}
		}),
	}

	conn, err := nats.Connect(n.config.URL, opts...)
	if err != nil {
		n.recordError(err)
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		n.recordError(err)
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	n.mutex.Lock()
	n.conn = conn
	n.js = js
	n.pub = js
	n.mutex.Unlock()
	return nil
}

// Disconnect closes the NATS connection.
func (n *NATSMigrationEventPublisher) Disconnect() error {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if n.conn != nil {
		n.conn.Close()
	}
	n.conn = nil
	n.js = nil
	n.pub = nil
	return nil
}

// EnsureStream creates the event stream if it doesn't exist.
func (n *NATSMigrationEventPublisher) EnsureStream() error {
	n.mutex.RLock()
	js := n.js
	n.mutex.RUnlock()

	if js == nil {
		return errors.New("not connected to NATS server")
	}

	streamConfig := &nats.StreamConfig{
		Name:      n.stream,
		Subjects:  []string{"archive.events.>"},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    streamMaxAgeDays * 24 * time.Hour,
		Replicas:  1,
	}

	if _, err := js.AddStream(streamConfig); err != nil {
		if _, streamErr := js.StreamInfo(n.stream); streamErr == nil {
			return nil
		}
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// PublishMigrationResult publishes the result to the completed or failed subject.
func (n *NATSMigrationEventPublisher) PublishMigrationResult(
	ctx context.Context,
	correlationID string,
	result dto.MigrationResult,
) error {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		n.updateMetrics(false, time.Since(start))
		return err
	}

	if n.isCircuitBreakerOpen() {
		n.updateMetrics(false, time.Since(start))
		return errors.New("circuit breaker open: too many recent failures")
	}

	n.mutex.RLock()
	pub := n.pub
	n.mutex.RUnlock()
	if pub == nil {
		n.updateMetrics(false, time.Since(start))
		return errors.New("publish failed: not connected to NATS")
	}

	event := MigrationEventMessage{
		EventID:       uuid.NewString(),
		CorrelationID: correlationID,
		Result:        result,
		OccurredAt:    time.Now(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		n.updateMetrics(false, time.Since(start))
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := nats.NewMsg(SubjectFor(result))
	msg.Data = data
	if correlationID != "" {
		msg.Header.Set(HeaderCorrelationID, correlationID)
	}

	ack, err := pub.PublishMsg(msg, nats.Context(ctx), nats.MsgId(event.EventID))
	logEvent := logging.NATSPublishEvent{
		Subject:     msg.Subject,
		MessageID:   event.EventID,
		MessageSize: int64(len(data)),
		Duration:    time.Since(start),
		Success:     err == nil,
		Error:       err,
	}
	if ack != nil {
		logEvent.Stream = ack.Stream
		logEvent.Sequence = ack.Sequence
	}
	logging.LogNATSPublishEvent(ctx, n.logger, logEvent)

	if err != nil {
		n.updateMetrics(false, time.Since(start))
		n.recordError(err)
		return fmt.Errorf("failed to publish message: %w", err)
	}

	n.updateMetrics(true, time.Since(start))
	return nil
}

// SubjectFor returns the event subject for a result.
func SubjectFor(result dto.MigrationResult) string {
	if result.OK {
		return SubjectMigrationCompleted
	}
	return SubjectMigrationFailed
}

// GetConnectionHealth returns the current connection health status.
func (n *NATSMigrationEventPublisher) GetConnectionHealth() PublisherHealthStatus {
	n.mutex.RLock()
	defer n.mutex.RUnlock()

	status := PublisherHealthStatus{
		Connected:      n.conn != nil && n.conn.IsConnected(),
		Stream:         n.stream,
		Reconnects:     n.reconnectCount,
		CircuitBreaker: "closed",
	}
	if n.lastError != nil {
		status.LastError = n.lastError.Error()
	}
	if n.circuitBreakerOpen {
		status.CircuitBreaker = "open"
	}
	return status
}

// GetMessageMetrics returns current publishing metrics.
func (n *NATSMigrationEventPublisher) GetMessageMetrics() PublisherMetrics {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.metrics
}

func (n *NATSMigrationEventPublisher) recordError(err error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.lastError = err
}

// updateMetrics updates message publishing metrics.
func (n *NATSMigrationEventPublisher) updateMetrics(success bool, latency time.Duration) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if success {
		n.metrics.PublishedCount++
		n.metrics.LastPublishedTime = time.Now()

		// EMA with alpha = 0.1
		if n.metrics.AverageLatency == 0 {
			n.metrics.AverageLatency = latency
		} else {
			n.metrics.AverageLatency = time.Duration(
				0.9*float64(n.metrics.AverageLatency) + 0.1*float64(latency),
			)
		}
		n.updateCircuitBreaker(true)
		return
	}

	n.metrics.FailedCount++
	n.updateCircuitBreaker(false)
}

// updateCircuitBreaker updates circuit breaker state. Callers hold the mutex.
func (n *NATSMigrationEventPublisher) updateCircuitBreaker(success bool) {
	const maxFailures = 3

	if success {
		n.failureCount = 0
		n.circuitBreakerOpen = false
		return
	}

	n.failureCount++
	n.lastFailureTime = time.Now()
	if n.failureCount >= maxFailures {
		n.circuitBreakerOpen = true
	}
}

// isCircuitBreakerOpen checks if circuit breaker is currently open, closing it
// again once the cool-down has passed.
func (n *NATSMigrationEventPublisher) isCircuitBreakerOpen() bool {
	const circuitOpenDuration = 30 * time.Second

	n.mutex.Lock()
	defer n.mutex.Unlock()

	if n.circuitBreakerOpen && time.Since(n.lastFailureTime) > circuitOpenDuration {
		n.circuitBreakerOpen = false
		n.failureCount = 0
	}
	return n.circuitBreakerOpen
}

// ResetCircuitBreaker resets the circuit breaker state.
func (n *NATSMigrationEventPublisher) ResetCircuitBreaker() {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.circuitBreakerOpen = false
	n.failureCount = 0
	n.lastFailureTime = time.Time{}
}
