package logging

import (
	"context"
	"time"
)

// NATSPublishEvent describes a single publish to the message bus.
type NATSPublishEvent struct {
	Subject     string
	MessageID   string
	MessageSize int64
	Stream      string
	Sequence    uint64
	Duration    time.Duration
	Success     bool
	Error       error
}

// NATSConsumeEvent describes the handling of a single inbound message.
type NATSConsumeEvent struct {
	Subject        string
	MessageID      string
	MessageSize    int64
	QueueGroup     string
	ProcessingTime time.Duration
	Success        bool
	Error          error
}

// LogNATSPublishEvent logs a publish event at INFO on success and ERROR on failure.
func LogNATSPublishEvent(ctx context.Context, logger ApplicationLogger, event NATSPublishEvent) {
	fields := Fields{
		"subject":      event.Subject,
		"message_id":   event.MessageID,
		"message_size": event.MessageSize,
		"duration":     event.Duration.String(),
	}
	if event.Stream != "" {
		fields["stream"] = event.Stream
		fields["sequence"] = event.Sequence
	}

	if event.Success {
		logger.Info(ctx, "NATS message published", fields)
		return
	}
	if event.Error != nil {
		logger.ErrorWithError(ctx, event.Error, "NATS publish failed", fields)
		return
	}
	logger.Error(ctx, "NATS publish failed", fields)
}

// LogNATSConsumeEvent logs the outcome of handling an inbound message.
func LogNATSConsumeEvent(ctx context.Context, logger ApplicationLogger, event NATSConsumeEvent) {
	fields := Fields{
		"subject":         event.Subject,
		"message_id":      event.MessageID,
		"message_size":    event.MessageSize,
		"queue_group":     event.QueueGroup,
		"processing_time": event.ProcessingTime.String(),
	}

	if event.Success {
		logger.Info(ctx, "NATS message processed", fields)
		return
	}
	if event.Error != nil {
		logger.ErrorWithError(ctx, event.Error, "NATS message processing failed", fields)
		return
	}
	logger.Warn(ctx, "NATS message processing failed", fields)
}
