package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ApplicationLogger defines the interface for structured application logging
type ApplicationLogger interface {
	Debug(ctx context.Context, message string, fields Fields)
	Info(ctx context.Context, message string, fields Fields)
	Warn(ctx context.Context, message string, fields Fields)
	Error(ctx context.Context, message string, fields Fields)
	ErrorWithError(ctx context.Context, err error, message string, fields Fields)
	LogPerformance(ctx context.Context, operation string, duration time.Duration, fields Fields)
	WithComponent(component string) ApplicationLogger
}

// Fields represents structured logging fields
type Fields map[string]interface{}

// Config represents logger configuration
type Config struct {
	Level           string
	Format          string // json, text
	Output          string // stdout, stderr
	EnableColors    bool
	TimestampFormat string // text format only
}

// DefaultConfig returns the configuration used before the CLI applies its own.
func DefaultConfig() Config {
	return Config{
		Level:  "INFO",
		Format: "json",
		Output: "stdout",
	}
}

// zerologApplicationLogger implements ApplicationLogger on top of zerolog.
type zerologApplicationLogger struct {
	logger    zerolog.Logger
	component string
}

// NewApplicationLogger creates a new application logger writing to the
// configured output.
func NewApplicationLogger(config Config) (ApplicationLogger, error) {
	var out io.Writer
	switch strings.ToLower(config.Output) {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		return nil, fmt.Errorf("invalid log output: %s", config.Output)
	}
	return NewApplicationLoggerWithWriter(config, out)
}

// NewApplicationLoggerWithWriter creates a logger writing to w. Tests use it
// with a bytes.Buffer.
func NewApplicationLoggerWithWriter(config Config, w io.Writer) (ApplicationLogger, error) {
	level, err := parseLevel(config.Level)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(config.Format) {
	case "", "json":
	case "text":
		w = zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    !config.EnableColors,
			TimeFormat: timeFormat(config.TimestampFormat),
		}
	default:
		return nil, fmt.Errorf("invalid log format: %s", config.Format)
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &zerologApplicationLogger{logger: logger}, nil
}

func parseLevel(level string) (zerolog.Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel, nil
	case "", "INFO":
		return zerolog.InfoLevel, nil
	case "WARN", "WARNING":
		return zerolog.WarnLevel, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

func timeFormat(format string) string {
	if format == "" {
		return time.RFC3339
	}
	return format
}

// Debug logs debug messages
func (l *zerologApplicationLogger) Debug(ctx context.Context, message string, fields Fields) {
	l.write(ctx, l.logger.Debug(), message, fields)
}

// Info logs info messages
func (l *zerologApplicationLogger) Info(ctx context.Context, message string, fields Fields) {
	l.write(ctx, l.logger.Info(), message, fields)
}

// Warn logs warning messages
func (l *zerologApplicationLogger) Warn(ctx context.Context, message string, fields Fields) {
	l.write(ctx, l.logger.Warn(), message, fields)
}

// Error logs error messages
func (l *zerologApplicationLogger) Error(ctx context.Context, message string, fields Fields) {
	l.write(ctx, l.logger.Error(), message, fields)
}

// ErrorWithError logs error messages with an error object
func (l *zerologApplicationLogger) ErrorWithError(ctx context.Context, err error, message string, fields Fields) {
	l.write(ctx, l.logger.Error().Err(err), message, fields)
}

// LogPerformance logs the duration of a completed operation.
func (l *zerologApplicationLogger) LogPerformance(
	ctx context.Context,
	operation string,
	duration time.Duration,
	fields Fields,
) {
	event := l.logger.Info().
		Str("operation", operation).
		Dur("duration_ms", duration)
	l.write(ctx, event, fmt.Sprintf("Performance metrics for %s", operation), fields)
}

// WithComponent returns a child logger tagging every entry with component.
func (l *zerologApplicationLogger) WithComponent(component string) ApplicationLogger {
	return &zerologApplicationLogger{
		logger:    l.logger,
		component: component,
	}
}

func (l *zerologApplicationLogger) write(ctx context.Context, event *zerolog.Event, message string, fields Fields) {
	if event == nil {
		// level disabled
		return
	}
	if l.component != "" {
		event = event.Str("component", l.component)
	}
	if id := GetCorrelationID(ctx); id != "" {
		event = event.Str("correlation_id", id)
	}
	if len(fields) > 0 {
		event = event.Fields(map[string]interface{}(fields))
	}
	event.Msg(message)
}
