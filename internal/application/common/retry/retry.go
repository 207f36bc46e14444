// Package retry runs operations again after transient store failures using
// exponential backoff.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"rollbook/internal/application/common/slogger"
)

// Config defines retry behavior.
type Config struct {
	MaxRetries    int           `json:"max_retries"`
	InitialDelay  time.Duration `json:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor"`
	Jitter        bool          `json:"jitter"`
}

// DefaultConfig returns a default retry configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:    2,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// Operation represents an operation that can be retried.
type Operation func(ctx context.Context) error

// Checker classifies errors as transient or permanent.
type Checker interface {
	IsRetryable(err error) bool
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(err error) bool

// IsRetryable implements Checker.
func (f CheckerFunc) IsRetryable(err error) bool { return f(err) }

// Executor handles retry logic with exponential backoff.
type Executor struct {
	config  *Config
	checker Checker
	onRetry func(ctx context.Context, attempt int, err error)
}

// NewExecutor creates a new retry executor. A nil checker falls back to
// DefaultChecker.
func NewExecutor(config *Config, checker Checker) *Executor {
	if config == nil {
		config = DefaultConfig()
	}
	if checker == nil {
		checker = DefaultChecker{}
	}
	return &Executor{config: config, checker: checker}
}

// OnRetry registers a hook invoked before every retry attempt.
func (r *Executor) OnRetry(hook func(ctx context.Context, attempt int, err error)) *Executor {
	r.onRetry = hook
	return r
}

// Execute runs operation, retrying transient failures up to MaxRetries times.
// The last error is returned unwrapped when it is not retryable, so callers can
// keep classifying it.
func (r *Executor) Execute(ctx context.Context, operation Operation) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateDelay(attempt)
			if r.onRetry != nil {
				r.onRetry(ctx, attempt, lastErr)
			}
			slogger.Debug(ctx, "Retrying operation after delay", slogger.Fields3(
				"attempt", attempt,
				"max_retries", r.config.MaxRetries,
				"delay_ms", delay.Milliseconds(),
			))

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := operation(ctx)
		if err == nil {
			if attempt > 0 {
				slogger.Info(ctx, "Operation succeeded after retries", slogger.Field("attempt", attempt+1))
			}
			return nil
		}

		lastErr = err

		if !r.checker.IsRetryable(err) {
			return err
		}

		slogger.Warn(ctx, "Operation failed, will retry", slogger.Fields3(
			"error", err.Error(),
			"attempt", attempt+1,
			"max_retries", r.config.MaxRetries,
		))
	}

	return fmt.Errorf("operation failed after %d retries: %w", r.config.MaxRetries, lastErr)
}

// calculateDelay calculates the delay for a given attempt using exponential backoff.
func (r *Executor) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.BackoffFactor, float64(attempt-1))

	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}

	if r.config.Jitter {
		// up to ±25%
		jitterRange := delay * 0.25
		delay += (rand.Float64()*2 - 1) * jitterRange
	}

	return time.Duration(delay)
}

// DefaultChecker retries common transient PostgreSQL and network failures.
type DefaultChecker struct{}

// IsRetryable checks if an error should be retried based on common patterns.
func (DefaultChecker) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	return containsAny(strings.ToLower(err.Error()), []string{
		"could not serialize access",
		"deadlock detected",
		"connection refused",
		"connection reset",
		"connection lost",
		"too many connections",
		"connection timed out",
		"try again",
	})
}

// containsAny checks if the string contains any of the substrings.
func containsAny(s string, substrings []string) bool {
	for _, substr := range substrings {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
