package service

import (
	"context"
	"fmt"

	"rollbook/internal/port/outbound"

	"github.com/google/uuid"
)

// CounterResetter zeroes the cycle counters of courses whose records were archived.
type CounterResetter interface {
	// ResetOne returns the elapsed days of one course to the baseline.
	ResetOne(ctx context.Context, courseID uuid.UUID) error
	// ResetAll returns every course to the baseline and the default cycle length.
	ResetAll(ctx context.Context) error
}

// CounterPolicy holds the values counters are reset to.
type CounterPolicy struct {
	BaselineElapsedDays    int
	DefaultCycleLengthDays int
}

// DefaultCounterPolicy returns the policy used when none is configured.
func DefaultCounterPolicy() CounterPolicy {
	return CounterPolicy{
		BaselineElapsedDays:    0,
		DefaultCycleLengthDays: 30,
	}
}

type courseCounterResetter struct {
	counters outbound.CourseCounterRepository
	policy   CounterPolicy
}

// NewCounterResetter creates a CounterResetter backed by the course store.
func NewCounterResetter(counters outbound.CourseCounterRepository, policy CounterPolicy) CounterResetter {
	return &courseCounterResetter{counters: counters, policy: policy}
}

func (r *courseCounterResetter) ResetOne(ctx context.Context, courseID uuid.UUID) error {
	if err := r.counters.ResetElapsed(ctx, courseID, r.policy.BaselineElapsedDays); err != nil {
		return fmt.Errorf("failed to reset counters for course %s: %w", courseID, err)
	}
	return nil
}

func (r *courseCounterResetter) ResetAll(ctx context.Context) error {
	if _, err := r.counters.ResetAllCounters(ctx, r.policy.BaselineElapsedDays, r.policy.DefaultCycleLengthDays); err != nil {
		return fmt.Errorf("failed to reset course counters: %w", err)
	}
	return nil
}
