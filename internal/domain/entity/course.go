package entity

import (
	"time"

	"github.com/google/uuid"
)

// Course is a training course whose attendees are archived at the end of each cycle.
type Course struct {
	id              uuid.UUID
	name            string
	cycleLengthDays int
	elapsedDays     int
	createdAt       time.Time
	updatedAt       time.Time
}

// NewCourse creates a new Course entity.
func NewCourse(name string, cycleLengthDays int) *Course {
	now := time.Now()
	return &Course{
		id:              uuid.New(),
		name:            name,
		cycleLengthDays: cycleLengthDays,
		createdAt:       now,
		updatedAt:       now,
	}
}

// RestoreCourse creates a Course entity from stored data.
func RestoreCourse(
	id uuid.UUID,
	name string,
	cycleLengthDays int,
	elapsedDays int,
	createdAt time.Time,
	updatedAt time.Time,
) *Course {
	return &Course{
		id:              id,
		name:            name,
		cycleLengthDays: cycleLengthDays,
		elapsedDays:     elapsedDays,
		createdAt:       createdAt,
		updatedAt:       updatedAt,
	}
}

// ID returns the course ID.
func (c *Course) ID() uuid.UUID { return c.id }

// Name returns the display name, which doubles as the legacy reference alias.
func (c *Course) Name() string { return c.name }

// CycleLengthDays returns the configured cycle length.
func (c *Course) CycleLengthDays() int { return c.cycleLengthDays }

// ElapsedDays returns how many days of the current cycle have passed.
func (c *Course) ElapsedDays() int { return c.elapsedDays }

// CreatedAt returns the creation timestamp.
func (c *Course) CreatedAt() time.Time { return c.createdAt }

// UpdatedAt returns the last update timestamp.
func (c *Course) UpdatedAt() time.Time { return c.updatedAt }

// AdvanceDays moves the cycle forward.
func (c *Course) AdvanceDays(days int) {
	c.elapsedDays += days
	c.updatedAt = time.Now()
}

// ResetElapsed sets the elapsed-day counter back to baseline.
func (c *Course) ResetElapsed(baseline int) {
	c.elapsedDays = baseline
	c.updatedAt = time.Now()
}

// ResetCycle sets both counters back to their defaults.
func (c *Course) ResetCycle(baseline, cycleLengthDays int) {
	c.elapsedDays = baseline
	c.cycleLengthDays = cycleLengthDays
	c.updatedAt = time.Now()
}
