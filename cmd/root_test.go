package cmd

import (
	"testing"
	"time"

	"rollbook/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_ProduceValidConfig(t *testing.T) {
	cfg := config.New(newViper())

	assert.Equal(t, 5000, cfg.Archive.BatchSize)
	assert.Equal(t, 30, cfg.Archive.DefaultCycleLengthDays)
	assert.Equal(t, 0, cfg.Archive.BaselineElapsedDays)
	assert.Equal(t, 2, cfg.Archive.MaxRetries)
	assert.Equal(t, "course not registered", cfg.Archive.FallbackCourseName)
	assert.Equal(t, "repeatable_read", cfg.Archive.Isolation)
	assert.Equal(t, "archive.requests", cfg.Worker.Subject)
	assert.Equal(t, 30*time.Minute, cfg.Worker.JobTimeout)
	assert.False(t, cfg.NATS.Enabled())
	assert.False(t, cfg.Metrics.Enabled)
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("ROLLBOOK_ARCHIVE_BATCH_SIZE", "1200")
	t.Setenv("ROLLBOOK_NATS_URL", "nats://broker:4222")
	t.Setenv("ROLLBOOK_DATABASE_HOST", "db.internal")

	cfg := config.New(newViper())

	assert.Equal(t, 1200, cfg.Archive.BatchSize)
	assert.True(t, cfg.NATS.Enabled())
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestArchiveConfigMapping(t *testing.T) {
	cfg := config.New(newViper())
	cfg.Archive.BatchSize = 0
	cfg.Archive.BaselineElapsedDays = 1
	cfg.Archive.DefaultCycleLengthDays = 45
	cfg.Archive.FallbackCourseName = "unassigned"

	ac := archiveConfig(cfg)
	assert.Equal(t, 5000, ac.DefaultBatchSize, "zero batch size keeps the default")
	assert.Equal(t, 1, ac.Counters.BaselineElapsedDays)
	assert.Equal(t, 45, ac.Counters.DefaultCycleLengthDays)
	assert.Equal(t, "unassigned", ac.FallbackCourseName)

	db := databaseConfig(cfg)
	require.NoError(t, db.Validate())
	assert.Equal(t, "rollbook", db.Schema)
}
