package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseHealthChecker_WithoutPool(t *testing.T) {
	var nilChecker *DatabaseHealthChecker
	assert.False(t, nilChecker.IsHealthy(context.Background()))
	assert.Nil(t, nilChecker.GetMetrics(context.Background()))

	checker := NewDatabaseHealthChecker(nil)
	assert.False(t, checker.IsHealthy(context.Background()))
	assert.Nil(t, checker.GetMetrics(context.Background()))
}

func TestDatabaseHealthChecker_ReportsPoolStats(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	checker := NewDatabaseHealthChecker(pool)

	assert.True(t, checker.IsHealthy(ctx))

	metrics := checker.GetMetrics(ctx)
	require.NotNil(t, metrics)
	assert.Positive(t, metrics.TotalConnections)
	assert.LessOrEqual(t, metrics.IdleConnections, metrics.TotalConnections)
	assert.Positive(t, metrics.ResponseTime)
}
