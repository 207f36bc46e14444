package repository

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

const testDatabaseURLEnv = "ROLLBOOK_TEST_DATABASE_URL"

// setupTestDB connects to the database named by ROLLBOOK_TEST_DATABASE_URL,
// applies the schema and empties the tables. The test is skipped when the
// variable is unset.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv(testDatabaseURLEnv)
	if url == "" {
		t.Skipf("%s not set; skipping PostgreSQL test", testDatabaseURLEnv)
	}

	ctx := context.Background()
	pool, err := NewDatabaseConnectionFromString(ctx, url, DatabaseConfig{MaxConnections: 4})
	require.NoError(t, err)

	_, err = ApplySchema(ctx, pool)
	require.NoError(t, err)

	cleanupTestData(t, pool)
	t.Cleanup(func() {
		cleanupTestData(t, pool)
		pool.Close()
	})
	return pool
}

func cleanupTestData(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`TRUNCATE rollbook.archived_attendees, rollbook.attendees, rollbook.courses`)
	if err != nil {
		t.Logf("Warning: failed to clean up test data: %v", err)
	}
}
