package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/draft-staging-api/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const migrationsPath = "../../migrations"

// openTestDB connects to the postgres named by TEST_DATABASE_HOST, skipping
// when none is configured
func openTestDB(t *testing.T) *DB {
	t.Helper()
	host := os.Getenv("TEST_DATABASE_HOST")
	if host == "" {
		t.Skip("TEST_DATABASE_HOST not set")
	}
	cfg := &config.DatabaseConfig{
		Host:         host,
		Port:         envOr("TEST_DATABASE_PORT", "5432"),
		User:         envOr("TEST_DATABASE_USER", "postgres"),
		Password:     os.Getenv("TEST_DATABASE_PASSWORD"),
		Name:         envOr("TEST_DATABASE_NAME", "content_test"),
		SSLMode:      "disable",
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		MaxLifetime:  time.Minute,
	}
	db, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestHealthCheckFollowsSchema(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.MigrateToVersion(migrationsPath, 1))
	require.NoError(t, db.MigrateDown(migrationsPath))
	assert.ErrorIs(t, db.HealthCheck(ctx), ErrSchemaMissing)

	_, _, ok, err := db.SchemaVersion(migrationsPath)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.RunMigrations(migrationsPath))
	assert.NoError(t, db.HealthCheck(ctx))

	version, dirty, ok, err := db.SchemaVersion(migrationsPath)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)

	// Re-running is a no-op
	require.NoError(t, db.RunMigrations(migrationsPath))
}
