package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/draft-staging-api/internal/config"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// KVTable holds every key-value entry of the postgres backend
const KVTable = "kv_entries"

// ErrSchemaMissing is returned by HealthCheck when the database is reachable
// but the key-value table has not been migrated
var ErrSchemaMissing = errors.New("database: " + KVTable + " table missing, run migrations")

// DB wraps the sql.DB connection used by the key-value store
type DB struct {
	*sql.DB
	log zerolog.Logger
}

// New opens a pooled connection and verifies it answers within five seconds
func New(cfg *config.DatabaseConfig, log zerolog.Logger) (*DB, error) {
	conn, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.MaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		DB:  conn,
		log: log.With().Str("component", "database").Logger(),
	}
	db.log.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Name).
		Int("max_open_conns", cfg.MaxOpenConns).
		Msg("Database connection established")

	return db, nil
}

// RunMigrations applies every pending migration
func (db *DB) RunMigrations(migrationsPath string) error {
	return db.migrate(migrationsPath, "apply migrations", func(m *migrate.Migrate) error {
		return m.Up()
	})
}

// MigrateDown rolls back the last applied migration
func (db *DB) MigrateDown(migrationsPath string) error {
	return db.migrate(migrationsPath, "roll back migration", func(m *migrate.Migrate) error {
		return m.Steps(-1)
	})
}

// MigrateToVersion moves the schema up or down to version
func (db *DB) MigrateToVersion(migrationsPath string, version uint) error {
	return db.migrate(migrationsPath, fmt.Sprintf("migrate to version %d", version), func(m *migrate.Migrate) error {
		return m.Migrate(version)
	})
}

// SchemaVersion reports the applied migration version. ok is false when no
// migration has ever run.
func (db *DB) SchemaVersion(migrationsPath string) (version uint, dirty, ok bool, err error) {
	m, err := db.newMigrate(migrationsPath)
	if err != nil {
		return 0, false, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, dirty, true, nil
}

// migrate runs one golang-migrate action and logs the resulting version.
// ErrNoChange is not an error.
func (db *DB) migrate(migrationsPath, action string, fn func(*migrate.Migrate) error) error {
	db.log.Info().Str("path", migrationsPath).Msg("Schema change: " + action)

	m, err := db.newMigrate(migrationsPath)
	if err != nil {
		return err
	}
	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to %s: %w", action, err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		db.log.Info().Msg("Schema is empty")
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	default:
		db.log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Schema up to date")
	}
	return nil
}

func (db *DB) newMigrate(migrationsPath string) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// HealthCheck verifies the connection answers and the key-value table exists
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.PingContext(ctx); err != nil {
		return err
	}
	var present bool
	if err := db.QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, KVTable).Scan(&present); err != nil {
		return fmt.Errorf("failed to look up %s: %w", KVTable, err)
	}
	if !present {
		return ErrSchemaMissing
	}
	return nil
}
