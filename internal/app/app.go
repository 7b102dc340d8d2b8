// Package app assembles the configured backend, file tier and services for
// the server and the build-time CLI
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/draft-staging-api/internal/config"
	"github.com/draft-staging-api/internal/content"
	"github.com/draft-staging-api/internal/database"
	"github.com/draft-staging-api/internal/deploy"
	"github.com/draft-staging-api/internal/kv"
	"github.com/draft-staging-api/internal/repository"
	"github.com/draft-staging-api/internal/service"
	"github.com/draft-staging-api/internal/telemetry"
	"github.com/rs/zerolog"
)

// App holds everything a process needs to serve drafts and materialize them
type App struct {
	Config   *config.Config
	Metrics  *telemetry.Metrics
	Store    kv.Store
	Static   *content.FileStore
	Hook     *deploy.Client
	Services *service.Services

	// DB is set only for the postgres backend
	DB *database.DB

	closers []func() error
	log     zerolog.Logger
}

// Open connects the configured key-value backend, running migrations when it
// is postgres, and wires the services on top of it
func Open(cfg *config.Config, metrics *telemetry.Metrics, log zerolog.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Metrics: telemetry.OrNoop(metrics),
		log:     log,
	}

	store, err := a.openStore()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	static, err := content.NewFileStore(cfg.Content.Dir, cfg.Content.ParseCacheSz, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open content directory: %w", err)
	}
	a.Static = static

	a.Hook = deploy.NewClient(deploy.Options{
		URL:     cfg.Build.DeployHookURL,
		Timeout: cfg.Build.DeployHookTimeout,
		Retries: cfg.Build.DeployHookRetries,
	}, log, a.Metrics)

	repos := repository.New(store, log)
	a.Services = service.NewServices(repos, static, a.Hook, cfg, a.Metrics, log)
	return a, nil
}

func (a *App) openStore() (kv.Store, error) {
	switch a.Config.Store.Backend {
	case config.BackendMemory:
		a.log.Warn().Msg("Using in-memory store, drafts will not survive a restart")
		return kv.NewMemoryStore(), nil

	case config.BackendPebble:
		store, err := kv.NewPebbleStore(a.Config.Store.PebblePath, kv.PebbleOptions{CacheSizeMB: a.Config.Store.CacheSizeMB})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		a.log.Info().Str("path", a.Config.Store.PebblePath).Msg("Pebble store opened")
		return store, nil

	case config.BackendPostgres:
		db, err := OpenDatabase(a.Config, a.log)
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.closers = append(a.closers, db.Close)
		if err := db.RunMigrations(a.Config.Database.MigrationsPath); err != nil {
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		return kv.NewPostgresStore(db), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", a.Config.Store.Backend)
	}
}

// HealthCheck pings the backend when it is remote
func (a *App) HealthCheck(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	return a.DB.HealthCheck(ctx)
}

// OpenDatabase connects to postgres without touching the schema
func OpenDatabase(cfg *config.Config, log zerolog.Logger) (*database.DB, error) {
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Close releases the backend in reverse order of acquisition
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
