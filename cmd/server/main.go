package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/draft-staging-api/internal/api"
	"github.com/draft-staging-api/internal/app"
	"github.com/draft-staging-api/internal/config"
	"github.com/draft-staging-api/internal/telemetry"
	"github.com/draft-staging-api/pkg/logger"
	"github.com/rs/zerolog"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log := logger.New(logger.Options{})
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Env: cfg.Env})
	log.Info().Str("env", cfg.Env).Str("store", cfg.Store.Backend).Msg("Starting draft staging API server...")

	metrics := telemetry.New()

	// Initialize backend, file tier and services
	a, err := app.Open(cfg, metrics, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer closeApp(a, log)

	if cfg.Auth.AdminToken == "" {
		log.Warn().Msg("ADMIN_TOKEN is not set, admin routes will reject every request")
	}
	if !a.Hook.Configured() {
		log.Info().Msg("No deploy hook configured, builds materialize in-process")
	}

	// Start the nightly build scheduler
	a.Services.Scheduler.StartProcessor(context.Background())

	// Initialize router
	router := api.NewRouter(a.Services, cfg, log, api.Options{
		Metrics:     metrics,
		HealthCheck: a.HealthCheck,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop scheduler
	a.Services.Scheduler.StopProcessor()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return
	}

	log.Info().Msg("Server exited gracefully")
}

func closeApp(a *app.App, log zerolog.Logger) {
	if err := a.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close backend")
	}
}
