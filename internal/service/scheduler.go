package service

import (
	"context"
	"sync"
	"time"

	"github.com/draft-staging-api/internal/telemetry"
	"github.com/rs/zerolog"
)

// scheduler is the concrete implementation of Scheduler. It runs the nightly
// check on a ticker; an interval of zero disables it.
type scheduler struct {
	build    BuildService
	interval time.Duration
	metrics  *telemetry.Metrics
	log      zerolog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	mu      sync.Mutex
}

func newScheduler(build BuildService, interval time.Duration, metrics *telemetry.Metrics, log zerolog.Logger) *scheduler {
	return &scheduler{
		build:    build,
		interval: interval,
		metrics:  metrics,
		log:      log.With().Str("service", "scheduler").Logger(),
	}
}

// StartProcessor launches the check loop in the background. The loop runs
// until ctx is canceled or StopProcessor is called.
func (s *scheduler) StartProcessor(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info().Msg("Build scheduler disabled")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.loop(s.ctx, s.done)
}

func (s *scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	s.log.Info().Dur("interval", s.interval).Msg("Build scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Build scheduler stopping")
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

// StopProcessor stops the loop and waits for an in-flight check to finish
func (s *scheduler) StopProcessor() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	<-s.done
	s.running = false
	s.log.Info().Msg("Build scheduler stopped")
}

func (s *scheduler) check(ctx context.Context) {
	// Panic recovery keeps one bad check from killing the loop
	defer func() {
		if r := recover(); r != nil {
			s.metrics.SchedulerChecks.With("panic").Inc()
			s.log.Error().Interface("panic", r).Msg("Nightly check panicked - recovered")
		}
	}()

	result, err := s.build.Nightly(ctx)
	if err != nil {
		s.metrics.SchedulerChecks.With("failed").Inc()
		s.log.Error().Err(err).Msg("Nightly check failed")
		return
	}
	if !result.Triggered {
		s.metrics.SchedulerChecks.With("idle").Inc()
		s.log.Debug().Msg(result.Message)
		return
	}
	s.metrics.SchedulerChecks.With("triggered").Inc()
	s.log.Info().
		Int("temp_posts", result.TempPosts).
		Int("deletions", result.Deletions).
		Str("deployment_url", result.DeploymentURL).
		Msg("Nightly check triggered a build")
}
