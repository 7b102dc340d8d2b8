package service

import (
	"context"

	"github.com/draft-staging-api/internal/deploy"
	"github.com/draft-staging-api/internal/models"
	"github.com/draft-staging-api/internal/repository"
	"github.com/rs/zerolog"
)

// buildService is the concrete implementation of BuildService
type buildService struct {
	index        repository.SlugIndex
	markers      repository.MarkerRepository
	materializer Materializer
	hook         DeployTrigger
	production   bool
	log          zerolog.Logger
}

func newBuildService(repos *repository.Repositories, materializer Materializer, hook DeployTrigger, production bool, log zerolog.Logger) *buildService {
	return &buildService{
		index:        repos.Index,
		markers:      repos.Markers,
		materializer: materializer,
		hook:         hook,
		production:   production,
		log:          log.With().Str("service", "build").Logger(),
	}
}

// Trigger starts a rebuild. In production with a deploy hook the hook is
// called and the deployed build materializes; otherwise materialization runs
// here and its result is returned.
func (s *buildService) Trigger(ctx context.Context) (*models.BuildResult, error) {
	if s.production && s.hookConfigured() {
		resp, err := s.hook.Trigger(ctx)
		if err != nil {
			return nil, err
		}
		s.log.Info().Str("deployment_url", resp.URL).Msg("Build triggered via deploy hook")
		return &models.BuildResult{
			Triggered:     true,
			Message:       "Build triggered successfully",
			DeploymentURL: resp.URL,
			Job:           resp.Job,
		}, nil
	}

	s.log.Info().Msg("Running materialization directly")
	result, err := s.materializer.Run(ctx)
	if err != nil {
		return nil, err
	}
	return &models.BuildResult{
		Triggered:    true,
		Message:      "Content generation completed",
		Materialized: result,
	}, nil
}

// Nightly calls the deploy hook only when drafts or deletion markers are
// waiting
func (s *buildService) Nightly(ctx context.Context) (*models.BuildResult, error) {
	pending, err := s.Pending(ctx)
	if err != nil {
		return nil, err
	}
	if !pending.Any() {
		return &models.BuildResult{
			Triggered: false,
			Message:   "No pending changes, build not triggered",
		}, nil
	}
	if !s.hookConfigured() {
		return nil, deploy.ErrNotConfigured
	}

	resp, err := s.hook.Trigger(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Int("temp_posts", pending.Drafts).
		Int("deletions", pending.Markers).
		Msg("Nightly build triggered")
	return &models.BuildResult{
		Triggered:     true,
		Message:       "Build triggered successfully",
		DeploymentURL: resp.URL,
		Job:           resp.Job,
		TempPosts:     pending.Drafts,
		Deletions:     pending.Markers,
	}, nil
}

// Pending counts indexed drafts and registered deletion markers
func (s *buildService) Pending(ctx context.Context) (*models.PendingCounts, error) {
	drafts, err := s.index.List(ctx)
	if err != nil {
		return nil, storageErr("list drafts", err)
	}
	markers, err := s.markers.Slugs(ctx)
	if err != nil {
		return nil, storageErr("list deletion markers", err)
	}
	return &models.PendingCounts{Drafts: len(drafts), Markers: len(markers)}, nil
}

func (s *buildService) hookConfigured() bool {
	return s.hook != nil && s.hook.Configured()
}
