package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/draft-staging-api/internal/content"
	"github.com/draft-staging-api/internal/models"
	"github.com/draft-staging-api/internal/repository"
	"github.com/draft-staging-api/internal/telemetry"
	"github.com/rs/zerolog"
)

// materializer is the concrete implementation of Materializer
type materializer struct {
	index   repository.SlugIndex
	drafts  repository.DraftRepository
	markers repository.MarkerRepository
	static  StaticStore
	metrics *telemetry.Metrics
	log     zerolog.Logger

	// one run per process; cross-process exclusion is the deployer's job
	running sync.Mutex
}

func newMaterializer(repos *repository.Repositories, static StaticStore, metrics *telemetry.Metrics, log zerolog.Logger) *materializer {
	return &materializer{
		index:   repos.Index,
		drafts:  repos.Drafts,
		markers: repos.Markers,
		static:  static,
		metrics: metrics,
		log:     log.With().Str("service", "materializer").Logger(),
	}
}

// Run writes every indexed draft to the file tier, then applies deletion
// markers. Item failures are collected in the result and left in place for
// the next run; only an unreadable draft index fails the whole run.
func (m *materializer) Run(ctx context.Context) (*models.MaterializeResult, error) {
	if !m.running.TryLock() {
		return nil, ErrMaterializeInProgress
	}
	defer m.running.Unlock()

	start := time.Now()
	slugs, err := m.index.List(ctx)
	if err != nil {
		m.metrics.MaterializeRuns.With("failed").Inc()
		m.log.Error().Err(err).Msg("Cannot read draft index, aborting materialization")
		return nil, storageErr("list drafts", err)
	}

	m.log.Info().Int("drafts", len(slugs)).Msg("Materialization started")
	result := &models.MaterializeResult{Errors: []string{}}

	written := m.drainDrafts(ctx, slugs, result)
	m.applyMarkers(ctx, written, result)

	m.metrics.MaterializeProcessed.Add(float64(result.Processed))
	m.metrics.MaterializeDeleted.Add(float64(result.Deleted))
	m.metrics.MaterializeErrors.Add(float64(len(result.Errors)))
	m.metrics.MaterializeDuration.Observe(time.Since(start).Seconds())
	m.metrics.MaterializeRuns.With("ok").Inc()

	ev := m.log.Info()
	if len(result.Errors) > 0 {
		ev = m.log.Warn().Strs("errors", result.Errors)
	}
	ev.Int("processed", result.Processed).
		Int("deleted", result.Deleted).
		Dur("duration", time.Since(start)).
		Msg("Materialization completed")

	return result, nil
}

// drainDrafts renders each draft to its file and deletes the record. It
// returns the set of slugs whose file was written in this run.
func (m *materializer) drainDrafts(ctx context.Context, slugs []string, result *models.MaterializeResult) map[string]bool {
	written := make(map[string]bool, len(slugs))
	var done []string

	for _, slug := range slugs {
		d, err := m.drafts.Get(ctx, slug)
		if err != nil {
			m.itemError(result, fmt.Sprintf("failed to process %s: %v", slug, err))
			continue
		}
		if d == nil {
			m.log.Warn().Str("slug", slug).Msg("Indexed draft has no record, skipping")
			done = append(done, slug)
			continue
		}

		if err := m.static.Write(slug, content.Render(d)); err != nil {
			m.itemError(result, fmt.Sprintf("failed to process %s: %v", slug, err))
			continue
		}
		written[slug] = true

		if err := m.drafts.Delete(ctx, slug); err != nil {
			// The file is in place; the record stays indexed and is rewritten
			// identically next run.
			m.itemError(result, fmt.Sprintf("failed to process %s: %v", slug, err))
			continue
		}

		m.log.Info().Str("slug", slug).Msg("Draft materialized")
		done = append(done, slug)
		result.Processed++
	}

	// RemoveAll re-reads the index, so drafts created while the loop ran
	// keep their entries.
	if err := m.index.RemoveAll(ctx, done); err != nil {
		m.itemError(result, fmt.Sprintf("failed to update draft index: %v", err))
	}
	return written
}

// applyMarkers removes the files named by deletion markers and consumes the
// markers
func (m *materializer) applyMarkers(ctx context.Context, written map[string]bool, result *models.MaterializeResult) {
	slugs, err := m.markers.Slugs(ctx)
	if err != nil {
		m.itemError(result, fmt.Sprintf("failed to list deletion markers: %v", err))
		return
	}

	for _, slug := range slugs {
		marker, err := m.markers.Get(ctx, slug)
		if err != nil {
			m.itemError(result, fmt.Sprintf("failed to delete content for %s: %v", slug, err))
			continue
		}

		switch {
		case marker == nil:
			m.log.Warn().Str("slug", slug).Msg("Indexed deletion marker has no record, dropping")
		case written[slug]:
			// A draft for this slug was written in this run and supersedes the deletion.
			m.log.Warn().Str("slug", slug).Msg("Deletion marker superseded by a newer draft")
		default:
			removed, err := m.static.Remove(slug)
			if err != nil {
				m.itemError(result, fmt.Sprintf("failed to delete content for %s: %v", slug, err))
				continue
			}
			if removed {
				result.Deleted++
				m.log.Info().Str("slug", slug).Msg("Static article deleted")
			} else {
				m.log.Info().Str("slug", slug).Msg("Static article already absent")
			}
		}

		if err := m.markers.Delete(ctx, slug); err != nil {
			m.itemError(result, fmt.Sprintf("failed to delete content for %s: %v", slug, err))
		}
	}
}

func (m *materializer) itemError(result *models.MaterializeResult, msg string) {
	m.log.Error().Msg(msg)
	result.Errors = append(result.Errors, msg)
}
