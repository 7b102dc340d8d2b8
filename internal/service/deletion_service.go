package service

import (
	"context"
	"errors"
	"time"

	"github.com/draft-staging-api/internal/content"
	"github.com/draft-staging-api/internal/models"
	"github.com/draft-staging-api/internal/repository"
	"github.com/rs/zerolog"
)

// DeleteOutcome says what a deletion request did
type DeleteOutcome string

const (
	// DeletedDraft means a draft was removed immediately
	DeletedDraft DeleteOutcome = "draft"
	// MarkedStatic means a static article was scheduled for removal at the next materialization
	MarkedStatic DeleteOutcome = "marked"
)

// deletionService is the concrete implementation of DeletionService
type deletionService struct {
	drafts  DraftService
	markers repository.MarkerRepository
	static  StaticStore
	log     zerolog.Logger
	now     func() time.Time
}

func newDeletionService(drafts DraftService, repos *repository.Repositories, static StaticStore, log zerolog.Logger) *deletionService {
	return &deletionService{
		drafts:  drafts,
		markers: repos.Markers,
		static:  static,
		log:     log.With().Str("service", "deletions").Logger(),
		now:     time.Now,
	}
}

// Delete removes the draft at slug if there is one. Otherwise, when a static
// article exists for slug, a deletion marker is recorded for the next
// materialization pass.
func (s *deletionService) Delete(ctx context.Context, slug string) (DeleteOutcome, error) {
	deleted, err := s.drafts.Delete(ctx, slug)
	if err != nil {
		return "", err
	}
	if deleted {
		return DeletedDraft, nil
	}

	exists, err := s.static.Exists(slug)
	if errors.Is(err, content.ErrInvalidSlug) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrNotFound
	}

	marker := &models.DeletionMarker{
		Slug:         slug,
		DeletedAt:    s.now().UTC(),
		OriginalPost: true,
	}
	if err := s.markers.Put(ctx, marker); err != nil {
		return "", storageErr("write deletion marker", err)
	}

	s.log.Info().Str("slug", slug).Msg("Static article marked for deletion")
	return MarkedStatic, nil
}

// Pending lists the registered deletion markers. Index entries whose marker
// has vanished are skipped.
func (s *deletionService) Pending(ctx context.Context) ([]*models.DeletionMarker, error) {
	slugs, err := s.markers.Slugs(ctx)
	if err != nil {
		return nil, storageErr("list deletion markers", err)
	}

	markers := make([]*models.DeletionMarker, 0, len(slugs))
	for _, slug := range slugs {
		m, err := s.markers.Get(ctx, slug)
		if errors.Is(err, repository.ErrCorruptRecord) {
			s.log.Warn().Err(err).Str("slug", slug).Msg("Skipping unreadable deletion marker")
			continue
		}
		if err != nil {
			return nil, storageErr("read deletion marker", err)
		}
		if m == nil {
			continue
		}
		markers = append(markers, m)
	}
	return markers, nil
}
