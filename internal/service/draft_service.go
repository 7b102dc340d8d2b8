package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/draft-staging-api/internal/content"
	"github.com/draft-staging-api/internal/kv"
	"github.com/draft-staging-api/internal/models"
	"github.com/draft-staging-api/internal/repository"
	"github.com/draft-staging-api/internal/telemetry"
	"github.com/draft-staging-api/internal/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// draftService is the concrete implementation of DraftService
type draftService struct {
	index   repository.SlugIndex
	drafts  repository.DraftRepository
	markers repository.MarkerRepository
	static  StaticStore
	metrics *telemetry.Metrics
	log     zerolog.Logger
	now     func() time.Time
	newID   func() string
}

func newDraftService(repos *repository.Repositories, static StaticStore, metrics *telemetry.Metrics, log zerolog.Logger) *draftService {
	return &draftService{
		index:   repos.Index,
		drafts:  repos.Drafts,
		markers: repos.Markers,
		static:  static,
		metrics: metrics,
		log:     log.With().Str("service", "drafts").Logger(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// List returns every live draft, newest first. It never fails: an unreachable
// backend yields an empty listing and a logged fallback.
func (s *draftService) List(ctx context.Context) []*models.Draft {
	slugs, err := s.index.List(ctx)
	if err != nil {
		s.readFallback("list", "", err)
		return []*models.Draft{}
	}

	var (
		drafts  = make([]*models.Draft, 0, len(slugs))
		byID    = make(map[string]int, len(slugs))
		missing []string
		stale   []*models.Draft
		failed  bool
	)
	for _, slug := range slugs {
		d, err := s.drafts.Get(ctx, slug)
		if kv.IsUnavailable(err) {
			if !failed {
				s.readFallback("list", slug, err)
				failed = true
			}
			continue
		}
		if err != nil {
			s.log.Warn().Err(err).Str("slug", slug).Msg("Skipping unreadable draft")
			continue
		}
		if d == nil {
			missing = append(missing, slug)
			continue
		}
		d.Slug = slug

		// Two keys carrying one ID means a rename was interrupted after the
		// new record was written. The newer copy wins.
		if i, dup := byID[d.ID]; dup {
			if d.UpdatedAt.After(drafts[i].UpdatedAt) {
				stale = append(stale, drafts[i])
				drafts[i] = d
			} else {
				stale = append(stale, d)
			}
			continue
		}
		byID[d.ID] = len(drafts)
		drafts = append(drafts, d)
	}

	s.repair(ctx, missing, stale)

	sort.SliceStable(drafts, func(i, j int) bool {
		return drafts[i].CreatedAt.After(drafts[j].CreatedAt)
	})
	return drafts
}

// repair prunes index entries without a record and removes the stale half of
// interrupted renames. Failures are logged only.
func (s *draftService) repair(ctx context.Context, missing []string, stale []*models.Draft) {
	for _, d := range stale {
		s.log.Warn().Str("slug", d.Slug).Str("id", d.ID).Msg("Removing stale copy left by an interrupted rename")
		if err := s.drafts.Delete(ctx, d.Slug); err != nil {
			s.log.Warn().Err(err).Str("slug", d.Slug).Msg("Failed to delete stale draft")
			continue
		}
		missing = append(missing, d.Slug)
	}
	if len(missing) == 0 {
		return
	}
	if err := s.index.RemoveAll(ctx, missing); err != nil {
		s.log.Warn().Err(err).Strs("slugs", missing).Msg("Failed to prune slug index")
		return
	}
	s.log.Info().Strs("slugs", missing).Msg("Pruned slug index")
}

// Get returns the draft stored under slug. An unreachable backend reads as
// ErrNotFound; the difference is only visible in logs and metrics.
func (s *draftService) Get(ctx context.Context, slug string) (*models.Draft, error) {
	d, err := s.drafts.Get(ctx, slug)
	if err != nil {
		if kv.IsUnavailable(err) {
			s.readFallback("get", slug, err)
		} else {
			s.log.Warn().Err(err).Str("slug", slug).Msg("Draft unreadable, treating as absent")
		}
		return nil, ErrNotFound
	}
	if d == nil {
		return nil, ErrNotFound
	}
	return d, nil
}

func (s *draftService) readFallback(op, slug string, err error) {
	s.metrics.ReadFallbacks.With(op).Inc()
	ev := s.log.Warn().Err(err).Str("op", op)
	if slug != "" {
		ev = ev.Str("slug", slug)
	}
	ev.Msg("Backend unavailable, serving empty result")
}

// Create validates the input and stores a new draft under the slug derived
// from its title
func (s *draftService) Create(ctx context.Context, in *models.DraftInput) (*models.Draft, error) {
	if errs := validation.ValidateDraftInput(in); len(errs) > 0 {
		return nil, invalid(errs)
	}
	d := s.newDraft(in, validation.Slugify(in.Title))
	err := s.insert(ctx, d)
	s.record("create", err)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *draftService) newDraft(in *models.DraftInput, slug string) *models.Draft {
	now := s.now().UTC()
	tags := append([]string{}, in.Tags...)
	return &models.Draft{
		ID:               s.newID(),
		Slug:             slug,
		Title:            in.Title,
		Description:      in.Description,
		Content:          in.Content,
		PublishedAt:      in.PublishedAt,
		Tags:             tags,
		SendAsNewsletter: in.SendAsNewsletter,
		NewsletterSentAt: nil,
		CreatedAt:        now,
		UpdatedAt:        now,
		Status:           models.StatusDraft,
	}
}

// insert stores a new draft and indexes it
func (s *draftService) insert(ctx context.Context, d *models.Draft) error {
	slug := d.Slug
	if err := s.ensureFree(ctx, slug, ""); err != nil {
		return err
	}
	if err := s.drafts.Put(ctx, d); err != nil {
		return storageErr("write draft", err)
	}
	if err := s.index.Add(ctx, slug); err != nil {
		// Without an index entry the record would be invisible but still
		// occupy the slug, so take it back out.
		if delErr := s.drafts.Delete(ctx, slug); delErr != nil {
			s.log.Error().Err(delErr).Str("slug", slug).Msg("Failed to roll back unindexed draft")
		}
		s.contention(err)
		return storageErr("index draft", err)
	}

	// A draft supersedes any pending deletion of the same static article.
	if err := s.markers.Delete(ctx, slug); err != nil {
		s.log.Warn().Err(err).Str("slug", slug).Msg("Failed to clear deletion marker")
	}

	s.log.Info().Str("slug", slug).Str("id", d.ID).Msg("Draft created")
	return nil
}

// ensureFree fails with ErrConflict when slug holds a record other than id
func (s *draftService) ensureFree(ctx context.Context, slug, id string) error {
	existing, err := s.drafts.Get(ctx, slug)
	if errors.Is(err, repository.ErrCorruptRecord) {
		return ErrConflict
	}
	if err != nil {
		return storageErr("read draft", err)
	}
	if existing != nil && (id == "" || existing.ID != id) {
		// The record may have fallen out of a lost or corrupt index
		s.reindex(ctx, slug)
		return ErrConflict
	}
	return nil
}

// reindex adds slug back to the index. Add is a no-op when the slug is
// already present, so this is safe on every write path.
func (s *draftService) reindex(ctx context.Context, slug string) {
	if err := s.index.Add(ctx, slug); err != nil {
		s.contention(err)
		s.log.Warn().Err(err).Str("slug", slug).Msg("Failed to re-index draft")
	}
}

// Update merges the supplied fields over the draft at slug, renaming it when
// the new title derives a different slug
func (s *draftService) Update(ctx context.Context, slug string, patch *models.DraftPatch) (*models.Draft, error) {
	d, err := s.update(ctx, slug, patch)
	s.record("update", err)
	return d, err
}

func (s *draftService) update(ctx context.Context, slug string, patch *models.DraftPatch) (*models.Draft, error) {
	if errs := validation.ValidatePatch(patch); len(errs) > 0 {
		return nil, invalid(errs)
	}

	current, err := s.drafts.Get(ctx, slug)
	if errors.Is(err, repository.ErrCorruptRecord) {
		s.log.Warn().Err(err).Str("slug", slug).Msg("Draft unreadable, treating as absent")
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("read draft", err)
	}
	if current == nil {
		return nil, ErrNotFound
	}

	updated := *current
	patch.Apply(&updated)
	updated.Slug = slug
	updated.UpdatedAt = s.now().UTC()

	newSlug := slug
	if patch.Title != nil && *patch.Title != current.Title {
		newSlug = validation.Slugify(*patch.Title)
	}
	if newSlug == slug {
		if err := s.drafts.Put(ctx, &updated); err != nil {
			return nil, storageErr("write draft", err)
		}
		s.reindex(ctx, slug)
		return &updated, nil
	}

	if err := s.rename(ctx, &updated, slug, newSlug); err != nil {
		return nil, err
	}
	return &updated, nil
}

// rename moves d from oldSlug to newSlug. The new record and index entry are
// written before the old ones are removed, so an interruption leaves both
// copies; List collapses them by ID on the next read.
func (s *draftService) rename(ctx context.Context, d *models.Draft, oldSlug, newSlug string) error {
	if err := s.ensureFree(ctx, newSlug, d.ID); err != nil {
		return err
	}

	d.Slug = newSlug
	if err := s.drafts.Put(ctx, d); err != nil {
		return storageErr("write renamed draft", err)
	}
	if err := s.index.Add(ctx, newSlug); err != nil {
		s.contention(err)
		return storageErr("index renamed draft", err)
	}
	if err := s.drafts.Delete(ctx, oldSlug); err != nil {
		return storageErr("delete old draft", err)
	}
	if err := s.index.Remove(ctx, oldSlug); err != nil {
		s.contention(err)
		return storageErr("unindex old draft", err)
	}

	s.log.Info().Str("from", oldSlug).Str("to", newSlug).Str("id", d.ID).Msg("Draft renamed")
	return nil
}

// Delete removes the draft at slug. It reports false when there was none.
func (s *draftService) Delete(ctx context.Context, slug string) (bool, error) {
	deleted, err := s.delete(ctx, slug)
	s.record("delete", err)
	return deleted, err
}

func (s *draftService) delete(ctx context.Context, slug string) (bool, error) {
	existing, err := s.drafts.Get(ctx, slug)
	if err != nil && !errors.Is(err, repository.ErrCorruptRecord) {
		return false, storageErr("read draft", err)
	}
	if existing == nil && err == nil {
		return false, nil
	}

	if err := s.drafts.Delete(ctx, slug); err != nil {
		return false, storageErr("delete draft", err)
	}
	if err := s.index.Remove(ctx, slug); err != nil {
		s.contention(err)
		return false, storageErr("unindex draft", err)
	}

	s.log.Info().Str("slug", slug).Msg("Draft deleted")
	return true, nil
}

// Publish marks the draft visible
func (s *draftService) Publish(ctx context.Context, slug string) (*models.Draft, error) {
	return s.setStatus(ctx, "publish", slug, models.StatusPublished)
}

// Unpublish returns the draft to the draft state
func (s *draftService) Unpublish(ctx context.Context, slug string) (*models.Draft, error) {
	return s.setStatus(ctx, "unpublish", slug, models.StatusDraft)
}

func (s *draftService) setStatus(ctx context.Context, op, slug string, status models.Status) (*models.Draft, error) {
	d, err := s.update(ctx, slug, &models.DraftPatch{Status: &status})
	s.record(op, err)
	return d, err
}

// Save edits the draft at slug, or creates a draft overriding the static
// article of that slug when no draft exists yet. The override keeps the
// static slug so materialization replaces the original file.
func (s *draftService) Save(ctx context.Context, slug string, patch *models.DraftPatch) (*models.Draft, error) {
	current, err := s.drafts.Get(ctx, slug)
	if err != nil && !errors.Is(err, repository.ErrCorruptRecord) {
		return nil, storageErr("read draft", err)
	}
	if current != nil {
		return s.Update(ctx, slug, patch)
	}

	article, err := s.static.Read(slug)
	if errors.Is(err, content.ErrNotFound) || errors.Is(err, content.ErrInvalidSlug) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if errs := validation.ValidatePatch(patch); len(errs) > 0 {
		return nil, invalid(errs)
	}

	base := &models.Draft{
		Title:            article.Title,
		Description:      article.Description,
		Content:          article.Content,
		PublishedAt:      article.PublishedAt,
		Tags:             article.Tags,
		SendAsNewsletter: article.SendAsNewsletter,
		NewsletterSentAt: article.NewsletterSentAt,
		Status:           models.StatusDraft,
	}
	patch.Apply(base)

	in := &models.DraftInput{
		Title:            base.Title,
		Description:      base.Description,
		Content:          base.Content,
		PublishedAt:      base.PublishedAt,
		Tags:             base.Tags,
		SendAsNewsletter: base.SendAsNewsletter,
	}
	if errs := validation.ValidateDraftInput(in); len(errs) > 0 {
		return nil, invalid(errs)
	}

	d := s.newDraft(in, slug)
	d.NewsletterSentAt = base.NewsletterSentAt
	d.Status = base.Status
	err = s.insert(ctx, d)
	s.record("override", err)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("slug", slug).Msg("Static article overridden by draft")
	return d, nil
}

func (s *draftService) record(op string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrStorageUnavailable):
		outcome = "unavailable"
	default:
		outcome = "rejected"
	}
	s.metrics.DraftWrites.With(op, outcome).Inc()
}

func (s *draftService) contention(err error) {
	if errors.Is(err, repository.ErrIndexContention) {
		s.metrics.IndexContention.Inc()
	}
}
