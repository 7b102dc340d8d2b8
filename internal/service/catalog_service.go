package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/draft-staging-api/internal/content"
	"github.com/draft-staging-api/internal/models"
	"github.com/draft-staging-api/internal/validation"
	"github.com/rs/zerolog"
)

// catalogService is the concrete implementation of CatalogService
type catalogService struct {
	drafts DraftService
	static StaticStore
	log    zerolog.Logger
}

func newCatalogService(drafts DraftService, static StaticStore, log zerolog.Logger) *catalogService {
	return &catalogService{
		drafts: drafts,
		static: static,
		log:    log.With().Str("service", "catalog").Logger(),
	}
}

// Articles lists what the public may read: published drafts and static
// articles, newest publication date first. A published draft hides the static
// article it overrides.
func (s *catalogService) Articles(ctx context.Context) *models.PublicListing {
	var published []models.CatalogEntry
	overridden := make(map[string]bool)
	for _, d := range s.drafts.List(ctx) {
		if d.Status != models.StatusPublished {
			continue
		}
		overridden[d.Slug] = true
		entry := draftEntry(d)
		entry.Content = ""
		published = append(published, entry)
	}

	statics := s.listStatic()
	entries := append([]models.CatalogEntry{}, published...)
	for _, a := range statics {
		if overridden[a.Slug] {
			continue
		}
		entry := staticEntry(a)
		entry.Content = ""
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return publishedAfter(entries[i].PublishedAt, entries[j].PublishedAt)
	})
	return &models.PublicListing{
		Articles:    entries,
		Total:       len(entries),
		DBPosts:     len(published),
		StaticPosts: len(statics),
	}
}

// Article returns a published draft, else the static article, for slug
func (s *catalogService) Article(ctx context.Context, slug string) (*models.CatalogEntry, error) {
	d, err := s.drafts.Get(ctx, slug)
	if err == nil && d.Status == models.StatusPublished {
		entry := draftEntry(d)
		return &entry, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.readStatic(slug)
}

// AdminPosts lists every draft and every static article, most recently
// changed first
func (s *catalogService) AdminPosts(ctx context.Context) *models.AdminListing {
	drafts := s.drafts.List(ctx)
	statics := s.listStatic()

	entries := make([]models.CatalogEntry, 0, len(drafts)+len(statics))
	for _, d := range drafts {
		entries = append(entries, draftEntry(d))
	}
	for _, a := range statics {
		entries = append(entries, staticEntry(a))
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return changedAt(entries[i]).After(changedAt(entries[j]))
	})
	return &models.AdminListing{
		Posts:          entries,
		Total:          len(entries),
		TempCount:      len(drafts),
		PublishedCount: len(statics),
	}
}

// AdminPost returns the draft for slug in any status, else the static article
func (s *catalogService) AdminPost(ctx context.Context, slug string) (*models.CatalogEntry, error) {
	d, err := s.drafts.Get(ctx, slug)
	if err == nil {
		entry := draftEntry(d)
		return &entry, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.readStatic(slug)
}

func (s *catalogService) readStatic(slug string) (*models.CatalogEntry, error) {
	a, err := s.static.Read(slug)
	if errors.Is(err, content.ErrNotFound) || errors.Is(err, content.ErrInvalidSlug) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	entry := staticEntry(a)
	return &entry, nil
}

// listStatic reads the file tier; an unreadable tree lists as empty
func (s *catalogService) listStatic() []*content.Article {
	articles, err := s.static.List()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to list static articles")
		return nil
	}
	return articles
}

func draftEntry(d *models.Draft) models.CatalogEntry {
	created, updated := d.CreatedAt, d.UpdatedAt
	return models.CatalogEntry{
		ID:               d.ID,
		Slug:             d.Slug,
		Title:            d.Title,
		Description:      d.Description,
		Content:          d.Content,
		PublishedAt:      d.PublishedAt,
		Tags:             nonNil(d.Tags),
		SendAsNewsletter: d.SendAsNewsletter,
		NewsletterSentAt: d.NewsletterSentAt,
		CreatedAt:        &created,
		UpdatedAt:        &updated,
		Status:           d.Status,
		Source:           models.SourceDatabase,
		IsPublished:      false,
		IsEditable:       true,
		IsDeletable:      true,
	}
}

// staticEntry presents a static article. It can still be edited through a
// draft override and deleted through a deletion marker.
func staticEntry(a *content.Article) models.CatalogEntry {
	var updated *time.Time
	if !a.ModTime.IsZero() {
		t := a.ModTime.UTC()
		updated = &t
	}
	return models.CatalogEntry{
		Slug:             a.Slug,
		Title:            a.Title,
		Description:      a.Description,
		Content:          a.Content,
		PublishedAt:      a.PublishedAt,
		Tags:             nonNil(a.Tags),
		SendAsNewsletter: a.SendAsNewsletter,
		NewsletterSentAt: a.NewsletterSentAt,
		UpdatedAt:        updated,
		Status:           models.StatusPublished,
		Source:           models.SourceStatic,
		IsPublished:      true,
		IsEditable:       true,
		IsDeletable:      true,
	}
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// publishedAfter orders by publication date, unparseable dates last
func publishedAfter(a, b string) bool {
	ta, okA := validation.ParsePublishedAt(a)
	tb, okB := validation.ParsePublishedAt(b)
	switch {
	case okA && okB:
		return ta.After(tb)
	default:
		return okA && !okB
	}
}

func changedAt(e models.CatalogEntry) time.Time {
	if e.UpdatedAt != nil {
		return *e.UpdatedAt
	}
	if t, ok := validation.ParsePublishedAt(e.PublishedAt); ok {
		return t
	}
	return time.Time{}
}
