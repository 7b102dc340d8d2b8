package repository

import (
	"context"

	"github.com/draft-staging-api/internal/kv"
	"github.com/draft-staging-api/internal/models"
	"github.com/rs/zerolog"
)

// Keys used in the backend
const (
	DraftKeyPrefix  = "temp-post:"
	DraftIndexKey   = "temp-post-keys"
	MarkerKeyPrefix = "delete-post:"
	MarkerIndexKey  = "delete-post-keys"
)

// DraftKey returns the backend key of the draft stored under slug
func DraftKey(slug string) string { return DraftKeyPrefix + slug }

// MarkerKey returns the backend key of the deletion marker for slug
func MarkerKey(slug string) string { return MarkerKeyPrefix + slug }

// DraftRepository defines the interface for draft record storage. It does
// not touch the slug index; callers keep the two consistent.
type DraftRepository interface {
	Get(ctx context.Context, slug string) (*models.Draft, error)
	Put(ctx context.Context, draft *models.Draft) error
	Delete(ctx context.Context, slug string) error
}

// MarkerRepository defines the interface for deletion marker storage. Put and
// Delete keep the marker index in step with the records.
type MarkerRepository interface {
	Get(ctx context.Context, slug string) (*models.DeletionMarker, error)
	Put(ctx context.Context, marker *models.DeletionMarker) error
	Delete(ctx context.Context, slug string) error
	Slugs(ctx context.Context) ([]string, error)
}

// Repositories holds all repository interfaces
type Repositories struct {
	Index   SlugIndex
	Drafts  DraftRepository
	Markers MarkerRepository
}

// New creates all repositories over the given store
func New(store kv.Store, log zerolog.Logger) *Repositories {
	return &Repositories{
		Index:   NewSlugIndex(store, DraftIndexKey, log),
		Drafts:  NewDraftRepo(store),
		Markers: NewMarkerRepo(store, NewSlugIndex(store, MarkerIndexKey, log)),
	}
}
