package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/draft-staging-api/internal/kv"
	"github.com/draft-staging-api/internal/models"
)

// markerRepo is the concrete implementation of MarkerRepository
type markerRepo struct {
	store kv.Store
	index SlugIndex
}

// NewMarkerRepo creates a marker repository enumerated through index
func NewMarkerRepo(store kv.Store, index SlugIndex) MarkerRepository {
	return &markerRepo{store: store, index: index}
}

// Get retrieves the marker for slug. A missing marker is (nil, nil).
func (r *markerRepo) Get(ctx context.Context, slug string) (*models.DeletionMarker, error) {
	raw, err := r.store.Get(ctx, MarkerKey(slug))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var marker models.DeletionMarker
	if err := json.Unmarshal(raw, &marker); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, MarkerKey(slug), err)
	}
	return &marker, nil
}

// Put writes the marker, then registers its slug
func (r *markerRepo) Put(ctx context.Context, marker *models.DeletionMarker) error {
	raw, err := json.Marshal(marker)
	if err != nil {
		return fmt.Errorf("failed to encode marker %s: %w", marker.Slug, err)
	}
	if err := r.store.Set(ctx, MarkerKey(marker.Slug), raw); err != nil {
		return err
	}
	return r.index.Add(ctx, marker.Slug)
}

// Delete removes the marker, then unregisters its slug
func (r *markerRepo) Delete(ctx context.Context, slug string) error {
	if err := r.store.Delete(ctx, MarkerKey(slug)); err != nil {
		return err
	}
	return r.index.Remove(ctx, slug)
}

// Slugs lists the slugs with a registered marker
func (r *markerRepo) Slugs(ctx context.Context) ([]string, error) {
	return r.index.List(ctx)
}
