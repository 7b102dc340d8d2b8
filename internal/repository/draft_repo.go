package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/draft-staging-api/internal/kv"
	"github.com/draft-staging-api/internal/models"
)

// ErrCorruptRecord is returned when a stored value cannot be decoded
var ErrCorruptRecord = errors.New("repository: corrupt record")

// draftRepo is the concrete implementation of DraftRepository
type draftRepo struct {
	store kv.Store
}

// NewDraftRepo creates a new draft repository
func NewDraftRepo(store kv.Store) DraftRepository {
	return &draftRepo{store: store}
}

// Get retrieves a draft by slug. A missing record is (nil, nil).
func (r *draftRepo) Get(ctx context.Context, slug string) (*models.Draft, error) {
	raw, err := r.store.Get(ctx, DraftKey(slug))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var draft models.Draft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, DraftKey(slug), err)
	}
	if draft.Tags == nil {
		draft.Tags = []string{}
	}
	return &draft, nil
}

// Put writes the draft under its own slug
func (r *draftRepo) Put(ctx context.Context, draft *models.Draft) error {
	if draft.Slug == "" {
		return fmt.Errorf("draft %s has no slug", draft.ID)
	}
	raw, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to encode draft %s: %w", draft.Slug, err)
	}
	return r.store.Set(ctx, DraftKey(draft.Slug), raw)
}

// Delete removes the draft stored under slug; absent keys are not an error
func (r *draftRepo) Delete(ctx context.Context, slug string) error {
	return r.store.Delete(ctx, DraftKey(slug))
}
