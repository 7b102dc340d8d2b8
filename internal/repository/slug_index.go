package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/draft-staging-api/internal/kv"
	"github.com/rs/zerolog"
)

// ErrIndexContention is returned when a compare-and-swap index update keeps
// losing to concurrent writers
var ErrIndexContention = errors.New("repository: index update lost to concurrent writers")

// defaultSwapAttempts bounds the optimistic update loop
const defaultSwapAttempts = 8

// SlugIndex is an explicitly maintained ordered set of slugs stored as a
// single value. It exists because the backend cannot enumerate keys by prefix.
//
// Every mutation reads, modifies and writes the whole value. On a store that
// implements kv.Swapper the write is a compare-and-swap and concurrent
// mutators cannot lose each other's updates; on a plain kv.Store two racing
// mutators can, and the index is only best-effort consistent.
type SlugIndex interface {
	List(ctx context.Context) ([]string, error)
	Add(ctx context.Context, slug string) error
	Remove(ctx context.Context, slug string) error
	RemoveAll(ctx context.Context, slugs []string) error
	Rename(ctx context.Context, oldSlug, newSlug string) error
	Replace(ctx context.Context, slugs []string) error
}

// kvSlugIndex is the concrete implementation of SlugIndex
type kvSlugIndex struct {
	store    kv.Store
	swapper  kv.Swapper
	key      string
	attempts int
	log      zerolog.Logger
}

// NewSlugIndex creates a SlugIndex stored under key. Compare-and-swap is used
// automatically when the store supports it.
func NewSlugIndex(store kv.Store, key string, log zerolog.Logger) SlugIndex {
	idx := &kvSlugIndex{
		store:    store,
		key:      key,
		attempts: defaultSwapAttempts,
		log:      log.With().Str("index", key).Logger(),
	}
	if sw, ok := store.(kv.Swapper); ok {
		idx.swapper = sw
	}
	return idx
}

// NewBestEffortSlugIndex creates a SlugIndex that never uses compare-and-swap,
// even when the store supports it
func NewBestEffortSlugIndex(store kv.Store, key string, log zerolog.Logger) SlugIndex {
	return &kvSlugIndex{
		store:    store,
		key:      key,
		attempts: 1,
		log:      log.With().Str("index", key).Logger(),
	}
}

// List returns the indexed slugs in insertion order. A missing or corrupt
// value reads as empty; an unreachable backend is an error.
func (i *kvSlugIndex) List(ctx context.Context) ([]string, error) {
	slugs, _, err := i.read(ctx)
	if err != nil {
		return nil, err
	}
	if slugs == nil {
		slugs = []string{}
	}
	return slugs, nil
}

// Add appends slug if not already present
func (i *kvSlugIndex) Add(ctx context.Context, slug string) error {
	return i.mutate(ctx, func(slugs []string) ([]string, bool) {
		if contains(slugs, slug) {
			return slugs, false
		}
		return append(slugs, slug), true
	})
}

// Remove filters slug out; absent slugs are a no-op
func (i *kvSlugIndex) Remove(ctx context.Context, slug string) error {
	return i.RemoveAll(ctx, []string{slug})
}

// RemoveAll filters every given slug out in a single write
func (i *kvSlugIndex) RemoveAll(ctx context.Context, remove []string) error {
	if len(remove) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(remove))
	for _, s := range remove {
		drop[s] = struct{}{}
	}
	return i.mutate(ctx, func(slugs []string) ([]string, bool) {
		kept := make([]string, 0, len(slugs))
		for _, s := range slugs {
			if _, ok := drop[s]; !ok {
				kept = append(kept, s)
			}
		}
		return kept, len(kept) != len(slugs)
	})
}

// Rename replaces oldSlug with newSlug in place. If oldSlug is absent newSlug
// is appended; if newSlug is already present oldSlug is simply dropped.
func (i *kvSlugIndex) Rename(ctx context.Context, oldSlug, newSlug string) error {
	if oldSlug == newSlug {
		return i.Add(ctx, newSlug)
	}
	return i.mutate(ctx, func(slugs []string) ([]string, bool) {
		hasNew := contains(slugs, newSlug)
		out := make([]string, 0, len(slugs)+1)
		replaced := false
		for _, s := range slugs {
			if s != oldSlug {
				out = append(out, s)
				continue
			}
			replaced = true
			if !hasNew {
				out = append(out, newSlug)
				hasNew = true
			}
		}
		if !replaced {
			if hasNew {
				return slugs, false
			}
			out = append(out, newSlug)
		}
		return out, true
	})
}

// Replace overwrites the whole index
func (i *kvSlugIndex) Replace(ctx context.Context, slugs []string) error {
	next := dedupe(slugs)
	return i.mutate(ctx, func([]string) ([]string, bool) {
		return next, true
	})
}

// read loads the index. raw is the exact stored value (nil when absent) so
// it can serve as the compare-and-swap expectation.
func (i *kvSlugIndex) read(ctx context.Context) ([]string, []byte, error) {
	raw, err := i.store.Get(ctx, i.key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read index %s: %w", i.key, err)
	}

	var slugs []string
	if err := json.Unmarshal(raw, &slugs); err != nil {
		i.log.Warn().Err(err).Msg("Index value is corrupt, treating as empty")
		return nil, raw, nil
	}
	return dedupe(slugs), raw, nil
}

func (i *kvSlugIndex) mutate(ctx context.Context, fn func([]string) ([]string, bool)) error {
	for attempt := 1; ; attempt++ {
		slugs, raw, err := i.read(ctx)
		if err != nil {
			return err
		}

		next, changed := fn(slugs)
		if !changed && raw != nil {
			return nil
		}
		if next == nil {
			next = []string{}
		}
		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode index %s: %w", i.key, err)
		}

		if i.swapper == nil {
			if err := i.store.Set(ctx, i.key, encoded); err != nil {
				return fmt.Errorf("failed to write index %s: %w", i.key, err)
			}
			return nil
		}

		ok, err := i.swapper.CompareAndSwap(ctx, i.key, raw, encoded)
		if err != nil {
			return fmt.Errorf("failed to write index %s: %w", i.key, err)
		}
		if ok {
			return nil
		}
		if attempt >= i.attempts {
			return fmt.Errorf("%w: %s after %d attempts", ErrIndexContention, i.key, attempt)
		}
		i.log.Debug().Int("attempt", attempt).Msg("Index changed underneath update, retrying")
	}
}

func contains(slugs []string, slug string) bool {
	for _, s := range slugs {
		if s == slug {
			return true
		}
	}
	return false
}

// dedupe keeps the first occurrence of each slug
func dedupe(slugs []string) []string {
	if len(slugs) == 0 {
		return slugs
	}
	seen := make(map[string]struct{}, len(slugs))
	out := make([]string, 0, len(slugs))
	for _, s := range slugs {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
