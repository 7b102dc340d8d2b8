package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/draft-staging-api/internal/kv"
	"github.com/draft-staging-api/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plainStore hides the Swapper implementation of the wrapped store
type plainStore struct{ kv.Store }

// downStore fails every operation as an unreachable backend would
type downStore struct{}

var errDown = fmt.Errorf("%w: connection refused", kv.ErrUnavailable)

func (downStore) Get(context.Context, string) ([]byte, error) { return nil, errDown }
func (downStore) Set(context.Context, string, []byte) error { return errDown }
func (downStore) Delete(context.Context, string) error      { return errDown }

func TestSlugIndex_AddRemove(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	idx := NewSlugIndex(store, DraftIndexKey, zerolog.Nop())

	slugs, err := idx.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, slugs)

	require.NoError(t, idx.Add(ctx, "a"))
	require.NoError(t, idx.Add(ctx, "b"))
	require.NoError(t, idx.Add(ctx, "a"))
	require.NoError(t, idx.Add(ctx, "c"))

	slugs, err = idx.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, slugs)

	require.NoError(t, idx.Remove(ctx, "b"))
	require.NoError(t, idx.Remove(ctx, "missing"))
	require.NoError(t, idx.RemoveAll(ctx, []string{"a", "zzz"}))

	slugs, err = idx.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, slugs)

	raw, err := store.Get(ctx, DraftIndexKey)
	require.NoError(t, err)
	assert.JSONEq(t, `["c"]`, string(raw))
}

func TestSlugIndex_Rename(t *testing.T) {
	ctx := context.Background()
	idx := NewSlugIndex(kv.NewMemoryStore(), DraftIndexKey, zerolog.Nop())
	require.NoError(t, idx.Replace(ctx, []string{"a", "b", "c"}))

	require.NoError(t, idx.Rename(ctx, "b", "bee"))
	slugs, _ := idx.List(ctx)
	assert.Equal(t, []string{"a", "bee", "c"}, slugs)

	// New slug already present: old entry is simply dropped
	require.NoError(t, idx.Rename(ctx, "a", "c"))
	slugs, _ = idx.List(ctx)
	assert.Equal(t, []string{"bee", "c"}, slugs)

	// Old slug absent: new slug appended
	require.NoError(t, idx.Rename(ctx, "ghost", "d"))
	slugs, _ = idx.List(ctx)
	assert.Equal(t, []string{"bee", "c", "d"}, slugs)
}

func TestSlugIndex_ReplaceDedupes(t *testing.T) {
	ctx := context.Background()
	idx := NewSlugIndex(kv.NewMemoryStore(), DraftIndexKey, zerolog.Nop())

	require.NoError(t, idx.Replace(ctx, []string{"x", "y", "x", "", "z"}))
	slugs, err := idx.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, slugs)

	require.NoError(t, idx.Replace(ctx, nil))
	slugs, err = idx.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, slugs)
}

func TestSlugIndex_CorruptValueReadsEmpty(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(ctx, DraftIndexKey, []byte("{not json")))

	idx := NewSlugIndex(store, DraftIndexKey, zerolog.Nop())
	slugs, err := idx.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, slugs)

	// A mutation overwrites the corrupt value
	require.NoError(t, idx.Add(ctx, "fresh"))
	slugs, err = idx.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, slugs)
}

func TestSlugIndex_UnavailableIsAnError(t *testing.T) {
	idx := NewSlugIndex(downStore{}, DraftIndexKey, zerolog.Nop())

	_, err := idx.List(context.Background())
	require.Error(t, err)
	assert.True(t, kv.IsUnavailable(err))

	err = idx.Add(context.Background(), "a")
	assert.True(t, kv.IsUnavailable(err))
}

func TestSlugIndex_ConcurrentAddsWithCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	idx := &kvSlugIndex{store: store, swapper: store, key: DraftIndexKey, attempts: 10000, log: zerolog.Nop()}

	const writers = 32
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for n := 0; n < writers; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs <- idx.Add(ctx, fmt.Sprintf("post-%d", n))
		}(n)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	slugs, err := idx.List(ctx)
	require.NoError(t, err)
	assert.Len(t, slugs, writers, "no concurrent add may be lost")
}

// racingStore changes the index underneath every compare-and-swap
type racingStore struct {
	*kv.MemoryStore
	writes *atomic.Int64
}

func (s racingStore) CompareAndSwap(ctx context.Context, key string, old, new []byte) (bool, error) {
	_ = s.MemoryStore.Set(ctx, key, []byte(fmt.Sprintf(`["intruder-%d"]`, s.writes.Add(1))))
	return s.MemoryStore.CompareAndSwap(ctx, key, old, new)
}

func TestSlugIndex_ContentionExhausted(t *testing.T) {
	store := racingStore{MemoryStore: kv.NewMemoryStore(), writes: new(atomic.Int64)}
	idx := NewSlugIndex(store, DraftIndexKey, zerolog.Nop())

	err := idx.Add(context.Background(), "a")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIndexContention))
}

func TestSlugIndex_PlainStoreWritesDirectly(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemoryStore()
	idx := NewSlugIndex(plainStore{mem}, DraftIndexKey, zerolog.Nop())

	require.NoError(t, idx.Add(ctx, "one"))
	require.NoError(t, idx.Add(ctx, "two"))
	slugs, err := idx.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, slugs)

	best := NewBestEffortSlugIndex(mem, DraftIndexKey, zerolog.Nop())
	require.NoError(t, best.Remove(ctx, "one"))
	slugs, err = idx.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"two"}, slugs)
}

func TestDraftRepo_GetPutDelete(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	repo := NewDraftRepo(store)

	got, err := repo.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	draft := &models.Draft{
		ID: "id-1", Slug: "hello-world", Title: "Hello, World!", Description: "d", Content: "c",
		PublishedAt: "2024-03-01", Tags: []string{"go"}, CreatedAt: now, UpdatedAt: now,
		Status: models.StatusDraft,
	}
	require.NoError(t, repo.Put(ctx, draft))

	raw, err := store.Get(ctx, "temp-post:hello-world")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"sendAsNewsletter":false`)
	assert.Contains(t, string(raw), `"newsletterSentAt":null`)

	got, err = repo.Get(ctx, "hello-world")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, draft.Title, got.Title)
	assert.True(t, got.CreatedAt.Equal(now))

	require.NoError(t, repo.Delete(ctx, "hello-world"))
	require.NoError(t, repo.Delete(ctx, "hello-world"))
	got, err = repo.Get(ctx, "hello-world")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDraftRepo_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(ctx, DraftKey("bad"), []byte("<<<")))

	_, err := NewDraftRepo(store).Get(ctx, "bad")
	assert.True(t, errors.Is(err, ErrCorruptRecord))
}

func TestDraftRepo_PutRequiresSlug(t *testing.T) {
	err := NewDraftRepo(kv.NewMemoryStore()).Put(context.Background(), &models.Draft{ID: "x"})
	assert.Error(t, err)
}

func TestMarkerRepo_KeepsIndexInStep(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	repos := New(store, zerolog.Nop())

	deletedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repos.Markers.Put(ctx, &models.DeletionMarker{Slug: "old-post", DeletedAt: deletedAt, OriginalPost: true}))

	raw, err := store.Get(ctx, "delete-post:old-post")
	require.NoError(t, err)
	assert.JSONEq(t, `{"slug":"old-post","deletedAt":"2024-05-01T12:00:00Z","originalPost":true}`, string(raw))

	slugs, err := repos.Markers.Slugs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"old-post"}, slugs)

	marker, err := repos.Markers.Get(ctx, "old-post")
	require.NoError(t, err)
	require.NotNil(t, marker)
	assert.True(t, marker.OriginalPost)

	require.NoError(t, repos.Markers.Delete(ctx, "old-post"))
	slugs, err = repos.Markers.Slugs(ctx)
	require.NoError(t, err)
	assert.Empty(t, slugs)

	marker, err = repos.Markers.Get(ctx, "old-post")
	require.NoError(t, err)
	assert.Nil(t, marker)

	// Drafts and markers use separate indexes
	drafts, err := repos.Index.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, drafts)
}
