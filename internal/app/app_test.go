package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/draft-staging-api/internal/config"
	"github.com/draft-staging-api/internal/kv"
	"github.com/draft-staging-api/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Env:     "development",
		Store:   config.StoreConfig{Backend: backend, PebblePath: filepath.Join(dir, "kv"), CacheSizeMB: 1},
		Content: config.ContentConfig{Dir: filepath.Join(dir, "articles"), ParseCacheSz: 8},
	}
}

func TestOpen_PebbleEndToEnd(t *testing.T) {
	cfg := testConfig(t, config.BackendPebble)
	a, err := Open(cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	_, ok := a.Store.(*kv.PebbleStore)
	require.True(t, ok)

	ctx := context.Background()
	_, err = a.Services.Drafts.Create(ctx, &models.DraftInput{
		Title:       "Persisted",
		Description: "d",
		Content:     "body",
		PublishedAt: "2024-01-01",
		Tags:        []string{},
	})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	// Reopen: the draft survived and materializes into the content dir
	a, err = Open(cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	result, err := a.Services.Materializer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	article, err := a.Static.Read("persisted")
	require.NoError(t, err)
	assert.Equal(t, "Persisted", article.Title)
}

func TestOpen_Memory(t *testing.T) {
	a, err := Open(testConfig(t, config.BackendMemory), nil, zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, a.Hook.Configured())
	assert.NoError(t, a.Close())
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(testConfig(t, "redis"), nil, zerolog.Nop())
	assert.ErrorContains(t, err, `unknown store backend "redis"`)
}
