package service_test

import (
	"context"
	"testing"

	"github.com/draft-staging-api/internal/config"
	"github.com/draft-staging-api/internal/mocks"
	"github.com/draft-staging-api/internal/models"
	"github.com/draft-staging-api/internal/repository"
	"github.com/draft-staging-api/internal/service"
	"github.com/draft-staging-api/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store   *mocks.MockStore
	static  *mocks.MockStaticStore
	hook    *mocks.MockDeployTrigger
	repos   *repository.Repositories
	metrics *telemetry.Metrics
	svc     *service.Services
}

func newFixture(t *testing.T, env string) *fixture {
	t.Helper()
	return newFixtureWithConfig(t, &config.Config{Env: env})
}

func newFixtureWithConfig(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	f := &fixture{
		store:   mocks.NewMockStore(),
		static:  mocks.NewMockStaticStore(),
		hook:    mocks.NewMockDeployTrigger("https://hooks.example/deploy"),
		metrics: telemetry.New(),
	}
	f.repos = repository.New(f.store, zerolog.Nop())
	f.svc = service.NewServices(f.repos, f.static, f.hook, cfg, f.metrics, zerolog.Nop())
	return f
}

func input(title string) *models.DraftInput {
	return &models.DraftInput{
		Title:       title,
		Description: "About " + title,
		Content:     "# " + title + "\n\nBody.",
		PublishedAt: "2024-01-15",
		Tags:        []string{"go"},
	}
}

func (f *fixture) create(t *testing.T, title string) *models.Draft {
	t.Helper()
	d, err := f.svc.Drafts.Create(context.Background(), input(title))
	require.NoError(t, err)
	return d
}

func (f *fixture) index(t *testing.T) []string {
	t.Helper()
	slugs, err := f.repos.Index.List(context.Background())
	require.NoError(t, err)
	return slugs
}

func strPtr(s string) *string { return &s }

// counter resolves the read fallback series for op
func counter(t *testing.T, f *fixture, op string) prometheus.Collector {
	t.Helper()
	c, ok := f.metrics.ReadFallbacks.With(op).(prometheus.Collector)
	require.True(t, ok)
	return c
}

const staticDoc = "---\ntitle: 'Old Post'\ndescription: 'From the archive'\npublishedAt: '2020-05-01'\ntags: [\"archive\"]\nsendAsNewsletter: false\nnewsletterSentAt: 2020-05-02T09:00:00Z\n---\n\nOld body\n"
