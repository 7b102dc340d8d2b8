package service

import (
	"context"

	"github.com/draft-staging-api/internal/config"
	"github.com/draft-staging-api/internal/content"
	"github.com/draft-staging-api/internal/deploy"
	"github.com/draft-staging-api/internal/models"
	"github.com/draft-staging-api/internal/repository"
	"github.com/draft-staging-api/internal/telemetry"
	"github.com/rs/zerolog"
)

// StaticStore is the file tier as seen by the services. *content.FileStore
// satisfies it.
type StaticStore interface {
	Write(slug string, data []byte) error
	Remove(slug string) (bool, error)
	Exists(slug string) (bool, error)
	Read(slug string) (*content.Article, error)
	List() ([]*content.Article, error)
}

// DeployTrigger fires the external rebuild. *deploy.Client satisfies it.
type DeployTrigger interface {
	Configured() bool
	Trigger(ctx context.Context) (*deploy.Response, error)
}

// DraftService defines the draft record manager and publish state machine
type DraftService interface {
	List(ctx context.Context) []*models.Draft
	Get(ctx context.Context, slug string) (*models.Draft, error)
	Create(ctx context.Context, in *models.DraftInput) (*models.Draft, error)
	Update(ctx context.Context, slug string, patch *models.DraftPatch) (*models.Draft, error)
	Delete(ctx context.Context, slug string) (bool, error)
	Publish(ctx context.Context, slug string) (*models.Draft, error)
	Unpublish(ctx context.Context, slug string) (*models.Draft, error)
	Save(ctx context.Context, slug string, patch *models.DraftPatch) (*models.Draft, error)
}

// DeletionService defines the deletion marker registry
type DeletionService interface {
	Delete(ctx context.Context, slug string) (DeleteOutcome, error)
	Pending(ctx context.Context) ([]*models.DeletionMarker, error)
}

// Materializer drains drafts and deletion markers into the file tier
type Materializer interface {
	Run(ctx context.Context) (*models.MaterializeResult, error)
}

// CatalogService merges both tiers for readers
type CatalogService interface {
	Articles(ctx context.Context) *models.PublicListing
	Article(ctx context.Context, slug string) (*models.CatalogEntry, error)
	AdminPosts(ctx context.Context) *models.AdminListing
	AdminPost(ctx context.Context, slug string) (*models.CatalogEntry, error)
}

// BuildService decides when and how the static tier is rebuilt
type BuildService interface {
	Trigger(ctx context.Context) (*models.BuildResult, error)
	Nightly(ctx context.Context) (*models.BuildResult, error)
	Pending(ctx context.Context) (*models.PendingCounts, error)
}

// Scheduler runs the nightly check in the background
type Scheduler interface {
	StartProcessor(ctx context.Context)
	StopProcessor()
}

// Services holds all service interfaces
type Services struct {
	Drafts       DraftService
	Deletions    DeletionService
	Materializer Materializer
	Catalog      CatalogService
	Build        BuildService
	Scheduler    Scheduler
}

// NewServices creates all services
func NewServices(repos *repository.Repositories, static StaticStore, hook DeployTrigger, cfg *config.Config, metrics *telemetry.Metrics, log zerolog.Logger) *Services {
	metrics = telemetry.OrNoop(metrics)

	draftSvc := newDraftService(repos, static, metrics, log)
	deletionSvc := newDeletionService(draftSvc, repos, static, log)
	materializer := newMaterializer(repos, static, metrics, log)
	catalogSvc := newCatalogService(draftSvc, static, log)
	buildSvc := newBuildService(repos, materializer, hook, cfg.IsProduction(), log)
	scheduler := newScheduler(buildSvc, cfg.Build.CheckInterval, metrics, log)

	return &Services{
		Drafts:       draftSvc,
		Deletions:    deletionSvc,
		Materializer: materializer,
		Catalog:      catalogSvc,
		Build:        buildSvc,
		Scheduler:    scheduler,
	}
}
