//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/google/wire"
	"go.uber.org/zap"

	"flock-backend/internal/config"
	"flock-backend/internal/domain/events"
	"flock-backend/internal/infrastructure/observability"
	"flock-backend/internal/repository"
	"flock-backend/internal/service/lifecycle"
	"flock-backend/internal/service/linking"
	"flock-backend/internal/service/prayer"
	"flock-backend/internal/service/search"
	"flock-backend/internal/service/similarity"
)

// Container holds all application dependencies
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Collector
	Store     repository.Store
	Publisher events.Publisher
	Ranker    *similarity.Ranker
	Search    *search.Service
	Prayers   *prayer.Service
	Linking   *linking.Engine
	Lifecycle *lifecycle.Manager
	Router    *chi.Mux
}

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideStore,
	ProvidePublisher,
	ProvideEmbeddingProvider,
	ProvideEmbeddingClient,
	ProvideRanker,
	ProvideRetriever,
	ProvideLifecycleManager,
	ProvideSearchService,
	ProvidePrayerService,
	ProvideLinkEngine,
	ProvideErrorHandler,
	ProvideAuthConfig,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil
}
