package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"flock-backend/internal/auth"
	"flock-backend/internal/config"
	"flock-backend/internal/domain/events"
	apperrors "flock-backend/internal/errors"
	infraembedding "flock-backend/internal/infrastructure/embedding"
	"flock-backend/internal/infrastructure/messaging"
	"flock-backend/internal/infrastructure/messaging/eventbridge"
	"flock-backend/internal/infrastructure/observability"
	"flock-backend/internal/infrastructure/persistence/dynamodb"
	"flock-backend/internal/infrastructure/persistence/memory"
	"flock-backend/internal/interfaces/http/rest"
	"flock-backend/internal/interfaces/http/rest/handlers"
	"flock-backend/internal/interfaces/http/rest/middleware"
	"flock-backend/internal/repository"
	"flock-backend/internal/service/embedding"
	"flock-backend/internal/service/lifecycle"
	"flock-backend/internal/service/linking"
	"flock-backend/internal/service/prayer"
	"flock-backend/internal/service/retrieval"
	"flock-backend/internal/service/search"
	"flock-backend/internal/service/similarity"
)

// sessionTTL bounds how long an idle editing session is remembered.
const sessionTTL = 30 * time.Minute

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.IsProduction() || cfg.IsLambda {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.LogLevel != "" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("environment", string(cfg.Environment))), nil
}

// ProvideMetrics returns nil when metrics are disabled; the collector
// methods are no-ops on nil.
func ProvideMetrics(cfg *config.Config) *observability.Collector {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return observability.NewCollector("flock")
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Database.Region),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config, cfg *config.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
		if cfg.Database.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Database.Endpoint)
		}
	})
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideStore selects DynamoDB or the in-memory store.
func ProvideStore(cfg *config.Config, client *awsdynamodb.Client, logger *zap.Logger) repository.Store {
	if cfg.Database.InMemory {
		logger.Warn("Using in-memory store; data is lost on restart")
		return memory.NewStore()
	}
	return dynamodb.NewStore(client, cfg.Database.TableName, cfg.Database.TransactionalMerge, logger)
}

// ProvidePublisher publishes to EventBridge when events are enabled and to
// the log otherwise.
func ProvidePublisher(cfg *config.Config, client *awseventbridge.Client, logger *zap.Logger) events.Publisher {
	if !cfg.Events.Enabled {
		return messaging.NewLogPublisher(logger)
	}
	return eventbridge.NewPublisher(client, cfg.Events.BusName, cfg.Events.Source, logger)
}

// ProvideEmbeddingProvider builds the configured model behind a circuit
// breaker and a content-addressed cache.
func ProvideEmbeddingProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger, metrics *observability.Collector) (embedding.Provider, error) {
	ec := cfg.Embedding

	var base embedding.Provider
	switch ec.Provider {
	case "gemini":
		p, err := infraembedding.NewGeminiProvider(ctx, ec.APIKey, ec.Model, ec.Dimensions)
		if err != nil {
			return nil, err
		}
		base = p
	case "openai":
		base = infraembedding.NewOpenAIProvider(ec.BaseURL, ec.APIKey, ec.Model, ec.Dimensions, ec.Timeout)
	case "hash":
		base = infraembedding.NewHashProvider(ec.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", ec.Provider)
	}

	breaker := infraembedding.NewBreakerProvider(base, infraembedding.BreakerConfig{
		MaxRequests:      ec.Breaker.MaxRequests,
		Interval:         ec.Breaker.Interval,
		Timeout:          ec.Breaker.Timeout,
		FailureThreshold: ec.Breaker.FailureThreshold,
	}, ec.Timeout, logger)

	if ec.CacheSize <= 0 {
		return breaker, nil
	}
	return infraembedding.NewCachedProvider(breaker, ec.CacheSize, metrics), nil
}

func ProvideEmbeddingClient(provider embedding.Provider, cfg *config.Config, logger *zap.Logger, metrics *observability.Collector) *embedding.Client {
	return embedding.NewClient(provider, cfg.Search.MaxVectorLength, cfg.Embedding.TextBudget, logger, metrics)
}

func ProvideRanker(cfg *config.Config) *similarity.Ranker {
	return similarity.NewRanker(RankLimits(cfg.Search))
}

// RankLimits converts the search config for the ranker. It is also used
// when the config is hot reloaded.
func RankLimits(s config.SearchConfig) similarity.Limits {
	return similarity.Limits{
		DefaultTopK:     s.DefaultTopK,
		MaxTopK:         s.MaxTopK,
		MaxVectorLength: s.MaxVectorLength,
	}
}

func ProvideRetriever(store repository.Store, logger *zap.Logger) *retrieval.Retriever {
	return retrieval.NewRetriever(store, store, logger)
}

func ProvideLifecycleManager(store repository.Store, publisher events.Publisher, logger *zap.Logger, metrics *observability.Collector) *lifecycle.Manager {
	return lifecycle.NewManager(store, publisher, logger, metrics)
}

func ProvideSearchService(
	retriever *retrieval.Retriever,
	ranker *similarity.Ranker,
	client *embedding.Client,
	manager *lifecycle.Manager,
	cfg *config.Config,
	logger *zap.Logger,
	metrics *observability.Collector,
) *search.Service {
	return search.NewService(retriever, ranker, client, manager, search.NewSessions(sessionTTL),
		cfg.Embedding.TextBudget, logger, metrics)
}

func ProvidePrayerService(store repository.Store, client *embedding.Client, searchSvc *search.Service, cfg *config.Config, logger *zap.Logger) *prayer.Service {
	return prayer.NewService(store, client, searchSvc, cfg.Embedding.TextBudget, logger)
}

func ProvideLinkEngine(
	retriever *retrieval.Retriever,
	store repository.Store,
	client *embedding.Client,
	publisher events.Publisher,
	cfg *config.Config,
	logger *zap.Logger,
	metrics *observability.Collector,
) *linking.Engine {
	return linking.NewEngine(retriever, store, store, client, publisher, linking.Options{
		SnapshotBodyLimit: cfg.Journey.SnapshotBodyLimit,
		ContextBodyLimit:  cfg.Journey.ContextBodyLimit,
		ContextBudget:     cfg.Journey.ContextBudget,
	}, logger, metrics)
}

func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *apperrors.ErrorHandler {
	return apperrors.NewErrorHandler(logger, cfg.IsDevelopment())
}

// ProvideAuthConfig requires a JWT secret unless gateway identity is trusted.
func ProvideAuthConfig(cfg *config.Config) (middleware.AuthConfig, error) {
	out := middleware.AuthConfig{TrustGateway: cfg.Auth.TrustGateway}
	if cfg.Auth.JWTSecret == "" {
		if !out.TrustGateway {
			return out, fmt.Errorf("JWT_SECRET is required unless API Gateway identity is trusted")
		}
		return out, nil
	}
	v, err := auth.NewValidator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		return out, err
	}
	out.Validator = v
	return out, nil
}

// ProvideRouter assembles the HTTP handlers.
func ProvideRouter(
	cfg *config.Config,
	prayerSvc *prayer.Service,
	searchSvc *search.Service,
	engine *linking.Engine,
	manager *lifecycle.Manager,
	store repository.Store,
	authCfg middleware.AuthConfig,
	errs *apperrors.ErrorHandler,
	metrics *observability.Collector,
	logger *zap.Logger,
) *chi.Mux {
	var origins []string
	if cfg.CORS.Enabled {
		origins = cfg.CORS.AllowedOrigins
	}
	router := &rest.Router{
		Prayers:        handlers.NewPrayerHandler(prayerSvc, errs, logger),
		Search:         handlers.NewSearchHandler(searchSvc, errs, logger),
		Links:          handlers.NewLinkHandler(engine, manager, errs, logger),
		Topics:         handlers.NewTopicHandler(store, errs, logger),
		Auth:           authCfg,
		AllowedOrigins: origins,
		Metrics:        metrics,
		Ready:          readiness(store),
		Errors:         errs,
		Logger:         logger,
	}
	return router.Setup()
}

// readiness probes the store with a read that needs no data.
func readiness(store repository.Store) rest.ReadinessCheck {
	return func(ctx context.Context) error {
		_, err := store.GetPrayer(ctx, "readiness-probe", "readiness-probe")
		if err == nil || apperrors.IsNotFound(err) {
			return nil
		}
		return err
	}
}
