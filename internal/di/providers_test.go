package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flock-backend/internal/auth"
	"flock-backend/internal/config"
	"flock-backend/internal/infrastructure/messaging"
	"flock-backend/internal/infrastructure/persistence/memory"
)

func localConfig() *config.Config {
	cfg := config.Default()
	cfg.LogLevel = "error"
	cfg.Database.InMemory = true
	cfg.Embedding.Provider = "hash"
	cfg.Embedding.Dimensions = 32
	cfg.Auth.JWTSecret = "test-secret"
	return cfg
}

func TestInitializeContainer_InMemory(t *testing.T) {
	cfg := localConfig()

	c, err := InitializeContainer(context.Background(), cfg)
	require.NoError(t, err)

	assert.IsType(t, &memory.Store{}, c.Store)
	assert.IsType(t, &messaging.LogPublisher{}, c.Publisher)
	assert.NotNil(t, c.Metrics)

	token, err := auth.Issue("test-secret", "flock", "u1", "", time.Hour, time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/prayers", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c.Router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	c.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProvideEmbeddingProvider_UnknownProvider(t *testing.T) {
	cfg := localConfig()
	cfg.Embedding.Provider = "word2vec"

	_, err := ProvideEmbeddingProvider(context.Background(), cfg, zap.NewNop(), nil)
	assert.ErrorContains(t, err, "unknown embedding provider")
}

func TestProvideAuthConfig(t *testing.T) {
	cfg := localConfig()
	cfg.Auth.JWTSecret = ""

	_, err := ProvideAuthConfig(cfg)
	assert.Error(t, err)

	cfg.Auth.TrustGateway = true
	ac, err := ProvideAuthConfig(cfg)
	require.NoError(t, err)
	assert.True(t, ac.TrustGateway)
	assert.Nil(t, ac.Validator)
}

func TestProvideMetrics_Disabled(t *testing.T) {
	cfg := localConfig()
	cfg.Metrics.Enabled = false
	assert.Nil(t, ProvideMetrics(cfg))
}
