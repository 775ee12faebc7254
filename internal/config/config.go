// Package config loads the Flock backend configuration from compiled
// defaults, an optional YAML file, and environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config holds all application configuration
type Config struct {
	Environment Environment     `yaml:"environment"`
	LogLevel    string          `yaml:"log_level"`
	IsLambda    bool            `yaml:"is_lambda"`
	Server      ServerConfig    `yaml:"server"`
	Database    DatabaseConfig  `yaml:"database"`
	Auth        AuthConfig      `yaml:"auth"`
	CORS        CORSConfig      `yaml:"cors"`
	Embedding   EmbeddingConfig `yaml:"embedding"`
	Search      SearchConfig    `yaml:"search"`
	Journey     JourneyConfig   `yaml:"journey"`
	Events      EventsConfig    `yaml:"events"`
	Tracing     TracingConfig   `yaml:"tracing"`
	Metrics     MetricsConfig   `yaml:"metrics"`

	// FilePath is the YAML file the config was read from, if any.
	FilePath string `yaml:"-"`
}

type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Region    string `yaml:"region"`
	TableName string `yaml:"table_name"`
	// Endpoint overrides the DynamoDB endpoint (DynamoDB Local).
	Endpoint string `yaml:"endpoint"`
	// InMemory swaps DynamoDB for the process-local store.
	InMemory bool `yaml:"in_memory"`
	// TransactionalMerge commits link writes with TransactWriteItems.
	TransactionalMerge bool `yaml:"transactional_merge"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	JWTIssuer string `yaml:"jwt_issuer"`
	// TrustGateway accepts identity forwarded by the API Gateway authorizer.
	TrustGateway bool `yaml:"trust_gateway"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Dimensions int           `yaml:"dimensions"`
	TextBudget int           `yaml:"text_budget"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheSize  int           `yaml:"cache_size"`
	Breaker    BreakerConfig `yaml:"breaker"`
}

type BreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
}

// SearchConfig bounds similarity ranking. It can be hot reloaded.
type SearchConfig struct {
	DefaultTopK     int `yaml:"default_top_k"`
	MaxTopK         int `yaml:"max_top_k"`
	MaxVectorLength int `yaml:"max_vector_length"`
}

type JourneyConfig struct {
	SnapshotBodyLimit int `yaml:"snapshot_body_limit"`
	ContextBodyLimit  int `yaml:"context_body_limit"`

	// ContextBudget caps the embedded topic context, in runes.
	ContextBudget int `yaml:"context_budget"`
}

type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	BusName string `yaml:"bus_name"`
	Source  string `yaml:"source"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRate  float64 `yaml:"sample_rate"`
	ServiceName string  `yaml:"service_name"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the compiled defaults.
func Default() *Config {
	return &Config{
		Environment: Development,
		LogLevel:    "info",
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Region:             "us-west-2",
			TableName:          "flock",
			TransactionalMerge: true,
		},
		Auth: AuthConfig{
			JWTIssuer: "flock",
		},
		CORS: CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"*"},
		},
		Embedding: EmbeddingConfig{
			Provider:   "gemini",
			Model:      "gemini-embedding-001",
			Dimensions: 1536,
			TextBudget: 250,
			Timeout:    10 * time.Second,
			CacheSize:  512,
			Breaker: BreakerConfig{
				MaxRequests:      3,
				Interval:         60 * time.Second,
				Timeout:          30 * time.Second,
				FailureThreshold: 5,
			},
		},
		Search: SearchConfig{
			DefaultTopK:     5,
			MaxTopK:         10,
			MaxVectorLength: 1536,
		},
		Journey: JourneyConfig{
			SnapshotBodyLimit: 500,
			ContextBodyLimit:  250,
			ContextBudget:     4000,
		},
		Events: EventsConfig{
			BusName: "flock-events",
			Source:  "flock.prayers",
		},
		Tracing: TracingConfig{
			Endpoint:    "localhost:4317",
			SampleRate:  0.1,
			ServiceName: "flock-backend",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// LoadConfig loads configuration from defaults, CONFIG_FILE and the environment.
// A .env file in the working directory is read first when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads defaults overlaid with a single YAML file, without env overrides.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.FilePath = path
	return nil
}

func (c *Config) applyEnv() {
	c.Environment = Environment(getEnv("ENVIRONMENT", string(c.Environment)))
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.IsLambda = getEnvBool("IS_LAMBDA", c.IsLambda || os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "")

	c.Server.Address = getEnv("SERVER_ADDRESS", c.Server.Address)

	c.Database.Region = getEnv("AWS_REGION", c.Database.Region)
	c.Database.TableName = getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", c.Database.TableName))
	c.Database.Endpoint = getEnv("DYNAMODB_ENDPOINT", c.Database.Endpoint)
	c.Database.InMemory = getEnvBool("USE_MEMORY_STORE", c.Database.InMemory)
	c.Database.TransactionalMerge = getEnvBool("TRANSACTIONAL_MERGE", c.Database.TransactionalMerge)

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.JWTIssuer = getEnv("JWT_ISSUER", c.Auth.JWTIssuer)
	c.Auth.TrustGateway = getEnvBool("TRUST_API_GATEWAY", c.Auth.TrustGateway || c.IsLambda)

	c.CORS.Enabled = getEnvBool("ENABLE_CORS", c.CORS.Enabled)
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.CORS.AllowedOrigins = strings.Split(origins, ",")
	}

	c.Embedding.Provider = getEnv("EMBEDDING_PROVIDER", c.Embedding.Provider)
	c.Embedding.Model = getEnv("EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.APIKey = getEnv("EMBEDDING_API_KEY", getEnv("GEMINI_API_KEY", c.Embedding.APIKey))
	c.Embedding.BaseURL = getEnv("EMBEDDING_BASE_URL", c.Embedding.BaseURL)
	c.Embedding.Dimensions = getEnvInt("EMBEDDING_DIMENSIONS", c.Embedding.Dimensions)
	c.Embedding.TextBudget = getEnvInt("EMBEDDING_TEXT_BUDGET", c.Embedding.TextBudget)

	c.Journey.ContextBudget = getEnvInt("TOPIC_CONTEXT_BUDGET", c.Journey.ContextBudget)

	c.Search.DefaultTopK = getEnvInt("SEARCH_DEFAULT_TOP_K", c.Search.DefaultTopK)
	c.Search.MaxTopK = getEnvInt("SEARCH_MAX_TOP_K", c.Search.MaxTopK)
	c.Search.MaxVectorLength = getEnvInt("SEARCH_MAX_VECTOR_LENGTH", c.Search.MaxVectorLength)

	c.Events.Enabled = getEnvBool("ENABLE_EVENTS", c.Events.Enabled)
	c.Events.BusName = getEnv("EVENT_BUS_NAME", c.Events.BusName)

	c.Tracing.Enabled = getEnvBool("ENABLE_TRACING", c.Tracing.Enabled)
	c.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Tracing.Endpoint)

	c.Metrics.Enabled = getEnvBool("ENABLE_METRICS", c.Metrics.Enabled)
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.Environment {
	case Development, Staging, Production:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}

	if err := c.Search.Validate(); err != nil {
		return err
	}

	if c.Embedding.Dimensions > c.Search.MaxVectorLength {
		return fmt.Errorf("embedding dimensions %d exceed max vector length %d",
			c.Embedding.Dimensions, c.Search.MaxVectorLength)
	}
	if c.Embedding.TextBudget <= 0 {
		return fmt.Errorf("embedding text budget must be positive")
	}
	if c.Journey.ContextBudget <= 0 {
		return fmt.Errorf("topic context budget must be positive")
	}

	if c.Environment == Production {
		if c.Auth.JWTSecret == "" && !c.Auth.TrustGateway {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if !c.Database.InMemory && c.Database.TableName == "" {
			return fmt.Errorf("TABLE_NAME is required")
		}
		if c.Events.Enabled && c.Events.BusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required when events are enabled")
		}
	}

	return nil
}

// Validate checks the ranking bounds.
func (s SearchConfig) Validate() error {
	if s.MaxVectorLength <= 0 {
		return fmt.Errorf("max vector length must be positive, got %d", s.MaxVectorLength)
	}
	if s.MaxTopK <= 0 {
		return fmt.Errorf("max topK must be positive, got %d", s.MaxTopK)
	}
	if s.DefaultTopK <= 0 || s.DefaultTopK > s.MaxTopK {
		return fmt.Errorf("default topK %d must be between 1 and max topK %d", s.DefaultTopK, s.MaxTopK)
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
