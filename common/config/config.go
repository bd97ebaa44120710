package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/lyzr/agentchain/common/sdk"
)

// Config holds all service configuration
type Config struct {
	Service  ServiceConfig
	Engine   EngineConfig
	Redis    RedisConfig
	Database DatabaseConfig
	OpenAI   OpenAIConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// EngineConfig holds the workflow engine settings
type EngineConfig struct {
	MaxParallel                int
	PersistIntermediateOutputs bool
	FailurePolicy              string
	TokenCeiling               int
	DepthCeiling               int
	UseCache                   bool
	ValidateOutputs            bool
	StrictSchemaAlignment      bool
}

// RedisConfig holds Redis connection settings for the cache, context store
// and memory backends
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// DatabaseConfig holds Postgres connection settings for the durable context
// store
type DatabaseConfig struct {
	Enabled     bool
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// OpenAIConfig holds LLM provider settings
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"), // Default to text for development
		},
		Engine: EngineConfig{
			MaxParallel:                getEnvInt("ENGINE_MAX_PARALLEL", 5),
			PersistIntermediateOutputs: getEnvBool("ENGINE_PERSIST_OUTPUTS", true),
			FailurePolicy:              getEnv("ENGINE_FAILURE_POLICY", "continue_possible"),
			TokenCeiling:               getEnvInt("ENGINE_TOKEN_CEILING", 0),
			DepthCeiling:               getEnvInt("ENGINE_DEPTH_CEILING", 0),
			UseCache:                   getEnvBool("ENGINE_USE_CACHE", true),
			ValidateOutputs:            getEnvBool("ENGINE_VALIDATE_OUTPUTS", true),
			StrictSchemaAlignment:      getEnvBool("ENGINE_STRICT_SCHEMA_ALIGNMENT", false),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      getEnvDuration("REDIS_TTL", 24*time.Hour),
		},
		Database: DatabaseConfig{
			Enabled:     getEnvBool("POSTGRES_ENABLED", false),
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "agentchain"),
			User:        getEnv("POSTGRES_USER", "agentchain"),
			Password:    getEnv("POSTGRES_PASSWORD", "agentchain"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		OpenAI: OpenAIConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Engine.MaxParallel < 1 {
		return fmt.Errorf("engine max_parallel must be >= 1")
	}

	switch c.Engine.FailurePolicy {
	case "halt", "continue_possible", "always":
	default:
		return fmt.Errorf("invalid failure policy: %s", c.Engine.FailurePolicy)
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			return fmt.Errorf("max_conns must be >= min_conns")
		}
	}

	return nil
}

// EngineOptions converts the engine section to runtime options.
func (c *Config) EngineOptions() *sdk.Options {
	opts := &sdk.Options{
		MaxParallel:                c.Engine.MaxParallel,
		PersistIntermediateOutputs: c.Engine.PersistIntermediateOutputs,
		FailurePolicy:              sdk.FailurePolicy(c.Engine.FailurePolicy),
		TokenCeiling:               c.Engine.TokenCeiling,
		DepthCeiling:               c.Engine.DepthCeiling,
		UseCache:                   c.Engine.UseCache,
		ValidateOutputs:            c.Engine.ValidateOutputs,
		StrictSchemaAlignment:      c.Engine.StrictSchemaAlignment,
	}
	opts.Normalize()
	return opts
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
