package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	QueueDriver            string `mapstructure:"QUEUE_DRIVER"`
	RedisURL               string `mapstructure:"REDIS_URL"`
	QueueVisibilitySeconds int    `mapstructure:"QUEUE_VISIBILITY_TIMEOUT_SECONDS"`

	WorkerCount              int    `mapstructure:"WORKER_COUNT"`
	GenerationTimeoutSeconds int    `mapstructure:"GENERATION_TIMEOUT_SECONDS"`
	GenerationMaxAttempts    int    `mapstructure:"GENERATION_MAX_ATTEMPTS"`
	GenerationBackoffSeconds int    `mapstructure:"GENERATION_BACKOFF_SECONDS"`
	GeminiAPIKey             string `mapstructure:"GEMINI_API_KEY"`
	GeminiModel              string `mapstructure:"GEMINI_MODEL"`
	GeminiBaseURL            string `mapstructure:"GEMINI_BASE_URL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("QUEUE_DRIVER", "postgres")
	v.SetDefault("QUEUE_VISIBILITY_TIMEOUT_SECONDS", 300)
	v.SetDefault("WORKER_COUNT", 4)
	v.SetDefault("GENERATION_TIMEOUT_SECONDS", 60)
	v.SetDefault("GENERATION_MAX_ATTEMPTS", 3)
	v.SetDefault("GENERATION_BACKOFF_SECONDS", 2)
	v.SetDefault("GEMINI_MODEL", "gemini-2.0-flash")
	v.SetDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("QUEUE_DRIVER")
	v.BindEnv("REDIS_URL")
	v.BindEnv("QUEUE_VISIBILITY_TIMEOUT_SECONDS")
	v.BindEnv("WORKER_COUNT")
	v.BindEnv("GENERATION_TIMEOUT_SECONDS")
	v.BindEnv("GENERATION_MAX_ATTEMPTS")
	v.BindEnv("GENERATION_BACKOFF_SECONDS")
	v.BindEnv("GEMINI_API_KEY")
	v.BindEnv("GEMINI_MODEL")
	v.BindEnv("GEMINI_BASE_URL")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the service is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// GenerationTimeout returns the per-call deadline for care plan generation.
func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSeconds) * time.Second
}

// QueueVisibilityTimeout returns how long a dequeued message stays invisible
// before it is redelivered to another worker.
func (c *Config) QueueVisibilityTimeout() time.Duration {
	return time.Duration(c.QueueVisibilitySeconds) * time.Second
}

// Validate checks that the configuration is safe to run. The queue driver
// must be one of the supported backends, Redis needs an address, and the
// generation engine needs an API key outside development.
func (c *Config) Validate() error {
	switch c.QueueDriver {
	case "postgres", "redis", "memory":
	default:
		return fmt.Errorf("QUEUE_DRIVER must be \"postgres\", \"redis\", or \"memory\", got %q", c.QueueDriver)
	}

	if c.QueueDriver == "redis" && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when QUEUE_DRIVER is \"redis\"")
	}
	if c.QueueDriver == "memory" && c.IsProduction() {
		return fmt.Errorf("QUEUE_DRIVER \"memory\" loses queued work on restart and cannot be used in production")
	}

	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1, got %d", c.WorkerCount)
	}
	if c.GenerationMaxAttempts < 1 {
		return fmt.Errorf("GENERATION_MAX_ATTEMPTS must be at least 1, got %d", c.GenerationMaxAttempts)
	}
	if c.QueueVisibilitySeconds < 1 {
		return fmt.Errorf("QUEUE_VISIBILITY_TIMEOUT_SECONDS must be at least 1, got %d", c.QueueVisibilitySeconds)
	}

	if c.IsProduction() && c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required in production")
	}

	return nil
}
