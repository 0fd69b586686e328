// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`
	Host   string `env:"HOST" envDefault:"0.0.0.0"`
	Port   int    `env:"PORT" envDefault:"8080"`

	// DBURL backs the optional document-store persistence adapter
	// (internal/adapter/persistence/postgres). Empty disables persistence.
	DBURL string `env:"DB_URL"`

	// KafkaBrokers backs the optional Redpanda-based horizontal dispatch
	// worker (cmd/worker). Empty disables it.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Providers (spec.md §6). A value beginning "sk-ant-oat" in
	// AnthropicAPIKey selects the OAuth code path; otherwise it is treated
	// as a plain API key. The engine selects the first configured provider
	// in priority order: OAuth/Anthropic > OpenAI > generic-compatible.
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIModel     string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	// GenericLLMAPIKey/BaseURL/Model configure the generic OpenAI-compatible
	// provider (any self-hosted or third-party endpoint speaking the same
	// chat-completions wire shape).
	GenericLLMAPIKey  string `env:"GENERIC_LLM_API_KEY"`
	GenericLLMBaseURL string `env:"GENERIC_LLM_BASE_URL"`
	GenericLLMModel   string `env:"GENERIC_LLM_MODEL"`

	LLMTimeoutSecs int `env:"LLM_TIMEOUT_SECS" envDefault:"120"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"gradeengine"`

	CORSOrigins string `env:"CORS_ORIGINS" envDefault:"*"`

	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"30"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	// Job lifecycle (spec.md §6).
	MaxConcurrentChecks int           `env:"MAX_CONCURRENT_CHECKS" envDefault:"4"`
	ReviewTTLSecs       int           `env:"REVIEW_TTL_SECS" envDefault:"3600"`
	RepoSizeCapMB       int64         `env:"REPO_SIZE_CAP_MB" envDefault:"100"`
	ReaperInterval      time.Duration `env:"REAPER_INTERVAL" envDefault:"60s"`
	CloneTimeout        time.Duration `env:"CLONE_TIMEOUT" envDefault:"300s"`

	// Default grade config overrides (spec.md §4.6/§4.7, request-overridable).
	DefaultMaxParallelTasks    int `env:"DEFAULT_MAX_PARALLEL_TASKS" envDefault:"5"`
	DefaultMaxParallelCriteria int `env:"DEFAULT_MAX_PARALLEL_CRITERIA" envDefault:"10"`
	DefaultCriterionTimeoutSec int `env:"DEFAULT_CRITERION_TIMEOUT_SECS" envDefault:"60"`
	DefaultMaxFiles            int `env:"DEFAULT_MAX_FILES" envDefault:"30"`
	DefaultMaxCharsPerFile     int `env:"DEFAULT_MAX_CHARS_PER_FILE" envDefault:"5000"`

	// LLM retry configuration (spec.md §4.1).
	RetryMaxRetries     int           `env:"RETRY_MAX_RETRIES" envDefault:"3"`
	RetryBaseDelay      time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1s"`
	RetryMaxDelay       time.Duration `env:"RETRY_MAX_DELAY" envDefault:"60s"`
	RateLimitRetryAfter time.Duration `env:"RATE_LIMIT_DEFAULT_RETRY_AFTER" envDefault:"60s"`

	// Queue Consumer Configuration (optional cmd/worker dispatch).
	ConsumerGroup          string `env:"CONSUMER_GROUP" envDefault:"gradeengine-workers"`
	ConsumerMaxConcurrency int    `env:"CONSUMER_MAX_CONCURRENCY" envDefault:"4"`
	GradeJobsTopic         string `env:"GRADE_JOBS_TOPIC" envDefault:"grading-jobs"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// QueueEnabled reports whether the Redpanda-backed horizontal dispatch
// worker has enough configuration to start.
func (c Config) QueueEnabled() bool { return len(c.KafkaBrokers) > 0 }

// PersistenceEnabled reports whether the document-store persistence
// adapter has enough configuration to start.
func (c Config) PersistenceEnabled() bool { return c.DBURL != "" }
