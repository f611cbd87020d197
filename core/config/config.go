package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/kenzic/unhinged-side-quest-research-agent/core/db"
)

type Config struct {
	OTel        OTelConfig
	ChatLLM     LLMConfig
	SubAgentLLM LLMConfig
	Search      SearchConfig
	Agents      AgentsConfig
	Redis       RedisConfig
	DB          db.Config
	Env         string
	Port        string
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
	SampleRatio    float64 // fraction of turns traced; 0 means all
}

type LLMConfig struct {
	Provider  string // "openai" or "anthropic"
	APIKey    string
	BaseURL   string // Optional: for custom endpoints
	Model     string
	MaxTokens int
}

// SearchConfig configures the Tavily-compatible search provider.
type SearchConfig struct {
	APIKey            string
	BaseURL           string
	Depth             string // "basic" or "advanced"
	ChatMaxResults    int    // results per search for the chat agent
	TangentMaxResults int    // results per search for the tangent agent
	Timeout           time.Duration
	RateLimitRetries  int // 429 responses waited out before failing the tool call
}

// AgentsConfig holds the step budgets of the four agents.
type AgentsConfig struct {
	ChatMaxSteps     int
	SubAgentMaxSteps int
	EnforceWorkflow  bool // reject final answers that skipped fact-check/summarize
	TurnTimeout      time.Duration
}

type RedisConfig struct {
	URL             string
	EventStreamTTL  time.Duration // how long turn event mirrors stay replayable
	EventStreamMax  int64         // approximate max events kept per turn
	TurnQueueStream string
	TurnQueueGroup  string
	ConsumerName    string
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeWorker ServiceType = "worker"
	ServiceTypeCLI    ServiceType = "cli"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files:
//   - .env.server for the API server
//   - .env.worker for the background worker
//   - .env.cli for the ask CLI
//
// Falls back to .env if service-specific file doesn't exist.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("SIDEQUEST_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env:  getEnv("SIDEQUEST_ENV", "development"),
		Port: getEnv("PORT", "8080"),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "sidequest"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			SampleRatio:    getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1),
		},
		ChatLLM: LLMConfig{
			Provider:  getEnv("CHAT_LLM_PROVIDER", "openai"),
			APIKey:    getEnv("CHAT_LLM_API_KEY", os.Getenv("OPENAI_API_KEY")),
			BaseURL:   getEnv("CHAT_LLM_BASE_URL", ""),
			Model:     getEnv("CHAT_LLM_MODEL", "gpt-4o"),
			MaxTokens: getEnvInt("CHAT_LLM_MAX_TOKENS", 4096),
		},
		Search: SearchConfig{
			APIKey:            getEnv("TAVILY_API_KEY", ""),
			BaseURL:           getEnv("TAVILY_BASE_URL", "https://api.tavily.com"),
			Depth:             getEnv("SEARCH_DEPTH", "advanced"),
			ChatMaxResults:    getEnvInt("SEARCH_CHAT_MAX_RESULTS", 5),
			TangentMaxResults: getEnvInt("SEARCH_TANGENT_MAX_RESULTS", 3),
			Timeout:           getEnvDuration("SEARCH_TIMEOUT", 20*time.Second),
			RateLimitRetries:  getEnvInt("SEARCH_RATE_LIMIT_RETRIES", 0),
		},
		Agents: AgentsConfig{
			ChatMaxSteps:     getEnvInt("CHAT_MAX_STEPS", 15),
			SubAgentMaxSteps: getEnvInt("SUBAGENT_MAX_STEPS", 5),
			EnforceWorkflow:  getEnvBool("ENFORCE_WORKFLOW", false),
			TurnTimeout:      getEnvDuration("TURN_TIMEOUT", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:             getEnv("REDIS_URL", ""),
			EventStreamTTL:  getEnvDuration("TURN_EVENTS_TTL", time.Hour),
			EventStreamMax:  int64(getEnvInt("TURN_EVENTS_MAX_LEN", 5000)),
			TurnQueueStream: getEnv("TURN_QUEUE_STREAM", "sidequest_turns"),
			TurnQueueGroup:  getEnv("TURN_QUEUE_GROUP", "sidequest_workers"),
			ConsumerName:    getEnv("TURN_QUEUE_CONSUMER", "worker-1"),
		},
		DB: db.Config{
			DSN:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 10),
			MinConns: getEnvInt32("DB_MIN_CONNS", 2),
		},
	}

	// Sub-agents share the chat provider unless configured separately.
	cfg.SubAgentLLM = LLMConfig{
		Provider:  getEnv("SUBAGENT_LLM_PROVIDER", cfg.ChatLLM.Provider),
		APIKey:    getEnv("SUBAGENT_LLM_API_KEY", cfg.ChatLLM.APIKey),
		BaseURL:   getEnv("SUBAGENT_LLM_BASE_URL", cfg.ChatLLM.BaseURL),
		Model:     getEnv("SUBAGENT_LLM_MODEL", cfg.ChatLLM.Model),
		MaxTokens: getEnvInt("SUBAGENT_LLM_MAX_TOKENS", cfg.ChatLLM.MaxTokens),
	}

	if err := cfg.Validate(serviceType); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the settings every service needs to answer a turn.
func (c Config) Validate(serviceType ServiceType) error {
	if !c.ChatLLM.Enabled() {
		return fmt.Errorf("CHAT_LLM_API_KEY and a supported CHAT_LLM_PROVIDER are required")
	}
	if !c.SubAgentLLM.Enabled() {
		return fmt.Errorf("SUBAGENT_LLM_API_KEY and a supported SUBAGENT_LLM_PROVIDER are required")
	}
	if c.Search.APIKey == "" {
		return fmt.Errorf("TAVILY_API_KEY is required")
	}
	if c.Agents.ChatMaxSteps <= 0 || c.Agents.SubAgentMaxSteps <= 0 {
		return fmt.Errorf("step budgets must be positive")
	}
	if serviceType == ServiceTypeWorker && !c.Redis.Enabled() {
		return fmt.Errorf("REDIS_URL is required for the worker")
	}
	// Queued turns are prepared by the server; the worker must see the same store.
	if serviceType == ServiceTypeWorker && !c.DB.Enabled() {
		return fmt.Errorf("DATABASE_URL is required for the worker")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c LLMConfig) Enabled() bool {
	return c.APIKey != "" && (c.Provider == "openai" || c.Provider == "anthropic")
}

func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
