// Package app wires configuration into the chat pipeline shared by the
// server, the worker and the ask CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/kenzic/unhinged-side-quest-research-agent/common/llm"
	"github.com/kenzic/unhinged-side-quest-research-agent/core/config"
	"github.com/kenzic/unhinged-side-quest-research-agent/core/db"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/brain"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/queue"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/search"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/service"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/store"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/stream"
)

// NewChatAgent builds the orchestrator and its three sub-agents. The
// sub-agents share one client; the chat agent may use a different one.
func NewChatAgent(cfg config.Config, provider search.Provider) (*brain.ChatAgent, error) {
	chatClient, err := newAgentClient(cfg.ChatLLM)
	if err != nil {
		return nil, fmt.Errorf("chat llm: %w", err)
	}
	subClient, err := newAgentClient(cfg.SubAgentLLM)
	if err != nil {
		return nil, fmt.Errorf("sub-agent llm: %w", err)
	}

	subCfg := brain.SubAgentConfig{
		MaxSteps:  cfg.Agents.SubAgentMaxSteps,
		MaxTokens: cfg.SubAgentLLM.MaxTokens,
	}

	chatSearch := brain.NewSearchTool(provider, search.Options{
		Depth:      cfg.Search.Depth,
		MaxResults: cfg.Search.ChatMaxResults,
	})
	tangentSearch := brain.NewSearchTool(provider, search.Options{
		Depth:      cfg.Search.Depth,
		MaxResults: cfg.Search.TangentMaxResults,
	})

	agent := brain.NewChatAgent(chatClient, brain.ChatAgentDeps{
		Search:      chatSearch,
		Tangent:     brain.NewTangentAgent(subClient, tangentSearch, subCfg),
		FactChecker: brain.NewFactChecker(subClient, subCfg),
		Summarizer:  brain.NewSummarizer(subClient, subCfg),
	}, brain.ChatAgentConfig{
		MaxSteps:        cfg.Agents.ChatMaxSteps,
		MaxTokens:       cfg.ChatLLM.MaxTokens,
		EnforceWorkflow: cfg.Agents.EnforceWorkflow,
	})

	slog.Info("chat agent configured",
		"chat_provider", cfg.ChatLLM.Provider,
		"chat_model", chatClient.Model(),
		"subagent_model", subClient.Model(),
		"chat_max_steps", cfg.Agents.ChatMaxSteps,
		"subagent_max_steps", cfg.Agents.SubAgentMaxSteps,
		"enforce_workflow", cfg.Agents.EnforceWorkflow)

	return agent, nil
}

func newAgentClient(cfg config.LLMConfig) (llm.AgentClient, error) {
	return llm.NewAgentClient(llm.Config{
		Provider: cfg.Provider,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Model:    cfg.Model,
	})
}

// NewSearchProvider returns the Tavily client configured by cfg.
func NewSearchProvider(cfg config.SearchConfig) search.Provider {
	return search.NewTavily(search.TavilyConfig{
		APIKey:           cfg.APIKey,
		BaseURL:          cfg.BaseURL,
		Timeout:          cfg.Timeout,
		RateLimitRetries: cfg.RateLimitRetries,
	})
}

// Storage is the persistence backend picked by OpenStorage.
type Storage struct {
	Stores   store.Provider
	TxRunner store.TxRunner
	database *db.DB
}

// OpenStorage connects to Postgres and applies the schema. Without a DSN it
// falls back to process memory, which loses everything on exit.
func OpenStorage(ctx context.Context, cfg db.Config) (*Storage, error) {
	if !cfg.Enabled() {
		mem := store.NewMemory()
		slog.WarnContext(ctx, "DATABASE_URL not set, using in-memory store")
		return &Storage{Stores: mem, TxRunner: mem}, nil
	}

	database, err := db.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, err
	}
	slog.InfoContext(ctx, "database connected")

	return &Storage{
		Stores:   store.NewStores(database.Queries()),
		TxRunner: store.NewTxRunner(database),
		database: database,
	}, nil
}

func (s *Storage) Close() {
	if s.database != nil {
		s.database.Close()
	}
}

// OpenRedis returns nil when Redis is not configured.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	slog.InfoContext(ctx, "redis connected")
	return client, nil
}

// NewChatService assembles the chat service. A nil redisClient disables
// event mirroring, replay and async turns.
func NewChatService(cfg config.Config, agent service.TurnRunner, storage *Storage, redisClient *redis.Client) service.ChatService {
	deps := service.ChatServiceDeps{
		Agent:    agent,
		Stores:   storage.Stores,
		TxRunner: storage.TxRunner,
	}
	if redisClient != nil {
		deps.Mirror = stream.NewRedisMirror(redisClient, stream.RedisMirrorConfig{
			MaxLen: cfg.Redis.EventStreamMax,
			TTL:    cfg.Redis.EventStreamTTL,
		})
		deps.Producer = queue.NewRedisProducer(redisClient, cfg.Redis.TurnQueueStream, slog.Default())
	}
	return service.NewChatService(deps, service.ChatServiceConfig{TurnTimeout: cfg.Agents.TurnTimeout})
}
