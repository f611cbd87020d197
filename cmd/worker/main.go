package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kenzic/unhinged-side-quest-research-agent/common/id"
	"github.com/kenzic/unhinged-side-quest-research-agent/common/logger"
	"github.com/kenzic/unhinged-side-quest-research-agent/common/otel"
	"github.com/kenzic/unhinged-side-quest-research-agent/core/config"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/app"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/queue"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/worker"
)

func main() {
	ctx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel, cfg.Env)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger.Setup(cfg)

	slog.InfoContext(ctx, "sidequest worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Redis.TurnQueueGroup,
		"consumer_name", cfg.Redis.ConsumerName)

	// Initialize snowflake ID generator (use different node ID than server)
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	storage, err := app.OpenStorage(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open storage", "error", err)
		os.Exit(1)
	}
	defer storage.Close()

	redisClient, err := app.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	agent, err := app.NewChatAgent(cfg, app.NewSearchProvider(cfg.Search))
	if err != nil {
		slog.ErrorContext(ctx, "failed to build chat agent", "error", err)
		os.Exit(1)
	}
	chat := app.NewChatService(cfg, agent, storage, redisClient)

	consumer, err := queue.NewRedisConsumer(ctx, redisClient, queue.ConsumerConfig{
		Stream:    cfg.Redis.TurnQueueStream,
		Group:     cfg.Redis.TurnQueueGroup,
		Consumer:  cfg.Redis.ConsumerName,
		BatchSize: 1, // Turns are long; run one at a time
		Block:     5 * time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	w := worker.New(consumer, chat)

	// Anything pending longer than two turn timeouts belongs to a dead worker.
	reclaimer := worker.NewReclaimer(consumer, chat, worker.ReclaimerConfig{
		MinIdle:  2 * cfg.Agents.TurnTimeout,
		Interval: time.Minute,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(ctx)
	}()
	go reclaimer.Run(ctx)

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	reclaimer.Stop()

	// Let the running turn finish; abort it if it outlives the grace period.
	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(30 * time.Second):
		slog.WarnContext(ctx, "shutdown timeout exceeded, aborting running turn")
		cancelRun()
		<-stopped
	}

	if err := <-errCh; err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "worker shutdown complete")
}

const banner = `
   _____ _     _                             _   
  / ____(_)   | |                           | |  
 | (___  _  __| | ___  __ _ _   _  ___  ___| |_ 
  \___ \| |/ _' |/ _ \/ _' | | | |/ _ \/ __| __|
  ____) | | (_| |  __/ (_| | |_| |  __/\__ \ |_ 
 |_____/|_|\__,_|\___|\__, |\__,_|\___||___/\__|
                         | |      worker         
                         |_|                     
`
