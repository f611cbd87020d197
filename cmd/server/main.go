package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/kenzic/unhinged-side-quest-research-agent/common/id"
	"github.com/kenzic/unhinged-side-quest-research-agent/common/logger"
	"github.com/kenzic/unhinged-side-quest-research-agent/common/otel"
	"github.com/kenzic/unhinged-side-quest-research-agent/core/config"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/app"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/http/middleware"
	httprouter "github.com/kenzic/unhinged-side-quest-research-agent/internal/http/router"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/service"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel, cfg.Env)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "sidequest server starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
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
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		slog.WarnContext(ctx, "REDIS_URL not set, replay and async turns disabled")
	}

	agent, err := app.NewChatAgent(cfg, app.NewSearchProvider(cfg.Search))
	if err != nil {
		slog.ErrorContext(ctx, "failed to build chat agent", "error", err)
		os.Exit(1)
	}

	chat := app.NewChatService(cfg, agent, storage, redisClient)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, chat)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Turns stream for minutes; the turn timeout bounds them instead.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, chat service.ChatService) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → RequestID tags logs → Logger logs
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, chat)

	return router
}

const banner = `
   _____ _     _                             _   
  / ____(_)   | |                           | |  
 | (___  _  __| | ___  __ _ _   _  ___  ___| |_ 
  \___ \| |/ _' |/ _ \/ _' | | | |/ _ \/ __| __|
  ____) | | (_| |  __/ (_| | |_| |  __/\__ \ |_ 
 |_____/|_|\__,_|\___|\__, |\__,_|\___||___/\__|
                         | |      server         
                         |_|                     
`
