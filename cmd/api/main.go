package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/nainovate/Evaluation-UI-sub000/internal/api"
	"github.com/nainovate/Evaluation-UI-sub000/internal/cache/redis"
	"github.com/nainovate/Evaluation-UI-sub000/internal/llm"
	"github.com/nainovate/Evaluation-UI-sub000/internal/metadata"
	"github.com/nainovate/Evaluation-UI-sub000/internal/metrics"
	"github.com/nainovate/Evaluation-UI-sub000/internal/middleware/ratelimit"
	"github.com/nainovate/Evaluation-UI-sub000/internal/middleware/security"
	"github.com/nainovate/Evaluation-UI-sub000/internal/middleware/validation"
	"github.com/nainovate/Evaluation-UI-sub000/internal/runs"
	"github.com/nainovate/Evaluation-UI-sub000/internal/storage/sqlite"
	"github.com/nainovate/Evaluation-UI-sub000/internal/wizard"
	"github.com/nainovate/Evaluation-UI-sub000/pkg/config"
	appLogger "github.com/nainovate/Evaluation-UI-sub000/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Evaluation Wizard API Server")
	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	ctx := context.Background()
	if err := sqliteClient.SeedDeployments(ctx, sqlite.DefaultDeployments); err != nil {
		appLogger.Warn("Failed to seed deployments", zap.Error(err))
	}
	if n, err := sqliteClient.FailInterruptedRuns(ctx); err != nil {
		appLogger.Warn("Failed to mark interrupted runs", zap.Error(err))
	} else if n > 0 {
		appLogger.Info("Marked interrupted runs as failed", zap.Int64("count", n))
	}

	remote := remoteBackend(cfg)
	local := sqlite.NewMetadataBackend(sqliteClient, cfg.Wizard.MetadataKey)
	store := metadata.NewStore(remote, local)

	llmClient := llm.NewClient(llm.Options{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		JudgeModel:  cfg.LLM.JudgeModel,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})

	executor := runs.NewExecutor(sqliteClient, llmClient, runs.WithFinishFunc(runs.RecordInStore(store)))

	nav, err := wizard.NewNavigator(cfg.Wizard.Steps)
	if err != nil {
		appLogger.Fatal("Invalid wizard steps", zap.Error(err))
	}
	controller := wizard.NewController(nav, store, wizard.WithLauncher(executor))
	loaded := controller.Init(ctx)
	appLogger.Info("Wizard state loaded",
		zap.String("source", string(loaded.Source)),
		zap.String("session_id", loaded.Metadata.EvaluationSession.ID),
		zap.String("step", controller.CurrentStep().Name),
	)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Security.AllowedOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + ratelimit.SessionHeader,
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Security.AllowedOrigins,
		IsDevelopment:  cfg.Security.IsDevelopment,
	}))

	var limiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.Config{
			MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
			Logger:               appLogger.GetLogger(),
		})
		app.Use(limiter.Middleware())
	}
	app.Use(validation.Middleware(validation.Config{Logger: appLogger.GetLogger()}))

	api.Register(app, api.Deps{
		DB:             sqliteClient,
		Store:          store,
		Controller:     controller,
		Executor:       executor,
		MaxUploadBytes: cfg.Datasets.MaxUploadBytes,
		PreviewRows:    cfg.Datasets.PreviewRows,
		HistoryLimit:   cfg.Runs.HistoryLimit,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.Shutdown(); err != nil {
		appLogger.Warn("HTTP shutdown failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := executor.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Runs did not stop in time", zap.Error(err))
	}
	if limiter != nil {
		limiter.Stop()
	}
	appLogger.Info("Server stopped")
}

// remoteBackend connects to redis when enabled. An unreachable server is
// not fatal: the store then reads and writes the local copy only.
func remoteBackend(cfg *config.Config) metadata.Backend {
	if !cfg.Redis.Enabled {
		appLogger.Info("Redis disabled, metadata kept in SQLite only")
		return redis.Offline{}
	}

	client, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		appLogger.Warn("Redis unavailable, falling back to SQLite", zap.Error(err))
		return redis.Offline{}
	}

	ttl := time.Duration(cfg.Wizard.RemoteTTLHours) * time.Hour
	return redis.NewMetadataBackend(client, ttl)
}
