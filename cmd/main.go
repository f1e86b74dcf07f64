package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/randybritsch/c4-mcp-app-sub000/adapters"
	"github.com/randybritsch/c4-mcp-app-sub000/adapters/aliases"
	"github.com/randybritsch/c4-mcp-app-sub000/adapters/gateway"
	"github.com/randybritsch/c4-mcp-app-sub000/adapters/llm"
	"github.com/randybritsch/c4-mcp-app-sub000/adapters/mongo"
	"github.com/randybritsch/c4-mcp-app-sub000/adapters/stt"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/repositories"
	"github.com/randybritsch/c4-mcp-app-sub000/internal/api"
	"github.com/randybritsch/c4-mcp-app-sub000/internal/auth"
	"github.com/randybritsch/c4-mcp-app-sub000/internal/config"
	"github.com/randybritsch/c4-mcp-app-sub000/internal/metrics"
	"github.com/randybritsch/c4-mcp-app-sub000/internal/websocket"
	"github.com/randybritsch/c4-mcp-app-sub000/usecase"
)

func main() {
	envFile := pflag.String("env", ".env", "path to an optional .env file")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}
	tokenExpiry, _ := cfg.JWTExpiry()

	// The planner prompt is a locked policy artifact; refuse to start without it.
	systemPrompt, err := llm.LoadLockedPrompt(cfg.LLM.PromptFile, cfg.LLM.PromptSHA256)
	if err != nil {
		logger.Fatal("Planner prompt integrity check failed",
			zap.String("path", cfg.LLM.PromptFile),
			zap.Error(err))
	}

	ctx := context.Background()
	collectors := metrics.New(prometheus.DefaultRegisterer)

	// Initialize adapters
	speechToText, closeSTT, err := newSpeechToText(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize speech-to-text", zap.Error(err))
	}
	defer closeSTT()

	planner, err := newPlanner(ctx, cfg, systemPrompt, logger)
	if err != nil {
		logger.Fatal("Failed to initialize planner", zap.Error(err))
	}

	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL:    cfg.MCP.BaseURL,
		Timeout:    cfg.MCPTimeout(),
		Allowlist:  cfg.ToolAllowlist(),
		CatalogTTL: cfg.CatalogTTL(),
	}, logger)

	aliasStore, closeAliases, err := newAliasStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize alias store", zap.Error(err))
	}
	defer closeAliases()

	history, closeHistory, err := newCommandHistory(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize command history", zap.Error(err))
	}
	defer closeHistory()

	// Initialize usecase services
	resolver, err := usecase.NewResolver(usecase.Dependencies{
		SpeechToText: speechToText,
		Planner:      planner,
		Gateway:      gatewayClient,
		Aliases:      usecase.NewAliasService(aliasStore, usecase.DefaultAliasTools, logger),
		History:      history,
		Metrics:      collectors,
	}, usecase.Config{
		Mood:           usecase.MoodConfig{Enabled: cfg.Mood.Enabled, MusicSource: cfg.Mood.MusicSource},
		RoomGroupLimit: cfg.MCP.RoomGroupLimit,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize resolver", zap.Error(err))
	}

	cleanup := usecase.NewHistoryCleanupService(history, cfg.HistoryRetention(), 0, logger)
	cleanup.Start()
	defer cleanup.Stop()

	issuer, err := auth.NewIssuer(cfg.JWT.Secret, tokenExpiry)
	if err != nil {
		logger.Fatal("Failed to initialize token issuer", zap.Error(err))
	}

	// Initialize WebSocket hub
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	hub := websocket.NewHub(issuer, resolver, collectors, websocket.Config{
		MaxConnections:    cfg.WebSocket.MaxConnections,
		HeartbeatInterval: cfg.HeartbeatInterval(),
		AllowTextCommands: cfg.WebSocket.AllowTextCommands,
	}, logger)
	go hub.Run(hubCtx)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	api.UseMiddleware(e, api.MiddlewareConfig{CORSOrigin: cfg.Server.CORSOrigin}, logger)
	api.InitRoutes(e, api.Dependencies{
		Hub:     hub,
		Issuer:  issuer,
		Voice:   resolver,
		Gateway: gatewayClient,
		History: history,
	}, api.Config{
		TokenExpiry:        cfg.JWT.Expiry,
		AllowTextCommands:  cfg.WebSocket.AllowTextCommands,
		RateLimitPerSecond: cfg.RateLimit.PerSecond,
		RateLimitBurst:     cfg.RateLimit.Burst,
	}, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(cfg.Addr()); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Voice relay started",
		zap.String("addr", cfg.Addr()),
		zap.String("sttProvider", cfg.STT.Provider),
		zap.String("llmProvider", cfg.LLM.Provider),
		zap.String("mcpBaseURL", cfg.MCP.BaseURL),
		zap.String("aliasStore", cfg.Storage.AliasStore))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")
	stopHub()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func newSpeechToText(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.SpeechToText, func(), error) {
	if cfg.STT.Provider == "mock" {
		return stt.NewMockSpeechToText(cfg.STT.MockTranscript, logger), func() {}, nil
	}

	google, err := stt.NewGoogleSpeechToText(ctx, stt.GoogleConfig{
		APIKey:   cfg.STT.APIKey,
		Language: cfg.STT.Language,
		Timeout:  cfg.STTTimeout(),
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return google, func() {
		if err := google.Close(); err != nil {
			logger.Warn("Failed to close speech client", zap.Error(err))
		}
	}, nil
}

// newPlanner builds the configured planner behind the heuristic fallback policy.
func newPlanner(ctx context.Context, cfg *config.Config, systemPrompt string, logger *zap.Logger) (repositories.Planner, error) {
	heuristic := llm.NewHeuristicPlanner()

	var primary repositories.Planner
	switch cfg.LLM.Provider {
	case "gemini":
		gemini, err := llm.NewGeminiPlanner(ctx, llm.GeminiConfig{
			APIKey:       cfg.LLM.GeminiAPIKey,
			Model:        cfg.LLM.GeminiModel,
			SystemPrompt: systemPrompt,
			Timeout:      cfg.LLMTimeout(),
		}, logger)
		if err != nil {
			return nil, err
		}
		primary = gemini
	case "openai":
		openai, err := llm.NewOpenAIPlanner(llm.OpenAIConfig{
			APIKey:       cfg.LLM.OpenAIAPIKey,
			Model:        cfg.LLM.OpenAIModel,
			SystemPrompt: systemPrompt,
			Timeout:      cfg.LLMTimeout(),
		}, logger)
		if err != nil {
			return nil, err
		}
		primary = openai
	default:
		return heuristic, nil
	}

	return llm.NewFallbackPlanner(primary, heuristic, cfg.LLM.AllowHeuristics, logger), nil
}

func newAliasStore(cfg *config.Config, logger *zap.Logger) (repositories.AliasStore, func(), error) {
	if cfg.Storage.AliasStore != "redis" {
		return aliases.NewMemoryStore(logger), func() {}, nil
	}

	store, err := aliases.NewRedisStore(cfg.Storage.RedisURL, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}, nil
}

// newCommandHistory uses MongoDB when MONGODB_URI is set, memory otherwise.
func newCommandHistory(cfg *config.Config, logger *zap.Logger) (repositories.CommandHistory, func(), error) {
	if cfg.Storage.MongoURI == "" {
		logger.Info("MONGODB_URI not set, keeping command history in memory")
		return adapters.NewMemoryCommandHistory(adapters.DefaultHistoryPerDevice), func() {}, nil
	}

	client, err := mongo.NewClient(cfg.Storage.MongoURI, cfg.Storage.MongoDatabase, logger)
	if err != nil {
		return nil, nil, err
	}
	return mongo.NewCommandRepository(client.Database, logger), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Close(ctx); err != nil {
			logger.Warn("Failed to disconnect from MongoDB", zap.Error(err))
		}
	}, nil
}
