package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/letschat/chat-api/internal/config"
	"github.com/letschat/chat-api/internal/handler"
	"github.com/letschat/chat-api/internal/infra/observability"
	"github.com/letschat/chat-api/internal/infra/ollama"
	"github.com/letschat/chat-api/internal/infra/postgres"
	"github.com/letschat/chat-api/internal/infra/resilience"
	"github.com/letschat/chat-api/internal/infra/supabase"
	"github.com/letschat/chat-api/internal/port"
	"github.com/letschat/chat-api/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, "chat-api")
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("app_env", cfg.AppEnv),
		zap.String("data_backend", cfg.DataBackend),
		zap.String("ollama_host", cfg.OllamaHost),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("inference_timeout", cfg.InferenceTimeout),
		zap.Duration("server_write_timeout", cfg.ServerWriteTimeout),
	)

	bypassAuth := cfg.IsDevelopment()
	if bypassAuth {
		logger.Warn("authentication bypassed: all requests run as the development user",
			zap.String("dev_user_id", cfg.DevUserID),
		)
	}

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "chat-api")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	inferenceHTTPClient := &http.Client{Timeout: cfg.InferenceTimeout}

	var supabaseClient *supabase.Client
	if cfg.SupabaseURL != "" && cfg.SupabaseAnonKey != "" {
		supabaseClient = supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"),
			metrics,
			logger,
		)
	}

	// --- Store ---
	var store port.Store
	switch cfg.DataBackend {
	case config.BackendPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			logger.Fatal("failed to open database", zap.Error(err))
		}
		defer db.Close()
		store = postgres.NewStore(db, resilience.NewCircuitBreaker("postgres"), metrics, logger)
		logger.Info("using Postgres as data backend")
	default:
		store = supabaseClient
		logger.Info("using Supabase as data backend", zap.String("supabase_url", cfg.SupabaseURL))
	}

	// --- Identity ---
	var resolver port.IdentityResolver
	switch {
	case cfg.SupabaseJWTSecret != "":
		resolver = service.NewJWTResolver(cfg.SupabaseJWTSecret)
		logger.Info("verifying access tokens locally")
	case supabaseClient != nil:
		resolver = supabaseClient
		logger.Info("verifying access tokens with Supabase Auth")
	}
	verifier := service.NewIdentityVerifier(resolver, bypassAuth, cfg.DevUserID, logger)

	// --- Inference ---
	llm, err := ollama.NewClient(
		cfg.OllamaHost,
		inferenceHTTPClient,
		resilience.NewCircuitBreaker("ollama"),
		metrics,
		logger,
	)
	if err != nil {
		logger.Fatal("failed to create ollama client", zap.Error(err))
	}

	// --- Services ---
	summarizer := service.NewSummarizer(llm, cfg.OllamaDefaultModel, logger)
	chatSvc := service.NewChatService(store, store, llm, summarizer, metrics, logger)
	readiness := service.NewReadiness(map[string]port.Pinger{
		"ollama":        llm,
		cfg.DataBackend: store,
	}, 5*time.Second, logger)

	// --- Router ---
	router := handler.NewRouter(chatSvc, verifier, readiness, metrics, cfg.CORSAllowedOrigins, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
